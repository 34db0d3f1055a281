package claim

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claimerr"
)

// Wallet JSON-RPC error codes (EIP-1193 / EIP-1474)
const (
	codeUserRejected = 4001
	codeInternal     = -32603
)

// ContractErrors maps revert reasons of the claim contract to user messages
var ContractErrors = map[string]string{
	"AlreadyClaimed":        "You have already claimed an NFT, each address may claim once",
	"Already claimed":       "You have already claimed an NFT, each address may claim once",
	"ScreenNameAlreadyUsed": "This X account has already been used to claim",
	"InvalidNftId":          "Invalid NFT id",
	"SupplyExhausted":       "All NFTs have been claimed",
	"InvalidRecipient":      "Invalid recipient address",
	"Invalid recipient":     "Invalid recipient address",
}

var duplicateIdentityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ScreenNameAlreadyUsed`),
	regexp.MustCompile(`(?i)screen\s*name\s+already\s+used`),
	regexp.MustCompile(`(?i)identity\s+already\s+(used|claimed|bound)`),
}

var networkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)connection refused`),
	regexp.MustCompile(`(?i)connection reset`),
	regexp.MustCompile(`(?i)no such host`),
	regexp.MustCompile(`(?i)i/o timeout`),
	regexp.MustCompile(`(?i)too many requests|429`),
	regexp.MustCompile(`(?i)\b50[234]\b`),
	regexp.MustCompile(`\bEOF\b`),
}

// revertReason returns the decoded revert reason, falling back to the text
// after "execution reverted:" in the error message.
func revertReason(err error) string {
	if reason, ok := chainevm.RevertReason(err); ok {
		return reason
	}
	msg := err.Error()
	if i := strings.Index(msg, "execution reverted:"); i >= 0 {
		return strings.TrimSpace(msg[i+len("execution reverted:"):])
	}
	return ""
}

// IsDuplicateIdentity reports whether err is the contract rejecting an
// identity that has already been consumed by another claim.
func IsDuplicateIdentity(err error) bool {
	if err == nil {
		return false
	}
	candidates := []string{err.Error()}
	if reason := revertReason(err); reason != "" {
		candidates = append(candidates, reason)
	}
	for _, c := range candidates {
		for _, p := range duplicateIdentityPatterns {
			if p.MatchString(c) {
				return true
			}
		}
	}
	return false
}

func rpcCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// IsNetworkError reports transport failures that are worth retrying.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if _, ok := rpcCode(err); ok {
		return false
	}
	msg := err.Error()
	for _, p := range networkPatterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}

// ParseClaimError extracts a user-facing message from a raw ledger error.
func ParseClaimError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()

	if code, ok := rpcCode(err); ok {
		switch code {
		case codeUserRejected:
			return "Transaction was rejected in the wallet"
		case codeInternal:
			return "Transaction failed, the contract may have rejected it"
		}
	}
	if regexp.MustCompile(`(?i)user (rejected|denied)`).MatchString(msg) {
		return "Transaction was rejected in the wallet"
	}

	if reason := revertReason(err); reason != "" {
		for key, text := range ContractErrors {
			if strings.HasPrefix(reason, key) {
				return text
			}
		}
		return "Transaction reverted by the contract"
	}

	if regexp.MustCompile(`(?i)insufficient funds`).MatchString(msg) {
		return "Insufficient balance to pay for gas"
	}
	if regexp.MustCompile(`(?i)nonce too low|replacement transaction underpriced|already known`).MatchString(msg) {
		return "A conflicting transaction is already pending for this wallet"
	}
	for key, text := range ContractErrors {
		if strings.Contains(msg, key) {
			return text
		}
	}
	if IsNetworkError(err) {
		return "Unable to reach the network, please try again"
	}
	return "Claim failed, please try again"
}

// ClassifySendError turns a signing or broadcast failure into the taxonomy.
func ClassifySendError(err error) *claimerr.Error {
	if ce, ok := claimerr.As(err); ok {
		return ce
	}
	if IsDuplicateIdentity(err) {
		return claimerr.DuplicateIdentity(err)
	}
	if IsNetworkError(err) {
		return claimerr.Network(ParseClaimError(err), err)
	}
	return claimerr.Submission(ParseClaimError(err), "", err)
}
