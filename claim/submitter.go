// Package claim submits attestation-backed claims to the NFTClaim contract and
// classifies every failure into the claimerr taxonomy.
package claim

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/attestation"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claimerr"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/eligibility"
)

const (
	DefaultFallbackGasLimit = 500_000
	DefaultGasMarginPercent = 20
	DefaultConfirmTimeout   = 60 * time.Second
	DefaultPollInterval     = 2 * time.Second
	DefaultEstimateTimeout  = 15 * time.Second
)

// Receipt - Confirmed claim transaction
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
	GasLimit    uint64 `json:"gas_limit"`
	SlotID      int    `json:"slot_id"`
	Address     string `json:"address"`
	ExplorerURL string `json:"explorer_url"`
}

type Submitter struct {
	chain   *chainevm.EVMChain
	checker *eligibility.Checker
	logger  *zap.Logger

	FallbackGasLimit uint64
	GasMarginPercent uint64
	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
	EstimateTimeout  time.Duration
}

func NewSubmitter(chain *chainevm.EVMChain, checker *eligibility.Checker, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		chain:            chain,
		checker:          checker,
		logger:           logger,
		FallbackGasLimit: DefaultFallbackGasLimit,
		GasMarginPercent: DefaultGasMarginPercent,
		ConfirmTimeout:   DefaultConfirmTimeout,
		PollInterval:     DefaultPollInterval,
		EstimateTimeout:  DefaultEstimateTimeout,
	}
}

// Broadcast is a claim transaction accepted by the node but not yet confirmed.
type Broadcast struct {
	Hash     common.Hash
	From     common.Address
	GasLimit uint64
	SlotID   int
}

// SubmitClaim sends claimNFT(att, slotID) from signer and waits for one
// confirmation. There are no automatic retries; the returned error is always a
// *claimerr.Error.
func (s *Submitter) SubmitClaim(ctx context.Context, signer Signer, att *attestation.Attestation, slotID int, address string) (*Receipt, error) {
	sent, err := s.Send(ctx, signer, att, slotID, address)
	if err != nil {
		return nil, err
	}
	return s.Await(ctx, sent)
}

// Send runs the pre-submission checks, prices, signs and broadcasts the claim.
func (s *Submitter) Send(ctx context.Context, signer Signer, att *attestation.Attestation, slotID int, address string) (*Broadcast, error) {
	if noSigner(signer) {
		return nil, claimerr.Wallet("wallet is not connected", nil)
	}
	if !strings.EqualFold(signer.Address().Hex(), strings.TrimSpace(address)) {
		return nil, claimerr.Wallet("connected wallet does not match the claiming address", nil)
	}
	if att == nil {
		return nil, claimerr.Attestation("identity proof is missing", nil)
	}
	from := signer.Address()
	log := s.logger.With(zap.String("address", from.Hex()), zap.Int("slot", slotID))

	// Eligibility must hold at submission time, not just at draw time.
	res := s.checker.CheckEligibility(ctx, from, slotID)
	if !res.CanClaim {
		log.Info("claim blocked", zap.Strings("reasons", res.Reasons))
		return nil, claimerr.Ineligible(res.Reasons, res.ReadFailed)
	}

	data, err := chainevm.PackClaim(att, uint64(slotID))
	if err != nil {
		return nil, claimerr.Submission("could not encode the claim", "", err)
	}

	gasLimit, err := s.gasLimit(ctx, from, data, log)
	if err != nil {
		return nil, err
	}

	tx, err := s.chain.BuildClaimTransaction(ctx, from, data, gasLimit)
	if err != nil {
		return nil, ClassifySendError(err)
	}
	signed, err := signer.SignTx(tx, s.chain.ChainID())
	if err != nil {
		// A rejection in the wallet is a failed submission, not a missing wallet.
		log.Info("claim signing failed", zap.Error(err))
		return nil, ClassifySendError(err)
	}
	if err := s.chain.SendSignedTransaction(ctx, signed); err != nil {
		log.Warn("claim send failed", zap.Error(err))
		return nil, ClassifySendError(err)
	}

	log.Info("claim submitted", zap.String("tx", signed.Hash().Hex()), zap.Uint64("gas", gasLimit))
	return &Broadcast{Hash: signed.Hash(), From: from, GasLimit: gasLimit, SlotID: slotID}, nil
}

// Await waits a bounded time for the broadcast claim to be mined. A timeout or
// cancellation yields a pending error carrying the hash; the transaction itself
// keeps running on the ledger.
func (s *Submitter) Await(ctx context.Context, sent *Broadcast) (*Receipt, error) {
	hash := sent.Hash.Hex()
	log := s.logger.With(zap.String("address", sent.From.Hex()), zap.String("tx", hash))

	receipt, err := s.chain.WaitForConfirmation(ctx, sent.Hash, s.ConfirmTimeout, s.PollInterval)
	switch {
	case errors.Is(err, chainevm.ErrReverted):
		log.Warn("claim reverted")
		return nil, claimerr.Submission("transaction reverted by the contract", hash, err)
	case err != nil:
		log.Warn("claim not confirmed", zap.Error(err))
		return nil, claimerr.Pending(hash, err)
	}

	log.Info("claim confirmed", zap.Uint64("block", receipt.BlockNumber.Uint64()))
	return &Receipt{
		TxHash:      hash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		GasLimit:    sent.GasLimit,
		SlotID:      sent.SlotID,
		Address:     sent.From.Hex(),
		ExplorerURL: s.chain.GetExplorerURL(hash),
	}, nil
}

// gasLimit applies the margin to a successful estimate. A duplicate identity
// revert stops the claim; other estimation failures use the fallback ceiling.
func (s *Submitter) gasLimit(ctx context.Context, from common.Address, data []byte, log *zap.Logger) (uint64, error) {
	estimateCtx := ctx
	if s.EstimateTimeout > 0 {
		var cancel context.CancelFunc
		estimateCtx, cancel = context.WithTimeout(ctx, s.EstimateTimeout)
		defer cancel()
	}
	estimate, err := s.chain.EstimateClaimGas(estimateCtx, from, data)
	if err == nil {
		return estimate + estimate*s.GasMarginPercent/100, nil
	}
	if IsDuplicateIdentity(err) {
		log.Info("claim rejected in estimation", zap.Error(err))
		return 0, claimerr.DuplicateIdentity(err)
	}
	if ctx.Err() != nil {
		return 0, claimerr.Network("request was cancelled", err)
	}
	log.Warn("gas estimation failed, using fallback limit",
		zap.Uint64("fallback", s.FallbackGasLimit), zap.Error(err))
	return s.FallbackGasLimit, nil
}

// noSigner also catches an interface holding a nil pointer.
func noSigner(signer Signer) bool {
	if signer == nil {
		return true
	}
	v := reflect.ValueOf(signer)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
