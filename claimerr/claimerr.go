// Package claimerr is the error taxonomy returned to callers of the claim flow.
// Every lower-level failure is classified into one Kind before it leaves the core;
// the raw upstream error is kept as Cause for diagnostics.
package claimerr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindWallet            Kind = "wallet"
	KindAttestation       Kind = "attestation"
	KindIneligible        Kind = "ineligible"
	KindDuplicateIdentity Kind = "duplicate_identity"
	KindNetwork           Kind = "network"
	KindSubmission        Kind = "submission"
	// KindPending means the transaction was broadcast but not confirmed within the wait.
	KindPending Kind = "pending"
)

// Error - Classified claim failure
type Error struct {
	Kind      Kind     `json:"kind"`
	Reason    string   `json:"reason"`
	Reasons   []string `json:"reasons,omitempty"`
	TxHash    string   `json:"tx_hash,omitempty"`
	Retryable bool     `json:"retryable"`
	Cause     error    `json:"-"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	if len(e.Reasons) > 0 {
		msg += " (" + strings.Join(e.Reasons, "; ") + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Recoverable reports whether a new claim attempt may be made without resetting
// the session.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindIneligible:
		return e.Retryable
	default:
		return false
	}
}

func Wallet(reason string, cause error) *Error {
	return &Error{Kind: KindWallet, Reason: reason, Cause: cause}
}

func Attestation(reason string, cause error) *Error {
	return &Error{Kind: KindAttestation, Reason: reason, Cause: cause}
}

// Ineligible aggregates every blocking condition. retryable marks a failure that
// came from being unable to read ledger state rather than from the state itself.
func Ineligible(reasons []string, retryable bool) *Error {
	return &Error{
		Kind:      KindIneligible,
		Reason:    "not eligible to claim",
		Reasons:   append([]string(nil), reasons...),
		Retryable: retryable,
	}
}

func DuplicateIdentity(cause error) *Error {
	return &Error{
		Kind:   KindDuplicateIdentity,
		Reason: "this identity has already been used to claim",
		Cause:  cause,
	}
}

func Network(reason string, cause error) *Error {
	return &Error{Kind: KindNetwork, Reason: reason, Retryable: true, Cause: cause}
}

func Submission(reason, txHash string, cause error) *Error {
	return &Error{Kind: KindSubmission, Reason: reason, TxHash: txHash, Cause: cause}
}

func Pending(txHash string, cause error) *Error {
	return &Error{
		Kind:   KindPending,
		Reason: "transaction submitted but not yet confirmed, check again later",
		TxHash: txHash,
		Cause:  cause,
	}
}

// As extracts the classified error from err's chain.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	if ce, ok := As(err); ok {
		return ce.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Recoverable reports whether err permits a fresh claim without a reset.
func Recoverable(err error) bool {
	ce, ok := As(err)
	return ok && ce.Recoverable()
}
