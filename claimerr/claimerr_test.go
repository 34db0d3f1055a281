package claimerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("claim: %w", Network("ledger unreachable", cause))

	assert.Equal(t, KindNetwork, KindOf(err))
	assert.True(t, Is(err, KindNetwork))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, Kind(""), KindOf(cause))
}

func TestRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "network", err: Network("rpc down", nil), want: true},
		{name: "transient ineligible", err: Ineligible([]string{"cannot confirm eligibility"}, true), want: true},
		{name: "ineligible", err: Ineligible([]string{"already claimed"}, false), want: false},
		{name: "wallet", err: Wallet("no signer", nil), want: false},
		{name: "attestation", err: Attestation("rejected", nil), want: false},
		{name: "duplicate", err: DuplicateIdentity(nil), want: false},
		{name: "submission", err: Submission("reverted", "0xabc", nil), want: false},
		{name: "pending", err: Pending("0xabc", nil), want: false},
		{name: "unclassified", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recoverable(tt.err))
		})
	}
}

func TestErrorMessageKeepsReasonsAndCause(t *testing.T) {
	err := Ineligible([]string{"supply exhausted", "already claimed"}, false)
	assert.Equal(t, "ineligible: not eligible to claim (supply exhausted; already claimed)", err.Error())

	sub := Submission("transaction reverted", "0x01", errors.New("status 0"))
	ce, ok := As(sub)
	require.True(t, ok)
	assert.Equal(t, "0x01", ce.TxHash)
	assert.Contains(t, sub.Error(), "status 0")
}

func TestIneligibleCopiesReasons(t *testing.T) {
	reasons := []string{"a"}
	err := Ineligible(reasons, false)
	reasons[0] = "b"
	assert.Equal(t, []string{"a"}, err.Reasons)
}
