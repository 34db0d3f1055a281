package claim_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/attestation"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/attestation/attestationtest"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm/evmtest"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claim"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claimerr"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/eligibility"
)

type fixture struct {
	submitter *claim.Submitter
	backend   *evmtest.Backend
	signer    *claim.KeySigner
	prover    *attestationtest.Prover
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	chain, backend := evmtest.NewChain()
	key, _ := evmtest.NewKey()
	s := claim.NewSubmitter(chain, eligibility.NewChecker(chain, nil), nil)
	s.ConfirmTimeout = 200 * time.Millisecond
	s.PollInterval = 10 * time.Millisecond
	return &fixture{
		submitter: s,
		backend:   backend,
		signer:    claim.NewKeySigner(key),
		prover:    attestationtest.NewProver("kunkun_fan"),
	}
}

func (f *fixture) attestation() *attestation.Attestation {
	return f.prover.Issue(f.signer.Address())
}

func (f *fixture) submit(slotID int) (*claim.Receipt, error) {
	return f.submitter.SubmitClaim(context.Background(), f.signer, f.attestation(), slotID, f.signer.Address().Hex())
}

func TestSubmitClaim(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.submit(3)
	require.NoError(t, err)

	sent := f.backend.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, sent[0].Hash().Hex(), receipt.TxHash)
	assert.Equal(t, uint64(216_000), receipt.GasLimit, "estimate plus 20%")
	assert.Equal(t, uint64(216_000), sent[0].Gas())
	assert.Equal(t, 3, receipt.SlotID)
	assert.Equal(t, f.signer.Address().Hex(), receipt.Address)
	assert.Contains(t, receipt.ExplorerURL, "/tx/"+receipt.TxHash)
	assert.NotZero(t, receipt.BlockNumber)

	att, nftID, err := chainevm.UnpackClaim(sent[0].Data())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), nftID)
	assert.Equal(t, f.signer.Address(), att.Recipient)
}

func TestSubmitClaimLowercaseAddress(t *testing.T) {
	f := newFixture(t)
	lower := "0x" + common.Bytes2Hex(f.signer.Address().Bytes())

	_, err := f.submitter.SubmitClaim(context.Background(), f.signer, f.attestation(), 1, lower)
	assert.NoError(t, err)
}

func TestSubmitClaimSecondAttemptRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.submit(2)
	require.NoError(t, err)

	_, err = f.submit(2)
	require.Error(t, err)
	kind := claimerr.KindOf(err)
	assert.Contains(t, []claimerr.Kind{claimerr.KindIneligible, claimerr.KindDuplicateIdentity}, kind)
	assert.Len(t, f.backend.Sent(), 1)
}

func TestSubmitClaimWalletErrors(t *testing.T) {
	f := newFixture(t)
	_, other := evmtest.NewKey()

	_, err := f.submitter.SubmitClaim(context.Background(), nil, f.attestation(), 1, f.signer.Address().Hex())
	assert.True(t, claimerr.Is(err, claimerr.KindWallet))

	var disconnected *claim.KeySigner
	assert.NotPanics(t, func() {
		_, err = f.submitter.SubmitClaim(context.Background(), disconnected, f.attestation(), 1, f.signer.Address().Hex())
	})
	assert.True(t, claimerr.Is(err, claimerr.KindWallet))

	_, err = f.submitter.SubmitClaim(context.Background(), f.signer, f.attestation(), 1, other.Hex())
	assert.True(t, claimerr.Is(err, claimerr.KindWallet))

	assert.Zero(t, f.backend.EstimateCalls)
	assert.Empty(t, f.backend.Sent())
}

func TestSubmitClaimIneligible(t *testing.T) {
	f := newFixture(t)
	f.backend.SetTotalClaimed(f.backend.TotalSupply)

	_, err := f.submit(9)
	ce, ok := claimerr.As(err)
	require.True(t, ok)
	assert.Equal(t, claimerr.KindIneligible, ce.Kind)
	assert.False(t, ce.Retryable)
	assert.Equal(t, []string{eligibility.ReasonSupplyExhausted, eligibility.ReasonInvalidSlot(8)}, ce.Reasons)
	assert.Empty(t, f.backend.Sent())
}

func TestSubmitClaimReadFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.backend.CallErr = errors.New("connection refused")

	_, err := f.submit(1)
	assert.True(t, claimerr.Is(err, claimerr.KindIneligible))
	assert.True(t, claimerr.Recoverable(err))
}

func TestSubmitClaimDuplicateIdentitySkipsSend(t *testing.T) {
	f := newFixture(t)
	_, previous := evmtest.NewKey()
	f.backend.MarkClaimed(previous, 1, "kunkun_fan")

	_, err := f.submit(4)
	assert.True(t, claimerr.Is(err, claimerr.KindDuplicateIdentity), "got %v", err)
	assert.Equal(t, 1, f.backend.EstimateCalls)
	assert.Empty(t, f.backend.Sent(), "no fallback send after a duplicate identity revert")
}

func TestSubmitClaimFallbackGas(t *testing.T) {
	f := newFixture(t)
	f.backend.EstimateErr = errors.New("gas required exceeds allowance")

	receipt, err := f.submit(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(claim.DefaultFallbackGasLimit), receipt.GasLimit)
	require.Len(t, f.backend.Sent(), 1)
	assert.Equal(t, uint64(claim.DefaultFallbackGasLimit), f.backend.Sent()[0].Gas())
}

func TestSubmitClaimPending(t *testing.T) {
	f := newFixture(t)
	f.backend.HoldReceipts = true

	_, err := f.submit(1)
	ce, ok := claimerr.As(err)
	require.True(t, ok)
	assert.Equal(t, claimerr.KindPending, ce.Kind)
	require.Len(t, f.backend.Sent(), 1)
	assert.Equal(t, f.backend.Sent()[0].Hash().Hex(), ce.TxHash)
	assert.ErrorIs(t, err, chainevm.ErrConfirmationTimeout)
	assert.False(t, ce.Recoverable())
}

func TestSubmitClaimReverted(t *testing.T) {
	f := newFixture(t)
	f.backend.RevertOnMine = true

	_, err := f.submit(1)
	ce, ok := claimerr.As(err)
	require.True(t, ok)
	assert.Equal(t, claimerr.KindSubmission, ce.Kind)
	assert.NotEmpty(t, ce.TxHash)
	assert.ErrorIs(t, err, chainevm.ErrReverted)
}

func TestSubmitClaimSendFailures(t *testing.T) {
	tests := []struct {
		name    string
		sendErr error
		want    claimerr.Kind
	}{
		{name: "insufficient funds", sendErr: errors.New("insufficient funds for gas * price + value"), want: claimerr.KindSubmission},
		{name: "connection refused", sendErr: errors.New("dial tcp 127.0.0.1:8545: connection refused"), want: claimerr.KindNetwork},
		{name: "duplicate identity", sendErr: chainevm.NewRevertError("ScreenNameAlreadyUsed", "kunkun_fan"), want: claimerr.KindDuplicateIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.SendErr = tt.sendErr

			_, err := f.submit(1)
			ce, ok := claimerr.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, ce.Kind)
			assert.NotEqual(t, tt.sendErr.Error(), ce.Reason)
			assert.ErrorIs(t, err, tt.sendErr)
		})
	}
}

type walletRPCError struct {
	code int
	msg  string
}

func (e walletRPCError) Error() string  { return e.msg }
func (e walletRPCError) ErrorCode() int { return e.code }

type failingSigner struct {
	addr common.Address
	err  error
}

func (s failingSigner) Address() common.Address { return s.addr }

func (s failingSigner) SignTx(*types.Transaction, *big.Int) (*types.Transaction, error) {
	return nil, s.err
}

func TestSubmitClaimSignerRejects(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "message", err: errors.New("user rejected the request")},
		{name: "denied", err: errors.New("MetaMask Tx Signature: User denied transaction signature.")},
		{name: "rpc code 4001", err: walletRPCError{code: 4001, msg: "request rejected"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			signer := failingSigner{addr: f.signer.Address(), err: tt.err}

			_, err := f.submitter.SubmitClaim(context.Background(), signer, f.attestation(), 1, signer.addr.Hex())
			ce, ok := claimerr.As(err)
			require.True(t, ok)
			assert.Equal(t, claimerr.KindSubmission, ce.Kind)
			assert.Equal(t, "Transaction was rejected in the wallet", ce.Reason)
			assert.False(t, ce.Recoverable())
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, f.backend.Sent())
		})
	}
}

func TestSubmitClaimEstimateTimeoutUsesFallback(t *testing.T) {
	f := newFixture(t)
	f.backend.EstimateLatency = time.Minute
	f.submitter.EstimateTimeout = 20 * time.Millisecond

	start := time.Now()
	receipt, err := f.submit(2)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, uint64(claim.DefaultFallbackGasLimit), receipt.GasLimit)
}
