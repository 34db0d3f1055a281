package chainevm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/attestation"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm/evmtest"
)

func sampleAttestation(recipient common.Address) *attestation.Attestation {
	return &attestation.Attestation{
		Recipient: recipient,
		Request: attestation.NetworkRequest{
			Url:    "https://x.com/i/api/graphql/profile",
			Method: "GET",
		},
		ReponseResolve: []attestation.ResponseResolve{
			{KeyName: "login", ParseType: "json", ParsePath: "$.data.login"},
		},
		Data:      `{"screen_name":"kunkun_fan"}`,
		Timestamp: 1_720_000_000_000,
		Attestors: []attestation.Attestor{
			{AttestorAddr: common.HexToAddress("0xdb736b13e2f522dbe18b2015d0291e4b193d8ef6"), Url: "https://primuslabs.xyz"},
		},
		Signatures: attestation.Signatures{make([]byte, 65)},
	}
}

func TestIsValidContractAddress(t *testing.T) {
	assert.True(t, chainevm.IsValidContractAddress("0xDF83C72DbCAb0c53fc88060eF435CAEB2758cF6d"))
	assert.False(t, chainevm.IsValidContractAddress("DF83C72DbCAb0c53fc88060eF435CAEB2758cF6d"))
	assert.False(t, chainevm.IsValidContractAddress("0x1234"))
	assert.False(t, chainevm.IsValidContractAddress("0xZZ83C72DbCAb0c53fc88060eF435CAEB2758cF6d"))
}

func TestNewEVMChainRejectsBadContract(t *testing.T) {
	_, err := chainevm.NewEVMChainWithBackend(evmtest.NewBackend(), chainevm.Config{ContractAddress: "nope"})
	assert.Error(t, err)
}

func TestPackClaimRoundTrip(t *testing.T) {
	_, addr := evmtest.NewKey()
	att := sampleAttestation(addr)

	data, err := chainevm.PackClaim(att, 5)
	require.NoError(t, err)

	got, nftID, err := chainevm.UnpackClaim(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), nftID)
	assert.Equal(t, att.Recipient, got.Recipient)
	assert.Equal(t, att.Data, got.Data)
	assert.Equal(t, att.ReponseResolve, got.ReponseResolve)
	assert.Equal(t, att.Attestors, got.Attestors)
}

func TestContractReads(t *testing.T) {
	ctx := context.Background()
	chain, backend := evmtest.NewChain()
	_, alice := evmtest.NewKey()
	_, bob := evmtest.NewKey()
	backend.MarkClaimed(alice, 3, "alice_x")

	require.NoError(t, chain.HealthCheck(ctx))

	status, err := chain.GetContractStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, chainevm.ContractStatus{TotalClaimed: 1, TotalSupply: 1000, RemainingSupply: 999, MaxNftID: 8}, *status)

	claimed, err := chain.HasUserClaimed(ctx, alice)
	require.NoError(t, err)
	assert.True(t, claimed)

	used, err := chain.IsScreenNameUsed(ctx, "alice_x")
	require.NoError(t, err)
	assert.True(t, used)

	userStatus, err := chain.GetUserClaimStatus(ctx, alice)
	require.NoError(t, err)
	assert.True(t, userStatus.Claimed)
	assert.Equal(t, []uint64{3}, userStatus.NftIDs)
	assert.Equal(t, uint64(1), userStatus.TotalOwnedCount)

	count, err := chain.GetClaimedCount(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	remaining, err := chain.GetRemainingSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(999), remaining)

	batch, err := chain.BatchHasUserClaimed(ctx, []common.Address{alice, bob})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, batch)
}

func TestContractReadFailureIsWrapped(t *testing.T) {
	chain, backend := evmtest.NewChain()
	backend.CallErr = errors.New("connection refused")

	_, err := chain.GetContractStatus(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to call getContractStatus")
	assert.ErrorIs(t, err, backend.CallErr)
}

func sendClaim(t *testing.T, chain *chainevm.EVMChain, nftID uint64) *types.Transaction {
	t.Helper()
	ctx := context.Background()
	key, from := evmtest.NewKey()

	data, err := chainevm.PackClaim(sampleAttestation(from), nftID)
	require.NoError(t, err)
	tx, err := chain.BuildClaimTransaction(ctx, from, data, 300_000)
	require.NoError(t, err)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chain.ChainID()), key)
	require.NoError(t, err)
	require.NoError(t, chain.SendSignedTransaction(ctx, signed))
	return signed
}

func TestWaitForConfirmation(t *testing.T) {
	chain, _ := evmtest.NewChain()
	tx := sendClaim(t, chain, 2)

	receipt, err := chain.WaitForConfirmation(context.Background(), tx.Hash(), time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	status, err := chain.GetTransactionStatus(context.Background(), tx.Hash().Hex())
	require.NoError(t, err)
	assert.Equal(t, chainevm.StatusConfirmed, status.Status)
	assert.Equal(t, uint64(1), status.Confirmations)
	assert.NotNil(t, status.BlockTime)
	assert.Equal(t, "https://testnet.monadexplorer.com/tx/"+tx.Hash().Hex(), status.ExplorerURL)
}

func TestWaitForConfirmationReverted(t *testing.T) {
	chain, backend := evmtest.NewChain()
	backend.RevertOnMine = true
	tx := sendClaim(t, chain, 2)

	receipt, err := chain.WaitForConfirmation(context.Background(), tx.Hash(), time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, err, chainevm.ErrReverted)
	require.NotNil(t, receipt)

	status, err := chain.GetTransactionStatus(context.Background(), tx.Hash().Hex())
	require.NoError(t, err)
	assert.Equal(t, chainevm.StatusFailed, status.Status)
}

func TestWaitForConfirmationTimeout(t *testing.T) {
	chain, backend := evmtest.NewChain()
	backend.HoldReceipts = true
	tx := sendClaim(t, chain, 2)

	_, err := chain.WaitForConfirmation(context.Background(), tx.Hash(), 50*time.Millisecond, 10*time.Millisecond)
	assert.ErrorIs(t, err, chainevm.ErrConfirmationTimeout)

	status, err := chain.GetTransactionStatus(context.Background(), tx.Hash().Hex())
	require.NoError(t, err)
	assert.Equal(t, chainevm.StatusNotFound, status.Status)
}

func TestWaitForConfirmationCancelled(t *testing.T) {
	chain, backend := evmtest.NewChain()
	backend.HoldReceipts = true
	tx := sendClaim(t, chain, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := chain.WaitForConfirmation(ctx, tx.Hash(), time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRevertReasonDecoding(t *testing.T) {
	reason, ok := chainevm.RevertReason(chainevm.NewRevertError("ScreenNameAlreadyUsed", "kunkun_fan"))
	require.True(t, ok)
	assert.Equal(t, "ScreenNameAlreadyUsed(kunkun_fan)", reason)

	reason, ok = chainevm.RevertReason(chainevm.NewRevertError("AlreadyClaimed"))
	require.True(t, ok)
	assert.Equal(t, "AlreadyClaimed", reason)

	// Error(string) payload as produced by require(cond, "msg")
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	stringArg := chainevm.ParsedABI.Methods["isScreenNameUsed"].Inputs
	packed, err := stringArg.Pack("Already claimed")
	require.NoError(t, err)
	data, ok := chainevm.DecodeRevert(append(selector, packed...))
	require.True(t, ok)
	assert.Equal(t, "Already claimed", data)

	_, ok = chainevm.RevertReason(errors.New("plain"))
	assert.False(t, ok)
}
