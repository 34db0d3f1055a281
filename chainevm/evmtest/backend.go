// Package evmtest provides an in-memory NFTClaim ledger behind chainevm.Backend.
package evmtest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/attestation"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm"
)

const (
	ChainID         = chainevm.DefaultChainID
	ContractAddress = "0xDF83C72DbCAb0c53fc88060eF435CAEB2758cF6d"
	// IdentityKey is the attestation data field the contract treats as the bound identity.
	IdentityKey = "screen_name"
)

// Backend simulates the claim contract. Transactions are mined on send unless
// HoldReceipts is set. The exported error fields inject failures.
type Backend struct {
	mu sync.Mutex

	TotalSupply uint64
	MaxNftID    uint64

	totalClaimed uint64
	claimed      map[common.Address]uint64
	usedNames    map[string]bool
	perNft       map[uint64]uint64
	tokens       map[common.Address][]uint64
	nextToken    uint64

	block    uint64
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	sent     []*types.Transaction

	CallErr      error
	EstimateErr  error
	SendErr      error
	ReceiptErr   error
	HoldReceipts bool
	// RevertOnMine mines every transaction with a failed status.
	RevertOnMine bool

	// EstimateLatency delays EstimateGas, or until ctx is done.
	EstimateLatency time.Duration

	EstimateCalls int
}

func NewBackend() *Backend {
	return &Backend{
		TotalSupply: 1000,
		MaxNftID:    8,
		claimed:     make(map[common.Address]uint64),
		usedNames:   make(map[string]bool),
		perNft:      make(map[uint64]uint64),
		tokens:      make(map[common.Address][]uint64),
		nonces:      make(map[common.Address]uint64),
		receipts:    make(map[common.Hash]*types.Receipt),
		block:       100,
	}
}

// NewChain wires a fresh backend into an EVMChain.
func NewChain() (*chainevm.EVMChain, *Backend) {
	b := NewBackend()
	chain, err := chainevm.NewEVMChainWithBackend(b, chainevm.Config{
		ChainID:         ChainID,
		ContractAddress: ContractAddress,
	})
	if err != nil {
		panic(err)
	}
	return chain, b
}

// MarkClaimed records a prior claim by address, optionally binding an identity.
func (b *Backend) MarkClaimed(addr common.Address, nftID uint64, identity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyClaim(addr, nftID, identity)
}

// SetTotalClaimed overrides the global claim counter.
func (b *Backend) SetTotalClaimed(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalClaimed = n
}

// Sent returns the transactions that reached SendTransaction successfully.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

// MineHeld mines every transaction whose receipt was held back.
func (b *Backend) MineHeld() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.sent {
		if _, ok := b.receipts[tx.Hash()]; !ok {
			b.mine(tx)
		}
	}
}

func (b *Backend) applyClaim(addr common.Address, nftID uint64, identity string) {
	b.totalClaimed++
	b.nextToken++
	b.claimed[addr] = nftID
	b.perNft[nftID]++
	b.tokens[addr] = append(b.tokens[addr], b.nextToken)
	if identity != "" {
		b.usedNames[identity] = true
	}
}

func identityOf(att *attestation.Attestation) string {
	name, _ := att.ProofValue(IdentityKey)
	return name
}

// checkClaim mirrors the contract's require statements.
func (b *Backend) checkClaim(from common.Address, data []byte) error {
	att, nftID, err := chainevm.UnpackClaim(data)
	if err != nil {
		return &chainevm.RevertError{Message: "execution reverted"}
	}
	if att.Recipient != from {
		return chainevm.NewRevertError("InvalidRecipient")
	}
	if nftID < 1 || nftID > b.MaxNftID {
		return chainevm.NewRevertError("InvalidNftId", new(big.Int).SetUint64(nftID))
	}
	if b.totalClaimed >= b.TotalSupply {
		return chainevm.NewRevertError("SupplyExhausted")
	}
	if _, ok := b.claimed[from]; ok {
		return chainevm.NewRevertError("AlreadyClaimed")
	}
	if name := identityOf(att); name != "" && b.usedNames[name] {
		return chainevm.NewRevertError("ScreenNameAlreadyUsed", name)
	}
	return nil
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(ChainID), nil
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.block, nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	n := number
	if n == nil {
		b.mu.Lock()
		n = new(big.Int).SetUint64(b.block)
		b.mu.Unlock()
	}
	return &types.Header{Number: n, Time: 1_700_000_000 + n.Uint64()}, nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CallErr != nil {
		return nil, b.CallErr
	}
	if len(msg.Data) < 4 {
		return nil, errors.New("empty calldata")
	}

	method, err := chainevm.ParsedABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "hasUserClaimed":
		_, ok := b.claimed[args[0].(common.Address)]
		return method.Outputs.Pack(ok)
	case "isScreenNameUsed":
		return method.Outputs.Pack(b.usedNames[args[0].(string)])
	case "getUserClaimStatus":
		addr := args[0].(common.Address)
		nftID, ok := b.claimed[addr]
		tokenIDs := []*big.Int{}
		nftIDs := []*big.Int{}
		for _, id := range b.tokens[addr] {
			tokenIDs = append(tokenIDs, new(big.Int).SetUint64(id))
			nftIDs = append(nftIDs, new(big.Int).SetUint64(nftID))
		}
		return method.Outputs.Pack(ok, tokenIDs, nftIDs, big.NewInt(int64(len(tokenIDs))))
	case "getContractStatus":
		remaining := uint64(0)
		if b.TotalSupply > b.totalClaimed {
			remaining = b.TotalSupply - b.totalClaimed
		}
		return method.Outputs.Pack(
			new(big.Int).SetUint64(b.totalClaimed),
			new(big.Int).SetUint64(b.TotalSupply),
			new(big.Int).SetUint64(remaining),
			new(big.Int).SetUint64(b.MaxNftID),
		)
	case "getClaimedCount":
		return method.Outputs.Pack(new(big.Int).SetUint64(b.perNft[args[0].(*big.Int).Uint64()]))
	case "getRemainingSupply":
		remaining := uint64(0)
		if b.TotalSupply > b.totalClaimed {
			remaining = b.TotalSupply - b.totalClaimed
		}
		return method.Outputs.Pack(new(big.Int).SetUint64(remaining))
	}
	return nil, fmt.Errorf("method %s is not a view", method.Name)
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if b.EstimateLatency > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(b.EstimateLatency):
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.EstimateCalls++
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	if err := b.checkClaim(msg.From, msg.Data); err != nil {
		return 0, err
	}
	return 180_000, nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(50_000_000_000), nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil {
		return b.SendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(ChainID)), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != b.nonces[from] {
		return fmt.Errorf("nonce too low")
	}
	b.nonces[from]++
	b.sent = append(b.sent, tx)
	if !b.HoldReceipts {
		b.mine(tx)
	}
	return nil
}

func (b *Backend) mine(tx *types.Transaction) {
	b.block++
	status := types.ReceiptStatusSuccessful
	from, _ := types.Sender(types.LatestSignerForChainID(big.NewInt(ChainID)), tx)
	if b.RevertOnMine || b.checkClaim(from, tx.Data()) != nil {
		status = types.ReceiptStatusFailed
	} else {
		att, nftID, _ := chainevm.UnpackClaim(tx.Data())
		b.applyClaim(from, nftID, identityOf(att))
	}
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(b.block),
		GasUsed:     tx.Gas() / 2,
	}
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ReceiptErr != nil {
		return nil, b.ReceiptErr
	}
	r, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// NewKey returns a fresh secp256k1 key and its address.
func NewKey() (*ecdsa.PrivateKey, common.Address) {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}
