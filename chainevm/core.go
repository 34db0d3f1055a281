package chainevm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultChainID     = 10143 // Monad testnet
	DefaultRPCURL      = "https://testnet-rpc.monad.xyz"
	DefaultExplorerURL = "https://testnet.monadexplorer.com"
)

// Backend is the subset of *ethclient.Client the claim flow needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type EVMChain struct {
	client   Backend
	contract common.Address
	chainID  int64
	network  string
	explorer string
	limiter  *rate.Limiter
	logger   *zap.Logger
}

type Config struct {
	RPCURL          string
	ChainID         int64
	Network         string
	ContractAddress string
	ExplorerURL     string
	// RateLimit caps read calls per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	Logger    *zap.Logger
}

// NewEVMChain - Dial the RPC endpoint and bind the claim contract
func NewEVMChain(config Config) (*EVMChain, error) {
	if config.RPCURL == "" {
		config.RPCURL = DefaultRPCURL
	}
	client, err := ethclient.Dial(config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", config.RPCURL, err)
	}
	return NewEVMChainWithBackend(client, config)
}

// NewEVMChainWithBackend binds an existing backend, used by tests and by callers
// that manage their own client.
func NewEVMChainWithBackend(backend Backend, config Config) (*EVMChain, error) {
	if config.Network == "" {
		config.Network = "testnet"
	}
	if config.ChainID == 0 {
		config.ChainID = DefaultChainID
	}
	if config.ExplorerURL == "" {
		config.ExplorerURL = DefaultExplorerURL
	}
	if !IsValidContractAddress(config.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", config.ContractAddress)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &EVMChain{
		client:   backend,
		contract: common.HexToAddress(config.ContractAddress),
		chainID:  config.ChainID,
		network:  config.Network,
		explorer: strings.TrimSuffix(config.ExplorerURL, "/"),
		limiter:  limiter,
		logger:   config.Logger,
	}, nil
}

// IsValidContractAddress - 0x followed by 40 hex characters
func IsValidContractAddress(address string) bool {
	return len(address) == 42 && strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

func (c *EVMChain) ChainID() *big.Int { return big.NewInt(c.chainID) }

func (c *EVMChain) ContractAddress() common.Address { return c.contract }

func (c *EVMChain) Backend() Backend { return c.client }

// GetExplorerURL - Generate explorer URL
func (c *EVMChain) GetExplorerURL(txHash string) string {
	return c.explorer + "/tx/" + txHash
}

// HealthCheck verifies the node answers and sits on the configured chain.
func (c *EVMChain) HealthCheck(ctx context.Context) error {
	id, err := c.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("%s health check failed: %w", c.network, err)
	}
	if id.Int64() != c.chainID {
		return fmt.Errorf("%s health check failed: node reports chain %s, want %d", c.network, id, c.chainID)
	}
	return nil
}

func (c *EVMChain) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
