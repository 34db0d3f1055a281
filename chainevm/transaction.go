package chainevm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ErrConfirmationTimeout is returned when a transaction is still unmined after the wait.
var ErrConfirmationTimeout = errors.New("timeout waiting for confirmation")

// ErrReverted - Transaction mined with a failed status
var ErrReverted = errors.New("transaction reverted")

// EstimateClaimGas estimates claimNFT calldata sent from the given account.
func (c *EVMChain) EstimateClaimGas(ctx context.Context, from common.Address, data []byte) (uint64, error) {
	contract := c.contract
	return c.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &contract, Data: data})
}

// BuildClaimTransaction - Create unsigned claimNFT transaction
func (c *EVMChain) BuildClaimTransaction(ctx context.Context, from common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	// Get nonce
	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	// Get gas price
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	contract := c.contract
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &contract,
		Value:    big.NewInt(0),
		Data:     data,
	}), nil
}

// SendSignedTransaction broadcasts a signed transaction.
func (c *EVMChain) SendSignedTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.client.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to send transaction: %w", err)
	}
	c.logger.Info("transaction sent",
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("gas", tx.Gas()),
		zap.String("explorer", c.GetExplorerURL(tx.Hash().Hex())))
	return nil
}

// WaitForConfirmation - Poll for the receipt until it is mined or timeout elapses.
// A mined but reverted receipt is returned together with ErrReverted.
func (c *EVMChain) WaitForConfirmation(ctx context.Context, hash common.Hash, timeout, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, ErrReverted
			}
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			if lastErr != nil {
				return nil, fmt.Errorf("%w after %s: %w", ErrConfirmationTimeout, timeout, lastErr)
			}
			return nil, fmt.Errorf("%w after %s", ErrConfirmationTimeout, timeout)
		case <-ticker.C:
		}
	}
}

// GetTransactionStatus - Check transaction status
func (c *EVMChain) GetTransactionStatus(ctx context.Context, txHash string) (*TransactionStatusResponse, error) {
	hash := common.HexToHash(txHash)

	response := &TransactionStatusResponse{
		TxHash:      txHash,
		ExplorerURL: c.GetExplorerURL(txHash),
	}

	// Get transaction receipt
	receipt, err := c.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			response.Status = StatusNotFound
			return response, nil
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	// Check status
	if receipt.Status == types.ReceiptStatusSuccessful {
		response.Status = StatusConfirmed
	} else {
		response.Status = StatusFailed
		errMsg := ErrReverted.Error()
		response.Error = &errMsg
	}

	response.BlockNumber = receipt.BlockNumber.Uint64()
	response.GasUsed = receipt.GasUsed

	// Get header for timestamp
	header, err := c.client.HeaderByNumber(ctx, receipt.BlockNumber)
	if err == nil {
		blockTime := header.Time
		response.BlockTime = &blockTime
	}

	// Get current block for confirmations
	currentBlock, err := c.client.BlockNumber(ctx)
	if err == nil && currentBlock >= response.BlockNumber {
		response.Confirmations = currentBlock - response.BlockNumber + 1
	}

	return response, nil
}
