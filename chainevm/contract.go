package chainevm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/attestation"
)

// call packs a view method, runs eth_call against the latest block and unpacks the result.
func (c *EVMChain) call(ctx context.Context, method string, args ...any) ([]any, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	data, err := ParsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	contract := c.contract
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		c.logger.Debug("contract call failed", zap.String("method", method), zap.Error(err))
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	values, err := ParsedABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", method, err)
	}
	return values, nil
}

func asBig(v any, method string) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to decode %s: unexpected %T", method, v)
	}
	return n, nil
}

func asBool(v any, method string) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("failed to decode %s: unexpected %T", method, v)
	}
	return b, nil
}

func toUint64s(ns []*big.Int) []uint64 {
	out := make([]uint64, len(ns))
	for i, n := range ns {
		out[i] = n.Uint64()
	}
	return out
}

// HasUserClaimed - Whether the address already holds a claim
func (c *EVMChain) HasUserClaimed(ctx context.Context, user common.Address) (bool, error) {
	values, err := c.call(ctx, "hasUserClaimed", user)
	if err != nil {
		return false, err
	}
	return asBool(values[0], "hasUserClaimed")
}

// IsScreenNameUsed - Whether the attested identity has already been consumed
func (c *EVMChain) IsScreenNameUsed(ctx context.Context, screenName string) (bool, error) {
	values, err := c.call(ctx, "isScreenNameUsed", screenName)
	if err != nil {
		return false, err
	}
	return asBool(values[0], "isScreenNameUsed")
}

// GetUserClaimStatus - Claim flag and owned token ids for an address
func (c *EVMChain) GetUserClaimStatus(ctx context.Context, user common.Address) (*UserClaimStatus, error) {
	values, err := c.call(ctx, "getUserClaimStatus", user)
	if err != nil {
		return nil, err
	}
	claimed, err := asBool(values[0], "getUserClaimStatus")
	if err != nil {
		return nil, err
	}
	tokenIDs, ok := values[1].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to decode getUserClaimStatus: unexpected %T", values[1])
	}
	nftIDs, ok := values[2].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to decode getUserClaimStatus: unexpected %T", values[2])
	}
	owned, err := asBig(values[3], "getUserClaimStatus")
	if err != nil {
		return nil, err
	}
	return &UserClaimStatus{
		Claimed:         claimed,
		TokenIDs:        toUint64s(tokenIDs),
		NftIDs:          toUint64s(nftIDs),
		TotalOwnedCount: owned.Uint64(),
	}, nil
}

// GetContractStatus - Aggregate supply counters
func (c *EVMChain) GetContractStatus(ctx context.Context) (*ContractStatus, error) {
	values, err := c.call(ctx, "getContractStatus")
	if err != nil {
		return nil, err
	}
	nums := make([]uint64, 4)
	for i := range nums {
		n, err := asBig(values[i], "getContractStatus")
		if err != nil {
			return nil, err
		}
		nums[i] = n.Uint64()
	}
	return &ContractStatus{
		TotalClaimed:    nums[0],
		TotalSupply:     nums[1],
		RemainingSupply: nums[2],
		MaxNftID:        nums[3],
	}, nil
}

// GetClaimedCount - Number of claims for a single NFT id
func (c *EVMChain) GetClaimedCount(ctx context.Context, nftID uint64) (uint64, error) {
	values, err := c.call(ctx, "getClaimedCount", new(big.Int).SetUint64(nftID))
	if err != nil {
		return 0, err
	}
	n, err := asBig(values[0], "getClaimedCount")
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// GetRemainingSupply - Unclaimed supply
func (c *EVMChain) GetRemainingSupply(ctx context.Context) (uint64, error) {
	values, err := c.call(ctx, "getRemainingSupply")
	if err != nil {
		return 0, err
	}
	n, err := asBig(values[0], "getRemainingSupply")
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// BatchHasUserClaimed checks several addresses one after the other. It stops at
// the first failed read.
func (c *EVMChain) BatchHasUserClaimed(ctx context.Context, users []common.Address) ([]bool, error) {
	out := make([]bool, len(users))
	for i, u := range users {
		claimed, err := c.HasUserClaimed(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("address %s: %w", u.Hex(), err)
		}
		out[i] = claimed
	}
	return out, nil
}

// PackClaim encodes claimNFT(attestation, nftId) calldata.
func PackClaim(att *attestation.Attestation, nftID uint64) ([]byte, error) {
	if att == nil {
		return nil, fmt.Errorf("attestation is required")
	}
	data, err := ParsedABI.Pack("claimNFT", *att, new(big.Int).SetUint64(nftID))
	if err != nil {
		return nil, fmt.Errorf("failed to pack claimNFT: %w", err)
	}
	return data, nil
}

// UnpackClaim decodes claimNFT calldata back into its arguments.
func UnpackClaim(data []byte) (*attestation.Attestation, uint64, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("calldata too short")
	}
	method, err := ParsedABI.MethodById(data[:4])
	if err != nil {
		return nil, 0, err
	}
	if method.Name != "claimNFT" {
		return nil, 0, fmt.Errorf("unexpected method %s", method.Name)
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, 0, fmt.Errorf("failed to unpack claimNFT: %w", err)
	}

	var args struct {
		Attestation attestation.Attestation
		NftId       *big.Int
	}
	if err := method.Inputs.Copy(&args, values); err != nil {
		return nil, 0, fmt.Errorf("failed to copy claimNFT args: %w", err)
	}
	return &args.Attestation, args.NftId.Uint64(), nil
}
