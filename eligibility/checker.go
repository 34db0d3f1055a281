package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm"
)

// Reasons reported to the user
const (
	ReasonSupplyExhausted = "all NFTs have been claimed"
	ReasonAlreadyClaimed  = "this address has already claimed, each address may claim once"
	ReasonUnavailable     = "unable to confirm eligibility, please try again"
)

// ReasonInvalidSlot formats the out-of-range slot reason.
func ReasonInvalidSlot(maxSlotID uint64) string {
	return fmt.Sprintf("invalid NFT id, the maximum id is %d", maxSlotID)
}

// StateReader is the read-only ledger surface the checker needs.
type StateReader interface {
	GetContractStatus(ctx context.Context) (*chainevm.ContractStatus, error)
	HasUserClaimed(ctx context.Context, user common.Address) (bool, error)
}

// Snapshot - Ledger state the decision was based on
type Snapshot struct {
	TotalClaimed            uint64 `json:"total_claimed"`
	TotalSupply             uint64 `json:"total_supply"`
	MaxSlotID               uint64 `json:"max_slot_id"`
	AlreadyClaimedByAddress bool   `json:"already_claimed_by_address"`
}

// Result of an eligibility check. ReadFailed marks results that could not be
// established because the ledger could not be read; they are worth retrying.
type Result struct {
	CanClaim   bool     `json:"can_claim"`
	Reasons    []string `json:"reasons"`
	Snapshot   Snapshot `json:"snapshot"`
	ReadFailed bool     `json:"read_failed"`
}

const DefaultReadTimeout = 15 * time.Second

type Checker struct {
	reader StateReader
	logger *zap.Logger

	// ReadTimeout bounds the ledger reads of one check.
	ReadTimeout time.Duration
}

func NewChecker(reader StateReader, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{reader: reader, logger: logger, ReadTimeout: DefaultReadTimeout}
}

// CheckEligibility reads fresh ledger state and evaluates every condition, so
// all blocking reasons come back together. It never returns an error.
func (c *Checker) CheckEligibility(ctx context.Context, address common.Address, slotID int) Result {
	log := c.logger.With(zap.String("address", address.Hex()), zap.Int("slot", slotID))
	if c.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ReadTimeout)
		defer cancel()
	}

	status, err := c.reader.GetContractStatus(ctx)
	if err != nil {
		log.Warn("eligibility read failed", zap.String("read", "contract_status"), zap.Error(err))
		return unavailable()
	}
	claimed, err := c.reader.HasUserClaimed(ctx, address)
	if err != nil {
		log.Warn("eligibility read failed", zap.String("read", "has_user_claimed"), zap.Error(err))
		return unavailable()
	}

	snapshot := Snapshot{
		TotalClaimed:            status.TotalClaimed,
		TotalSupply:             status.TotalSupply,
		MaxSlotID:               status.MaxNftID,
		AlreadyClaimedByAddress: claimed,
	}

	reasons := []string{}
	if snapshot.TotalClaimed >= snapshot.TotalSupply {
		reasons = append(reasons, ReasonSupplyExhausted)
	}
	if slotID < 1 || uint64(slotID) > snapshot.MaxSlotID {
		reasons = append(reasons, ReasonInvalidSlot(snapshot.MaxSlotID))
	}
	if claimed {
		reasons = append(reasons, ReasonAlreadyClaimed)
	}

	res := Result{
		CanClaim: len(reasons) == 0,
		Reasons:  reasons,
		Snapshot: snapshot,
	}
	log.Debug("eligibility checked", zap.Bool("can_claim", res.CanClaim), zap.Strings("reasons", reasons))
	return res
}

func unavailable() Result {
	return Result{
		CanClaim:   false,
		Reasons:    []string{ReasonUnavailable},
		ReadFailed: true,
	}
}
