package lottery

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Prize - One slot of the lottery grid and its draw weight
type Prize struct {
	SlotID int     `json:"slot_id"`
	Weight float64 `json:"weight"`
}

// PrizeTable is an ordered, immutable list of prizes. Build it with NewPrizeTable.
type PrizeTable struct {
	prizes []Prize
}

// DrawResult - Outcome of a single draw
type DrawResult struct {
	SlotID     int       `json:"slot_id"`
	SelectedAt time.Time `json:"selected_at"`
}

var ErrEmptyTable = errors.New("prize table is empty")

// NewPrizeTable validates and copies the given prizes.
// Weights must be finite and in [0,1]; the total may fall short of 1,
// in which case the residual is drawn as the last slot.
func NewPrizeTable(prizes ...Prize) (PrizeTable, error) {
	if len(prizes) == 0 {
		return PrizeTable{}, ErrEmptyTable
	}

	seen := make(map[int]bool, len(prizes))
	for _, p := range prizes {
		if math.IsNaN(p.Weight) || p.Weight < 0 || p.Weight > 1 {
			return PrizeTable{}, fmt.Errorf("invalid weight %v for slot %d", p.Weight, p.SlotID)
		}
		if seen[p.SlotID] {
			return PrizeTable{}, fmt.Errorf("duplicate slot %d", p.SlotID)
		}
		seen[p.SlotID] = true
	}

	copied := make([]Prize, len(prizes))
	copy(copied, prizes)
	return PrizeTable{prizes: copied}, nil
}

// MustPrizeTable is NewPrizeTable that panics on invalid input.
func MustPrizeTable(prizes ...Prize) PrizeTable {
	t, err := NewPrizeTable(prizes...)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultPrizeTable - The eight KUNKUN slots
func DefaultPrizeTable() PrizeTable {
	return MustPrizeTable(
		Prize{SlotID: 1, Weight: 0.05},
		Prize{SlotID: 2, Weight: 0.1},
		Prize{SlotID: 3, Weight: 0.15},
		Prize{SlotID: 4, Weight: 0.2},
		Prize{SlotID: 5, Weight: 0.08},
		Prize{SlotID: 6, Weight: 0.12},
		Prize{SlotID: 7, Weight: 0.18},
		Prize{SlotID: 8, Weight: 0.12},
	)
}

// Prizes returns a copy of the table entries.
func (t PrizeTable) Prizes() []Prize {
	out := make([]Prize, len(t.prizes))
	copy(out, t.prizes)
	return out
}

func (t PrizeTable) Len() int { return len(t.prizes) }

// Contains reports whether slotID is one of the table's slots.
func (t PrizeTable) Contains(slotID int) bool {
	for _, p := range t.prizes {
		if p.SlotID == slotID {
			return true
		}
	}
	return false
}

// TotalWeight - Sum of all weights
func (t PrizeTable) TotalWeight() float64 {
	var sum float64
	for _, p := range t.prizes {
		sum += p.Weight
	}
	return sum
}

// Select draws one sample from rng and returns the first slot whose cumulative
// weight reaches it. When the weights sum to less than the sample the last slot
// is returned, even if its weight is zero, so Select always produces a slot.
func Select(table PrizeTable, rng func() float64) int {
	r := rng()
	var cumulative float64
	for _, p := range table.prizes {
		cumulative += p.Weight
		// zero-weight entries never win, not even for r == 0
		if p.Weight > 0 && r <= cumulative {
			return p.SlotID
		}
	}
	return table.prizes[len(table.prizes)-1].SlotID
}

// Drawer binds a table to a random source and a clock.
type Drawer struct {
	table PrizeTable
	rng   func() float64
	now   func() time.Time
}

type DrawerOption func(*Drawer)

// WithRand overrides the uniform [0,1) source.
func WithRand(rng func() float64) DrawerOption {
	return func(d *Drawer) { d.rng = rng }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) DrawerOption {
	return func(d *Drawer) { d.now = now }
}

// NewDrawer - Initialize a drawer, defaulting to math/rand/v2 and time.Now
func NewDrawer(table PrizeTable, opts ...DrawerOption) *Drawer {
	d := &Drawer{
		table: table,
		rng:   rand.Float64,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Drawer) Table() PrizeTable { return d.table }

// Draw commits to an outcome. Callers animate towards the returned slot afterwards.
func (d *Drawer) Draw() DrawResult {
	return DrawResult{
		SlotID:     Select(d.table, d.rng),
		SelectedAt: d.now(),
	}
}
