// Package orchestrator drives one user's claim session:
// draw, attest, submit and confirm, strictly in sequence.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/attestation"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claim"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claimerr"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/history"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/lottery"
)

type State string

const (
	StateIdle      State = "idle"
	StateDrawn     State = "drawn"
	StateAttesting State = "attesting"
	StateVerified  State = "verified"
	StateClaiming  State = "claiming"
	StateClaimed   State = "claimed"
	StateFailed    State = "failed"
)

type EventType string

const (
	EventAttestingStarted    EventType = "attesting-started"
	EventAttestationVerified EventType = "attestation-verified"
	EventClaimSubmitted      EventType = "claim-submitted"
	EventClaimConfirmed      EventType = "claim-confirmed"
)

// Event - Progress notification emitted during Claim
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	SlotID    int       `json:"slot_id"`
	TxHash    string    `json:"tx_hash,omitempty"`
	At        time.Time `json:"at"`
}

type ProgressFunc func(Event)

var (
	// ErrNotDrawn is returned by Claim when no outcome has been drawn.
	ErrNotDrawn = errors.New("claim requires a draw first")
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("operation not allowed in current session state")
	// ErrCancelled is returned by a Claim whose session was cancelled or reset meanwhile.
	ErrCancelled = errors.New("claim session was cancelled")
)

// Attester obtains a locally verified attestation bound to address.
type Attester interface {
	ObtainAttestation(ctx context.Context, address string) (*attestation.Attestation, error)
}

// Submitter broadcasts a claim and waits for its confirmation.
type Submitter interface {
	Send(ctx context.Context, signer claim.Signer, att *attestation.Attestation, slotID int, address string) (*claim.Broadcast, error)
	Await(ctx context.Context, sent *claim.Broadcast) (*claim.Receipt, error)
}

// Recorder persists claim outcomes. Optional.
type Recorder interface {
	Record(ctx context.Context, rec *history.ClaimRecord) error
}

// Snapshot - Read-only view of a session
type Snapshot struct {
	ID        string              `json:"id"`
	Address   string              `json:"address"`
	State     State               `json:"state"`
	Draw      *lottery.DrawResult `json:"draw,omitempty"`
	Verified  bool                `json:"attestation_verified"`
	Receipt   *claim.Receipt      `json:"receipt,omitempty"`
	Error     *claimerr.Error     `json:"error,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Session is a single claim flow for one connected wallet. Claim runs on the
// caller's goroutine; Cancel, Reset and Snapshot are safe to call concurrently.
type Session struct {
	mu sync.Mutex

	id      string
	address string
	signer  claim.Signer

	drawer    *lottery.Drawer
	attester  Attester
	submitter Submitter
	recorder  Recorder
	logger    *zap.Logger
	now       func() time.Time

	state     State
	draw      *lottery.DrawResult
	att       *attestation.Attestation
	receipt   *claim.Receipt
	lastErr   *claimerr.Error
	updatedAt time.Time

	// generation changes on Reset and Cancel so a stale Claim cannot write back.
	generation uint64
	cancel     context.CancelFunc
}

func (s *Session) ID() string { return s.id }

func (s *Session) Address() string { return s.address }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:        s.id,
		Address:   s.address,
		State:     s.state,
		Verified:  s.att != nil,
		Receipt:   s.receipt,
		Error:     s.lastErr,
		UpdatedAt: s.updatedAt,
	}
	if s.draw != nil {
		d := *s.draw
		snap.Draw = &d
	}
	return snap
}

// Draw fixes the outcome for this session. Allowed from Idle, and from Drawn
// to re-spin before a claim starts.
func (s *Session) Draw() (lottery.DrawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle && s.state != StateDrawn {
		return lottery.DrawResult{}, ErrInvalidState
	}
	res := s.drawer.Draw()
	s.draw = &res
	s.setState(StateDrawn)
	s.logger.Info("outcome drawn", zap.Int("slot", res.SlotID))
	return res, nil
}

// Claim attests the connected identity and submits the drawn outcome. It is
// valid from Drawn, or from Failed when the previous error was recoverable.
// Errors other than ErrNotDrawn, ErrInvalidState and ErrCancelled are *claimerr.Error.
func (s *Session) Claim(ctx context.Context, progress ProgressFunc) (*claim.Receipt, error) {
	if progress == nil {
		progress = func(Event) {}
	}

	s.mu.Lock()
	switch {
	case s.state == StateIdle || s.draw == nil:
		s.mu.Unlock()
		return nil, ErrNotDrawn
	case s.state == StateDrawn:
	case s.state == StateFailed && s.lastErr != nil && s.lastErr.Recoverable():
	default:
		s.mu.Unlock()
		return nil, ErrInvalidState
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	gen := s.generation
	slotID := s.draw.SlotID
	att := s.att
	s.lastErr = nil
	// Leave Drawn/Failed under the same lock so a concurrent Claim is refused.
	if att == nil {
		s.setState(StateAttesting)
	} else {
		s.setState(StateVerified)
	}
	s.mu.Unlock()

	log := s.logger.With(zap.Int("slot", slotID))

	if att == nil {
		progress(s.event(EventAttestingStarted, slotID, ""))

		var err error
		att, err = s.attester.ObtainAttestation(ctx, s.address)
		if err != nil {
			return nil, s.fail(ctx, gen, slotID, "", err)
		}
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil, ErrCancelled
	}
	s.att = att
	s.setState(StateVerified)
	s.mu.Unlock()
	progress(s.event(EventAttestationVerified, slotID, ""))

	if !s.transition(gen, StateClaiming) {
		return nil, ErrCancelled
	}
	sent, err := s.submitter.Send(ctx, s.signer, att, slotID, s.address)
	if err != nil {
		return nil, s.fail(ctx, gen, slotID, "", err)
	}
	txHash := sent.Hash.Hex()
	progress(s.event(EventClaimSubmitted, slotID, txHash))
	s.record(ctx, &history.ClaimRecord{SlotID: slotID, TxHash: txHash, Status: history.StatusPending})

	receipt, err := s.submitter.Await(ctx, sent)
	if err != nil {
		return nil, s.fail(ctx, gen, slotID, txHash, err)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		log.Info("claim confirmed after session was abandoned", zap.String("tx", txHash))
		return nil, ErrCancelled
	}
	s.receipt = receipt
	s.cancel = nil
	s.setState(StateClaimed)
	s.mu.Unlock()

	confirmedAt := s.now()
	s.record(ctx, &history.ClaimRecord{
		SlotID:      slotID,
		TxHash:      txHash,
		Status:      history.StatusConfirmed,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
		ConfirmedAt: &confirmedAt,
	})
	progress(s.event(EventClaimConfirmed, slotID, txHash))
	log.Info("claim completed", zap.String("tx", txHash))
	return receipt, nil
}

// Cancel abandons tracking of an in-flight claim and discards the session
// state. A transaction already broadcast is not reverted.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("session cancelled", zap.String("state", string(s.state)))
	s.discard()
}

// Reset returns the session to Idle from any state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discard()
}

func (s *Session) discard() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.draw = nil
	s.att = nil
	s.receipt = nil
	s.lastErr = nil
	s.setState(StateIdle)
}

// transition moves to state unless the session was reset meanwhile.
func (s *Session) transition(gen uint64, state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.setState(state)
	return true
}

func (s *Session) setState(state State) {
	s.state = state
	s.updatedAt = s.now()
}

// fail classifies err, moves to Failed and records the outcome. A verified
// attestation is kept so a recoverable retry skips the proof step.
func (s *Session) fail(ctx context.Context, gen uint64, slotID int, txHash string, err error) error {
	ce, ok := claimerr.As(err)
	if !ok {
		ce = claimerr.Network("claim could not be completed", err)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return ErrCancelled
	}
	s.lastErr = ce
	s.cancel = nil
	if !ce.Recoverable() {
		s.att = nil
	}
	s.setState(StateFailed)
	s.mu.Unlock()

	s.logger.Warn("claim failed",
		zap.Int("slot", slotID),
		zap.String("kind", string(ce.Kind)),
		zap.String("reason", ce.Reason),
		zap.Error(ce.Cause))

	if txHash == "" {
		txHash = ce.TxHash
	}
	status := history.StatusFailed
	if ce.Kind == claimerr.KindPending {
		status = history.StatusPending
	}
	rec := &history.ClaimRecord{
		SlotID:    slotID,
		TxHash:    txHash,
		Status:    status,
		ErrorKind: string(ce.Kind),
	}
	if ce.Cause != nil {
		rec.ErrorMessage = ce.Cause.Error()
	}
	s.record(ctx, rec)
	return ce
}

func (s *Session) record(ctx context.Context, rec *history.ClaimRecord) {
	if s.recorder == nil {
		return
	}
	rec.SessionID = s.id
	rec.Address = s.address
	// The claim context may already be cancelled; history writes are local and short.
	if err := s.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record claim history", zap.Error(err))
	}
}

func (s *Session) event(t EventType, slotID int, txHash string) Event {
	return Event{Type: t, SessionID: s.id, SlotID: slotID, TxHash: txHash, At: s.now()}
}

func newSessionID() string {
	return uuid.NewString()
}
