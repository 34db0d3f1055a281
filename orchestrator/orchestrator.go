package orchestrator

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claim"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/lottery"
)

var ErrSessionNotFound = errors.New("session not found")

// Orchestrator creates sessions over shared, stateless dependencies and keeps
// an index of live sessions. Sessions share no mutable state with each other.
type Orchestrator struct {
	drawer    *lottery.Drawer
	attester  Attester
	submitter Submitter
	recorder  Recorder
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

type Option func(*Orchestrator)

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(drawer *lottery.Drawer, attester Attester, submitter Submitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		drawer:    drawer,
		attester:  attester,
		submitter: submitter,
		logger:    zap.NewNop(),
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewSession starts an Idle session for the connected wallet.
func (o *Orchestrator) NewSession(address string, signer claim.Signer) (*Session, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return nil, errors.New("invalid wallet address")
	}
	id := newSessionID()
	s := &Session{
		id:        id,
		address:   common.HexToAddress(address).Hex(),
		signer:    signer,
		drawer:    o.drawer,
		attester:  o.attester,
		submitter: o.submitter,
		recorder:  o.recorder,
		logger:    o.logger.With(zap.String("session", id), zap.String("address", address)),
		now:       o.now,
	}
	s.setState(StateIdle)

	o.mu.Lock()
	o.sessions[id] = s
	o.mu.Unlock()
	return s, nil
}

func (o *Orchestrator) Session(id string) (*Session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close cancels the session and forgets it.
func (o *Orchestrator) Close(id string) {
	o.mu.Lock()
	s, ok := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()
	if ok {
		s.Cancel()
	}
}

// Prune closes sessions untouched for longer than idle. Sessions waiting on
// attestation or a claim transaction are kept. It returns how many were removed.
func (o *Orchestrator) Prune(idle time.Duration) int {
	cutoff := o.now().Add(-idle)

	o.mu.Lock()
	var stale []*Session
	for id, s := range o.sessions {
		snap := s.Snapshot()
		if snap.State == StateAttesting || snap.State == StateClaiming {
			continue
		}
		if snap.UpdatedAt.Before(cutoff) {
			stale = append(stale, s)
			delete(o.sessions, id)
		}
	}
	o.mu.Unlock()

	for _, s := range stale {
		s.Cancel()
	}
	if len(stale) > 0 {
		o.logger.Info("pruned idle sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Len returns the number of live sessions.
func (o *Orchestrator) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}
