package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claim"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claimerr"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/history"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/lottery"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/orchestrator"
)

type CreateSessionRequest struct {
	Address string `json:"address"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// SessionResponse - Session state plus the result of the last operation
type SessionResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message,omitempty"`
	Session orchestrator.Snapshot `json:"session"`
	Draw    *lottery.DrawResult   `json:"draw,omitempty"`
	Receipt *claim.Receipt        `json:"receipt,omitempty"`
	Events  []orchestrator.Event  `json:"events,omitempty"`
	Error   *claimerr.Error       `json:"error,omitempty"`
}

// statusFor maps a classified failure to an HTTP status.
func statusFor(kind claimerr.Kind) int {
	switch kind {
	case claimerr.KindWallet:
		return http.StatusBadRequest
	case claimerr.KindAttestation:
		return http.StatusUnprocessableEntity
	case claimerr.KindIneligible, claimerr.KindDuplicateIdentity:
		return http.StatusConflict
	case claimerr.KindNetwork:
		return http.StatusServiceUnavailable
	case claimerr.KindPending:
		return http.StatusAccepted
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) decodeSession(w http.ResponseWriter, r *http.Request) (*orchestrator.Session, bool) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	session, err := s.orch.Session(req.SessionID)
	if err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return session, true
}

// HandleSession - POST /api/v1/session creates, GET /api/v1/session?id=xxx reads
func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		session, err := s.orch.NewSession(req.Address, s.signer)
		if err != nil {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondJSON(w, SessionResponse{Success: true, Session: session.Snapshot()}, http.StatusCreated)

	case http.MethodGet:
		id := r.URL.Query().Get("id")
		if id == "" {
			respondError(w, "id parameter required", http.StatusBadRequest)
			return
		}
		session, err := s.orch.Session(id)
		if err != nil {
			respondError(w, err.Error(), http.StatusNotFound)
			return
		}
		respondJSON(w, SessionResponse{Success: true, Session: session.Snapshot()}, http.StatusOK)

	default:
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleDraw - POST /api/v1/session/draw
func (s *Server) HandleDraw(w http.ResponseWriter, r *http.Request) {
	session, ok := s.decodeSession(w, r)
	if !ok {
		return
	}
	res, err := session.Draw()
	if err != nil {
		respondError(w, err.Error(), http.StatusConflict)
		return
	}
	respondJSON(w, SessionResponse{Success: true, Session: session.Snapshot(), Draw: &res}, http.StatusOK)
}

// HandleClaim - POST /api/v1/session/claim
// Runs the whole claim on the request; a client disconnect abandons tracking.
func (s *Server) HandleClaim(w http.ResponseWriter, r *http.Request) {
	session, ok := s.decodeSession(w, r)
	if !ok {
		return
	}

	var events []orchestrator.Event
	receipt, err := session.Claim(r.Context(), func(ev orchestrator.Event) {
		events = append(events, ev)
	})

	resp := SessionResponse{Events: events, Receipt: receipt}
	switch {
	case err == nil:
		resp.Success = true
		resp.Session = session.Snapshot()
		respondJSON(w, resp, http.StatusOK)
	case errors.Is(err, orchestrator.ErrNotDrawn), errors.Is(err, orchestrator.ErrInvalidState), errors.Is(err, orchestrator.ErrCancelled):
		respondError(w, err.Error(), http.StatusConflict)
	default:
		ce, ok := claimerr.As(err)
		if !ok {
			s.logger.Error("unclassified claim error", zap.Error(err))
			respondError(w, "Claim failed", http.StatusInternalServerError)
			return
		}
		resp.Message = ce.Reason
		resp.Error = ce
		resp.Session = session.Snapshot()
		respondJSON(w, resp, statusFor(ce.Kind))
	}
}

// HandleReset - POST /api/v1/session/reset
func (s *Server) HandleReset(w http.ResponseWriter, r *http.Request) {
	session, ok := s.decodeSession(w, r)
	if !ok {
		return
	}
	session.Reset()
	respondJSON(w, SessionResponse{Success: true, Session: session.Snapshot()}, http.StatusOK)
}

// HandleCancel - POST /api/v1/session/cancel
func (s *Server) HandleCancel(w http.ResponseWriter, r *http.Request) {
	session, ok := s.decodeSession(w, r)
	if !ok {
		return
	}
	// Cancelled sessions are closed; the client starts a new one.
	s.orch.Close(session.ID())
	respondJSON(w, SessionResponse{Success: true, Message: "claim tracking abandoned", Session: session.Snapshot()}, http.StatusOK)
}

// HandleEligibility - GET /api/v1/eligibility?address=xxx&slot_id=3
func (s *Server) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	address := r.URL.Query().Get("address")
	if !common.IsHexAddress(address) {
		respondError(w, "valid address parameter required", http.StatusBadRequest)
		return
	}
	slotID, err := strconv.Atoi(r.URL.Query().Get("slot_id"))
	if err != nil {
		respondError(w, "slot_id parameter must be an integer", http.StatusBadRequest)
		return
	}
	respondJSON(w, s.checker.CheckEligibility(r.Context(), common.HexToAddress(address), slotID), http.StatusOK)
}

// HandleContractStatus - GET /api/v1/contract/status
func (s *Server) HandleContractStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status, err := s.chain.GetContractStatus(r.Context())
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, status, http.StatusOK)
}

// HandleTransactionStatus - GET /api/v1/transaction/status?tx_hash=xxx
func (s *Server) HandleTransactionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	txHash := r.URL.Query().Get("tx_hash")
	if txHash == "" {
		respondError(w, "tx_hash parameter required", http.StatusBadRequest)
		return
	}
	result, err := s.chain.GetTransactionStatus(r.Context(), txHash)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, result, http.StatusOK)
}

// HandleClaimHistory - GET /api/v1/claims/history?address=xxx&limit=10
func (s *Server) HandleClaimHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		respondError(w, "claim history is not configured", http.StatusNotImplemented)
		return
	}
	address := r.URL.Query().Get("address")
	if address == "" {
		respondError(w, "address parameter required", http.StatusBadRequest)
		return
	}
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	records, err := s.history.ListByAddress(r.Context(), address, limit)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []history.ClaimRecord{}
	}
	respondJSON(w, records, http.StatusOK)
}

// HandleHealth - GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.chain.HealthCheck(r.Context()); err != nil {
		respondError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
