// Package server exposes claim sessions and ledger lookups over HTTP.
package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claim"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/eligibility"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/history"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/orchestrator"
)

type Server struct {
	orch    *orchestrator.Orchestrator
	chain   *chainevm.EVMChain
	checker *eligibility.Checker
	history *history.Store
	// signer signs claims on behalf of sessions. TESTING PURPOSE ONLY;
	// production wallets sign in the browser.
	signer claim.Signer
	logger *zap.Logger
}

type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Chain        *chainevm.EVMChain
	Checker      *eligibility.Checker
	History      *history.Store
	Signer       claim.Signer
	Logger       *zap.Logger
}

func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Server{
		orch:    config.Orchestrator,
		chain:   config.Chain,
		checker: config.Checker,
		history: config.History,
		signer:  config.Signer,
		logger:  config.Logger,
	}
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Session routes
	mux.HandleFunc("/api/v1/session", s.HandleSession)
	mux.HandleFunc("/api/v1/session/draw", s.HandleDraw)
	mux.HandleFunc("/api/v1/session/claim", s.HandleClaim)
	mux.HandleFunc("/api/v1/session/reset", s.HandleReset)
	mux.HandleFunc("/api/v1/session/cancel", s.HandleCancel)

	// Ledger routes
	mux.HandleFunc("/api/v1/eligibility", s.HandleEligibility)
	mux.HandleFunc("/api/v1/contract/status", s.HandleContractStatus)
	mux.HandleFunc("/api/v1/transaction/status", s.HandleTransactionStatus)
	mux.HandleFunc("/api/v1/claims/history", s.HandleClaimHistory)

	mux.HandleFunc("/health", s.HandleHealth)
	return mux
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, chainevm.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}, status)
}
