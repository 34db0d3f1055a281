package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/attestation"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claim"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/config"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/eligibility"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/history"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/lottery"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/orchestrator"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/server"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("❌ logger: %v", err)
	}
	defer logger.Sync()

	// Initialize ledger client
	evmConfig := cfg.EVM()
	evmConfig.Logger = logger.Named("chain")
	chain, err := chainevm.NewEVMChain(evmConfig)
	if err != nil {
		logger.Fatal("failed to connect ledger", zap.Error(err))
	}

	// Health check
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = chain.HealthCheck(ctx)
	cancel()
	if err != nil {
		logger.Fatal("ledger health check failed", zap.Error(err))
	}

	// Attestation client
	opts := []attestation.Option{
		attestation.WithTemplateID(cfg.TemplateID),
		attestation.WithLogger(logger.Named("attestation")),
	}
	if attestors := cfg.AttestorAddresses(); attestors != nil {
		opts = append(opts, attestation.WithAttestors(attestors...))
	}
	attester, err := attestation.Init(cfg.AppID, cfg.AppSecret, attestation.NewHTTPProver(cfg.AttestationURL), opts...)
	if err != nil {
		logger.Fatal("failed to init attestation client", zap.Error(err))
	}

	checker := eligibility.NewChecker(chain, logger.Named("eligibility"))
	checker.ReadTimeout = cfg.LedgerCallTimeout
	submitter := claim.NewSubmitter(chain, checker, logger.Named("claim"))
	submitter.ConfirmTimeout = cfg.ConfirmTimeout
	submitter.PollInterval = cfg.PollInterval
	submitter.FallbackGasLimit = cfg.FallbackGasLimit
	submitter.GasMarginPercent = cfg.GasMarginPercent
	submitter.EstimateTimeout = cfg.LedgerCallTimeout

	store, err := history.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("failed to open claim history", zap.Error(err))
	}
	defer store.Close()

	// Server-side signing is for local testing only.
	var signer claim.Signer
	if cfg.SignerKey != "" {
		keySigner, err := claim.KeySignerFromHex(cfg.SignerKey)
		if err != nil {
			logger.Fatal("invalid signer key", zap.Error(err))
		}
		signer = keySigner
		logger.Warn("server-side signer enabled, TESTING ONLY", zap.String("address", keySigner.Address().Hex()))
	}

	orch := orchestrator.New(
		lottery.NewDrawer(lottery.DefaultPrizeTable()),
		attester,
		submitter,
		orchestrator.WithRecorder(store),
		orchestrator.WithLogger(logger.Named("session")),
	)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			orch.Prune(cfg.SessionIdleTimeout)
		}
	}()

	srv := server.New(server.Config{
		Orchestrator: orch,
		Chain:        chain,
		Checker:      checker,
		History:      store,
		Signer:       signer,
		Logger:       logger,
	})

	logger.Info("🚀 claim server starting",
		zap.String("port", cfg.Port),
		zap.String("network", cfg.Network),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("contract", chain.ContractAddress().Hex()))

	if err := http.ListenAndServe(":"+cfg.Port, srv.Routes()); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
