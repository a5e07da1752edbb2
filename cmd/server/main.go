// Trading control server — a pre-trade risk gate with a complete audit
// trail for algorithmic order flow.
//
// Architecture:
//
//	main.go                    — entry point: loads config, wires components, waits for SIGINT/SIGTERM
//	eventlog/log.go            — append-only audit log with correlation/order/type indexes
//	eventlog/archive.go        — JSONL mirror of the audit log on disk
//	eventlog/replay.go         — reconstructs order state from its event chain
//	risk/engine.go             — pre-trade limits, daily volume, kill switch
//	position/store.go          — signed per-symbol positions with weighted averages
//	execution/pipeline.go      — worker pool: breaker admission, bounded retries, fills
//	execution/breaker.go       — circuit breaker over the downstream venue
//	execution/idempotency.go   — fingerprint index that makes resubmission safe
//	coordinator/coordinator.go — drives the order state machine end to end
//	auth/auth.go               — seeded users, bcrypt, JWT bearer tokens
//	api/server.go              — HTTP/WebSocket surface with role-gated routes
//
// Every order decision — creation, risk verdict, execution outcome, position
// change — is an immutable event, so compliance can replay any order's
// lifecycle from the log alone.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tradecore/internal/api"
	"tradecore/internal/auth"
	"tradecore/internal/config"
	"tradecore/internal/coordinator"
	"tradecore/internal/eventlog"
	"tradecore/internal/execution"
	"tradecore/internal/position"
	"tradecore/internal/risk"
	"tradecore/pkg/types"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("TRADE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Audit log, optionally mirrored to a JSONL archive
	logOpts := []eventlog.Option{}
	if cfg.EventLog.MaxEvents > 0 {
		logOpts = append(logOpts, eventlog.WithCapacity(cfg.EventLog.MaxEvents))
	}
	var archive *eventlog.FileArchive
	if cfg.EventLog.ArchivePath != "" {
		archive, err = eventlog.OpenFileArchive(cfg.EventLog.ArchivePath)
		if err != nil {
			logger.Error("failed to open event archive", "error", err, "path", cfg.EventLog.ArchivePath)
			os.Exit(1)
		}
		defer archive.Close()
		logOpts = append(logOpts, eventlog.WithArchiver(archive))
	}
	eventLog := eventlog.New(logger, logOpts...)

	// Positions and risk
	positions := position.NewStore()
	limits, err := cfg.Risk.Limits()
	if err != nil {
		logger.Error("invalid risk limits", "error", err)
		os.Exit(1)
	}
	riskEngine := risk.NewEngine(limits, positions, eventLog, logger)

	// Execution: executor, breaker, worker pipeline
	var executor execution.Executor
	switch cfg.Execution.Mode {
	case "rest":
		executor = execution.NewRESTExecutor(execution.RESTConfig{
			BaseURL: cfg.Execution.BaseURL,
			APIKey:  cfg.Execution.APIKey,
		}, logger)
	default:
		executor = execution.NewSimExecutor(execution.SimConfig{
			MinLatency:  cfg.Execution.SimMinLatency,
			MaxLatency:  cfg.Execution.SimMaxLatency,
			FailureRate: cfg.Execution.SimFailureRate,
			RejectRate:  cfg.Execution.SimRejectRate,
		}, logger)
	}
	breaker := execution.NewBreaker(execution.BreakerConfig{
		FailureThreshold: cfg.Execution.BreakerThreshold,
		OpenDuration:     cfg.Execution.BreakerOpenDuration,
	}, logger)

	pipelineCfg := execution.PipelineConfig{
		Workers:        cfg.Execution.Workers,
		QueueSize:      cfg.Execution.QueueSize,
		MaxAttempts:    cfg.Execution.MaxAttempts,
		AttemptTimeout: cfg.Execution.AttemptTimeout,
		RetryMin:       cfg.Execution.RetryMin,
		RetryMax:       cfg.Execution.RetryMax,
	}

	// The coordinator is the pipeline's status sink; wire both ways.
	var coord *coordinator.Coordinator
	pipeline := execution.NewPipeline(pipelineCfg, executor, breaker, eventLog, positions,
		sinkFunc{
			executing: func(id string) { coord.MarkExecuting(id) },
			executed:  func(id string, fill types.Fill) { coord.MarkExecuted(id, fill) },
			failed:    func(id, reason string) { coord.MarkFailed(id, reason) },
		}, logger)
	coord = coordinator.New(eventLog, riskEngine, execution.NewIndex(), pipeline, logger)
	pipeline.Start()

	// Auth
	users := make([]auth.UserConfig, len(cfg.Auth.Users))
	for i, u := range cfg.Auth.Users {
		users[i] = auth.UserConfig{
			UserID:       u.UserID,
			Username:     u.Username,
			Password:     u.Password,
			PasswordHash: u.PasswordHash,
			Role:         types.Role(u.Role),
		}
	}
	authSvc, err := auth.NewService(auth.Config{
		JWTSecret: cfg.Auth.JWTSecret,
		TokenTTL:  cfg.Auth.TokenTTL,
		Users:     users,
	}, logger)
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		os.Exit(1)
	}

	// HTTP API
	server := api.NewServer(cfg.Server, coord, riskEngine, eventLog, positions,
		authSvc, breaker, cfg.Auth.TokenTTL, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("trading control server started",
		"url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port),
		"execution_mode", cfg.Execution.Mode,
		"max_position_size", limits.MaxPositionSize,
		"max_daily_volume", limits.MaxDailyVolume,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if err := server.Stop(); err != nil {
		logger.Error("failed to stop api server", "error", err)
	}
	pipeline.Stop()
}

// sinkFunc adapts closures to the pipeline's status sink, breaking the
// construction cycle between pipeline and coordinator.
type sinkFunc struct {
	executing func(string)
	executed  func(string, types.Fill)
	failed    func(string, string)
}

func (s sinkFunc) MarkExecuting(orderID string)                 { s.executing(orderID) }
func (s sinkFunc) MarkExecuted(orderID string, fill types.Fill) { s.executed(orderID, fill) }
func (s sinkFunc) MarkFailed(orderID string, reason string)     { s.failed(orderID, reason) }

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
