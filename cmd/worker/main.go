package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/grounded-archive/internal/bootstrap"
	"github.com/kirillkom/grounded-archive/internal/config"
	"github.com/kirillkom/grounded-archive/internal/core/contract"
	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/core/ports"
	"github.com/kirillkom/grounded-archive/internal/observability/logging"
	"github.com/kirillkom/grounded-archive/internal/observability/metrics"
)

const service = "audit-worker"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stdout, logging.Options{Service: service, Level: cfg.LogLevel, Format: cfg.LogFormat}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	audit, err := bootstrap.NewAudit(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer audit.Close()

	validator, err := contract.NewValidator()
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}

	auditMetrics := metrics.NewAuditMetrics(service)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           auditMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_failed", "error", err.Error())
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSContractSubject+".>")
	err = audit.Queue.SubscribeContracts(ctx, func(handlerCtx context.Context, c *domain.AnswerContract) error {
		started := time.Now()
		persona := string(c.Provenance.Persona)
		auditMetrics.Delivered(persona, started.Sub(c.Provenance.GeneratedAt))

		outcome, err := persist(handlerCtx, audit.Contracts, validator, c)
		var violations int
		var rejected *domain.ContractViolationError
		if errors.As(err, &rejected) {
			violations = len(rejected.Violations)
		}
		auditMetrics.Settled(persona, outcome, violations, time.Since(started))
		if outcome == metrics.OutcomeDuplicate {
			slog.Info("audit_duplicate_skipped", "message_id", c.Provenance.MessageID, "persona", persona)
		}
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err.Error())
		os.Exit(1)
	}
}

// persist re-checks the contract before it becomes part of the audit record.
func persist(ctx context.Context, contracts ports.ContractRepository, validator *contract.Validator, c *domain.AnswerContract) (metrics.PersistOutcome, error) {
	if err := validator.Validate(c).Err(); err != nil {
		return metrics.OutcomeRejected, err
	}
	saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	inserted, err := contracts.Save(saveCtx, c)
	switch {
	case err != nil:
		return metrics.OutcomeFailed, err
	case !inserted:
		return metrics.OutcomeDuplicate, nil
	default:
		return metrics.OutcomePersisted, nil
	}
}
