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

	httpadapter "github.com/kirillkom/grounded-archive/internal/adapters/http"
	"github.com/kirillkom/grounded-archive/internal/bootstrap"
	"github.com/kirillkom/grounded-archive/internal/config"
	"github.com/kirillkom/grounded-archive/internal/core/ports"
	"github.com/kirillkom/grounded-archive/internal/observability/logging"
	"github.com/kirillkom/grounded-archive/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stdout, logging.Options{Service: "api", Level: cfg.LogLevel, Format: cfg.LogFormat}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	pipelineMetrics := metrics.NewPipelineMetrics("api", httpMetrics.Registerer())

	app, err := bootstrap.New(ctx, cfg, pipelineMetrics)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	deps := httpadapter.Dependencies{
		Retrieval: app.Retrieval,
		Answers:   app.Answers,
		Validator: app.Validator,
		Personas:  app.Personas,
		Sessions:  app.Sessions,
		Metrics:   httpMetrics,
	}
	if app.Contracts != nil {
		deps.Contracts = app.Contracts
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      httpadapter.NewRouter(cfg, deps).Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DraftTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go sweepSessions(ctx, app.Sessions, cfg.SessionSweepInterval)

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err.Error())
	}
}

func sweepSessions(ctx context.Context, sessions ports.PersonaSessionStore, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := sessions.Sweep(); removed > 0 {
				slog.Debug("persona_sessions_swept", "removed", removed)
			}
		}
	}
}
