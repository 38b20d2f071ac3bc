package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/grounded-archive/internal/adapters/mcp"
	"github.com/kirillkom/grounded-archive/internal/bootstrap"
	"github.com/kirillkom/grounded-archive/internal/config"
	"github.com/kirillkom/grounded-archive/internal/observability/logging"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	// stdout carries the MCP protocol, so logs go to stderr.
	logger := logging.New(os.Stderr, logging.Options{Service: "mcp", Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg, nil)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer("grounded-archive", version, mcpadapter.Dependencies{
		Retrieval: app.Retrieval,
		Answers:   app.Answers,
		Validator: app.Validator,
		Personas:  app.Personas,
	})
	if err := server.ServeStdio(s, server.WithErrorLogger(log.New(os.Stderr, "mcp: ", log.LstdFlags))); err != nil {
		slog.Error("mcp_server_failed", "error", err.Error())
	}
}
