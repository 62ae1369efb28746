package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"

	"github.com/ufiyan/leadrevive/internal/airtable"
	"github.com/ufiyan/leadrevive/internal/api"
	"github.com/ufiyan/leadrevive/internal/config"
	"github.com/ufiyan/leadrevive/internal/generate/gemini"
	"github.com/ufiyan/leadrevive/internal/pipeline"
	"github.com/ufiyan/leadrevive/internal/retry"
	"github.com/ufiyan/leadrevive/internal/util"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "serve":
		os.Exit(runServe(ctx, os.Args[2:]))
	case "run":
		os.Exit(runBatch(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Optional YAML config file path")
	listenAddr := fs.String("listen", "", "Listen address override (env: LISTEN_ADDR)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, log, pipe, err := setup(ctx, *configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}
	addr := cfg.ListenAddr
	if *listenAddr != "" {
		addr = *listenAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(pipe, log, cfg.AllowedOrigins).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", util.RedactSecrets(err.Error()))
			return 1
		}
	}
	return 0
}

func runBatch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Optional YAML config file path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	_, log, pipe, err := setup(ctx, *configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	report, err := pipe.Run(ctx)
	if err != nil {
		log.Error("batch run failed", "error", util.RedactSecrets(err.Error()))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Error("encode report", "error", err)
		return 1
	}
	return 0
}

// setup loads configuration and wires the store client, the generator, and
// the pipeline. Shared by both commands.
func setup(ctx context.Context, configPath string) (config.Config, *slog.Logger, *pipeline.Pipeline, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, nil, err
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	store, err := airtable.NewClient(cfg.Airtable.BaseURL, cfg.Airtable.Token, cfg.Airtable.BaseID, cfg.Airtable.Table)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	gen, err := gemini.New(ctx, gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
	})
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	exec := retry.Executor{
		Attempts:       cfg.Pipeline.Attempts,
		BackoffInitial: cfg.Pipeline.BackoffInitial,
		AttemptTimeout: cfg.Pipeline.AttemptTimeout,
	}
	if cfg.Pipeline.RateLimitRPS > 0 {
		exec.Limiter = rate.NewLimiter(rate.Limit(cfg.Pipeline.RateLimitRPS), 1)
	}

	pipe := pipeline.New(store, gen, pipeline.Options{
		Executor: exec,
		Logger:   log,
	})
	return cfg, log, pipe, nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `leadrevive: stale-lead re-engagement service

Usage:
  leadrevive <command> [flags]

Commands:
  serve  Start the HTTP API
  run    Execute one batch over stale leads and print the report

Examples:
  leadrevive serve --listen :8080
  leadrevive run --config config.yaml

Environment:
  AIRTABLE_API_KEY     Record store token (required)
  AIRTABLE_BASE_ID     Record store base id (required)
  AIRTABLE_TABLE_NAME  Table name (required)
  AIRTABLE_BASE_URL    Optional base URL override (local mock/testing)
  GEMINI_API_KEY       Gemini API key (required)
  GEMINI_MODEL         Gemini model name
  GEMINI_BASE_URL      Optional base URL override (proxies/testing)
  LISTEN_ADDR          HTTP listen address
  ALLOWED_ORIGINS      Comma-separated CORS origin allow-list
  MAX_ATTEMPTS         Total generation attempts per lead
  BACKOFF_INITIAL      First retry delay (doubles per retry)
  ATTEMPT_TIMEOUT      Per-attempt timeout
  RATE_LIMIT_RPS       Outbound generation rate limit, 0 disables
  LOG_LEVEL            debug|info|warn|error
  LOG_FORMAT           text|json

`)
}
