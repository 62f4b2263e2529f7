package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/config"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/core"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/db"
	httpserver "github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/http"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/llm"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("close store", "err", err)
		}
	}()
	logger.Info("store ready", "driver", cfg.Store.Driver)

	if cfg.LLM.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; every reply will be the fallback message")
	}
	llmClient := llm.NewOpenAIClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	})
	conv := core.NewConversationService(store, llmClient, logger)

	srv := httpserver.NewServer(store, conv, logger, httpserver.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpSrv.Addr, "model", llmClient.Model())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return db.OpenMongo(ctx, cfg.MongoURL, cfg.DBName)
	case config.DriverPostgres, config.DriverSQLite:
		return db.OpenSQL(ctx, cfg.Driver, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
