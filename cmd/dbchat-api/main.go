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

	"github.com/duckmesh/dbchat/internal/api"
	"github.com/duckmesh/dbchat/internal/api/uistatic"
	"github.com/duckmesh/dbchat/internal/audit"
	"github.com/duckmesh/dbchat/internal/config"
	"github.com/duckmesh/dbchat/internal/conversation"
	"github.com/duckmesh/dbchat/internal/gateway"
	"github.com/duckmesh/dbchat/internal/llm"
	"github.com/duckmesh/dbchat/internal/nl2sql"
	"github.com/duckmesh/dbchat/internal/observability"
	s3store "github.com/duckmesh/dbchat/internal/storage/s3"
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("dbchat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	client, err := llm.New(context.Background(), llm.Config{
		Provider:    llm.Provider(cfg.LLM.Provider),
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		// Keep serving so /v1/ready can report the problem; turns fall back.
		logger.Error("failed to initialize llm client", slog.Any("error", err))
		client = unavailableLLM{err: err}
	}

	options := conversation.Options{
		Answerer:  &nl2sql.Pipeline{LLM: client, Logger: logger},
		Connector: conversation.GatewayConnector(gateway.WithSampleRows(cfg.Database.SchemaSampleRows)),
		Logger:    logger,
	}
	if cfg.Audit.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		options.Recorder = audit.NewArchiver(objectStore, logger)
	}

	sessions := conversation.NewRegistry(options)
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Warn("closing sessions", slog.Any("error", err))
		}
	}()

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(api.CheckLLMConfigured(cfg)),
		DependencyTimeout: time.Second,
		Sessions:          sessions,
		UI:                uistatic.Handler(),
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("llm_provider", cfg.LLM.Provider),
			slog.Bool("audit", cfg.Audit.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}
}

type unavailableLLM struct {
	err error
}

func (u unavailableLLM) Complete(context.Context, string) (string, error) {
	return "", u.err
}
