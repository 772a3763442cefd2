// Package main runs a service that polls the homework review API and relays
// review status changes to a Telegram chat.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	gcs "cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"homework-notifier/config"
	"homework-notifier/messenger"
	"homework-notifier/poll"
	"homework-notifier/practicum"
	"homework-notifier/server"
	"homework-notifier/storage"
)

// levelCritical marks conditions that stop the process.
const levelCritical = slog.LevelError + 4

func main() {
	// Initialize structured logger
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.Any() == levelCritical {
				a.Value = slog.StringValue("CRITICAL")
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.Load(os.Getenv, config.Keychain)
	if err != nil {
		logger.Log(context.Background(), levelCritical, "Configuration invalid, refusing to start", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)
	logger.Info("Configuration loaded", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	api := practicum.New(&http.Client{Timeout: cfg.RequestTimeout}, cfg.Endpoint, cfg.PracticumToken, logger)

	var provider messenger.Provider
	if cfg.MockMessenger {
		logger.Info("Mock messenger mode enabled, messages are only logged")
		provider = messenger.NewMockProvider(logger)
	} else {
		provider = messenger.NewTelegramProvider(cfg.TelegramToken, &http.Client{Timeout: cfg.RequestTimeout}, logger)
	}
	sender := messenger.New(provider, cfg.TelegramChatID, logger)

	journal, closeJournal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer closeJournal()

	pollCfg := &poll.Config{
		API:         api,
		Notifier:    sender,
		Logger:      logger,
		RetryPeriod: cfg.RetryPeriod,
	}
	srvCfg := &server.Config{Logger: logger}
	if journal != nil {
		pollCfg.Journal = journal
		srvCfg.Journal = journal
	}
	monitor := poll.New(pollCfg)

	if cfg.Port != "" {
		srvCfg.Poller = monitor
		srv := server.New(srvCfg)
		go func() {
			if err := srv.Serve(ctx, cfg.Port); err != nil {
				logger.Error("Server failed", "error", err)
			}
		}()
	}

	return monitor.Run(ctx)
}

// openJournal returns nil when neither JOURNAL_DIR nor JOURNAL_BUCKET is set.
func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Store, func(), error) {
	noop := func() {}

	// Local storage wins when both are configured
	if cfg.JournalDir != "" {
		if err := os.MkdirAll(cfg.JournalDir, 0o755); err != nil {
			return nil, noop, fmt.Errorf("create journal directory: %w", err)
		}
		logger.Info("Journal enabled", "storage_path", cfg.JournalDir)
		return storage.New(nil, "", cfg.JournalDir, logger), noop, nil
	}

	if cfg.JournalBucket == "" {
		return nil, noop, nil
	}

	var opts []option.ClientOption
	if cfg.GoogleCredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.GoogleCredentialsJSON)))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, noop, fmt.Errorf("initialize storage client: %w", err)
	}
	logger.Info("Journal enabled", "bucket", cfg.JournalBucket)

	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close storage client", "error", err)
		}
	}
	return storage.New(client, cfg.JournalBucket, "", logger), closeClient, nil
}
