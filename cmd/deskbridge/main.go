package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deskbridge/internal/config"
	"deskbridge/internal/constants"
	"deskbridge/internal/database"
	"deskbridge/internal/events"
	"deskbridge/internal/metrics"
	"deskbridge/internal/retry"
	"deskbridge/internal/service"
	"deskbridge/internal/tracing"
	"deskbridge/pkg/blobrelay"
	"deskbridge/pkg/chat"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("deskbridge %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting deskbridge")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.New(retry.Policy{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})
	err = backoff.Do(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	chatClient := chat.NewClient(
		cfg.Chat.ServiceURL,
		cfg.Chat.AppID,
		cfg.Chat.AppSecret,
		time.Duration(cfg.Chat.TimeoutSec)*time.Second,
	)

	relayClient := blobrelay.NewClient(
		cfg.Relay.BaseURL,
		cfg.Relay.APIKey,
		time.Duration(cfg.Relay.TimeoutSec)*time.Second,
	)

	factory := service.NewAdapterFactory(
		db,
		service.DefaultRegistry(),
		time.Duration(cfg.Cache.AdapterTTLMin)*time.Minute,
		cfg.Cache.MaxEntries,
		time.Duration(constants.DefaultHTTPTimeoutSec)*time.Second,
		logger,
	)

	agents := service.NewAgentDirectory(
		time.Duration(cfg.Cache.AgentTTLMin)*time.Minute,
		cfg.Cache.MaxEntries,
		logger,
	)

	pipeline := service.NewAttachmentPipeline(
		relayClient,
		cfg.Pipeline.MaxConcurrent,
		cfg.Pipeline.MaxSizeMB,
		time.Duration(cfg.Pipeline.UploadTimeoutSec)*time.Second,
		logger,
	)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
		if err != nil {
			logger.Warnf("Failed to connect delivery-receipt publisher, receipts disabled: %v", err)
		} else {
			publisher = amqpPublisher
			defer amqpPublisher.Close()
			logger.WithField("exchange", cfg.Events.Exchange).Info("Delivery-receipt publisher connected")
		}
	}

	registry := metrics.NewRegistry()

	router := service.NewRouter(service.RouterOptions{
		Store:     db,
		Tenants:   db,
		Factory:   factory,
		Agents:    agents,
		Pipeline:  pipeline,
		Chat:      chatClient,
		Publisher: publisher,
		RetryPolicy: retry.Policy{
			InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  cfg.Retry.MaxAttempts,
			Jitter:       true,
		},
		ProcessedTTL: time.Duration(cfg.Cache.EventTTLMin) * time.Minute,
		ProcessedMax: cfg.Cache.MaxEntries,
		Metrics:      registry,
		Logger:       logger,
	})

	go runMappingCleanup(ctx, db, cfg.RetentionDays, logger)

	server := NewServer(cfg, router, db, registry, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// runMappingCleanup prunes resolved conversation mappings past the retention
// window once a day.
func runMappingCleanup(ctx context.Context, db *database.Database, retentionDays int, logger *logrus.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := db.CleanupOldMappings(ctx, retentionDays)
			if err != nil {
				logger.Warnf("Mapping cleanup failed: %v", err)
				continue
			}
			logger.WithFields(logrus.Fields{
				"removed":        removed,
				"retention_days": retentionDays,
			}).Debug("Mapping cleanup completed")
		}
	}
}
