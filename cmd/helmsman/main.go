package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/helmsman/pkg/api"
	"github.com/odvcencio/helmsman/pkg/config"
	"github.com/odvcencio/helmsman/pkg/logging"
	"github.com/odvcencio/helmsman/pkg/notify"
	"github.com/odvcencio/helmsman/pkg/suggest"
	"github.com/odvcencio/helmsman/pkg/telemetry"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "", "path to the YAML config file")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("helmsman %s (commit %s, built %s)\n", version, commit, buildDate)
		return
	}

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "helmsman: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer logger.Close()
	if cfg.Logging.Level != "" {
		logger.SetMinLevel(logging.Level(cfg.Logging.Level))
	}

	tracer, err := telemetry.NewTracerProvider("helmsman", version)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}
	if notifier != nil {
		defer notifier.Close()
	}

	generator := suggest.NewClient(cfg.Suggest.APIKey, suggest.ClientOptions{
		BaseURL:           cfg.Suggest.BaseURL,
		Model:             cfg.Suggest.Model,
		MaxTokens:         cfg.Suggest.MaxTokens,
		RequestsPerSecond: cfg.Suggest.RequestsPerSecond,
	})

	api.Version = version
	server := api.NewServer(cfg, api.Options{
		Generator: generator,
		Notifier:  notifier,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Start(ctx)
	})
	return group.Wait()
}

// buildNotifier assembles the notification fan-out from configuration.
// Returns nil when no channel is enabled.
func buildNotifier(cfg *config.Config) (*notify.Manager, error) {
	var publisher notify.Publisher
	var adapters []notify.Adapter

	if cfg.Notify.Telegram.Enabled {
		adapter, err := notify.NewTelegramAdapter(notify.TelegramConfig{
			BotToken: cfg.Notify.Telegram.BotToken,
		})
		if err != nil {
			return nil, fmt.Errorf("configure telegram notifications: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Notify.NATS.Enabled {
		pub, err := notify.NewNATSPublisher(notify.NATSConfig{
			URL:     cfg.Notify.NATS.URL,
			Subject: cfg.Notify.NATS.Subject,
		})
		if err != nil {
			return nil, fmt.Errorf("configure NATS publisher: %w", err)
		}
		publisher = pub
	}

	if publisher == nil && len(adapters) == 0 {
		return nil, nil
	}
	return notify.NewManager(publisher, adapters...), nil
}
