package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/kloudmate/jenkins-exporter/internal/collector"
	"github.com/kloudmate/jenkins-exporter/internal/config"
	"github.com/kloudmate/jenkins-exporter/internal/jenkins"
	"github.com/kloudmate/jenkins-exporter/internal/logging"
	"github.com/kloudmate/jenkins-exporter/internal/server"
	"github.com/kloudmate/jenkins-exporter/pkg/histogram"
)

func main() {
	var flags config.Flags
	kong.Parse(&flags,
		kong.Name("jenkins-exporter"),
		kong.Description("Expose Jenkins job status as Prometheus metrics."),
	)

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Exporter failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder, err := histogram.NewRecorder(cfg.Histogram.Bounds)
	if err != nil {
		return fmt.Errorf("invalid histogram bounds: %w", err)
	}

	client := jenkins.NewClient(&jenkins.Config{
		URL:      cfg.Jenkins.URL,
		User:     cfg.Jenkins.User,
		Password: cfg.Jenkins.Password,
		Insecure: cfg.Jenkins.Insecure,
		Timeout:  cfg.Jenkins.Timeout,
	}, recorder, logger)

	var source collector.JobSource = client
	if cfg.PollInterval > 0 {
		poller, err := collector.NewPoller(client, cfg.PollInterval, logger)
		if err != nil {
			return err
		}
		if err := poller.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := poller.Stop(); err != nil {
				logger.Error("Failed to stop poller", zap.Error(err))
			}
		}()
		source = poller
	}

	jobCollector := collector.NewCollector(&collector.Config{
		Bounds:        recorder.Bounds(),
		HistogramJob:  cfg.Histogram.Job,
		HistogramPool: cfg.Histogram.Pool,
		ScrapeTimeout: cfg.Jenkins.Timeout,
	}, source, recorder, logger)

	registry, err := server.NewRegistry(jobCollector.InternalMetrics()...)
	if err != nil {
		return err
	}

	srv := server.NewServer(&server.Config{
		Address:         cfg.ListenAddress(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, jobCollector, registry, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("Jenkins exporter started",
		zap.String("jenkins", cfg.Jenkins.URL),
		zap.String("address", cfg.ListenAddress()),
		zap.Duration("poll_interval", cfg.PollInterval))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigChan:
		logger.Info("Shutting down jenkins exporter...", zap.String("signal", sig.String()))
	}

	cancel()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("Failed to shut down metrics server", zap.Error(err))
	}

	logger.Info("Jenkins exporter shutdown complete")
	return nil
}
