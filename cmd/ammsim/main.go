package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/defistate-amm-core/cmd/ammsim/config"
	"github.com/defistate/defistate-amm-core/cmd/ammsim/sim"
	"github.com/defistate/defistate-amm-core/events"
	"github.com/defistate/defistate-amm-core/events/redisstream"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultNotificationBufferSize = 256
)

var (
	configPath   string
	scenarioPath string
	envFile      string

	rootCmd = &cobra.Command{
		Use:   "ammsim",
		Short: "Run scripted scenarios against an in-memory AMM deployment",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a scenario and print the resulting pools and their diff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
)

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the deployment configuration file")
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "scenario.yaml", "path to the scenario file")
	runCmd.Flags().StringVar(&envFile, "env-file", "", "optional .env file loaded before the configuration")
	rootCmd.AddCommand(runCmd)
}

func main() {
	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootLogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			rootLogger.Error("Failed to load env file", "path", envFile, "error", err)
			return err
		}
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		return err
	}
	scenario, err := sim.LoadScenario(scenarioPath)
	if err != nil {
		rootLogger.Error("Failed to load scenario", "error", err)
		return err
	}
	accounts, err := scenario.ResolveAccounts()
	if err != nil {
		rootLogger.Error("Invalid scenario accounts", "error", err)
		return err
	}

	feed := events.NewFeed()
	deployment, err := sim.NewDeployment(cfg, feed, rootLogger, prometheus.NewRegistry())
	if err != nil {
		rootLogger.Error("Failed to initialize deployment", "error", err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	logged := make(chan events.Record, DefaultNotificationBufferSize)
	logSub := feed.Subscribe(logged)
	notifyLogger := rootLogger.With("component", "notifications")
	g.Go(func() error {
		for rec := range logged {
			notifyLogger.Info("notification", "seq", rec.Seq, "name", rec.Name, "event", rec.Event)
		}
		return nil
	})

	stopShipping := func() {}
	if cfg.Redis.Addr != "" {
		client, err := redisstream.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			rootLogger.Error("Failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			return err
		}
		defer client.Close()

		sink, err := redisstream.New(&redisstream.Config{
			Client: client,
			Stream: cfg.Redis.Stream,
			MaxLen: cfg.Redis.MaxLen,
			Logger: rootLogger.With("component", "redis-stream"),
		})
		if err != nil {
			return err
		}
		shipped := make(chan events.Record, DefaultNotificationBufferSize)
		shipSub := feed.Subscribe(shipped)
		stopShipping = func() {
			shipSub.Unsubscribe()
			close(shipped)
		}
		g.Go(func() error {
			err := sink.Run(gctx, shipped)
			// Keep the feed from blocking on a dead consumer.
			for range shipped {
			}
			return err
		})
	}

	before := deployment.Snapshot()
	results, runErr := deployment.Run(gctx, scenario)

	// No more notifications after the scenario; let the consumers drain.
	logSub.Unsubscribe()
	close(logged)
	stopShipping()
	if err := g.Wait(); err != nil {
		rootLogger.Error("Notification consumer failed", "error", err)
		return err
	}

	if err := deployment.WriteReport(os.Stdout, results, accounts, before, deployment.Snapshot()); err != nil {
		return err
	}
	if runErr != nil {
		rootLogger.Error("Scenario failed", "error", runErr)
		return fmt.Errorf("scenario: %w", runErr)
	}
	return nil
}
