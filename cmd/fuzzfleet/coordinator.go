package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftsec/fuzzfleet/pkg/broker"
	"github.com/driftsec/fuzzfleet/pkg/log"
	"github.com/driftsec/fuzzfleet/pkg/manager"
	"github.com/driftsec/fuzzfleet/pkg/metrics"
	"github.com/driftsec/fuzzfleet/pkg/registry"
	"github.com/driftsec/fuzzfleet/pkg/store"
	"github.com/driftsec/fuzzfleet/pkg/wordlists"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the FuzzFleet coordinator",
	Long: `Run the coordinator node. It accepts scan requests, distributes them
across registered workers via the redis broker, collects and classifies
results, and persists tasks and findings in the local database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		redisHost, _ := cmd.Flags().GetString("redis-host")
		redisPort, _ := cmd.Flags().GetInt("redis-port")
		redisPassword, _ := cmd.Flags().GetString("redis-password")
		dbPath, _ := cmd.Flags().GetString("db-path")
		logLevel, _ := cmd.Flags().GetString("log-level")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		wordlistDir, _ := cmd.Flags().GetString("wordlist-dir")
		countFailures, _ := cmd.Flags().GetBool("count-failures")

		log.Init(log.Config{Level: log.Level(logLevel)})
		logger := log.WithComponent("coordinator")
		metrics.Register()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Broker unavailability at startup is fatal.
		b, err := broker.NewClient(ctx, broker.Config{
			Host:     redisHost,
			Port:     redisPort,
			Password: redisPassword,
		})
		if err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
		defer b.Close()

		st, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		wl := wordlists.NewRegistry()
		if wordlistDir != "" {
			go func() {
				if err := wl.Watch(ctx, wordlistDir); err != nil && ctx.Err() == nil {
					logger.Warn().Err(err).Msg("wordlist watcher exited")
				}
			}()
		}

		reg := registry.New(b)
		mgr := manager.New(b, st, reg, wl, manager.Config{CountFailures: countFailures})
		mgr.Start()
		defer mgr.Stop()

		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				logger.Info().Str("addr", metricsAddr).Msg("metrics listener started")
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					logger.Error().Err(err).Msg("metrics listener failed")
				}
			}()
		}

		logger.Info().
			Str("broker", fmt.Sprintf("%s:%d", redisHost, redisPort)).
			Str("db", dbPath).
			Msg("coordinator is running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("shutting down")
		return nil
	},
}

func init() {
	coordinatorCmd.Flags().String("redis-host", "localhost", "Redis broker host")
	coordinatorCmd.Flags().Int("redis-port", 6379, "Redis broker port")
	coordinatorCmd.Flags().String("redis-password", "", "Redis broker password")
	coordinatorCmd.Flags().String("db-path", "fuzzfleet.db", "Path to the sqlite database")
	coordinatorCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	coordinatorCmd.Flags().String("metrics-addr", "", "Optional address for the prometheus metrics listener")
	coordinatorCmd.Flags().String("wordlist-dir", "", "Optional directory to watch for *.txt wordlists")
	coordinatorCmd.Flags().Bool("count-failures", false, "Count failed worker results toward task progress")
}
