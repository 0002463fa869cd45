package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftsec/fuzzfleet/pkg/broker"
	"github.com/driftsec/fuzzfleet/pkg/log"
	"github.com/driftsec/fuzzfleet/pkg/metrics"
	"github.com/driftsec/fuzzfleet/pkg/types"
	"github.com/driftsec/fuzzfleet/pkg/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a FuzzFleet worker",
	Long: `Run a worker node. The worker registers itself with the broker,
consumes task assignments from its queue, invokes the ffuf binary and
reports results back to the coordinator. Configuration comes from flags,
environment variables (WORKER_ID, REDIS_HOST, REDIS_PORT, REDIS_PASSWORD,
WORKER_THREADS, HOSTNAME) and an optional YAML config file, in that order
of precedence.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := worker.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Flags override env and file values.
		if cmd.Flags().Changed("worker-id") {
			cfg.WorkerID, _ = cmd.Flags().GetString("worker-id")
		}
		if cmd.Flags().Changed("redis-host") {
			cfg.RedisHost, _ = cmd.Flags().GetString("redis-host")
		}
		if cmd.Flags().Changed("redis-port") {
			cfg.RedisPort, _ = cmd.Flags().GetInt("redis-port")
		}
		if cmd.Flags().Changed("threads") {
			cfg.Threads, _ = cmd.Flags().GetInt("threads")
			if cfg.Threads < types.MinWorkerThreads || cfg.Threads > types.MaxWorkerThreads {
				return fmt.Errorf("threads %d out of range [%d, %d]",
					cfg.Threads, types.MinWorkerThreads, types.MaxWorkerThreads)
			}
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
		}

		log.Init(log.Config{Level: log.Level(cfg.LogLevel)})
		metrics.Register()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Broker unavailability at startup is fatal.
		b, err := broker.NewClient(ctx, broker.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
		defer b.Close()

		agent := worker.NewAgent(cfg, b)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			agent.Stop()
		}()

		return agent.Run(ctx)
	},
}

func init() {
	workerCmd.Flags().String("config", "", "Path to a YAML worker config file")
	workerCmd.Flags().String("worker-id", "", "Stable worker identifier")
	workerCmd.Flags().String("redis-host", "localhost", "Redis broker host")
	workerCmd.Flags().Int("redis-port", 6379, "Redis broker port")
	workerCmd.Flags().Int("threads", 10, "Declared fuzzer thread count (1-100)")
	workerCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
}
