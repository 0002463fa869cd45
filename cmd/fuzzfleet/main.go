package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fuzzfleet",
	Short: "FuzzFleet - Distributed web content-discovery controller",
	Long: `FuzzFleet coordinates a fleet of worker nodes that run the ffuf
content-discovery fuzzer against web targets. The coordinator fans scan
tasks out over a redis broker, collects raw results, classifies them into
severity-ranked findings and persists everything in an embedded database.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"FuzzFleet version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(coordinatorCmd)
	rootCmd.AddCommand(workerCmd)
}
