// Command fabrik is the single ops binary for the platform: it starts a
// cluster control-plane node, a runtime host, a gateway, or a registry
// service, and offers the `cluster`/`registry` subcommands used to stand
// a deployment up. Mirrors warren's cmd/warren single-binary, many-roles
// shape almost exactly, generalized off container orchestration verbs
// onto the oplog/worker/gateway/registry vocabulary.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/fabrik/pkg/config"
	"github.com/cuemby/fabrik/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fabrik",
	Short: "fabrik - a durable, agent-oriented WebAssembly execution platform",
	Long: `fabrik runs user WebAssembly components as long-lived, durable
workers: every externally-visible side effect is journaled to a
per-worker oplog so a worker can be suspended, migrated, or recovered
from a crash by replay.

A cluster of fabrik nodes combines a Raft-replicated control plane, a
host-local worker runtime, an RPC invocation fabric, an HTTP gateway,
and a revisioned component/environment registry.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fabrik version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to a fabrik.yaml config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initConfigAndLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(registryCmd)
}

func initConfigAndLogging() {
	configFile, _ := rootCmd.PersistentFlags().GetString("config")
	loaded, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded

	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	if logLevel == "info" && cfg.Logging.Level != "" {
		logLevel = cfg.Logging.Level
	}
	if !logJSON {
		logJSON = cfg.Logging.JSONOutput
	}

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// waitForSignal blocks until SIGINT or SIGTERM, the shutdown trigger
// every `serve` subcommand waits on before draining its servers.
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
