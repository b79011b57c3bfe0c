package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blackwell-systems/stackwarden/pkg/config"
	"github.com/blackwell-systems/stackwarden/pkg/log"
	"github.com/blackwell-systems/stackwarden/pkg/manager"
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
	Use:   "stackwarden",
	Short: "Stackwarden - state reconciliation for composed tenant stacks",
	Long: `Stackwarden keeps multi-provider tenant stacks converged on their
declared composition. It ingests provider events, detects drift between
the declared and observed state, and drives policy-bound automated
healing with bounded retries and human escalation.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Stackwarden version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation daemon",
	Long: `Run the Stackwarden daemon: the event ingestion API, the
scheduled reconciliation loop, and the metrics endpoint.

With raft enabled in the configuration the daemon replicates tenant
declarations across manager nodes and only the leader admits changes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to server configuration file")
	serveCmd.Flags().Bool("join", false, "Join an existing cluster instead of bootstrapping")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	join, _ := cmd.Flags().GetBool("join")

	cfg, err := config.LoadServer(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	mgr, err := manager.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to create manager: %v", err)
	}

	if cfg.Raft.Enabled && join {
		if err := mgr.Join(); err != nil {
			return fmt.Errorf("failed to join cluster: %v", err)
		}
	}

	if err := mgr.Start(); err != nil {
		return fmt.Errorf("failed to start manager: %v", err)
	}

	fmt.Printf("Stackwarden is running on %s. Press Ctrl+C to stop.\n", cfg.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	return mgr.Stop()
}
