// Command scylla-node runs the cluster membership and topology-change
// coordinator described by this module: one ring member's C1-C7 components,
// raft group 0, and the RPC surface that binds it to its peers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuisonghui/scylla/pkg/config"
)

var (
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
	Use:     "scylla-node",
	Short:   "Cluster membership and topology-change coordinator",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"scylla-node version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	config.BindFlags(rootCmd)
	rootCmd.PersistentFlags().String("admin-addr", "127.0.0.1:9090", "address the metrics/health/operator HTTP surface binds to")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(decommissionCmd)
	rootCmd.AddCommand(removeNodeCmd)
	rootCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ringCmd)
	rootCmd.AddCommand(ownershipCmd)
	rootCmd.AddCommand(gossipCmd)
	rootCmd.AddCommand(forceRemoveCompletionCmd)
	rootCmd.AddCommand(removalStatusCmd)
}

// loadConfig reads the required --config file and layers any flags the
// operator actually passed on top, the config.Load then
// config.ApplyFlagOverrides sequence serveCmd runs before wiring a Node.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.ApplyFlagOverrides(cfg, cmd)
	return cfg, nil
}
