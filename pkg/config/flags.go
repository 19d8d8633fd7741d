package config

import (
	"github.com/spf13/cobra"

	"github.com/cuisonghui/scylla/pkg/types"
)

// BindFlags registers the subset of Config that operators commonly override
// at the command line as persistent flags on cmd, the way
// cmd/warren/main.go registers "log-level"/"log-json" globally rather than
// per-subcommand.
func BindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "path to the node's YAML config file")
	cmd.PersistentFlags().String("self", "", "override: this node's gossip/rpc address")
	cmd.PersistentFlags().StringSlice("seeds", nil, "override: comma-separated seed addresses")
	cmd.PersistentFlags().String("log-level", "", "override: log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", false, "override: emit logs as JSON")
	cmd.PersistentFlags().Duration("ring-delay", 0, "override: ring delay before a join is considered settled")
	cmd.PersistentFlags().Bool("replace-address", false, "this node is replacing a dead node at --self")
}

// ApplyFlagOverrides layers any flags the operator actually set on top of
// cfg, loaded separately from the --config file. Flags left at their zero
// value are left alone, so a YAML value survives when no override is given.
func ApplyFlagOverrides(cfg *Config, cmd *cobra.Command) {
	flags := cmd.Flags()

	if flags.Changed("self") {
		if v, _ := flags.GetString("self"); v != "" {
			cfg.Self = types.NewEndpoint(v)
		}
	}
	if flags.Changed("replace-address") {
		if v, _ := flags.GetBool("replace-address"); v {
			cfg.ReplaceTarget = cfg.Self
		}
	}
	if flags.Changed("seeds") {
		if vs, _ := flags.GetStringSlice("seeds"); len(vs) > 0 {
			cfg.Seeds = make([]types.Endpoint, len(vs))
			for i, v := range vs {
				cfg.Seeds[i] = types.NewEndpoint(v)
			}
		}
	}
	if flags.Changed("log-level") {
		if v, _ := flags.GetString("log-level"); v != "" {
			cfg.LogLevel = v
		}
	}
	if flags.Changed("log-json") {
		cfg.LogJSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("ring-delay") {
		if d, _ := flags.GetDuration("ring-delay"); d > 0 {
			cfg.RingDelay = d
		}
	}
}
