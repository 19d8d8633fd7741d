package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/types"
)

// Config is this node's on-disk configuration, loaded from YAML the way
// cmd/warren/apply.go loads a WarrenResource. pkg/coordinator translates it
// into the Config structs pkg/join, pkg/raftgroup0, and pkg/rpc each expect;
// this package stays ignorant of those packages so it can be unmarshaled on
// its own and unit tested without pulling in gossip or Raft.
type Config struct {
	ClusterName string `yaml:"clusterName"`
	DataDir     string `yaml:"dataDir"`

	Self  types.Endpoint   `yaml:"self"`
	Seeds []types.Endpoint `yaml:"seeds"`

	// RPCListenAddress is where pkg/rpc.Server binds; it defaults to Self
	// when empty, the common case of one address serving both gossip and
	// node_ops traffic.
	RPCListenAddress string `yaml:"rpcListenAddress"`
	// Group0ListenAddress is where pkg/raftgroup0 binds its TCP
	// transport; it defaults to Self when empty.
	Group0ListenAddress       string `yaml:"group0ListenAddress"`
	Group0BootstrapSingleNode bool   `yaml:"group0BootstrapSingleNode"`

	NumTokens               int           `yaml:"numTokens"`
	ConsistentRangeMovement bool          `yaml:"consistentRangeMovement"`
	RingDelay               time.Duration `yaml:"ringDelay"`
	ReplaceTarget           types.Endpoint `yaml:"replaceTarget,omitempty"`
	DecommissionOverride    bool          `yaml:"decommissionOverride"`

	NetVersion        string   `yaml:"netVersion"`
	RPCAddress        string   `yaml:"rpcAddress"`
	ReleaseVersion    string   `yaml:"releaseVersion"`
	SupportedFeatures []string `yaml:"supportedFeatures"`
	SchemaVersion     string   `yaml:"schemaVersion"`
	SnitchName        string   `yaml:"snitchName"`
	ShardCount        int      `yaml:"shardCount"`
	IgnoreMSBBits     int      `yaml:"ignoreMsbBits"`

	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	WatchdogAfter     time.Duration `yaml:"watchdogAfter"`

	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJson"`
}

// applyDefaults fills every zero-valued field below with its default, so an
// empty YAML field behaves the same as never having set it. The 10s
// heartbeat and 120s watchdog equal the intervals pkg/nodeops hard-codes;
// pkg/join.Sequencer applies no fallback of its own for a zero NumTokens or
// RingDelay, so the 256-token and 30s defaults exist only here.
func (c *Config) applyDefaults() {
	if c.NumTokens == 0 {
		c.NumTokens = 256
	}
	if c.RingDelay == 0 {
		c.RingDelay = 30 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.WatchdogAfter == 0 {
		c.WatchdogAfter = 120 * time.Second
	}
	if c.RPCListenAddress == "" {
		c.RPCListenAddress = c.Self.String()
	}
	if c.Group0ListenAddress == "" {
		c.Group0ListenAddress = c.Self.String()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
}

// Validate reports the required fields this node cannot start without.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("config: clusterName is required")
	}
	if c.Self.IsZero() {
		return fmt.Errorf("config: self is required")
	}
	return nil
}

// Load reads path as YAML, the way runApply reads a WarrenResource file,
// fills in defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LogConfig translates LogLevel/LogJSON into pkg/log's own Config, the
// pairing cmd/warren/main.go's initLogging does for its "log-level" and
// "log-json" flags.
func (c *Config) LogConfig() log.Config {
	return log.Config{
		Level:      log.Level(c.LogLevel),
		JSONOutput: c.LogJSON,
	}
}
