package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
clusterName: test-cluster
self:
  addr: 10.0.0.1:7000
seeds:
  - addr: 10.0.0.1:7000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NumTokens != 256 {
		t.Errorf("expected default NumTokens 256, got %d", cfg.NumTokens)
	}
	if cfg.RingDelay != 30*time.Second {
		t.Errorf("expected default RingDelay 30s, got %v", cfg.RingDelay)
	}
	if cfg.WatchdogAfter != 120*time.Second {
		t.Errorf("expected default WatchdogAfter 120s, got %v", cfg.WatchdogAfter)
	}
	if cfg.RPCListenAddress != "10.0.0.1:7000" {
		t.Errorf("expected RPCListenAddress to default to self, got %q", cfg.RPCListenAddress)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default LogLevel info, got %q", cfg.LogLevel)
	}
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	path := writeTempConfig(t, `
clusterName: test-cluster
self:
  addr: 10.0.0.1:7000
numTokens: 16
ringDelay: 5s
rpcListenAddress: 10.0.0.1:9000
logLevel: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NumTokens != 16 {
		t.Errorf("expected explicit NumTokens 16, got %d", cfg.NumTokens)
	}
	if cfg.RingDelay != 5*time.Second {
		t.Errorf("expected explicit RingDelay 5s, got %v", cfg.RingDelay)
	}
	if cfg.RPCListenAddress != "10.0.0.1:9000" {
		t.Errorf("expected explicit RPCListenAddress to survive, got %q", cfg.RPCListenAddress)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected explicit LogLevel debug, got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsMissingClusterName(t *testing.T) {
	path := writeTempConfig(t, `
self:
  addr: 10.0.0.1:7000
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a missing clusterName")
	}
}

func TestLoadRejectsMissingSelf(t *testing.T) {
	path := writeTempConfig(t, `
clusterName: test-cluster
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a missing self endpoint")
	}
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a nonexistent file")
	}
}

func TestApplyFlagOverridesOnlyTouchesChangedFlags(t *testing.T) {
	cfg := &Config{ClusterName: "c", LogLevel: "info", RingDelay: 30 * time.Second}

	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd)
	if err := cmd.Flags().Parse([]string{"--log-level=debug"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	ApplyFlagOverrides(cfg, cmd)

	if cfg.LogLevel != "debug" {
		t.Errorf("expected --log-level to override, got %q", cfg.LogLevel)
	}
	if cfg.RingDelay != 30*time.Second {
		t.Errorf("expected RingDelay to stay untouched, got %v", cfg.RingDelay)
	}
}

func TestApplyFlagOverridesSelfAndSeeds(t *testing.T) {
	cfg := &Config{ClusterName: "c"}

	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd)
	if err := cmd.Flags().Parse([]string{"--self=10.0.0.5:7000", "--seeds=10.0.0.1:7000,10.0.0.2:7000"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	ApplyFlagOverrides(cfg, cmd)

	if cfg.Self.String() != "10.0.0.5:7000" {
		t.Errorf("expected --self to override, got %q", cfg.Self.String())
	}
	if len(cfg.Seeds) != 2 || cfg.Seeds[0].String() != "10.0.0.1:7000" {
		t.Errorf("expected --seeds to override, got %v", cfg.Seeds)
	}
}
