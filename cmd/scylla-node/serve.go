package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuisonghui/scylla/internal/fakecluster"
	"github.com/cuisonghui/scylla/pkg/coordinator"
	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/metrics"
	"github.com/cuisonghui/scylla/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run this node's coordinator: join the ring and serve its RPC/admin surface",
	Long: `Run this node's coordinator, the same long-lived process role
cmd/warren/main.go's "cluster init"/"manager join" play for warren.

The gossip bus, streaming engine, and local database are external
collaborators this module treats as opaque (spec.md §1) and never
implements concretely; serve wires internal/fakecluster's in-memory
stand-ins so the coordinator can actually run end to end as a
single-node ring. A deployment with a real gossip transport, streaming
engine, and local database supplies those in place of fakecluster at
coordinator.Deps instead.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	adminAddr, _ := cmd.Flags().GetString("admin-addr")

	log.Init(cfg.LogConfig())

	bus := fakecluster.NewBus().Join(cfg.Self)
	strategy := fakecluster.NewSimpleStrategy(3)
	deps := coordinator.Deps{
		Bus:      bus,
		Streamer: fakecluster.NewEngine(),
		Database: fakecluster.NewDatabase(map[string][]string{"system": {"local", "peers"}}, strategy),
		Strategy: strategy,
	}

	node, err := coordinator.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}

	wireMetrics(node)

	lis, err := net.Listen("tcp", cfg.RPCListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.RPCListenAddress, err)
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("rpc", false, "starting")
	metrics.RegisterComponent("group0", false, "starting")

	collector := metrics.NewCollector(node)
	collector.Start()
	defer collector.Stop()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())
		registerOperatorRoutes(mux, node)
		if err := http.ListenAndServe(adminAddr, mux); err != nil {
			log.WithComponent("scylla-node").Error().Err(err).Msg("admin http server stopped")
		}
	}()
	log.WithComponent("scylla-node").Info().Str("addr", adminAddr).Msg("admin http surface listening")

	ctx := context.Background()
	if err := node.Start(ctx, lis); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	metrics.RegisterComponent("rpc", true, "serving")
	metrics.RegisterComponent("group0", true, node.GetOperationMode().String())
	log.WithComponent("scylla-node").Info().Str("self", cfg.Self.String()).Msg("node joined the ring")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.WithComponent("scylla-node").Info().Msg("shutting down")
	return node.Shutdown()
}

// wireMetrics registers every hook pkg/metrics needs to observe node-ops
// runs, watchdog-driven aborts, and removal acks, the wiring
// pkg/metrics/doc.go documents as cmd/scylla-node's responsibility so
// pkg/coordinator never has to import pkg/metrics directly.
func wireMetrics(node *coordinator.Node) {
	node.OnNodeOps(func(kind types.OpKind, outcome string, dur time.Duration) {
		metrics.NodeOpsTotal.WithLabelValues(string(kind), outcome).Inc()
		metrics.NodeOpsDuration.WithLabelValues(string(kind)).Observe(dur.Seconds())
	})
	node.Station().OnWatchdogFired(func(opsUUID string, kind types.OpKind) {
		metrics.WatchdogFiredTotal.WithLabelValues(string(kind)).Inc()
	})
	node.Removals().OnReplicationFinished(func() {
		metrics.ReplicationFinishedTotal.Inc()
	})
	node.OnIsolate(func(err error) {
		metrics.RegisterComponent("rpc", false, "isolated: "+err.Error())
	})
}
