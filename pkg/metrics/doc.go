/*
Package metrics provides Prometheus metrics collection and exposition for a
cluster member.

Gauges track state a Collector samples every 15s (node_operation_mode, ring
version, group 0 leadership/peer count/log indices); counters and
histograms are pushed directly at the call sites that produce them
(pkg/coordinator's operator methods, pkg/nodeops' watchdog, pkg/rpc's
server) via small hooks cmd/scylla-node wires at startup, avoiding an
import cycle back into pkg/coordinator.

# Metrics Catalog

Node lifecycle:

scylla_node_operation_mode:
  - Type: Gauge
  - Description: current mode.Mode.Code() (1=STARTING..7=DRAINED, 8=MOVING)

scylla_ring_version:
  - Type: Gauge
  - Description: token.Metadata's mutation counter, bumped on every ring change

Group 0 (raft):

scylla_group0_is_leader:
  - Type: Gauge
  - Description: 1 if this node holds group 0 leadership, else 0

scylla_group0_peers_total:
  - Type: Gauge
  - Description: voters in group 0's current configuration

scylla_group0_log_index / scylla_group0_applied_index:
  - Type: Gauge
  - Description: raft.Raft's own last_log_index/applied_index stats

Node-ops (C5):

scylla_node_ops_total{kind,outcome}:
  - Type: Counter
  - Description: operator-driven node-ops runs by kind (bootstrap/replace/
    decommission/removenode) and outcome (ok/error)

scylla_node_ops_duration_seconds{kind}:
  - Type: Histogram
  - Description: wall-clock duration of a full node-ops run

scylla_node_ops_watchdog_fired_total{kind}:
  - Type: Counter
  - Description: entries undone by the 120s watchdog rather than an
    explicit *_abort

scylla_removal_replication_finished_total:
  - Type: Counter
  - Description: replication_finished acks received for in-flight removals

RPC surface:

scylla_rpc_requests_total{method,status} / scylla_rpc_request_duration_seconds{method}:
  - Type: Counter / Histogram
  - Description: requests served on the node_ops_cmd/replication_finished/
    group0_peer_exchange/group0_modify_config RPC surface

Streaming:

scylla_streaming_duration_seconds{operation}:
  - Type: Histogram
  - Description: a streaming.Engine call's duration by operation
    (bootstrap/unbootstrap/missing_replicas/sync_data/rebuild)

# Usage

	collector := metrics.NewCollector(node)
	collector.Start()
	defer collector.Stop()

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

	http.Handle("/metrics", metrics.Handler())
	http.Handle("/health", metrics.HealthHandler())
	http.Handle("/ready", metrics.ReadyHandler())
	http.Handle("/live", metrics.LivenessHandler())

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
