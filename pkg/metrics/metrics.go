package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NodeOperationMode is the current mode.Mode.Code() for this node
	// (spec.md §6's node_operation_mode gauge).
	NodeOperationMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scylla_node_operation_mode",
			Help: "Current node lifecycle mode, coded per mode.Mode.Code() (1=STARTING..7=DRAINED)",
		},
	)

	RingVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scylla_ring_version",
			Help: "Monotonic counter bumped on every token.Metadata mutation observed by this node",
		},
	)

	// Group0 (raft) metrics.
	Group0IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scylla_group0_is_leader",
			Help: "Whether this node currently holds group 0 raft leadership (1=leader, 0=follower)",
		},
	)

	Group0PeersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scylla_group0_peers_total",
			Help: "Total number of voters in group 0's current configuration",
		},
	)

	Group0LogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scylla_group0_log_index",
			Help: "Current group 0 raft log index",
		},
	)

	Group0AppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scylla_group0_applied_index",
			Help: "Last applied group 0 raft log index",
		},
	)

	// Node-ops (C5) metrics: one counter per kind/outcome pair, plus a
	// duration histogram by kind, incremented at the call sites in
	// pkg/coordinator/operator.go.
	NodeOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scylla_node_ops_total",
			Help: "Total coordinator-driven node-ops runs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	NodeOpsDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scylla_node_ops_duration_seconds",
			Help:    "Duration of a full node-ops run (every peer's prepare..done) by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// WatchdogFiredTotal counts 120s-silence undo events (spec.md §5),
	// distinct from an explicit *_abort, by kind.
	WatchdogFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scylla_node_ops_watchdog_fired_total",
			Help: "Total entries undone by watchdog expiry rather than an explicit abort, by kind",
		},
		[]string{"kind"},
	)

	// ReplicationFinishedTotal counts replication_finished acks observed
	// by pkg/coordinator.RemovalTracker.
	ReplicationFinishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scylla_removal_replication_finished_total",
			Help: "Total replication_finished notifications received for in-flight removals",
		},
	)

	// RPC surface metrics (pkg/rpc).
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scylla_rpc_requests_total",
			Help: "Total RPC requests served by method and status",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scylla_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// StreamingDuration times one streaming.Engine call by the operation
	// it was invoked for (bootstrap/unbootstrap/missing_replicas/
	// sync_data/rebuild).
	StreamingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scylla_streaming_duration_seconds",
			Help:    "Duration of a streaming engine call by operation",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(NodeOperationMode)
	prometheus.MustRegister(RingVersion)
	prometheus.MustRegister(Group0IsLeader)
	prometheus.MustRegister(Group0PeersTotal)
	prometheus.MustRegister(Group0LogIndex)
	prometheus.MustRegister(Group0AppliedIndex)
	prometheus.MustRegister(NodeOpsTotal)
	prometheus.MustRegister(NodeOpsDuration)
	prometheus.MustRegister(WatchdogFiredTotal)
	prometheus.MustRegister(ReplicationFinishedTotal)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(StreamingDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
