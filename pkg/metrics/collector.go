package metrics

import (
	"strconv"
	"time"

	"github.com/cuisonghui/scylla/pkg/coordinator"
)

// Collector periodically samples a Node's gauges that aren't naturally
// pushed at the moment they change (mode transitions and node-ops outcomes
// are instrumented directly at their call sites instead).
type Collector struct {
	node   *coordinator.Node
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector for node.
func NewCollector(node *coordinator.Node) *Collector {
	return &Collector{
		node:   node,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15s, matching the teacher's scrape
// cadence.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	NodeOperationMode.Set(float64(c.node.GetOperationMode().Code()))
	RingVersion.Set(float64(c.node.TokenMetadata().RingVersion()))
	c.collectGroup0Metrics()
}

func (c *Collector) collectGroup0Metrics() {
	group0 := c.node.Group0()
	if group0 == nil {
		return
	}

	if group0.IsLeader() {
		Group0IsLeader.Set(1)
	} else {
		Group0IsLeader.Set(0)
	}
	Group0PeersTotal.Set(float64(group0.PeerCount()))

	stats := group0.Stats()
	if lastIndex, err := strconv.ParseUint(stats["last_log_index"], 10, 64); err == nil {
		Group0LogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, err := strconv.ParseUint(stats["applied_index"], 10, 64); err == nil {
		Group0AppliedIndex.Set(float64(appliedIndex))
	}
}
