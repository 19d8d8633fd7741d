package coordinator

import (
	"context"
	"sync"

	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/types"
)

// RemovalTracker answers pkg/rpc's ReplicationFinished RPC (spec.md §6's
// replication_finished(from) → ()) on behalf of this node's in-flight
// removenode operations: handle_state_removing (pkg/gossip) has every live
// replica stream a REMOVING_TOKEN endpoint's ranges and then notify the
// coordinator named in REMOVAL_COORDINATOR, and this is where that
// notification lands.
//
// Tracking is purely observational: RunRemoveNode's own prepare/heartbeat/
// done sequence (pkg/nodeops) does not block on these acks, since not every
// live replica is guaranteed to ever report (a peer can die mid-stream).
// force_remove_completion lets an operator declare a removal finished
// without waiting for stragglers.
type RemovalTracker struct {
	mu      sync.Mutex
	pending map[types.Endpoint]map[types.Endpoint]bool // leaving -> reporter -> done

	// onAck, if set, is called once per accepted replication_finished ack.
	// pkg/metrics's ReplicationFinishedTotal counter is wired here by
	// cmd/scylla-node.
	onAck func()
}

// NewRemovalTracker returns an empty tracker.
func NewRemovalTracker() *RemovalTracker {
	return &RemovalTracker{pending: make(map[types.Endpoint]map[types.Endpoint]bool)}
}

// OnReplicationFinished registers fn to be called once per accepted
// replication_finished ack.
func (t *RemovalTracker) OnReplicationFinished(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAck = fn
}

// Expect registers that removing leaving should wait on an acknowledgment
// from each of reporters, called by the operator-facing RemoveNode once
// it knows the live replica set removenode_prepare went out to.
func (t *RemovalTracker) Expect(leaving types.Endpoint, reporters []types.Endpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	acks := make(map[types.Endpoint]bool, len(reporters))
	for _, ep := range reporters {
		acks[ep] = false
	}
	t.pending[leaving] = acks
}

// ReplicationFinished implements pkg/rpc.ReplicationCompletionTracker.
func (t *RemovalTracker) ReplicationFinished(ctx context.Context, coordinator, endpoint types.Endpoint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	// coordinator identifies which removal this ack is for by the leaving
	// endpoint named in REMOVAL_COORDINATOR; callers key Expect/Outstanding
	// by that same leaving endpoint, so coordinator here doubles as it.
	acks, ok := t.pending[coordinator]
	if !ok {
		log.WithComponent("coordinator").Warn().
			Str("leaving", coordinator.String()).Str("from", endpoint.String()).
			Msg("replication_finished for an untracked removal")
		return nil
	}
	acks[endpoint] = true
	if t.onAck != nil {
		t.onAck()
	}
	return nil
}

// Outstanding returns the reporters that have not yet acked leaving's
// removal. An empty, non-nil slice means every expected reporter has
// acked; a nil slice means leaving isn't tracked at all.
func (t *RemovalTracker) Outstanding(leaving types.Endpoint) []types.Endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	acks, ok := t.pending[leaving]
	if !ok {
		return nil
	}
	out := make([]types.Endpoint, 0)
	for ep, done := range acks {
		if !done {
			out = append(out, ep)
		}
	}
	return out
}

// ForceComplete implements force_remove_completion: it marks every
// outstanding reporter for leaving as acked, regardless of whether they
// ever actually reported.
func (t *RemovalTracker) ForceComplete(leaving types.Endpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	acks, ok := t.pending[leaving]
	if !ok {
		return
	}
	for ep := range acks {
		acks[ep] = true
	}
}
