package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuisonghui/scylla/pkg/mode"
	"github.com/cuisonghui/scylla/pkg/streaming"
	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

// liveNormalPeers returns every NORMAL ring member except self, the node
// set every operator operation below fans its node-ops protocol out to.
func (n *Node) liveNormalPeers(exclude ...types.Endpoint) []types.Endpoint {
	skip := make(map[types.Endpoint]bool, len(exclude)+1)
	skip[n.cfg.Self] = true
	for _, ep := range exclude {
		skip[ep] = true
	}
	var out []types.Endpoint
	for _, ep := range n.gossip.Metadata().NormalEndpoints() {
		if !skip[ep] {
			out = append(out, ep)
		}
	}
	return out
}

// Decommission implements decommission(): this node leaves the ring
// voluntarily (spec.md §4.5's decommission row). It adds itself to
// leaving_endpoints locally (the same mutation a peer's node-ops station
// would apply on decommission_prepare, applied directly here since a node
// never RPCs itself), then drives the usual protocol against every other
// live member.
func (n *Node) Decommission(ctx context.Context, ignoreDead bool) (err error) {
	start := time.Now()
	defer func() { n.reportOps(types.OpDecommission, start, err) }()

	self := n.cfg.Self
	if err = n.mode.Transition(mode.Leaving); err != nil {
		return fmt.Errorf("coordinator: decommission: %w", err)
	}

	if err = n.gossip.Mutate(ctx, func(md *token.Metadata) {
		md.AddLeavingEndpoint(self)
	}); err != nil {
		return fmt.Errorf("coordinator: decommission: record leaving: %w", err)
	}

	peers := n.liveNormalPeers()
	local := &streaming.DecommissionOp{Engine: n.deps.Streamer, Self: self}
	if err = n.coord.RunDecommission(ctx, peers, self, local, ignoreDead); err != nil {
		return fmt.Errorf("coordinator: decommission: %w", err)
	}

	if err = n.gossip.Mutate(ctx, func(md *token.Metadata) {
		md.RemoveEndpoint(self)
	}); err != nil {
		return fmt.Errorf("coordinator: decommission: excise self: %w", err)
	}
	if err = n.mode.Transition(mode.Decommissioned); err != nil {
		return fmt.Errorf("coordinator: decommission: %w", err)
	}
	err = n.store.SetBootstrapState(types.BootstrapDecommissioned)
	return err
}

// RemoveNode implements removenode(host_id, ignore_nodes): an operator
// forcibly evicts a dead peer identified by hostID. ignoreNodes are peers
// already known unreachable, excluded from the fanout and not waited on
// for replication_finished.
func (n *Node) RemoveNode(ctx context.Context, hostID types.HostID, ignoreNodes []types.Endpoint) (err error) {
	start := time.Now()
	defer func() { n.reportOps(types.OpRemoveNode, start, err) }()

	md := n.gossip.Metadata()
	dead, ok := md.EndpointForHostID(hostID)
	if !ok {
		return fmt.Errorf("coordinator: removenode: unknown host id %s", hostID)
	}

	n.removeMu.Lock()
	n.removingNode = &dead
	n.removeMu.Unlock()
	defer func() {
		n.removeMu.Lock()
		n.removingNode = nil
		n.removeMu.Unlock()
	}()

	if err = n.gossip.Mutate(ctx, func(md *token.Metadata) {
		md.AddLeavingEndpoint(dead)
	}); err != nil {
		return fmt.Errorf("coordinator: removenode: record leaving: %w", err)
	}

	peers := n.liveNormalPeers(append([]types.Endpoint{dead}, ignoreNodes...)...)
	n.removals.Expect(dead, peers)

	local := &streaming.RemoveNodeOp{Engine: n.deps.Streamer, Dead: dead, Ignore: ignoreNodes}
	ignoreDead := len(ignoreNodes) > 0
	if err = n.coord.RunRemoveNode(ctx, peers, dead, local, ignoreDead); err != nil {
		return fmt.Errorf("coordinator: removenode: %w", err)
	}

	err = n.gossip.Mutate(ctx, func(md *token.Metadata) {
		md.RemoveEndpoint(dead)
	})
	return err
}

// ForceRemoveCompletion implements force_remove_completion(): an operator
// gives up waiting on stragglers for a removal already under way.
func (n *Node) ForceRemoveCompletion(leaving types.Endpoint) {
	n.removals.ForceComplete(leaving)
}

// RemovalOutstanding reports which peers have not yet acked leaving's
// removal, used by force_remove_completion's caller to decide whether it's
// even still needed.
func (n *Node) RemovalOutstanding(leaving types.Endpoint) []types.Endpoint {
	return n.removals.Outstanding(leaving)
}

// RemovalStatus implements get_removal_status(): a human-readable summary of
// the removenode call this node is currently driving, if any. Unlike
// RemovalOutstanding, which can be queried for any leaving endpoint ever
// passed to Expect, this only reports on the single call presently in
// flight through RemoveNode.
func (n *Node) RemovalStatus() string {
	n.removeMu.Lock()
	dead := n.removingNode
	n.removeMu.Unlock()

	if dead == nil {
		return "No token removals in process."
	}

	md := n.gossip.Metadata()
	tokens := md.NormalTokensOf(*dead)
	tokStrs := make([]string, len(tokens))
	for i, t := range tokens {
		tokStrs[i] = t.String()
	}

	waiting := n.removals.Outstanding(*dead)
	waitStrs := make([]string, len(waiting))
	for i, ep := range waiting {
		waitStrs[i] = ep.String()
	}

	return fmt.Sprintf("Removing token (%s). Waiting for replication confirmation from [%s].",
		strings.Join(tokStrs, ","), strings.Join(waitStrs, ","))
}

// Drain implements drain(): stop accepting new topology-change protocol
// traffic and flush whatever the streaming engine still owes, the
// operator-driven terminal shutdown path reachable from any mode.
func (n *Node) Drain(ctx context.Context) error {
	if err := n.mode.Transition(mode.Draining); err != nil {
		return fmt.Errorf("coordinator: drain: %w", err)
	}
	if err := n.deps.Streamer.StreamUnbootstrap(ctx, n.cfg.Self); err != nil {
		return fmt.Errorf("coordinator: drain: %w", err)
	}
	return n.mode.Transition(mode.Drained)
}

// Rebuild implements rebuild(source_dc): pull fresh replicas for this
// node's already-owned ranges from sourceDC, without any token-ownership
// change (unlike bootstrap/replace).
func (n *Node) Rebuild(ctx context.Context, sourceDC string) error {
	if sourceDC == "" {
		return fmt.Errorf("coordinator: rebuild: source_dc is required")
	}
	return n.deps.Streamer.StreamRebuild(ctx, n.cfg.Self, sourceDC)
}

// StartGossiping/StopGossiping implement their namesake operator calls.
// Non-goal: the transport's own start/stop semantics are opaque (spec.md
// §1); this only forwards to whatever deps.Bus itself exposes, when it
// exposes it.
func (n *Node) StartGossiping() {
	if starter, ok := n.deps.Bus.(interface{ StartGossiping() }); ok {
		starter.StartGossiping()
	}
}

func (n *Node) StopGossiping() {
	if stopper, ok := n.deps.Bus.(interface{ StopGossiping() }); ok {
		stopper.StopGossiping()
	}
}

// GetOperationMode implements get_operation_mode().
func (n *Node) GetOperationMode() mode.Mode {
	return n.mode.Current()
}

// RingEntry is one row of describe_ring's result: the range a replica set
// is responsible for.
type RingEntry struct {
	Range     token.Range
	Endpoints []types.Endpoint
}

// DescribeRing implements describe_ring(keyspace): the natural replica set
// for every range this node's ring view currently has tokens for. ks is
// accepted for signature parity with spec.md §6 but unused, since replica
// placement here is driven purely by ring geometry (pkg/token), not by any
// per-keyspace schema this module treats as a non-goal.
func (n *Node) DescribeRing(ks string) []RingEntry {
	md := n.gossip.Metadata()
	tokens := md.SortedTokens()
	entries := make([]RingEntry, 0, len(tokens))
	for i, right := range tokens {
		left := tokens[(i-1+len(tokens))%len(tokens)]
		owner, ok := md.OwnerOf(right)
		if !ok {
			continue
		}
		entries = append(entries, RingEntry{
			Range:     token.Range{Left: left, Right: right},
			Endpoints: []types.Endpoint{owner},
		})
	}
	return entries
}

// EffectiveOwnership implements effective_ownership(keyspace): the
// fraction of the ring each endpoint currently owns, by range count. ks is
// unused for the same reason as DescribeRing.
func (n *Node) EffectiveOwnership(ks string) map[types.Endpoint]float64 {
	entries := n.DescribeRing(ks)
	counts := make(map[types.Endpoint]int, len(entries))
	for _, e := range entries {
		for _, ep := range e.Endpoints {
			counts[ep]++
		}
	}
	total := len(entries)
	ownership := make(map[types.Endpoint]float64, len(counts))
	if total == 0 {
		return ownership
	}
	for ep, c := range counts {
		ownership[ep] = float64(c) / float64(total)
	}
	return ownership
}

// GetSplits implements get_splits(ks, cf, range, keys_per_split): this
// module has no row-count statistics (the local database is an opaque
// non-goal, spec.md §1), so it cannot subdivide rng by estimated key
// count. It returns rng unsplit, the only answer it can give without
// inventing data it does not have.
func (n *Node) GetSplits(ks, cf string, rng token.Range, keysPerSplit int) []token.Range {
	return []token.Range{rng}
}
