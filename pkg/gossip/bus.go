package gossip

import (
	"context"

	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

// Bus is the gossip transport collaborator (spec.md §1, §6). It delivers
// peer endpoint states and lets this node broadcast its own; Handler never
// reaches into wire format or failure-detector internals, only this
// interface.
type Bus interface {
	// Advertise announces one application-state key/value pair about this
	// node. The caller is responsible for batching keys that must appear
	// atomically to observers (spec.md §5's STATUS+TOKENS+CDC_GENERATION_ID
	// example) by issuing the Advertise calls back-to-back before yielding.
	Advertise(ctx context.Context, key types.ApplicationStateKey, value string) error

	// Subscribe registers onChange to be called for every observed
	// (endpoint, key, value) update. Handler.OnChange is the canonical
	// subscriber; tests may register their own to assert on traffic.
	Subscribe(onChange func(ep types.Endpoint, key types.ApplicationStateKey, value string))

	// IsAlive reports the failure detector's current verdict for ep.
	IsAlive(ep types.Endpoint) bool

	// GenerationOf returns the last-observed (generation, version) for ep,
	// used by the handler's tie-break logic. The zero value means unknown.
	GenerationOf(ep types.Endpoint) types.Generation

	// OnAlive registers fn to run whenever a peer transitions to alive.
	// handle_state_replacing uses this to defer pending-range recomputation
	// until a replacing endpoint it hasn't heard from yet becomes reachable.
	OnAlive(fn func(ep types.Endpoint))

	// HostIDOf returns ep's currently-advertised HOST_ID application state,
	// already decoded, the same way GenerationOf exposes a per-endpoint
	// gossip value the handler never has to decode itself.
	HostIDOf(ep types.Endpoint) (types.HostID, bool)

	// RemovalCoordinatorOf returns the endpoint named in ep's
	// currently-advertised REMOVAL_COORDINATOR application state — a
	// separate gossip key from STATUS, set by the node driving removenode
	// so every live replica knows who to notify once it has streamed ep's
	// ranges (handle_state_removing).
	RemovalCoordinatorOf(ep types.Endpoint) (types.Endpoint, bool)
}

// Replicator is the collaborator that publishes a mutated Metadata snapshot
// to every local shard (C6, pkg/replicate). Handler calls this after every
// structural mutation instead of publishing directly.
type Replicator interface {
	Replicate(ctx context.Context, md *token.Metadata) error
}

// PeerStore persists peer-observed tokens into the system keyspace
// (pkg/syskeyspace), so a restart can recover peer state before the next
// full gossip round arrives.
type PeerStore interface {
	SavePeerTokens(ep types.Endpoint, tokens []types.Token) error
}

// RemovalStreamer streams the ranges a REMOVING_TOKEN endpoint still owns
// to its surviving replicas (pkg/streaming), invoked opaquely per spec.md §1.
type RemovalStreamer interface {
	StreamMissingReplicas(ctx context.Context, leaving, coordinator types.Endpoint) error
}

// RemovalNotifier sends replication_finished to the coordinator named in a
// peer's REMOVAL_COORDINATOR state, once this node has streamed its share
// (pkg/rpc's client side).
type RemovalNotifier interface {
	NotifyReplicationFinished(ctx context.Context, coordinator types.Endpoint) error
}

// KeyspaceLister exposes the keyspace names pending ranges must be
// recomputed for (pkg/localdb.Database). The coordinator never interprets
// rows, only keyspace names (spec.md §1).
type KeyspaceLister interface {
	Keyspaces() []string
}
