package streaming

import (
	"context"

	"github.com/cuisonghui/scylla/pkg/types"
)

// Engine performs bulk range transfer between endpoints. Every method is
// opaque per spec.md §1; this package only models the call shape each
// topology operation needs, not the wire format or SSTable internals.
type Engine interface {
	// StreamBootstrap pulls self's owned ranges for tokens in from the
	// current replica set. Used by both a fresh bootstrap and a replace
	// (spec.md §4.4's bootstrap(), both branches end by "invoke the
	// streaming engine").
	StreamBootstrap(ctx context.Context, self types.Endpoint, tokens []types.Token) error

	// StreamUnbootstrap pushes self's owned ranges out to the endpoints
	// that will own them once self has left the ring (spec.md §4.5's
	// decommission row: "unbootstrap() (streams data out)").
	StreamUnbootstrap(ctx context.Context, self types.Endpoint) error

	// StreamMissingReplicas streams the ranges a REMOVING_TOKEN endpoint
	// still owns to its surviving replicas (spec.md §4.3's
	// handle_state_removing). It does not notify coordinator itself:
	// pkg/gossip's handler sends replication_finished through its
	// RemovalNotifier once this returns nil. Satisfies
	// pkg/gossip.RemovalStreamer.
	StreamMissingReplicas(ctx context.Context, leaving, coordinator types.Endpoint) error

	// StreamSyncData streams a dead endpoint's ranges from its surviving
	// replicas on the coordinator's behalf, skipping any endpoint in
	// ignore (spec.md §4.5's removenode row: "removenode_sync_data
	// (receivers stream)").
	StreamSyncData(ctx context.Context, dead types.Endpoint, ignore []types.Endpoint) error

	// StreamRebuild pulls self's owned ranges fresh from sourceDC without
	// changing token ownership, for the operator-invoked rebuild() call
	// (spec.md §6's operator API). Unlike StreamBootstrap this never
	// touches bootstrap_tokens/normal_tokens; self already owns what it is
	// rebuilding.
	StreamRebuild(ctx context.Context, self types.Endpoint, sourceDC string) error
}
