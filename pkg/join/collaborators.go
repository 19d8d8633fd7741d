package join

import (
	"context"
	"time"

	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

// Bus is the narrow slice of the gossip transport the join sequencer needs:
// announce this node's own application states, flip on full gossiping once
// prepare_to_join has finished, and check a peer's failure-detector state.
type Bus interface {
	Advertise(ctx context.Context, key types.ApplicationStateKey, value string) error
	StartGossiping()
	IsAlive(ep types.Endpoint) bool
}

// ShadowState is one peer's endpoint state as observed by a shadow gossip
// round, a lightweight query issued before this node starts gossiping for
// real (spec.md §4.4 step 2).
type ShadowState struct {
	Status types.StatusValue
	HostID types.HostID
	Tokens []types.Token
}

// ShadowRounder performs one shadow gossip round against seeds.
type ShadowRounder interface {
	ShadowRound(ctx context.Context, seeds []types.Endpoint) (map[types.Endpoint]ShadowState, error)
}

// Group0 is Raft group 0 membership, joined and left opaquely (consensus
// internals are a non-goal, spec.md §1; pkg/raftgroup0 implements this).
type Group0 interface {
	Join(ctx context.Context) error
	RemovePeer(ctx context.Context, ep types.Endpoint) error
}

// SchemaAgreement reports when every live peer has converged on the same
// schema version, opaquely (schema change is a non-goal, spec.md §1;
// pkg/localdb implements this).
type SchemaAgreement interface {
	WaitForAgreement(ctx context.Context) error
}

// RingObserver exposes read-only access to token metadata for the
// wait-conditions below. *gossip.Handler satisfies this.
type RingObserver interface {
	Metadata() *token.Metadata
}

// RingSeeder installs this node's normal tokens without a gossip
// round-trip. Used by the restart-a-normal-node fast path, so peers never
// see this node start gossiping before its ring position is known, and by
// join_token_ring to install the chosen tokens before STATUS=NORMAL.
// *gossip.Handler satisfies this via SeedNormalTokens.
type RingSeeder interface {
	SeedNormalTokens(ctx context.Context, self types.Endpoint, tokens []types.Token) error
}

// ReplacementHinter records an existing->replacing edge learned out of band
// by a shadow round, before gossip ever delivers a HIBERNATE status for the
// replacing endpoint. *gossip.Handler satisfies this.
type ReplacementHinter interface {
	SetReplacementHint(existing, replacing types.Endpoint)
}

// Streamer performs the bulk range transfer a bootstrapping or replacing
// node needs before it can safely announce STATUS=NORMAL (pkg/streaming).
type Streamer interface {
	StreamBootstrap(ctx context.Context, self types.Endpoint, tokens []types.Token) error
}

// CDCGenerator picks a new CDC generation id, opaquely (CDC generation math
// is a non-goal, spec.md §1; pkg/localdb or a dedicated package implements
// this).
type CDCGenerator interface {
	NewGeneration(ctx context.Context) (int64, error)
}

// Clock abstracts time.Now so the 60s retry windows below are deterministic
// under test, the same seam the pack's network package uses for its
// port-lease timeouts.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
