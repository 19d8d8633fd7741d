package gossip

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/notify"
	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

// Handler is C3, the gossip handler. It owns the token-metadata mutate lock
// and reacts to every application-state update the Bus delivers, per
// spec.md §4.3's on_change dispatch.
type Handler struct {
	self types.Endpoint

	mu       sync.Mutex
	md       *token.Metadata
	strategy token.ReplicationStrategy

	bus        Bus
	replicator Replicator
	peerStore  PeerStore
	streamer   RemovalStreamer
	notifier   RemovalNotifier
	lifecycle  *notify.Notifier
	keyspaces  KeyspaceLister

	gateMu   sync.RWMutex
	cqlReady map[types.Endpoint]bool
	statuses map[types.Endpoint]types.StatusValue

	// replacingHints records existing->replacing edges the join sequencer
	// learned out-of-band (a shadow round), consulted by
	// handleStateReplacing to resolve which existing endpoint a HIBERNATE
	// status concerns.
	replacingHints map[types.Endpoint]types.Endpoint

	// selfRemoved, if set, is invoked when this node observes its own
	// endpoint in a REMOVING_TOKEN/REMOVED_TOKEN status — i.e. it was
	// force-removed by another peer. pkg/coordinator wires this to
	// Node.Drain.
	selfRemoved func()
}

// Config bundles the collaborators Handler needs. Self, Metadata and Bus are
// required. Every other field may be nil, and the step that uses it is then
// skipped: a nil Keyspaces or Strategy makes pending-range recomputation a
// no-op, and a nil Replicator, PeerStore, Streamer, Notifier or Lifecycle
// skips replication, peer-token persistence, removal streaming,
// replication_finished, and lifecycle notifications respectively.
type Config struct {
	Self       types.Endpoint
	Metadata   *token.Metadata
	Strategy   token.ReplicationStrategy
	Bus        Bus
	Replicator Replicator
	PeerStore  PeerStore
	Streamer   RemovalStreamer
	Notifier   RemovalNotifier
	Lifecycle  *notify.Notifier
	Keyspaces  KeyspaceLister
}

// New builds a Handler and subscribes it to cfg.Bus.
func New(cfg Config) *Handler {
	h := &Handler{
		self:       cfg.Self,
		md:         cfg.Metadata,
		strategy:   cfg.Strategy,
		bus:        cfg.Bus,
		replicator: cfg.Replicator,
		peerStore:  cfg.PeerStore,
		streamer:   cfg.Streamer,
		notifier:   cfg.Notifier,
		lifecycle:  cfg.Lifecycle,
		keyspaces:  cfg.Keyspaces,
		cqlReady:       make(map[types.Endpoint]bool),
		statuses:       make(map[types.Endpoint]types.StatusValue),
		replacingHints: make(map[types.Endpoint]types.Endpoint),
	}
	cfg.Bus.Subscribe(h.OnChange)
	cfg.Bus.OnAlive(h.onAlive)
	return h
}

// SetReplacementHint records that replacing intends to take over existing's
// identity, learned by the join sequencer's shadow round before gossip ever
// delivers a HIBERNATE status for replacing. pkg/join calls this during
// prepare_to_join.
func (h *Handler) SetReplacementHint(existing, replacing types.Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replacingHints[existing] = replacing
}

// OnSelfRemoved registers fn to run if this node observes itself in a
// REMOVING_TOKEN/REMOVED_TOKEN gossip status.
func (h *Handler) OnSelfRemoved(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selfRemoved = fn
}

// Metadata returns the handler's current token metadata. Callers must treat
// it as read-only; Handler is the only mutator.
func (h *Handler) Metadata() *token.Metadata {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.md
}

// SeedNormalTokens installs tokens as self's normal tokens directly, without
// waiting for a gossip round-trip. pkg/join calls this for a node
// restarting with an already-COMPLETED bootstrap state, so that peers never
// observe this node gossiping before its own ring position is known
// (spec.md §4.4 step 3), and again in join_token_ring before announcing
// STATUS=NORMAL.
func (h *Handler) SeedNormalTokens(ctx context.Context, self types.Endpoint, tokens []types.Token) error {
	return h.mutate(ctx, func(md *token.Metadata) {
		md.UpdateNormalTokens(tokens, self)
	})
}

// OnChange is the gossip subscription callback: every observed
// (endpoint, key, value) update flows through here (spec.md §4.3).
func (h *Handler) OnChange(ep types.Endpoint, key types.ApplicationStateKey, value string) {
	if key == types.AppStateStatus {
		status, pieces := types.ParseStatus(value)
		h.setStatus(ep, status)
		h.dispatchStatus(ep, status, pieces)
		return
	}
	if key == types.AppStateRPCReady {
		h.setCQLReady(ep, value == "true")
		return
	}
	// All other keys (DC, RACK, RPC_ADDRESS, SCHEMA, HOST_ID, ...) are only
	// logged at debug level, and only when a PeerStore is configured; they
	// are not written to the system-peers table.
	if h.peerStore == nil {
		return
	}
	log.WithEndpoint(ep.String()).Debug().
		Str("key", string(key)).
		Str("value", value).
		Msg("peer application state updated")
}

func (h *Handler) dispatchStatus(ep types.Endpoint, status types.StatusValue, pieces []string) {
	switch status {
	case types.StatusBoot:
		h.handleStateBootstrap(ep, pieces)
	case types.StatusNormal, types.StatusShutdown:
		h.handleStateNormal(ep, pieces)
	case types.StatusLeaving:
		h.handleStateLeaving(ep)
	case types.StatusLeft:
		h.handleStateLeft(ep, pieces)
	case types.StatusRemovingToken, types.StatusRemovedToken:
		h.handleStateRemoving(ep, status, pieces)
	case types.StatusHibernate:
		// spec.md §9 open question (a): HIBERNATE is treated as replacing.
		h.handleStateReplacing(ep)
	case types.StatusMoving:
		log.WithEndpoint(ep.String()).Warn().Msg("MOVING status is not supported, ignoring")
	default:
		log.WithEndpoint(ep.String()).Warn().Str("status", string(status)).Msg("unrecognized STATUS value")
	}
}

func (h *Handler) setStatus(ep types.Endpoint, status types.StatusValue) {
	h.gateMu.Lock()
	defer h.gateMu.Unlock()
	h.statuses[ep] = status
}

func (h *Handler) setCQLReady(ep types.Endpoint, ready bool) {
	h.gateMu.Lock()
	defer h.gateMu.Unlock()
	h.cqlReady[ep] = ready
}

// GossipAlive implements notify.PeerGate.
func (h *Handler) GossipAlive(ep types.Endpoint) bool {
	return h.bus.IsAlive(ep)
}

// CQLReady implements notify.PeerGate.
func (h *Handler) CQLReady(ep types.Endpoint) bool {
	h.gateMu.RLock()
	defer h.gateMu.RUnlock()
	return h.cqlReady[ep]
}

// Status implements notify.PeerGate.
func (h *Handler) Status(ep types.Endpoint) (types.StatusValue, bool) {
	h.gateMu.RLock()
	defer h.gateMu.RUnlock()
	s, ok := h.statuses[ep]
	return s, ok
}

// mutate runs fn against a clone of the current metadata, recomputes
// pending ranges for every known keyspace, and publishes the result via the
// replicator. It is the single choke point every handle_state_* method uses
// to keep the mutate-then-publish sequence consistent with spec.md §5's
// ordering guarantee.
func (h *Handler) mutate(ctx context.Context, fn func(md *token.Metadata)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := h.md.Clone()
	fn(next)
	if h.strategy != nil {
		for _, ks := range h.listKeyspaces() {
			next.UpdatePendingRanges(ks, h.strategy)
		}
	}

	if h.replicator != nil {
		if err := h.replicator.Replicate(ctx, next); err != nil {
			return fmt.Errorf("gossip: replicate token metadata: %w", err)
		}
	}

	h.md = next
	return nil
}

// Mutate applies fn to a clone of the current metadata and publishes the
// result, the same clone-mutate-replicate-swap pipeline every
// handle_state_* method uses. pkg/nodeops calls this for the
// leaving/bootstrap/replacing edges a node-ops prepare/abort installs and
// undoes, since those transitions are driven by an RPC envelope rather
// than a gossip STATUS update.
func (h *Handler) Mutate(ctx context.Context, fn func(md *token.Metadata)) error {
	return h.mutate(ctx, fn)
}

func (h *Handler) listKeyspaces() []string {
	if h.keyspaces == nil {
		return nil
	}
	return h.keyspaces.Keyspaces()
}

func (h *Handler) onAlive(ep types.Endpoint) {
	h.mu.Lock()
	_, isReplacing := h.md.ReplacementFor(ep)
	h.mu.Unlock()
	if !isReplacing {
		return
	}
	if err := h.mutate(context.Background(), func(md *token.Metadata) {}); err != nil {
		log.WithEndpoint(ep.String()).Error().Err(err).Msg("failed to recompute pending ranges after deferred alive trigger")
	}
}
