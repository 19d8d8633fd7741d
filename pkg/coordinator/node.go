package coordinator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cuisonghui/scylla/pkg/config"
	"github.com/cuisonghui/scylla/pkg/gossip"
	"github.com/cuisonghui/scylla/pkg/join"
	"github.com/cuisonghui/scylla/pkg/localdb"
	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/mode"
	"github.com/cuisonghui/scylla/pkg/nodeops"
	"github.com/cuisonghui/scylla/pkg/notify"
	"github.com/cuisonghui/scylla/pkg/raftgroup0"
	"github.com/cuisonghui/scylla/pkg/replicate"
	"github.com/cuisonghui/scylla/pkg/rpc"
	"github.com/cuisonghui/scylla/pkg/streaming"
	"github.com/cuisonghui/scylla/pkg/syskeyspace"
	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

// peerGateBox lets lifecycle be constructed before the gossip handler that
// will actually answer its PeerGate queries exists; New assigns gate once
// the handler is built.
type peerGateBox struct {
	gate notify.PeerGate
}

func (b *peerGateBox) GossipAlive(ep types.Endpoint) bool {
	return b.gate != nil && b.gate.GossipAlive(ep)
}

func (b *peerGateBox) CQLReady(ep types.Endpoint) bool {
	return b.gate != nil && b.gate.CQLReady(ep)
}

func (b *peerGateBox) Status(ep types.Endpoint) (types.StatusValue, bool) {
	if b.gate == nil {
		return "", false
	}
	return b.gate.Status(ep)
}

// Deps bundles the three external collaborators spec.md §1 and §6 name
// opaquely: the gossip transport, the streaming engine, and the local
// database. internal/fakecluster supplies these in tests; a production
// deployment supplies whatever concretely implements them at the process's
// outer edge (this module never does, by design).
type Deps struct {
	Bus      gossip.Bus
	Streamer streaming.Engine
	Database localdb.Database
	// Strategy computes natural replica sets for the gossip handler's
	// pending-ranges recomputation (pkg/token.ReplicationStrategy). Like
	// Database, this is an opaque "local database" concern spec.md §6
	// treats as injected rather than implemented here.
	Strategy token.ReplicationStrategy
}

// Node is the top-level wiring of one cluster member: every C1-C7
// component, raft group 0, the system keyspace, and the RPC surface that
// binds them to the rest of the cluster. It is this module's counterpart
// to the teacher's pkg/manager.Manager.
type Node struct {
	cfg  *config.Config
	deps Deps

	store      *syskeyspace.Store
	mode       *mode.Machine
	lifecycle  *notify.Notifier
	replicator *replicate.Replicator
	gossip     *gossip.Handler
	station    *nodeops.Station
	coord      *nodeops.Coordinator
	group0     *raftgroup0.Group0
	rpcClient  *rpc.Client
	rpcServer  *rpc.Server
	removals   *RemovalTracker
	listener   net.Listener

	// opsHook, if set, is called after every operator-driven node-ops run
	// (Decommission/RemoveNode) with its kind, outcome ("ok"/"error"), and
	// wall-clock duration. pkg/metrics's node-ops
	// counters/histogram are wired here by cmd/scylla-node rather than by
	// this package importing pkg/metrics directly, avoiding an import
	// cycle (pkg/metrics's Collector already imports pkg/coordinator).
	opsHook func(kind types.OpKind, outcome string, dur time.Duration)

	// removeMu and removingNode track the single removenode call this node
	// may be driving at a time, for RemovalStatus.
	removeMu     sync.Mutex
	removingNode *types.Endpoint

	// isolateMu, isolated, isolateReason, and onIsolate implement this
	// node's self-fencing latch: the first critical, unrecoverable local
	// error stops this node's RPC surface and is reported once. See
	// isolate.go.
	isolateMu     sync.Mutex
	isolated      bool
	isolateReason error
	onIsolate     func(error)
}

// OnNodeOps registers fn to observe every operator-driven node-ops run.
// Only one hook is kept; a later call replaces an earlier one.
func (n *Node) OnNodeOps(fn func(kind types.OpKind, outcome string, dur time.Duration)) {
	n.opsHook = fn
}

func (n *Node) reportOps(kind types.OpKind, start time.Time, err error) {
	if n.opsHook == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	n.opsHook(kind, outcome, time.Since(start))
}

// New constructs every collaborator and wires them together, but does not
// yet start gossiping or serving RPCs; call Start for that.
func New(cfg *config.Config, deps Deps) (*Node, error) {
	store, err := syskeyspace.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("coordinator: open system keyspace: %w", err)
	}

	modeMachine := mode.New()
	replicator := replicate.New(cfg.ShardCount)
	rpcClient := rpc.NewClient(cfg.Self)

	// gate is a settable indirection: notify.New needs a PeerGate at
	// construction time, but the only thing that satisfies PeerGate is the
	// gossip handler this gate is itself a dependency of. lifecycle only
	// calls through gate after Start runs, by which point gossipHandler is
	// assigned below.
	gate := &peerGateBox{}
	lifecycle := notify.New(gate)

	md := token.New()
	gossipHandler := gossip.New(gossip.Config{
		Self:       cfg.Self,
		Metadata:   md,
		Strategy:   deps.Strategy,
		Bus:        deps.Bus,
		Replicator: replicator,
		PeerStore:  store,
		Streamer:   deps.Streamer,
		Notifier:   rpcClient,
		Lifecycle:  lifecycle,
		Keyspaces:  deps.Database,
	})
	gate.gate = gossipHandler

	station := nodeops.NewStation(gossipHandler)
	coord := nodeops.NewCoordinator(rpcClient)

	group0, err := raftgroup0.New(raftgroup0.Config{
		Self:                cfg.Self,
		Seeds:               cfg.Seeds,
		DataDir:             cfg.DataDir,
		BootstrapSingleNode: cfg.Group0BootstrapSingleNode,
		Exchanger:           rpcClient,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("coordinator: build group0: %w", err)
	}

	removals := NewRemovalTracker()

	rpcServer := rpc.NewServer(station, removals, group0)

	n := &Node{
		cfg:        cfg,
		deps:       deps,
		store:      store,
		mode:       modeMachine,
		lifecycle:  lifecycle,
		replicator: replicator,
		gossip:     gossipHandler,
		station:    station,
		coord:      coord,
		group0:     group0,
		rpcClient:  rpcClient,
		rpcServer:  rpcServer,
		removals:   removals,
	}
	// A REMOVING_TOKEN/REMOVED_TOKEN status naming this node means another
	// peer force-removed it; drain in the background so gossip delivery is
	// not blocked on streaming.
	gossipHandler.OnSelfRemoved(func() {
		go func() {
			if err := n.Drain(context.Background()); err != nil {
				log.WithComponent("coordinator").Error().Err(err).Msg("drain after self-removal failed")
			}
		}()
	})
	return n, nil
}

// sequencerConfig builds the pkg/join.Config this node's Sequencer runs
// against, reusing the collaborators New already wired up.
func (n *Node) sequencerConfig() join.Config {
	return join.Config{
		Self:                    n.cfg.Self,
		Seeds:                   n.cfg.Seeds,
		NumTokens:               n.cfg.NumTokens,
		ConsistentRangeMovement: n.cfg.ConsistentRangeMovement,
		RingDelay:               n.cfg.RingDelay,
		ReplaceTarget:           n.cfg.ReplaceTarget,
		DecommissionOverride:    n.cfg.DecommissionOverride,

		NetVersion:        n.cfg.NetVersion,
		RPCAddress:        n.cfg.RPCAddress,
		ReleaseVersion:    n.cfg.ReleaseVersion,
		SupportedFeatures: n.cfg.SupportedFeatures,
		SchemaVersion:     n.cfg.SchemaVersion,
		SnitchName:        n.cfg.SnitchName,
		ShardCount:        n.cfg.ShardCount,
		IgnoreMSBBits:     n.cfg.IgnoreMSBBits,

		Bus:      gossipBusAdapter{n.deps.Bus},
		Shadow:   shadowRounderAdapter{n.deps.Bus},
		Group0:   n.group0,
		Schema:   n.deps.Database,
		Ring:     n.gossip,
		Seeder:   n.gossip,
		Hinter:   n.gossip,
		Streamer: n.deps.Streamer,
		CDC:      n.deps.Database,
		Store:    n.store,
		Mode:     n.mode,
	}
}

// gossipBusAdapter narrows deps.Bus down to pkg/join.Bus's three methods
// and supplies StartGossiping, which gossip.Bus (the application-state
// interpretation surface) has no need of but join.Sequencer does once
// prepare_to_join finishes. A concrete transport (internal/fakecluster's
// fake, or a real one) is expected to expose StartGossiping on the same
// value that implements gossip.Bus.
type gossipBusAdapter struct {
	bus gossip.Bus
}

func (a gossipBusAdapter) Advertise(ctx context.Context, key types.ApplicationStateKey, value string) error {
	return a.bus.Advertise(ctx, key, value)
}

func (a gossipBusAdapter) IsAlive(ep types.Endpoint) bool {
	return a.bus.IsAlive(ep)
}

func (a gossipBusAdapter) StartGossiping() {
	if starter, ok := a.bus.(interface{ StartGossiping() }); ok {
		starter.StartGossiping()
	}
}

// shadowRounderAdapter exposes deps.Bus's shadow-round method, if it has
// one, as join.ShadowRounder. The shadow round is a pre-gossip discovery
// query (spec.md §4.4 step 2) that sits below gossip.Bus's own interface,
// since Handler never needs it.
type shadowRounderAdapter struct {
	bus gossip.Bus
}

func (a shadowRounderAdapter) ShadowRound(ctx context.Context, seeds []types.Endpoint) (map[types.Endpoint]join.ShadowState, error) {
	rounder, ok := a.bus.(interface {
		ShadowRound(ctx context.Context, seeds []types.Endpoint) (map[types.Endpoint]join.ShadowState, error)
	})
	if !ok {
		return nil, fmt.Errorf("coordinator: bus does not support a shadow round")
	}
	return rounder.ShadowRound(ctx, seeds)
}

// Start runs prepare_to_join/join_token_ring (spec.md §4.4), then begins
// serving this node's RPC surface.
func (n *Node) Start(ctx context.Context, lis net.Listener) error {
	n.listener = lis

	// Peers may need to reach this node's group0/node-ops RPC surface
	// (another node's concurrent ModifyConfig proxy, a concurrent
	// topology change's prepare phase) before this node's own join
	// finishes, so the server goes up first.
	go func() {
		if err := n.rpcServer.Serve(lis); err != nil {
			log.WithComponent("coordinator").Error().Err(err).Msg("rpc server stopped")
			n.ReportCriticalError(fmt.Errorf("rpc server: %w", err))
		}
	}()

	seq := join.New(n.sequencerConfig())
	if err := seq.PrepareToJoin(ctx); err != nil {
		return fmt.Errorf("coordinator: prepare_to_join: %w", err)
	}
	if err := seq.JoinTokenRing(ctx); err != nil {
		return fmt.Errorf("coordinator: join_token_ring: %w", err)
	}
	return nil
}

// Mode exposes this node's lifecycle state machine, for pkg/metrics's
// node_operation_mode gauge and pkg/log's transition line.
func (n *Node) Mode() *mode.Machine { return n.mode }

// Group0 exposes the raft group 0 handle, for pkg/metrics's leader/peers/
// log-index gauges.
func (n *Node) Group0() *raftgroup0.Group0 { return n.group0 }

// TokenMetadata exposes this node's ring view, for pkg/metrics's ring
// version gauge.
func (n *Node) TokenMetadata() *token.Metadata { return n.gossip.Metadata() }

// Station exposes the peer-side node-ops handler, so pkg/metrics can
// register a watchdog-fired hook on it.
func (n *Node) Station() *nodeops.Station { return n.station }

// Removals exposes the removal-completion tracker, so pkg/metrics can
// register a replication_finished hook on it.
func (n *Node) Removals() *RemovalTracker { return n.removals }

// Shutdown tears down the RPC server, group 0's raft instance, outbound
// connections, and the system keyspace, in roughly reverse wiring order.
func (n *Node) Shutdown() error {
	n.rpcServer.Stop()
	var firstErr error
	if err := n.group0.Shutdown(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := n.rpcClient.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := n.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
