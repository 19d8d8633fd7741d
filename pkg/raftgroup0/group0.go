package raftgroup0

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/types"
)

// GroupExchange is the discovery result a node gets back from a seed's
// group0_peer_exchange RPC (spec.md §6): the seed's current view of group
// 0's voter set. Join and RemovePeer do not call PeerExchange; they try
// cfg.Seeds in order.
type GroupExchange struct {
	Members []types.Endpoint
}

// Exchanger is the narrow RPC surface Group0 needs from pkg/rpc: discovery
// (group0_peer_exchange) and the config-change call (group0_modify_config)
// a non-leader sends to each seed in turn until a seed that is the leader
// applies it.
type Exchanger interface {
	PeerExchange(ctx context.Context, seed types.Endpoint) (GroupExchange, error)
	ModifyConfig(ctx context.Context, seed types.Endpoint, add, del []types.Endpoint) error
}

// Config bundles what Group0 needs to stand up one raft.Raft instance.
type Config struct {
	Self types.Endpoint
	// Seeds are other group0 members to contact for discovery/proxying when
	// this node is not the first in the cluster.
	Seeds []types.Endpoint
	// DataDir holds the raft log, stable store, and snapshots.
	DataDir string
	// BootstrapSingleNode is true only for the very first node in a fresh
	// cluster (mirrors pkg/join's is_first_node check).
	BootstrapSingleNode bool
	Exchanger           Exchanger
}

// Group0 wraps a raft.Raft instance as the opaque join/leave API spec.md
// §6 calls for. It carries no business data; its FSM only exists to
// satisfy the raft.Raft constructor.
type Group0 struct {
	cfg  Config
	raft *raft.Raft
}

// New stands up transport, log/stable stores, and the raft.Raft instance
// for cfg.Self, following the teacher's poc/raft wiring
// (TCPTransport + raft-boltdb log/stable store + file snapshot store).
func New(cfg Config) (*Group0, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("raftgroup0: create data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.Self.String())

	addr, err := net.ResolveTCPAddr("tcp", cfg.Self.String())
	if err != nil {
		return nil, fmt.Errorf("raftgroup0: resolve %s: %w", cfg.Self, err)
	}
	transport, err := raft.NewTCPTransport(cfg.Self.String(), addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("raftgroup0: tcp transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(cfg.DataDir, 3, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("raftgroup0: snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "group0-log.db"))
	if err != nil {
		return nil, fmt.Errorf("raftgroup0: log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "group0-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("raftgroup0: stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, membershipFSM{}, logStore, stableStore, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("raftgroup0: new raft: %w", err)
	}

	return &Group0{cfg: cfg, raft: r}, nil
}

// Join implements pkg/join.Group0. A first node bootstraps a single-voter
// cluster; every other node asks a seed to proxy a group0_modify_config
// add for self, since only the leader may append configuration entries.
func (g *Group0) Join(ctx context.Context) error {
	if g.cfg.BootstrapSingleNode {
		configuration := raft.Configuration{
			Servers: []raft.Server{{ID: raft.ServerID(g.cfg.Self.String()), Address: raft.ServerAddress(g.cfg.Self.String())}},
		}
		future := g.raft.BootstrapCluster(configuration)
		if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
			return fmt.Errorf("raftgroup0: bootstrap: %w", err)
		}
		log.WithComponent("raftgroup0").Info().Str("self", g.cfg.Self.String()).Msg("bootstrapped group 0")
		return nil
	}

	for _, seed := range g.cfg.Seeds {
		if seed == g.cfg.Self {
			continue
		}
		if err := g.cfg.Exchanger.ModifyConfig(ctx, seed, []types.Endpoint{g.cfg.Self}, nil); err != nil {
			log.WithComponent("raftgroup0").Warn().Str("seed", seed.String()).Err(err).Msg("group0_modify_config proxy failed, trying next seed")
			continue
		}
		log.WithComponent("raftgroup0").Info().Str("seed", seed.String()).Msg("joined group 0 via proxy")
		return nil
	}
	return fmt.Errorf("raftgroup0: no seed accepted a group0_modify_config add for %s", g.cfg.Self)
}

// RemovePeer implements pkg/join.Group0 (used when replacing takes over an
// existing node's identity); pkg/nodeops does not call it. If this node is
// the leader it
// removes ep directly; otherwise it proxies the removal to a seed.
func (g *Group0) RemovePeer(ctx context.Context, ep types.Endpoint) error {
	if g.raft.State() == raft.Leader {
		future := g.raft.RemoveServer(raft.ServerID(ep.String()), 0, 0)
		return future.Error()
	}

	for _, seed := range g.cfg.Seeds {
		if seed == g.cfg.Self {
			continue
		}
		if err := g.cfg.Exchanger.ModifyConfig(ctx, seed, nil, []types.Endpoint{ep}); err != nil {
			continue
		}
		return nil
	}
	return fmt.Errorf("raftgroup0: no seed accepted a group0_modify_config remove for %s", ep)
}

// PeerExchange implements spec.md §6's group0_peer_exchange RPC handler
// side: report this node's current view of the voter set.
func (g *Group0) PeerExchange(context.Context) (GroupExchange, error) {
	var members []types.Endpoint
	for _, srv := range g.raft.GetConfiguration().Configuration().Servers {
		members = append(members, types.NewEndpoint(string(srv.Address)))
	}
	return GroupExchange{Members: members}, nil
}

// ModifyConfig implements spec.md §6's group0_modify_config RPC handler
// side: the leader applies add/del directly; a non-leader returns
// raft.ErrNotLeader, which pkg/rpc's server hands back to the caller
// unchanged (there is no redirect), so the caller's Join or RemovePeer moves
// on to its next seed.
func (g *Group0) ModifyConfig(ctx context.Context, add, del []types.Endpoint) error {
	if g.raft.State() != raft.Leader {
		return raft.ErrNotLeader
	}
	for _, ep := range add {
		future := g.raft.AddVoter(raft.ServerID(ep.String()), raft.ServerAddress(ep.String()), 0, 0)
		if err := future.Error(); err != nil {
			return fmt.Errorf("raftgroup0: add voter %s: %w", ep, err)
		}
	}
	for _, ep := range del {
		future := g.raft.RemoveServer(raft.ServerID(ep.String()), 0, 0)
		if err := future.Error(); err != nil {
			return fmt.Errorf("raftgroup0: remove voter %s: %w", ep, err)
		}
	}
	return nil
}

// IsLeader reports whether this node currently holds the group 0 leadership.
func (g *Group0) IsLeader() bool { return g.raft.State() == raft.Leader }

// PeerCount reports the number of voters in group 0's current
// configuration, for pkg/metrics's group0 peers gauge.
func (g *Group0) PeerCount() int {
	return len(g.raft.GetConfiguration().Configuration().Servers)
}

// Stats exposes raft.Raft's own stats map (last_log_index, applied_index,
// among others), for pkg/metrics's log-index gauges.
func (g *Group0) Stats() map[string]string {
	return g.raft.Stats()
}

// Shutdown stops the underlying raft.Raft instance.
func (g *Group0) Shutdown() error {
	return g.raft.Shutdown().Error()
}
