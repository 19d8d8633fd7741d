package rpc

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/nodeops"
	"github.com/cuisonghui/scylla/pkg/raftgroup0"
	"github.com/cuisonghui/scylla/pkg/types"
)

// NodeOpsHandler answers a node_ops_cmd RPC. *nodeops.Station satisfies
// this directly.
type NodeOpsHandler interface {
	HandleCmd(ctx context.Context, req nodeops.NodeOpsCmdRequest) (nodeops.NodeOpsCmdResponse, error)
}

// ReplicationCompletionTracker answers a replication_finished RPC, sent
// by a peer that has streamed its share of a REMOVING_TOKEN endpoint's
// ranges (spec.md §4.3's handle_state_removing).
type ReplicationCompletionTracker interface {
	ReplicationFinished(ctx context.Context, coordinator, endpoint types.Endpoint) error
}

// Group0Handler answers group0_peer_exchange/group0_modify_config.
// *raftgroup0.Group0 satisfies this directly.
type Group0Handler interface {
	PeerExchange(ctx context.Context) (raftgroup0.GroupExchange, error)
	ModifyConfig(ctx context.Context, add, del []types.Endpoint) error
}

// Server is the peer-facing side of spec.md §6's messaging layer.
type Server struct {
	grpc *grpc.Server

	nodeOps     NodeOpsHandler
	replication ReplicationCompletionTracker
	group0      Group0Handler
}

// NewServer builds a Server over the given handlers and registers the
// hand-written service descriptor.
func NewServer(nodeOps NodeOpsHandler, replication ReplicationCompletionTracker, group0 Group0Handler) *Server {
	s := &Server{
		grpc:        grpc.NewServer(),
		nodeOps:     nodeOps,
		replication: replication,
		group0:      group0,
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Serve accepts connections on lis until the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop gracefully drains in-flight RPCs then shuts the server down.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func (s *Server) handleNodeOpsCmd(ctx context.Context, w *wireNodeOpsCmdRequest) (*wireNodeOpsCmdResponse, error) {
	req, err := fromWireRequest(*w)
	if err != nil {
		return nil, err
	}
	res, err := s.nodeOps.HandleCmd(ctx, req)
	if err != nil {
		return nil, err
	}
	out := toWireResponse(res)
	return &out, nil
}

func (s *Server) handleReplicationFinished(ctx context.Context, w *wireReplicationFinishedRequest) (*wireEmpty, error) {
	if s.replication == nil {
		log.WithComponent("rpc").Warn().Msg("replication_finished received with no tracker wired, dropping")
		return &wireEmpty{}, nil
	}
	err := s.replication.ReplicationFinished(ctx, types.NewEndpoint(w.Coordinator), types.NewEndpoint(w.Endpoint))
	return &wireEmpty{}, err
}

func (s *Server) handlePeerExchange(ctx context.Context, _ *wirePeerExchangeRequest) (*wirePeerExchangeResponse, error) {
	ex, err := s.group0.PeerExchange(ctx)
	if err != nil {
		return nil, err
	}
	out := toWirePeerExchangeResponse(ex)
	return &out, nil
}

func (s *Server) handleModifyConfig(ctx context.Context, w *wireModifyConfigRequest) (*wireEmpty, error) {
	add, del := fromWireModifyConfigRequest(*w)
	if err := s.group0.ModifyConfig(ctx, add, del); err != nil {
		return nil, err
	}
	return &wireEmpty{}, nil
}
