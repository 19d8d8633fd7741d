package rpc

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/cuisonghui/scylla/pkg/nodeops"
	"github.com/cuisonghui/scylla/pkg/raftgroup0"
	"github.com/cuisonghui/scylla/pkg/types"
)

// jsonCallOption selects codec.go's JSON codec instead of grpc's proto
// default for every call this client makes.
var jsonCallOption = grpc.CallContentSubtype(codecName)

// Client is this node's outbound side of spec.md §6's messaging layer. It
// satisfies pkg/nodeops.NodeOpsClient, pkg/gossip.RemovalNotifier, and
// pkg/raftgroup0.Exchanger, so one Client instance wires all three.
type Client struct {
	self types.Endpoint

	mu    sync.Mutex
	conns map[types.Endpoint]*grpc.ClientConn
}

// NewClient builds a Client that identifies itself as self in outbound
// replication_finished notifications.
func NewClient(self types.Endpoint) *Client {
	return &Client{self: self, conns: make(map[types.Endpoint]*grpc.ClientConn)}
}

func (c *Client) connFor(ep types.Endpoint) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[ep]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(ep.String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", ep, err)
	}
	c.conns[ep] = conn
	return conn, nil
}

// Close tears down every cached connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for ep, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, ep)
	}
	return firstErr
}

// classify maps a gRPC status to pkg/nodeops's sentinel error taxonomy
// (spec.md §7): Unimplemented means the peer doesn't know this verb yet
// (too old a version); Unavailable/DeadlineExceeded mean it's unreachable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unimplemented:
		return fmt.Errorf("rpc: %w: %v", nodeops.ErrUnknownVerb, err)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("rpc: %w: %v", nodeops.ErrClosed, err)
	default:
		return err
	}
}

// SendCmd implements pkg/nodeops.NodeOpsClient.
func (c *Client) SendCmd(ctx context.Context, ep types.Endpoint, req nodeops.NodeOpsCmdRequest) (nodeops.NodeOpsCmdResponse, error) {
	conn, err := c.connFor(ep)
	if err != nil {
		return nodeops.NodeOpsCmdResponse{}, classify(err)
	}
	in := toWireRequest(req)
	out := new(wireNodeOpsCmdResponse)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/NodeOpsCmd", &in, out, jsonCallOption); err != nil {
		return nodeops.NodeOpsCmdResponse{}, classify(err)
	}
	return fromWireResponse(*out), nil
}

// NotifyReplicationFinished implements pkg/gossip.RemovalNotifier.
func (c *Client) NotifyReplicationFinished(ctx context.Context, coordinator types.Endpoint) error {
	conn, err := c.connFor(coordinator)
	if err != nil {
		return classify(err)
	}
	in := wireReplicationFinishedRequest{Coordinator: coordinator.String(), Endpoint: c.self.String()}
	out := new(wireEmpty)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/ReplicationFinished", &in, out, jsonCallOption); err != nil {
		return classify(err)
	}
	return nil
}

// PeerExchange implements pkg/raftgroup0.Exchanger.
func (c *Client) PeerExchange(ctx context.Context, seed types.Endpoint) (raftgroup0.GroupExchange, error) {
	conn, err := c.connFor(seed)
	if err != nil {
		return raftgroup0.GroupExchange{}, err
	}
	in := wirePeerExchangeRequest{}
	out := new(wirePeerExchangeResponse)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/PeerExchange", &in, out, jsonCallOption); err != nil {
		return raftgroup0.GroupExchange{}, err
	}
	return fromWirePeerExchangeResponse(*out), nil
}

// ModifyConfig implements pkg/raftgroup0.Exchanger.
func (c *Client) ModifyConfig(ctx context.Context, seed types.Endpoint, add, del []types.Endpoint) error {
	conn, err := c.connFor(seed)
	if err != nil {
		return err
	}
	in := toWireModifyConfigRequest(add, del)
	out := new(wireEmpty)
	return conn.Invoke(ctx, "/"+ServiceName+"/ModifyConfig", &in, out, jsonCallOption)
}
