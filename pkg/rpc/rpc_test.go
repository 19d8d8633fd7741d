package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cuisonghui/scylla/pkg/nodeops"
	"github.com/cuisonghui/scylla/pkg/raftgroup0"
	"github.com/cuisonghui/scylla/pkg/types"
)

type fakeNodeOpsHandler struct {
	lastReq nodeops.NodeOpsCmdRequest
	resp    nodeops.NodeOpsCmdResponse
	err     error
}

func (f *fakeNodeOpsHandler) HandleCmd(ctx context.Context, req nodeops.NodeOpsCmdRequest) (nodeops.NodeOpsCmdResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

type fakeReplicationTracker struct {
	coordinator, endpoint types.Endpoint
}

func (f *fakeReplicationTracker) ReplicationFinished(ctx context.Context, coordinator, endpoint types.Endpoint) error {
	f.coordinator, f.endpoint = coordinator, endpoint
	return nil
}

type fakeGroup0Handler struct {
	exchange    raftgroup0.GroupExchange
	lastAdd     []types.Endpoint
	lastDel     []types.Endpoint
	modifyCalls int
}

func (f *fakeGroup0Handler) PeerExchange(ctx context.Context) (raftgroup0.GroupExchange, error) {
	return f.exchange, nil
}

func (f *fakeGroup0Handler) ModifyConfig(ctx context.Context, add, del []types.Endpoint) error {
	f.modifyCalls++
	f.lastAdd, f.lastDel = add, del
	return nil
}

func startTestServer(t *testing.T, nodeOps NodeOpsHandler, rep ReplicationCompletionTracker, g0 Group0Handler) (net.Addr, func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(nodeOps, rep, g0)
	go srv.Serve(lis)
	return lis.Addr(), func() { srv.Stop() }
}

func TestClientServerNodeOpsCmdRoundTrip(t *testing.T) {
	handler := &fakeNodeOpsHandler{resp: nodeops.NodeOpsCmdResponse{PendingOps: []string{"op-1"}}}
	addr, stop := startTestServer(t, handler, nil, nil)
	defer stop()

	client := NewClient(types.NewEndpoint("127.0.0.1:0"))
	defer client.Close()

	ep := types.NewEndpoint(addr.String())
	tok := types.TokenFromInt64(42)
	req := nodeops.NodeOpsCmdRequest{
		Cmd:             types.CmdBootstrapPrepare,
		OpsUUID:         "op-1",
		Bootstrapping:   types.NewEndpoint("10.0.0.9:7000"),
		BootstrapTokens: []types.Token{tok},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := client.SendCmd(ctx, ep, req)
	if err != nil {
		t.Fatalf("SendCmd: %v", err)
	}
	if len(res.PendingOps) != 1 || res.PendingOps[0] != "op-1" {
		t.Errorf("unexpected response: %+v", res)
	}
	if handler.lastReq.Cmd != types.CmdBootstrapPrepare {
		t.Errorf("expected Cmd to round-trip, got %v", handler.lastReq.Cmd)
	}
	if len(handler.lastReq.BootstrapTokens) != 1 || handler.lastReq.BootstrapTokens[0].String() != tok.String() {
		t.Errorf("expected token to round-trip, got %v", handler.lastReq.BootstrapTokens)
	}
	if handler.lastReq.Bootstrapping.String() != "10.0.0.9:7000" {
		t.Errorf("expected bootstrapping endpoint to round-trip, got %v", handler.lastReq.Bootstrapping)
	}
}

func TestClientServerReplicationFinished(t *testing.T) {
	tracker := &fakeReplicationTracker{}
	addr, stop := startTestServer(t, &fakeNodeOpsHandler{}, tracker, nil)
	defer stop()

	self := types.NewEndpoint("10.0.0.2:7000")
	client := NewClient(self)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coordinator := types.NewEndpoint(addr.String())
	if err := client.NotifyReplicationFinished(ctx, coordinator); err != nil {
		t.Fatalf("NotifyReplicationFinished: %v", err)
	}
	if tracker.endpoint != self {
		t.Errorf("expected tracker to record self %s, got %s", self, tracker.endpoint)
	}
}

func TestClientServerGroup0PeerExchangeAndModifyConfig(t *testing.T) {
	members := []types.Endpoint{types.NewEndpoint("10.0.0.1:7000"), types.NewEndpoint("10.0.0.2:7000")}
	g0 := &fakeGroup0Handler{exchange: raftgroup0.GroupExchange{Members: members}}
	addr, stop := startTestServer(t, &fakeNodeOpsHandler{}, nil, g0)
	defer stop()

	client := NewClient(types.NewEndpoint("127.0.0.1:0"))
	defer client.Close()
	seed := types.NewEndpoint(addr.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ex, err := client.PeerExchange(ctx, seed)
	if err != nil {
		t.Fatalf("PeerExchange: %v", err)
	}
	if len(ex.Members) != 2 {
		t.Fatalf("expected 2 members, got %v", ex.Members)
	}

	add := []types.Endpoint{types.NewEndpoint("10.0.0.3:7000")}
	if err := client.ModifyConfig(ctx, seed, add, nil); err != nil {
		t.Fatalf("ModifyConfig: %v", err)
	}
	if g0.modifyCalls != 1 || len(g0.lastAdd) != 1 || g0.lastAdd[0] != add[0] {
		t.Errorf("expected ModifyConfig to be called with add=%v, got %v", add, g0.lastAdd)
	}
}
