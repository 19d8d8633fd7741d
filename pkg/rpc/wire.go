package rpc

import (
	"fmt"

	"github.com/cuisonghui/scylla/pkg/nodeops"
	"github.com/cuisonghui/scylla/pkg/raftgroup0"
	"github.com/cuisonghui/scylla/pkg/types"
)

// The nodeops/raftgroup0 domain types carry unexported fields (types.Token,
// types.HostID) that encoding/json cannot round-trip directly, so every RPC
// carries a flat wire struct of strings instead and this file converts at
// the boundary — the same role proto message <-> domain struct conversion
// plays in a codegen'd client (compare nodeToProto in the teacher's
// pkg/api/server.go).

type wireNodeOpsCmdRequest struct {
	Cmd              string
	OpsUUID          string
	Leaving          string
	Bootstrapping    string
	BootstrapTokens  []string
	ReplaceExisting  string
	ReplaceReplacing string
	IgnoreEndpoints  []string
}

type wireNodeOpsCmdResponse struct {
	PendingOps []string
}

func toWireRequest(req nodeops.NodeOpsCmdRequest) wireNodeOpsCmdRequest {
	w := wireNodeOpsCmdRequest{
		Cmd:              string(req.Cmd),
		OpsUUID:          req.OpsUUID,
		Leaving:          req.Leaving.String(),
		Bootstrapping:    req.Bootstrapping.String(),
		ReplaceExisting:  req.ReplaceExisting.String(),
		ReplaceReplacing: req.ReplaceReplacing.String(),
	}
	for _, t := range req.BootstrapTokens {
		w.BootstrapTokens = append(w.BootstrapTokens, t.String())
	}
	for _, ep := range req.IgnoreEndpoints {
		w.IgnoreEndpoints = append(w.IgnoreEndpoints, ep.String())
	}
	return w
}

func fromWireRequest(w wireNodeOpsCmdRequest) (nodeops.NodeOpsCmdRequest, error) {
	req := nodeops.NodeOpsCmdRequest{
		Cmd:              types.NodeOpsCmd(w.Cmd),
		OpsUUID:          w.OpsUUID,
		Leaving:          types.NewEndpoint(w.Leaving),
		Bootstrapping:    types.NewEndpoint(w.Bootstrapping),
		ReplaceExisting:  types.NewEndpoint(w.ReplaceExisting),
		ReplaceReplacing: types.NewEndpoint(w.ReplaceReplacing),
	}
	for _, s := range w.BootstrapTokens {
		t, err := types.ParseToken(s)
		if err != nil {
			return nodeops.NodeOpsCmdRequest{}, fmt.Errorf("rpc: bootstrap token: %w", err)
		}
		req.BootstrapTokens = append(req.BootstrapTokens, t)
	}
	for _, s := range w.IgnoreEndpoints {
		req.IgnoreEndpoints = append(req.IgnoreEndpoints, types.NewEndpoint(s))
	}
	return req, nil
}

func toWireResponse(res nodeops.NodeOpsCmdResponse) wireNodeOpsCmdResponse {
	return wireNodeOpsCmdResponse{PendingOps: res.PendingOps}
}

func fromWireResponse(w wireNodeOpsCmdResponse) nodeops.NodeOpsCmdResponse {
	return nodeops.NodeOpsCmdResponse{PendingOps: w.PendingOps}
}

type wireReplicationFinishedRequest struct {
	Coordinator string
	Endpoint    string
}

type wireEmpty struct{}

type wirePeerExchangeRequest struct{}

type wirePeerExchangeResponse struct {
	Members []string
}

func toWirePeerExchangeResponse(ex raftgroup0.GroupExchange) wirePeerExchangeResponse {
	w := wirePeerExchangeResponse{}
	for _, ep := range ex.Members {
		w.Members = append(w.Members, ep.String())
	}
	return w
}

func fromWirePeerExchangeResponse(w wirePeerExchangeResponse) raftgroup0.GroupExchange {
	var ex raftgroup0.GroupExchange
	for _, s := range w.Members {
		ex.Members = append(ex.Members, types.NewEndpoint(s))
	}
	return ex
}

type wireModifyConfigRequest struct {
	Add []string
	Del []string
}

func toWireModifyConfigRequest(add, del []types.Endpoint) wireModifyConfigRequest {
	w := wireModifyConfigRequest{}
	for _, ep := range add {
		w.Add = append(w.Add, ep.String())
	}
	for _, ep := range del {
		w.Del = append(w.Del, ep.String())
	}
	return w
}

func fromWireModifyConfigRequest(w wireModifyConfigRequest) (add, del []types.Endpoint) {
	for _, s := range w.Add {
		add = append(add, types.NewEndpoint(s))
	}
	for _, s := range w.Del {
		del = append(del, types.NewEndpoint(s))
	}
	return add, del
}
