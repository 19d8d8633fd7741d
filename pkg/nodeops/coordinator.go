package nodeops

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/types"
)

// NodeOpsClient sends one node_ops_cmd RPC to ep (pkg/rpc's Client
// implements it).
type NodeOpsClient interface {
	SendCmd(ctx context.Context, ep types.Endpoint, req NodeOpsCmdRequest) (NodeOpsCmdResponse, error)
}

// LocalOperation performs the local stream/repair work between the
// heartbeat phase and *_done/*_abort (spec.md §4.5's "(local stream/repair)"
// step), invoked opaquely per spec.md §1.
type LocalOperation interface {
	Run(ctx context.Context, kind types.OpKind) error
}

// FanoutResult partitions a phase's per-peer responses per spec.md §7's
// coordinator-side error taxonomy.
type FanoutResult struct {
	OK          []types.Endpoint
	UnknownVerb []types.Endpoint
	Closed      []types.Endpoint
	Other       map[types.Endpoint]error
}

// Coordinator is the operator-node side of the node-ops protocol: it fans
// a phase out to a sync_nodes set, classifies failures, and drives each
// operation's prepare -> heartbeat -> local-stream -> done sequence.
type Coordinator struct {
	client            NodeOpsClient
	heartbeatInterval time.Duration
	newUUID           func() string
}

// NewCoordinator builds a Coordinator with the spec's ~10s heartbeat
// cadence (spec.md §4.5).
func NewCoordinator(client NodeOpsClient) *Coordinator {
	return &Coordinator{
		client:            client,
		heartbeatInterval: 10 * time.Second,
		newUUID:           func() string { return uuid.New().String() },
	}
}

func (c *Coordinator) fanout(ctx context.Context, nodes []types.Endpoint, req NodeOpsCmdRequest) FanoutResult {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		res = FanoutResult{Other: make(map[types.Endpoint]error)}
	)
	for _, ep := range nodes {
		wg.Add(1)
		go func(ep types.Endpoint) {
			defer wg.Done()
			_, err := c.client.SendCmd(ctx, ep, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.OK = append(res.OK, ep)
			case errors.Is(err, ErrUnknownVerb):
				res.UnknownVerb = append(res.UnknownVerb, ep)
			case errors.Is(err, ErrClosed):
				res.Closed = append(res.Closed, ep)
			default:
				res.Other[ep] = err
			}
		}(ep)
	}
	wg.Wait()
	return res
}

func (c *Coordinator) abortAll(ctx context.Context, nodes []types.Endpoint, kind types.OpKind, opsUUID string) {
	if len(nodes) == 0 {
		return
	}
	c.fanout(ctx, nodes, NodeOpsCmdRequest{Cmd: abortCmdFor(kind), OpsUUID: opsUUID})
}

// preparePhase fans req out as a *_prepare and applies the error taxonomy:
// any UnknownVerb fails immediately without aborting anyone (those peers
// never applied prepare); any other-exception or (absent ignoreDead)
// Closed peer aborts the succeeded set and fails.
func (c *Coordinator) preparePhase(ctx context.Context, kind types.OpKind, nodes []types.Endpoint, req NodeOpsCmdRequest, ignoreDead bool) (FanoutResult, error) {
	res := c.fanout(ctx, nodes, req)

	if len(res.UnknownVerb) > 0 {
		return res, fmt.Errorf("nodeops: peer(s) %v do not support %s; please upgrade", res.UnknownVerb, req.Cmd)
	}
	if len(res.Other) > 0 {
		c.abortAll(ctx, res.OK, kind, req.OpsUUID)
		return res, fmt.Errorf("nodeops: prepare failed on %d peer(s): %v", len(res.Other), res.Other)
	}
	if len(res.Closed) > 0 && !ignoreDead {
		c.abortAll(ctx, res.OK, kind, req.OpsUUID)
		return res, fmt.Errorf("nodeops: peer(s) %v unreachable; retry with --ignore-dead-nodes", res.Closed)
	}
	return res, nil
}

// run drives the common prepare -> heartbeat -> local-stream -> done/abort
// sequence shared by every operation kind (spec.md §4.5's phase table).
func (c *Coordinator) run(ctx context.Context, kind types.OpKind, nodes []types.Endpoint, req NodeOpsCmdRequest, local LocalOperation, ignoreDead bool) error {
	logger := log.WithComponent("nodeops")

	res, err := c.preparePhase(ctx, kind, nodes, req, ignoreDead)
	if err != nil {
		return err
	}

	// res.OK already excludes Closed/UnknownVerb/Other peers, whether or
	// not ignoreDead let the prepare phase proceed past them.
	live := res.OK

	localDone := make(chan error, 1)
	go func() { localDone <- local.Run(ctx, kind) }()

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	heartbeatReq := NodeOpsCmdRequest{Cmd: heartbeatCmdFor(kind), OpsUUID: req.OpsUUID}
	for {
		select {
		case localErr := <-localDone:
			if localErr != nil {
				c.abortAll(ctx, live, kind, req.OpsUUID)
				return fmt.Errorf("nodeops: %s local operation failed: %w", kind, localErr)
			}
			doneReq := NodeOpsCmdRequest{Cmd: doneCmdFor(kind), OpsUUID: req.OpsUUID}
			doneRes := c.fanout(ctx, live, doneReq)
			if len(doneRes.Other) > 0 || len(doneRes.Closed) > 0 {
				logger.Warn().Str("ops_uuid", req.OpsUUID).Msg("not every peer acknowledged *_done; their watchdog will self-clear")
			}
			logger.Info().Str("ops_uuid", req.OpsUUID).Str("kind", string(kind)).Msg("operation complete")
			return nil
		case <-ctx.Done():
			c.abortAll(ctx, live, kind, req.OpsUUID)
			return ctx.Err()
		case <-ticker.C:
			c.fanout(ctx, live, heartbeatReq)
		}
	}
}

// RunBootstrap drives bootstrap_prepare -> heartbeat -> local stream ->
// bootstrap_done for a node joining with tokens.
func (c *Coordinator) RunBootstrap(ctx context.Context, nodes []types.Endpoint, bootstrapping types.Endpoint, tokens []types.Token, local LocalOperation, ignoreDead bool) error {
	req := NodeOpsCmdRequest{
		Cmd:             types.CmdBootstrapPrepare,
		OpsUUID:         c.newUUID(),
		Bootstrapping:   bootstrapping,
		BootstrapTokens: tokens,
	}
	return c.run(ctx, types.OpBootstrap, nodes, req, local, ignoreDead)
}

// RunReplace drives replace_prepare -> heartbeat -> local stream ->
// replace_done for replacing taking over existing's identity.
func (c *Coordinator) RunReplace(ctx context.Context, nodes []types.Endpoint, existing, replacing types.Endpoint, local LocalOperation, ignoreDead bool) error {
	req := NodeOpsCmdRequest{
		Cmd:              types.CmdReplacePrepare,
		OpsUUID:          c.newUUID(),
		ReplaceExisting:  existing,
		ReplaceReplacing: replacing,
	}
	return c.run(ctx, types.OpReplace, nodes, req, local, ignoreDead)
}

// RunDecommission drives decommission_prepare -> heartbeat -> unbootstrap
// (local stream out) -> decommission_done for self leaving voluntarily.
func (c *Coordinator) RunDecommission(ctx context.Context, nodes []types.Endpoint, self types.Endpoint, local LocalOperation, ignoreDead bool) error {
	req := NodeOpsCmdRequest{
		Cmd:     types.CmdDecommissionPrepare,
		OpsUUID: c.newUUID(),
		Leaving: self,
	}
	return c.run(ctx, types.OpDecommission, nodes, req, local, ignoreDead)
}

// RunRemoveNode drives removenode_prepare -> heartbeat -> sync_data
// (receivers stream) -> removenode_done for forcibly removing a dead peer.
func (c *Coordinator) RunRemoveNode(ctx context.Context, nodes []types.Endpoint, dead types.Endpoint, local LocalOperation, ignoreDead bool) error {
	req := NodeOpsCmdRequest{
		Cmd:     types.CmdRemoveNodePrepare,
		OpsUUID: c.newUUID(),
		Leaving: dead,
	}
	return c.run(ctx, types.OpRemoveNode, nodes, req, local, ignoreDead)
}
