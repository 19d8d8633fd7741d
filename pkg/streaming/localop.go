package streaming

import (
	"context"
	"fmt"

	"github.com/cuisonghui/scylla/pkg/types"
)

// BootstrapOp adapts Engine.StreamBootstrap to pkg/nodeops.LocalOperation,
// used for both the bootstrap and replace protocol's local-stream step
// (spec.md §4.5's phase table).
type BootstrapOp struct {
	Engine Engine
	Self   types.Endpoint
	Tokens []types.Token
}

func (op *BootstrapOp) Run(ctx context.Context, kind types.OpKind) error {
	if kind != types.OpBootstrap && kind != types.OpReplace {
		return fmt.Errorf("streaming: BootstrapOp does not support %s", kind)
	}
	return op.Engine.StreamBootstrap(ctx, op.Self, op.Tokens)
}

// DecommissionOp adapts Engine.StreamUnbootstrap to
// pkg/nodeops.LocalOperation for decommission's local-stream step.
type DecommissionOp struct {
	Engine Engine
	Self   types.Endpoint
}

func (op *DecommissionOp) Run(ctx context.Context, kind types.OpKind) error {
	if kind != types.OpDecommission {
		return fmt.Errorf("streaming: DecommissionOp does not support %s", kind)
	}
	return op.Engine.StreamUnbootstrap(ctx, op.Self)
}

// RemoveNodeOp adapts Engine.StreamSyncData to pkg/nodeops.LocalOperation
// for removenode's local-stream step.
type RemoveNodeOp struct {
	Engine Engine
	Dead   types.Endpoint
	Ignore []types.Endpoint
}

func (op *RemoveNodeOp) Run(ctx context.Context, kind types.OpKind) error {
	if kind != types.OpRemoveNode {
		return fmt.Errorf("streaming: RemoveNodeOp does not support %s", kind)
	}
	return op.Engine.StreamSyncData(ctx, op.Dead, op.Ignore)
}
