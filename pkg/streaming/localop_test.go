package streaming

import (
	"context"
	"testing"

	"github.com/cuisonghui/scylla/pkg/types"
)

type fakeEngine struct {
	bootstrapCalls []types.Endpoint
	unbootstrapped []types.Endpoint
	missingCalls   []types.Endpoint
	syncCalls      []types.Endpoint
}

func (f *fakeEngine) StreamBootstrap(ctx context.Context, self types.Endpoint, tokens []types.Token) error {
	f.bootstrapCalls = append(f.bootstrapCalls, self)
	return nil
}

func (f *fakeEngine) StreamUnbootstrap(ctx context.Context, self types.Endpoint) error {
	f.unbootstrapped = append(f.unbootstrapped, self)
	return nil
}

func (f *fakeEngine) StreamMissingReplicas(ctx context.Context, leaving, coordinator types.Endpoint) error {
	f.missingCalls = append(f.missingCalls, leaving)
	return nil
}

func (f *fakeEngine) StreamSyncData(ctx context.Context, dead types.Endpoint, ignore []types.Endpoint) error {
	f.syncCalls = append(f.syncCalls, dead)
	return nil
}

func (f *fakeEngine) StreamRebuild(ctx context.Context, self types.Endpoint, sourceDC string) error {
	return nil
}

func TestBootstrapOpAcceptsBootstrapAndReplaceKinds(t *testing.T) {
	engine := &fakeEngine{}
	self := types.NewEndpoint("10.0.0.1:7000")
	op := &BootstrapOp{Engine: engine, Self: self, Tokens: []types.Token{types.TokenFromInt64(1)}}

	if err := op.Run(context.Background(), types.OpBootstrap); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := op.Run(context.Background(), types.OpReplace); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(engine.bootstrapCalls) != 2 {
		t.Errorf("expected 2 stream calls, got %d", len(engine.bootstrapCalls))
	}

	if err := op.Run(context.Background(), types.OpDecommission); err == nil {
		t.Error("expected an error for a kind BootstrapOp does not support")
	}
}

func TestDecommissionOpOnlyAcceptsDecommission(t *testing.T) {
	engine := &fakeEngine{}
	self := types.NewEndpoint("10.0.0.1:7000")
	op := &DecommissionOp{Engine: engine, Self: self}

	if err := op.Run(context.Background(), types.OpDecommission); err != nil {
		t.Fatalf("decommission: %v", err)
	}
	if len(engine.unbootstrapped) != 1 || engine.unbootstrapped[0] != self {
		t.Errorf("expected StreamUnbootstrap called for %s, got %v", self, engine.unbootstrapped)
	}

	if err := op.Run(context.Background(), types.OpBootstrap); err == nil {
		t.Error("expected an error for a kind DecommissionOp does not support")
	}
}

func TestRemoveNodeOpOnlyAcceptsRemoveNode(t *testing.T) {
	engine := &fakeEngine{}
	dead := types.NewEndpoint("10.0.0.5:7000")
	ignore := []types.Endpoint{types.NewEndpoint("10.0.0.6:7000")}
	op := &RemoveNodeOp{Engine: engine, Dead: dead, Ignore: ignore}

	if err := op.Run(context.Background(), types.OpRemoveNode); err != nil {
		t.Fatalf("removenode: %v", err)
	}
	if len(engine.syncCalls) != 1 || engine.syncCalls[0] != dead {
		t.Errorf("expected StreamSyncData called for %s, got %v", dead, engine.syncCalls)
	}

	if err := op.Run(context.Background(), types.OpReplace); err == nil {
		t.Error("expected an error for a kind RemoveNodeOp does not support")
	}
}
