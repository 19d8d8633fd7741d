package fakecluster

import (
	"context"
	"sync"

	"github.com/cuisonghui/scylla/pkg/types"
)

// Engine is an in-memory streaming.Engine: it records every call instead
// of moving any data, for tests asserting that a topology change reached
// the point of invoking the streaming engine (spec.md §4.4/§4.5 each end
// their sequence there).
type Engine struct {
	mu sync.Mutex

	Bootstrapped     []types.Endpoint
	Unbootstrapped   []types.Endpoint
	MissingReplicas  []MissingReplicasCall
	SyncedFrom       []SyncDataCall
	Rebuilt          []RebuildCall
	FailBootstrap    error
	FailUnbootstrap  error
	FailMissingRepls error
}

type MissingReplicasCall struct {
	Leaving     types.Endpoint
	Coordinator types.Endpoint
}

type SyncDataCall struct {
	Dead   types.Endpoint
	Ignore []types.Endpoint
}

type RebuildCall struct {
	Self     types.Endpoint
	SourceDC string
}

// NewEngine constructs an empty Engine.
func NewEngine() *Engine { return &Engine{} }

func (e *Engine) StreamBootstrap(ctx context.Context, self types.Endpoint, tokens []types.Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailBootstrap != nil {
		return e.FailBootstrap
	}
	e.Bootstrapped = append(e.Bootstrapped, self)
	return nil
}

func (e *Engine) StreamUnbootstrap(ctx context.Context, self types.Endpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailUnbootstrap != nil {
		return e.FailUnbootstrap
	}
	e.Unbootstrapped = append(e.Unbootstrapped, self)
	return nil
}

func (e *Engine) StreamMissingReplicas(ctx context.Context, leaving, coordinator types.Endpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailMissingRepls != nil {
		return e.FailMissingRepls
	}
	e.MissingReplicas = append(e.MissingReplicas, MissingReplicasCall{leaving, coordinator})
	return nil
}

func (e *Engine) StreamSyncData(ctx context.Context, dead types.Endpoint, ignore []types.Endpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SyncedFrom = append(e.SyncedFrom, SyncDataCall{dead, append([]types.Endpoint{}, ignore...)})
	return nil
}

func (e *Engine) StreamRebuild(ctx context.Context, self types.Endpoint, sourceDC string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Rebuilt = append(e.Rebuilt, RebuildCall{self, sourceDC})
	return nil
}
