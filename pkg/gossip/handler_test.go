package gossip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuisonghui/scylla/pkg/notify"
	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

type fakeBus struct {
	mu                  sync.Mutex
	alive               map[types.Endpoint]bool
	generations         map[types.Endpoint]types.Generation
	hostIDs             map[types.Endpoint]types.HostID
	removalCoordinators map[types.Endpoint]types.Endpoint
	onChange            func(types.Endpoint, types.ApplicationStateKey, string)
	onAliveFns          []func(types.Endpoint)
	advertised          []string
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		alive:               make(map[types.Endpoint]bool),
		generations:         make(map[types.Endpoint]types.Generation),
		hostIDs:             make(map[types.Endpoint]types.HostID),
		removalCoordinators: make(map[types.Endpoint]types.Endpoint),
	}
}

func (b *fakeBus) Advertise(ctx context.Context, key types.ApplicationStateKey, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advertised = append(b.advertised, string(key)+"="+value)
	return nil
}

func (b *fakeBus) Subscribe(fn func(types.Endpoint, types.ApplicationStateKey, string)) {
	b.onChange = fn
}

func (b *fakeBus) IsAlive(ep types.Endpoint) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alive[ep]
}

func (b *fakeBus) GenerationOf(ep types.Endpoint) types.Generation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generations[ep]
}

func (b *fakeBus) OnAlive(fn func(types.Endpoint)) {
	b.onAliveFns = append(b.onAliveFns, fn)
}

func (b *fakeBus) HostIDOf(ep types.Endpoint) (types.HostID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hostID, ok := b.hostIDs[ep]
	return hostID, ok
}

func (b *fakeBus) RemovalCoordinatorOf(ep types.Endpoint) (types.Endpoint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	coordinator, ok := b.removalCoordinators[ep]
	return coordinator, ok
}

func (b *fakeBus) deliver(ep types.Endpoint, key types.ApplicationStateKey, value string) {
	b.onChange(ep, key, value)
}

func (b *fakeBus) markAlive(ep types.Endpoint) {
	b.mu.Lock()
	b.alive[ep] = true
	fns := append([]func(types.Endpoint){}, b.onAliveFns...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ep)
	}
}

type fakeReplicator struct {
	mu   sync.Mutex
	last *token.Metadata
}

func (r *fakeReplicator) Replicate(ctx context.Context, md *token.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = md
	return nil
}

// fakeStreamer records StreamMissingReplicas calls and signals done once the
// first call returns, so a test can observe handleStateRemoving's
// asynchronous streaming goroutine without racing it.
type fakeStreamer struct {
	mu          sync.Mutex
	leaving     []types.Endpoint
	coordinator []types.Endpoint
	done        chan struct{}
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{done: make(chan struct{}, 8)}
}

func (s *fakeStreamer) StreamMissingReplicas(ctx context.Context, leaving, coordinator types.Endpoint) error {
	s.mu.Lock()
	s.leaving = append(s.leaving, leaving)
	s.coordinator = append(s.coordinator, coordinator)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *fakeStreamer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leaving)
}

type singleOwnerStrategy struct{}

func (singleOwnerStrategy) NaturalEndpoints(md *token.Metadata, t types.Token) []types.Endpoint {
	if owner, ok := md.OwnerOf(t); ok {
		return []types.Endpoint{owner}
	}
	return nil
}

func newTestHandler() (*Handler, *fakeBus, *fakeReplicator) {
	bus := newFakeBus()
	repl := &fakeReplicator{}
	h := New(Config{
		Self:       types.NewEndpoint("self:7000"),
		Metadata:   token.New(),
		Strategy:   singleOwnerStrategy{},
		Bus:        bus,
		Replicator: repl,
	})
	// Handler implements notify.PeerGate itself; wire the notifier once h
	// exists (pkg/coordinator does the same two-step construction).
	h.lifecycle = notify.New(h)
	return h, bus, repl
}

func TestHandleStateNormalClaimsUnownedToken(t *testing.T) {
	h, bus, _ := newTestHandler()
	ep := types.NewEndpoint("10.0.0.1:7000")
	bus.deliver(ep, types.AppStateStatus, "NORMAL,100")

	owner, ok := h.Metadata().OwnerOf(types.TokenFromInt64(100))
	if !ok || owner != ep {
		t.Fatalf("expected ep to own token 100, got %v ok=%v", owner, ok)
	}
}

func TestHandleStateNormalTieBreakTransfersOwnership(t *testing.T) {
	h, bus, _ := newTestHandler()
	e1 := types.NewEndpoint("10.0.0.1:7000")
	e2 := types.NewEndpoint("10.0.0.2:7000")

	bus.generations[e1] = types.Generation{Value: 1}
	bus.deliver(e1, types.AppStateStatus, "NORMAL,50")

	bus.generations[e2] = types.Generation{Value: 2}
	bus.deliver(e2, types.AppStateStatus, "NORMAL,50")

	owner, ok := h.Metadata().OwnerOf(types.TokenFromInt64(50))
	if !ok || owner != e2 {
		t.Fatalf("expected e2 to win the later-generation claim, got %v ok=%v", owner, ok)
	}
}

func TestHandleStateLeavingThenLeftExcises(t *testing.T) {
	h, bus, _ := newTestHandler()
	ep := types.NewEndpoint("10.0.0.3:7000")
	bus.deliver(ep, types.AppStateStatus, "NORMAL,7")

	bus.deliver(ep, types.AppStateStatus, "LEAVING")
	if !h.Metadata().IsLeaving(ep) {
		t.Fatal("expected ep marked leaving")
	}

	var leftFired bool
	h.lifecycle.Subscribe(func(ev notify.Event) {
		if ev.Type == notify.EventLeft && ev.Endpoint == ep {
			leftFired = true
		}
	})

	bus.deliver(ep, types.AppStateStatus, "LEFT,7")
	if _, ok := h.Metadata().OwnerOf(types.TokenFromInt64(7)); ok {
		t.Error("expected token released after LEFT")
	}
	if !leftFired {
		t.Error("expected notify_left to fire")
	}
}

func TestHandleStateBootstrapRecordsBootstrapTokens(t *testing.T) {
	h, bus, _ := newTestHandler()
	ep := types.NewEndpoint("10.0.0.4:7000")
	bus.deliver(ep, types.AppStateStatus, "BOOT,99")

	if got := h.Metadata().BootstrapTokensOf(ep); len(got) != 1 {
		t.Fatalf("expected 1 bootstrap token, got %d", len(got))
	}
}

func TestGossipAliveAndCQLReadyGateNotifyUp(t *testing.T) {
	h, bus, _ := newTestHandler()
	ep := types.NewEndpoint("10.0.0.5:7000")

	var upFired bool
	h.lifecycle.Subscribe(func(ev notify.Event) {
		if ev.Type == notify.EventUp && ev.Endpoint == ep {
			upFired = true
		}
	})

	h.lifecycle.NotifyUp(ep) // neither alive nor cql-ready yet
	if upFired {
		t.Fatal("expected no notify_up before gossip-alive and cql-ready")
	}

	bus.markAlive(ep)
	bus.deliver(ep, types.AppStateRPCReady, "true")
	h.lifecycle.NotifyUp(ep)
	if !upFired {
		t.Fatal("expected notify_up once gossip-alive and cql-ready both hold")
	}
}

func TestHandleStateBootstrapResolvesHostID(t *testing.T) {
	h, bus, _ := newTestHandler()
	ep := types.NewEndpoint("10.0.0.6:7000")
	hostID := types.NewHostID(1, 2)
	bus.hostIDs[ep] = hostID

	bus.deliver(ep, types.AppStateStatus, "BOOT,11")

	got, ok := h.Metadata().HostIDOf(ep)
	if !ok || got != hostID {
		t.Fatalf("expected host id %v recorded for ep, got %v ok=%v", hostID, got, ok)
	}
}

func TestHandleStateNormalResolvesHostID(t *testing.T) {
	h, bus, _ := newTestHandler()
	ep := types.NewEndpoint("10.0.0.7:7000")
	hostID := types.NewHostID(3, 4)
	bus.hostIDs[ep] = hostID

	bus.deliver(ep, types.AppStateStatus, "NORMAL,12")

	got, ok := h.Metadata().HostIDOf(ep)
	if !ok || got != hostID {
		t.Fatalf("expected host id %v recorded for ep, got %v ok=%v", hostID, got, ok)
	}
}

func TestHandleStateRemovingStreamsToAdvertisedCoordinator(t *testing.T) {
	bus := newFakeBus()
	repl := &fakeReplicator{}
	streamer := newFakeStreamer()
	h := New(Config{
		Self:       types.NewEndpoint("self:7000"),
		Metadata:   token.New(),
		Strategy:   singleOwnerStrategy{},
		Bus:        bus,
		Replicator: repl,
		Streamer:   streamer,
	})
	h.lifecycle = notify.New(h)

	leaving := types.NewEndpoint("10.0.0.8:7000")
	coordinator := types.NewEndpoint("10.0.0.9:7000")
	bus.removalCoordinators[leaving] = coordinator

	bus.deliver(leaving, types.AppStateStatus, "REMOVING_TOKEN,13")

	select {
	case <-streamer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for streamMissingReplicas")
	}

	if streamer.calls() != 1 {
		t.Fatalf("expected 1 stream call, got %d", streamer.calls())
	}
	if streamer.coordinator[0] != coordinator {
		t.Errorf("expected coordinator from REMOVAL_COORDINATOR state (%v), got %v", coordinator, streamer.coordinator[0])
	}
	if streamer.leaving[0] != leaving {
		t.Errorf("expected leaving endpoint %v, got %v", leaving, streamer.leaving[0])
	}
}

func TestHandleStateRemovingWithoutCoordinatorDoesNotStream(t *testing.T) {
	bus := newFakeBus()
	repl := &fakeReplicator{}
	streamer := newFakeStreamer()
	h := New(Config{
		Self:       types.NewEndpoint("self:7000"),
		Metadata:   token.New(),
		Strategy:   singleOwnerStrategy{},
		Bus:        bus,
		Replicator: repl,
		Streamer:   streamer,
	})
	h.lifecycle = notify.New(h)

	leaving := types.NewEndpoint("10.0.0.10:7000")
	// no REMOVAL_COORDINATOR advertised for leaving
	bus.deliver(leaving, types.AppStateStatus, "REMOVING_TOKEN,14")

	select {
	case <-streamer.done:
		t.Fatal("expected no stream call without an advertised removal coordinator")
	case <-time.After(100 * time.Millisecond):
	}
	if streamer.calls() != 0 {
		t.Fatalf("expected 0 stream calls, got %d", streamer.calls())
	}
}
