package join

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cuisonghui/scylla/pkg/mode"
	"github.com/cuisonghui/scylla/pkg/syskeyspace"
	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

// fakeBus also plays the part of a gossip feedback loop: advertising
// TOKENS then STATUS=NORMAL feeds straight back into the shared ring.
type fakeBus struct {
	advertised   []stateAnnouncement
	alive        map[types.Endpoint]bool
	gossiping    bool
	self         types.Endpoint
	ring         *token.Metadata
	pendingToken []types.Token
}

func newFakeBus() *fakeBus {
	return &fakeBus{alive: make(map[types.Endpoint]bool)}
}

func (b *fakeBus) Advertise(ctx context.Context, key types.ApplicationStateKey, value string) error {
	b.advertised = append(b.advertised, stateAnnouncement{key, value})
	switch key {
	case types.AppStateTokens:
		b.pendingToken = decodeTokens(value)
	case types.AppStateStatus:
		if b.ring != nil && types.StatusValue(value) == types.StatusNormal && len(b.pendingToken) > 0 {
			b.ring.UpdateNormalTokens(b.pendingToken, b.self)
		}
	}
	return nil
}
func (b *fakeBus) StartGossiping()                { b.gossiping = true }
func (b *fakeBus) IsAlive(ep types.Endpoint) bool { return b.alive[ep] }

func decodeTokens(raw string) []types.Token {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]types.Token, 0, len(parts))
	for _, p := range parts {
		if t, err := types.ParseToken(p); err == nil {
			out = append(out, t)
		}
	}
	return out
}

func (b *fakeBus) lastStatus() (types.StatusValue, bool) {
	for i := len(b.advertised) - 1; i >= 0; i-- {
		if b.advertised[i].key == types.AppStateStatus {
			return types.StatusValue(b.advertised[i].value), true
		}
	}
	return "", false
}

type fakeShadow struct {
	states map[types.Endpoint]ShadowState
	calls  int
}

func (s *fakeShadow) ShadowRound(ctx context.Context, seeds []types.Endpoint) (map[types.Endpoint]ShadowState, error) {
	s.calls++
	return s.states, nil
}

type fakeGroup0 struct {
	joined  bool
	removed []types.Endpoint
}

func (g *fakeGroup0) Join(ctx context.Context) error { g.joined = true; return nil }
func (g *fakeGroup0) RemovePeer(ctx context.Context, ep types.Endpoint) error {
	g.removed = append(g.removed, ep)
	return nil
}

type fakeSchema struct{}

func (fakeSchema) WaitForAgreement(ctx context.Context) error { return nil }

type fakeRing struct{ md *token.Metadata }

func (r *fakeRing) Metadata() *token.Metadata { return r.md }

type fakeSeeder struct{ called bool }

func (s *fakeSeeder) SeedNormalTokens(ctx context.Context, self types.Endpoint, tokens []types.Token) error {
	s.called = true
	return nil
}

type fakeStreamer struct{ called bool }

func (s *fakeStreamer) StreamBootstrap(ctx context.Context, self types.Endpoint, tokens []types.Token) error {
	s.called = true
	return nil
}

type fakeCDC struct{ next int64 }

func (c *fakeCDC) NewGeneration(ctx context.Context) (int64, error) {
	c.next++
	return c.next, nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func openStore(t *testing.T) *syskeyspace.Store {
	t.Helper()
	s, err := syskeyspace.Open(t.TempDir())
	if err != nil {
		t.Fatalf("syskeyspace.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func baseConfig(t *testing.T, self types.Endpoint, seeds []types.Endpoint) (Config, *fakeBus, *fakeGroup0, *fakeStreamer) {
	bus := newFakeBus()
	bus.self = self
	ring := &fakeRing{md: token.New()}
	bus.ring = ring.md
	group0 := &fakeGroup0{}
	streamer := &fakeStreamer{}
	return Config{
		Self:                    self,
		Seeds:                   seeds,
		NumTokens:               4,
		ConsistentRangeMovement: true,
		RingDelay:               time.Second,
		NetVersion:              "1",
		ReleaseVersion:          "1.0",
		SnitchName:              "SimpleSnitch",
		ShardCount:              1,

		Bus:      bus,
		Shadow:   &fakeShadow{states: map[types.Endpoint]ShadowState{}},
		Group0:   group0,
		Schema:   fakeSchema{},
		Ring:     ring,
		Seeder:   &fakeSeeder{},
		Streamer: streamer,
		CDC:      &fakeCDC{},
		Store:    openStore(t),
		Mode:     mode.New(),
		Clock:    &fakeClock{now: time.Unix(0, 0)},
		Sleep:    func(time.Duration) {},
	}, bus, group0, streamer
}

func TestFirstNodeSkipsShadowRoundAndStreaming(t *testing.T) {
	self := types.NewEndpoint("10.0.0.1:7000")
	cfg, bus, _, streamer := baseConfig(t, self, []types.Endpoint{self})
	shadow := cfg.Shadow.(*fakeShadow)
	seq := New(cfg)

	if err := seq.PrepareToJoin(context.Background()); err != nil {
		t.Fatalf("PrepareToJoin: %v", err)
	}
	if shadow.calls != 0 {
		t.Errorf("expected no shadow round for the first node, got %d calls", shadow.calls)
	}
	if err := seq.JoinTokenRing(context.Background()); err != nil {
		t.Fatalf("JoinTokenRing: %v", err)
	}
	if streamer.called {
		t.Error("expected bootstrap streaming to be skipped for the first node")
	}
	if status, ok := bus.lastStatus(); !ok || status != types.StatusNormal {
		t.Errorf("expected final STATUS=NORMAL, got %v ok=%v", status, ok)
	}
	if cfg.Mode.Current() != mode.Normal {
		t.Errorf("expected mode NORMAL, got %s", cfg.Mode.Current())
	}
	tokens, err := cfg.Store.LocalTokens()
	if err != nil {
		t.Fatalf("LocalTokens: %v", err)
	}
	if len(tokens) != cfg.NumTokens {
		t.Errorf("expected %d persisted tokens, got %d", cfg.NumTokens, len(tokens))
	}
}

func TestSecondNodeBootstrapsAndStreams(t *testing.T) {
	self := types.NewEndpoint("10.0.0.2:7000")
	peer := types.NewEndpoint("10.0.0.1:7000")
	cfg, bus, _, streamer := baseConfig(t, self, []types.Endpoint{self, peer})
	cfg.Shadow.(*fakeShadow).states[peer] = ShadowState{Status: types.StatusNormal}
	cfg.Ring.(*fakeRing).md.UpdateNormalTokens([]types.Token{types.TokenFromInt64(1)}, peer)
	cfg.Bus.(*fakeBus).alive[peer] = true
	seq := New(cfg)

	if err := seq.PrepareToJoin(context.Background()); err != nil {
		t.Fatalf("PrepareToJoin: %v", err)
	}
	if err := seq.JoinTokenRing(context.Background()); err != nil {
		t.Fatalf("JoinTokenRing: %v", err)
	}
	if !streamer.called {
		t.Error("expected bootstrap streaming for a second node")
	}
	var sawBootstrapping, sawNormal bool
	for _, a := range bus.advertised {
		if a.key == types.AppStateStatus && a.value == string(types.StatusBoot) {
			sawBootstrapping = true
		}
		if a.key == types.AppStateStatus && a.value == string(types.StatusNormal) {
			sawNormal = true
		}
	}
	if !sawBootstrapping || !sawNormal {
		t.Errorf("expected both BOOTSTRAPPING and NORMAL to be gossiped, got %+v", bus.advertised)
	}
}

func TestConcurrentBootstrapRefusedAfterDeadline(t *testing.T) {
	self := types.NewEndpoint("10.0.0.3:7000")
	peer := types.NewEndpoint("10.0.0.1:7000")
	other := types.NewEndpoint("10.0.0.4:7000")
	cfg, _, _, _ := baseConfig(t, self, []types.Endpoint{self, peer})
	cfg.Shadow.(*fakeShadow).states[other] = ShadowState{Status: types.StatusBoot}

	clock := cfg.Clock.(*fakeClock)
	cfg.Sleep = func(d time.Duration) { clock.now = clock.now.Add(d) }

	seq := New(cfg)
	err := seq.PrepareToJoin(context.Background())
	if err == nil {
		t.Fatal("expected a fatal error once the 60s collision window elapses")
	}
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Errorf("expected a *FatalError, got %T: %v", err, err)
	}
}
