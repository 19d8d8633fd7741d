package fakecluster

import (
	"context"
	"testing"

	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

func TestBusAdvertiseFansOutToOtherJoinedViews(t *testing.T) {
	bus := NewBus()
	a := bus.Join(types.NewEndpoint("10.0.0.1:7000"))
	b := bus.Join(types.NewEndpoint("10.0.0.2:7000"))

	var received []string
	b.Subscribe(func(ep types.Endpoint, key types.ApplicationStateKey, value string) {
		received = append(received, ep.String()+"/"+string(key)+"="+value)
	})

	if err := a.Advertise(context.Background(), types.AppStateStatus, "NORMAL"); err != nil {
		t.Fatalf("advertise: %v", err)
	}

	if len(received) != 1 || received[0] != "10.0.0.1:7000/STATUS=NORMAL" {
		t.Errorf("unexpected delivery: %v", received)
	}
}

func TestBusAdvertiseDoesNotDeliverToSelf(t *testing.T) {
	bus := NewBus()
	a := bus.Join(types.NewEndpoint("10.0.0.1:7000"))

	called := false
	a.Subscribe(func(ep types.Endpoint, key types.ApplicationStateKey, value string) { called = true })

	if err := a.Advertise(context.Background(), types.AppStateStatus, "NORMAL"); err != nil {
		t.Fatalf("advertise: %v", err)
	}
	if called {
		t.Error("a should not observe its own advertisement")
	}
}

func TestBusSetAliveFiresOnAliveOnce(t *testing.T) {
	bus := NewBus()
	a := bus.Join(types.NewEndpoint("10.0.0.1:7000"))
	peer := types.NewEndpoint("10.0.0.2:7000")
	bus.Join(peer)
	bus.SetAlive(peer, false) // Join marks peer alive; start it down so the next call is a transition

	var fired int
	a.OnAlive(func(ep types.Endpoint) { fired++ })

	bus.SetAlive(peer, true)
	bus.SetAlive(peer, true) // already alive, must not refire

	if fired != 1 {
		t.Errorf("expected 1 alive callback, got %d", fired)
	}
}

func TestBusShadowRoundReadsAdvertisedState(t *testing.T) {
	bus := NewBus()
	seed := types.NewEndpoint("10.0.0.1:7000")
	a := bus.Join(seed)
	joiner := bus.Join(types.NewEndpoint("10.0.0.2:7000"))

	if err := a.Advertise(context.Background(), types.AppStateStatus, "NORMAL"); err != nil {
		t.Fatalf("advertise: %v", err)
	}
	if err := a.Advertise(context.Background(), types.AppStateTokens, types.TokenFromInt64(1).String()+","+types.TokenFromInt64(2).String()); err != nil {
		t.Fatalf("advertise: %v", err)
	}

	states, err := joiner.ShadowRound(context.Background(), []types.Endpoint{seed})
	if err != nil {
		t.Fatalf("shadow round: %v", err)
	}

	state, ok := states[seed]
	if !ok {
		t.Fatal("expected shadow state for seed")
	}
	if state.Status != types.StatusNormal {
		t.Errorf("expected NORMAL, got %q", state.Status)
	}
	if len(state.Tokens) != 2 {
		t.Errorf("expected 2 tokens, got %d", len(state.Tokens))
	}
}

func TestEngineRecordsCalls(t *testing.T) {
	e := NewEngine()
	self := types.NewEndpoint("10.0.0.1:7000")

	if err := e.StreamBootstrap(context.Background(), self, []types.Token{types.TokenFromInt64(1)}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := e.StreamRebuild(context.Background(), self, "dc2"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if len(e.Bootstrapped) != 1 || e.Bootstrapped[0] != self {
		t.Errorf("unexpected bootstrap calls: %v", e.Bootstrapped)
	}
	if len(e.Rebuilt) != 1 || e.Rebuilt[0].SourceDC != "dc2" {
		t.Errorf("unexpected rebuild calls: %v", e.Rebuilt)
	}
}

func TestDatabaseNewGenerationIncrements(t *testing.T) {
	db := NewDatabase(map[string][]string{"system": {"peers"}}, nil)

	first, err := db.NewGeneration(context.Background())
	if err != nil {
		t.Fatalf("new generation: %v", err)
	}
	second, err := db.NewGeneration(context.Background())
	if err != nil {
		t.Fatalf("new generation: %v", err)
	}
	if second <= first {
		t.Errorf("expected strictly increasing generations, got %d then %d", first, second)
	}

	if got := db.ColumnFamilies("system"); len(got) != 1 || got[0] != "peers" {
		t.Errorf("unexpected column families: %v", got)
	}
}

func TestSimpleStrategyReplicatesToDistinctOwners(t *testing.T) {
	md := token.New()
	epA := types.NewEndpoint("10.0.0.1:7000")
	epB := types.NewEndpoint("10.0.0.2:7000")
	epC := types.NewEndpoint("10.0.0.3:7000")
	md.UpdateNormalTokens([]types.Token{types.TokenFromInt64(10)}, epA)
	md.UpdateNormalTokens([]types.Token{types.TokenFromInt64(20)}, epB)
	md.UpdateNormalTokens([]types.Token{types.TokenFromInt64(30)}, epC)

	strategy := NewSimpleStrategy(2)
	owners := strategy.NaturalEndpoints(md, types.TokenFromInt64(5))

	if len(owners) != 2 {
		t.Fatalf("expected 2 owners, got %d: %v", len(owners), owners)
	}
	if owners[0] != epA || owners[1] != epB {
		t.Errorf("unexpected owners: %v", owners)
	}
}
