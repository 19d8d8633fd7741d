package token

import (
	"context"
	"testing"

	"github.com/cuisonghui/scylla/pkg/types"
)

func tok(v int64) types.Token { return types.TokenFromInt64(v) }
func ep(addr string) types.Endpoint { return types.NewEndpoint(addr) }

func TestAddRemoveBootstrapTokensRoundTrip(t *testing.T) {
	m := New()
	before := m.RingVersion()

	m.AddBootstrapTokens([]types.Token{tok(10), tok(20)}, ep("10.0.0.1:7000"))
	if got := m.BootstrapTokensOf(ep("10.0.0.1:7000")); len(got) != 2 {
		t.Fatalf("expected 2 bootstrap tokens, got %d", len(got))
	}

	m.RemoveBootstrapTokens([]types.Token{tok(10), tok(20)})
	if got := m.BootstrapTokensOf(ep("10.0.0.1:7000")); len(got) != 0 {
		t.Errorf("expected bootstrap tokens cleared, got %d", len(got))
	}
	if m.RingVersion() <= before {
		t.Errorf("expected ring_version to advance, stayed at %d", m.RingVersion())
	}
}

func TestAddDelLeavingEndpointRoundTrip(t *testing.T) {
	m := New()
	e := ep("10.0.0.2:7000")
	m.UpdateNormalTokens([]types.Token{tok(5)}, e)

	m.AddLeavingEndpoint(e)
	if !m.IsLeaving(e) {
		t.Fatal("expected endpoint marked leaving")
	}
	// invariant 2: tokens remain until Excise, never touched by leaving markers
	if owner, ok := m.OwnerOf(tok(5)); !ok || owner != e {
		t.Errorf("leaving endpoint should still own its token, got owner=%v ok=%v", owner, ok)
	}

	m.DelLeavingEndpoint(e)
	if m.IsLeaving(e) {
		t.Error("expected leaving marker cleared")
	}
}

func TestTokenAppearsInAtMostOneMap(t *testing.T) {
	m := New()
	e1 := ep("10.0.0.1:7000")
	e2 := ep("10.0.0.2:7000")

	m.AddBootstrapTokens([]types.Token{tok(1)}, e1)
	m.UpdateNormalTokens([]types.Token{tok(1)}, e2)

	if _, ok := m.bootstrapTokens[tok(1).String()]; ok {
		t.Error("token should have been removed from bootstrap_tokens once claimed as normal")
	}
	owner, ok := m.OwnerOf(tok(1))
	if !ok || owner != e2 {
		t.Errorf("expected e2 to own token 1, got %v ok=%v", owner, ok)
	}
}

func TestUpdateHostIDCollisionTieBreak(t *testing.T) {
	m := New()
	e1 := ep("10.0.0.1:7000")
	e2 := ep("10.0.0.2:7000")
	hostID := types.NewHostID(1, 1)

	m.UpdateHostID(hostID, e1, types.Generation{Value: 100})
	// e2 claims the same host id with an earlier generation: should lose.
	m.UpdateHostID(hostID, e2, types.Generation{Value: 50})
	if owner, _ := m.EndpointForHostID(hostID); owner != e1 {
		t.Errorf("expected e1 to retain host id after losing claim, got %v", owner)
	}

	// e2 claims again with a later generation: should win and evict e1.
	m.UpdateHostID(hostID, e2, types.Generation{Value: 200})
	if owner, _ := m.EndpointForHostID(hostID); owner != e2 {
		t.Errorf("expected e2 to win host id with later generation, got %v", owner)
	}
	if _, ok := m.HostIDOf(e1); ok {
		t.Error("expected e1's host id mapping evicted after losing tie-break")
	}
}

func TestHostIDMapStaysInjective(t *testing.T) {
	m := New()
	m.UpdateHostID(types.NewHostID(1, 1), ep("a:1"), types.Generation{Value: 1})
	m.UpdateHostID(types.NewHostID(2, 2), ep("b:1"), types.Generation{Value: 1})
	if err := m.mustAllOwnershipRules(); err != nil {
		t.Fatalf("host id map should stay injective: %v", err)
	}
}

func TestRemoveEndpointExcisesEverything(t *testing.T) {
	m := New()
	e := ep("10.0.0.5:7000")
	m.UpdateNormalTokens([]types.Token{tok(1), tok(2)}, e)
	m.AddLeavingEndpoint(e)
	m.UpdateHostID(types.NewHostID(9, 9), e, types.Generation{Value: 1})

	m.RemoveEndpoint(e)

	if _, ok := m.OwnerOf(tok(1)); ok {
		t.Error("expected tokens removed after RemoveEndpoint")
	}
	if m.IsLeaving(e) {
		t.Error("expected leaving marker removed after RemoveEndpoint")
	}
	if _, ok := m.HostIDOf(e); ok {
		t.Error("expected host id mapping removed after RemoveEndpoint")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := New()
	e := ep("10.0.0.1:7000")
	m.UpdateNormalTokens([]types.Token{tok(1)}, e)

	clone := m.Clone()
	clone.UpdateNormalTokens([]types.Token{tok(2)}, e)

	if _, ok := m.OwnerOf(tok(2)); ok {
		t.Error("mutating the clone should not affect the original")
	}
	if _, ok := clone.OwnerOf(tok(1)); !ok {
		t.Error("clone should carry over the original's state")
	}
}

func TestCloneAsyncRespectsCancellation(t *testing.T) {
	m := New()
	for i := int64(0); i < yieldEvery+10; i++ {
		m.UpdateNormalTokens([]types.Token{tok(i)}, ep("a:1"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.CloneAsync(ctx); err == nil {
		t.Error("expected CloneAsync to observe cancellation on a large map")
	}
}

func TestCloneAfterAllLeftDropsLeavingEndpoints(t *testing.T) {
	m := New()
	stayer := ep("stayer:1")
	leaver := ep("leaver:1")
	m.UpdateNormalTokens([]types.Token{tok(1)}, stayer)
	m.UpdateNormalTokens([]types.Token{tok(2)}, leaver)
	m.AddLeavingEndpoint(leaver)

	future := m.CloneAfterAllLeft()
	if _, ok := future.OwnerOf(tok(2)); ok {
		t.Error("expected leaving endpoint's tokens gone from the after-all-left snapshot")
	}
	if _, ok := future.OwnerOf(tok(1)); !ok {
		t.Error("expected stayer's tokens to survive")
	}
	if _, ok := m.OwnerOf(tok(2)); !ok {
		t.Error("CloneAfterAllLeft must not mutate the original")
	}
}

func TestResolveTokenClaim(t *testing.T) {
	m := New()
	e1 := ep("a:1")
	e2 := ep("b:1")
	m.UpdateNormalTokens([]types.Token{tok(1)}, e1)
	m.generations[e1] = types.Generation{Value: 10}

	if _, result := m.ResolveTokenClaim(tok(99), e2, types.Generation{Value: 1}); result != ClaimNoOwner {
		t.Errorf("expected ClaimNoOwner for an unowned token, got %v", result)
	}
	if _, result := m.ResolveTokenClaim(tok(1), e1, types.Generation{Value: 10}); result != ClaimAlreadyOwner {
		t.Errorf("expected ClaimAlreadyOwner, got %v", result)
	}
	if _, result := m.ResolveTokenClaim(tok(1), e2, types.Generation{Value: 5}); result != ClaimLost {
		t.Errorf("expected ClaimLost for earlier generation, got %v", result)
	}
	if owner, result := m.ResolveTokenClaim(tok(1), e2, types.Generation{Value: 20}); result != ClaimWon || owner != e1 {
		t.Errorf("expected ClaimWon reporting previous owner, got owner=%v result=%v", owner, result)
	}
}
