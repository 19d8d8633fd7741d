package syskeyspace

import (
	"testing"

	"github.com/cuisonghui/scylla/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBootstrapStateDefaultsToNeedsBootstrap(t *testing.T) {
	s := openTestStore(t)
	state, err := s.BootstrapState()
	if err != nil {
		t.Fatalf("BootstrapState: %v", err)
	}
	if state != types.BootstrapNeedsBootstrap {
		t.Errorf("expected NEEDS_BOOTSTRAP on a fresh store, got %s", state)
	}
}

func TestBootstrapStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetBootstrapState(types.BootstrapCompleted); err != nil {
		t.Fatalf("SetBootstrapState: %v", err)
	}
	state, err := s.BootstrapState()
	if err != nil {
		t.Fatalf("BootstrapState: %v", err)
	}
	if state != types.BootstrapCompleted {
		t.Errorf("expected COMPLETED, got %s", state)
	}
}

func TestLocalHostIDRoundTrip(t *testing.T) {
	s := openTestStore(t)
	want := types.NewHostID(1, 2)
	if err := s.SetLocalHostID(want); err != nil {
		t.Fatalf("SetLocalHostID: %v", err)
	}
	got, found, err := s.LocalHostID()
	if err != nil {
		t.Fatalf("LocalHostID: %v", err)
	}
	if !found || !got.Equal(want) {
		t.Errorf("expected %v, got %v found=%v", want, got, found)
	}
}

func TestLocalTokensRoundTrip(t *testing.T) {
	s := openTestStore(t)
	want := []types.Token{types.TokenFromInt64(10), types.TokenFromInt64(20)}
	if err := s.SetLocalTokens(want); err != nil {
		t.Fatalf("SetLocalTokens: %v", err)
	}
	got, err := s.LocalTokens()
	if err != nil {
		t.Fatalf("LocalTokens: %v", err)
	}
	if len(got) != 2 || got[0].String() != "10" || got[1].String() != "20" {
		t.Errorf("expected [10 20], got %v", got)
	}
}

func TestSavePeerTokensMergesExistingFields(t *testing.T) {
	s := openTestStore(t)
	ep := types.NewEndpoint("10.0.0.1:7000")

	if err := s.savePeer(PeerRecord{Endpoint: ep.String(), DC: "dc1", Rack: "rack1"}); err != nil {
		t.Fatalf("savePeer: %v", err)
	}
	if err := s.SavePeerTokens(ep, []types.Token{types.TokenFromInt64(5)}); err != nil {
		t.Fatalf("SavePeerTokens: %v", err)
	}

	rec, err := s.PeerRecord(ep.String())
	if err != nil {
		t.Fatalf("PeerRecord: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a peer record")
	}
	if rec.DC != "dc1" || rec.Rack != "rack1" {
		t.Errorf("expected DC/Rack preserved across SavePeerTokens, got %+v", rec)
	}
	if len(rec.Tokens) != 1 || rec.Tokens[0] != "5" {
		t.Errorf("expected tokens [5], got %v", rec.Tokens)
	}
}

func TestDeletePeerRemovesRecord(t *testing.T) {
	s := openTestStore(t)
	ep := types.NewEndpoint("10.0.0.2:7000")
	if err := s.SavePeerTokens(ep, []types.Token{types.TokenFromInt64(1)}); err != nil {
		t.Fatalf("SavePeerTokens: %v", err)
	}
	if err := s.DeletePeer(ep.String()); err != nil {
		t.Fatalf("DeletePeer: %v", err)
	}
	rec, err := s.PeerRecord(ep.String())
	if err != nil {
		t.Fatalf("PeerRecord: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record after delete, got %+v", rec)
	}
}
