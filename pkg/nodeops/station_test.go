package nodeops

import (
	"context"
	"testing"
	"time"

	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

type fakeRing struct {
	md *token.Metadata
}

func (r *fakeRing) Mutate(ctx context.Context, fn func(md *token.Metadata)) error {
	fn(r.md)
	return nil
}

// fakeTimer lets tests fire a watchdog on demand instead of waiting out a
// real 120s window.
type fakeTimer struct {
	fired   func()
	stopped bool
}

func newFakeAfterFunc(timers *[]*fakeTimer) func(time.Duration, func()) *time.Timer {
	return func(d time.Duration, f func()) *time.Timer {
		ft := &fakeTimer{fired: f}
		*timers = append(*timers, ft)
		return time.NewTimer(time.Hour) // never fires on its own in a test
	}
}

func newTestStation() (*Station, *fakeRing, *[]*fakeTimer) {
	ring := &fakeRing{md: token.New()}
	var timers []*fakeTimer
	st := NewStation(ring)
	st.afterFunc = newFakeAfterFunc(&timers)
	return st, ring, &timers
}

func TestDecommissionPrepareThenAbortRestoresMetadata(t *testing.T) {
	st, ring, _ := newTestStation()
	self := types.NewEndpoint("10.0.0.1:7000")
	ring.md.UpdateNormalTokens([]types.Token{types.TokenFromInt64(1)}, self)

	before := ring.md.Clone()

	req := NodeOpsCmdRequest{Cmd: types.CmdDecommissionPrepare, OpsUUID: "op-1", Leaving: self}
	if _, err := st.HandleCmd(context.Background(), req); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !ring.md.IsLeaving(self) {
		t.Fatal("expected self to be marked leaving after prepare")
	}

	abortReq := NodeOpsCmdRequest{Cmd: types.CmdDecommissionAbort, OpsUUID: "op-1"}
	if _, err := st.HandleCmd(context.Background(), abortReq); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if ring.md.IsLeaving(self) {
		t.Error("expected abort to undo the leaving marker")
	}
	if len(ring.md.LeavingEndpoints()) != len(before.LeavingEndpoints()) {
		t.Error("expected leaving_endpoints to match the pre-prepare snapshot")
	}
}

func TestPrepareRejectsSecondPrepareWhileOneInFlight(t *testing.T) {
	st, _, _ := newTestStation()
	ep := types.NewEndpoint("10.0.0.1:7000")

	req := NodeOpsCmdRequest{Cmd: types.CmdDecommissionPrepare, OpsUUID: "op-1", Leaving: ep}
	if _, err := st.HandleCmd(context.Background(), req); err != nil {
		t.Fatalf("first prepare: %v", err)
	}

	second := NodeOpsCmdRequest{Cmd: types.CmdRemoveNodePrepare, OpsUUID: "op-2", Leaving: ep}
	_, err := st.HandleCmd(context.Background(), second)
	if err != ErrAlreadyInFlight {
		t.Errorf("expected ErrAlreadyInFlight, got %v", err)
	}
}

func TestHeartbeatRejectsMismatchedOpsUUID(t *testing.T) {
	st, _, _ := newTestStation()
	ep := types.NewEndpoint("10.0.0.1:7000")

	req := NodeOpsCmdRequest{Cmd: types.CmdDecommissionPrepare, OpsUUID: "op-1", Leaving: ep}
	if _, err := st.HandleCmd(context.Background(), req); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	hb := NodeOpsCmdRequest{Cmd: types.CmdDecommissionHeartbeat, OpsUUID: "op-wrong"}
	_, err := st.HandleCmd(context.Background(), hb)
	if err != ErrUnknownOp {
		t.Errorf("expected ErrUnknownOp, got %v", err)
	}
}

func TestDoneRemovesEntryWithoutUndo(t *testing.T) {
	st, ring, _ := newTestStation()
	ep := types.NewEndpoint("10.0.0.1:7000")

	req := NodeOpsCmdRequest{Cmd: types.CmdDecommissionPrepare, OpsUUID: "op-1", Leaving: ep}
	if _, err := st.HandleCmd(context.Background(), req); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	done := NodeOpsCmdRequest{Cmd: types.CmdDecommissionDone, OpsUUID: "op-1"}
	if _, err := st.HandleCmd(context.Background(), done); err != nil {
		t.Fatalf("done: %v", err)
	}
	if !ring.md.IsLeaving(ep) {
		t.Error("expected *_done to leave the applied mutation in place, not undo it")
	}

	res := st.queryPendingOps()
	if len(res.PendingOps) != 0 {
		t.Errorf("expected no pending ops after done, got %v", res.PendingOps)
	}
}

func TestWatchdogFiringUndoesLikeAnExplicitAbort(t *testing.T) {
	st, ring, timers := newTestStation()
	ep := types.NewEndpoint("10.0.0.1:7000")

	req := NodeOpsCmdRequest{Cmd: types.CmdRemoveNodePrepare, OpsUUID: "op-1", Leaving: ep}
	if _, err := st.HandleCmd(context.Background(), req); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(*timers) != 1 {
		t.Fatalf("expected one armed watchdog, got %d", len(*timers))
	}

	(*timers)[0].fired()

	if ring.md.IsLeaving(ep) {
		t.Error("expected the watchdog firing to undo the leaving marker")
	}
	res := st.queryPendingOps()
	if len(res.PendingOps) != 0 {
		t.Errorf("expected no pending ops after watchdog fires, got %v", res.PendingOps)
	}
}

func TestQueryPendingOpsAndRepairUpdaterAlwaysAccepted(t *testing.T) {
	st, _, _ := newTestStation()
	if _, err := st.HandleCmd(context.Background(), NodeOpsCmdRequest{Cmd: types.CmdQueryPendingOps}); err != nil {
		t.Errorf("query_pending_ops: %v", err)
	}
	if _, err := st.HandleCmd(context.Background(), NodeOpsCmdRequest{Cmd: types.CmdRepairUpdater}); err != nil {
		t.Errorf("repair_updater: %v", err)
	}
}
