package nodeops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

// Ring is the narrow slice of the token-metadata mutate pipeline a
// prepare/abort undo needs. *gossip.Handler satisfies this via its
// exported Mutate method.
type Ring interface {
	Mutate(ctx context.Context, fn func(md *token.Metadata)) error
}

// entry is one peer-accepted operation: the kind, the edge it installed
// into token metadata, and the watchdog timer that undoes it on silence.
type entry struct {
	opsUUID string
	kind    types.OpKind
	undo    func(md *token.Metadata)
	timer   *time.Timer
}

// Station is the peer-side node_ops_cmd handler. A process has exactly
// one Station; it holds at most one in-flight entry at a time, per
// spec.md §4.5's prepare invariant.
type Station struct {
	ring Ring

	// watchdogAfter is the silence duration after which an entry's undo
	// fires automatically (spec.md §5: 120s, ~12 missed 10s heartbeats).
	watchdogAfter time.Duration
	// afterFunc is time.AfterFunc by default; tests inject a fake to avoid
	// a real 120s wait.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu      sync.Mutex
	current *entry

	// onWatchdogFired, if set, is invoked when the 120s silence window
	// undoes an entry on its own rather than via an explicit *_abort.
	// pkg/metrics hooks this to count watchdog-driven aborts separately
	// from operator/coordinator-driven ones.
	onWatchdogFired func(opsUUID string, kind types.OpKind)
}

// OnWatchdogFired registers fn to be called whenever this Station's
// watchdog timer undoes an entry on its own, rather than by an explicit
// *_abort. Only one hook is kept; a later call replaces an earlier one.
func (s *Station) OnWatchdogFired(fn func(opsUUID string, kind types.OpKind)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWatchdogFired = fn
}

// NewStation builds a Station backed by ring, with the default 120s
// watchdog window.
func NewStation(ring Ring) *Station {
	return &Station{
		ring:          ring,
		watchdogAfter: 120 * time.Second,
		afterFunc:     time.AfterFunc,
	}
}

// HandleCmd dispatches one node_ops_cmd request per spec.md §4.5's
// peer-side invariants.
func (s *Station) HandleCmd(ctx context.Context, req NodeOpsCmdRequest) (NodeOpsCmdResponse, error) {
	switch req.Cmd {
	case types.CmdQueryPendingOps:
		return s.queryPendingOps(), nil
	case types.CmdRepairUpdater:
		return NodeOpsCmdResponse{}, nil
	}

	kind, ok := opKindFor(req.Cmd)
	if !ok {
		return NodeOpsCmdResponse{}, fmt.Errorf("nodeops: %w: %s", ErrUnknownVerb, req.Cmd)
	}

	if req.Cmd.IsPrepare() {
		return NodeOpsCmdResponse{}, s.prepare(ctx, kind, req)
	}

	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil || cur.opsUUID != req.OpsUUID {
		return NodeOpsCmdResponse{}, ErrUnknownOp
	}

	switch {
	case isDoneCmd(req.Cmd):
		return NodeOpsCmdResponse{}, s.done(req.OpsUUID)
	case isAbortCmd(req.Cmd):
		return NodeOpsCmdResponse{}, s.abort(ctx, req.OpsUUID)
	default:
		// Heartbeat and the auxiliary mid-phase commands
		// (replace_prepare_mark_alive, replace_prepare_pending_ranges,
		// removenode_sync_data) all reset the watchdog; their extra
		// bookkeeping already happens through the ordinary gossip feedback
		// loop (pkg/gossip), so there is nothing further to do here.
		s.resetWatchdog(cur)
		return NodeOpsCmdResponse{}, nil
	}
}

func (s *Station) queryPendingOps() NodeOpsCmdResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return NodeOpsCmdResponse{}
	}
	return NodeOpsCmdResponse{PendingOps: []string{s.current.opsUUID}}
}

func (s *Station) prepare(ctx context.Context, kind types.OpKind, req NodeOpsCmdRequest) error {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return ErrAlreadyInFlight
	}
	s.mu.Unlock()

	apply, undo := mutationFor(kind, req)
	if apply != nil {
		if err := s.ring.Mutate(ctx, apply); err != nil {
			return fmt.Errorf("nodeops: apply %s prepare: %w", kind, err)
		}
	}

	e := &entry{opsUUID: req.OpsUUID, kind: kind, undo: undo}

	s.mu.Lock()
	s.current = e
	s.mu.Unlock()

	s.armWatchdog(e)
	log.WithComponent("nodeops").Info().Str("ops_uuid", req.OpsUUID).Str("kind", string(kind)).Msg("prepare accepted")
	return nil
}

func (s *Station) done(opsUUID string) error {
	s.mu.Lock()
	e := s.current
	if e == nil || e.opsUUID != opsUUID {
		s.mu.Unlock()
		return ErrUnknownOp
	}
	s.current = nil
	s.mu.Unlock()

	if e.timer != nil {
		e.timer.Stop()
	}
	log.WithComponent("nodeops").Info().Str("ops_uuid", opsUUID).Msg("operation done")
	return nil
}

func (s *Station) abort(ctx context.Context, opsUUID string) error {
	s.mu.Lock()
	e := s.current
	if e == nil || e.opsUUID != opsUUID {
		s.mu.Unlock()
		return ErrUnknownOp
	}
	s.current = nil
	s.mu.Unlock()

	return s.runAbort(ctx, e)
}

// runAbort undoes e's mutation and stops its timer; invoked by an explicit
// *_abort and by watchdog expiry alike (spec.md §8 invariant 6: the two
// are observationally identical).
func (s *Station) runAbort(ctx context.Context, e *entry) error {
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.undo == nil {
		return nil
	}
	if err := s.ring.Mutate(ctx, e.undo); err != nil {
		return fmt.Errorf("nodeops: undo %s: %w", e.kind, err)
	}
	log.WithComponent("nodeops").Warn().Str("ops_uuid", e.opsUUID).Str("kind", string(e.kind)).Msg("operation aborted")
	return nil
}

func (s *Station) armWatchdog(e *entry) {
	e.timer = s.afterFunc(s.watchdogAfter, func() {
		s.mu.Lock()
		if s.current != e {
			s.mu.Unlock()
			return
		}
		s.current = nil
		hook := s.onWatchdogFired
		s.mu.Unlock()
		if hook != nil {
			hook(e.opsUUID, e.kind)
		}
		if err := s.runAbort(context.Background(), e); err != nil {
			log.WithComponent("nodeops").Error().Err(err).Str("ops_uuid", e.opsUUID).Msg("watchdog abort failed")
		}
	})
}

func (s *Station) resetWatchdog(e *entry) {
	if e.timer == nil {
		return
	}
	e.timer.Reset(s.watchdogAfter)
}

// mutationFor returns the apply/undo pair for kind's prepare, grounded on
// spec.md §8's round-trip laws: add_leaving_endpoint/del_leaving_endpoint
// and add_bootstrap_tokens/remove_bootstrap_tokens are exact inverses, as
// is add_replacing_endpoint/del_replacing_endpoint.
func mutationFor(kind types.OpKind, req NodeOpsCmdRequest) (apply, undo func(md *token.Metadata)) {
	switch kind {
	case types.OpBootstrap:
		tokens, ep := req.BootstrapTokens, req.Bootstrapping
		return func(md *token.Metadata) { md.AddBootstrapTokens(tokens, ep) },
			func(md *token.Metadata) { md.RemoveBootstrapTokens(tokens) }
	case types.OpReplace:
		existing, replacing := req.ReplaceExisting, req.ReplaceReplacing
		return func(md *token.Metadata) { md.AddReplacingEndpoint(existing, replacing) },
			func(md *token.Metadata) { md.DelReplacingEndpoint(existing) }
	case types.OpDecommission, types.OpRemoveNode:
		ep := req.Leaving
		return func(md *token.Metadata) { md.AddLeavingEndpoint(ep) },
			func(md *token.Metadata) { md.DelLeavingEndpoint(ep) }
	default:
		return nil, nil
	}
}
