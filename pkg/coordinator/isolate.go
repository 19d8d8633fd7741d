package coordinator

import "github.com/cuisonghui/scylla/pkg/log"

// ReportCriticalError implements do_isolate_on_error/isolate: the first
// unrecoverable local fault this node observes (currently, only its own RPC
// server failing to serve) stops it from communicating with the rest of the
// cluster rather than continuing to run in a half-failed state. Later calls
// after the first are no-ops; the latch never resets, since nothing short of
// a restart can undo whatever made the first call fire.
func (n *Node) ReportCriticalError(err error) {
	n.isolateMu.Lock()
	if n.isolated {
		n.isolateMu.Unlock()
		return
	}
	n.isolated = true
	n.isolateReason = err
	hook := n.onIsolate
	n.isolateMu.Unlock()

	log.WithComponent("coordinator").Error().Err(err).Msg("isolating node after critical error")
	n.rpcServer.Stop()
	if hook != nil {
		hook(err)
	}
}

// Isolated reports whether this node has self-fenced, and why.
func (n *Node) Isolated() (bool, error) {
	n.isolateMu.Lock()
	defer n.isolateMu.Unlock()
	return n.isolated, n.isolateReason
}

// OnIsolate registers fn to run once, the first time this node self-fences.
// cmd/scylla-node wires this to its health surface rather than this package
// importing pkg/metrics directly, the same indirection OnNodeOps uses.
func (n *Node) OnIsolate(fn func(err error)) {
	n.isolateMu.Lock()
	defer n.isolateMu.Unlock()
	n.onIsolate = fn
}
