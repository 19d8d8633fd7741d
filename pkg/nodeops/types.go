package nodeops

import (
	"errors"
	"fmt"

	"github.com/cuisonghui/scylla/pkg/types"
)

// NodeOpsCmdRequest is the node_ops_cmd RPC envelope (spec.md §6), carried
// over pkg/rpc.
type NodeOpsCmdRequest struct {
	Cmd     types.NodeOpsCmd
	OpsUUID string

	// Leaving, Bootstrapping, and ReplaceExisting/ReplaceReplacing are
	// mutually exclusive per the "at most one entry per prepare" constraint
	// (spec.md §4.5); only the field relevant to Cmd's operation kind is
	// populated.
	Leaving          types.Endpoint
	Bootstrapping    types.Endpoint
	BootstrapTokens  []types.Token
	ReplaceExisting  types.Endpoint
	ReplaceReplacing types.Endpoint
	IgnoreEndpoints  []types.Endpoint
}

// NodeOpsCmdResponse is the node_ops_cmd RPC reply.
type NodeOpsCmdResponse struct {
	PendingOps []string // populated only for query_pending_ops
}

// ErrUnknownVerb is returned by a peer that does not recognize Cmd (too
// old a version). The coordinator never sends *_abort to these peers —
// they never applied a prepare.
var ErrUnknownVerb = errors.New("nodeops: unknown verb")

// ErrClosed is returned (or synthesized by the coordinator's transport
// layer) when a peer is unreachable.
var ErrClosed = errors.New("nodeops: peer unreachable")

// ErrAlreadyInFlight is the peer-side rejection for a *_prepare arriving
// while an operation is already registered (spec.md §4.5 peer invariant).
var ErrAlreadyInFlight = errors.New("nodeops: an operation is already in flight on this peer")

// ErrUnknownOp is the peer-side rejection for a non-prepare command whose
// ops_uuid does not match the single registered entry.
var ErrUnknownOp = errors.New("nodeops: no in-flight operation with that ops_uuid")

func opKindFor(cmd types.NodeOpsCmd) (types.OpKind, bool) {
	switch cmd {
	case types.CmdBootstrapPrepare, types.CmdBootstrapHeartbeat, types.CmdBootstrapDone, types.CmdBootstrapAbort:
		return types.OpBootstrap, true
	case types.CmdReplacePrepare, types.CmdReplacePrepareMarkAlive, types.CmdReplacePreparePendingRange,
		types.CmdReplaceHeartbeat, types.CmdReplaceDone, types.CmdReplaceAbort:
		return types.OpReplace, true
	case types.CmdDecommissionPrepare, types.CmdDecommissionHeartbeat, types.CmdDecommissionDone, types.CmdDecommissionAbort:
		return types.OpDecommission, true
	case types.CmdRemoveNodePrepare, types.CmdRemoveNodeHeartbeat, types.CmdRemoveNodeSyncData,
		types.CmdRemoveNodeDone, types.CmdRemoveNodeAbort:
		return types.OpRemoveNode, true
	default:
		return "", false
	}
}

func isDoneCmd(cmd types.NodeOpsCmd) bool {
	switch cmd {
	case types.CmdBootstrapDone, types.CmdReplaceDone, types.CmdDecommissionDone, types.CmdRemoveNodeDone:
		return true
	}
	return false
}

func isAbortCmd(cmd types.NodeOpsCmd) bool {
	switch cmd {
	case types.CmdBootstrapAbort, types.CmdReplaceAbort, types.CmdDecommissionAbort, types.CmdRemoveNodeAbort:
		return true
	}
	return false
}

func heartbeatCmdFor(kind types.OpKind) types.NodeOpsCmd {
	switch kind {
	case types.OpBootstrap:
		return types.CmdBootstrapHeartbeat
	case types.OpReplace:
		return types.CmdReplaceHeartbeat
	case types.OpDecommission:
		return types.CmdDecommissionHeartbeat
	case types.OpRemoveNode:
		return types.CmdRemoveNodeHeartbeat
	}
	panic(fmt.Sprintf("nodeops: no heartbeat verb for %s", kind))
}

func doneCmdFor(kind types.OpKind) types.NodeOpsCmd {
	switch kind {
	case types.OpBootstrap:
		return types.CmdBootstrapDone
	case types.OpReplace:
		return types.CmdReplaceDone
	case types.OpDecommission:
		return types.CmdDecommissionDone
	case types.OpRemoveNode:
		return types.CmdRemoveNodeDone
	}
	panic(fmt.Sprintf("nodeops: no done verb for %s", kind))
}

func abortCmdFor(kind types.OpKind) types.NodeOpsCmd {
	switch kind {
	case types.OpBootstrap:
		return types.CmdBootstrapAbort
	case types.OpReplace:
		return types.CmdReplaceAbort
	case types.OpDecommission:
		return types.CmdDecommissionAbort
	case types.OpRemoveNode:
		return types.CmdRemoveNodeAbort
	}
	panic(fmt.Sprintf("nodeops: no abort verb for %s", kind))
}

func prepareCmdFor(kind types.OpKind) types.NodeOpsCmd {
	switch kind {
	case types.OpBootstrap:
		return types.CmdBootstrapPrepare
	case types.OpReplace:
		return types.CmdReplacePrepare
	case types.OpDecommission:
		return types.CmdDecommissionPrepare
	case types.OpRemoveNode:
		return types.CmdRemoveNodePrepare
	}
	panic(fmt.Sprintf("nodeops: no prepare verb for %s", kind))
}
