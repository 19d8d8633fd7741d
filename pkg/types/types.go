package types

import (
	"fmt"
	"math/big"
	"strings"
)

// Token is an opaque, totally ordered value on the token ring. Tokens are
// compared as arbitrary-precision signed integers (math/big), so a single
// representation covers both 64-bit murmur3 hashes (negative ones included)
// and wider schemes without callers caring which one a given cluster uses.
type Token struct {
	value *big.Int
}

// NewToken wraps a non-negative integer as a ring token.
func NewToken(v *big.Int) Token {
	return Token{value: new(big.Int).Set(v)}
}

// TokenFromInt64 is a convenience constructor for tests and tools that deal
// in plain 64-bit hash values.
func TokenFromInt64(v int64) Token {
	return Token{value: big.NewInt(v)}
}

// Compare returns -1, 0, or 1 as t is less than, equal to, or greater than o,
// giving tokens a total order on the ring.
func (t Token) Compare(o Token) int {
	return t.value.Cmp(o.value)
}

// String renders the token's decimal value, used as the map key wire form
// and in log lines.
func (t Token) String() string {
	if t.value == nil {
		return "0"
	}
	return t.value.String()
}

// IsZero reports whether the token was never assigned a value.
func (t Token) IsZero() bool {
	return t.value == nil
}

// ParseToken parses the decimal form String produces, the round-trip used
// to persist chosen tokens in the system keyspace.
func ParseToken(s string) (Token, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Token{}, fmt.Errorf("types: invalid token %q", s)
	}
	return Token{value: v}, nil
}

// Endpoint identifies one peer by its network address. Endpoints are
// compared by value so they can be used as map keys directly.
type Endpoint struct {
	Addr string
}

// NewEndpoint constructs an Endpoint, trimming whitespace so gossip-sourced
// addresses compare equal regardless of formatting quirks upstream.
func NewEndpoint(addr string) Endpoint {
	return Endpoint{Addr: strings.TrimSpace(addr)}
}

func (e Endpoint) String() string { return e.Addr }

// IsZero reports whether this is the unset endpoint value.
func (e Endpoint) IsZero() bool { return e.Addr == "" }

// HostID is a 128-bit identifier that survives IP changes, used to
// distinguish "the same logical node came back with a new address" from
// "a different node now owns this address".
type HostID struct {
	hi, lo uint64
}

// NewHostID builds a HostID from two 64-bit halves (as produced by a UUID).
func NewHostID(hi, lo uint64) HostID { return HostID{hi: hi, lo: lo} }

func (h HostID) String() string {
	return fmt.Sprintf("%016x-%016x", h.hi, h.lo)
}

// IsZero reports the unset host id.
func (h HostID) IsZero() bool { return h.hi == 0 && h.lo == 0 }

func (h HostID) Equal(o HostID) bool { return h.hi == o.hi && h.lo == o.lo }

// ParseHostID parses the "%016x-%016x" form String produces, the round-trip
// used to persist the local host id in the system keyspace.
func ParseHostID(s string) (HostID, error) {
	var hi, lo uint64
	if _, err := fmt.Sscanf(s, "%016x-%016x", &hi, &lo); err != nil {
		return HostID{}, fmt.Errorf("types: invalid host id %q: %w", s, err)
	}
	return HostID{hi: hi, lo: lo}, nil
}

// Generation is a peer's (generation, version) vector-clock pair as carried
// by every gossip application-state update. A total order on Generation is
// the only thing that makes deterministic tie-breaking across independently
// observing nodes possible (see the tie-break rules in DESIGN.md's pkg/token
// section).
type Generation struct {
	Value   int64
	Version int64
}

// Later reports whether g happened after o — strictly greater generation,
// or equal generation with a strictly greater version.
func (g Generation) Later(o Generation) bool {
	if g.Value != o.Value {
		return g.Value > o.Value
	}
	return g.Version > o.Version
}

// ApplicationStateKey names one slot in a peer's gossip application state.
type ApplicationStateKey string

const (
	AppStateStatus            ApplicationStateKey = "STATUS"
	AppStateTokens             ApplicationStateKey = "TOKENS"
	AppStateHostID             ApplicationStateKey = "HOST_ID"
	AppStateRPCAddress         ApplicationStateKey = "RPC_ADDRESS"
	AppStateReleaseVersion     ApplicationStateKey = "RELEASE_VERSION"
	AppStateSupportedFeatures  ApplicationStateKey = "SUPPORTED_FEATURES"
	AppStateSchema             ApplicationStateKey = "SCHEMA"
	AppStateDC                 ApplicationStateKey = "DC"
	AppStateRack               ApplicationStateKey = "RACK"
	AppStateCDCGenerationID    ApplicationStateKey = "CDC_GENERATION_ID"
	AppStateRemovalCoordinator ApplicationStateKey = "REMOVAL_COORDINATOR"
	AppStateNetVersion         ApplicationStateKey = "NET_VERSION"
	AppStateSchemaTablesVer    ApplicationStateKey = "SCHEMA_TABLES_VERSION"
	AppStateRPCReady           ApplicationStateKey = "RPC_READY"
	AppStateSnitchName         ApplicationStateKey = "SNITCH_NAME"
	AppStateShardCount         ApplicationStateKey = "SHARD_COUNT"
	AppStateIgnoreMSBBits      ApplicationStateKey = "IGNORE_MSB_BITS"
	AppStateCacheHitrates      ApplicationStateKey = "CACHE_HITRATES"
	AppStateViewBacklog        ApplicationStateKey = "VIEW_BACKLOG"
)

// StatusValue is the first comma-delimited field of a STATUS application
// state update; everything after it is state-specific (tokens, expire time).
type StatusValue string

const (
	StatusBoot          StatusValue = "BOOT"
	StatusNormal        StatusValue = "NORMAL"
	StatusShutdown      StatusValue = "SHUTDOWN"
	StatusLeaving       StatusValue = "LEAVING"
	StatusLeft          StatusValue = "LEFT"
	StatusRemovingToken StatusValue = "REMOVING_TOKEN"
	StatusRemovedToken  StatusValue = "REMOVED_TOKEN"
	StatusHibernate     StatusValue = "HIBERNATE"
	StatusMoving        StatusValue = "MOVING"
)

// ParseStatus splits a raw STATUS application-state value on "," into its
// state name and the pieces that follow it.
func ParseStatus(raw string) (StatusValue, []string) {
	parts := strings.Split(raw, ",")
	if len(parts) == 0 {
		return "", nil
	}
	return StatusValue(parts[0]), parts[1:]
}

// OpKind names one of the four topology-change operations the node-ops
// coordinator drives.
type OpKind string

const (
	OpBootstrap     OpKind = "bootstrap"
	OpReplace       OpKind = "replace"
	OpDecommission  OpKind = "decommission"
	OpRemoveNode    OpKind = "removenode"
)

// NodeOpsCmd is the command verb carried by a node_ops_cmd RPC envelope.
type NodeOpsCmd string

const (
	CmdBootstrapPrepare   NodeOpsCmd = "bootstrap_prepare"
	CmdBootstrapHeartbeat NodeOpsCmd = "bootstrap_heartbeat"
	CmdBootstrapDone      NodeOpsCmd = "bootstrap_done"
	CmdBootstrapAbort     NodeOpsCmd = "bootstrap_abort"

	CmdReplacePrepare             NodeOpsCmd = "replace_prepare"
	CmdReplacePrepareMarkAlive    NodeOpsCmd = "replace_prepare_mark_alive"
	CmdReplacePreparePendingRange NodeOpsCmd = "replace_prepare_pending_ranges"
	CmdReplaceHeartbeat           NodeOpsCmd = "replace_heartbeat"
	CmdReplaceDone                NodeOpsCmd = "replace_done"
	CmdReplaceAbort               NodeOpsCmd = "replace_abort"

	CmdDecommissionPrepare   NodeOpsCmd = "decommission_prepare"
	CmdDecommissionHeartbeat NodeOpsCmd = "decommission_heartbeat"
	CmdDecommissionDone      NodeOpsCmd = "decommission_done"
	CmdDecommissionAbort     NodeOpsCmd = "decommission_abort"

	CmdRemoveNodePrepare   NodeOpsCmd = "removenode_prepare"
	CmdRemoveNodeHeartbeat NodeOpsCmd = "removenode_heartbeat"
	CmdRemoveNodeSyncData  NodeOpsCmd = "removenode_sync_data"
	CmdRemoveNodeDone      NodeOpsCmd = "removenode_done"
	CmdRemoveNodeAbort     NodeOpsCmd = "removenode_abort"

	CmdQueryPendingOps NodeOpsCmd = "query_pending_ops"
	CmdRepairUpdater   NodeOpsCmd = "repair_updater"
)

// IsPrepare reports whether cmd opens a new node-ops operation (as opposed
// to heartbeat/done/abort/auxiliary commands against an existing one).
func (c NodeOpsCmd) IsPrepare() bool {
	switch c {
	case CmdBootstrapPrepare, CmdReplacePrepare, CmdDecommissionPrepare, CmdRemoveNodePrepare:
		return true
	}
	return false
}

// BootstrapState is the durable marker of this node's join progress,
// persisted in the system keyspace across restarts.
type BootstrapState string

const (
	BootstrapNeedsBootstrap BootstrapState = "NEEDS_BOOTSTRAP"
	BootstrapInProgress     BootstrapState = "IN_PROGRESS"
	BootstrapCompleted      BootstrapState = "COMPLETED"
	BootstrapDecommissioned BootstrapState = "DECOMMISSIONED"
)
