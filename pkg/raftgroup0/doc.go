// Package raftgroup0 wraps hashicorp/raft as the cluster's "group 0": a
// small Raft group whose only job here is agreeing on cluster membership
// (spec.md §6's group0_peer_exchange / group0_modify_config RPC pair). It
// satisfies pkg/join.Group0 with an opaque Join/RemovePeer API; group 0
// carries no business data in this spec, so its FSM applies nothing and
// raft's own configuration entries track the member set.
package raftgroup0
