/*
Package types defines the core data structures shared across the cluster
membership and topology-change coordinator.

This package holds the domain model used by every other package in this
module: the token ring's primitive types, endpoint and host identity, gossip
application-state keys, and the small value types node-ops requests and
responses are built from. These types carry validation and formatting only;
the logic that operates on them lives in pkg/token, pkg/gossip, pkg/join, and
pkg/nodeops.

# Core Types

Ring primitives:
  - Token: an opaque, totally ordered value on the token ring (murmur3 hash)
  - Endpoint: network address identifying one peer
  - HostID: a 128-bit identifier stable across IP changes
  - Generation: a peer's (generation, version) vector-clock pair, used to
    break ties between two endpoints claiming the same token or host id

Gossip:
  - ApplicationStateKey: one of the keys a peer advertises (STATUS, TOKENS, ...)
  - StatusValue: the first comma-delimited field of a STATUS application state

Node-ops:
  - OpKind: bootstrap, replace, decommission, or removenode
  - NodeOpsCmd: the command verb sent in a node_ops_cmd RPC

# See Also

  - pkg/token for the TokenMetadata snapshot built from these primitives
  - pkg/gossip for the handler that mutates token metadata from gossip events
  - pkg/nodeops for the distributed topology-change protocol engine
*/
package types
