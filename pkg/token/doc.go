/*
Package token implements C1, the Token Metadata component: the authoritative
token→endpoint map, its pending-ranges overlay, and the replica-map cache
derived from it.

A *Metadata value is the central snapshot every other component reads or
mutates. Per §3 of the specification, Metadata snapshots are treated as
shared-immutable by readers — the mutable builder is exclusively owned by
whichever shard is performing a mutation until the metadata replicator
(pkg/replicate) publishes it to every shard. This package does not itself
enforce that discipline with a lock; pkg/gossip's Handler holds its mutex
around every clone, mutate and publish sequence (Handler.mutate, which
pkg/nodeops reaches through Handler.Mutate).

# Invariants

The five invariants listed in spec.md §3 are enforced at the level each
mutating method can enforce them locally:

  1. A token appears in at most one of normal_tokens or bootstrap_tokens —
     enforced by AddBootstrapTokens/UpdateNormalTokens removing the token
     from the other map first.
  2. A leaving endpoint keeps its normal tokens until Excise — AddLeavingEndpoint
     never touches normal_tokens.
  3. add_replacing_endpoint requires the existing endpoint to own normal
     tokens and the replacement not to yet — checked by the caller
     (pkg/gossip's handle_state_replacing), recorded here without a tokens
     check so shadow-round callers can register the edge before either side
     has advertised tokens.
  4. The host-id map is injective — UpdateHostID evicts the previous holder
     of a claimed id via the same generation tie-break used for tokens.
  5. Cross-shard consistency after replicate_to_all_cores is pkg/replicate's
     responsibility, not this package's.
*/
package token
