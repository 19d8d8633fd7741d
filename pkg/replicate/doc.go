/*
Package replicate implements C6, the metadata replicator:
replicate_to_all_cores (spec.md §4.6). It is the only place a mutated
*token.Metadata snapshot is fanned out to every local shard and published,
so every other component that mutates metadata (pkg/gossip, pkg/join,
pkg/nodeops) goes through it instead of publishing directly.

Replicate clones the new snapshot once per shard cell and only swaps the
published pointer on every shard if every clone succeeded — a failed clone
leaves the old snapshot in place on every shard (spec.md §4.6, step 4).
Pending ranges are not recomputed here; the caller (pkg/gossip's
Handler.mutate) has already computed them on the snapshot it passes in, and
no per-shard replica map is built: each shard publishes its clone as is.
The final swap is a plain pointer store per shard with no failure path, so
Replicate returns an error only for a failed clone.
*/
package replicate
