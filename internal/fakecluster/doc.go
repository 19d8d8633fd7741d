/*
Package fakecluster provides in-memory implementations of the three §6
collaborators (gossip.Bus, streaming.Engine, localdb.Database) that tests
build a multi-node cluster out of, in place of a real gossip transport, a
real SSTable streamer, or a real on-disk keyspace. It plays the role the
teacher's test/framework/cluster.go harness plays for warren: standing up a
small cluster for integration-style assertions, except entirely in-process
and without spawning real binaries, since this domain's collaborators are
themselves opaque per spec.md §1.

A Bus is shared by every node that should be able to gossip with every
other; constructing it with NewBus and calling Join once per simulated
endpoint wires up the delivery fan-out a real transport would otherwise do.
Engine and Database are node-local: one fake per coordinator.Node, sharing
no state with their peers' fakes.

cmd/scylla-node's "serve" command also wires these three as its only
available coordinator.Deps, since a real gossip transport, streaming
engine, and local database are themselves non-goals (spec.md §1) this
module never implements concretely. That makes scylla-node serve a
single-node ring by default — a real multi-node deployment requires
swapping these three Deps fields for real collaborators at that same
injection point, which this package cannot supply.
*/
package fakecluster
