// Package coordinator is the top-level node: it constructs and wires every
// other package's collaborators into one running process and exposes the
// operator API (decommission, removenode, drain, rebuild, ...) spec.md §6
// names. It is this module's equivalent of the teacher's pkg/manager, which
// plays the same "own the process, wire every subsystem, expose the
// operator-facing API" role for a Warren manager node.
//
// Wiring order follows spec.md §4.4's prepare_to_join narrative: open the
// system keyspace, build the mode machine and token metadata, build the
// gossip handler and node-ops station around that metadata, join raft group
// 0, start the RPC server so peers can reach this node's node-ops station
// and group 0, then run the join sequencer.
package coordinator
