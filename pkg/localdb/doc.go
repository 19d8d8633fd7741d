// Package localdb defines the "Local database" collaborator spec.md §1
// names as external: "exposes keyspaces, replication strategies, and
// column families; the coordinator never interprets rows." Database is
// interface-only, the same shape pkg/streaming.Engine and pkg/gossip.Bus
// take — schema change application, CDC generation math, and query
// execution are all explicit non-goals (spec.md §1), so this package
// only models the call shape pkg/gossip, pkg/join, and pkg/nodeops need
// from it.
package localdb
