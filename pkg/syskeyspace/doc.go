/*
Package syskeyspace implements the system keyspace collaborator spec.md §1
and §6 describe: durable persistence of local bootstrap state, chosen
tokens, CDC generation id, host id, and peer metadata.

Store is a BoltDB-backed key-value store, one bucket per entity kind,
directly adapted from the teacher's pkg/storage BoltStore — same
bucket-per-entity layout, same JSON-marshal-the-struct-into-the-value
pattern — pointed at this node's local/peer records instead of
nodes/services/containers/secrets/volumes.
*/
package syskeyspace
