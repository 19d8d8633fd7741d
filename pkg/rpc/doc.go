// Package rpc implements spec.md §6's messaging layer: the
// node_ops_cmd / replication_finished / group0_peer_exchange /
// group0_modify_config RPC surface. It rides on google.golang.org/grpc
// for transport, framing, and deadlines, but skips protoc codegen —
// spec.md §1 scopes "the on-the-wire encoding of gossip and RPC" out as a
// non-goal, so there is no wire-format contract worth generating code
// for. Instead it registers a grpc.ServiceDesc by hand (service.go) over
// a small JSON encoding.Codec (codec.go), trading proto's compactness for
// a handler surface that works directly against this module's own Go
// types via a thin wire-struct translation (wire.go).
package rpc
