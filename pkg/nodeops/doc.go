/*
Package nodeops implements C5, the node-ops coordinator: the distributed
protocol engine that drives bootstrap/replace/decommission/removenode as a
sequence of node_ops_cmd RPC fan-outs interleaved with a local heartbeat
task (spec.md §4.5).

Station is the peer-side handler: it tracks at most the operations this
node has accepted as a prepare target, enforces the "no entry unless
*_prepare, exactly {ops_uuid} otherwise" invariant, and runs the 120s
watchdog that fires the same undo an explicit *_abort would. Coordinator
is the operator-node side: it fans a phase out to a sync_nodes set,
classifies per-peer failures into the UnknownVerb/ClosedError/other
taxonomy spec.md §7 calls for, and drives the prepare → heartbeat →
local-stream → done sequence for each operation kind.
*/
package nodeops
