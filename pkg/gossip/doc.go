/*
Package gossip implements C3, the gossip handler, and defines Bus, the
external gossip-transport collaborator spec.md §1 and §6 describe but leaves
unimplemented: delivery of peer endpoint states and application-state
key/value updates, used here only for observation and broadcast.

Handler.OnChange is the single entry point: every incoming (endpoint, key,
value) update from the bus flows through it. A STATUS update is split on
commas and its first field dispatches to one of the handle_state_* methods
in states.go; RPC_READY updates the CQL-ready gate; any other key is only
logged at debug level and is not persisted. The
handler owns no transport code — it only reacts to what Bus delivers and
calls back into Bus to advertise this node's own state.
*/
package gossip
