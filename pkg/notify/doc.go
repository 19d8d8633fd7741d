/*
Package notify implements C7, the node's lifecycle notifier.

It fans JOINED, UP, DOWN and LEFT events out to subscribers — the metrics
package, the CQL client-notification protocol, anything else that cares when
a peer's reachability or membership status changes. notify_up and
notify_joined are gated: a peer with an open gossip connection but no ready
CQL port is not "up", and a peer mid-bootstrap is not "joined" until its
STATUS reaches NORMAL (spec.md §4.7). The gate itself lives in pkg/gossip,
which implements PeerGate.

Broadcasting holds a read lock for the duration of one fan-out; Subscribe and
Unsubscribe take the write lock, so they block until any broadcast already in
progress finishes rather than racing a half-delivered event.
*/
package notify
