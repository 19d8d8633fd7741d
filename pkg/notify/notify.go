// Package notify implements C7, the lifecycle notifier.
//
// It fans JOINED/UP/DOWN/LEFT events out to whatever other components
// (metrics, the CQL client-notification protocol, external subscribers) care
// about a peer's lifecycle, without letting one misbehaving subscriber take
// down the others or block the notifier itself.
package notify

import (
	"sync"
	"time"

	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/types"
)

// EventType is the kind of lifecycle transition being announced.
type EventType string

const (
	EventJoined EventType = "joined"
	EventUp     EventType = "up"
	EventDown   EventType = "down"
	EventLeft   EventType = "left"
)

// Event is delivered to every subscriber for a firing.
type Event struct {
	Type      EventType
	Endpoint  types.Endpoint
	Timestamp time.Time
}

// Subscriber receives lifecycle events. It must not retain Event beyond the
// call, and a panic inside it is recovered and logged rather than
// propagated, so one broken subscriber cannot break another.
type Subscriber func(Event)

// PeerGate answers the liveness questions that gate notify_up and
// notify_joined. The gossip handler (C3) implements this; it is the only
// source of truth for a peer's current advertised state.
type PeerGate interface {
	// GossipAlive reports whether ep is currently marked alive by the
	// failure detector.
	GossipAlive(ep types.Endpoint) bool
	// CQLReady reports whether ep has advertised that its client protocol
	// port is accepting connections.
	CQLReady(ep types.Endpoint) bool
	// Status returns ep's last-applied STATUS application-state value.
	Status(ep types.Endpoint) (types.StatusValue, bool)
}

// Notifier holds the subscriber list for one node. All methods are safe for
// concurrent use. Subscribe and Unsubscribe take an exclusive lock, so they
// block until any broadcast already in flight has finished iterating the
// list — matching the single-shard ordering the rest of the node assumes.
type Notifier struct {
	mu          sync.RWMutex
	gate        PeerGate
	subscribers map[int]Subscriber
	nextID      int
}

// New returns a Notifier gated by the given PeerGate.
func New(gate PeerGate) *Notifier {
	return &Notifier{
		gate:        gate,
		subscribers: make(map[int]Subscriber),
	}
}

// Subscribe registers fn and returns a handle for Unsubscribe.
func (n *Notifier) Subscribe(fn Subscriber) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.subscribers[id] = fn
	return id
}

// Unsubscribe removes the subscriber registered under id. It is a no-op if
// id is unknown or was already removed.
func (n *Notifier) Unsubscribe(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subscribers, id)
}

// NotifyJoined fires EventJoined for ep, but only if ep's last-known STATUS
// is NORMAL. Callers that already know ep just reached NORMAL (the gossip
// handler, right after handle_state_normal) may call this unconditionally;
// the gate makes it safe for any other caller too.
func (n *Notifier) NotifyJoined(ep types.Endpoint) {
	if status, ok := n.gate.Status(ep); !ok || status != types.StatusNormal {
		return
	}
	n.fire(Event{Type: EventJoined, Endpoint: ep, Timestamp: time.Now()})
}

// NotifyUp fires EventUp for ep, but only if ep is both gossip-alive and
// CQL-ready. A peer that is merely gossip-alive but hasn't opened its client
// port yet must not be reported up.
func (n *Notifier) NotifyUp(ep types.Endpoint) {
	if !n.gate.GossipAlive(ep) || !n.gate.CQLReady(ep) {
		return
	}
	n.fire(Event{Type: EventUp, Endpoint: ep, Timestamp: time.Now()})
}

// NotifyDown fires EventDown for ep unconditionally; there is no gate
// symmetric to notify_up because "down" is itself the failure-detector's
// conclusion, not a state for it to double-check.
func (n *Notifier) NotifyDown(ep types.Endpoint) {
	n.fire(Event{Type: EventDown, Endpoint: ep, Timestamp: time.Now()})
}

// NotifyLeft fires EventLeft for ep unconditionally, once excise has run.
func (n *Notifier) NotifyLeft(ep types.Endpoint) {
	n.fire(Event{Type: EventLeft, Endpoint: ep, Timestamp: time.Now()})
}

func (n *Notifier) fire(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for id, sub := range n.subscribers {
		n.deliver(id, sub, ev)
	}
}

// deliver invokes one subscriber, isolating the caller from a panic inside
// it the same way a Cassandra/Scylla abstract_marker_notifier catches and
// logs exceptions per-listener.
func (n *Notifier) deliver(id int, sub Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithEndpoint(ev.Endpoint.String()).Error().
				Interface("panic", r).
				Int("subscriber", id).
				Str("event", string(ev.Type)).
				Msg("lifecycle subscriber panicked, continuing with remaining subscribers")
		}
	}()
	sub(ev)
}

// SubscriberCount returns the number of currently registered subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers)
}
