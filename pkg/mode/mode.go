/*
Package mode implements C2, the node's lifecycle mode state machine.

Modes progress STARTING → JOINING → NORMAL → LEAVING → {DECOMMISSIONED,
DRAINED}, with a DRAINING → DRAINED path reachable from any state as an
operator-driven, terminal shutdown. Transition logs every transition. The
current mode is exposed as the `node_operation_mode` gauge (spec.md §6) by
pkg/metrics' Collector, which samples it every 15s rather than registering
a Machine.OnChange callback.
*/
package mode

import (
	"fmt"
	"sync"

	"github.com/cuisonghui/scylla/pkg/log"
)

// Mode is one of the node lifecycle states from spec.md §4.2.
type Mode int

const (
	Unknown Mode = iota
	Starting
	Joining
	Normal
	Leaving
	Decommissioned
	Draining
	Drained
	Moving // reserved: spec.md §9 open question (b); no transitions reach it
)

// Code returns the integer coding spec.md §6 requires for the
// node_operation_mode gauge.
func (m Mode) Code() int {
	switch m {
	case Starting:
		return 1
	case Joining:
		return 2
	case Normal:
		return 3
	case Leaving:
		return 4
	case Decommissioned:
		return 5
	case Draining:
		return 6
	case Drained:
		return 7
	case Moving:
		return 8
	default:
		return 0
	}
}

func (m Mode) String() string {
	switch m {
	case Starting:
		return "STARTING"
	case Joining:
		return "JOINING"
	case Normal:
		return "NORMAL"
	case Leaving:
		return "LEAVING"
	case Decommissioned:
		return "DECOMMISSIONED"
	case Draining:
		return "DRAINING"
	case Drained:
		return "DRAINED"
	case Moving:
		return "MOVING"
	default:
		return "UNKNOWN"
	}
}

// allowed enumerates the legal transitions from spec.md §4.2. A node may
// always transition to Draining regardless of its current mode (operator
// drain can be requested at any time).
var allowed = map[Mode][]Mode{
	Starting:       {Joining},
	Joining:        {Normal},
	Normal:         {Leaving},
	Leaving:        {Decommissioned},
	Draining:       {Drained},
	Decommissioned: {},
	Drained:        {},
}

// Machine is the observable holder of the node's current mode. It is safe
// for concurrent use; every shard that needs to read the mode (for the
// metrics gauge, or to gate operator commands) should share one Machine.
type Machine struct {
	mu       sync.RWMutex
	current  Mode
	watchers []func(from, to Mode)
}

// New returns a Machine starting in Starting, the initial state per
// spec.md §4.2.
func New() *Machine {
	return &Machine{current: Starting}
}

// Current returns the node's current mode.
func (m *Machine) Current() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers a callback invoked synchronously after every
// successful transition, once Transition has logged it.
func (m *Machine) OnChange(fn func(from, to Mode)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

// Transition moves the machine to to, or returns an error if that is not a
// legal transition from the current mode. Draining is reachable from any
// non-terminal mode (operator drain), matching spec.md §4.2's "any →
// DRAINING → DRAINED: on operator drain; terminal".
func (m *Machine) Transition(to Mode) error {
	m.mu.Lock()
	from := m.current
	if !m.legal(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("mode: illegal transition %s -> %s", from, to)
	}
	m.current = to
	watchers := append([]func(from, to Mode){}, m.watchers...)
	m.mu.Unlock()

	log.WithComponent("mode").Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("node mode transition")

	for _, w := range watchers {
		w(from, to)
	}
	return nil
}

func (m *Machine) legal(from, to Mode) bool {
	if to == Draining && from != Decommissioned && from != Drained {
		return true
	}
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}
