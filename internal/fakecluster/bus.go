package fakecluster

import (
	"context"
	"strings"
	"sync"

	"github.com/cuisonghui/scylla/pkg/join"
	"github.com/cuisonghui/scylla/pkg/types"
)

// Bus is a shared, in-memory gossip transport. Every endpoint that should
// be able to observe every other endpoint's application-state updates
// calls Join on the same Bus; the returned View is the per-endpoint
// gossip.Bus a coordinator.Node is constructed with.
type Bus struct {
	mu          sync.Mutex
	state       map[types.Endpoint]map[types.ApplicationStateKey]string
	generations map[types.Endpoint]types.Generation
	alive       map[types.Endpoint]bool
	views       map[types.Endpoint]*View
}

// NewBus constructs an empty shared bus.
func NewBus() *Bus {
	return &Bus{
		state:       make(map[types.Endpoint]map[types.ApplicationStateKey]string),
		generations: make(map[types.Endpoint]types.Generation),
		alive:       make(map[types.Endpoint]bool),
		views:       make(map[types.Endpoint]*View),
	}
}

// Join registers self on the bus and returns its gossip.Bus view. Calling
// Join twice for the same endpoint replaces the earlier view.
func (b *Bus) Join(self types.Endpoint) *View {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.state[self]; !ok {
		b.state[self] = make(map[types.ApplicationStateKey]string)
	}
	b.alive[self] = true
	v := &View{bus: b, self: self}
	b.views[self] = v
	return v
}

// SetAlive marks ep's failure-detector verdict and, on a live transition,
// fires every view's registered OnAlive callbacks the same way a real
// Bus's failure detector would.
func (b *Bus) SetAlive(ep types.Endpoint, alive bool) {
	b.mu.Lock()
	wasAlive := b.alive[ep]
	b.alive[ep] = alive
	var callbacks []func(types.Endpoint)
	if alive && !wasAlive {
		for _, v := range b.views {
			v.mu.Lock()
			callbacks = append(callbacks, v.onAliveFns...)
			v.mu.Unlock()
		}
	}
	b.mu.Unlock()

	for _, fn := range callbacks {
		fn(ep)
	}
}

// View is one endpoint's handle onto the shared Bus: it satisfies
// gossip.Bus, and, structurally, join.Bus (StartGossiping) and
// join.ShadowRounder (ShadowRound), the same way a real transport exposes
// both surfaces on a single value (pkg/coordinator's gossipBusAdapter and
// shadowRounderAdapter type-assert for exactly this).
type View struct {
	bus  *Bus
	self types.Endpoint

	mu         sync.Mutex
	onChange   func(ep types.Endpoint, key types.ApplicationStateKey, value string)
	onAliveFns []func(types.Endpoint)
	started    bool
}

// Advertise records self's new value for key and fans it out to every
// other joined endpoint's subscriber, mirroring one gossip round's worth
// of propagation without the delay.
func (v *View) Advertise(ctx context.Context, key types.ApplicationStateKey, value string) error {
	v.bus.mu.Lock()
	v.bus.state[v.self][key] = value
	gen := v.bus.generations[v.self]
	gen.Version++
	if gen.Value == 0 {
		gen.Value = 1
	}
	v.bus.generations[v.self] = gen

	var subscribers []func(types.Endpoint, types.ApplicationStateKey, string)
	for ep, other := range v.bus.views {
		if ep == v.self {
			continue
		}
		other.mu.Lock()
		if other.onChange != nil {
			subscribers = append(subscribers, other.onChange)
		}
		other.mu.Unlock()
	}
	v.bus.mu.Unlock()

	for _, fn := range subscribers {
		fn(v.self, key, value)
	}
	return nil
}

// Subscribe registers onChange as this endpoint's single observer of
// peer application-state updates.
func (v *View) Subscribe(onChange func(ep types.Endpoint, key types.ApplicationStateKey, value string)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = onChange
}

// IsAlive reports the shared failure-detector verdict for ep, true by
// default for any endpoint that has joined.
func (v *View) IsAlive(ep types.Endpoint) bool {
	v.bus.mu.Lock()
	defer v.bus.mu.Unlock()
	return v.bus.alive[ep]
}

// GenerationOf returns ep's last-observed generation, tracked per-endpoint
// across the whole bus rather than per-view, since a real failure detector
// would agree on this across every observer too.
func (v *View) GenerationOf(ep types.Endpoint) types.Generation {
	v.bus.mu.Lock()
	defer v.bus.mu.Unlock()
	return v.bus.generations[ep]
}

// OnAlive registers fn to run whenever SetAlive transitions ep to alive.
func (v *View) OnAlive(fn func(ep types.Endpoint)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onAliveFns = append(v.onAliveFns, fn)
}

// HostIDOf decodes ep's currently-advertised HOST_ID, the same shared state
// ShadowRound reads before a node has even joined the ring.
func (v *View) HostIDOf(ep types.Endpoint) (types.HostID, bool) {
	v.bus.mu.Lock()
	defer v.bus.mu.Unlock()
	raw, ok := v.bus.state[ep][types.AppStateHostID]
	if !ok {
		return types.HostID{}, false
	}
	hostID, err := types.ParseHostID(raw)
	if err != nil {
		return types.HostID{}, false
	}
	return hostID, true
}

// RemovalCoordinatorOf decodes ep's currently-advertised REMOVAL_COORDINATOR,
// a key the node driving removenode advertises independently of its own
// STATUS.
func (v *View) RemovalCoordinatorOf(ep types.Endpoint) (types.Endpoint, bool) {
	v.bus.mu.Lock()
	defer v.bus.mu.Unlock()
	raw, ok := v.bus.state[ep][types.AppStateRemovalCoordinator]
	if !ok || raw == "" {
		return types.Endpoint{}, false
	}
	return types.NewEndpoint(raw), true
}

// StartGossiping satisfies join.Bus; it only records that join_token_ring
// reached the point of beginning continuous gossip.
func (v *View) StartGossiping() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.started = true
}

// Started reports whether StartGossiping has been called, for tests
// asserting that a join sequence completed.
func (v *View) Started() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.started
}

// ShadowRound satisfies join.ShadowRounder by reading each seed's
// currently-advertised STATUS/HOST_ID/TOKENS out of shared bus state,
// exactly as a real shadow round would observe a seed's existing gossip
// state without joining the ring.
func (v *View) ShadowRound(ctx context.Context, seeds []types.Endpoint) (map[types.Endpoint]join.ShadowState, error) {
	v.bus.mu.Lock()
	defer v.bus.mu.Unlock()

	out := make(map[types.Endpoint]join.ShadowState)
	for _, seed := range seeds {
		values, ok := v.bus.state[seed]
		if !ok {
			continue
		}
		state := join.ShadowState{
			Status: types.StatusValue(values[types.AppStateStatus]),
			Tokens: decodeTokens(values[types.AppStateTokens]),
		}
		if raw, ok := values[types.AppStateHostID]; ok {
			if hostID, err := types.ParseHostID(raw); err == nil {
				state.HostID = hostID
			}
		}
		out[seed] = state
	}
	return out, nil
}

func decodeTokens(raw string) []types.Token {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]types.Token, 0, len(parts))
	for _, p := range parts {
		if t, err := types.ParseToken(p); err == nil {
			out = append(out, t)
		}
	}
	return out
}
