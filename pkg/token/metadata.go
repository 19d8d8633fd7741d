package token

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cuisonghui/scylla/pkg/types"
)

// yieldEvery controls how many map entries CloneAsync processes before
// cooperatively yielding, per spec.md §5 ("maybe_yield every few thousand
// elements").
const yieldEvery = 4096

// Metadata is the authoritative token→endpoint map plus the bookkeeping
// needed to drive topology changes and pending-range computation. See
// doc.go for the ownership and concurrency discipline callers must follow.
type Metadata struct {
	normalTokens    map[string]tokenEntry
	bootstrapTokens map[string]tokenEntry
	leavingEndpoints map[types.Endpoint]struct{}
	replacingEndpoints map[types.Endpoint]types.Endpoint
	endpointToHostID map[types.Endpoint]types.HostID
	hostIDToEndpoint map[types.HostID]types.Endpoint
	generations      map[types.Endpoint]types.Generation
	pendingRanges    map[string][]PendingRangeEntry // keyspace -> entries

	ringVersion uint64
}

type tokenEntry struct {
	token    types.Token
	endpoint types.Endpoint
}

// New returns an empty Metadata snapshot, the starting point for a fresh
// node before any gossip has been observed.
func New() *Metadata {
	return &Metadata{
		normalTokens:       make(map[string]tokenEntry),
		bootstrapTokens:    make(map[string]tokenEntry),
		leavingEndpoints:   make(map[types.Endpoint]struct{}),
		replacingEndpoints: make(map[types.Endpoint]types.Endpoint),
		endpointToHostID:   make(map[types.Endpoint]types.HostID),
		hostIDToEndpoint:   make(map[types.HostID]types.Endpoint),
		generations:        make(map[types.Endpoint]types.Generation),
		pendingRanges:      make(map[string][]PendingRangeEntry),
	}
}

// RingVersion returns the monotonic counter bumped on every structural
// change, used by pkg/replicate to confirm a publish actually took effect.
func (m *Metadata) RingVersion() uint64 { return m.ringVersion }

func (m *Metadata) bump() { m.ringVersion++ }

// UpdateNormalTokens assigns tokens to endpoint, removing them from
// bootstrap_tokens first so invariant 1 (a token is in at most one map)
// holds. Any endpoint that previously owned one of these tokens loses it.
func (m *Metadata) UpdateNormalTokens(tokens []types.Token, endpoint types.Endpoint) {
	for _, t := range tokens {
		key := t.String()
		delete(m.bootstrapTokens, key)
		m.normalTokens[key] = tokenEntry{token: t, endpoint: endpoint}
	}
	m.bump()
}

// AddBootstrapTokens records tokens as owned by a joining endpoint.
func (m *Metadata) AddBootstrapTokens(tokens []types.Token, endpoint types.Endpoint) {
	for _, t := range tokens {
		key := t.String()
		delete(m.normalTokens, key)
		m.bootstrapTokens[key] = tokenEntry{token: t, endpoint: endpoint}
	}
	m.bump()
}

// RemoveBootstrapTokens deletes tokens from bootstrap_tokens, used by
// bootstrap_abort and by the watchdog's rollback path.
func (m *Metadata) RemoveBootstrapTokens(tokens []types.Token) {
	for _, t := range tokens {
		delete(m.bootstrapTokens, t.String())
	}
	m.bump()
}

// BootstrapTokensOf returns the tokens currently staged for endpoint in
// bootstrap_tokens, in sorted order.
func (m *Metadata) BootstrapTokensOf(endpoint types.Endpoint) []types.Token {
	var out []types.Token
	for _, e := range m.bootstrapTokens {
		if e.endpoint == endpoint {
			out = append(out, e.token)
		}
	}
	sortTokens(out)
	return out
}

// NormalTokensOf returns the tokens endpoint owns in normal_tokens, sorted.
func (m *Metadata) NormalTokensOf(endpoint types.Endpoint) []types.Token {
	var out []types.Token
	for _, e := range m.normalTokens {
		if e.endpoint == endpoint {
			out = append(out, e.token)
		}
	}
	sortTokens(out)
	return out
}

// OwnerOf returns the endpoint owning t in normal_tokens ∪ bootstrap_tokens
// and reports whether it was found.
func (m *Metadata) OwnerOf(t types.Token) (types.Endpoint, bool) {
	key := t.String()
	if e, ok := m.normalTokens[key]; ok {
		return e.endpoint, true
	}
	if e, ok := m.bootstrapTokens[key]; ok {
		return e.endpoint, true
	}
	return types.Endpoint{}, false
}

// AddLeavingEndpoint marks endpoint as leaving. Per invariant 2 its normal
// tokens are left untouched until Excise runs.
func (m *Metadata) AddLeavingEndpoint(endpoint types.Endpoint) {
	m.leavingEndpoints[endpoint] = struct{}{}
	m.bump()
}

// DelLeavingEndpoint clears the leaving marker, used by abort paths and by
// the decommission/removenode done handlers after Excise.
func (m *Metadata) DelLeavingEndpoint(endpoint types.Endpoint) {
	delete(m.leavingEndpoints, endpoint)
	m.bump()
}

// IsLeaving reports whether endpoint is currently marked as leaving.
func (m *Metadata) IsLeaving(endpoint types.Endpoint) bool {
	_, ok := m.leavingEndpoints[endpoint]
	return ok
}

// LeavingEndpoints returns a stable-ordered snapshot of the leaving set.
func (m *Metadata) LeavingEndpoints() []types.Endpoint {
	out := make([]types.Endpoint, 0, len(m.leavingEndpoints))
	for e := range m.leavingEndpoints {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// AddReplacingEndpoint records that replacing intends to take over
// existing's tokens and host id (invariant 3 is the caller's
// responsibility — see doc.go).
func (m *Metadata) AddReplacingEndpoint(existing, replacing types.Endpoint) {
	m.replacingEndpoints[existing] = replacing
	m.bump()
}

// DelReplacingEndpoint removes a replacing edge, used by replace_abort.
func (m *Metadata) DelReplacingEndpoint(existing types.Endpoint) {
	delete(m.replacingEndpoints, existing)
	m.bump()
}

// ReplacementFor reports the endpoint replacing existing, if any.
func (m *Metadata) ReplacementFor(existing types.Endpoint) (types.Endpoint, bool) {
	r, ok := m.replacingEndpoints[existing]
	return r, ok
}

// UpdateHostID assigns hostID to endpoint. If hostID is already claimed by
// a different endpoint, the endpoint with the later (generation, version)
// wins per spec.md §4.1's tie-break rule; the loser's mapping is evicted to
// keep the host-id map injective (invariant 4).
func (m *Metadata) UpdateHostID(hostID types.HostID, endpoint types.Endpoint, gen types.Generation) {
	if prevEndpoint, ok := m.hostIDToEndpoint[hostID]; ok && prevEndpoint != endpoint {
		prevGen := m.generations[prevEndpoint]
		if !gen.Later(prevGen) {
			return // the existing claim wins the tie-break; ignore this update
		}
		delete(m.endpointToHostID, prevEndpoint)
	}
	if prevHostID, ok := m.endpointToHostID[endpoint]; ok {
		delete(m.hostIDToEndpoint, prevHostID)
	}
	m.endpointToHostID[endpoint] = hostID
	m.hostIDToEndpoint[hostID] = endpoint
	m.generations[endpoint] = gen
	m.bump()
}

// HostIDOf returns the host id endpoint is mapped to, if any.
func (m *Metadata) HostIDOf(endpoint types.Endpoint) (types.HostID, bool) {
	h, ok := m.endpointToHostID[endpoint]
	return h, ok
}

// EndpointForHostID is the inverse lookup.
func (m *Metadata) EndpointForHostID(hostID types.HostID) (types.Endpoint, bool) {
	e, ok := m.hostIDToEndpoint[hostID]
	return e, ok
}

// RemoveEndpoint excises endpoint from every map: normal tokens, bootstrap
// tokens, leaving set, replacing edges (either direction), and the host-id
// bijection. Called by pkg/gossip's excise once a LEFT/REMOVED_TOKEN status
// is observed.
func (m *Metadata) RemoveEndpoint(endpoint types.Endpoint) {
	for k, e := range m.normalTokens {
		if e.endpoint == endpoint {
			delete(m.normalTokens, k)
		}
	}
	for k, e := range m.bootstrapTokens {
		if e.endpoint == endpoint {
			delete(m.bootstrapTokens, k)
		}
	}
	delete(m.leavingEndpoints, endpoint)
	delete(m.replacingEndpoints, endpoint)
	for existing, replacing := range m.replacingEndpoints {
		if replacing == endpoint {
			delete(m.replacingEndpoints, existing)
		}
	}
	if hostID, ok := m.endpointToHostID[endpoint]; ok {
		delete(m.hostIDToEndpoint, hostID)
	}
	delete(m.endpointToHostID, endpoint)
	delete(m.generations, endpoint)
	m.bump()
}

// SortedTokens returns the sorted view of normal_tokens ∪ bootstrap_tokens.
func (m *Metadata) SortedTokens() []types.Token {
	out := make([]types.Token, 0, len(m.normalTokens)+len(m.bootstrapTokens))
	for _, e := range m.normalTokens {
		out = append(out, e.token)
	}
	for _, e := range m.bootstrapTokens {
		out = append(out, e.token)
	}
	sortTokens(out)
	return out
}

// NormalEndpoints returns the distinct set of endpoints owning at least one
// normal token, sorted by address for determinism.
func (m *Metadata) NormalEndpoints() []types.Endpoint {
	seen := make(map[types.Endpoint]struct{})
	for _, e := range m.normalTokens {
		seen[e.endpoint] = struct{}{}
	}
	out := make([]types.Endpoint, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

func sortTokens(tokens []types.Token) {
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Compare(tokens[j]) < 0 })
}

// Clone returns a deep, independent copy of m. The copy is the mutable
// builder a shard owns exclusively until it publishes it via pkg/replicate.
func (m *Metadata) Clone() *Metadata {
	out := New()
	for k, v := range m.normalTokens {
		out.normalTokens[k] = v
	}
	for k, v := range m.bootstrapTokens {
		out.bootstrapTokens[k] = v
	}
	for k := range m.leavingEndpoints {
		out.leavingEndpoints[k] = struct{}{}
	}
	for k, v := range m.replacingEndpoints {
		out.replacingEndpoints[k] = v
	}
	for k, v := range m.endpointToHostID {
		out.endpointToHostID[k] = v
	}
	for k, v := range m.hostIDToEndpoint {
		out.hostIDToEndpoint[k] = v
	}
	for k, v := range m.generations {
		out.generations[k] = v
	}
	for ks, entries := range m.pendingRanges {
		cp := make([]PendingRangeEntry, len(entries))
		copy(cp, entries)
		out.pendingRanges[ks] = cp
	}
	out.ringVersion = m.ringVersion
	return out
}

// CloneAsync behaves like Clone but cooperatively yields to ctx roughly
// every yieldEvery map entries, so cloning a large ring does not monopolize
// a shard's task queue (spec.md §5, "maybe_yield every few thousand
// elements"). It returns ctx.Err() if the context is cancelled mid-clone.
func (m *Metadata) CloneAsync(ctx context.Context) (*Metadata, error) {
	out := New()
	n := 0
	maybeYield := func() error {
		n++
		if n%yieldEvery != 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	for k, v := range m.normalTokens {
		out.normalTokens[k] = v
		if err := maybeYield(); err != nil {
			return nil, err
		}
	}
	for k, v := range m.bootstrapTokens {
		out.bootstrapTokens[k] = v
		if err := maybeYield(); err != nil {
			return nil, err
		}
	}
	for k := range m.leavingEndpoints {
		out.leavingEndpoints[k] = struct{}{}
	}
	for k, v := range m.replacingEndpoints {
		out.replacingEndpoints[k] = v
	}
	for k, v := range m.endpointToHostID {
		out.endpointToHostID[k] = v
	}
	for k, v := range m.hostIDToEndpoint {
		out.hostIDToEndpoint[k] = v
	}
	for k, v := range m.generations {
		out.generations[k] = v
	}
	for ks, entries := range m.pendingRanges {
		cp := make([]PendingRangeEntry, len(entries))
		copy(cp, entries)
		out.pendingRanges[ks] = cp
	}
	out.ringVersion = m.ringVersion
	return out, nil
}

// CloneAfterAllLeft returns a snapshot as it will look once every endpoint
// currently in leaving_endpoints has been excised: their normal tokens are
// dropped and the leaving/replacing bookkeeping for them is cleared.
// UpdatePendingRanges does not use it: it builds its own future ring
// (futureRing in pending.go), which also promotes bootstrap tokens and moves
// replaced endpoints' tokens to their replacements.
func (m *Metadata) CloneAfterAllLeft() *Metadata {
	out := m.Clone()
	for ep := range m.leavingEndpoints {
		out.RemoveEndpoint(ep)
	}
	return out
}

// mustAllOwnershipRules is a cheap internal consistency check used only by
// tests: every normal token maps to exactly one endpoint (trivially true of
// a Go map) and the host-id map is injective.
func (m *Metadata) mustAllOwnershipRules() error {
	if len(m.hostIDToEndpoint) != len(m.endpointToHostID) {
		return fmt.Errorf("host id map not injective: %d host ids, %d endpoints",
			len(m.hostIDToEndpoint), len(m.endpointToHostID))
	}
	return nil
}

// Snapshot is a read-only handle safe to share across shard boundaries. It
// wraps a *Metadata behind a mutex-free facade: callers must not mutate the
// wrapped value and should treat it as published per spec.md §3.
type Snapshot struct {
	md *Metadata
}

// Publish wraps m as a read-only Snapshot. Callers must not mutate m after
// calling Publish; pkg/replicate's contract is to always hand it a fresh
// Clone.
func Publish(m *Metadata) *Snapshot { return &Snapshot{md: m} }

func (s *Snapshot) Metadata() *Metadata { return s.md }

// cell is a per-shard holder of the currently-published Snapshot, used by
// pkg/replicate to model "each shard is an actor owning a local snapshot
// cell" (spec.md §9).
type cell struct {
	mu   sync.RWMutex
	curr *Snapshot
}

// NewCell creates a shard-local snapshot cell seeded with an empty ring.
func NewCell() *Cell {
	return &Cell{cell: cell{curr: Publish(New())}}
}

// Cell is the exported, shard-local snapshot holder.
type Cell struct {
	cell
}

// Load returns the currently-published snapshot.
func (c *Cell) Load() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.curr
}

// Store atomically swaps in a new published snapshot. This is the only
// mutation pkg/replicate performs on a shard's cell, modeling "publication
// only swaps references, it does not mutate in place" (spec.md §5).
func (c *Cell) Store(s *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.curr = s
}
