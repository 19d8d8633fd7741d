package token

import (
	"github.com/cuisonghui/scylla/pkg/types"
)

// Range is a half-open interval on the token ring: the set of tokens
// following Left up to and including Right. A Range whose Right precedes
// Left wraps around the origin of the ring.
type Range struct {
	Left  types.Token
	Right types.Token
}

// PendingRangeEntry records that endpoint is about to gain ownership of
// rng once the currently-running topology changes in a keyspace complete.
// This is the authoritative input write-path range routing consults during
// a topology change (spec.md §4.1).
type PendingRangeEntry struct {
	Range    Range
	Endpoint types.Endpoint
}

// ReplicationStrategy computes the natural (steady-state) replica set for
// a token given a ring snapshot. It is the "Local database" collaborator's
// replication-strategy concern (§6); this package treats it as an
// injected dependency and never interprets keyspace or column-family data
// itself.
type ReplicationStrategy interface {
	// NaturalEndpoints returns the ordered list of endpoints that would
	// replicate the range ending at token under md, most-preferred first.
	NaturalEndpoints(md *Metadata, token types.Token) []types.Endpoint
}

// PendingRanges returns the pending range entries currently recorded for
// keyspace ks.
func (m *Metadata) PendingRanges(ks string) []PendingRangeEntry {
	return m.pendingRanges[ks]
}

// UpdatePendingRanges recomputes the pending ranges for keyspace ks: the
// delta between who owns each range today (normal_tokens only) and who
// will own it once every announced bootstrap completes and every leaving
// endpoint is excised. It is the authoritative input to write-path range
// routing during a topology change (spec.md §4.1) and must be re-run on
// every structural mutation to normal_tokens, bootstrap_tokens,
// leaving_endpoints, or replacing_endpoints.
func (m *Metadata) UpdatePendingRanges(ks string, strategy ReplicationStrategy) {
	current := m.currentRing()
	future := m.futureRing()

	currentOwners := ownersByRangeEnd(current, strategy)
	futureOwners := ownersByRangeEnd(future, strategy)

	var entries []PendingRangeEntry
	for _, endTok := range future.SortedTokens() {
		endToken := endTok.String()
		futureEndpoints := futureOwners[endToken]
		currentEndpoints := currentOwners[endToken]
		currentSet := make(map[types.Endpoint]struct{}, len(currentEndpoints))
		for _, e := range currentEndpoints {
			currentSet[e] = struct{}{}
		}
		left := leftBoundary(future, endTok)
		for _, e := range futureEndpoints {
			if _, already := currentSet[e]; already {
				continue
			}
			entries = append(entries, PendingRangeEntry{
				Range:    Range{Left: left, Right: endTok},
				Endpoint: e,
			})
		}
	}

	m.pendingRanges[ks] = entries
}

// currentRing is the snapshot pending-range computation treats as "today":
// only committed, normal ownership — bootstrapping endpoints do not own
// anything yet, and leaving endpoints still own their tokens (invariant 2).
func (m *Metadata) currentRing() *Metadata {
	out := New()
	for k, v := range m.normalTokens {
		out.normalTokens[k] = v
	}
	return out
}

// futureRing is the snapshot pending-range computation treats as "once
// every currently-announced topology change completes": bootstrap tokens
// are promoted to normal, tokens of replaced endpoints move to their
// replacement, and leaving endpoints' tokens are dropped entirely.
func (m *Metadata) futureRing() *Metadata {
	out := New()
	for k, v := range m.normalTokens {
		if _, leaving := m.leavingEndpoints[v.endpoint]; leaving {
			continue
		}
		if replacement, replaced := m.replacingEndpoints[v.endpoint]; replaced {
			out.normalTokens[k] = tokenEntry{token: v.token, endpoint: replacement}
			continue
		}
		out.normalTokens[k] = v
	}
	for k, v := range m.bootstrapTokens {
		out.normalTokens[k] = v
	}
	return out
}

// ownersByRangeEnd maps each token's range-end key to the strategy's
// natural endpoints for that range, under ring.
func ownersByRangeEnd(ring *Metadata, strategy ReplicationStrategy) map[string][]types.Endpoint {
	out := make(map[string][]types.Endpoint)
	for _, t := range ring.SortedTokens() {
		out[t.String()] = strategy.NaturalEndpoints(ring, t)
	}
	return out
}

// leftBoundary finds the sorted token immediately preceding endToken in
// ring, wrapping to the last token if endToken is the smallest.
func leftBoundary(ring *Metadata, endToken types.Token) types.Token {
	sorted := ring.SortedTokens()
	if len(sorted) == 0 {
		return endToken
	}
	for i, t := range sorted {
		if t.String() == endToken.String() {
			if i == 0 {
				return sorted[len(sorted)-1]
			}
			return sorted[i-1]
		}
	}
	return endToken
}
