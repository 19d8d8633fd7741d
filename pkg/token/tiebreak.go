package token

import "github.com/cuisonghui/scylla/pkg/types"

// ClaimResult reports the outcome of resolving a token ownership claim.
type ClaimResult int

const (
	// ClaimNoOwner means the token had no owner and now belongs to the
	// claimant.
	ClaimNoOwner ClaimResult = iota
	// ClaimAlreadyOwner means the claimant already owned the token; no
	// change was made.
	ClaimAlreadyOwner
	// ClaimWon means the claimant's generation beat the previous owner's;
	// ownership transferred.
	ClaimWon
	// ClaimLost means the previous owner's generation was later or equal;
	// the claim was rejected and no change was made.
	ClaimLost
)

// ResolveTokenClaim implements the collision tie-break from spec.md §4.1:
// "the endpoint with the later observed gossip generation+version wins".
// It does not mutate m; callers apply the winning side via
// UpdateNormalTokens themselves so the caller can also decide what happens
// to the losing endpoint's other tokens (spec.md §4.3, handle_state_normal).
func (m *Metadata) ResolveTokenClaim(t types.Token, claimant types.Endpoint, claimantGen types.Generation) (types.Endpoint, ClaimResult) {
	owner, ok := m.OwnerOf(t)
	if !ok {
		return claimant, ClaimNoOwner
	}
	if owner == claimant {
		return claimant, ClaimAlreadyOwner
	}
	ownerGen := m.generations[owner]
	if claimantGen.Later(ownerGen) {
		return owner, ClaimWon
	}
	return owner, ClaimLost
}

// OwnsAnyNormalToken reports whether endpoint still owns at least one
// normal token, used to decide whether a dethroned owner should be queued
// for removal (spec.md §4.3: "marking the loser for removal if it owns no
// remaining tokens").
func (m *Metadata) OwnsAnyNormalToken(endpoint types.Endpoint) bool {
	for _, e := range m.normalTokens {
		if e.endpoint == endpoint {
			return true
		}
	}
	return false
}
