package gossip

import (
	"context"
	"strconv"

	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

// handleStateBootstrap implements spec.md §4.3's handle_state_bootstrap:
// if ep is already a member, remove it first (recovery path), then record
// its bootstrap tokens and host id.
func (h *Handler) handleStateBootstrap(ep types.Endpoint, pieces []string) {
	tokens := parseTokens(pieces)
	gen := h.bus.GenerationOf(ep)

	err := h.mutate(context.Background(), func(md *token.Metadata) {
		if md.OwnsAnyNormalToken(ep) {
			md.RemoveEndpoint(ep)
		}
		md.AddBootstrapTokens(tokens, ep)
		if hostID, ok := h.bus.HostIDOf(ep); ok {
			md.UpdateHostID(hostID, ep, gen)
		}
	})
	if err != nil {
		log.WithEndpoint(ep.String()).Error().Err(err).Msg("handle_state_bootstrap failed")
	}
}

// handleStateNormal implements spec.md §4.3's handle_state_normal: resolve
// a generation-based tie-break per advertised token, transfer ownership,
// update_normal_tokens, persist the peer's tokens, and fire notify_joined
// iff ep was not previously a member.
func (h *Handler) handleStateNormal(ep types.Endpoint, pieces []string) {
	tokens := parseTokens(pieces)
	if len(tokens) == 0 {
		return
	}
	gen := h.bus.GenerationOf(ep)

	var wasMember bool
	var losers []types.Endpoint

	err := h.mutate(context.Background(), func(md *token.Metadata) {
		wasMember = len(md.NormalTokensOf(ep)) > 0 || len(md.BootstrapTokensOf(ep)) > 0

		var claimed []types.Token
		for _, t := range tokens {
			prevOwner, result := md.ResolveTokenClaim(t, ep, gen)
			switch result {
			case token.ClaimNoOwner, token.ClaimWon:
				if result == token.ClaimWon && prevOwner != ep {
					losers = append(losers, prevOwner)
				}
			case token.ClaimAlreadyOwner:
				// no-op
			case token.ClaimLost:
				// another endpoint's claim stands; skip this token for ep
				continue
			}
			claimed = append(claimed, t)
		}
		md.UpdateNormalTokens(claimed, ep)
		if hostID, ok := h.bus.HostIDOf(ep); ok {
			md.UpdateHostID(hostID, ep, gen)
		}
		for _, loser := range losers {
			if len(md.NormalTokensOf(loser)) == 0 {
				md.RemoveEndpoint(loser)
			}
		}
	})
	if err != nil {
		log.WithEndpoint(ep.String()).Error().Err(err).Msg("handle_state_normal failed")
		return
	}

	if h.peerStore != nil {
		if err := h.peerStore.SavePeerTokens(ep, tokens); err != nil {
			log.WithEndpoint(ep.String()).Error().Err(err).Msg("failed to persist peer tokens")
		}
	}
	if !wasMember && h.lifecycle != nil {
		h.lifecycle.NotifyJoined(ep)
	}
}

// handleStateLeaving implements spec.md §4.3's handle_state_leaving: mark ep
// leaving. It does not add tokens for an ep that is not yet a member ("jump
// to leaving"); such an ep is only recorded in leaving_endpoints.
func (h *Handler) handleStateLeaving(ep types.Endpoint) {
	// "jump to leaving": if ep isn't a member yet, it has no tokens to add
	// here anyway; LEFT will carry them (or local metadata already has them)
	// when excise eventually runs.
	err := h.mutate(context.Background(), func(md *token.Metadata) {
		md.AddLeavingEndpoint(ep)
	})
	if err != nil {
		log.WithEndpoint(ep.String()).Error().Err(err).Msg("handle_state_leaving failed")
	}
}

// handleStateLeft implements spec.md §4.3's handle_state_left: extract
// tokens (falling back to local metadata when gossip's pieces don't carry
// them) and excise the endpoint.
func (h *Handler) handleStateLeft(ep types.Endpoint, pieces []string) {
	tokens := parseTokens(pieces)
	h.excise(ep, tokens)
}

// handleStateRemoving implements spec.md §4.3's handle_state_removing. If ep
// is self, this node was force-removed elsewhere: the callback registered
// with OnSelfRemoved runs (pkg/coordinator registers one that drains the
// node) and nothing else is done here.
func (h *Handler) handleStateRemoving(ep types.Endpoint, status types.StatusValue, pieces []string) {
	if ep == h.self {
		log.WithEndpoint(ep.String()).Warn().Msg("this node was force-removed by another peer")
		h.mu.Lock()
		fn := h.selfRemoved
		h.mu.Unlock()
		if fn != nil {
			fn()
		}
		return
	}

	if status == types.StatusRemovedToken {
		h.excise(ep, parseTokens(pieces))
		return
	}

	// REMOVING_TOKEN: add to leaving, recompute pending ranges, then stream
	// missing replicas to the named removal coordinator asynchronously.
	err := h.mutate(context.Background(), func(md *token.Metadata) {
		md.AddLeavingEndpoint(ep)
	})
	if err != nil {
		log.WithEndpoint(ep.String()).Error().Err(err).Msg("handle_state_removing failed")
		return
	}

	coordinator, ok := h.bus.RemovalCoordinatorOf(ep)
	if !ok || h.streamer == nil {
		return
	}
	go h.streamMissingReplicas(ep, coordinator)
}

func (h *Handler) streamMissingReplicas(ep, coordinator types.Endpoint) {
	ctx := context.Background()
	if err := h.streamer.StreamMissingReplicas(ctx, ep, coordinator); err != nil {
		log.WithEndpoint(ep.String()).Error().Err(err).Msg("failed to stream missing replicas for removal")
		return
	}
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NotifyReplicationFinished(ctx, coordinator); err != nil {
		log.WithEndpoint(coordinator.String()).Error().Err(err).Msg("failed to notify replication_finished")
	}
}

// handleStateReplacing implements spec.md §4.3's handle_state_replacing:
// add a replacing edge; if ep is already alive, recompute pending ranges
// now, otherwise defer to Handler.onAlive.
func (h *Handler) handleStateReplacing(ep types.Endpoint) {
	existing, ok := h.replacedEndpointFor(ep)
	if !ok {
		log.WithEndpoint(ep.String()).Warn().Msg("HIBERNATE/replacing state with no known replacement target")
		return
	}

	err := h.mutate(context.Background(), func(md *token.Metadata) {
		md.AddReplacingEndpoint(existing, ep)
	})
	if err != nil {
		log.WithEndpoint(ep.String()).Error().Err(err).Msg("handle_state_replacing failed")
		return
	}

	if !h.bus.IsAlive(ep) {
		return // deferred: Handler.onAlive will recompute once ep is reachable
	}
	if err := h.mutate(context.Background(), func(md *token.Metadata) {}); err != nil {
		log.WithEndpoint(ep.String()).Error().Err(err).Msg("failed to recompute pending ranges for replacing endpoint")
	}
}

// replacedEndpointFor resolves which existing endpoint ep is replacing. In
// this handler that information arrives out-of-band (the join sequencer
// records it via SetReplacementHint before gossip delivers the HIBERNATE/
// replacing status); see sequencer.go in pkg/join.
func (h *Handler) replacedEndpointFor(ep types.Endpoint) (types.Endpoint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for existing, replacing := range h.replacingHints {
		if replacing == ep {
			return existing, true
		}
	}
	return types.Endpoint{}, false
}

// excise removes ep from metadata entirely and fires notify_left.
func (h *Handler) excise(ep types.Endpoint, tokens []types.Token) {
	err := h.mutate(context.Background(), func(md *token.Metadata) {
		if len(tokens) == 0 {
			tokens = md.NormalTokensOf(ep)
		}
		md.RemoveEndpoint(ep)
	})
	if err != nil {
		log.WithEndpoint(ep.String()).Error().Err(err).Msg("excise failed")
		return
	}
	if h.lifecycle != nil {
		h.lifecycle.NotifyLeft(ep)
	}
}

func parseTokens(pieces []string) []types.Token {
	var out []types.Token
	for _, p := range pieces {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, types.TokenFromInt64(v))
	}
	return out
}

