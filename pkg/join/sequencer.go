package join

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuisonghui/scylla/pkg/log"
	"github.com/cuisonghui/scylla/pkg/mode"
	"github.com/cuisonghui/scylla/pkg/syskeyspace"
	"github.com/cuisonghui/scylla/pkg/types"
)

// Config bundles everything the join sequencer needs: the collaborators
// from collaborators.go, local configuration values, and the static
// application-state values announced once at startup (spec.md §4.4 step
// "announce initial application states").
type Config struct {
	Self                    types.Endpoint
	Seeds                   []types.Endpoint
	NumTokens               int
	ConsistentRangeMovement bool
	RingDelay               time.Duration
	// ReplaceTarget, if non-zero, is the endpoint this node is replacing.
	ReplaceTarget        types.Endpoint
	DecommissionOverride bool

	NetVersion        string
	RPCAddress        string
	ReleaseVersion    string
	SupportedFeatures []string
	SchemaVersion     string
	SnitchName        string
	ShardCount        int
	IgnoreMSBBits     int

	Bus      Bus
	Shadow   ShadowRounder
	Group0   Group0
	Schema   SchemaAgreement
	Ring     RingObserver
	Seeder   RingSeeder
	Hinter   ReplacementHinter
	Streamer Streamer
	CDC      CDCGenerator
	Store    *syskeyspace.Store
	Mode     *mode.Machine

	Clock Clock
	Sleep func(time.Duration)
}

// Sequencer is C4, the join sequencer. It drives prepare_to_join and
// join_token_ring exactly once per process lifetime.
type Sequencer struct {
	cfg Config

	mu               sync.Mutex
	replacedEndpoint types.Endpoint
	adoptedTokens    []types.Token
}

// New builds a Sequencer from cfg, defaulting Clock and Sleep to the real
// wall clock when the caller leaves them nil.
func New(cfg Config) *Sequencer {
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	return &Sequencer{cfg: cfg}
}

// PrepareToJoin runs prepare_to_join (spec.md §4.4): fatal checks, a
// shadow gossip round appropriate to this node's startup case, the
// restart-normal metadata seed, the initial application-state
// announcement, and the generation bump that precedes real gossiping.
func (s *Sequencer) PrepareToJoin(ctx context.Context) error {
	logger := log.WithComponent("join")

	if err := s.cfg.Mode.Transition(mode.Joining); err != nil {
		return fmt.Errorf("join: transition to JOINING: %w", err)
	}

	state, err := s.cfg.Store.BootstrapState()
	if err != nil {
		return fmt.Errorf("join: read bootstrap state: %w", err)
	}

	if state == types.BootstrapDecommissioned && !s.cfg.DecommissionOverride {
		return fatalf("join: this node was decommissioned; refusing to rejoin without an operator override")
	}

	replacing := !s.cfg.ReplaceTarget.IsZero()
	switch {
	case replacing:
		if err := s.prepareReplace(ctx); err != nil {
			return err
		}
	case state == types.BootstrapNeedsBootstrap:
		if err := s.prepareFreshBootstrap(ctx); err != nil {
			return err
		}
	default:
		if _, err := s.cfg.Shadow.ShadowRound(ctx, s.cfg.Seeds); err != nil {
			return fmt.Errorf("join: shadow round: %w", err)
		}
	}

	restartingNormal := state == types.BootstrapCompleted && !replacing
	if restartingNormal {
		tokens, err := s.cfg.Store.LocalTokens()
		if err != nil {
			return fmt.Errorf("join: load saved tokens: %w", err)
		}
		if len(tokens) > 0 {
			if err := s.cfg.Seeder.SeedNormalTokens(ctx, s.cfg.Self, tokens); err != nil {
				return fmt.Errorf("join: seed normal tokens before gossiping: %w", err)
			}
		}
	}

	if err := s.announceInitialState(ctx, restartingNormal, replacing); err != nil {
		return err
	}

	gen, err := s.cfg.Store.Generation()
	if err != nil {
		return fmt.Errorf("join: read generation: %w", err)
	}
	gen++
	if err := s.cfg.Store.SetGeneration(gen); err != nil {
		return fmt.Errorf("join: persist generation: %w", err)
	}

	s.cfg.Bus.StartGossiping()
	logger.Info().Int64("generation", gen).Bool("replacing", replacing).Msg("prepare_to_join complete, gossiping started")
	return nil
}

func (s *Sequencer) prepareReplace(ctx context.Context) error {
	if len(s.cfg.Seeds) == 0 {
		return fatalf("join: replace requires at least one seed")
	}
	if len(s.cfg.Seeds) == 1 && s.cfg.Seeds[0] == s.cfg.ReplaceTarget {
		return fatalf("join: the only configured seed is the replace target; no live peer to learn ring state from")
	}

	states, err := s.cfg.Shadow.ShadowRound(ctx, s.cfg.Seeds)
	if err != nil {
		return fmt.Errorf("join: shadow round: %w", err)
	}
	target, ok := states[s.cfg.ReplaceTarget]
	if !ok || target.HostID.IsZero() {
		return fatalf("join: shadow round found no state for replace target %s; is it still alive?", s.cfg.ReplaceTarget)
	}
	if s.cfg.Bus.IsAlive(s.cfg.ReplaceTarget) {
		return fatalf("join: replace target %s is still alive", s.cfg.ReplaceTarget)
	}

	s.mu.Lock()
	s.replacedEndpoint = s.cfg.ReplaceTarget
	s.adoptedTokens = target.Tokens
	s.mu.Unlock()

	if s.cfg.Hinter != nil {
		s.cfg.Hinter.SetReplacementHint(s.cfg.ReplaceTarget, s.cfg.Self)
	}
	return s.cfg.Store.SetLocalHostID(target.HostID)
}

func (s *Sequencer) isFirstNode() bool {
	return len(s.cfg.Seeds) == 1 && s.cfg.Seeds[0] == s.cfg.Self
}

func (s *Sequencer) prepareFreshBootstrap(ctx context.Context) error {
	if s.isFirstNode() {
		// is_first_node(): nothing else to learn from a shadow round.
		return nil
	}
	deadline := s.cfg.Clock.Now().Add(60 * time.Second)
	for {
		states, err := s.cfg.Shadow.ShadowRound(ctx, s.cfg.Seeds)
		if err != nil {
			return fmt.Errorf("join: shadow round: %w", err)
		}
		if !s.cfg.ConsistentRangeMovement || !anyInFlux(states) {
			return nil
		}
		if !s.cfg.Clock.Now().Before(deadline) {
			return fatalf("join: other bootstrapping/leaving/moving peers still visible after 60s")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.cfg.Sleep(time.Second)
	}
}

func anyInFlux(states map[types.Endpoint]ShadowState) bool {
	for _, st := range states {
		switch st.Status {
		case types.StatusBoot, types.StatusLeaving, types.StatusMoving:
			return true
		}
	}
	return false
}

type stateAnnouncement struct {
	key   types.ApplicationStateKey
	value string
}

func (s *Sequencer) announceInitialState(ctx context.Context, restartingNormal, replacing bool) error {
	hostID, found, err := s.cfg.Store.LocalHostID()
	if err != nil {
		return fmt.Errorf("join: load host id: %w", err)
	}
	if !found {
		hostID = newHostID()
		if err := s.cfg.Store.SetLocalHostID(hostID); err != nil {
			return fmt.Errorf("join: persist generated host id: %w", err)
		}
	}

	announcements := []stateAnnouncement{
		{types.AppStateNetVersion, s.cfg.NetVersion},
		{types.AppStateHostID, hostID.String()},
		{types.AppStateRPCAddress, s.cfg.RPCAddress},
		{types.AppStateReleaseVersion, s.cfg.ReleaseVersion},
		{types.AppStateSupportedFeatures, strings.Join(s.cfg.SupportedFeatures, ",")},
		{types.AppStateSchema, s.cfg.SchemaVersion},
		{types.AppStateSnitchName, s.cfg.SnitchName},
		{types.AppStateShardCount, strconv.Itoa(s.cfg.ShardCount)},
		{types.AppStateIgnoreMSBBits, strconv.Itoa(s.cfg.IgnoreMSBBits)},
	}

	if restartingNormal || replacing {
		tokens, err := s.cfg.Store.LocalTokens()
		if err != nil {
			return fmt.Errorf("join: load tokens for announce: %w", err)
		}
		if len(tokens) > 0 {
			announcements = append(announcements, stateAnnouncement{types.AppStateTokens, encodeTokens(tokens)})
		}
	}
	if restartingNormal {
		genID, found, err := s.cfg.Store.CDCGenerationID()
		if err != nil {
			return fmt.Errorf("join: load cdc generation id: %w", err)
		}
		if found {
			announcements = append(announcements, stateAnnouncement{types.AppStateCDCGenerationID, strconv.FormatInt(genID, 10)})
		}
		// STATUS=NORMAL must be the last key announced, and only after
		// TOKENS/CDC_GENERATION_ID above, so no observer ever sees this
		// node NORMAL without its ring position (spec.md §5).
		announcements = append(announcements, stateAnnouncement{types.AppStateStatus, string(types.StatusNormal)})
	}

	for _, a := range announcements {
		if a.value == "" {
			continue
		}
		if err := s.cfg.Bus.Advertise(ctx, a.key, a.value); err != nil {
			return fmt.Errorf("join: advertise %s: %w", a.key, err)
		}
	}
	return nil
}

// JoinTokenRing runs join_token_ring (spec.md §4.4): group 0 membership,
// token selection (bootstrap path) or fast-path token recovery, and the
// STATUS=NORMAL announcement that makes this node a ring member.
func (s *Sequencer) JoinTokenRing(ctx context.Context) error {
	logger := log.WithComponent("join")

	if err := s.cfg.Group0.Join(ctx); err != nil {
		return fmt.Errorf("join: join raft group 0: %w", err)
	}

	state, err := s.cfg.Store.BootstrapState()
	if err != nil {
		return fmt.Errorf("join: read bootstrap state: %w", err)
	}

	var tokens []types.Token
	shouldBootstrap := state == types.BootstrapNeedsBootstrap

	if shouldBootstrap {
		if err := s.waitForLiveMember(ctx); err != nil {
			return err
		}
		if err := s.cfg.Schema.WaitForAgreement(ctx); err != nil {
			return fmt.Errorf("join: wait for schema agreement: %w", err)
		}
		if err := s.waitForRangeMovementToSettle(ctx); err != nil {
			return err
		}

		s.mu.Lock()
		replacing := !s.replacedEndpoint.IsZero()
		adopted := s.adoptedTokens
		s.mu.Unlock()

		switch {
		case replacing:
			tokens = adopted
		default:
			if saved, err := s.cfg.Store.LocalTokens(); err == nil && len(saved) > 0 {
				tokens = saved
			} else if err != nil {
				return fmt.Errorf("join: load previously saved tokens: %w", err)
			} else {
				tokens, err = randomTokens(s.cfg.NumTokens)
				if err != nil {
					return err
				}
			}
		}
		if err := s.cfg.Store.SetLocalTokens(tokens); err != nil {
			return fmt.Errorf("join: persist chosen tokens: %w", err)
		}
		if !s.isFirstNode() {
			if err := s.bootstrap(ctx, tokens); err != nil {
				return err
			}
		}
	} else {
		tokens, err = s.cfg.Store.LocalTokens()
		if err != nil {
			return fmt.Errorf("join: load tokens (fast path): %w", err)
		}
		if err := s.cfg.Store.SetLocalTokens(tokens); err != nil {
			return fmt.Errorf("join: persist tokens (fast path): %w", err)
		}
	}

	ringIsEmpty := len(s.cfg.Ring.Metadata().NormalEndpoints()) == 0
	if ringIsEmpty {
		genID, err := s.cfg.CDC.NewGeneration(ctx)
		if err != nil {
			return fmt.Errorf("join: choose cdc generation: %w", err)
		}
		if err := s.cfg.Store.SetCDCGenerationID(genID); err != nil {
			return fmt.Errorf("join: persist cdc generation: %w", err)
		}
	}

	if err := s.cfg.Seeder.SeedNormalTokens(ctx, s.cfg.Self, tokens); err != nil {
		return fmt.Errorf("join: install chosen tokens into local metadata: %w", err)
	}

	if err := s.cfg.Store.SetBootstrapState(types.BootstrapCompleted); err != nil {
		return fmt.Errorf("join: persist bootstrap_state=COMPLETED: %w", err)
	}

	if err := s.cfg.Bus.Advertise(ctx, types.AppStateTokens, encodeTokens(tokens)); err != nil {
		return fmt.Errorf("join: advertise tokens: %w", err)
	}
	if genID, found, err := s.cfg.Store.CDCGenerationID(); err == nil && found {
		if err := s.cfg.Bus.Advertise(ctx, types.AppStateCDCGenerationID, strconv.FormatInt(genID, 10)); err != nil {
			return fmt.Errorf("join: advertise cdc generation id: %w", err)
		}
	}
	if err := s.cfg.Bus.Advertise(ctx, types.AppStateStatus, string(types.StatusNormal)); err != nil {
		return fmt.Errorf("join: advertise STATUS=NORMAL: %w", err)
	}

	if err := s.cfg.Mode.Transition(mode.Normal); err != nil {
		return fmt.Errorf("join: transition to NORMAL: %w", err)
	}

	if len(s.cfg.Ring.Metadata().SortedTokens()) == 0 {
		return fatalf("join: ring has no tokens after announcing NORMAL")
	}

	logger.Info().Int("tokens", len(tokens)).Msg("join_token_ring complete, mode NORMAL")
	return nil
}

func (s *Sequencer) waitForLiveMember(ctx context.Context) error {
	if s.isFirstNode() {
		return nil
	}
	deadline := s.cfg.Clock.Now().Add(s.cfg.RingDelay)
	for {
		for _, ep := range s.cfg.Ring.Metadata().NormalEndpoints() {
			if ep != s.cfg.Self && s.cfg.Bus.IsAlive(ep) {
				return nil
			}
		}
		for _, ep := range s.cfg.Seeds {
			if ep != s.cfg.Self && s.cfg.Bus.IsAlive(ep) {
				return nil
			}
		}
		if !s.cfg.Clock.Now().Before(deadline) {
			return fatalf("join: no live ring member observed within ring_delay")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.cfg.Sleep(100 * time.Millisecond)
	}
}

// waitForRangeMovementToSettle polls the ring's leaving endpoints for
// spec.md §4.4 step 2's consistent_rangemovement retry, for up to 60s. Only
// leaving endpoints are checked; an endpoint that is bootstrapping does not
// hold the retry.
func (s *Sequencer) waitForRangeMovementToSettle(ctx context.Context) error {
	if !s.cfg.ConsistentRangeMovement {
		return nil
	}
	deadline := s.cfg.Clock.Now().Add(60 * time.Second)
	for {
		if len(s.cfg.Ring.Metadata().LeavingEndpoints()) == 0 {
			return nil
		}
		if !s.cfg.Clock.Now().Before(deadline) {
			return fatalf("join: leaving endpoints still present after 60s")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.cfg.Sleep(time.Second)
	}
}

// bootstrap implements bootstrap() (spec.md §4.4): announce BOOTSTRAPPING
// with tokens so peers add this node to pending ranges, stream in data,
// and for a replace, retire the endpoint being replaced.
func (s *Sequencer) bootstrap(ctx context.Context, tokens []types.Token) error {
	s.mu.Lock()
	replacedEndpoint := s.replacedEndpoint
	s.mu.Unlock()

	if replacedEndpoint.IsZero() {
		genID, err := s.cfg.CDC.NewGeneration(ctx)
		if err != nil {
			return fmt.Errorf("join: choose bootstrap cdc generation: %w", err)
		}
		if err := s.cfg.Store.SetCDCGenerationID(genID); err != nil {
			return fmt.Errorf("join: persist bootstrap cdc generation: %w", err)
		}
		if err := s.cfg.Bus.Advertise(ctx, types.AppStateTokens, encodeTokens(tokens)); err != nil {
			return fmt.Errorf("join: advertise bootstrap tokens: %w", err)
		}
		if err := s.cfg.Bus.Advertise(ctx, types.AppStateCDCGenerationID, strconv.FormatInt(genID, 10)); err != nil {
			return fmt.Errorf("join: advertise bootstrap cdc generation id: %w", err)
		}
		if err := s.cfg.Bus.Advertise(ctx, types.AppStateStatus, string(types.StatusBoot)); err != nil {
			return fmt.Errorf("join: advertise STATUS=BOOTSTRAPPING: %w", err)
		}
		if err := s.waitForRangeMovementToSettle(ctx); err != nil {
			return err
		}
	} else {
		if err := s.waitForRangeMovementToSettle(ctx); err != nil {
			return err
		}
		if err := s.cfg.Store.DeletePeer(replacedEndpoint.String()); err != nil {
			return fmt.Errorf("join: remove replaced peer record: %w", err)
		}
		if err := s.cfg.Group0.RemovePeer(ctx, replacedEndpoint); err != nil {
			return fmt.Errorf("join: leave group 0 on behalf of replaced endpoint: %w", err)
		}
	}

	if err := s.cfg.Streamer.StreamBootstrap(ctx, s.cfg.Self, tokens); err != nil {
		return fmt.Errorf("join: stream bootstrap data: %w", err)
	}
	return nil
}
