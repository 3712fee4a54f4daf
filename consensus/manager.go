// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensus collects Byzantine-tolerant quorum votes over an
// already-mediated transaction (spec section 4.E), grounded on
// original_source/sync-domain/src/consensus.rs's session-map-plus-
// validator-registry shape and the teacher's quorum accumulation idiom.
package consensus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/log"
	"github.com/luxfi/synchronizer/errs"
	"github.com/luxfi/synchronizer/store"
	"github.com/luxfi/synchronizer/types"
)

const component = "consensus.Manager"

// PublicKeyLookup resolves a validator's registered public key for vote
// signature verification.
type PublicKeyLookup func(participant types.ParticipantId) ([]byte, bool)

// ActiveSetLookup returns the currently active (non-jailed) validators in a
// deterministic order, used for leader election (spec section 4.E "View
// change").
type ActiveSetLookup func() []types.ParticipantId

// Config mirrors spec section 6's "Consensus" configuration options.
type Config struct {
	DomainID                types.DomainId
	QuorumRatioThousandths  QuorumRatioThousandths
	MaxViewsWithoutProgress int
	ViewChangeTimeout       time.Duration
	JailDurationSecs        int64
	ByzantineThreshold      int
	ConsensusTimeout        time.Duration
	RequireUnanimous        bool
}

// Manager runs one ConsensusSession per transaction, collecting weighted
// votes from required participants until quorum is reached, rejected, or
// the session times out.
type Manager struct {
	cfg         Config
	store       store.Store
	log         log.Logger
	keys        PublicKeyLookup
	weight      WeightLookup
	active      ActiveSetLookup
	jailer      Jailer
	flood       *FloodControl
	metrics     *metricsTracker
	promMetrics *promMetrics

	mu       sync.RWMutex
	sessions map[types.TransactionId]*session
}

// New constructs a Manager. jailer and flood may be nil to disable jailing
// and flood control respectively. reg may be nil to skip Prometheus
// registration (e.g. in tests).
func New(cfg Config, st store.Store, logger log.Logger, keys PublicKeyLookup, weight WeightLookup, active ActiveSetLookup, jailer Jailer, flood *FloodControl, reg prometheus.Registerer) *Manager {
	if cfg.ConsensusTimeout <= 0 {
		cfg.ConsensusTimeout = 30 * time.Second
	}
	if cfg.ViewChangeTimeout <= 0 {
		cfg.ViewChangeTimeout = 10 * time.Second
	}
	if cfg.MaxViewsWithoutProgress <= 0 {
		cfg.MaxViewsWithoutProgress = 3
	}
	return &Manager{
		cfg:         cfg,
		store:       st,
		log:         logger,
		keys:        keys,
		weight:      weight,
		active:      active,
		jailer:      jailer,
		flood:       flood,
		metrics:     newMetricsTracker(),
		promMetrics: registerPromMetrics(reg, string(cfg.DomainID)),
		sessions:    make(map[types.TransactionId]*session),
	}
}

// StartConsensus opens a voting round for tx (spec section 4.E state
// machine: "start_consensus -> Voting"). It fails with KindInvalidState if a
// session for this transaction already exists.
func (m *Manager) StartConsensus(ctx context.Context, txID types.TransactionId, required []types.ParticipantId, domain types.DomainId, encryptedData []byte) error {
	m.mu.Lock()
	if _, exists := m.sessions[txID]; exists {
		m.mu.Unlock()
		return errs.New(errs.KindInvalidState, component, "consensus session already exists for transaction")
	}
	s := newSession(txID, required, domain, encryptedData, m.cfg.ConsensusTimeout, m.cfg.RequireUnanimous, time.Now())
	m.sessions[txID] = s
	m.mu.Unlock()

	m.metrics.recordStart()
	m.promMetrics.proposals.Inc()
	return m.persist(ctx, s)
}

// Session returns a snapshot of the named transaction's consensus session.
func (m *Manager) Session(id types.TransactionId) (types.ConsensusSession, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return types.ConsensusSession{}, false
	}
	return s.snapshot(), true
}

// HandleVote records a single validator's signed vote, detecting double
// signing, verifying the signature, rejecting votes from non-required or
// flood-limited participants, and evaluating whether quorum has been
// reached (spec section 4.E "Vote verification" / section 8 invariant 4).
func (m *Manager) HandleVote(ctx context.Context, txID types.TransactionId, vote types.ConsensusVote) error {
	if m.flood != nil && !m.flood.AllowVote(vote.Voter) {
		return errs.New(errs.KindRateLimited, component, "vote rate limit exceeded")
	}

	m.mu.RLock()
	s, ok := m.sessions[txID]
	m.mu.RUnlock()
	if !ok {
		return errs.New(errs.KindNotFound, component, "no consensus session for transaction")
	}

	pub, ok := m.keys(vote.Voter)
	if !ok {
		return errs.New(errs.KindUnauthorized, component, "unknown validator")
	}
	if !VerifyVoteSignature(pub, txID, vote) {
		return errs.New(errs.KindInvalidSignature, component, "invalid vote signature")
	}

	s.mu.Lock()

	isRequired := false
	for _, p := range s.data.RequiredParticipants {
		if p == vote.Voter {
			isRequired = true
			break
		}
	}
	if !isRequired {
		s.mu.Unlock()
		return errs.New(errs.KindInvalidInput, component, "participant not required for this consensus")
	}

	if vote.View == s.data.View && detectDoubleSign(s.data.Votes, vote) {
		s.mu.Unlock()
		if m.jailer != nil {
			until := time.Now().Add(time.Duration(m.cfg.JailDurationSecs) * time.Second).Unix()
			if err := m.jailer.Jail(vote.Voter, until); err != nil {
				m.log.Error("jailing double-signing validator failed", zap.Error(err), zap.String("participant", string(vote.Voter)))
			}
		}
		return errs.New(errs.KindInvalidState, component, "double sign detected, validator jailed")
	}

	if vote.View != s.data.View {
		s.mu.Unlock()
		return errs.New(errs.KindInvalidState, component, "vote belongs to a stale view")
	}

	if _, dup := s.data.Votes[vote.Voter]; dup {
		s.mu.Unlock()
		return errs.New(errs.KindInvalidState, component, "participant already voted")
	}

	s.data.Votes[vote.Voter] = vote
	votes := make(map[types.ParticipantId]types.ConsensusVote, len(s.data.Votes))
	for k, v := range s.data.Votes {
		votes[k] = v
	}
	requiredCopy := append([]types.ParticipantId(nil), s.data.RequiredParticipants...)
	requireUnanimous := s.data.RequireUnanimous
	createdAt := s.data.CreatedAt
	s.mu.Unlock()

	result := m.evaluateQuorum(requiredCopy, votes, requireUnanimous)
	if result == nil {
		return m.persist(ctx, s)
	}

	s.mu.Lock()
	if s.data.Phase != types.PhaseVoting {
		s.mu.Unlock()
		return m.persist(ctx, s)
	}
	if result.Kind == types.ResultApproved {
		s.data.Phase = types.PhaseCommitted
	} else {
		s.data.Phase = types.PhaseAborted
	}
	s.data.Result = result
	s.mu.Unlock()

	m.metrics.recordTerminal(result.Kind == types.ResultApproved, time.Since(createdAt))
	if result.Kind == types.ResultApproved {
		m.promMetrics.successful.Inc()
	} else {
		m.promMetrics.failed.Inc()
	}
	m.log.Info("consensus session terminated", zap.String("tx", txID.String()), zap.Int("kind", int(result.Kind)))
	return m.persist(ctx, s)
}

// evaluateQuorum tallies approving and rejecting weight against required
// quorum (spec section 4.E "Quorum policy" / section 8 invariant 4).
func (m *Manager) evaluateQuorum(required []types.ParticipantId, votes map[types.ParticipantId]types.ConsensusVote, requireUnanimous bool) *types.ConsensusResult {
	totalWeight := SumWeights(required, m.weight)
	quorum := RequiredQuorum(totalWeight, m.cfg.QuorumRatioThousandths)

	var approveWeight, rejectWeight uint64
	var rejecting []string
	for _, p := range required {
		v, ok := votes[p]
		if !ok {
			continue
		}
		w := m.weight(p)
		if v.Vote {
			approveWeight += w
		} else {
			rejectWeight += w
			if requireUnanimous {
				return &types.ConsensusResult{Kind: types.ResultRejected, Reason: "require_unanimous: rejected by " + string(p)}
			}
			rejecting = append(rejecting, string(p))
		}
	}

	if approveWeight >= quorum {
		return &types.ConsensusResult{Kind: types.ResultApproved}
	}
	if rejectWeight >= quorum || rejectWeight > totalWeight-quorum {
		return &types.ConsensusResult{Kind: types.ResultRejected, Reason: "rejected by " + strings.Join(rejecting, ", ")}
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, s *session) error {
	snap := s.snapshot()
	if err := m.store.PutConsensusSession(ctx, snap); err != nil {
		return errs.Wrap(errs.KindStorageFailure, component, err, "persisting consensus session failed")
	}
	return nil
}

// CheckViewChanges scans every still-voting session for silence past
// ViewChangeTimeout and, once MaxViewsWithoutProgress has elapsed with no
// progress, abandons the current view: discards its votes, advances the
// view counter, and elects the next leader deterministically (spec section
// 4.E "View change").
func (m *Manager) CheckViewChanges(ctx context.Context) {
	now := time.Now()
	m.mu.RLock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.mu.Lock()
		if s.data.Phase != types.PhaseVoting {
			s.mu.Unlock()
			continue
		}
		silentFor := now.Sub(s.data.CreatedAt)
		threshold := m.cfg.ViewChangeTimeout * time.Duration(m.cfg.MaxViewsWithoutProgress)
		if silentFor < threshold {
			s.mu.Unlock()
			continue
		}
		s.data.View++
		s.data.Votes = make(map[types.ParticipantId]types.ConsensusVote)
		s.data.CreatedAt = now
		newView := s.data.View
		s.mu.Unlock()

		m.metrics.recordViewChange(newView)
		m.promMetrics.viewChanges.Inc()
		fields := []zap.Field{zap.Uint64("view", newView)}
		if m.active != nil {
			if leader, ok := NextLeader(newView-1, m.active()); ok {
				fields = append(fields, zap.String("leader", string(leader)))
			}
		}
		m.log.Warn("consensus view changed", fields...)
		if err := m.persist(ctx, s); err != nil {
			m.log.Error("persisting view change failed", zap.Error(err))
		}
	}
}

// CheckTimeouts resolves every still-voting session whose deadline has
// passed to Aborted(Timeout) (spec section 4.E "Failures").
func (m *Manager) CheckTimeouts(ctx context.Context) {
	now := time.Now()
	m.mu.RLock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.mu.Lock()
		if s.data.Phase != types.PhaseVoting || now.Before(s.data.Timeout) {
			s.mu.Unlock()
			continue
		}
		s.data.Phase = types.PhaseAborted
		s.data.Result = &types.ConsensusResult{Kind: types.ResultTimeout, Reason: "consensus_timeout_ms elapsed"}
		createdAt := s.data.CreatedAt
		s.mu.Unlock()

		m.metrics.recordTerminal(false, time.Since(createdAt))
		m.promMetrics.failed.Inc()
		m.log.Warn("consensus session timed out")
		if err := m.persist(ctx, s); err != nil {
			m.log.Error("persisting timed-out consensus session failed", zap.Error(err))
		}
	}
}

// Metrics returns a snapshot of the manager's current counters.
func (m *Manager) Metrics() Metrics {
	return m.metrics.snapshot()
}
