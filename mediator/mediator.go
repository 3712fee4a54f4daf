// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mediator collects signed multi-party consent prior to consensus
// (spec section 4.D), grounded on original_source/sync-domain/src/mediator.rs
// and the teacher's session-map-plus-single-writer-lock idiom.
package mediator

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/log"
	"github.com/luxfi/synchronizer/errs"
	"github.com/luxfi/synchronizer/store"
	"github.com/luxfi/synchronizer/types"
)

const component = "mediator.Mediator"

// PublicKeyLookup resolves a participant's registered public key for
// consent-signature verification. Kept as a narrow capability rather than a
// direct dependency on the validator package, matching the TerminalStateView
// seam used for DependsOn conditions.
type PublicKeyLookup func(participant types.ParticipantId) ([]byte, bool)

// DelegateSigner produces a consent signature on a participant's behalf when
// auto-consent fires (spec section 9, resolved Open Question 3). The
// repository ships no implementation; with a nil DelegateSigner,
// AutoConsent returns a config error.
type DelegateSigner interface {
	Sign(participant types.ParticipantId, message []byte) ([]byte, error)
}

// Config controls the mediator's default timeouts and concurrency bound
// (spec section 6 "Mediator").
type Config struct {
	DefaultTimeout        time.Duration
	MaxConcurrentSessions int
}

// Mediator runs one MediationSession per transaction, collecting signed
// consent from every required participant and evaluating any conditions
// attached to it before the transaction may proceed to consensus.
type Mediator struct {
	cfg         Config
	store       store.Store
	log         log.Logger
	evaluator   ConditionEvaluator
	keys        PublicKeyLookup
	delegate    DelegateSigner
	terminal    TerminalStateView
	promMetrics *promMetrics

	mu       sync.RWMutex
	sessions map[types.TransactionId]*session

	sem chan struct{}
}

// New constructs a Mediator. evaluator, keys, and terminal must be non-nil;
// delegate may be nil if auto-consent is never requested. reg may be nil to
// skip Prometheus registration (e.g. in tests).
func New(cfg Config, st store.Store, logger log.Logger, evaluator ConditionEvaluator, keys PublicKeyLookup, terminal TerminalStateView, delegate DelegateSigner, reg prometheus.Registerer, domain string) *Mediator {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = 64
	}
	return &Mediator{
		cfg:         cfg,
		store:       st,
		log:         logger,
		evaluator:   evaluator,
		keys:        keys,
		delegate:    delegate,
		terminal:    terminal,
		promMetrics: registerPromMetrics(reg, domain),
		sessions:    make(map[types.TransactionId]*session),
		sem:         make(chan struct{}, cfg.MaxConcurrentSessions),
	}
}

// CreateSession opens a mediation round for tx, requiring consent from every
// participant in required. It fails with KindInvalidState if a session for
// this transaction already exists (spec section 4.D "one session per
// transaction").
func (m *Mediator) CreateSession(tx types.CrossDomainTransaction, required []types.ParticipantId, priority types.MediationPriority) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[tx.TransactionId]; exists {
		return errs.New(errs.KindInvalidState, component, "mediation session already exists for transaction")
	}
	m.sessions[tx.TransactionId] = newSession(tx, required, priority, m.cfg.DefaultTimeout, time.Now())
	return nil
}

// Session returns a snapshot of the named transaction's mediation session.
func (m *Mediator) Session(id types.TransactionId) (types.MediationSession, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return types.MediationSession{}, false
	}
	return s.snapshot(), true
}

// SubmitConsent records a single participant's signed consent, verifying its
// signature and any attached conditions, then evaluates whether the session
// as a whole can terminate. It enforces duplicate-consent protection: a
// participant that has already consented cannot consent again (spec section
// 4.D "Duplicate protection").
func (m *Mediator) SubmitConsent(ctx context.Context, tx types.CrossDomainTransaction, info types.ConsentInfo) error {
	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	default:
		return errs.New(errs.KindRateLimited, component, "mediator at max concurrent sessions")
	}

	m.mu.RLock()
	s, ok := m.sessions[tx.TransactionId]
	m.mu.RUnlock()
	if !ok {
		return errs.New(errs.KindNotFound, component, "no mediation session for transaction")
	}

	pub, ok := m.keys(info.Participant)
	if !ok {
		return errs.New(errs.KindUnauthorized, component, "unknown participant public key")
	}
	if !VerifyConsentSignature(pub, tx.TransactionId, info) {
		return errs.New(errs.KindInvalidSignature, component, "invalid signature")
	}

	now := time.Now()
	for _, cond := range info.Conditions {
		met, err := m.evaluator.Evaluate(cond, &tx, now, m.terminal)
		if err != nil {
			return errs.Wrap(errs.KindInvalidInput, component, err, "condition evaluation failed")
		}
		if !met {
			info.Consent = false
			info.Reason = "condition not met"
			break
		}
	}

	s.mu.Lock()
	if _, dup := s.data.Consents[info.Participant]; dup {
		s.mu.Unlock()
		return errs.New(errs.KindInvalidState, component, "participant has already consented")
	}
	s.data.Consents[info.Participant] = info
	required := append([]types.ParticipantId(nil), s.data.RequiredParticipants...)
	consents := make(map[types.ParticipantId]types.ConsentInfo, len(s.data.Consents))
	for k, v := range s.data.Consents {
		consents[k] = v
	}
	timeoutAt := s.data.TimeoutAt
	s.mu.Unlock()

	if s.transition(types.MediationValidating, nil) {
		m.log.Debug("mediation session validating", zap.String("tx", tx.TransactionId.String()))
	}

	result := evaluateOutcome(required, consents, now, timeoutAt)
	if result == nil {
		return m.persist(ctx, s)
	}
	if !s.transition(result.Status, result) {
		// already terminal via a concurrent submission; leave it be.
		return m.persist(ctx, s)
	}
	m.promMetrics.record(result.Status)
	m.log.Info("mediation session terminated",
		zap.String("tx", tx.TransactionId.String()),
		zap.String("status", result.Status.String()))
	return m.persist(ctx, s)
}

// evaluateOutcome decides whether a session can terminate given its current
// consents: Approved once every required participant has consented,
// Rejected as soon as any required participant withholds consent, TimedOut
// once the deadline has passed with the session still open (spec section
// 4.D "Conditional consent" and "Timeout").
func evaluateOutcome(required []types.ParticipantId, consents map[types.ParticipantId]types.ConsentInfo, now time.Time, timeoutAt time.Time) *types.MediationResult {
	var rejecting, missing []types.ParticipantId
	for _, p := range required {
		info, ok := consents[p]
		if !ok {
			missing = append(missing, p)
			continue
		}
		if !info.Consent {
			rejecting = append(rejecting, p)
		}
	}

	if len(rejecting) > 0 {
		return &types.MediationResult{
			Status:                types.MediationRejected,
			At:                    now,
			RejectingParticipants: rejecting,
		}
	}
	if len(missing) == 0 {
		return &types.MediationResult{Status: types.MediationApproved, At: now}
	}
	if now.After(timeoutAt) {
		return &types.MediationResult{
			Status:          types.MediationTimedOut,
			At:              now,
			MissingConsents: missing,
		}
	}
	return nil
}

// Cancel aborts a still-open session (spec section 4.D: Cancelled reachable
// only from WaitingForConsent).
func (m *Mediator) Cancel(ctx context.Context, id types.TransactionId, reason string) error {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return errs.New(errs.KindNotFound, component, "no mediation session for transaction")
	}
	now := time.Now()
	if !s.transition(types.MediationCancelled, &types.MediationResult{Status: types.MediationCancelled, At: now, CancelReason: reason}) {
		return errs.New(errs.KindInvalidState, component, "session cannot be cancelled from its current status")
	}
	m.promMetrics.record(types.MediationCancelled)
	return m.persist(ctx, s)
}

// AutoConsent fires the configured DelegateSigner to produce and submit a
// participant's consent on their behalf (spec section 9, resolved Open
// Question 3).
func (m *Mediator) AutoConsent(ctx context.Context, tx types.CrossDomainTransaction, participant types.ParticipantId) error {
	if m.delegate == nil {
		return errs.New(errs.KindConfig, component, "no delegate signer configured")
	}
	now := time.Now()
	msg := ConsentMessage(tx.TransactionId, participant, true, now)
	sig, err := m.delegate.Sign(participant, msg)
	if err != nil {
		return errs.Wrap(errs.KindInvalidSignature, component, err, "delegate signer failed")
	}
	return m.SubmitConsent(ctx, tx, types.ConsentInfo{
		Participant: participant,
		Consent:     true,
		Signature:   sig,
		Timestamp:   now,
	})
}

func (m *Mediator) persist(ctx context.Context, s *session) error {
	snap := s.snapshot()
	if err := m.store.PutMediationSession(ctx, snap); err != nil {
		return errs.Wrap(errs.KindStorageFailure, component, err, "persisting mediation session failed")
	}
	return nil
}

// SweepTimeouts transitions every still-open session whose deadline has
// passed to TimedOut. Intended to be polled by a background loop (spec
// section 4.D "Timeout").
func (m *Mediator) SweepTimeouts(ctx context.Context) {
	now := time.Now()
	m.mu.RLock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		snap := s.snapshot()
		if snap.Status.Terminal() || now.Before(snap.TimeoutAt) {
			continue
		}
		result := &types.MediationResult{Status: types.MediationTimedOut, At: now, MissingConsents: missingOf(snap)}
		if s.transition(types.MediationTimedOut, result) {
			m.promMetrics.record(types.MediationTimedOut)
			if err := m.persist(ctx, s); err != nil {
				m.log.Error("persisting timed-out mediation session failed", zap.Error(err))
			}
		}
	}
}

func missingOf(snap types.MediationSession) []types.ParticipantId {
	var missing []types.ParticipantId
	for _, p := range snap.RequiredParticipants {
		if _, ok := snap.Consents[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}
