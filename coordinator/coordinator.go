// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

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

// Config mirrors the "Cross-domain" configuration options of spec section 6.
type Config struct {
	TransactionTimeoutMS      int64
	MaxConcurrentTransactions int
	Retry                     RetryConfig
	SettlementMode            SettlementMode
	Settlement                BatchSettlementConfig
}

// ActiveTransaction is the coordinator's in-memory record of a
// cross-domain transaction's progress, mutex-guarded and persisted via
// store.ActiveTransactionRecord on every state change (spec section 4.F).
type ActiveTransaction struct {
	mu   sync.Mutex
	data store.ActiveTransactionRecord
}

func newActiveTransaction(tx types.CrossDomainTransaction, now time.Time) *ActiveTransaction {
	return &ActiveTransaction{data: store.ActiveTransactionRecord{
		Tx:                   tx,
		Status:               types.StatusReceived,
		ParticipatingDomains: tx.TargetDomains,
		SettlementStatus:     types.SettlementNotStarted,
		Confirmations:        make(map[types.DomainId]bool),
		CreatedAt:            now,
		UpdatedAt:            now,
		TimeoutAt:            tx.TimeoutAt,
	}}
}

func (a *ActiveTransaction) snapshot() store.ActiveTransactionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := a.data
	cp.Confirmations = make(map[types.DomainId]bool, len(a.data.Confirmations))
	for k, v := range a.data.Confirmations {
		cp.Confirmations[k] = v
	}
	cp.ParticipatingDomains = append([]types.DomainId(nil), a.data.ParticipatingDomains...)
	cp.CommittedDomains = append([]types.DomainId(nil), a.data.CommittedDomains...)
	return cp
}

// transition moves the transaction to a new status if the step is valid
// per types.ValidTransition, returning whether it took effect.
func (a *ActiveTransaction) transition(to types.TransactionStatus, now time.Time, reason string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !types.ValidTransition(a.data.Status, to) {
		return false
	}
	a.data.Status = to
	a.data.UpdatedAt = now
	if to == types.StatusFailed || to == types.StatusTimedOut {
		a.data.FailureReason = reason
	}
	return true
}

// Coordinator tracks every in-flight cross-domain transaction: dependency
// gating at submission, consensus-result handling, settlement dispatch
// with retry/backoff, and confirmation counting toward Finalized.
type Coordinator struct {
	cfg     Config
	store   store.Store
	log     log.Logger
	engine  SettlementEngine
	metrics *metricsTracker
	prom    *promMetrics

	mu   sync.RWMutex
	txs  map[types.TransactionId]*ActiveTransaction
	deps map[types.TransactionId][]types.TransactionId

	batchMu     sync.Mutex
	pending     map[types.DomainId][]types.TransactionId
	batchOldest map[types.DomainId]time.Time

	sem chan struct{}
}

// New constructs a Coordinator. reg may be nil to skip Prometheus
// registration (e.g. in tests); engine may be nil if settlement is driven
// externally (tests exercising only the state machine).
func New(cfg Config, st store.Store, logger log.Logger, engine SettlementEngine, reg prometheus.Registerer) *Coordinator {
	if cfg.MaxConcurrentTransactions <= 0 {
		cfg.MaxConcurrentTransactions = 64
	}
	return &Coordinator{
		cfg:         cfg,
		store:       st,
		log:         logger,
		engine:      engine,
		metrics:     newMetricsTracker(),
		prom:        registerPromMetrics(reg),
		txs:         make(map[types.TransactionId]*ActiveTransaction),
		deps:        make(map[types.TransactionId][]types.TransactionId),
		pending:     make(map[types.DomainId][]types.TransactionId),
		batchOldest: make(map[types.DomainId]time.Time),
		sem:         make(chan struct{}, cfg.MaxConcurrentTransactions),
	}
}

const component = "coordinator.Coordinator"

// Submit registers tx for coordination, rejecting it outright if its
// declared dependencies would introduce a cycle (spec section 4.F
// "Cycles are rejected at submission"). The transaction starts in
// Received and stays there until ReadyToProceed reports it clear.
func (c *Coordinator) Submit(ctx context.Context, tx types.CrossDomainTransaction) error {
	if tx.TimeoutAt.IsZero() && c.cfg.TransactionTimeoutMS > 0 {
		tx.TimeoutAt = tx.CreatedAt.Add(time.Duration(c.cfg.TransactionTimeoutMS) * time.Millisecond)
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if DetectCycle(tx.TransactionId, tx.Dependencies, c.deps) {
		c.mu.Unlock()
		return errs.New(errs.KindInvalidState, component, "dependency cycle rejected at submission")
	}
	if _, exists := c.txs[tx.TransactionId]; exists {
		c.mu.Unlock()
		return errs.New(errs.KindInvalidInput, component, "transaction already submitted")
	}
	now := time.Now()
	at := newActiveTransaction(tx, now)
	c.txs[tx.TransactionId] = at
	c.deps[tx.TransactionId] = tx.Dependencies
	c.mu.Unlock()

	c.metrics.recordSubmitted()
	if c.prom != nil {
		c.prom.submitted.Inc()
	}
	return c.persist(ctx, at)
}

// Get returns the current durable projection of a tracked transaction.
func (c *Coordinator) Get(txID types.TransactionId) (store.ActiveTransactionRecord, bool) {
	c.mu.RLock()
	at, ok := c.txs[txID]
	c.mu.RUnlock()
	if !ok {
		return store.ActiveTransactionRecord{}, false
	}
	return at.snapshot(), true
}

// TerminalApprovedView adapts the coordinator's own state into the
// TerminalApproved shape that dependenciesSatisfied consumes, as used by
// ReadyToProceed. The mediator's DependsOn condition takes a
// TerminalStateView instead (spec section 4.D, "passed in, not imported").
func (c *Coordinator) TerminalApprovedView(txID types.TransactionId) (bool, bool) {
	rec, ok := c.Get(txID)
	if !ok {
		return false, false
	}
	return rec.Status == types.StatusFinalized, true
}

// ReadyToProceed reports whether txID's declared dependencies have all
// reached Finalized, i.e. it may leave Received (spec section 4.F
// "Dependencies").
func (c *Coordinator) ReadyToProceed(txID types.TransactionId) bool {
	c.mu.RLock()
	deps := c.deps[txID]
	c.mu.RUnlock()
	return dependenciesSatisfied(deps, c.TerminalApprovedView)
}

// BeginConsensus moves a Received, dependency-clear transaction into
// ConsensusInProgress. It is a no-op returning false if dependencies are
// not yet satisfied or the transition is otherwise invalid.
func (c *Coordinator) BeginConsensus(ctx context.Context, txID types.TransactionId) (bool, error) {
	if !c.ReadyToProceed(txID) {
		return false, nil
	}
	c.mu.RLock()
	at, ok := c.txs[txID]
	c.mu.RUnlock()
	if !ok {
		return false, errs.New(errs.KindNotFound, component, "unknown transaction")
	}
	if !at.transition(types.StatusConsensusInProgress, time.Now(), "") {
		return false, nil
	}
	return true, c.persist(ctx, at)
}

// HandleConsensusResult applies a completed consensus session's outcome
// (spec section 4.G "a consensus result updates the ActiveTransaction and
// triggers settlement"). Approved moves to ConsensusReached and, if engine
// is configured, immediately drives settlement in Immediate mode; any
// other outcome fails the transaction.
func (c *Coordinator) HandleConsensusResult(ctx context.Context, txID types.TransactionId, result types.ConsensusResult) error {
	c.mu.RLock()
	at, ok := c.txs[txID]
	c.mu.RUnlock()
	if !ok {
		return errs.New(errs.KindNotFound, component, "unknown transaction")
	}

	now := time.Now()
	if result.Kind != types.ResultApproved {
		if at.transition(types.StatusFailed, now, result.Reason) {
			c.metrics.recordFailed()
			if c.prom != nil {
				c.prom.failed.Inc()
			}
		}
		return c.persist(ctx, at)
	}

	if !at.transition(types.StatusConsensusReached, now, "") {
		return errs.New(errs.KindInvalidState, component, "consensus result on non-InProgress transaction")
	}
	if err := c.persist(ctx, at); err != nil {
		return err
	}
	if c.engine == nil {
		return nil
	}
	return c.dispatchSettlement(ctx, txID)
}

// dispatchSettlement routes a ConsensusReached transaction to settlement
// per the configured SettlementMode (spec section 4.F "Settlement modes").
// Immediate settles inline; Batched enqueues per participating domain and
// fires once a domain accumulates BatchSize entries (age-based firing is
// BatchTick's job); Scheduled and OnDemand do nothing here and rely on
// ScheduledTick / an explicit Settle call respectively.
func (c *Coordinator) dispatchSettlement(ctx context.Context, txID types.TransactionId) error {
	switch c.cfg.SettlementMode {
	case SettlementImmediate:
		return c.Settle(ctx, txID)
	case SettlementBatched:
		return c.enqueueBatch(ctx, txID)
	default: // Scheduled, OnDemand
		return nil
	}
}

// enqueueBatch records txID against each of its participating domains and
// triggers settlement for any domain whose pending count reaches
// BatchSize.
func (c *Coordinator) enqueueBatch(ctx context.Context, txID types.TransactionId) error {
	c.mu.RLock()
	at, ok := c.txs[txID]
	c.mu.RUnlock()
	if !ok {
		return errs.New(errs.KindNotFound, component, "unknown transaction")
	}
	domains := at.snapshot().ParticipatingDomains

	var ready []types.TransactionId
	c.batchMu.Lock()
	for _, d := range domains {
		if _, exists := c.batchOldest[d]; !exists {
			c.batchOldest[d] = time.Now()
		}
		c.pending[d] = append(c.pending[d], txID)
		if len(c.pending[d]) >= c.cfg.Settlement.BatchSize {
			ready = append(ready, c.pending[d]...)
			delete(c.pending, d)
			delete(c.batchOldest, d)
		}
	}
	c.batchMu.Unlock()

	return c.settleAll(ctx, dedupeTx(ready))
}

// BatchTick settles every domain's pending batch that has aged past
// BatchTimeout, regardless of whether BatchSize was reached (spec section
// 4.F "Batched (per-domain every N txs or T ms)").
func (c *Coordinator) BatchTick(ctx context.Context) error {
	now := time.Now()
	maxAge := time.Duration(c.cfg.Settlement.BatchTimeout) * time.Millisecond

	var ready []types.TransactionId
	c.batchMu.Lock()
	for d, oldest := range c.batchOldest {
		if now.Sub(oldest) >= maxAge {
			ready = append(ready, c.pending[d]...)
			delete(c.pending, d)
			delete(c.batchOldest, d)
		}
	}
	c.batchMu.Unlock()

	return c.settleAll(ctx, dedupeTx(ready))
}

// ScheduledTick settles every ConsensusReached transaction, for
// SettlementMode Scheduled's periodic trigger.
func (c *Coordinator) ScheduledTick(ctx context.Context) error {
	c.mu.RLock()
	var ready []types.TransactionId
	for id, at := range c.txs {
		if at.snapshot().Status == types.StatusConsensusReached {
			ready = append(ready, id)
		}
	}
	c.mu.RUnlock()
	return c.settleAll(ctx, ready)
}

func (c *Coordinator) settleAll(ctx context.Context, ids []types.TransactionId) error {
	var firstErr error
	for _, id := range ids {
		if err := c.Settle(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func dedupeTx(ids []types.TransactionId) []types.TransactionId {
	seen := make(map[types.TransactionId]bool, len(ids))
	out := make([]types.TransactionId, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Settle drives settlement for txID against every participating domain,
// applying the retry/backoff policy on transient failure and Atomic
// rollback semantics when configured (spec section 4.F "Retries" /
// "Settlement modes").
func (c *Coordinator) Settle(ctx context.Context, txID types.TransactionId) error {
	c.mu.RLock()
	at, ok := c.txs[txID]
	c.mu.RUnlock()
	if !ok {
		return errs.New(errs.KindNotFound, component, "unknown transaction")
	}
	if c.engine == nil {
		return errs.New(errs.KindConfig, component, "no settlement engine configured")
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	now := time.Now()
	at.transition(types.StatusSettlementInProgress, now, "")
	at.mu.Lock()
	at.data.SettlementStatus = types.SettlementInProgress
	domains := append([]types.DomainId(nil), at.data.ParticipatingDomains...)
	tx := at.data.Tx
	retry := at.data.RetryCount
	at.mu.Unlock()
	_ = c.persist(ctx, at)

	committed, failedDomain, err := settleDomains(ctx, c.engine, tx, domains, c.cfg.Settlement.Atomic)
	if err != nil {
		at.mu.Lock()
		at.data.CommittedDomains = committed
		if c.cfg.Settlement.Atomic {
			at.data.SettlementStatus = types.SettlementRolledBack
		} else {
			at.data.SettlementStatus = types.SettlementFailed
		}
		at.mu.Unlock()

		attemptsMade := retry + 1
		if c.cfg.Retry.exhausted(attemptsMade) {
			at.mu.Lock()
			at.data.RetryCount = attemptsMade
			at.mu.Unlock()
			if at.transition(types.StatusFailed, time.Now(), "settlement failed permanently for domain "+string(failedDomain)+": "+err.Error()) {
				c.metrics.recordFailed()
				if c.prom != nil {
					c.prom.failed.Inc()
				}
			}
			return c.persist(ctx, at)
		}

		at.mu.Lock()
		at.data.RetryCount = attemptsMade
		at.data.NextRetryAt = time.Now().Add(c.cfg.Retry.nextDelay(retry))
		at.mu.Unlock()
		c.log.Warn("settlement failed, scheduling retry",
			zap.String("tx", txID.String()), zap.String("domain", string(failedDomain)), zap.Error(err))
		return c.persist(ctx, at)
	}

	at.mu.Lock()
	at.data.CommittedDomains = committed
	at.data.SettlementStatus = types.SettlementCompleted
	for _, d := range committed {
		at.data.Confirmations[d] = true
	}
	confirmed := len(at.data.Confirmations)
	required := tx.RequiredConfirmations
	wasFinalized := at.data.Status == types.StatusFinalized
	at.mu.Unlock()

	if confirmed >= required && !wasFinalized && at.transition(types.StatusFinalized, time.Now(), "") {
		c.metrics.recordFinalized()
		if c.prom != nil {
			c.prom.finalized.Inc()
		}
	}
	return c.persist(ctx, at)
}

// Acknowledge records a single domain's settlement confirmation out of
// band (used by Batched/Scheduled/OnDemand modes, where settlement is
// driven externally rather than inline in HandleConsensusResult), and
// finalizes the transaction once `required_confirmations` distinct
// domains have acked (spec section 4.F "Confirmation counting").
func (c *Coordinator) Acknowledge(ctx context.Context, txID types.TransactionId, domain types.DomainId) error {
	c.mu.RLock()
	at, ok := c.txs[txID]
	c.mu.RUnlock()
	if !ok {
		return errs.New(errs.KindNotFound, component, "unknown transaction")
	}

	at.mu.Lock()
	at.data.Confirmations[domain] = true
	confirmed := len(at.data.Confirmations)
	required := at.data.Tx.RequiredConfirmations
	wasFinalized := at.data.Status == types.StatusFinalized
	at.mu.Unlock()

	if confirmed >= required && !wasFinalized && at.transition(types.StatusFinalized, time.Now(), "") {
		c.metrics.recordFinalized()
		if c.prom != nil {
			c.prom.finalized.Inc()
		}
	}
	return c.persist(ctx, at)
}

// CheckTimeouts fails every tracked, non-terminal transaction whose
// TimeoutAt has passed (spec section 4.F "Failures: timeout at timeout_at
// drives status to TimedOut").
func (c *Coordinator) CheckTimeouts(ctx context.Context) {
	now := time.Now()
	c.mu.RLock()
	all := make([]*ActiveTransaction, 0, len(c.txs))
	for _, at := range c.txs {
		all = append(all, at)
	}
	c.mu.RUnlock()

	for _, at := range all {
		snap := at.snapshot()
		if snap.Status == types.StatusFinalized || snap.Status == types.StatusFailed || snap.Status == types.StatusTimedOut {
			continue
		}
		if now.After(snap.TimeoutAt) {
			if at.transition(types.StatusTimedOut, now, "timeout") {
				c.metrics.recordFailed()
				if c.prom != nil {
					c.prom.failed.Inc()
				}
				_ = c.persist(ctx, at)
			}
		}
	}
}

// CheckRetries settles every transaction whose NextRetryAt has elapsed
// (spec section 4.F "Retries").
func (c *Coordinator) CheckRetries(ctx context.Context) {
	now := time.Now()
	c.mu.RLock()
	ids := make([]types.TransactionId, 0, len(c.txs))
	for id, at := range c.txs {
		snap := at.snapshot()
		if snap.Status == types.StatusSettlementInProgress && !snap.NextRetryAt.IsZero() && now.After(snap.NextRetryAt) {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()

	for _, id := range ids {
		_ = c.Settle(ctx, id)
	}
}

func (c *Coordinator) persist(ctx context.Context, at *ActiveTransaction) error {
	if err := c.store.PutActiveTransaction(ctx, at.snapshot()); err != nil {
		return errs.Wrap(errs.KindStorageFailure, component, err, "persist active transaction")
	}
	return nil
}

// Metrics returns a snapshot of the coordinator's current counters.
func (c *Coordinator) Metrics() Metrics {
	return c.metrics.snapshot()
}
