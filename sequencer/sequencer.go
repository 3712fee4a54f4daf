// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sequencer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/log"
	"github.com/luxfi/synchronizer/store"
	"github.com/luxfi/synchronizer/types"
)

// Config mirrors the "Sequencer" configuration options of spec section 6.
type Config struct {
	DomainID                types.DomainId
	TransactionBatchSize    int
	BatchTimeoutMS          int64
	MaxConcurrentTransactions int
	ProcessingInterval      time.Duration // default 10ms, spec section 4.C
}

// Sequencer imposes total order on opaque transactions within a single
// domain without ever decrypting EncryptedData (spec section 4.C).
type Sequencer struct {
	cfg     Config
	store   store.Store
	calc    PriorityCalculator
	log     log.Logger
	metrics *metricsTracker
	promMetrics *promMetrics

	mu       sync.Mutex
	buckets  map[uint8][]types.PendingTransaction
	current  *batch
	batchCfg BatchConfig

	sem chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type promMetrics struct {
	sequenced prometheus.Counter
	failed    prometheus.Counter
	batches   prometheus.Counter
}

func registerPromMetrics(reg prometheus.Registerer, domain string) *promMetrics {
	m := &promMetrics{
		sequenced: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "synchronizer_sequencer_transactions_sequenced_total",
			Help:        "Total transactions assigned a sequence number.",
			ConstLabels: prometheus.Labels{"domain": domain},
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "synchronizer_sequencer_transactions_failed_total",
			Help:        "Total transactions returned to queue after a batch failure.",
			ConstLabels: prometheus.Labels{"domain": domain},
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "synchronizer_sequencer_batches_sequenced_total",
			Help:        "Total batches successfully sequenced.",
			ConstLabels: prometheus.Labels{"domain": domain},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sequenced, m.failed, m.batches)
	}
	return m
}

// New constructs a Sequencer for a single domain. reg may be nil to skip
// Prometheus registration (e.g. in tests).
func New(cfg Config, st store.Store, calc PriorityCalculator, logger log.Logger, reg prometheus.Registerer) *Sequencer {
	if cfg.ProcessingInterval <= 0 {
		cfg.ProcessingInterval = 10 * time.Millisecond
	}
	if calc == nil {
		calc = DefaultPriorityCalculator{}
	}
	batchCfg := BatchConfig{
		MaxSize:    cfg.TransactionBatchSize,
		MaxSizeKiB: cfg.TransactionBatchSize,
		MinSize:    cfg.TransactionBatchSize / 4,
		MaxTimeout: time.Duration(cfg.BatchTimeoutMS) * time.Millisecond,
	}
	return &Sequencer{
		cfg:         cfg,
		store:       st,
		calc:        calc,
		log:         logger,
		metrics:     newMetricsTracker(),
		promMetrics: registerPromMetrics(reg, string(cfg.DomainID)),
		buckets:     make(map[uint8][]types.PendingTransaction),
		current:     newBatch(),
		batchCfg:    batchCfg,
		sem:         make(chan struct{}, maxInt(cfg.MaxConcurrentTransactions, 1)),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Submit computes tx's priority and enqueues it into the matching priority
// bucket (spec section 4.C "submit"). It never inspects EncryptedData.
func (s *Sequencer) Submit(tx types.PendingTransaction) error {
	tx.ComputedPriority = s.calc.CalculatePriority(&tx, time.Now())

	s.mu.Lock()
	s.buckets[tx.ComputedPriority] = append(s.buckets[tx.ComputedPriority], tx)
	depth := s.queueDepthLocked()
	s.mu.Unlock()

	s.metrics.setQueueDepth(depth)
	return nil
}

func (s *Sequencer) queueDepthLocked() int {
	n := 0
	for _, q := range s.buckets {
		n += len(q)
	}
	return n
}

// Start launches the processing loop, which both admits transactions and
// seals batches. It runs until ctx is cancelled or Stop is called (spec
// section 9: one goroutine per background loop, no per-event fan-out).
func (s *Sequencer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.processingLoop(ctx)
}

// Stop cancels the processing loop and waits for it to exit.
func (s *Sequencer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sequencer) processingLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ProcessingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick pops the single highest-priority transaction available, admits it
// under the concurrency semaphore, and hands it to the current batch. It
// then checks whether the current batch has become Ready either by size or
// by aging past its timeout (spec section 4.C).
func (s *Sequencer) tick(ctx context.Context) {
	tx, ok := s.popHighestPriority()
	if ok {
		select {
		case s.sem <- struct{}{}:
			s.admit(ctx, tx)
		default:
			// at capacity: put it back at the front of its bucket, preserving priority
			s.mu.Lock()
			s.buckets[tx.ComputedPriority] = append([]types.PendingTransaction{tx}, s.buckets[tx.ComputedPriority]...)
			s.mu.Unlock()
		}
	}

	if s.current.readyByTimer(s.batchCfg) {
		s.sealAndSequence(ctx)
	}
}

func (s *Sequencer) admit(ctx context.Context, tx types.PendingTransaction) {
	defer func() { <-s.sem }()
	ready := s.current.add(tx, s.batchCfg)
	s.metrics.setQueueDepth(s.currentQueueDepth())
	if ready {
		s.sealAndSequence(ctx)
	}
}

func (s *Sequencer) currentQueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueDepthLocked()
}

// popHighestPriority finds the highest non-empty bucket and pops its head.
func (s *Sequencer) popHighestPriority() (types.PendingTransaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best uint8
	found := false
	for p, q := range s.buckets {
		if len(q) == 0 {
			continue
		}
		if !found || p > best {
			best = p
			found = true
		}
	}
	if !found {
		return types.PendingTransaction{}, false
	}

	q := s.buckets[best]
	tx := q[0]
	s.buckets[best] = q[1:]
	return tx, true
}

// sealAndSequence swaps in a fresh batch and sequences the sealed one via a
// single atomic store call: either every transaction in the batch gets a
// sequence number and is persisted, or none are, so a storage failure can
// never leave some of the batch sequenced while the rest return to the
// queue (spec section 4.C / 7, "StorageFailure within a batch ... no
// partial sequence numbers visible").
func (s *Sequencer) sealAndSequence(ctx context.Context) {
	sealed := s.current
	s.current = newBatch()
	if sealed.isEmpty() {
		return
	}

	start := time.Now()
	id, txs, total, createdAt := sealed.seal()
	s.metrics.setPendingBatches(1)
	defer s.metrics.setPendingBatches(0)

	batchRecord := types.TransactionBatch{
		BatchId:      id,
		Transactions: txs,
		CreatedAt:    createdAt,
		TotalBytes:   total,
		Status:       types.BatchCompleted,
	}
	sequenced, err := s.store.SequenceBatch(ctx, s.cfg.DomainID, txs, batchRecord)
	if err != nil {
		s.failBatch(txs)
		s.log.Error("sequencing batch failed", zap.Error(err), zap.String("batch", id.String()))
		return
	}

	s.metrics.recordBatch(len(sequenced), time.Since(start))
	if s.promMetrics != nil {
		s.promMetrics.sequenced.Add(float64(len(sequenced)))
		s.promMetrics.batches.Inc()
	}
}

// failBatch implements the §7 propagation policy: a storage failure within
// a batch fails the whole batch atomically and returns its transactions to
// the front of their priority buckets for retry.
func (s *Sequencer) failBatch(txs []types.PendingTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		s.buckets[tx.ComputedPriority] = append([]types.PendingTransaction{tx}, s.buckets[tx.ComputedPriority]...)
	}
	s.metrics.recordFailure(len(txs))
	if s.promMetrics != nil {
		s.promMetrics.failed.Add(float64(len(txs)))
	}
}

// Metrics returns a snapshot of the sequencer's current counters.
func (s *Sequencer) Metrics() Metrics {
	m := s.metrics.snapshot()
	m.QueueDepth = s.currentQueueDepth()
	return m
}

// sortedPriorities is a test/debug helper returning the currently
// non-empty bucket keys in descending order.
func (s *Sequencer) sortedPriorities() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]uint8, 0, len(s.buckets))
	for p, q := range s.buckets {
		if len(q) > 0 {
			keys = append(keys, p)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	return keys
}
