// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/luxfi/synchronizer/errs"
	"github.com/luxfi/synchronizer/types"
)

// Memory is an in-process, map-backed Store for tests and single-process
// runs. All methods are safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	pending    map[types.DomainId]map[types.TransactionId]types.PendingTransaction
	sequenced  map[types.DomainId]map[uint64]types.SequencedTransaction
	seqCounter map[types.DomainId]uint64
	batches    map[types.BatchId]types.TransactionBatch
	mediation  map[types.TransactionId]types.MediationSession
	consensus  map[types.TransactionId]types.ConsensusSession
	active     map[types.TransactionId]ActiveTransactionRecord
	blocksByH  map[uint64]blockEntry
	blocksByX  map[[32]byte]uint64
	certs      map[uint64]types.FinalityCertificate
	tags       map[types.TransactionId]types.TxBlockTag
	latest     uint64
	hasLatest  bool
}

type blockEntry struct {
	block types.Block
	info  types.BlockInfo
}

var _ Store = (*Memory)(nil)

const memComponent = "store.Memory"

// NewMemory constructs an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		pending:    make(map[types.DomainId]map[types.TransactionId]types.PendingTransaction),
		sequenced:  make(map[types.DomainId]map[uint64]types.SequencedTransaction),
		seqCounter: make(map[types.DomainId]uint64),
		batches:    make(map[types.BatchId]types.TransactionBatch),
		mediation:  make(map[types.TransactionId]types.MediationSession),
		consensus:  make(map[types.TransactionId]types.ConsensusSession),
		active:     make(map[types.TransactionId]ActiveTransactionRecord),
		blocksByH:  make(map[uint64]blockEntry),
		blocksByX:  make(map[[32]byte]uint64),
		certs:      make(map[uint64]types.FinalityCertificate),
		tags:       make(map[types.TransactionId]types.TxBlockTag),
	}
}

func (m *Memory) PutPendingTransaction(_ context.Context, domain types.DomainId, tx types.PendingTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[domain] == nil {
		m.pending[domain] = make(map[types.TransactionId]types.PendingTransaction)
	}
	m.pending[domain][tx.TransactionId] = tx
	return nil
}

func (m *Memory) GetPendingTransaction(_ context.Context, domain types.DomainId, id types.TransactionId) (types.PendingTransaction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.pending[domain][id]
	return tx, ok, nil
}

func (m *Memory) DeletePendingTransaction(_ context.Context, domain types.DomainId, id types.TransactionId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending[domain], id)
	return nil
}

// NextSequenceNumber is the sole source of truth for per-domain sequence
// numbers; it is atomic under m.mu and is what "recovered from storage on
// restart" means for a persistent backend (spec section 4.C).
func (m *Memory) NextSequenceNumber(_ context.Context, domain types.DomainId) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.seqCounter[domain]
	m.seqCounter[domain] = n + 1
	return n, nil
}

func (m *Memory) PutSequencedTransaction(_ context.Context, domain types.DomainId, tx types.SequencedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sequenced[domain] == nil {
		m.sequenced[domain] = make(map[uint64]types.SequencedTransaction)
	}
	if _, exists := m.sequenced[domain][tx.SequenceNumber]; exists {
		return errs.New(errs.KindInvalidState, memComponent, "sequence number already assigned")
	}
	m.sequenced[domain][tx.SequenceNumber] = tx
	return nil
}

func (m *Memory) GetSequencedTransaction(_ context.Context, domain types.DomainId, seq uint64) (types.SequencedTransaction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.sequenced[domain][seq]
	return tx, ok, nil
}

// SequenceBatch allocates and persists every tx's sequence number under a
// single critical section: the counter only advances and the records only
// become visible once the whole batch is built, so a map-backed Store never
// exposes a partially-sequenced batch.
func (m *Memory) SequenceBatch(_ context.Context, domain types.DomainId, txs []types.PendingTransaction, batch types.TransactionBatch) ([]types.SequencedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sequenced[domain] == nil {
		m.sequenced[domain] = make(map[uint64]types.SequencedTransaction)
	}
	start := m.seqCounter[domain]
	now := time.Now()
	sequenced := make([]types.SequencedTransaction, len(txs))
	for i, tx := range txs {
		sequenced[i] = types.SequencedTransaction{
			PendingTransaction: tx,
			SequenceNumber:     start + uint64(i),
			BatchId:            batch.BatchId,
			SequencedAt:        now,
			Status:             types.SeqSequenced,
		}
	}
	for _, st := range sequenced {
		m.sequenced[domain][st.SequenceNumber] = st
	}
	m.seqCounter[domain] = start + uint64(len(txs))
	m.batches[batch.BatchId] = batch
	return sequenced, nil
}

func (m *Memory) PutBatch(_ context.Context, batch types.TransactionBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batch.BatchId] = batch
	return nil
}

func (m *Memory) GetBatch(_ context.Context, id types.BatchId) (types.TransactionBatch, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[id]
	return b, ok, nil
}

func (m *Memory) PutMediationSession(_ context.Context, session types.MediationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mediation[session.TransactionId] = session
	return nil
}

func (m *Memory) GetMediationSession(_ context.Context, id types.TransactionId) (types.MediationSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.mediation[id]
	return s, ok, nil
}

func (m *Memory) PutConsensusSession(_ context.Context, session types.ConsensusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consensus[session.TransactionId] = session
	return nil
}

func (m *Memory) GetConsensusSession(_ context.Context, id types.TransactionId) (types.ConsensusSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.consensus[id]
	return s, ok, nil
}

func (m *Memory) PutActiveTransaction(_ context.Context, tx ActiveTransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[tx.Tx.TransactionId] = tx
	return nil
}

func (m *Memory) GetActiveTransaction(_ context.Context, id types.TransactionId) (ActiveTransactionRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.active[id]
	return tx, ok, nil
}

func (m *Memory) ListActiveTransactions(_ context.Context) ([]ActiveTransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ActiveTransactionRecord, 0, len(m.active))
	for _, tx := range m.active {
		out = append(out, tx)
	}
	return out, nil
}

func (m *Memory) PutBlock(_ context.Context, block types.Block, info types.BlockInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocksByH[block.Height] = blockEntry{block: block, info: info}
	m.blocksByX[info.MerkleRoot] = block.Height
	if !m.hasLatest || block.Height > m.latest {
		m.latest = block.Height
		m.hasLatest = true
	}
	return nil
}

func (m *Memory) GetBlockByHeight(_ context.Context, height uint64) (types.Block, types.BlockInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.blocksByH[height]
	return e.block, e.info, ok, nil
}

func (m *Memory) GetBlockByHash(_ context.Context, hash [32]byte) (types.Block, types.BlockInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.blocksByX[hash]
	if !ok {
		return types.Block{}, types.BlockInfo{}, false, nil
	}
	e := m.blocksByH[h]
	return e.block, e.info, true, nil
}

func (m *Memory) LatestHeight(_ context.Context) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasLatest, nil
}

func (m *Memory) PutFinalityCertificate(_ context.Context, cert types.FinalityCertificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.certs[cert.Height]; exists {
		return errs.New(errs.KindInvalidState, memComponent, "finality certificate already exists at this height")
	}
	m.certs[cert.Height] = cert
	return nil
}

func (m *Memory) GetFinalityCertificate(_ context.Context, height uint64) (types.FinalityCertificate, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.certs[height]
	return c, ok, nil
}

func (m *Memory) PutTxBlockTag(_ context.Context, id types.TransactionId, tag types.TxBlockTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[id] = tag
	return nil
}

func (m *Memory) GetTxBlockTag(_ context.Context, id types.TransactionId) (types.TxBlockTag, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tags[id]
	return t, ok, nil
}

func (m *Memory) Close() error { return nil }

// beU64 is shared with the bbolt-backed store for big-endian uint64 keys.
func beU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
