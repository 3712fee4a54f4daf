// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"

	"github.com/luxfi/synchronizer/errs"
	"github.com/luxfi/synchronizer/types"
)

// Bucket names, one per entity named in spec section 6's persisted-state
// contract.
var (
	bucketPending   = []byte("pending_transactions")
	bucketSequenced = []byte("sequenced_transactions")
	bucketSeqCtr    = []byte("sequence_counters")
	bucketBatches   = []byte("batches")
	bucketMediation = []byte("mediation_sessions")
	bucketConsensus = []byte("consensus_sessions")
	bucketActive    = []byte("active_transactions")
	bucketBlocksH   = []byte("blocks_by_height")
	bucketBlocksX   = []byte("blocks_by_hash")
	bucketCerts     = []byte("finality_certificates")
	bucketTags      = []byte("tx_block_tags")

	allBuckets = [][]byte{
		bucketPending, bucketSequenced, bucketSeqCtr, bucketBatches,
		bucketMediation, bucketConsensus, bucketActive,
		bucketBlocksH, bucketBlocksX, bucketCerts, bucketTags,
	}
)

const bboltComponent = "store.Bbolt"

// Bbolt is a durable Store backed by go.etcd.io/bbolt, bucket-per-entity
// with big-endian uint64 keys for monotone sequences and heights
// (SPEC_FULL.md section 4.B).
type Bbolt struct {
	db *bbolt.DB
}

var _ Store = (*Bbolt)(nil)

// OpenBbolt opens (creating if absent) a bbolt-backed Store at path.
func OpenBbolt(path string) (*Bbolt, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageFailure, bboltComponent, err, "open database")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.KindStorageFailure, bboltComponent, err, "initialize buckets")
	}
	return &Bbolt{db: db}, nil
}

func domainKey(domain types.DomainId, suffix []byte) []byte {
	return append([]byte(domain+":"), suffix...)
}

func (b *Bbolt) put(bucket, key, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
}

func (b *Bbolt) get(bucket, key []byte) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

func encode(v any) ([]byte, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageFailure, bboltComponent, err, "encode")
	}
	return b, nil
}

func decode(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return errs.Wrap(errs.KindStorageFailure, bboltComponent, err, "decode")
	}
	return nil
}

func (b *Bbolt) PutPendingTransaction(_ context.Context, domain types.DomainId, tx types.PendingTransaction) error {
	data, err := encode(tx)
	if err != nil {
		return err
	}
	return b.put(bucketPending, domainKey(domain, tx.TransactionId[:]), data)
}

func (b *Bbolt) GetPendingTransaction(_ context.Context, domain types.DomainId, id types.TransactionId) (types.PendingTransaction, bool, error) {
	var tx types.PendingTransaction
	data, ok, err := b.get(bucketPending, domainKey(domain, id[:]))
	if err != nil || !ok {
		return tx, ok, err
	}
	return tx, true, decode(data, &tx)
}

func (b *Bbolt) DeletePendingTransaction(_ context.Context, domain types.DomainId, id types.TransactionId) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).Delete(domainKey(domain, id[:]))
	})
}

// NextSequenceNumber performs the fetch-and-increment inside a single bbolt
// write transaction, which bbolt serializes against all other writers —
// this is the atomicity spec section 4.C requires.
func (b *Bbolt) NextSequenceNumber(_ context.Context, domain types.DomainId) (uint64, error) {
	var next uint64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketSeqCtr)
		key := []byte(domain)
		cur := bkt.Get(key)
		var n uint64
		if cur != nil {
			n = beU64Decode(cur)
		}
		next = n
		return bkt.Put(key, beU64(n+1))
	})
	if err != nil {
		return 0, errs.Wrap(errs.KindStorageFailure, bboltComponent, err, "next sequence number")
	}
	return next, nil
}

func beU64Decode(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func (b *Bbolt) PutSequencedTransaction(_ context.Context, domain types.DomainId, tx types.SequencedTransaction) error {
	data, err := encode(tx)
	if err != nil {
		return err
	}
	return b.put(bucketSequenced, domainKey(domain, beU64(tx.SequenceNumber)), data)
}

func (b *Bbolt) GetSequencedTransaction(_ context.Context, domain types.DomainId, seq uint64) (types.SequencedTransaction, bool, error) {
	var tx types.SequencedTransaction
	data, ok, err := b.get(bucketSequenced, domainKey(domain, beU64(seq)))
	if err != nil || !ok {
		return tx, ok, err
	}
	return tx, true, decode(data, &tx)
}

// SequenceBatch allocates contiguous sequence numbers and writes every
// SequencedTransaction plus batch inside one bbolt write transaction: if
// encoding or any Put fails partway through, bbolt discards the whole
// transaction, so the counter never advances and no record becomes visible
// (spec section 7, "StorageFailure within a batch ... no partial sequence
// numbers visible").
func (b *Bbolt) SequenceBatch(_ context.Context, domain types.DomainId, txs []types.PendingTransaction, batch types.TransactionBatch) ([]types.SequencedTransaction, error) {
	sequenced := make([]types.SequencedTransaction, len(txs))
	err := b.db.Update(func(tx *bbolt.Tx) error {
		ctrBkt := tx.Bucket(bucketSeqCtr)
		ctrKey := []byte(domain)
		var start uint64
		if cur := ctrBkt.Get(ctrKey); cur != nil {
			start = beU64Decode(cur)
		}

		seqBkt := tx.Bucket(bucketSequenced)
		now := time.Now()
		for i, pending := range txs {
			st := types.SequencedTransaction{
				PendingTransaction: pending,
				SequenceNumber:     start + uint64(i),
				BatchId:            batch.BatchId,
				SequencedAt:        now,
				Status:             types.SeqSequenced,
			}
			data, err := encode(st)
			if err != nil {
				return err
			}
			if err := seqBkt.Put(domainKey(domain, beU64(st.SequenceNumber)), data); err != nil {
				return err
			}
			sequenced[i] = st
		}

		batchData, err := encode(batch)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketBatches).Put(batch.BatchId[:], batchData); err != nil {
			return err
		}

		return ctrBkt.Put(ctrKey, beU64(start+uint64(len(txs))))
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageFailure, bboltComponent, err, "sequence batch")
	}
	return sequenced, nil
}

func (b *Bbolt) PutBatch(_ context.Context, batch types.TransactionBatch) error {
	data, err := encode(batch)
	if err != nil {
		return err
	}
	return b.put(bucketBatches, batch.BatchId[:], data)
}

func (b *Bbolt) GetBatch(_ context.Context, id types.BatchId) (types.TransactionBatch, bool, error) {
	var batch types.TransactionBatch
	data, ok, err := b.get(bucketBatches, id[:])
	if err != nil || !ok {
		return batch, ok, err
	}
	return batch, true, decode(data, &batch)
}

func (b *Bbolt) PutMediationSession(_ context.Context, session types.MediationSession) error {
	data, err := encode(session)
	if err != nil {
		return err
	}
	return b.put(bucketMediation, session.TransactionId[:], data)
}

func (b *Bbolt) GetMediationSession(_ context.Context, id types.TransactionId) (types.MediationSession, bool, error) {
	var s types.MediationSession
	data, ok, err := b.get(bucketMediation, id[:])
	if err != nil || !ok {
		return s, ok, err
	}
	return s, true, decode(data, &s)
}

func (b *Bbolt) PutConsensusSession(_ context.Context, session types.ConsensusSession) error {
	data, err := encode(session)
	if err != nil {
		return err
	}
	return b.put(bucketConsensus, session.TransactionId[:], data)
}

func (b *Bbolt) GetConsensusSession(_ context.Context, id types.TransactionId) (types.ConsensusSession, bool, error) {
	var s types.ConsensusSession
	data, ok, err := b.get(bucketConsensus, id[:])
	if err != nil || !ok {
		return s, ok, err
	}
	return s, true, decode(data, &s)
}

func (b *Bbolt) PutActiveTransaction(_ context.Context, tx ActiveTransactionRecord) error {
	data, err := encode(tx)
	if err != nil {
		return err
	}
	return b.put(bucketActive, tx.Tx.TransactionId[:], data)
}

func (b *Bbolt) GetActiveTransaction(_ context.Context, id types.TransactionId) (ActiveTransactionRecord, bool, error) {
	var tx ActiveTransactionRecord
	data, ok, err := b.get(bucketActive, id[:])
	if err != nil || !ok {
		return tx, ok, err
	}
	return tx, true, decode(data, &tx)
}

func (b *Bbolt) ListActiveTransactions(_ context.Context) ([]ActiveTransactionRecord, error) {
	var out []ActiveTransactionRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketActive).ForEach(func(_, v []byte) error {
			var rec ActiveTransactionRecord
			if err := decode(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageFailure, bboltComponent, err, "list active transactions")
	}
	return out, nil
}

type blockRecord struct {
	Block types.Block
	Info  types.BlockInfo
}

func (b *Bbolt) PutBlock(_ context.Context, block types.Block, info types.BlockInfo) error {
	data, err := encode(blockRecord{Block: block, Info: info})
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketBlocksH).Put(beU64(block.Height), data); err != nil {
			return err
		}
		return tx.Bucket(bucketBlocksX).Put(info.MerkleRoot[:], beU64(block.Height))
	})
}

func (b *Bbolt) GetBlockByHeight(_ context.Context, height uint64) (types.Block, types.BlockInfo, bool, error) {
	data, ok, err := b.get(bucketBlocksH, beU64(height))
	if err != nil || !ok {
		return types.Block{}, types.BlockInfo{}, ok, err
	}
	var rec blockRecord
	if err := decode(data, &rec); err != nil {
		return types.Block{}, types.BlockInfo{}, false, err
	}
	return rec.Block, rec.Info, true, nil
}

func (b *Bbolt) GetBlockByHash(ctx context.Context, hash [32]byte) (types.Block, types.BlockInfo, bool, error) {
	heightBytes, ok, err := b.get(bucketBlocksX, hash[:])
	if err != nil || !ok {
		return types.Block{}, types.BlockInfo{}, ok, err
	}
	return b.GetBlockByHeight(ctx, beU64Decode(heightBytes))
}

func (b *Bbolt) LatestHeight(_ context.Context) (uint64, bool, error) {
	var height uint64
	var ok bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketBlocksH).Cursor()
		k, _ := c.Last()
		if k != nil {
			height = beU64Decode(k)
			ok = true
		}
		return nil
	})
	return height, ok, err
}

func (b *Bbolt) PutFinalityCertificate(_ context.Context, cert types.FinalityCertificate) error {
	data, err := encode(cert)
	if err != nil {
		return err
	}
	existing, ok, err := b.get(bucketCerts, beU64(cert.Height))
	if err != nil {
		return err
	}
	if ok && len(existing) > 0 {
		return errs.New(errs.KindInvalidState, bboltComponent, "finality certificate already exists at this height")
	}
	return b.put(bucketCerts, beU64(cert.Height), data)
}

func (b *Bbolt) GetFinalityCertificate(_ context.Context, height uint64) (types.FinalityCertificate, bool, error) {
	var cert types.FinalityCertificate
	data, ok, err := b.get(bucketCerts, beU64(height))
	if err != nil || !ok {
		return cert, ok, err
	}
	return cert, true, decode(data, &cert)
}

func (b *Bbolt) PutTxBlockTag(_ context.Context, id types.TransactionId, tag types.TxBlockTag) error {
	data, err := encode(tag)
	if err != nil {
		return err
	}
	return b.put(bucketTags, id[:], data)
}

func (b *Bbolt) GetTxBlockTag(_ context.Context, id types.TransactionId) (types.TxBlockTag, bool, error) {
	var tag types.TxBlockTag
	data, ok, err := b.get(bucketTags, id[:])
	if err != nil || !ok {
		return tag, ok, err
	}
	return tag, true, decode(data, &tag)
}

func (b *Bbolt) Close() error {
	if err := b.db.Close(); err != nil {
		return errs.Wrap(errs.KindStorageFailure, bboltComponent, err, "close database")
	}
	return nil
}
