// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/luxfi/ids"
	"go.uber.org/zap"

	"github.com/luxfi/synchronizer/canon"
	"github.com/luxfi/synchronizer/errs"
	"github.com/luxfi/synchronizer/transport"
	"github.com/luxfi/synchronizer/types"
)

// DefaultHashFn hashes a block's header fields with the module's shared
// canonical-encoding helper (canon.Message), the same length-prefixed
// framing used for consent and vote signatures.
func DefaultHashFn(b types.Block) [32]byte {
	var height, slot [8]byte
	binary.BigEndian.PutUint64(height[:], b.Height)
	binary.BigEndian.PutUint64(slot[:], b.Slot)
	msg := canon.Message(height[:], slot[:], b.ParentHash[:], b.TxRoot[:], b.StateRoot[:])
	return sha256.Sum256(msg)
}

// pendingBlockTimeout is how long a proposed block waits for votes before
// it is dropped (original_source/global-synchronizer/src/synchronizer.rs's
// "30 second timeout").
const pendingBlockTimeout = 30 * time.Second

// pendingBlock tracks a proposed block's vote collection, keyed by its
// content hash.
type pendingBlock struct {
	block         types.Block
	hash          [32]byte
	votes         map[ids.NodeID][]byte
	requiredVotes int
	createdAt     time.Time
	timeoutAt     time.Time
}

// proposeBlock registers a candidate block for vote collection (spec
// section 4.G "handle block proposal"). It casts no vote itself; every vote,
// this node's included, arrives through voteBlock. requiredVotes is
// the size of the quorum the block must collect before block finalization
// fires; this repo computes it from the validator registry's active set
// size rather than a separately-configured threshold, since no additional
// config option exists for it in spec section 6.
func (o *Orchestrator) proposeBlock(block types.Block, hash func(types.Block) [32]byte) {
	h := block.Hash(hash)
	required := requiredBlockVotes(o.validators.ActiveSet())

	now := time.Now()
	o.blocksMu.Lock()
	o.pendingBlocks[h] = &pendingBlock{
		block:         block,
		hash:          h,
		votes:         make(map[ids.NodeID][]byte),
		requiredVotes: required,
		createdAt:     now,
		timeoutAt:     now.Add(pendingBlockTimeout),
	}
	o.blocksMu.Unlock()

	o.log.Debug("block proposed", zap.Uint64("height", block.Height), zap.Int("required_votes", required))
}

// requiredBlockVotes is a simple majority (more than half) of the active
// validator set, matching the teacher's jail/quorum texture of "more than
// half" used elsewhere for Byzantine tolerance thresholds.
func requiredBlockVotes(active []ids.NodeID) int {
	return len(active)/2 + 1
}

// voteBlock records nodeID's vote for the block with the given hash. sig is
// the validator's signature over the block hash, carried forward into the
// block's FinalityCertificate once enough votes accumulate; it may be nil
// for callers (tests, local proposers) that don't exercise signing.
func (o *Orchestrator) voteBlock(hash [32]byte, nodeID ids.NodeID, approve bool, sig []byte) error {
	o.blocksMu.Lock()
	defer o.blocksMu.Unlock()
	pb, ok := o.pendingBlocks[hash]
	if !ok {
		return errs.New(errs.KindNotFound, componentName, "no pending block for hash")
	}
	if approve {
		pb.votes[nodeID] = sig
	}
	return nil
}

// blockProcessorTick scans pending blocks for those with enough votes to
// finalize or old enough to discard (spec section 4.G "block processor",
// 1 second interval).
func (o *Orchestrator) blockProcessorTick() {
	now := time.Now()
	var finalized []finalizedBlock
	var timedOut int

	o.blocksMu.Lock()
	for h, pb := range o.pendingBlocks {
		switch {
		case len(pb.votes) >= pb.requiredVotes:
			sigs := make([][]byte, 0, len(pb.votes))
			for _, sig := range pb.votes {
				if sig != nil {
					sigs = append(sigs, sig)
				}
			}
			finalized = append(finalized, finalizedBlock{block: pb.block, hash: h, signatures: sigs})
			delete(o.pendingBlocks, h)
		case now.After(pb.timeoutAt):
			timedOut++
			delete(o.pendingBlocks, h)
		}
	}
	o.blocksMu.Unlock()

	for _, f := range finalized {
		o.emit(Event{Kind: EventBlockFinalized, Payload: BlockFinalizedPayload{Block: f.block, Hash: f.hash, Signatures: f.signatures}})
	}
	if timedOut > 0 {
		o.log.Warn("pending blocks timed out", zap.Int("count", timedOut))
	}
}

type finalizedBlock struct {
	block      types.Block
	hash       [32]byte
	signatures [][]byte
}

// finalizeBlock persists a finalized block, its finality certificate, and
// its per-transaction block tags, and updates metrics (spec section 4.G
// "handle block finalization").
func (o *Orchestrator) finalizeBlock(ctx context.Context, block types.Block, hash [32]byte, signatures [][]byte) {
	info := types.BlockInfo{
		Height:     block.Height,
		ParentHash: block.ParentHash,
		TxCount:    len(block.Transactions),
		Size:       len(block.Transactions) * 16,
		MerkleRoot: block.TxRoot,
		StateRoot:  block.StateRoot,
		Timestamp:  block.Timestamp,
	}
	if err := o.store.PutBlock(ctx, block, info); err != nil {
		o.log.Error("failed to store finalized block", zap.Error(err), zap.Uint64("height", block.Height))
	}

	cert := types.FinalityCertificate{Height: block.Height, Hash: hash, Signatures: signatures}
	if err := o.store.PutFinalityCertificate(ctx, cert); err != nil {
		o.log.Error("failed to store finality certificate", zap.Error(err), zap.Uint64("height", block.Height))
	}

	for idx, txID := range block.Transactions {
		tag := types.TxBlockTag{Height: block.Height, Hash: hash, Index: idx}
		if err := o.store.PutTxBlockTag(ctx, txID, tag); err != nil {
			o.log.Error("failed to tag transaction with block", zap.Error(err), zap.String("tx", txID.String()))
		}
	}

	o.metrics.recordBlockFinalized(block.Height)
	if o.prom != nil {
		o.prom.blocksFinalized.Inc()
		o.prom.blockHeight.Set(float64(block.Height))
	}

	var eventID [16]byte
	copy(eventID[:], hash[:])
	o.publish(transport.TopicEvents, transport.KindDomainEvent, transport.DomainEventPayload{
		EventId: eventID,
		Type:    "BlockFinalized",
		Data:    hash[:],
	})
}
