// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "time"

// Block is a linearly-ordered, finalized set of transactions.
type Block struct {
	Height       uint64 // strictly monotone
	ParentHash   [32]byte
	TxRoot       [32]byte
	StateRoot    [32]byte
	Slot         uint64
	Timestamp    time.Time
	Transactions []TransactionId
}

// Hash is a content hash of the block header; callers supply the hash
// function (kept out of this package so tests can substitute a trivial
// one without pulling in a real hash implementation for fixtures).
func (b Block) Hash(hashFn func(Block) [32]byte) [32]byte {
	return hashFn(b)
}

// BlockInfo is the persisted projection of a finalized block, named after
// original_source/global-synchronizer/src/synchronizer.rs's storage module
// (see SPEC_FULL.md section 3).
type BlockInfo struct {
	Height     uint64
	ParentHash [32]byte
	TxCount    int
	Size       int
	MerkleRoot [32]byte
	StateRoot  [32]byte
	Timestamp  time.Time
}

// FinalityCertificate attests that the block at Height with Hash is
// irreversible; a signature set from the finalizing validator quorum.
type FinalityCertificate struct {
	Height     uint64
	Hash       [32]byte
	Signatures [][]byte
}

// TxBlockTag records where a finalized transaction landed.
type TxBlockTag struct {
	Height uint64
	Hash   [32]byte
	Index  int
}
