// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mediator collects signed multi-party consent prior to consensus
// (spec section 4.D), grounded on
// original_source/sync-domain/src/mediator.rs.
package mediator

import (
	"encoding/binary"
	"time"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/synchronizer/canon"
	"github.com/luxfi/synchronizer/types"
)

// ConsentMessage builds the canonical message a consent signature must
// cover. Spec section 3's ConsentInfo invariant names
// "tx_id || participant_id || consent || timestamp"; section 4.D's prose
// drops tx_id. Section 3 is the authoritative data-model invariant, so
// tx_id is included here (see DESIGN.md).
func ConsentMessage(txID types.TransactionId, participant types.ParticipantId, consent bool, timestamp time.Time) []byte {
	var consentByte [1]byte
	if consent {
		consentByte[0] = 1
	}
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp.UnixNano()))
	return canon.Message(txID[:], []byte(participant), consentByte[:], tsBuf[:])
}

// VerifyConsentSignature validates a ConsentInfo's signature against the
// participant's registered public key, per spec section 4.D's "Signature
// contract".
func VerifyConsentSignature(publicKey []byte, txID types.TransactionId, info types.ConsentInfo) bool {
	pk, err := bls.PublicKeyFromBytes(publicKey)
	if err != nil {
		return false
	}
	sig, err := bls.SignatureFromBytes(info.Signature)
	if err != nil {
		return false
	}
	msg := ConsentMessage(txID, info.Participant, info.Consent, info.Timestamp)
	return bls.Verify(pk, sig, msg)
}
