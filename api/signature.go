// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/luxfi/synchronizer/canon"
	"github.com/luxfi/synchronizer/types"
)

// SubmissionMessage builds the canonical message a signed submission's
// detached signature must cover (spec section 6: "tx_id || source_domain
// || target_domains_csv || hex(data) || required_confirmations").
func SubmissionMessage(txID types.TransactionId, sourceDomain types.DomainId, targetDomains []types.DomainId, data []byte, requiredConfirmations int) []byte {
	domains := make([]string, len(targetDomains))
	for i, d := range targetDomains {
		domains[i] = string(d)
	}
	csv := strings.Join(domains, ",")

	var confBuf [4]byte
	binary.BigEndian.PutUint32(confBuf[:], uint32(requiredConfirmations))

	return canon.Message(
		txID[:],
		[]byte(sourceDomain),
		[]byte(csv),
		[]byte(hex.EncodeToString(data)),
		confBuf[:],
	)
}

// VerifySubmissionSignature validates a signed submission's detached
// signature as Ed25519 against the supplied 32-byte public key and 64-byte
// signature (spec section 6: "32-byte public key, 64-byte signature verified
// strictly"); a key or signature of any other length is rejected.
func VerifySubmissionSignature(txID types.TransactionId, req SubmitSignedTransactionRequest) bool {
	if len(req.PublicKey) != ed25519.PublicKeySize || len(req.Signature) != ed25519.SignatureSize {
		return false
	}
	msg := SubmissionMessage(txID, req.SourceDomain, req.TargetDomains, req.Data, req.RequiredConfirmations)
	return ed25519.Verify(ed25519.PublicKey(req.PublicKey), msg, req.Signature)
}
