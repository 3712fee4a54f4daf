// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api holds the request/response DTOs and the thin Handlers
// interface (implemented by NewHandlers over the orchestrator, store,
// validator registry and consensus manager) for spec section 6's
// conceptual control-API surface. The HTTP transport itself (routing, auth
// middleware, rate limiting) is out of scope (spec section 1); this
// package is what a net/http or grpc front end wires against.
package api

import (
	"time"

	"github.com/luxfi/synchronizer/types"
)

// SubmitTransactionRequest is the body of `POST /transactions`.
type SubmitTransactionRequest struct {
	SourceDomain          types.DomainId
	TargetDomains         []types.DomainId
	TransactionType       types.TransactionType
	Data                  []byte
	RequiredConfirmations int
	Dependencies          []types.TransactionId
	TimeoutAt             time.Time
	Metadata              map[string]string
}

// SubmitSignedTransactionRequest wraps SubmitTransactionRequest with a
// detached signature over SubmissionMessage, per spec section 6's
// `POST /transactions/signed`.
type SubmitSignedTransactionRequest struct {
	SubmitTransactionRequest
	PublicKey []byte // 32 bytes
	Signature []byte // 64 bytes
}

// SubmitTransactionResponse is returned by both submission endpoints on
// success.
type SubmitTransactionResponse struct {
	Status        string
	TransactionId types.TransactionId
}

// RejectedResponse is returned by both submission endpoints when
// validation fails, naming the reason (spec section 6: "empty targets,
// zero/oversize required_confirmations, payload >1 MiB").
type RejectedResponse struct {
	Status string
	Reason string
}

// TransactionStatusResponse answers `GET /transactions/{id}/status`.
type TransactionStatusResponse struct {
	Status types.TransactionStatus
}

// TransactionDetailsResponse answers `GET /transactions/{id}/details`:
// the canonical payload, current status, and block placement if
// finalized.
type TransactionDetailsResponse struct {
	Transaction types.CrossDomainTransaction
	Status      types.TransactionStatus
	BlockTag    *types.TxBlockTag // nil until the transaction lands in a block
}

// BlockResponse answers `GET /blocks/latest` and `GET /blocks/{height}`.
type BlockResponse struct {
	Block types.Block
	Info  types.BlockInfo
}

// BlockTransactionsResponse answers `GET /blocks/{height}/transactions`.
type BlockTransactionsResponse struct {
	Transactions []types.TransactionId
}

// MempoolResponse answers `GET /mempool`.
type MempoolResponse struct {
	TransactionIds []types.TransactionId
}

// ValidatorView is a single validator entry in the admin surface.
type ValidatorView struct {
	NodeID      string
	PublicKey   []byte
	VotingPower uint64
	Status      string
	JailedUntil time.Time
}

// AddValidatorRequest is the body of the validator-admin "add" operation.
type AddValidatorRequest struct {
	NodeID      string
	PublicKey   []byte
	VotingPower uint64
}

// UpdateValidatorStatusRequest is the body of the validator-admin
// "update-status" operation (spec section 6: active|inactive|jailed).
type UpdateValidatorStatusRequest struct {
	NodeID      string
	Status      string
	JailedUntil time.Time // only meaningful when Status == "jailed"
}

// ConsensusStatusResponse answers `GET /status/consensus`.
type ConsensusStatusResponse struct {
	TotalProposals     uint64
	Successful         uint64
	Failed             uint64
	ViewChanges        uint64
	ActiveSessions     int
	AvgConsensusTimeMS float64
	CurrentView        uint64
}
