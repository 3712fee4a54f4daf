// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/synchronizer/consensus"
	"github.com/luxfi/synchronizer/errs"
	"github.com/luxfi/synchronizer/orchestrator"
	"github.com/luxfi/synchronizer/store"
	"github.com/luxfi/synchronizer/types"
	"github.com/luxfi/synchronizer/validator"
)

const componentName = "api.Handlers"

// Handlers is the thin interface a real net/http or grpc front end wires
// against (spec section 6, "[NEW]" — HTTP itself is out of scope, §1).
type Handlers interface {
	SubmitTransaction(ctx context.Context, req SubmitTransactionRequest) (SubmitTransactionResponse, *RejectedResponse, error)
	SubmitSignedTransaction(ctx context.Context, req SubmitSignedTransactionRequest) (SubmitTransactionResponse, *RejectedResponse, error)
	TransactionStatus(ctx context.Context, id types.TransactionId) (TransactionStatusResponse, bool)
	TransactionDetails(ctx context.Context, id types.TransactionId) (TransactionDetailsResponse, bool)
	LatestBlock(ctx context.Context) (BlockResponse, bool, error)
	BlockByHeight(ctx context.Context, height uint64) (BlockResponse, bool, error)
	BlockTransactions(ctx context.Context, height uint64) (BlockTransactionsResponse, bool, error)
	Mempool(ctx context.Context) MempoolResponse
	ListValidators() []ValidatorView
	AddValidator(req AddValidatorRequest) error
	RemoveValidator(nodeID string) error
	UpdateValidatorStatus(req UpdateValidatorStatusRequest) error
	ConsensusStatus() ConsensusStatusResponse
}

// handlers is the default Handlers implementation, delegating submission
// and status queries to the orchestrator and everything block/validator-
// specific to the underlying store and validator registry directly.
type handlers struct {
	orc        *orchestrator.Orchestrator
	st         store.Store
	validators *validator.Registry
	consensus  *consensus.Manager
}

// NewHandlers wires a Handlers implementation over an already-running
// Orchestrator and its validator registry/consensus manager/store.
func NewHandlers(orc *orchestrator.Orchestrator, st store.Store, validators *validator.Registry, consensusMgr *consensus.Manager) Handlers {
	return &handlers{orc: orc, st: st, validators: validators, consensus: consensusMgr}
}

func (h *handlers) SubmitTransaction(ctx context.Context, req SubmitTransactionRequest) (SubmitTransactionResponse, *RejectedResponse, error) {
	tx := types.CrossDomainTransaction{
		TransactionId:         types.NewTransactionId(),
		SourceDomain:          req.SourceDomain,
		TargetDomains:         req.TargetDomains,
		TransactionType:       req.TransactionType,
		Data:                  req.Data,
		RequiredConfirmations: req.RequiredConfirmations,
		Dependencies:          req.Dependencies,
		CreatedAt:             time.Now(),
		TimeoutAt:             req.TimeoutAt,
		Metadata:              req.Metadata,
	}
	if err := tx.Validate(); err != nil {
		return SubmitTransactionResponse{}, &RejectedResponse{Status: "Rejected", Reason: err.Error()}, nil
	}

	txID, err := h.orc.SubmitTransaction(ctx, tx)
	if err != nil {
		return SubmitTransactionResponse{}, &RejectedResponse{Status: "Rejected", Reason: err.Error()}, nil
	}
	return SubmitTransactionResponse{Status: "Accepted", TransactionId: txID}, nil, nil
}

func (h *handlers) SubmitSignedTransaction(ctx context.Context, req SubmitSignedTransactionRequest) (SubmitTransactionResponse, *RejectedResponse, error) {
	txID := types.NewTransactionId()
	if !VerifySubmissionSignature(txID, req) {
		return SubmitTransactionResponse{}, nil, errs.New(errs.KindInvalidSignature, componentName, "submission signature verification failed")
	}

	tx := types.CrossDomainTransaction{
		TransactionId:         txID,
		SourceDomain:          req.SourceDomain,
		TargetDomains:         req.TargetDomains,
		TransactionType:       req.TransactionType,
		Data:                  req.Data,
		RequiredConfirmations: req.RequiredConfirmations,
		Dependencies:          req.Dependencies,
		CreatedAt:             time.Now(),
		TimeoutAt:             req.TimeoutAt,
		Metadata:              req.Metadata,
	}
	if err := tx.Validate(); err != nil {
		return SubmitTransactionResponse{}, &RejectedResponse{Status: "Rejected", Reason: err.Error()}, nil
	}

	id, err := h.orc.SubmitTransaction(ctx, tx)
	if err != nil {
		return SubmitTransactionResponse{}, &RejectedResponse{Status: "Rejected", Reason: err.Error()}, nil
	}
	return SubmitTransactionResponse{Status: "Accepted", TransactionId: id}, nil, nil
}

func (h *handlers) TransactionStatus(_ context.Context, id types.TransactionId) (TransactionStatusResponse, bool) {
	status, ok := h.orc.TransactionStatus(id)
	if !ok {
		return TransactionStatusResponse{}, false
	}
	return TransactionStatusResponse{Status: status}, true
}

func (h *handlers) TransactionDetails(ctx context.Context, id types.TransactionId) (TransactionDetailsResponse, bool) {
	rec, found, err := h.st.GetActiveTransaction(ctx, id)
	if err != nil || !found {
		return TransactionDetailsResponse{}, false
	}
	resp := TransactionDetailsResponse{Transaction: rec.Tx, Status: rec.Status}
	if tag, tagOK, tagErr := h.st.GetTxBlockTag(ctx, id); tagErr == nil && tagOK {
		resp.BlockTag = &tag
	}
	return resp, true
}

func (h *handlers) LatestBlock(ctx context.Context) (BlockResponse, bool, error) {
	height, ok, err := h.st.LatestHeight(ctx)
	if err != nil || !ok {
		return BlockResponse{}, false, err
	}
	return h.BlockByHeight(ctx, height)
}

func (h *handlers) BlockByHeight(ctx context.Context, height uint64) (BlockResponse, bool, error) {
	block, info, ok, err := h.st.GetBlockByHeight(ctx, height)
	if err != nil || !ok {
		return BlockResponse{}, false, err
	}
	return BlockResponse{Block: block, Info: info}, true, nil
}

func (h *handlers) BlockTransactions(ctx context.Context, height uint64) (BlockTransactionsResponse, bool, error) {
	block, _, ok, err := h.st.GetBlockByHeight(ctx, height)
	if err != nil || !ok {
		return BlockTransactionsResponse{}, false, err
	}
	return BlockTransactionsResponse{Transactions: block.Transactions}, true, nil
}

func (h *handlers) Mempool(_ context.Context) MempoolResponse {
	return MempoolResponse{TransactionIds: h.orc.Mempool()}
}

func (h *handlers) ListValidators() []ValidatorView {
	infos := h.validators.List()
	out := make([]ValidatorView, len(infos))
	for i, info := range infos {
		out[i] = ValidatorView{
			NodeID:      info.NodeID.String(),
			PublicKey:   info.PublicKey,
			VotingPower: info.VotingPower,
			Status:      info.Status.String(),
			JailedUntil: info.JailedUntil,
		}
	}
	return out
}

func (h *handlers) AddValidator(req AddValidatorRequest) error {
	nodeID, err := ids.NodeIDFromString(req.NodeID)
	if err != nil {
		return errs.New(errs.KindInvalidInput, componentName, "invalid node id")
	}
	h.validators.Register(nodeID, req.PublicKey, req.VotingPower)
	return nil
}

func (h *handlers) RemoveValidator(nodeIDStr string) error {
	nodeID, err := ids.NodeIDFromString(nodeIDStr)
	if err != nil {
		return errs.New(errs.KindInvalidInput, componentName, "invalid node id")
	}
	h.validators.Deregister(nodeID)
	return nil
}

func (h *handlers) UpdateValidatorStatus(req UpdateValidatorStatusRequest) error {
	nodeID, err := ids.NodeIDFromString(req.NodeID)
	if err != nil {
		return errs.New(errs.KindInvalidInput, componentName, "invalid node id")
	}
	switch req.Status {
	case "active":
		return h.validators.SetStatus(nodeID, validator.StatusActive)
	case "inactive":
		return h.validators.SetStatus(nodeID, validator.StatusInactive)
	case "jailed":
		return h.validators.Jail(nodeID, req.JailedUntil)
	default:
		return errs.New(errs.KindInvalidInput, componentName, "unknown validator status: "+req.Status)
	}
}

func (h *handlers) ConsensusStatus() ConsensusStatusResponse {
	m := h.consensus.Metrics()
	return ConsensusStatusResponse{
		TotalProposals:     m.TotalProposals,
		Successful:         m.Successful,
		Failed:             m.Failed,
		ViewChanges:        m.ViewChanges,
		ActiveSessions:     m.ActiveSessions,
		AvgConsensusTimeMS: m.AvgConsensusTimeMS,
		CurrentView:        m.CurrentView,
	}
}
