// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config aggregates every wired component's own Config type into
// one top-level Config plus a fluent Builder, the way the teacher's own
// config package turns per-concern parameters into one construct-and-
// validate object (spec section 6 "Configuration recognized options").
package config

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/luxfi/synchronizer/consensus"
	"github.com/luxfi/synchronizer/coordinator"
	"github.com/luxfi/synchronizer/errs"
	"github.com/luxfi/synchronizer/mediator"
	"github.com/luxfi/synchronizer/orchestrator"
	"github.com/luxfi/synchronizer/sequencer"
)

const componentName = "config.Config"

// AuthConfig mirrors spec section 6's "bearer token header" auth option.
// No HTTP surface ships in this repo (out of scope, §1); this struct is
// carried so a front end wiring against api.Handlers has somewhere to
// read the configured token from.
type AuthConfig struct {
	BearerToken string
}

// ThrottleConfig mirrors spec section 6's per-IP token-bucket throttling.
type ThrottleConfig struct {
	RequestsPerMinute int
}

// ClockConfig controls the failure detector thresholds clock.NewManager
// takes directly (spec section 4.A "if a peer's last clock observation is
// older than a configured timeout, mark Suspected; after a second
// timeout, mark Failed").
type ClockConfig struct {
	SuspectTimeout time.Duration
	FailTimeout    time.Duration
}

// StoreConfig selects the durable store backend. An empty Path keeps the
// in-memory store (tests, local development); a non-empty Path opens a
// bbolt-backed store at that location.
type StoreConfig struct {
	Path string
}

// Config is every subsystem's Config wired together into one top-level
// object, the way cmd/synchronizerd's entrypoint constructs the whole
// dependency graph from a single source of truth.
type Config struct {
	Clock        ClockConfig
	Store        StoreConfig
	Sequencer    sequencer.Config
	Mediator     mediator.Config
	Consensus    consensus.Config
	Coordinator  coordinator.Config
	FloodControl consensus.FloodControlConfig
	Orchestrator orchestrator.Config
	Auth         AuthConfig
	Throttle     ThrottleConfig
}

// Default returns the development-friendly configuration used when no
// operator override is supplied: short timeouts, small batches, single-
// domain-friendly concurrency limits.
func Default() Config {
	return Config{
		Clock: ClockConfig{
			SuspectTimeout: 5 * time.Second,
			FailTimeout:    15 * time.Second,
		},
		Sequencer: sequencer.Config{
			TransactionBatchSize:      50,
			BatchTimeoutMS:            100,
			MaxConcurrentTransactions: 16,
			ProcessingInterval:        10 * time.Millisecond,
		},
		Mediator: mediator.Config{
			DefaultTimeout:        30 * time.Second,
			MaxConcurrentSessions: 64,
		},
		Consensus: consensus.Config{
			QuorumRatioThousandths:  667,
			MaxViewsWithoutProgress: 3,
			ViewChangeTimeout:       10 * time.Second,
			JailDurationSecs:        300,
			ByzantineThreshold:      1,
			ConsensusTimeout:        time.Minute,
		},
		Coordinator: coordinator.Config{
			TransactionTimeoutMS:      60_000,
			MaxConcurrentTransactions: 64,
			Retry: coordinator.RetryConfig{
				MaxAttempts:       5,
				InitialDelayMS:    100,
				MaxDelayMS:        5_000,
				BackoffMultiplier: 2,
				EnableJitter:      true,
			},
			SettlementMode: coordinator.SettlementImmediate,
		},
		FloodControl: consensus.FloodControlConfig{
			GossipRatePerPeer: rate.Limit(50),
			VoteRatePerPeer:   rate.Limit(50),
			BurstCapacity:     100,
			EnableAutoBan:     false,
			TempBanDuration:   time.Minute,
		},
		Orchestrator: orchestrator.Config{
			EventBufferSize: 1024,
		},
	}
}

// Validate checks every "recognized option" range named in spec section 6.
// Config errors are fatal at startup only (spec section 7).
func (c Config) Validate() error {
	switch {
	case c.Consensus.QuorumRatioThousandths == 0 || c.Consensus.QuorumRatioThousandths > 1000:
		return errs.New(errs.KindConfig, componentName, "consensus.quorum_ratio_thousandths must be in (0,1000]")
	case c.Consensus.MaxViewsWithoutProgress <= 0:
		return errs.New(errs.KindConfig, componentName, "consensus.max_views_without_progress must be > 0")
	case c.Consensus.ViewChangeTimeout <= 0:
		return errs.New(errs.KindConfig, componentName, "consensus.view_change_timeout_ms must be > 0")
	case c.Consensus.JailDurationSecs <= 0:
		return errs.New(errs.KindConfig, componentName, "consensus.jail_duration_secs must be > 0")
	case c.Consensus.ConsensusTimeout <= 0:
		return errs.New(errs.KindConfig, componentName, "consensus.consensus_timeout_ms must be > 0")

	case c.Sequencer.TransactionBatchSize <= 0:
		return errs.New(errs.KindConfig, componentName, "sequencer.transaction_batch_size must be > 0")
	case c.Sequencer.BatchTimeoutMS <= 0:
		return errs.New(errs.KindConfig, componentName, "sequencer.batch_timeout_ms must be > 0")
	case c.Sequencer.MaxConcurrentTransactions <= 0:
		return errs.New(errs.KindConfig, componentName, "sequencer.max_concurrent_transactions must be > 0")

	case c.Mediator.DefaultTimeout <= 0:
		return errs.New(errs.KindConfig, componentName, "mediator.mediation_timeout_seconds must be > 0")
	case c.Mediator.MaxConcurrentSessions <= 0:
		return errs.New(errs.KindConfig, componentName, "mediator.max_concurrent_sessions must be > 0")

	case c.Coordinator.TransactionTimeoutMS <= 0:
		return errs.New(errs.KindConfig, componentName, "cross_domain.transaction_timeout_ms must be > 0")
	case c.Coordinator.MaxConcurrentTransactions <= 0:
		return errs.New(errs.KindConfig, componentName, "cross_domain.max_concurrent_transactions must be > 0")
	case c.Coordinator.Retry.MaxAttempts <= 0:
		return errs.New(errs.KindConfig, componentName, "cross_domain.retry.max_attempts must be > 0")
	case c.Coordinator.Retry.InitialDelayMS <= 0:
		return errs.New(errs.KindConfig, componentName, "cross_domain.retry.initial_delay_ms must be > 0")
	case c.Coordinator.Retry.MaxDelayMS < c.Coordinator.Retry.InitialDelayMS:
		return errs.New(errs.KindConfig, componentName, "cross_domain.retry.max_delay_ms must be >= initial_delay_ms")
	case c.Coordinator.Retry.BackoffMultiplier < 1:
		return errs.New(errs.KindConfig, componentName, "cross_domain.retry.backoff_multiplier must be >= 1")

	case c.FloodControl.GossipRatePerPeer <= 0:
		return errs.New(errs.KindConfig, componentName, "network.gossip_rate_per_peer must be > 0")
	case c.FloodControl.VoteRatePerPeer <= 0:
		return errs.New(errs.KindConfig, componentName, "network.vote_rate_per_peer must be > 0")
	case c.FloodControl.BurstCapacity <= 0:
		return errs.New(errs.KindConfig, componentName, "network.burst_capacity must be > 0")

	case c.Clock.SuspectTimeout <= 0:
		return errs.New(errs.KindConfig, componentName, "clock.suspect_timeout must be > 0")
	case c.Clock.FailTimeout <= c.Clock.SuspectTimeout:
		return errs.New(errs.KindConfig, componentName, "clock.fail_timeout must be > suspect_timeout")
	}
	return nil
}
