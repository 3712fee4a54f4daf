// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"time"

	"github.com/luxfi/synchronizer/consensus"
	"github.com/luxfi/synchronizer/coordinator"
	"github.com/luxfi/synchronizer/errs"
)

// Preset names a pre-tuned Config, mirroring the teacher's own
// Mainnet/Testnet/Local network-type split.
type Preset string

const (
	PresetDevelopment Preset = "development"
	PresetProduction  Preset = "production"
)

// Builder provides a fluent interface for constructing a Config, the same
// accumulate-then-validate-at-Build shape as the teacher's own
// config.Builder.
type Builder struct {
	cfg Config
	err error
}

// NewBuilder starts from Default and lets each With* call override a
// slice of it.
func NewBuilder() *Builder {
	return &Builder{cfg: Default()}
}

// FromPreset discards whatever the builder had accumulated and starts from
// a named preset.
func (b *Builder) FromPreset(preset Preset) *Builder {
	if b.err != nil {
		return b
	}
	switch preset {
	case PresetDevelopment:
		b.cfg = Default()
	case PresetProduction:
		b.cfg = productionConfig()
	default:
		b.err = errs.New(errs.KindConfig, componentName, "unknown preset: "+string(preset))
	}
	return b
}

// WithStorePath switches the store backend to bbolt at path; an empty
// path keeps the in-memory store.
func (b *Builder) WithStorePath(path string) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.Store.Path = path
	return b
}

// WithClockTimeouts sets the failure-detector thresholds.
func (b *Builder) WithClockTimeouts(suspect, fail time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if fail <= suspect {
		b.err = errs.New(errs.KindConfig, componentName, "fail timeout must exceed suspect timeout")
		return b
	}
	b.cfg.Clock = ClockConfig{SuspectTimeout: suspect, FailTimeout: fail}
	return b
}

// WithQuorumRatio sets the consensus quorum ratio, expressed in
// thousandths as spec section 6 names it.
func (b *Builder) WithQuorumRatio(thousandths uint32) *Builder {
	if b.err != nil {
		return b
	}
	if thousandths == 0 || thousandths > 1000 {
		b.err = errs.New(errs.KindConfig, componentName, "quorum ratio must be in (0,1000]")
		return b
	}
	b.cfg.Consensus.QuorumRatioThousandths = consensus.QuorumRatioThousandths(thousandths)
	return b
}

// WithByzantineThreshold sets the tolerated faulty-validator count f
// stored in consensus.Config.ByzantineThreshold. consensus.Manager does not
// read this field: StartConsensus accepts a required set of any size, and
// the |required| >= 3f+1 check exists only as consensus.SatisfiesBFTMinimum,
// which nothing in the repository calls.
func (b *Builder) WithByzantineThreshold(f int) *Builder {
	if b.err != nil {
		return b
	}
	if f < 0 {
		b.err = errs.New(errs.KindConfig, componentName, "byzantine threshold must be >= 0")
		return b
	}
	b.cfg.Consensus.ByzantineThreshold = f
	return b
}

// WithSettlementMode overrides the cross-domain coordinator's settlement
// trigger.
func (b *Builder) WithSettlementMode(mode coordinator.SettlementMode) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.Coordinator.SettlementMode = mode
	return b
}

// WithRetry overrides the cross-domain coordinator's retry backoff policy.
func (b *Builder) WithRetry(retry coordinator.RetryConfig) *Builder {
	if b.err != nil {
		return b
	}
	if retry.MaxAttempts <= 0 {
		b.err = errs.New(errs.KindConfig, componentName, "retry.max_attempts must be > 0")
		return b
	}
	b.cfg.Coordinator.Retry = retry
	return b
}

// WithAuth sets the bearer token a front end should require.
func (b *Builder) WithAuth(bearerToken string) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.Auth = AuthConfig{BearerToken: bearerToken}
	return b
}

// WithThrottle sets the per-IP request-per-minute cap a front end should
// enforce.
func (b *Builder) WithThrottle(rpm int) *Builder {
	if b.err != nil {
		return b
	}
	if rpm <= 0 {
		b.err = errs.New(errs.KindConfig, componentName, "throttle.requests_per_minute must be > 0")
		return b
	}
	b.cfg.Throttle = ThrottleConfig{RequestsPerMinute: rpm}
	return b
}

// Build validates the accumulated Config and returns it.
func (b *Builder) Build() (Config, error) {
	if b.err != nil {
		return Config{}, b.err
	}
	if err := b.cfg.Validate(); err != nil {
		return Config{}, err
	}
	return b.cfg, nil
}

// productionConfig raises Default's timeouts and concurrency limits for
// a multi-domain, multi-validator deployment.
func productionConfig() Config {
	c := Default()
	c.Clock = ClockConfig{SuspectTimeout: 10 * time.Second, FailTimeout: 30 * time.Second}
	c.Sequencer.MaxConcurrentTransactions = 256
	c.Mediator.MaxConcurrentSessions = 512
	c.Consensus.MaxViewsWithoutProgress = 5
	c.Consensus.ViewChangeTimeout = 30 * time.Second
	c.Consensus.JailDurationSecs = 3_600
	c.Consensus.ByzantineThreshold = 3
	c.Coordinator.MaxConcurrentTransactions = 512
	c.Coordinator.SettlementMode = coordinator.SettlementBatched
	c.Coordinator.Settlement = coordinator.BatchSettlementConfig{
		BatchSize:    100,
		BatchTimeout: 5_000,
		Atomic:       true,
	}
	c.FloodControl.EnableAutoBan = true
	c.FloodControl.TempBanDuration = 10 * time.Minute
	c.Throttle = ThrottleConfig{RequestsPerMinute: 600}
	return c
}
