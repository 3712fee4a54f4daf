// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"math/rand"
	"time"
)

// RetryConfig mirrors the cross-domain "retry" configuration of spec
// section 6: `{max_attempts, initial_delay_ms, max_delay_ms,
// backoff_multiplier, enable_jitter}`.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelayMS    int64
	MaxDelayMS        int64
	BackoffMultiplier float64
	EnableJitter      bool
}

// nextDelay computes `initial_delay * backoff_multiplier^retry`, capped at
// `max_delay`, with optional +/-50% jitter (spec section 4.F "Retries").
// retry is the 0-indexed attempt number that just failed.
func (c RetryConfig) nextDelay(retry int) time.Duration {
	mult := c.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	delay := float64(c.InitialDelayMS)
	for i := 0; i < retry; i++ {
		delay *= mult
	}
	if c.MaxDelayMS > 0 && delay > float64(c.MaxDelayMS) {
		delay = float64(c.MaxDelayMS)
	}
	if c.EnableJitter && delay > 0 {
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay) * time.Millisecond
}

// exhausted reports whether retry (the count already attempted) has used
// up the configured max_attempts.
func (c RetryConfig) exhausted(retry int) bool {
	return c.MaxAttempts > 0 && retry >= c.MaxAttempts
}
