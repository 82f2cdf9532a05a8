/**
 * @description
 * The activation poller bridges the synchronous checkout flow to an
 * asynchronously-confirmed backend fact: the subscription-active flag the
 * billing webhook consumer writes into the profile store. It polls the flag
 * under two independent limits and resolves Confirmed or TimedOut.
 *
 * Termination is deliberately asymmetric. Success exits as soon as the flag
 * has been seen true AND the minimum total wait has been shown to the user
 * (the floor keeps the UI from flashing a success before the loading state
 * registers). Failure exits only once the elapsed time AND the attempt count
 * are both exhausted, which keeps normal webhook latency from producing false
 * negatives.
 */
package app

import (
	"context"
	"time"

	"github.com/medlink/checkout-service/internal/domain"
)

// ActivationReader is the one collaborator surface the poller touches.
type ActivationReader interface {
	ReadActivationFlag(ctx context.Context, accountRef string) (bool, error)
}

// PollResult is the poller's terminal outcome.
type PollResult string

const (
	PollConfirmed PollResult = "confirmed"
	PollTimedOut  PollResult = "timed_out"
	// PollErrored is returned only together with a non-nil error
	// (cancellation); callers discard the session outcome in that case.
	PollErrored PollResult = "errored"
)

const (
	defaultMaxAttempts  = 15
	defaultPollInterval = 2 * time.Second
	defaultMinTotalWait = 12 * time.Second
)

// PollerConfig bounds one polling cycle. Zero values fall back to defaults.
type PollerConfig struct {
	MaxAttempts  int
	Interval     time.Duration
	MinTotalWait time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Interval <= 0 {
		c.Interval = defaultPollInterval
	}
	if c.MinTotalWait <= 0 {
		c.MinTotalWait = defaultMinTotalWait
	}
	return c
}

// ActivationPoller repeatedly reads the activation flag for an account until
// it is confirmed or both limits run out.
type ActivationPoller struct {
	reader ActivationReader
	clock  Clock
	config PollerConfig
}

// NewActivationPoller creates a poller. A nil clock selects the system clock.
func NewActivationPoller(reader ActivationReader, clock Clock, cfg PollerConfig) *ActivationPoller {
	if clock == nil {
		clock = SystemClock
	}
	return &ActivationPoller{reader: reader, clock: clock, config: cfg.withDefaults()}
}

// Progress reports per-attempt bookkeeping back to the session owner.
type Progress func(attempt int, elapsed time.Duration)

// Poll runs one bounded polling cycle for accountRef. A transient read
// failure counts as a false read: the confirming webhook may still arrive, so
// it is never escalated while attempts remain. Cancellation resolves neither
// outcome; the ctx error is returned and the caller discards the result.
func (p *ActivationPoller) Poll(ctx context.Context, accountRef string, progress Progress) (PollResult, error) {
	cfg := p.config
	start := p.clock.Now()
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return PollErrored, err
		}

		attempt++
		active, err := p.reader.ReadActivationFlag(ctx, accountRef)
		elapsed := p.clock.Now().Sub(start)
		if progress != nil {
			progress(attempt, elapsed)
		}

		if err == nil && active {
			if remaining := cfg.MinTotalWait - elapsed; remaining > 0 {
				if err := p.wait(ctx, remaining); err != nil {
					return PollErrored, err
				}
			}
			return PollConfirmed, nil
		}

		if elapsed >= cfg.MinTotalWait && attempt >= cfg.MaxAttempts {
			return PollTimedOut, nil
		}

		if err := p.wait(ctx, cfg.Interval); err != nil {
			return PollErrored, err
		}
	}
}

func (p *ActivationPoller) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(d):
		return nil
	}
}

// resultState maps a poll outcome onto the session state it produces.
func resultState(r PollResult) domain.SessionState {
	switch r {
	case PollConfirmed:
		return domain.StateActivated
	case PollTimedOut:
		return domain.StateTimedOut
	default:
		return domain.StateErrored
	}
}
