package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock advances instantly on every wait so polling cycles run in
// simulated time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

type flagReaderStub struct {
	mu      sync.Mutex
	reads   int
	results []bool
	errs    []error
	always  bool
}

func (s *flagReaderStub) ReadActivationFlag(ctx context.Context, accountRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.reads
	s.reads++
	if i < len(s.errs) && s.errs[i] != nil {
		return false, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return s.always, nil
}

func (s *flagReaderStub) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func TestPollerConfirmsOnlyAfterMinimumWait(t *testing.T) {
	clock := newFakeClock()
	reader := &flagReaderStub{always: true}
	poller := NewActivationPoller(reader, clock, PollerConfig{})

	start := clock.Now()
	result, err := poller.Poll(context.Background(), "acc_1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != PollConfirmed {
		t.Fatalf("expected confirmed, got %s", result)
	}

	elapsed := clock.Now().Sub(start)
	if elapsed < defaultMinTotalWait {
		t.Fatalf("resolved after %s, before the %s minimum wait", elapsed, defaultMinTotalWait)
	}
}

func TestPollerExitsImmediatelyWhenConfirmedAfterMinimumWait(t *testing.T) {
	clock := newFakeClock()
	// Flag turns true on the eighth read, 14s into the cycle.
	reader := &flagReaderStub{results: []bool{false, false, false, false, false, false, false, true}}
	poller := NewActivationPoller(reader, clock, PollerConfig{})

	start := clock.Now()
	result, err := poller.Poll(context.Background(), "acc_1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != PollConfirmed {
		t.Fatalf("expected confirmed, got %s", result)
	}
	if elapsed := clock.Now().Sub(start); elapsed != 14*time.Second {
		t.Fatalf("expected resolution at 14s, got %s", elapsed)
	}
}

func TestPollerTimesOutWithDefaultLimits(t *testing.T) {
	clock := newFakeClock()
	reader := &flagReaderStub{always: false}
	poller := NewActivationPoller(reader, clock, PollerConfig{})

	var lastAttempt int
	start := clock.Now()
	result, err := poller.Poll(context.Background(), "acc_1", func(attempt int, elapsed time.Duration) {
		lastAttempt = attempt
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != PollTimedOut {
		t.Fatalf("expected timed out, got %s", result)
	}
	if lastAttempt != defaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultMaxAttempts, lastAttempt)
	}
	// 15 attempts separated by 14 two-second waits.
	if elapsed := clock.Now().Sub(start); elapsed != 28*time.Second {
		t.Fatalf("expected timeout at 28s, got %s", elapsed)
	}
}

func TestPollerKeepsPollingUntilBothLimitsExhausted(t *testing.T) {
	clock := newFakeClock()
	reader := &flagReaderStub{always: false}
	// Attempts run out long before the time floor does.
	poller := NewActivationPoller(reader, clock, PollerConfig{
		MaxAttempts:  2,
		Interval:     time.Second,
		MinTotalWait: 10 * time.Second,
	})

	result, err := poller.Poll(context.Background(), "acc_1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != PollTimedOut {
		t.Fatalf("expected timed out, got %s", result)
	}
	if reads := reader.readCount(); reads <= 2 {
		t.Fatalf("expected polling past the attempt ceiling while time remained, got %d reads", reads)
	}
}

func TestPollerAbsorbsTransientReadFailures(t *testing.T) {
	clock := newFakeClock()
	reader := &flagReaderStub{
		errs:    []error{errors.New("connection reset"), errors.New("timeout")},
		results: []bool{false, false, true},
	}
	poller := NewActivationPoller(reader, clock, PollerConfig{})

	result, err := poller.Poll(context.Background(), "acc_1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != PollConfirmed {
		t.Fatalf("read failures must not prevent a later confirmation, got %s", result)
	}
}

func TestPollerNeverConfirmsWithoutObservingTheFlag(t *testing.T) {
	clock := newFakeClock()
	reader := &flagReaderStub{errs: make([]error, 100)}
	for i := range reader.errs {
		reader.errs[i] = errors.New("unavailable")
	}
	poller := NewActivationPoller(reader, clock, PollerConfig{MaxAttempts: 3, Interval: time.Second, MinTotalWait: 2 * time.Second})

	result, err := poller.Poll(context.Background(), "acc_1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != PollTimedOut {
		t.Fatalf("exhausted reads with no true flag must time out, got %s", result)
	}
}

func TestPollerCancellationResolvesNeitherOutcome(t *testing.T) {
	clock := newFakeClock()
	reader := &flagReaderStub{always: false}
	poller := NewActivationPoller(reader, clock, PollerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := poller.Poll(ctx, "acc_1", nil)
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if result != PollErrored {
		t.Fatalf("expected errored sentinel on cancellation, got %s", result)
	}
	if reader.readCount() != 0 {
		t.Fatalf("expected no reads after cancellation, got %d", reader.readCount())
	}
}
