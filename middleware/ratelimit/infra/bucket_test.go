package infra

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

func mustBucket(t *testing.T, capacity, refill int64, interval time.Duration, now time.Time) *TokenBucket {
	t.Helper()
	b, err := NewTokenBucket(capacity, refill, interval, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return b
}

func drain(b *TokenBucket, now time.Time) {
	for b.TryConsume(now) {
	}
}

func TestTokenBucket_TwoThenDenyWithinSameMinute(t *testing.T) {
	now := newManualClock().Now()
	b := mustBucket(t, 2, 2, time.Minute, now)

	got := []bool{
		b.TryConsume(now),
		b.TryConsume(now.Add(10 * time.Second)),
		b.TryConsume(now.Add(59 * time.Second)),
	}
	want := []bool{true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: expected %v, got %v", i+1, want[i], got[i])
		}
	}
}

func TestTokenBucket_FirstCapacityCallsAllowed(t *testing.T) {
	now := newManualClock().Now()
	b := mustBucket(t, 12, 120, time.Minute, now)

	for i := 0; i < 12; i++ {
		if !b.TryConsume(now) {
			t.Fatalf("expected call %d to be allowed", i+1)
		}
	}
	if b.TryConsume(now) {
		t.Fatalf("expected call 13 to be denied")
	}
}

func TestTokenBucket_OneIntervalCreditsRefillAmount(t *testing.T) {
	now := newManualClock().Now()
	b := mustBucket(t, 5, 2, time.Minute, now)
	drain(b, now)

	if got := b.Available(now.Add(time.Minute)); got != 2 {
		t.Fatalf("expected 2 tokens after one interval, got %d", got)
	}
}

func TestTokenBucket_TwoIntervalsCreditTwoBlocks(t *testing.T) {
	now := newManualClock().Now()
	b := mustBucket(t, 5, 2, time.Minute, now)
	drain(b, now)

	if got := b.Available(now.Add(2 * time.Minute)); got != 4 {
		t.Fatalf("expected 4 tokens after two intervals, got %d", got)
	}
}

func TestTokenBucket_RefillCappedAtCapacity(t *testing.T) {
	now := newManualClock().Now()
	b := mustBucket(t, 12, 120, time.Minute, now)
	drain(b, now)

	if got := b.Available(now.Add(time.Minute)); got != 12 {
		t.Fatalf("expected refill capped at 12, got %d", got)
	}
}

func TestTokenBucket_NoTrickleBeforeBoundary(t *testing.T) {
	now := newManualClock().Now()
	b := mustBucket(t, 5, 2, time.Minute, now)
	drain(b, now)

	if got := b.Available(now.Add(59 * time.Second)); got != 0 {
		t.Fatalf("expected no tokens before the interval boundary, got %d", got)
	}
	if b.TryConsume(now.Add(59 * time.Second)) {
		t.Fatalf("expected deny before the interval boundary")
	}
	// a negação não move a âncora do refill
	if got := b.Available(now.Add(61 * time.Second)); got != 2 {
		t.Fatalf("expected 2 tokens after the boundary, got %d", got)
	}
}

func TestTokenBucket_BoundariesStayAlignedToCreation(t *testing.T) {
	now := newManualClock().Now()
	b := mustBucket(t, 10, 2, time.Minute, now)
	drain(b, now)

	if got := b.Available(now.Add(90 * time.Second)); got != 2 {
		t.Fatalf("expected 2 tokens at 90s, got %d", got)
	}
	// o segundo limite é em 120s, não em 90s+60s
	if got := b.Available(now.Add(120 * time.Second)); got != 4 {
		t.Fatalf("expected 4 tokens at 120s, got %d", got)
	}
}

func TestTokenBucket_ClockGoingBackwardsDoesNotRefill(t *testing.T) {
	now := newManualClock().Now()
	b := mustBucket(t, 1, 1, time.Minute, now)
	drain(b, now)

	if b.TryConsume(now.Add(-time.Hour)) {
		t.Fatalf("expected deny when clock goes backwards")
	}
	if !b.TryConsume(now.Add(time.Minute)) {
		t.Fatalf("expected allow after a full interval")
	}
}

func TestTokenBucket_LongIdleDoesNotOverflow(t *testing.T) {
	now := newManualClock().Now()
	b := mustBucket(t, 3, 1<<62, time.Nanosecond, now)
	drain(b, now)

	if got := b.Available(now.Add(200 * 365 * 24 * time.Hour)); got != 3 {
		t.Fatalf("expected full bucket after long idle, got %d", got)
	}
}

func TestTokenBucket_ConcurrentCallersNeverDoubleAllow(t *testing.T) {
	const (
		capacity = 50
		callers  = 400
	)
	now := newManualClock().Now()
	b := mustBucket(t, capacity, 1, time.Hour, now)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			if b.TryConsume(now) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != capacity {
		t.Fatalf("expected exactly %d allowed, got %d", capacity, got)
	}
}

func TestNewTokenBucket_RejectsInvalidParams(t *testing.T) {
	now := time.Now()
	cases := []struct {
		capacity, refill int64
		interval         time.Duration
	}{
		{0, 1, time.Second},
		{1, 0, time.Second},
		{1, 1, 0},
	}
	for _, c := range cases {
		_, err := NewTokenBucket(c.capacity, c.refill, c.interval, now)
		if !errors.Is(err, domain.ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig for %+v, got %v", c, err)
		}
	}
}

func TestNewBucketFactory_StartsFull(t *testing.T) {
	now := newManualClock().Now()
	newBucket, err := NewBucketFactory(domain.Limits{Capacity: 2, RefillAmount: 1, RefillInterval: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b := newBucket(now).(*TokenBucket)
	if got := b.Available(now); got != 2 {
		t.Fatalf("expected full bucket, got %d", got)
	}
	if b.Capacity() != 2 {
		t.Fatalf("expected capacity 2, got %d", b.Capacity())
	}
}

func TestNewBucketFactory_RejectsInvalidLimits(t *testing.T) {
	cases := []domain.Limits{
		{Capacity: 0, RefillAmount: 1, RefillInterval: time.Second},
		{Capacity: 1, RefillAmount: 0, RefillInterval: time.Second},
		{Capacity: 1, RefillAmount: 1, RefillInterval: 0},
	}
	for _, l := range cases {
		f, err := NewBucketFactory(l)
		if !errors.Is(err, domain.ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig for %+v, got %v", l, err)
		}
		if f != nil {
			t.Fatalf("expected nil factory for %+v", l)
		}
	}
}
