package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

type fakeBucket struct {
	allow bool
	calls int
	last  time.Time
}

func (f *fakeBucket) TryConsume(now time.Time) bool {
	f.calls++
	f.last = now
	return f.allow
}

type fakeStore struct {
	mu      sync.Mutex
	buckets map[domain.Key]domain.Bucket
	created int
}

func newFakeStore() *fakeStore { return &fakeStore{buckets: map[domain.Key]domain.Bucket{}} }

func (s *fakeStore) GetOrCreate(k domain.Key, factory domain.BucketFactory) domain.Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[k]; ok {
		return b
	}
	s.created++
	b := factory()
	s.buckets[k] = b
	return b
}

func (s *fakeStore) Len() int { return len(s.buckets) }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingStats struct {
	events []domain.StatsEvent
	err    error
}

func (r *recordingStats) Record(_ context.Context, ev domain.StatsEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func testLimits() domain.Limits {
	return domain.Limits{Capacity: 2, RefillAmount: 2, RefillInterval: time.Minute, MaxEntries: 10, IdleExpiry: time.Minute}
}

func TestNewAdmissionController_RejectsInvalidLimits(t *testing.T) {
	l := testLimits()
	l.RefillInterval = 0

	_, err := NewAdmissionController(l, newFakeStore(), func(time.Time) domain.Bucket { return &fakeBucket{} })
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Field != "refillInterval" {
		t.Fatalf("expected refillInterval field, got %q", cfgErr.Field)
	}
}

func TestNewAdmissionController_RequiresStoreAndFactory(t *testing.T) {
	if _, err := NewAdmissionController(testLimits(), nil, func(time.Time) domain.Bucket { return nil }); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without store, got %v", err)
	}
	if _, err := NewAdmissionController(testLimits(), newFakeStore(), nil); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without factory, got %v", err)
	}
}

func TestAdmit_AllowsWhenBucketAllows(t *testing.T) {
	b := &fakeBucket{allow: true}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stats := &recordingStats{}

	svc, err := NewAdmissionController(testLimits(), newFakeStore(),
		func(time.Time) domain.Bucket { return b },
		WithClock(fixedClock{now}), WithStats(stats))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dec := svc.AdmitRequest(context.Background(), "1.2.3.4", "GET", "/api")
	if !dec.Allowed || dec.Key != "1.2.3.4" {
		t.Fatalf("expected allowed decision for 1.2.3.4, got %+v", dec)
	}
	if !b.last.Equal(now) {
		t.Fatalf("expected bucket to see the controller clock, got %s", b.last)
	}
	if len(stats.events) != 1 {
		t.Fatalf("expected one stats event, got %d", len(stats.events))
	}
	ev := stats.events[0]
	if !ev.Allowed || ev.Method != "GET" || ev.Path != "/api" || !ev.At.Equal(now) {
		t.Fatalf("unexpected stats event %+v", ev)
	}
}

func TestAdmit_BlockedIsADecisionNotAnError(t *testing.T) {
	stats := &recordingStats{}
	svc, _ := NewAdmissionController(testLimits(), newFakeStore(),
		func(time.Time) domain.Bucket { return &fakeBucket{allow: false} },
		WithStats(stats))

	dec := svc.Admit(context.Background(), "k")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if len(stats.events) != 1 || stats.events[0].Outcome() != domain.OutcomeBlocked {
		t.Fatalf("expected one blocked event, got %+v", stats.events)
	}
}

func TestAdmit_StatsErrorDoesNotChangeDecision(t *testing.T) {
	stats := &recordingStats{err: errors.New("redis down")}
	svc, _ := NewAdmissionController(testLimits(), newFakeStore(),
		func(time.Time) domain.Bucket { return &fakeBucket{allow: true} },
		WithStats(stats))

	if dec := svc.Admit(context.Background(), "k"); !dec.Allowed {
		t.Fatalf("expected allowed despite stats error")
	}
}

func TestAdmit_ReusesBucketPerKey(t *testing.T) {
	store := newFakeStore()
	svc, _ := NewAdmissionController(testLimits(), store,
		func(time.Time) domain.Bucket { return &fakeBucket{allow: true} })

	svc.Admit(context.Background(), "a")
	svc.Admit(context.Background(), "a")
	svc.Admit(context.Background(), "b")

	if store.created != 2 {
		t.Fatalf("expected 2 buckets created, got %d", store.created)
	}
}

func TestAdmissionController_String(t *testing.T) {
	svc, _ := NewAdmissionController(testLimits(), newFakeStore(),
		func(time.Time) domain.Bucket { return &fakeBucket{} })

	want := "capacity=2 refill=2/1m0s maxEntries=10 idleExpiry=1m0s"
	if got := svc.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
