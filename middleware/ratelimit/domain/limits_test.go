package domain

import (
	"errors"
	"testing"
	"time"
)

func validLimits() Limits {
	return Limits{
		Capacity:       12,
		RefillAmount:   120,
		RefillInterval: time.Minute,
		MaxEntries:     10000,
		IdleExpiry:     15 * time.Minute,
	}
}

func TestLimits_ValidateAcceptsPositiveValues(t *testing.T) {
	if err := validLimits().Validate(); err != nil {
		t.Fatalf("expected valid limits, got %v", err)
	}
}

func TestLimits_ValidateRejectsNonPositive(t *testing.T) {
	tests := []struct {
		name  string
		field string
		mut   func(*Limits)
	}{
		{"zero capacity", "capacity", func(l *Limits) { l.Capacity = 0 }},
		{"negative refill amount", "refillAmount", func(l *Limits) { l.RefillAmount = -1 }},
		{"zero refill interval", "refillInterval", func(l *Limits) { l.RefillInterval = 0 }},
		{"negative refill interval", "refillInterval", func(l *Limits) { l.RefillInterval = -time.Second }},
		{"zero max entries", "maxEntries", func(l *Limits) { l.MaxEntries = 0 }},
		{"zero idle expiry", "idleExpiry", func(l *Limits) { l.IdleExpiry = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validLimits()
			tt.mut(&l)

			err := l.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigurationError, got %T", err)
			}
			if cfgErr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestRateLimitExceeded_IsAnError(t *testing.T) {
	var err error = &RateLimitExceeded{ClientKey: "1.2.3.4"}

	var rle *RateLimitExceeded
	if !errors.As(err, &rle) {
		t.Fatalf("expected errors.As to match")
	}
	if rle.ClientKey != "1.2.3.4" {
		t.Fatalf("expected client key 1.2.3.4, got %q", rle.ClientKey)
	}
}

func TestStatsEvent_Outcome(t *testing.T) {
	if got := (StatsEvent{Allowed: true}).Outcome(); got != OutcomeAllowed {
		t.Fatalf("expected %q, got %q", OutcomeAllowed, got)
	}
	if got := (StatsEvent{}).Outcome(); got != OutcomeBlocked {
		t.Fatalf("expected %q, got %q", OutcomeBlocked, got)
	}
}
