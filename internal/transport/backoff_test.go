package transport

import (
	"testing"
	"time"
)

func TestPolicyDelayGrowsGeometrically(t *testing.T) {
	p := Policy{
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  10,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestPolicyDelayZeroAndNegativeAttempts(t *testing.T) {
	p := DefaultPolicy()
	if got := p.Delay(0); got != p.InitialDelay {
		t.Errorf("Delay(0) = %v, want %v", got, p.InitialDelay)
	}
	if got := p.Delay(-3); got != p.InitialDelay {
		t.Errorf("Delay(-3) = %v, want %v", got, p.InitialDelay)
	}
}

func TestPolicyExhausted(t *testing.T) {
	p := Policy{InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute, MaxAttempts: 10}

	if p.Exhausted(1) {
		t.Error("attempt 1 reported exhausted")
	}
	if p.Exhausted(10) {
		t.Error("attempt 10 reported exhausted with a budget of 10")
	}
	if !p.Exhausted(11) {
		t.Error("attempt 11 not reported exhausted with a budget of 10")
	}
}

func TestPolicyExhaustedUnbounded(t *testing.T) {
	p := Policy{InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute, MaxAttempts: 0}
	if p.Exhausted(1_000_000) {
		t.Error("unbounded policy reported exhausted")
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.InitialDelay != time.Second || p.Multiplier != 2.0 || p.MaxDelay != 30*time.Second || p.MaxAttempts != 10 {
		t.Errorf("unexpected defaults: %+v", p)
	}
}
