package server

import (
	"testing"
	"time"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := newRateLimiter(3, time.Hour)

	for i := range 3 {
		if !rl.allow() {
			t.Fatalf("allow() #%d = false within burst", i+1)
		}
	}
	if rl.allow() {
		t.Error("allow() = true after burst exhausted")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := newRateLimiter(2, 50*time.Millisecond)

	rl.allow()
	rl.allow()
	if rl.allow() {
		t.Fatal("allow() = true after burst exhausted")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.allow() {
		t.Error("allow() = false after refill interval")
	}
}

func TestRateLimiterInvalidParameters(t *testing.T) {
	rl := newRateLimiter(0, 0)
	if !rl.allow() {
		t.Error("allow() = false for first message with fallback parameters")
	}
}

func TestClientCheckRateLimit(t *testing.T) {
	cfg := NewConfig()
	cfg.RateLimit = RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	c := NewClient(nil, nil, newTestEnv(t).svc, *cfg, "127.0.0.1:5")

	got := []bool{c.checkRateLimit(), c.checkRateLimit(), c.checkRateLimit()}
	want := []bool{true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("checkRateLimit() #%d = %v, want %v", i+1, got[i], want[i])
		}
	}
}
