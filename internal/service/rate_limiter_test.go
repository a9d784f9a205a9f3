package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel/internal/model"
)

func newTestRateLimiter(t *testing.T) (*RateLimiter, *memCounterStore, *memEventStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	counters := newMemCounterStore(clock)
	events := newMemEventStore()
	limiter := NewRateLimiter(counters, newTestEventLog(events), DefaultPolicies(), zap.NewNop())
	return limiter, counters, events, clock
}

func TestRateLimiterQuotaBoundary(t *testing.T) {
	limiter, _, events, _ := newTestRateLimiter(t)
	ctx := context.Background()
	ids := model.Identifiers{IPAddress: "203.0.113.7", UserID: "user-1"}

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Enforce(ctx, ActionLogin, ids), "attempt %d should be admitted", i+1)
	}

	err := limiter.Allow(ctx, ActionLogin, ids)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRateLimited)

	var limitErr *model.RateLimitedError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, ActionLogin, limitErr.Action)
	assert.Equal(t, 5*time.Minute, limitErr.RetryAfter)

	raw, readErr := events.RecentEvents(ctx, 10)
	require.NoError(t, readErr)
	require.Len(t, raw, 1)

	var event model.SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &event))
	assert.Equal(t, model.ThreatAPIAbuse, event.EventType)
	assert.Equal(t, model.SeverityMedium, event.Severity)
	assert.InDelta(t, 0.6, event.RiskScore, 0.001)
	assert.Equal(t, true, event.Details["rate_limit_exceeded"])
	assert.EqualValues(t, 300, event.Details["retry_after"])
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	limiter, _, _, clock := newTestRateLimiter(t)
	ctx := context.Background()
	ids := model.Identifiers{IPAddress: "203.0.113.7"}

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Enforce(ctx, ActionLogin, ids))
	}
	require.Error(t, limiter.Allow(ctx, ActionLogin, ids))

	clock.Advance(5*time.Minute + time.Second)
	assert.NoError(t, limiter.Allow(ctx, ActionLogin, ids))
}

func TestRateLimiterConjunctiveDimensions(t *testing.T) {
	limiter, _, _, _ := newTestRateLimiter(t)
	ctx := context.Background()

	// Exhaust the shared IP via one user.
	shared := model.Identifiers{IPAddress: "198.51.100.2", UserID: "noisy"}
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Enforce(ctx, ActionLogin, shared))
	}

	// A different user behind the same IP is still blocked.
	other := model.Identifiers{IPAddress: "198.51.100.2", UserID: "quiet"}
	assert.ErrorIs(t, limiter.Allow(ctx, ActionLogin, other), model.ErrRateLimited)

	// The quiet user from a fresh IP passes.
	fresh := model.Identifiers{IPAddress: "198.51.100.3", UserID: "quiet"}
	assert.NoError(t, limiter.Allow(ctx, ActionLogin, fresh))
}

func TestRateLimiterUnknownActionUsesDefaultPolicy(t *testing.T) {
	limiter, counters, _, clock := newTestRateLimiter(t)
	ctx := context.Background()
	ids := model.Identifiers{UserID: "user-1"}

	for i := 0; i < 100; i++ {
		_, err := counters.Increment(ctx, "export_report:user:user-1", time.Hour)
		require.NoError(t, err)
	}
	assert.ErrorIs(t, limiter.Allow(ctx, "export_report", ids), model.ErrRateLimited)

	clock.Advance(time.Hour + time.Second)
	assert.NoError(t, limiter.Allow(ctx, "export_report", ids))
}

func TestRateLimiterFailureMode(t *testing.T) {
	limiter, counters, _, _ := newTestRateLimiter(t)
	ctx := context.Background()
	ids := model.Identifiers{IPAddress: "203.0.113.7", UserID: "user-1"}
	counters.failing = true

	// Ordinary actions fail open.
	assert.NoError(t, limiter.Allow(ctx, ActionAPICall, ids))
	assert.NoError(t, limiter.Record(ctx, ActionAPICall, ids))

	// Auth-critical actions fail closed.
	err := limiter.Allow(ctx, ActionLogin, ids)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, model.ErrRateLimited)
}

func TestFingerprintUserAgentStable(t *testing.T) {
	a := FingerprintUserAgent("Mozilla/5.0 (X11; Linux x86_64)")
	b := FingerprintUserAgent("Mozilla/5.0 (X11; Linux x86_64)")
	c := FingerprintUserAgent("curl/8.5.0")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestRateLimitedErrorUnwraps(t *testing.T) {
	err := &model.RateLimitedError{Action: ActionLogin, RetryAfter: time.Minute}
	assert.True(t, errors.Is(err, model.ErrRateLimited))
	assert.Contains(t, err.Error(), "login")
}
