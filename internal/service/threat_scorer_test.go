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

const (
	knownIP    = "203.0.113.10"
	knownAgent = "Mozilla/5.0 (X11; Linux x86_64)"
)

func newTestScorer(activity *memActivityReader) (*ThreatScorer, *memEventStore) {
	events := newMemEventStore()
	scorer := NewThreatScorer(activity, newTestEventLog(events), zap.NewNop())
	// Noon UTC, matching the default typical hour.
	scorer.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return scorer, events
}

func TestThreatScorerBenignRequest(t *testing.T) {
	activity := &memActivityReader{
		ips:     []string{knownIP},
		agents:  []string{knownAgent},
		hour:    12,
		hasHour: true,
	}
	scorer, events := newTestScorer(activity)

	eval, err := scorer.Evaluate(context.Background(), "user-1",
		model.RequestContext{IPAddress: knownIP, UserAgent: knownAgent},
		model.ActivitySnapshot{CallsPerMinute: 5, DataAccessedMB: 10, FailedAuths: 0, TotalAuths: 10},
	)
	require.NoError(t, err)

	// 0.05*0.15 + 0.01*0.1 = 0.0085, everything else zero.
	assert.InDelta(t, 0.0085, eval.RiskScore, 0.0001)
	assert.Equal(t, model.SeverityLow, eval.Level)
	assert.False(t, eval.Block)
	assert.Empty(t, eval.RecommendedActions)

	raw, readErr := events.RecentEvents(context.Background(), 10)
	require.NoError(t, readErr)
	assert.Empty(t, raw, "benign evaluations are not logged")
}

func TestThreatScorerCriticalRequest(t *testing.T) {
	activity := &memActivityReader{
		ips:     []string{knownIP},
		agents:  []string{knownAgent},
		hour:    12,
		hasHour: true,
	}
	scorer, events := newTestScorer(activity)

	eval, err := scorer.Evaluate(context.Background(), "user-1",
		model.RequestContext{IPAddress: "192.0.2.99", UserAgent: "curl/8.5.0"},
		model.ActivitySnapshot{FailedAuths: 10, TotalAuths: 10},
	)
	require.NoError(t, err)

	// new location 0.3 + new device 0.25 + failed auth 0.4.
	assert.InDelta(t, 0.95, eval.RiskScore, 0.0001)
	assert.Equal(t, model.SeverityCritical, eval.Level)
	assert.True(t, eval.Block)
	assert.Equal(t, []string{"block_access", "alert_admin", "require_account_verification"}, eval.RecommendedActions)

	raw, readErr := events.RecentEvents(context.Background(), 10)
	require.NoError(t, readErr)
	require.Len(t, raw, 1)

	var event model.SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &event))
	assert.Equal(t, model.ThreatUnusualActivity, event.EventType)
	assert.Equal(t, model.SeverityCritical, event.Severity)
	assert.InDelta(t, 1.0, event.Details["new_location"].(float64), 0.0001)
	assert.InDelta(t, 1.0, event.Details["failed_auth_ratio"].(float64), 0.0001)
}

func TestThreatScorerMissingIdentifiersCountAsNew(t *testing.T) {
	activity := &memActivityReader{
		ips:     []string{knownIP},
		agents:  []string{knownAgent},
		hour:    12,
		hasHour: true,
	}
	scorer, _ := newTestScorer(activity)

	// Omitting the User-Agent header must not read as a familiar device:
	// new location 0.3 + new device 0.25 + failed auth 0.4 = 0.95.
	eval, err := scorer.Evaluate(context.Background(), "user-1",
		model.RequestContext{IPAddress: "192.0.2.99", UserAgent: ""},
		model.ActivitySnapshot{FailedAuths: 10, TotalAuths: 10},
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, eval.RiskScore, 0.0001)
	assert.Equal(t, model.SeverityCritical, eval.Level)
	assert.True(t, eval.Block)

	// Same for a request with no resolvable client address.
	eval, err = scorer.Evaluate(context.Background(), "user-1",
		model.RequestContext{IPAddress: "", UserAgent: knownAgent},
		model.ActivitySnapshot{},
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, eval.RiskScore, 0.0001)
}

func TestThreatScorerHighRequiresMFA(t *testing.T) {
	activity := &memActivityReader{
		ips:     []string{knownIP},
		agents:  []string{knownAgent},
		hour:    12,
		hasHour: true,
	}
	scorer, _ := newTestScorer(activity)

	// new location 0.3 + new device 0.25 + call freq 0.15 = 0.70.
	eval, err := scorer.Evaluate(context.Background(), "user-1",
		model.RequestContext{IPAddress: "192.0.2.99", UserAgent: "curl/8.5.0"},
		model.ActivitySnapshot{CallsPerMinute: 100},
	)
	require.NoError(t, err)

	assert.Equal(t, model.SeverityHigh, eval.Level)
	assert.False(t, eval.Block)
	assert.Equal(t, []string{"require_mfa", "additional_verification"}, eval.RecommendedActions)
}

func TestThreatScorerHourAnomaly(t *testing.T) {
	activity := &memActivityReader{
		ips:     []string{knownIP},
		agents:  []string{knownAgent},
		hour:    14,
		hasHour: true,
	}
	scorer, _ := newTestScorer(activity)
	// 02:00 against a 14:00 habit: |2-14|/12 = 1.0.
	scorer.now = func() time.Time {
		return time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	}

	eval, err := scorer.Evaluate(context.Background(), "user-1",
		model.RequestContext{IPAddress: knownIP, UserAgent: knownAgent},
		model.ActivitySnapshot{},
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, eval.RiskScore, 0.0001)
	assert.Equal(t, model.SeverityLow, eval.Level)
}

func TestThreatScorerColdHistoryDegrades(t *testing.T) {
	activity := &memActivityReader{err: errors.New("activity store down")}
	scorer, _ := newTestScorer(activity)

	eval, err := scorer.Evaluate(context.Background(), "user-1",
		model.RequestContext{IPAddress: knownIP, UserAgent: knownAgent},
		model.ActivitySnapshot{},
	)
	require.NoError(t, err, "scoring must not fail on missing history")

	// Unknown history treats location and device as new: 0.3 + 0.25.
	assert.InDelta(t, 0.55, eval.RiskScore, 0.0001)
	assert.Equal(t, model.SeverityMedium, eval.Level)
	assert.False(t, eval.Block)
}

func TestThreatScorerScoreClamped(t *testing.T) {
	activity := &memActivityReader{}
	scorer, _ := newTestScorer(activity)
	scorer.now = func() time.Time {
		return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	}

	eval, err := scorer.Evaluate(context.Background(), "user-1",
		model.RequestContext{IPAddress: "192.0.2.99", UserAgent: "curl/8.5.0"},
		model.ActivitySnapshot{CallsPerMinute: 1000, DataAccessedMB: 5000, FailedAuths: 20, TotalAuths: 20},
	)
	require.NoError(t, err)
	assert.Equal(t, 1.0, eval.RiskScore)
	assert.Equal(t, model.SeverityCritical, eval.Level)
	assert.True(t, eval.Block)
}
