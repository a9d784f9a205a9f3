package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"sentinel/internal/model"
)

// CounterStore is the fixed-window counter storage. Increment must be a
// single atomic increment-with-expiry.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
}

// Known action names. Any other action falls back to the default policy.
const (
	ActionLogin         = "login"
	ActionAPICall       = "api_call"
	ActionAIRequest     = "ai_request"
	ActionPasswordReset = "password_reset"
	ActionMFAAttempt    = "mfa_attempt"
)

var defaultPolicy = model.RateLimitPolicy{MaxRequests: 100, Window: time.Hour}

// DefaultPolicies is the static action → quota table. It is configuration,
// not runtime state; FailClosed marks the auth-critical actions.
func DefaultPolicies() map[string]model.RateLimitPolicy {
	return map[string]model.RateLimitPolicy{
		ActionLogin:         {MaxRequests: 5, Window: 5 * time.Minute, FailClosed: true},
		ActionAPICall:       {MaxRequests: 1000, Window: time.Hour},
		ActionAIRequest:     {MaxRequests: 100, Window: time.Hour},
		ActionPasswordReset: {MaxRequests: 3, Window: time.Hour},
		ActionMFAAttempt:    {MaxRequests: 10, Window: 5 * time.Minute, FailClosed: true},
	}
}

// RateLimiter throttles per-action traffic over composite identifier
// dimensions. A request passes only when every present dimension is under
// quota; one hot dimension blocks the request regardless of the others.
type RateLimiter struct {
	counters CounterStore
	events   *EventLog
	policies map[string]model.RateLimitPolicy
	logger   *zap.Logger
}

func NewRateLimiter(counters CounterStore, events *EventLog, policies map[string]model.RateLimitPolicy, logger *zap.Logger) *RateLimiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &RateLimiter{
		counters: counters,
		events:   events,
		policies: policies,
		logger:   logger,
	}
}

func (r *RateLimiter) policyFor(action string) model.RateLimitPolicy {
	if policy, ok := r.policies[action]; ok {
		return policy
	}
	return defaultPolicy
}

// FingerprintUserAgent collapses a raw user-agent string into a stable,
// compact counter dimension.
func FingerprintUserAgent(userAgent string) string {
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(userAgent)))
}

func counterKeys(action string, ids model.Identifiers) []string {
	keys := make([]string, 0, 3)
	if ids.IPAddress != "" {
		keys = append(keys, fmt.Sprintf("%s:ip:%s", action, ids.IPAddress))
	}
	if ids.UserID != "" {
		keys = append(keys, fmt.Sprintf("%s:user:%s", action, ids.UserID))
	}
	if ids.UserAgent != "" {
		keys = append(keys, fmt.Sprintf("%s:ua:%s", action, FingerprintUserAgent(ids.UserAgent)))
	}
	return keys
}

// Allow checks every dimension against the action's quota and logs an abuse
// event when one trips. It does not increment; callers pair it with Record.
func (r *RateLimiter) Allow(ctx context.Context, action string, ids model.Identifiers) error {
	if err := r.check(ctx, action, ids); err != nil {
		if limitErr, ok := asRateLimited(err); ok {
			r.logAbuse(ctx, action, ids, limitErr.RetryAfter)
		}
		return err
	}
	return nil
}

// check is the silent variant used where the caller owns the event logging
// (MFA throttling records brute force, not generic abuse).
func (r *RateLimiter) check(ctx context.Context, action string, ids model.Identifiers) error {
	policy := r.policyFor(action)

	for _, key := range counterKeys(action, ids) {
		count, err := r.counters.Count(ctx, key)
		if err != nil {
			if policy.FailClosed {
				return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
			}
			// Availability beats throttling precision for ordinary actions.
			r.logger.Warn("Rate limit check failed open",
				zap.String("action", action),
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		if count >= int64(policy.MaxRequests) {
			return &model.RateLimitedError{Action: action, RetryAfter: policy.Window}
		}
	}
	return nil
}

// Record counts an admitted request on every present dimension, (re)arming
// each counter's window. The check/record pair is not atomic across
// dimensions; bursts can slightly over-admit, which is acceptable for a
// soft abuse deterrent.
func (r *RateLimiter) Record(ctx context.Context, action string, ids model.Identifiers) error {
	policy := r.policyFor(action)

	for _, key := range counterKeys(action, ids) {
		if _, err := r.counters.Increment(ctx, key, policy.Window); err != nil {
			if policy.FailClosed {
				return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
			}
			r.logger.Warn("Rate limit record failed open",
				zap.String("action", action),
				zap.String("key", key),
				zap.Error(err))
		}
	}
	return nil
}

// Enforce is the request-path entry point: admit and count, or fail with
// RateLimitedError carrying the retry-after hint.
func (r *RateLimiter) Enforce(ctx context.Context, action string, ids model.Identifiers) error {
	if err := r.Allow(ctx, action, ids); err != nil {
		return err
	}
	return r.Record(ctx, action, ids)
}

func (r *RateLimiter) logAbuse(ctx context.Context, action string, ids model.Identifiers, retryAfter time.Duration) {
	event := newSecurityEvent(
		ids.UserID,
		model.ThreatAPIAbuse,
		model.SeverityMedium,
		model.RequestContext{IPAddress: ids.IPAddress, UserAgent: ids.UserAgent},
		map[string]any{
			"action":              action,
			"rate_limit_exceeded": true,
			"retry_after":         int(retryAfter.Seconds()),
		},
		0.6,
	)
	if err := r.events.Append(ctx, event); err != nil {
		r.logger.Error("Failed to log abuse event",
			zap.String("action", action),
			zap.Error(err))
	}
}

func asRateLimited(err error) (*model.RateLimitedError, bool) {
	var limitErr *model.RateLimitedError
	if errors.As(err, &limitErr) {
		return limitErr, true
	}
	return nil, false
}
