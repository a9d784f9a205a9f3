package service

import (
	"context"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/model"
)

// ActivityReader exposes the per-user behavioral history the scorer compares
// incoming requests against.
type ActivityReader interface {
	KnownIPs(ctx context.Context, userID string) ([]string, error)
	KnownAgents(ctx context.Context, userID string) ([]string, error)
	TypicalLoginHour(ctx context.Context, userID string) (float64, bool, error)
}

// Feature weights. They sum to more than 1.0 on purpose: several maxed
// features saturate the score rather than averaging each other down.
const (
	weightHourAnomaly      = 0.2
	weightNewLocation      = 0.3
	weightNewDevice        = 0.25
	weightCallFrequency    = 0.15
	weightDataVolume       = 0.1
	weightFailedAuthRatio  = 0.4
	defaultTypicalHour     = 12.0
	thresholdCritical      = 0.8
	thresholdHigh          = 0.6
	thresholdMedium        = 0.3
	callFrequencyScaleMax  = 100.0
	dataVolumeScaleMaxMB   = 1000.0
)

// ThreatScorer turns a request plus recent activity into a bounded risk
// score and a set of recommended actions. Missing history reads degrade to
// empty baselines; scoring never fails on a cold cache.
type ThreatScorer struct {
	activity ActivityReader
	events   *EventLog
	logger   *zap.Logger
	now      func() time.Time
}

func NewThreatScorer(activity ActivityReader, events *EventLog, logger *zap.Logger) *ThreatScorer {
	return &ThreatScorer{
		activity: activity,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// Evaluate scores one request. High and critical outcomes are recorded on
// the audit trail with the full feature breakdown.
func (s *ThreatScorer) Evaluate(ctx context.Context, userID string, reqCtx model.RequestContext, activity model.ActivitySnapshot) (*model.ThreatEvaluation, error) {
	features := s.extractFeatures(ctx, userID, reqCtx, activity)
	score := scoreFeatures(features)
	level := classify(score)

	eval := &model.ThreatEvaluation{
		RiskScore:          score,
		Level:              level,
		RecommendedActions: recommendedActions(level),
		Block:              level == model.SeverityCritical,
	}

	if level.Alertable() {
		details := make(map[string]any, 7)
		for k, v := range features.Map() {
			details[k] = v
		}
		details["risk_score"] = score
		event := newSecurityEvent(userID, model.ThreatUnusualActivity, level, reqCtx, details, score)
		if err := s.events.Append(ctx, event); err != nil {
			s.logger.Error("Failed to log threat evaluation",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}

	return eval, nil
}

func (s *ThreatScorer) extractFeatures(ctx context.Context, userID string, reqCtx model.RequestContext, activity model.ActivitySnapshot) model.ThreatFeatures {
	var features model.ThreatFeatures

	hour := float64(s.now().UTC().Hour())
	typical, found, err := s.activity.TypicalLoginHour(ctx, userID)
	if err != nil {
		s.logger.Warn("Login hour history unavailable, using default",
			zap.String("user_id", userID),
			zap.Error(err))
		found = false
	}
	if !found {
		typical = defaultTypicalHour
	}
	// 12 is the farthest two hours on a 24h clock can be apart.
	features.HourAnomaly = math.Min(math.Abs(hour-typical)/12.0, 1.0)

	knownIPs, err := s.activity.KnownIPs(ctx, userID)
	if err != nil {
		s.logger.Warn("IP history unavailable, treating location as new",
			zap.String("user_id", userID),
			zap.Error(err))
		knownIPs = nil
	}
	// An absent IP is still not in the known set; omitting the header must
	// not read as a familiar location.
	if !slices.Contains(knownIPs, reqCtx.IPAddress) {
		features.NewLocation = 1.0
	}

	knownAgents, err := s.activity.KnownAgents(ctx, userID)
	if err != nil {
		s.logger.Warn("Device history unavailable, treating device as new",
			zap.String("user_id", userID),
			zap.Error(err))
		knownAgents = nil
	}
	if !slices.Contains(knownAgents, reqCtx.UserAgent) {
		features.NewDevice = 1.0
	}

	features.APICallFrequency = math.Min(activity.CallsPerMinute/callFrequencyScaleMax, 1.0)
	features.DataAccessVolume = math.Min(activity.DataAccessedMB/dataVolumeScaleMaxMB, 1.0)
	if activity.TotalAuths > 0 {
		features.FailedAuthRatio = math.Min(float64(activity.FailedAuths)/float64(activity.TotalAuths), 1.0)
	}

	return features
}

func scoreFeatures(f model.ThreatFeatures) float64 {
	score := f.HourAnomaly*weightHourAnomaly +
		f.NewLocation*weightNewLocation +
		f.NewDevice*weightNewDevice +
		f.APICallFrequency*weightCallFrequency +
		f.DataAccessVolume*weightDataVolume +
		f.FailedAuthRatio*weightFailedAuthRatio
	return math.Min(score, 1.0)
}

func classify(score float64) model.SecurityLevel {
	switch {
	case score >= thresholdCritical:
		return model.SeverityCritical
	case score >= thresholdHigh:
		return model.SeverityHigh
	case score >= thresholdMedium:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func recommendedActions(level model.SecurityLevel) []string {
	switch level {
	case model.SeverityCritical:
		return []string{"block_access", "alert_admin", "require_account_verification"}
	case model.SeverityHigh:
		return []string{"require_mfa", "additional_verification"}
	default:
		return []string{}
	}
}
