package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sentinel/internal/model"
)

// EventStore is the capped-list storage behind the audit trail and the
// alert queue.
type EventStore interface {
	PushEvent(ctx context.Context, payload []byte) error
	RecentEvents(ctx context.Context, n int64) ([]string, error)
	PushAlert(ctx context.Context, payload []byte) error
	RecentAlerts(ctx context.Context, n int64) ([]string, error)
}

// AlertPublisher mirrors alert payloads to an external delivery channel.
// Publishing is enqueue-only; this core never sends notifications itself.
type AlertPublisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// EventArchiver copies events into long-term storage past the capped list.
type EventArchiver interface {
	ArchiveEvent(ctx context.Context, event *model.SecurityEvent, detailsJSON string) error
}

const (
	dashboardEventWindow = 100
	dashboardAlertWindow = 50
	dashboardEventLimit  = 20
	dashboardAlertLimit  = 10
	highRiskThreshold    = 0.7
)

// EventLog is the append-only security audit trail. Events are never
// updated or individually removed; the store truncates oldest-first.
type EventLog struct {
	store     EventStore
	publisher AlertPublisher // optional
	archiver  EventArchiver  // optional
	logger    *zap.Logger
}

func NewEventLog(store EventStore, publisher AlertPublisher, archiver EventArchiver, logger *zap.Logger) *EventLog {
	return &EventLog{
		store:     store,
		publisher: publisher,
		archiver:  archiver,
		logger:    logger,
	}
}

// Append durably records a security event, then fans out alerts and the
// archive copy for high/critical severities. The durable write comes first:
// a failure there is the caller's error, everything after is best-effort.
func (l *EventLog) Append(ctx context.Context, event *model.SecurityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode security event: %w", err)
	}

	if err := l.store.PushEvent(ctx, payload); err != nil {
		return fmt.Errorf("failed to append security event: %w", err)
	}

	l.logger.Warn("Security event detected",
		zap.String("event_id", event.EventID),
		zap.String("user_id", event.UserID),
		zap.String("event_type", string(event.EventType)),
		zap.String("severity", string(event.Severity)),
		zap.Float64("risk_score", event.RiskScore),
		zap.String("ip_address", event.IPAddress),
	)

	if l.archiver != nil {
		details, _ := json.Marshal(event.Details)
		if err := l.archiver.ArchiveEvent(ctx, event, string(details)); err != nil {
			l.logger.Error("Failed to archive security event",
				zap.String("event_id", event.EventID),
				zap.Error(err))
		}
	}

	if event.Severity.Alertable() {
		l.triggerAlert(ctx, event)
	}

	return nil
}

func (l *EventLog) triggerAlert(ctx context.Context, event *model.SecurityEvent) {
	alert := model.SecurityAlert{
		AlertType:  "security_threat",
		Severity:   event.Severity,
		UserID:     event.UserID,
		ThreatType: event.EventType,
		RiskScore:  event.RiskScore,
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
		Details:    event.Details,
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		l.logger.Error("Failed to encode security alert", zap.Error(err))
		return
	}

	if err := l.store.PushAlert(ctx, payload); err != nil {
		l.logger.Error("Failed to enqueue security alert",
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return
	}

	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, event.UserID, payload); err != nil {
			l.logger.Error("Failed to publish security alert",
				zap.String("event_id", event.EventID),
				zap.Error(err))
		}
	}

	l.logger.Error("SECURITY ALERT TRIGGERED",
		zap.String("event_id", event.EventID),
		zap.String("user_id", event.UserID),
		zap.String("severity", string(event.Severity)),
		zap.Float64("risk_score", event.RiskScore),
	)
}

// Dashboard returns the operational-visibility snapshot: the latest events
// and alerts plus counts derived from the recent-event window.
func (l *EventLog) Dashboard(ctx context.Context) (*model.DashboardData, error) {
	var rawEvents, rawAlerts []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawEvents, err = l.store.RecentEvents(gctx, dashboardEventWindow)
		return err
	})
	g.Go(func() error {
		var err error
		rawAlerts, err = l.store.RecentAlerts(gctx, dashboardAlertWindow)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to read dashboard data: %w", err)
	}

	events := make([]model.SecurityEvent, 0, len(rawEvents))
	stats := make(map[string]int)
	highRisk := 0
	for _, raw := range rawEvents {
		var event model.SecurityEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			l.logger.Warn("Skipping undecodable security event", zap.Error(err))
			continue
		}
		stats[string(event.EventType)]++
		if event.RiskScore > highRiskThreshold {
			highRisk++
		}
		events = append(events, event)
	}

	alerts := make([]model.SecurityAlert, 0, len(rawAlerts))
	for _, raw := range rawAlerts {
		var alert model.SecurityAlert
		if err := json.Unmarshal([]byte(raw), &alert); err != nil {
			l.logger.Warn("Skipping undecodable security alert", zap.Error(err))
			continue
		}
		alerts = append(alerts, alert)
	}

	data := &model.DashboardData{
		RecentEvents:     events,
		ActiveAlerts:     alerts,
		ThreatStatistics: stats,
		TotalEvents:      len(events),
		HighRiskEvents:   highRisk,
	}
	if len(data.RecentEvents) > dashboardEventLimit {
		data.RecentEvents = data.RecentEvents[:dashboardEventLimit]
	}
	if len(data.ActiveAlerts) > dashboardAlertLimit {
		data.ActiveAlerts = data.ActiveAlerts[:dashboardAlertLimit]
	}

	return data, nil
}

// newSecurityEvent stamps identity and time; everything else is caller data.
func newSecurityEvent(userID string, threatType model.ThreatType, severity model.SecurityLevel, reqCtx model.RequestContext, details map[string]any, riskScore float64) *model.SecurityEvent {
	return &model.SecurityEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		EventType: threatType,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
		IPAddress: reqCtx.IPAddress,
		UserAgent: reqCtx.UserAgent,
		Details:   details,
		RiskScore: riskScore,
	}
}
