package redis

import (
	"context"
	"fmt"
	"time"

	"sentinel/internal/client"
)

const (
	eventsKey = "security_events"
	alertsKey = "security_alerts"

	// Alerts are drained by the external notifier, so their backlog can be
	// much smaller than the audit trail.
	alertCap = 1000
)

// EventLogCache stores the append-only audit trail and the alert queue as
// capped Redis lists, newest first.
type EventLogCache struct {
	client *client.RedisClient
	cap    int64
}

func NewEventLogCache(client *client.RedisClient, eventCap int64) *EventLogCache {
	if eventCap <= 0 {
		eventCap = 10000
	}
	return &EventLogCache{client: client, cap: eventCap}
}

func (c *EventLogCache) PushEvent(ctx context.Context, payload []byte) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.PushCapped(ctx, eventsKey, payload, c.cap-1); err != nil {
		return fmt.Errorf("failed to append security event: %w", err)
	}
	return nil
}

func (c *EventLogCache) RecentEvents(ctx context.Context, n int64) ([]string, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	events, err := c.client.LRange(ctx, eventsKey, 0, n-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read security events: %w", err)
	}
	return events, nil
}

func (c *EventLogCache) PushAlert(ctx context.Context, payload []byte) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.PushCapped(ctx, alertsKey, payload, alertCap-1); err != nil {
		return fmt.Errorf("failed to enqueue security alert: %w", err)
	}
	return nil
}

func (c *EventLogCache) RecentAlerts(ctx context.Context, n int64) ([]string, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	alerts, err := c.client.LRange(ctx, alertsKey, 0, n-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read security alerts: %w", err)
	}
	return alerts, nil
}
