package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sentinel/internal/client"
)

const (
	userIPsPrefix    = "user_ips:"
	userAgentsPrefix = "user_agents:"
	userHoursPrefix  = "user_login_hours:"
)

// ActivityCache is the read side of the per-user behavioral history the
// threat scorer consumes. The external activity store owns this data; the
// Record helpers exist so collaborators without their own writer can feed it.
type ActivityCache struct {
	client *client.RedisClient
}

func NewActivityCache(client *client.RedisClient) *ActivityCache {
	return &ActivityCache{client: client}
}

func (c *ActivityCache) KnownIPs(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	ips, err := c.client.SMembers(ctx, userIPsPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read known ips: %w", err)
	}
	return ips, nil
}

func (c *ActivityCache) KnownAgents(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	agents, err := c.client.SMembers(ctx, userAgentsPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read known agents: %w", err)
	}
	return agents, nil
}

// TypicalLoginHour returns the user's mean historical login hour, if the
// activity store has accumulated one.
func (c *ActivityCache) TypicalLoginHour(ctx context.Context, userID string) (float64, bool, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	val, found, err := c.client.Get(ctx, userHoursPrefix+userID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read typical login hour: %w", err)
	}
	if !found {
		return 0, false, nil
	}

	hour, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid login hour format: %w", err)
	}
	return hour, true, nil
}

func (c *ActivityCache) RecordObservedIP(ctx context.Context, userID, ip string) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	return c.client.SAdd(ctx, userIPsPrefix+userID, ip)
}

func (c *ActivityCache) RecordObservedAgent(ctx context.Context, userID, userAgent string) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	return c.client.SAdd(ctx, userAgentsPrefix+userID, userAgent)
}
