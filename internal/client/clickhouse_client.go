package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"sentinel/internal/config"
	"sentinel/internal/model"
	"sentinel/internal/util"
)

// ClickHouseClient archives security events for forensic retention beyond
// the capped Redis list. Archival is optional and best-effort.
type ClickHouseClient struct {
	conn   driver.Conn
	config *config.ClickhouseConfig
	mu     sync.RWMutex
}

const createEventsTableDDL = `
CREATE TABLE IF NOT EXISTS security_events (
    event_id    String,
    user_id     String,
    event_type  LowCardinality(String),
    severity    LowCardinality(String),
    event_time  DateTime64(3, 'UTC'),
    ip_address  String,
    user_agent  String,
    risk_score  Float64,
    details     String
) ENGINE = MergeTree()
ORDER BY (event_time, event_type)
TTL toDateTime(event_time) + INTERVAL 1 YEAR
`

func NewClickHouseClient(cfg *config.Config, logger *zap.Logger) (*ClickHouseClient, error) {
	chConfig := cfg.Clickhouse

	opts := &ch.Options{
		Addr: []string{chConfig.URL},
		Auth: ch.Auth{
			Username: chConfig.Username,
			Password: chConfig.Password,
			Database: chConfig.Database,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     20,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: ch.ConnOpenInOrder,
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := conn.Exec(ctx, createEventsTableDDL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure security_events table: %w", err)
	}

	util.Info("ClickHouse client initialized",
		zap.String("addr", chConfig.URL),
		zap.String("database", chConfig.Database),
	)

	return &ClickHouseClient{
		conn:   conn,
		config: &chConfig,
	}, nil
}

// ArchiveEvent inserts one event row. Details arrive pre-serialized so the
// archive stays schema-stable as detail payloads evolve.
func (c *ClickHouseClient) ArchiveEvent(ctx context.Context, event *model.SecurityEvent, detailsJSON string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.conn.Exec(ctx, `
		INSERT INTO security_events
			(event_id, user_id, event_type, severity, event_time, ip_address, user_agent, risk_score, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID,
		event.UserID,
		string(event.EventType),
		string(event.Severity),
		event.Timestamp,
		event.IPAddress,
		event.UserAgent,
		event.RiskScore,
		detailsJSON,
	)
}

func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return fmt.Errorf("clickhouse connection not initialized")
	}
	return c.conn.Ping(ctx)
}

func (c *ClickHouseClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
