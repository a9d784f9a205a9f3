package model

import "time"

// ThreatType classifies the adversarial behavior an event records.
type ThreatType string

const (
	ThreatBruteForce         ThreatType = "brute_force"
	ThreatCredentialStuffing ThreatType = "credential_stuffing"
	ThreatUnusualActivity    ThreatType = "unusual_activity"
	ThreatDataExfiltration   ThreatType = "data_exfiltration"
	ThreatAPIAbuse           ThreatType = "api_abuse"
)

type SecurityLevel string

const (
	SeverityLow      SecurityLevel = "low"
	SeverityMedium   SecurityLevel = "medium"
	SeverityHigh     SecurityLevel = "high"
	SeverityCritical SecurityLevel = "critical"
)

// Alertable reports whether events at this severity fan out to the alert queue.
func (l SecurityLevel) Alertable() bool {
	return l == SeverityHigh || l == SeverityCritical
}

// SecurityEvent is an immutable audit record. It is appended to the capped
// event list once and never updated or individually deleted.
type SecurityEvent struct {
	EventID     string            `json:"event_id"`
	UserID      string            `json:"user_id,omitempty"`
	EventType   ThreatType        `json:"event_type"`
	Severity    SecurityLevel     `json:"severity"`
	Timestamp   time.Time         `json:"timestamp"`
	IPAddress   string            `json:"ip_address"`
	UserAgent   string            `json:"user_agent"`
	Details     map[string]any    `json:"details"`
	RiskScore   float64           `json:"risk_score"`
	Geolocation map[string]string `json:"geolocation,omitempty"`
}

// SecurityAlert is the payload enqueued for high and critical events.
// Delivery (chat, email) belongs to an external collaborator.
type SecurityAlert struct {
	AlertType  string         `json:"alert_type"`
	Severity   SecurityLevel  `json:"severity"`
	UserID     string         `json:"user_id,omitempty"`
	ThreatType ThreatType     `json:"threat_type"`
	RiskScore  float64        `json:"risk_score"`
	Timestamp  string         `json:"timestamp"`
	Details    map[string]any `json:"details"`
}

// DashboardData is the operational-visibility query result.
type DashboardData struct {
	RecentEvents     []SecurityEvent `json:"recent_events"`
	ActiveAlerts     []SecurityAlert `json:"active_alerts"`
	ThreatStatistics map[string]int  `json:"threat_statistics"`
	TotalEvents      int             `json:"total_events"`
	HighRiskEvents   int             `json:"high_risk_events"`
}
