package model

// RequestContext carries the caller-visible attributes of the request being
// scored. It is built by the transport layer and passed through unchanged.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// ActivitySnapshot is the short-horizon activity the external store has
// aggregated for the user at evaluation time.
type ActivitySnapshot struct {
	CallsPerMinute float64
	DataAccessedMB float64
	FailedAuths    int
	TotalAuths     int
}

// ThreatFeatures is the normalized behavioral feature vector. It is ephemeral
// and recomputed on every evaluation, never persisted on its own.
type ThreatFeatures struct {
	HourAnomaly      float64
	NewLocation      float64
	NewDevice        float64
	APICallFrequency float64
	DataAccessVolume float64
	FailedAuthRatio  float64
}

// Map renders the vector for event details, keeping the historical key names.
func (f ThreatFeatures) Map() map[string]float64 {
	return map[string]float64{
		"hour_anomaly":       f.HourAnomaly,
		"new_location":       f.NewLocation,
		"new_device":         f.NewDevice,
		"api_call_frequency": f.APICallFrequency,
		"data_access_volume": f.DataAccessVolume,
		"failed_auth_ratio":  f.FailedAuthRatio,
	}
}

type ThreatEvaluation struct {
	RiskScore          float64       `json:"risk_score"`
	Level              SecurityLevel `json:"threat_level"`
	RecommendedActions []string      `json:"recommended_actions"`
	Block              bool          `json:"blocking_required"`
}
