package model

import "time"

// RateLimitPolicy is one row of the static action → quota table. FailClosed
// marks actions whose checks must deny when the backing store is unreachable.
type RateLimitPolicy struct {
	MaxRequests int
	Window      time.Duration
	FailClosed  bool
}

// Identifiers are the dimensions a request is counted under. Empty fields
// are skipped; a request is allowed only when every present dimension is
// under quota.
type Identifiers struct {
	IPAddress string
	UserID    string
	UserAgent string
}
