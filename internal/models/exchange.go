package models

import "time"

// Exchange is the journal record of one relay request. It holds counters and timings only; the
// conversation content itself is never stored.
type Exchange struct {
	ID          string         `json:"id"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
	Messages    int            `json:"messages"`
	Deltas      int            `json:"deltas"`
	OutputChars int            `json:"outputChars"`
	Status      ExchangeStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
}

// ExchangeStatus describes how a relay request ended.
type ExchangeStatus string

const (
	// ExchangeCompleted means the vendor stream ended and the sentinel was written.
	ExchangeCompleted ExchangeStatus = "completed"
	// ExchangeAborted means the client went away before the vendor stream ended.
	ExchangeAborted ExchangeStatus = "aborted"
	// ExchangeFailed means the vendor returned an error.
	ExchangeFailed ExchangeStatus = "failed"
)

// Duration returns how long the exchange took.
func (e Exchange) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}
