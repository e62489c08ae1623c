package ledger

import "time"

// Record is one dated snapshot of a metric's absolute value for a user.
// The value is cumulative, not a delta. There is at most one record per
// (metric, user, date) triple; a same-day append overwrites the value.
type Record struct {
	ID         int       `json:"id"`
	Metric     string    `json:"metric"`
	UserID     int       `json:"userId"`
	Value      int       `json:"value"`
	RecordedAt time.Time `json:"recordedAt"`
}
