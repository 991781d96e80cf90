// Package metrics tracks per-image generation outcomes in memory and
// exports them to Prometheus.
package metrics

import "time"

// Task statuses.
const (
	TaskStatusSuccess = "success"
	TaskStatusError   = "error"
)

// TaskRecord is one finished image attempt.
type TaskRecord struct {
	RunID     string        `json:"run_id"`
	Row       int           `json:"row"`
	Image     int           `json:"image"`
	Status    string        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Reason    string        `json:"reason,omitempty"`
}

// TaskMetrics aggregates every TaskRecord seen so far.
type TaskMetrics struct {
	TotalProcessed int64         `json:"total_processed"`
	TotalSuccess   int64         `json:"total_success"`
	TotalErrors    int64         `json:"total_errors"`
	SuccessRate    float64       `json:"success_rate"` // 0-100
	AvgDuration    time.Duration `json:"avg_duration"`

	// ErrorsByReason counts failures per short reason ("HTTP 429").
	ErrorsByReason map[string]int64 `json:"errors_by_reason"`
}
