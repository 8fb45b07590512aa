// Package scheduler implements the prefetch jobs that keep the history cache
// warm for saved queries.
//
// Jobs run in two modes: per-message from the SQS-triggered prefetch worker
// (Process), and as a periodic sweep over every saved query (RefreshAll),
// triggered either by an EventBridge rule or by the local gocron runner.
package scheduler

import "time"

// TaskType identifies which job a scheduled invocation should run.
type TaskType string

const (
	TaskRefreshSavedQueries TaskType = "refresh_saved_queries"
)

// SchedulePayload is the JSON payload an EventBridge rule sends to the
// prefetch worker.
//
//	{
//	  "task": "refresh_saved_queries",
//	  "reference_time": "2026-02-06T03:00:00Z"  // optional
//	}
type SchedulePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for manual invocation. If nil, the
	// service clock is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Prefetch outcomes, used as the Result dimension of PrefetchProcessed.
const (
	PrefetchWarmed  = "warmed"
	PrefetchSkipped = "skipped"
	PrefetchFailed  = "failed"
)
