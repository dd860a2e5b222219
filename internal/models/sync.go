// internal/models/sync.go
package models

import "time"

// SyncState is the state machine value for the sync runner.
type SyncState string

const (
	SyncStateIdle    SyncState = "idle"
	SyncStateRunning SyncState = "running"
)

// SyncResult summarizes one complete synchronization cycle.
type SyncResult struct {
	RunID            string     `json:"run_id"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	DurationMs       int64      `json:"duration_ms"`
	Success          bool       `json:"success"`
	Fetched          int        `json:"fetched"`
	Created          int        `json:"created"`
	Updated          int        `json:"updated"`
	Failed           int        `json:"failed"`
	ReconcileCreated int        `json:"reconcile_created"`
	ReconcileUpdated int        `json:"reconcile_updated"`
	Error            string     `json:"error,omitempty"`
}

// SyncStatistics are rolling counters across the life of the process.
type SyncStatistics struct {
	TotalRuns     int64 `json:"total_runs"`
	SuccessRuns   int64 `json:"success_runs"`
	FailedRuns    int64 `json:"failed_runs"`
	AvgDurationMs int64 `json:"avg_duration_ms"`
}

// SyncStatus is the full operational picture reported to the dashboard.
type SyncStatus struct {
	Enabled        bool           `json:"enabled"`
	Running        bool           `json:"running"`
	State          SyncState      `json:"state"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	LastSyncResult *SyncResult    `json:"last_sync_result,omitempty"`
	Statistics     SyncStatistics `json:"statistics"`
}
