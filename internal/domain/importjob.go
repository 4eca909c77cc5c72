package domain

import "time"

// ImportStatus is the lifecycle of an upload job.
type ImportStatus string

const (
	ImportQueued    ImportStatus = "queued"
	ImportRunning   ImportStatus = "running"
	ImportCompleted ImportStatus = "completed"
	ImportFailed    ImportStatus = "failed"
)

// ImportJob tracks a background import started over HTTP.
type ImportJob struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	FileName     string       `json:"file_name"`
	Status       ImportStatus `json:"status"`
	Progress     int          `json:"progress"`
	TotalRows    int          `json:"total_rows"`
	Imported     int          `json:"imported"`
	Dropped      int          `json:"dropped"`
	FailedChunks int          `json:"failed_chunks"`
	Error        string       `json:"error,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
}

// ImportResult summarises a finished import.
type ImportResult struct {
	Contacts     []Contact `json:"contacts"`
	TotalRows    int       `json:"total_rows"`
	Dropped      int       `json:"dropped"`
	FailedChunks int       `json:"failed_chunks"`
}
