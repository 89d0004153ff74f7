package model

import "time"

// JobStatus is the lifecycle state of a bulk enrichment job.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

// JobProgress holds the live counters a polling caller observes. Counters
// update incrementally while the job runs.
type JobProgress struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Conflicts int `json:"conflicts"`
	NotFound  int `json:"not_found"`
	Errors    int `json:"errors"`
}

// EnrichmentJob is a background bulk enrichment run persisted as a polled
// row. There is no mid-flight cancellation: a job transitions to failed only
// after an error is caught and recorded on the row.
type EnrichmentJob struct {
	ID        string      `json:"id"`
	Status    JobStatus   `json:"status"`
	DryRun    bool        `json:"dry_run"`
	Total     int         `json:"total"`
	Progress  JobProgress `json:"progress"`
	Error     string      `json:"error,omitempty"`
	Results   []byte      `json:"results,omitempty"` // per-item apply results, JSON
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
