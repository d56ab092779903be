package models

import "time"

// JobStatus is the lifecycle state of a background clustering job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents a clustering job over an uploaded table
type Job struct {
	ID          string      `json:"id"`
	Algorithm   string      `json:"algorithm"`
	Records     int         `json:"records"`
	Status      JobStatus   `json:"status"`
	Progress    JobProgress `json:"progress"`
	Result      *JobResult  `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// Finished reports whether the job reached a terminal state
func (j *Job) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

type JobProgress struct {
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
}

// JobResult summarizes a completed run; the full report is fetched separately
type JobResult struct {
	RunID            string  `json:"runId"`
	Groups           int     `json:"groups"`
	NumCommunities   int     `json:"numCommunities"` // summed over groups
	MeanModularity   float64 `json:"meanModularity"` // over non-empty groups
	ProcessingTimeMS int64   `json:"processingTimeMs"`
}

// APIResponse is the JSON envelope of every API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
