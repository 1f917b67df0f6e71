package model

import "time"

// JobStatus represents the current state of a pipeline job.
type JobStatus string

const (
	JobStatusQueued        JobStatus = "queued"
	JobStatusScraping      JobStatus = "scraping"
	JobStatusClassifying   JobStatus = "classifying"
	JobStatusExtracting    JobStatus = "extracting"
	JobStatusGenerating    JobStatus = "generating"
	JobStatusDone          JobStatus = "done"
	JobStatusFailedPartial JobStatus = "failed_partial"
	JobStatusFailed        JobStatus = "failed"
	JobStatusCancelled     JobStatus = "cancelled"
)

// Terminal reports whether the status is final. A caller polling a job
// always ends up observing a terminal status, never a silent hang.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusDone, JobStatusFailedPartial, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// StageStatus represents the state of one stage within a job.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult records the outcome of one pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PipelineJob tracks one company's profile-generation run. Owned
// exclusively by the orchestrator; terminal once done/failed.
type PipelineJob struct {
	JobID       string        `json:"job_id"`
	CompanyID   string        `json:"company_id"`
	CompanyName string        `json:"company_name"`
	Location    string        `json:"location"`
	Objective   string        `json:"objective"`
	Status      JobStatus     `json:"status"`
	ProgressPct int           `json:"progress_pct"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	ErrorLog    []string      `json:"error_log,omitempty"`
	Stages      []StageResult `json:"stages,omitempty"`
}
