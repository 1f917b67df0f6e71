// Package store persists pipeline output. Classification results and
// extraction candidates are keyed by (company_id, document_id) for
// re-derivation auditability; the live profile is keyed by company_id with
// prior versions retained for rollback and audit.
package store

import (
	"context"
	"errors"

	"github.com/sells-group/intel-pipeline/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status    model.JobStatus `json:"status,omitempty"`
	CompanyID string          `json:"company_id,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the intelligence pipeline.
// Write operations are keyed upserts or atomic replaces so that stage
// retries are safe (at-least-once execution, idempotent effects).
type Store interface {
	// Documents
	SaveDocuments(ctx context.Context, docs []model.Document) error
	ListDocuments(ctx context.Context, companyID string) ([]model.Document, error)

	// Classifications: one row per (company, document), overwritten on
	// re-classification.
	SaveClassifications(ctx context.Context, results []model.ClassificationResult) error
	ListClassifications(ctx context.Context, companyID string) ([]model.ClassificationResult, error)

	// Candidates: only accepted candidates are persisted; a new run
	// replaces the prior set for the (company, category) pair.
	ReplaceCandidates(ctx context.Context, companyID string, category model.ExtractionCategory, cands []model.ExtractionCandidate) error
	ListCandidates(ctx context.Context, companyID string) ([]model.ExtractionCandidate, error)

	// Profiles: the live profile is replaced atomically; the prior live
	// row moves to the version history in the same transaction.
	ReplaceProfile(ctx context.Context, p *model.CompanyProfile) (*model.CompanyProfile, error)
	GetProfile(ctx context.Context, companyID string) (*model.CompanyProfile, error)
	ListProfileVersions(ctx context.Context, companyID string) ([]model.CompanyProfile, error)

	// Jobs
	CreateJob(ctx context.Context, job *model.PipelineJob) error
	UpdateJob(ctx context.Context, job *model.PipelineJob) error
	GetJob(ctx context.Context, jobID string) (*model.PipelineJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.PipelineJob, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
