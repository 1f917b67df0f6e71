package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intel-pipeline/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit
// testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, company_id, company_name, location, objective, status, progress_pct, started_at, completed_at, error_log, stages`).
		WithArgs("missing-job").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "missing-job")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, company_id, company_name, location, objective, status, progress_pct, started_at, completed_at, error_log, stages`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "company_id", "company_name", "location", "objective",
			"status", "progress_pct", "started_at", "completed_at", "error_log", "stages",
		}).AddRow(
			"job-1", "co-1", "Acme", "Columbus, OH", "find growth signals",
			"classifying", 30, started, (*time.Time)(nil), []byte(nil), []byte(`[{"name":"scrape","status":"complete","duration_ms":900}]`),
		))

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusClassifying, job.Status)
	assert.Equal(t, 30, job.ProgressPct)
	assert.Nil(t, job.CompletedAt)
	require.Len(t, job.Stages, 1)
	assert.Equal(t, "scrape", job.Stages[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET status`).
		WithArgs("done", 100, (*time.Time)(nil), []byte(nil), []byte(nil), "missing-job").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateJob(context.Background(), &model.PipelineJob{
		JobID:       "missing-job",
		Status:      model.JobStatusDone,
		ProgressPct: 100,
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProfile_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT company_id, company_name, version, generated_at, fields FROM profiles`).
		WithArgs("missing-co").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetProfile(context.Background(), "missing-co")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProfile(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	generated := time.Now().UTC()

	mock.ExpectQuery(`SELECT company_id, company_name, version, generated_at, fields FROM profiles`).
		WithArgs("co-1").
		WillReturnRows(pgxmock.NewRows([]string{"company_id", "company_name", "version", "generated_at", "fields"}).
			AddRow("co-1", "Acme", 3, generated,
				[]byte(`{"company_info":{"text":"Acme provides tooling.","supporting_document_ids":["d1"],"confidence":0.9}}`)))

	p, err := s.GetProfile(context.Background(), "co-1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Version)
	require.Contains(t, p.Fields, model.CategoryCompanyInfo)
	assert.Equal(t, "Acme provides tooling.", p.Fields[model.CategoryCompanyInfo].Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceCandidates_AcceptedOnly(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM candidates WHERE company_id = \$1 AND category = \$2`).
		WithArgs("co-1", "description").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO candidates`).
		WithArgs("co-1", "d1", "description", "accepted sentence", 0.8, "strict").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.ReplaceCandidates(context.Background(), "co-1", model.ExtractDescription,
		[]model.ExtractionCandidate{
			{DocumentID: "d1", Category: model.ExtractDescription, SentenceText: "accepted sentence",
				RawScore: 0.8, Pass: model.PassStrict, Accepted: true},
			{DocumentID: "d2", Category: model.ExtractDescription, SentenceText: "rejected sentence",
				RawScore: 0.2, Pass: model.PassStrict, Accepted: false},
		})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceProfile_FirstVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	generated := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT company_name, version, generated_at, fields FROM profiles`).
		WithArgs("co-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO profiles`).
		WithArgs("co-1", "Acme", 1, generated, []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	stored, err := s.ReplaceProfile(context.Background(), &model.CompanyProfile{
		CompanyID:   "co-1",
		CompanyName: "Acme",
		GeneratedAt: generated,
		Fields:      map[model.ProfileCategory]model.ProfileField{},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobs_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Now().UTC()

	mock.ExpectQuery(`FROM jobs WHERE 1=1 AND status = \$1 AND company_id = \$2 ORDER BY started_at DESC LIMIT \$3`).
		WithArgs("done", "co-1", 5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "company_id", "company_name", "location", "objective",
			"status", "progress_pct", "started_at", "completed_at", "error_log", "stages",
		}).AddRow(
			"job-1", "co-1", "Acme", "", "objective",
			"done", 100, started, &started, []byte(nil), []byte(nil),
		))

	jobs, err := s.ListJobs(context.Background(), JobFilter{
		Status:    model.JobStatusDone,
		CompanyID: "co-1",
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobStatusDone, jobs[0].Status)
	require.NotNil(t, jobs[0].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
