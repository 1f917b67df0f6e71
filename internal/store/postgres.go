package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/intel-pipeline/internal/db"
	"github.com/sells-group/intel-pipeline/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_job":         `SELECT id, company_id, company_name, location, objective, status, progress_pct, started_at, completed_at, error_log, stages FROM jobs WHERE id = $1`,
	"update_job":      `UPDATE jobs SET status = $1, progress_pct = $2, completed_at = $3, error_log = $4, stages = $5 WHERE id = $6`,
	"get_profile":     `SELECT company_id, company_name, version, generated_at, fields FROM profiles WHERE company_id = $1`,
	"list_documents":  `SELECT id, company_id, source_url, raw_text, cleaned_text, source_kind FROM documents WHERE company_id = $1 ORDER BY created_at`,
	"list_candidates": `SELECT company_id, document_id, category, sentence_text, raw_score, pass FROM candidates WHERE company_id = $1 ORDER BY raw_score DESC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	company_id   TEXT NOT NULL,
	source_url   TEXT NOT NULL,
	raw_text     TEXT NOT NULL,
	cleaned_text TEXT NOT NULL,
	source_kind  TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS classifications (
	company_id       TEXT NOT NULL,
	document_id      TEXT NOT NULL REFERENCES documents(id),
	objective_hash   TEXT NOT NULL,
	label            TEXT NOT NULL,
	similarity_score DOUBLE PRECISION NOT NULL,
	boosted_score    DOUBLE PRECISION NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company_id, document_id)
);

CREATE TABLE IF NOT EXISTS candidates (
	company_id    TEXT NOT NULL,
	document_id   TEXT NOT NULL REFERENCES documents(id),
	category      TEXT NOT NULL,
	sentence_text TEXT NOT NULL,
	raw_score     DOUBLE PRECISION NOT NULL,
	pass          TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS profiles (
	company_id   TEXT PRIMARY KEY,
	company_name TEXT NOT NULL,
	version      INTEGER NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	fields       JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_versions (
	company_id   TEXT NOT NULL,
	version      INTEGER NOT NULL,
	company_name TEXT NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	fields       JSONB NOT NULL,
	PRIMARY KEY (company_id, version)
);

CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	company_id   TEXT NOT NULL,
	company_name TEXT NOT NULL,
	location     TEXT NOT NULL,
	objective    TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	progress_pct INTEGER NOT NULL DEFAULT 0,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	error_log    JSONB,
	stages       JSONB
);

CREATE INDEX IF NOT EXISTS idx_documents_company ON documents(company_id);
CREATE INDEX IF NOT EXISTS idx_candidates_company ON candidates(company_id, category);
CREATE INDEX IF NOT EXISTS idx_jobs_company ON jobs(company_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveDocuments bulk-upserts documents through a temp table so re-scrapes
// of the same company stay idempotent.
func (s *PostgresStore) SaveDocuments(ctx context.Context, docs []model.Document) error {
	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []any{d.ID, d.CompanyID, d.SourceURL, d.RawText, d.CleanedText, string(d.SourceKind)})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "documents",
		Columns:      []string{"id", "company_id", "source_url", "raw_text", "cleaned_text", "source_kind"},
		ConflictKeys: []string{"id"},
	}, rows)
	return eris.Wrap(err, "postgres: save documents")
}

func (s *PostgresStore) ListDocuments(ctx context.Context, companyID string) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, source_url, raw_text, cleaned_text, source_kind
		 FROM documents WHERE company_id = $1 ORDER BY created_at`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		var kind string
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.SourceURL, &d.RawText, &d.CleanedText, &kind); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		d.SourceKind = model.SourceKind(kind)
		docs = append(docs, d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: iterate documents")
}

func (s *PostgresStore) SaveClassifications(ctx context.Context, results []model.ClassificationResult) error {
	rows := make([][]any, 0, len(results))
	now := time.Now().UTC()
	for _, r := range results {
		rows = append(rows, []any{r.CompanyID, r.DocumentID, r.ObjectiveHash, string(r.Label), r.SimilarityScore, r.BoostedScore, r.Confidence, now})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "classifications",
		Columns:      []string{"company_id", "document_id", "objective_hash", "label", "similarity_score", "boosted_score", "confidence", "updated_at"},
		ConflictKeys: []string{"company_id", "document_id"},
	}, rows)
	return eris.Wrap(err, "postgres: save classifications")
}

func (s *PostgresStore) ListClassifications(ctx context.Context, companyID string) ([]model.ClassificationResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_id, document_id, objective_hash, label, similarity_score, boosted_score, confidence
		 FROM classifications WHERE company_id = $1`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list classifications")
	}
	defer rows.Close()

	var out []model.ClassificationResult
	for rows.Next() {
		var r model.ClassificationResult
		var label string
		if err := rows.Scan(&r.CompanyID, &r.DocumentID, &r.ObjectiveHash, &label, &r.SimilarityScore, &r.BoostedScore, &r.Confidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan classification")
		}
		r.Label = model.RelevanceLabel(label)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate classifications")
}

func (s *PostgresStore) ReplaceCandidates(ctx context.Context, companyID string, category model.ExtractionCategory, cands []model.ExtractionCandidate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM candidates WHERE company_id = $1 AND category = $2`,
		companyID, string(category),
	); err != nil {
		return eris.Wrap(err, "postgres: clear candidates")
	}

	for _, c := range cands {
		if !c.Accepted {
			continue
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO candidates (company_id, document_id, category, sentence_text, raw_score, pass)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			companyID, c.DocumentID, string(c.Category), c.SentenceText, c.RawScore, string(c.Pass),
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert candidate")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit candidates")
}

func (s *PostgresStore) ListCandidates(ctx context.Context, companyID string) ([]model.ExtractionCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_id, document_id, category, sentence_text, raw_score, pass
		 FROM candidates WHERE company_id = $1 ORDER BY raw_score DESC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.ExtractionCandidate
	for rows.Next() {
		var c model.ExtractionCandidate
		var category, pass string
		if err := rows.Scan(&c.CompanyID, &c.DocumentID, &category, &c.SentenceText, &c.RawScore, &pass); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		c.Category = model.ExtractionCategory(category)
		c.Pass = model.ExtractionPass(pass)
		c.Accepted = true
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate candidates")
}

func (s *PostgresStore) ReplaceProfile(ctx context.Context, p *model.CompanyProfile) (*model.CompanyProfile, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	version := 1
	row := tx.QueryRow(ctx,
		`SELECT company_name, version, generated_at, fields FROM profiles WHERE company_id = $1`,
		p.CompanyID,
	)
	var prevName string
	var prevFields []byte
	var prevVersion int
	var prevGeneratedAt time.Time
	switch err := row.Scan(&prevName, &prevVersion, &prevGeneratedAt, &prevFields); {
	case err == nil:
		if _, err := tx.Exec(ctx,
			`INSERT INTO profile_versions (company_id, version, company_name, generated_at, fields)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (company_id, version) DO NOTHING`,
			p.CompanyID, prevVersion, prevName, prevGeneratedAt, prevFields,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: archive profile")
		}
		version = prevVersion + 1
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, eris.Wrap(err, "postgres: read live profile")
	}

	fieldsJSON, err := json.Marshal(p.Fields)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal fields")
	}

	stored := *p
	stored.Version = version
	if _, err := tx.Exec(ctx,
		`INSERT INTO profiles (company_id, company_name, version, generated_at, fields)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (company_id) DO UPDATE SET
		   company_name = EXCLUDED.company_name,
		   version = EXCLUDED.version,
		   generated_at = EXCLUDED.generated_at,
		   fields = EXCLUDED.fields`,
		stored.CompanyID, stored.CompanyName, stored.Version, stored.GeneratedAt, fieldsJSON,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: write profile")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit profile")
	}
	return &stored, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, companyID string) (*model.CompanyProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT company_id, company_name, version, generated_at, fields FROM profiles WHERE company_id = $1`,
		companyID,
	)
	p, err := scanPgProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) ListProfileVersions(ctx context.Context, companyID string) ([]model.CompanyProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_id, company_name, version, generated_at, fields
		 FROM profile_versions WHERE company_id = $1 ORDER BY version DESC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profile versions")
	}
	defer rows.Close()

	var out []model.CompanyProfile
	for rows.Next() {
		p, err := scanPgProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate profile versions")
}

func scanPgProfile(row pgx.Row) (*model.CompanyProfile, error) {
	var p model.CompanyProfile
	var fieldsJSON []byte
	if err := row.Scan(&p.CompanyID, &p.CompanyName, &p.Version, &p.GeneratedAt, &fieldsJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan profile")
	}
	if err := json.Unmarshal(fieldsJSON, &p.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal fields")
	}
	return &p, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.PipelineJob) error {
	errLog, stages, err := marshalPgJobExtras(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, company_id, company_name, location, objective, status, progress_pct, started_at, completed_at, error_log, stages)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.JobID, job.CompanyID, job.CompanyName, job.Location, job.Objective,
		string(job.Status), job.ProgressPct, job.StartedAt, job.CompletedAt, errLog, stages,
	)
	return eris.Wrapf(err, "postgres: insert job %s", job.JobID)
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.PipelineJob) error {
	errLog, stages, err := marshalPgJobExtras(job)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, progress_pct = $2, completed_at = $3, error_log = $4, stages = $5 WHERE id = $6`,
		string(job.Status), job.ProgressPct, job.CompletedAt, errLog, stages, job.JobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.JobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.PipelineJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, company_id, company_name, location, objective, status, progress_pct, started_at, completed_at, error_log, stages
		 FROM jobs WHERE id = $1`,
		jobID,
	)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.PipelineJob, error) {
	query := `SELECT id, company_id, company_name, location, objective, status, progress_pct, started_at, completed_at, error_log, stages FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + itoa(len(args))
	}
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		query += ` AND company_id = $` + itoa(len(args))
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var out []model.PipelineJob
	for rows.Next() {
		job, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func marshalPgJobExtras(job *model.PipelineJob) (errLog, stages []byte, err error) {
	if len(job.ErrorLog) > 0 {
		errLog, err = json.Marshal(job.ErrorLog)
		if err != nil {
			return nil, nil, eris.Wrap(err, "postgres: marshal error log")
		}
	}
	if len(job.Stages) > 0 {
		stages, err = json.Marshal(job.Stages)
		if err != nil {
			return nil, nil, eris.Wrap(err, "postgres: marshal stages")
		}
	}
	return errLog, stages, nil
}

func scanPgJob(row pgx.Row) (*model.PipelineJob, error) {
	var job model.PipelineJob
	var status string
	var completedAt *time.Time
	var errLog, stages []byte

	if err := row.Scan(&job.JobID, &job.CompanyID, &job.CompanyName, &job.Location, &job.Objective,
		&status, &job.ProgressPct, &job.StartedAt, &completedAt, &errLog, &stages); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan job")
	}
	job.Status = model.JobStatus(status)
	job.CompletedAt = completedAt
	if len(errLog) > 0 {
		if err := json.Unmarshal(errLog, &job.ErrorLog); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal error log")
		}
	}
	if len(stages) > 0 {
		if err := json.Unmarshal(stages, &job.Stages); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stages")
		}
	}
	return &job, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
