package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/intel-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	company_id   TEXT NOT NULL,
	source_url   TEXT NOT NULL,
	raw_text     TEXT NOT NULL,
	cleaned_text TEXT NOT NULL,
	source_kind  TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS classifications (
	company_id       TEXT NOT NULL,
	document_id      TEXT NOT NULL REFERENCES documents(id),
	objective_hash   TEXT NOT NULL,
	label            TEXT NOT NULL,
	similarity_score REAL NOT NULL,
	boosted_score    REAL NOT NULL,
	confidence       REAL NOT NULL,
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (company_id, document_id)
);

CREATE TABLE IF NOT EXISTS candidates (
	company_id    TEXT NOT NULL,
	document_id   TEXT NOT NULL REFERENCES documents(id),
	category      TEXT NOT NULL,
	sentence_text TEXT NOT NULL,
	raw_score     REAL NOT NULL,
	pass          TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS profiles (
	company_id   TEXT PRIMARY KEY,
	company_name TEXT NOT NULL,
	version      INTEGER NOT NULL,
	generated_at DATETIME NOT NULL,
	fields       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_versions (
	company_id   TEXT NOT NULL,
	version      INTEGER NOT NULL,
	company_name TEXT NOT NULL,
	generated_at DATETIME NOT NULL,
	fields       TEXT NOT NULL,
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
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	error_log    TEXT,
	stages       TEXT
);

CREATE INDEX IF NOT EXISTS idx_documents_company ON documents(company_id);
CREATE INDEX IF NOT EXISTS idx_candidates_company ON candidates(company_id, category);
CREATE INDEX IF NOT EXISTS idx_jobs_company ON jobs(company_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveDocuments(ctx context.Context, docs []model.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, d := range docs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, company_id, source_url, raw_text, cleaned_text, source_kind)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET cleaned_text = excluded.cleaned_text`,
			d.ID, d.CompanyID, d.SourceURL, d.RawText, d.CleanedText, string(d.SourceKind),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert document %s", d.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit documents")
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, companyID string) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, source_url, raw_text, cleaned_text, source_kind
		 FROM documents WHERE company_id = ? ORDER BY created_at`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		var kind string
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.SourceURL, &d.RawText, &d.CleanedText, &kind); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		d.SourceKind = model.SourceKind(kind)
		docs = append(docs, d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: iterate documents")
}

func (s *SQLiteStore) SaveClassifications(ctx context.Context, results []model.ClassificationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range results {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO classifications (company_id, document_id, objective_hash, label, similarity_score, boosted_score, confidence, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (company_id, document_id) DO UPDATE SET
			   objective_hash = excluded.objective_hash,
			   label = excluded.label,
			   similarity_score = excluded.similarity_score,
			   boosted_score = excluded.boosted_score,
			   confidence = excluded.confidence,
			   updated_at = excluded.updated_at`,
			r.CompanyID, r.DocumentID, r.ObjectiveHash, string(r.Label),
			r.SimilarityScore, r.BoostedScore, r.Confidence, time.Now().UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert classification %s", r.DocumentID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit classifications")
}

func (s *SQLiteStore) ListClassifications(ctx context.Context, companyID string) ([]model.ClassificationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_id, document_id, objective_hash, label, similarity_score, boosted_score, confidence
		 FROM classifications WHERE company_id = ?`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list classifications")
	}
	defer rows.Close()

	var out []model.ClassificationResult
	for rows.Next() {
		var r model.ClassificationResult
		var label string
		if err := rows.Scan(&r.CompanyID, &r.DocumentID, &r.ObjectiveHash, &label, &r.SimilarityScore, &r.BoostedScore, &r.Confidence); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan classification")
		}
		r.Label = model.RelevanceLabel(label)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate classifications")
}

func (s *SQLiteStore) ReplaceCandidates(ctx context.Context, companyID string, category model.ExtractionCategory, cands []model.ExtractionCandidate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM candidates WHERE company_id = ? AND category = ?`,
		companyID, string(category),
	); err != nil {
		return eris.Wrap(err, "sqlite: clear candidates")
	}

	for _, c := range cands {
		if !c.Accepted {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO candidates (company_id, document_id, category, sentence_text, raw_score, pass)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			companyID, c.DocumentID, string(c.Category), c.SentenceText, c.RawScore, string(c.Pass),
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert candidate")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit candidates")
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, companyID string) ([]model.ExtractionCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_id, document_id, category, sentence_text, raw_score, pass
		 FROM candidates WHERE company_id = ? ORDER BY raw_score DESC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()

	var out []model.ExtractionCandidate
	for rows.Next() {
		var c model.ExtractionCandidate
		var category, pass string
		if err := rows.Scan(&c.CompanyID, &c.DocumentID, &category, &c.SentenceText, &c.RawScore, &pass); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		c.Category = model.ExtractionCategory(category)
		c.Pass = model.ExtractionPass(pass)
		c.Accepted = true
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate candidates")
}

// ReplaceProfile swaps the live profile in one transaction: the prior live
// row moves to profile_versions, the new profile takes version+1.
// Concurrent readers see either the old or the new profile, never a mix.
func (s *SQLiteStore) ReplaceProfile(ctx context.Context, p *model.CompanyProfile) (*model.CompanyProfile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	version := 1
	row := tx.QueryRowContext(ctx,
		`SELECT company_name, version, generated_at, fields FROM profiles WHERE company_id = ?`,
		p.CompanyID,
	)
	var prevName, prevFields string
	var prevVersion int
	var prevGeneratedAt time.Time
	switch err := row.Scan(&prevName, &prevVersion, &prevGeneratedAt, &prevFields); {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO profile_versions (company_id, version, company_name, generated_at, fields)
			 VALUES (?, ?, ?, ?, ?)`,
			p.CompanyID, prevVersion, prevName, prevGeneratedAt, prevFields,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: archive profile")
		}
		version = prevVersion + 1
	case err == sql.ErrNoRows:
	default:
		return nil, eris.Wrap(err, "sqlite: read live profile")
	}

	fieldsJSON, err := json.Marshal(p.Fields)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal fields")
	}

	stored := *p
	stored.Version = version
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (company_id, company_name, version, generated_at, fields)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (company_id) DO UPDATE SET
		   company_name = excluded.company_name,
		   version = excluded.version,
		   generated_at = excluded.generated_at,
		   fields = excluded.fields`,
		stored.CompanyID, stored.CompanyName, stored.Version, stored.GeneratedAt, string(fieldsJSON),
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: write profile")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit profile")
	}
	return &stored, nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, companyID string) (*model.CompanyProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT company_id, company_name, version, generated_at, fields FROM profiles WHERE company_id = ?`,
		companyID,
	)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *SQLiteStore) ListProfileVersions(ctx context.Context, companyID string) ([]model.CompanyProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_id, company_name, version, generated_at, fields
		 FROM profile_versions WHERE company_id = ? ORDER BY version DESC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profile versions")
	}
	defer rows.Close()

	var out []model.CompanyProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate profile versions")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.CompanyProfile, error) {
	var p model.CompanyProfile
	var fieldsJSON string
	if err := row.Scan(&p.CompanyID, &p.CompanyName, &p.Version, &p.GeneratedAt, &fieldsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan profile")
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &p.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fields")
	}
	return &p, nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.PipelineJob) error {
	errLog, stages, err := marshalJobExtras(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, company_id, company_name, location, objective, status, progress_pct, started_at, completed_at, error_log, stages)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID, job.CompanyID, job.CompanyName, job.Location, job.Objective,
		string(job.Status), job.ProgressPct, job.StartedAt, job.CompletedAt, errLog, stages,
	)
	return eris.Wrapf(err, "sqlite: insert job %s", job.JobID)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.PipelineJob) error {
	errLog, stages, err := marshalJobExtras(job)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress_pct = ?, completed_at = ?, error_log = ?, stages = ? WHERE id = ?`,
		string(job.Status), job.ProgressPct, job.CompletedAt, errLog, stages, job.JobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.JobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.PipelineJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, company_name, location, objective, status, progress_pct, started_at, completed_at, error_log, stages
		 FROM jobs WHERE id = ?`,
		jobID,
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return job, err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.PipelineJob, error) {
	query := `SELECT id, company_id, company_name, location, objective, status, progress_pct, started_at, completed_at, error_log, stages FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CompanyID != "" {
		query += ` AND company_id = ?`
		args = append(args, filter.CompanyID)
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var out []model.PipelineJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func marshalJobExtras(job *model.PipelineJob) (errLog, stages sql.NullString, err error) {
	if len(job.ErrorLog) > 0 {
		raw, mErr := json.Marshal(job.ErrorLog)
		if mErr != nil {
			return errLog, stages, eris.Wrap(mErr, "sqlite: marshal error log")
		}
		errLog = sql.NullString{String: string(raw), Valid: true}
	}
	if len(job.Stages) > 0 {
		raw, mErr := json.Marshal(job.Stages)
		if mErr != nil {
			return errLog, stages, eris.Wrap(mErr, "sqlite: marshal stages")
		}
		stages = sql.NullString{String: string(raw), Valid: true}
	}
	return errLog, stages, nil
}

func scanJob(row rowScanner) (*model.PipelineJob, error) {
	var job model.PipelineJob
	var status string
	var completedAt sql.NullTime
	var errLog, stages sql.NullString

	if err := row.Scan(&job.JobID, &job.CompanyID, &job.CompanyName, &job.Location, &job.Objective,
		&status, &job.ProgressPct, &job.StartedAt, &completedAt, &errLog, &stages); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan job")
	}
	job.Status = model.JobStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if errLog.Valid {
		if err := json.Unmarshal([]byte(errLog.String), &job.ErrorLog); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal error log")
		}
	}
	if stages.Valid {
		if err := json.Unmarshal([]byte(stages.String), &job.Stages); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stages")
		}
	}
	return &job, nil
}
