package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/pipeline"
	"github.com/sells-group/intel-pipeline/internal/resilience"
	"github.com/sells-group/intel-pipeline/internal/store"
)

type stubJobManager struct {
	submit func(req pipeline.SubmitRequest) (*model.PipelineJob, error)
	status func(jobID string) (*model.PipelineJob, error)
	cancel func(jobID string) (*model.PipelineJob, error)
}

func (s *stubJobManager) Submit(_ context.Context, req pipeline.SubmitRequest) (*model.PipelineJob, error) {
	return s.submit(req)
}

func (s *stubJobManager) Status(_ context.Context, jobID string) (*model.PipelineJob, error) {
	return s.status(jobID)
}

func (s *stubJobManager) Cancel(_ context.Context, jobID string) (*model.PipelineJob, error) {
	return s.cancel(jobID)
}

type stubProfileReader struct {
	getProfile   func(companyID string) (*model.CompanyProfile, error)
	listVersions func(companyID string) ([]model.CompanyProfile, error)
	listJobs     func(filter store.JobFilter) ([]model.PipelineJob, error)
}

func (s *stubProfileReader) GetProfile(_ context.Context, companyID string) (*model.CompanyProfile, error) {
	return s.getProfile(companyID)
}

func (s *stubProfileReader) ListProfileVersions(_ context.Context, companyID string) ([]model.CompanyProfile, error) {
	return s.listVersions(companyID)
}

func (s *stubProfileReader) ListJobs(_ context.Context, filter store.JobFilter) ([]model.PipelineJob, error) {
	return s.listJobs(filter)
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	r := newRouter(&stubJobManager{}, &stubProfileReader{})
	rec := doRequest(t, r, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_SubmitJob(t *testing.T) {
	jobs := &stubJobManager{
		submit: func(req pipeline.SubmitRequest) (*model.PipelineJob, error) {
			assert.Equal(t, "co-1", req.CompanyID)
			assert.Equal(t, "Acme", req.CompanyName)
			return &model.PipelineJob{JobID: "job-1", Status: model.JobStatusQueued}, nil
		},
	}
	r := newRouter(jobs, &stubProfileReader{})

	body := []byte(`{"company_id":"co-1","company_name":"Acme","objective":"find growth signals"}`)
	rec := doRequest(t, r, http.MethodPost, "/jobs", body)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var job model.PipelineJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.JobID)
	assert.Equal(t, model.JobStatusQueued, job.Status)
}

func TestRouter_SubmitJob_InvalidBody(t *testing.T) {
	r := newRouter(&stubJobManager{}, &stubProfileReader{})
	rec := doRequest(t, r, http.MethodPost, "/jobs", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SubmitJob_ConfigurationError(t *testing.T) {
	jobs := &stubJobManager{
		submit: func(pipeline.SubmitRequest) (*model.PipelineJob, error) {
			return nil, resilience.NewConfigurationError(eris.New("company id and name are required"))
		},
	}
	r := newRouter(jobs, &stubProfileReader{})

	rec := doRequest(t, r, http.MethodPost, "/jobs", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "required")
}

func TestRouter_SubmitJob_QueueFull(t *testing.T) {
	jobs := &stubJobManager{
		submit: func(pipeline.SubmitRequest) (*model.PipelineJob, error) {
			return nil, pipeline.ErrQueueFull
		},
	}
	r := newRouter(jobs, &stubProfileReader{})

	body := []byte(`{"company_id":"co-1","company_name":"Acme","objective":"x"}`)
	rec := doRequest(t, r, http.MethodPost, "/jobs", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_JobStatus(t *testing.T) {
	jobs := &stubJobManager{
		status: func(jobID string) (*model.PipelineJob, error) {
			assert.Equal(t, "job-1", jobID)
			return &model.PipelineJob{JobID: "job-1", Status: model.JobStatusDone, ProgressPct: 100}, nil
		},
	}
	r := newRouter(jobs, &stubProfileReader{})

	rec := doRequest(t, r, http.MethodGet, "/jobs/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job model.PipelineJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, 100, job.ProgressPct)
}

func TestRouter_JobStatus_NotFound(t *testing.T) {
	jobs := &stubJobManager{
		status: func(string) (*model.PipelineJob, error) { return nil, store.ErrNotFound },
	}
	r := newRouter(jobs, &stubProfileReader{})

	rec := doRequest(t, r, http.MethodGet, "/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CancelJob(t *testing.T) {
	jobs := &stubJobManager{
		cancel: func(jobID string) (*model.PipelineJob, error) {
			return &model.PipelineJob{JobID: jobID, Status: model.JobStatusClassifying}, nil
		},
	}
	r := newRouter(jobs, &stubProfileReader{})

	rec := doRequest(t, r, http.MethodDelete, "/jobs/job-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ListJobs(t *testing.T) {
	profiles := &stubProfileReader{
		listJobs: func(filter store.JobFilter) ([]model.PipelineJob, error) {
			assert.Equal(t, model.JobStatusDone, filter.Status)
			assert.Equal(t, "co-1", filter.CompanyID)
			assert.Equal(t, 50, filter.Limit)
			return []model.PipelineJob{{JobID: "job-1"}}, nil
		},
	}
	r := newRouter(&stubJobManager{}, profiles)

	rec := doRequest(t, r, http.MethodGet, "/jobs?status=done&company_id=co-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []model.PipelineJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
}

func TestRouter_GetProfile(t *testing.T) {
	profiles := &stubProfileReader{
		getProfile: func(companyID string) (*model.CompanyProfile, error) {
			assert.Equal(t, "co-1", companyID)
			return &model.CompanyProfile{CompanyID: "co-1", CompanyName: "Acme", Version: 2}, nil
		},
	}
	r := newRouter(&stubJobManager{}, profiles)

	rec := doRequest(t, r, http.MethodGet, "/companies/co-1/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p model.CompanyProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 2, p.Version)
}

func TestRouter_GetProfile_NotFound(t *testing.T) {
	profiles := &stubProfileReader{
		getProfile: func(string) (*model.CompanyProfile, error) { return nil, store.ErrNotFound },
	}
	r := newRouter(&stubJobManager{}, profiles)

	rec := doRequest(t, r, http.MethodGet, "/companies/missing/profile", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ListProfileVersions(t *testing.T) {
	profiles := &stubProfileReader{
		listVersions: func(companyID string) ([]model.CompanyProfile, error) {
			return []model.CompanyProfile{{CompanyID: companyID, Version: 1}}, nil
		},
	}
	r := newRouter(&stubJobManager{}, profiles)

	rec := doRequest(t, r, http.MethodGet, "/companies/co-1/profile/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var versions []model.CompanyProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &versions))
	require.Len(t, versions, 1)
}
