package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/pipeline"
	"github.com/sells-group/intel-pipeline/internal/resilience"
	"github.com/sells-group/intel-pipeline/internal/store"
)

// jobManager is the coordinator surface the API needs. Narrow so handler
// tests can stub it.
type jobManager interface {
	Submit(ctx context.Context, req pipeline.SubmitRequest) (*model.PipelineJob, error)
	Status(ctx context.Context, jobID string) (*model.PipelineJob, error)
	Cancel(ctx context.Context, jobID string) (*model.PipelineJob, error)
}

// profileReader is the store surface the API needs.
type profileReader interface {
	GetProfile(ctx context.Context, companyID string) (*model.CompanyProfile, error)
	ListProfileVersions(ctx context.Context, companyID string) ([]model.CompanyProfile, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]model.PipelineJob, error)
}

// newRouter builds the HTTP API.
func newRouter(jobs jobManager, profiles profileReader) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/jobs", func(w http.ResponseWriter, r *http.Request) {
		var req pipeline.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		job, err := jobs.Submit(r.Context(), req)
		if err != nil {
			switch {
			case resilience.IsConfiguration(err):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, pipeline.ErrQueueFull):
				writeError(w, http.StatusServiceUnavailable, "job queue full")
			default:
				zap.L().Error("api: submit failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "submit failed")
			}
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	})

	r.Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
		filter := store.JobFilter{
			Status:    model.JobStatus(r.URL.Query().Get("status")),
			CompanyID: r.URL.Query().Get("company_id"),
			Limit:     50,
		}
		list, err := profiles.ListJobs(r.Context(), filter)
		if err != nil {
			zap.L().Error("api: list jobs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list jobs failed")
			return
		}
		writeJSON(w, http.StatusOK, list)
	})

	r.Get("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, err := jobs.Status(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			zap.L().Error("api: job status failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "job status failed")
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	r.Delete("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, err := jobs.Cancel(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			zap.L().Error("api: job cancel failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "job cancel failed")
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	r.Get("/companies/{id}/profile", func(w http.ResponseWriter, r *http.Request) {
		p, err := profiles.GetProfile(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "profile not found")
				return
			}
			zap.L().Error("api: get profile failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get profile failed")
			return
		}
		writeJSON(w, http.StatusOK, p)
	})

	r.Get("/companies/{id}/profile/versions", func(w http.ResponseWriter, r *http.Request) {
		versions, err := profiles.ListProfileVersions(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			zap.L().Error("api: list profile versions failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list versions failed")
			return
		}
		writeJSON(w, http.StatusOK, versions)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
