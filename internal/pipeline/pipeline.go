// Package pipeline orchestrates the five-stage intelligence run for one
// company: scrape, classify, extract, generate, persist. Stage effects are
// idempotent keyed writes, so the orchestrator can retry any stage without
// corrupting prior output.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/intel-pipeline/internal/classify"
	"github.com/sells-group/intel-pipeline/internal/config"
	"github.com/sells-group/intel-pipeline/internal/extract"
	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/normalize"
	"github.com/sells-group/intel-pipeline/internal/profile"
	"github.com/sells-group/intel-pipeline/internal/resilience"
	"github.com/sells-group/intel-pipeline/internal/scrape"
	"github.com/sells-group/intel-pipeline/internal/store"
)

// Pipeline executes one company's run end to end.
type Pipeline struct {
	cfg        config.PipelineConfig
	normalize  normalize.Config
	store      store.Store
	scraper    scrape.Scraper
	classifier *classify.Classifier
	extractor  *extract.Engine
	generator  *profile.Generator
	policy     resilience.Policy
}

// New creates a Pipeline with all stage dependencies.
func New(
	cfg config.PipelineConfig,
	normCfg normalize.Config,
	st store.Store,
	scraper scrape.Scraper,
	classifier *classify.Classifier,
	extractor *extract.Engine,
	generator *profile.Generator,
) *Pipeline {
	if cfg.StageTimeoutSecs <= 0 {
		cfg.StageTimeoutSecs = 300
	}
	if cfg.MinDocuments <= 0 {
		cfg.MinDocuments = 1
	}
	policy := resilience.DefaultPolicy()
	if cfg.StageAttempts > 0 {
		policy.MaxAttempts = cfg.StageAttempts
	}
	return &Pipeline{
		cfg:        cfg,
		normalize:  normCfg,
		store:      st,
		scraper:    scraper,
		classifier: classifier,
		extractor:  extractor,
		generator:  generator,
		policy:     policy,
	}
}

// Run executes the run for job, mutating and persisting it as stages
// advance. The cancelled callback is checked at stage boundaries only: an
// in-flight stage always runs to completion before a cancel takes effect,
// so no half-applied stage output is left behind.
func (p *Pipeline) Run(ctx context.Context, job *model.PipelineJob, cancelled func() bool) {
	log := zap.L().With(
		zap.String("job_id", job.JobID),
		zap.String("company_id", job.CompanyID),
		zap.String("company", job.CompanyName),
	)
	log.Info("pipeline: starting run")

	saveJob := func() {
		if err := p.store.UpdateJob(ctx, job); err != nil {
			log.Warn("pipeline: failed to persist job state", zap.Error(err))
		}
	}

	finish := func(status model.JobStatus, pct int) {
		now := time.Now().UTC()
		job.Status = status
		job.ProgressPct = pct
		job.CompletedAt = &now
		saveJob()
		log.Info("pipeline: run finished",
			zap.String("status", string(status)),
			zap.Int("progress_pct", pct),
		)
	}

	fail := func(stage string, err error) {
		job.ErrorLog = append(job.ErrorLog, fmt.Sprintf("%s: %v", stage, err))
		log.Error("pipeline: run failed", zap.String("stage", stage), zap.Error(err))
		finish(model.JobStatusFailed, job.ProgressPct)
	}

	failPartial := func(stage, reason string) {
		job.ErrorLog = append(job.ErrorLog, fmt.Sprintf("%s: %s", stage, reason))
		log.Warn("pipeline: run incomplete", zap.String("stage", stage), zap.String("reason", reason))
		finish(model.JobStatusFailedPartial, job.ProgressPct)
	}

	checkCancelled := func() bool {
		if cancelled != nil && cancelled() {
			finish(model.JobStatusCancelled, job.ProgressPct)
			return true
		}
		return false
	}

	// trackStage wraps one stage with retry, timeout, duration tracking,
	// and job persistence.
	trackStage := func(name string, status model.JobStatus, pct int, fn func(ctx context.Context) (map[string]any, error)) error {
		job.Status = status
		saveJob()

		start := time.Now()
		var meta map[string]any
		err := resilience.Do(ctx, withRetryLog(p.policy, name), func(ctx context.Context) error {
			stageCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.StageTimeoutSecs)*time.Second)
			defer cancel()
			var fnErr error
			meta, fnErr = fn(stageCtx)
			return fnErr
		})
		duration := time.Since(start).Milliseconds()

		result := model.StageResult{
			Name:     name,
			Status:   model.StageStatusComplete,
			Duration: duration,
			Metadata: meta,
		}
		if err != nil {
			result.Status = model.StageStatusFailed
			result.Error = err.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
		} else {
			job.ProgressPct = pct
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
			)
		}
		job.Stages = append(job.Stages, result)
		saveJob()
		return err
	}

	// A job cancelled while still queued never starts its first stage.
	if checkCancelled() {
		return
	}

	// ===== Stage 1: Scrape =====
	var docs []model.Document
	err := trackStage("scrape", model.JobStatusScraping, 10, func(ctx context.Context) (map[string]any, error) {
		fetched, scrapeErr := p.scraper.FetchDocuments(ctx, job.CompanyID, job.CompanyName, job.Location)
		if scrapeErr != nil {
			return nil, scrapeErr
		}
		docs = normalize.Documents(fetched, p.normalize)
		if len(docs) == 0 {
			return nil, nil
		}
		if saveErr := p.store.SaveDocuments(ctx, docs); saveErr != nil {
			return nil, saveErr
		}
		return map[string]any{"fetched": len(fetched), "kept": len(docs)}, nil
	})
	if err != nil {
		fail("scrape", err)
		return
	}
	if len(docs) < p.cfg.MinDocuments {
		failPartial("scrape", "no usable documents collected")
		return
	}
	if checkCancelled() {
		return
	}

	// ===== Stage 2: Classify =====
	var relevant []model.Document
	err = trackStage("classify", model.JobStatusClassifying, 30, func(ctx context.Context) (map[string]any, error) {
		results, classifyErr := p.classifier.ClassifyAll(ctx, docs, job.Objective)
		if classifyErr != nil {
			return nil, classifyErr
		}
		if saveErr := p.store.SaveClassifications(ctx, results); saveErr != nil {
			return nil, saveErr
		}

		relevantIDs := make(map[string]struct{})
		for _, r := range results {
			if r.Relevant() {
				relevantIDs[r.DocumentID] = struct{}{}
			}
		}
		relevant = relevant[:0]
		for _, d := range docs {
			if _, ok := relevantIDs[d.ID]; ok {
				relevant = append(relevant, d)
			}
		}
		return map[string]any{"classified": len(results), "relevant": len(relevant)}, nil
	})
	if err != nil {
		fail("classify", err)
		return
	}
	if len(relevant) == 0 {
		failPartial("classify", "no relevant documents")
		return
	}
	if checkCancelled() {
		return
	}

	// ===== Stage 3: Extract =====
	var candidates []model.ExtractionCandidate
	err = trackStage("extract", model.JobStatusExtracting, 55, func(ctx context.Context) (map[string]any, error) {
		candidates = candidates[:0]
		accepted := 0
		for _, cat := range model.AllExtractionCategories() {
			cands, extractErr := p.extractor.Extract(ctx, job.CompanyName, relevant, cat)
			if extractErr != nil {
				// A category failure reduces coverage, not the run.
				if resilience.IsConfiguration(extractErr) || ctx.Err() != nil {
					return nil, extractErr
				}
				log.Warn("pipeline: extraction category skipped",
					zap.String("category", string(cat)),
					zap.Error(extractErr),
				)
				continue
			}
			if saveErr := p.store.ReplaceCandidates(ctx, job.CompanyID, cat, cands); saveErr != nil {
				return nil, saveErr
			}
			for _, c := range cands {
				candidates = append(candidates, c)
				if c.Accepted {
					accepted++
				}
			}
		}
		return map[string]any{"candidates": len(candidates), "accepted": accepted}, nil
	})
	if err != nil {
		fail("extract", err)
		return
	}
	if checkCancelled() {
		return
	}

	// ===== Stage 4: Generate =====
	var generated *model.CompanyProfile
	partial := false
	err = trackStage("generate", model.JobStatusGenerating, 85, func(ctx context.Context) (map[string]any, error) {
		prof, genErr := p.generator.Generate(ctx, job.CompanyID, job.CompanyName, relevant, candidates)
		if genErr != nil {
			if resilience.IsPartialData(genErr) {
				partial = true
				generated = prof
				return map[string]any{"fields": 0}, nil
			}
			return nil, genErr
		}
		generated = prof
		return map[string]any{
			"fields":          prof.FieldCount(),
			"supporting_docs": len(prof.SupportingDocumentIDs()),
		}, nil
	})
	if err != nil {
		fail("generate", err)
		return
	}
	if partial {
		failPartial("generate", "no documents contributed to any profile field")
		return
	}
	if checkCancelled() {
		return
	}

	// ===== Stage 5: Persist =====
	// The job status enum has no persist state; persistence reports under
	// generating, distinguished by the stage record and progress_pct >= 95.
	err = trackStage("persist", model.JobStatusGenerating, 95, func(ctx context.Context) (map[string]any, error) {
		stored, saveErr := p.store.ReplaceProfile(ctx, generated)
		if saveErr != nil {
			return nil, saveErr
		}
		return map[string]any{"version": stored.Version}, nil
	})
	if err != nil {
		fail("persist", err)
		return
	}

	finish(model.JobStatusDone, 100)
}

func withRetryLog(p resilience.Policy, stage string) resilience.Policy {
	p.OnRetry = resilience.RetryLogger("pipeline", stage)
	return p
}
