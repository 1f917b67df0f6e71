package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intel-pipeline/internal/model"
	"github.com/sells-group/intel-pipeline/internal/resilience"
	"github.com/sells-group/intel-pipeline/internal/store"
)

// SubmitRequest describes one company run.
type SubmitRequest struct {
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name"`
	Location    string `json:"location,omitempty"`
	Objective   string `json:"objective"`
}

// ErrQueueFull is returned when the job queue cannot accept more work.
var ErrQueueFull = eris.New("pipeline: job queue full")

// Coordinator owns the job queue and worker pool. Each job is processed by
// exactly one worker; job state transitions happen only inside that worker,
// so no job-level locking is needed beyond the cancel flags.
type Coordinator struct {
	pipeline *Pipeline
	store    store.Store
	queue    chan *model.PipelineJob
	workers  int

	mu        sync.Mutex
	cancelled map[string]bool

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(p *Pipeline, st store.Store, workers, queueSize int) *Coordinator {
	if workers <= 0 {
		workers = 3
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Coordinator{
		pipeline:  p,
		store:     st,
		queue:     make(chan *model.PipelineJob, queueSize),
		workers:   workers,
		cancelled: make(map[string]bool),
		stopped:   make(chan struct{}),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// Stop closes the queue.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopped)
		close(c.queue)
	})
	c.wg.Wait()
}

func (c *Coordinator) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	log := zap.L().With(zap.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-c.queue:
			if !ok {
				return
			}
			log.Debug("pipeline: worker picked up job", zap.String("job_id", job.JobID))
			c.pipeline.Run(ctx, job, func() bool { return c.isCancelled(job.JobID) })
			c.clearCancel(job.JobID)
		}
	}
}

// Submit validates the request, creates the job record, and enqueues it.
// An empty objective is a configuration error: the job is created already
// failed so the caller still gets a job ID and a terminal status to poll.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (*model.PipelineJob, error) {
	if req.CompanyID == "" || req.CompanyName == "" {
		return nil, resilience.NewConfigurationError(eris.New("pipeline: company id and name are required"))
	}

	job := &model.PipelineJob{
		JobID:       uuid.New().String(),
		CompanyID:   req.CompanyID,
		CompanyName: req.CompanyName,
		Location:    req.Location,
		Objective:   req.Objective,
		Status:      model.JobStatusQueued,
		StartedAt:   time.Now().UTC(),
	}

	if req.Objective == "" {
		cfgErr := resilience.NewConfigurationError(eris.New("pipeline: objective text is empty"))
		now := time.Now().UTC()
		job.Status = model.JobStatusFailed
		job.CompletedAt = &now
		job.ErrorLog = []string{fmt.Sprintf("submit: %v", cfgErr)}
		if err := c.store.CreateJob(ctx, job); err != nil {
			return nil, eris.Wrap(err, "pipeline: create job")
		}
		return job, nil
	}

	if err := c.store.CreateJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "pipeline: create job")
	}

	select {
	case c.queue <- job:
	default:
		now := time.Now().UTC()
		job.Status = model.JobStatusFailed
		job.CompletedAt = &now
		job.ErrorLog = []string{"submit: job queue full"}
		if err := c.store.UpdateJob(ctx, job); err != nil {
			zap.L().Warn("pipeline: failed to mark overflow job", zap.Error(err))
		}
		return job, ErrQueueFull
	}

	zap.L().Info("pipeline: job submitted",
		zap.String("job_id", job.JobID),
		zap.String("company_id", job.CompanyID),
	)
	return job, nil
}

// Status returns the current job record.
func (c *Coordinator) Status(ctx context.Context, jobID string) (*model.PipelineJob, error) {
	return c.store.GetJob(ctx, jobID)
}

// Cancel flags a job for cancellation. The flag is observed at the next
// stage boundary; a queued job that has not started is cancelled by its
// worker before the first stage runs. Cancelling a terminal job is a no-op.
func (c *Coordinator) Cancel(ctx context.Context, jobID string) (*model.PipelineJob, error) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	c.mu.Lock()
	c.cancelled[jobID] = true
	c.mu.Unlock()
	zap.L().Info("pipeline: job cancellation requested", zap.String("job_id", jobID))
	return job, nil
}

func (c *Coordinator) isCancelled(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled[jobID]
}

func (c *Coordinator) clearCancel(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancelled, jobID)
}
