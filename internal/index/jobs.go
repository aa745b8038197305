package index

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound = errors.New("index: job not found")
	ErrQueueClosed = errors.New("index: queue closed")
)

// JobState is the lifecycle state of an indexing job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job is a snapshot of a submitted indexing run.
type Job struct {
	ID         string
	ProjectID  string
	RepoRef    string
	State      JobState
	Phase      string
	Processed  int
	Total      int
	Result     *Result
	Error      string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner executes one indexing run. *Indexer implements it.
type Runner interface {
	Index(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error)
}

// DefaultRetention is how long a finished job stays visible to Status.
const DefaultRetention = time.Hour

type jobEntry struct {
	job  Job
	req  Request
	done chan struct{}
}

// Queue runs indexing jobs in the background with a bounded number of
// workers. Jobs for the same project run one at a time in submission
// order.
type Queue struct {
	ctx       context.Context
	runner    Runner
	logger    *slog.Logger
	sem       chan struct{}
	wg        sync.WaitGroup
	retention time.Duration
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	jobs   map[string]*jobEntry
	// lanes holds the pending jobs of every project that has a drain
	// goroutine running.
	lanes map[string][]*jobEntry
}

// NewQueue creates a queue. Jobs run under ctx; canceling it aborts
// running jobs.
func NewQueue(ctx context.Context, runner Runner, workers int, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Queue{
		ctx:       ctx,
		runner:    runner,
		logger:    logger,
		sem:       make(chan struct{}, workers),
		retention: DefaultRetention,
		now:       time.Now,
		jobs:      make(map[string]*jobEntry),
		lanes:     make(map[string][]*jobEntry),
	}
}

// WithRetention sets how long finished jobs are kept.
func (q *Queue) WithRetention(d time.Duration) *Queue {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retention = d
	return q
}

// Submit enqueues an indexing run and returns its job ID.
func (q *Queue) Submit(req Request) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	q.pruneLocked()

	e := &jobEntry{
		job: Job{
			ID:        uuid.NewString(),
			ProjectID: req.ProjectID,
			RepoRef:   req.RepoRef,
			State:     JobPending,
			CreatedAt: q.now(),
		},
		req:  req,
		done: make(chan struct{}),
	}
	q.jobs[e.job.ID] = e

	lane, active := q.lanes[req.ProjectID]
	q.lanes[req.ProjectID] = append(lane, e)
	if !active {
		q.wg.Add(1)
		go q.drain(req.ProjectID)
	}
	q.logger.Info("index job submitted", "job", e.job.ID, "project", req.ProjectID)
	return e.job.ID, nil
}

// pruneLocked drops finished jobs older than the retention period.
func (q *Queue) pruneLocked() {
	cutoff := q.now().Add(-q.retention)
	for id, e := range q.jobs {
		if f := e.job.FinishedAt; !f.IsZero() && f.Before(cutoff) {
			delete(q.jobs, id)
		}
	}
}

// drain runs the project's pending jobs in order until its lane is empty.
func (q *Queue) drain(projectID string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		lane := q.lanes[projectID]
		if len(lane) == 0 {
			delete(q.lanes, projectID)
			q.mu.Unlock()
			return
		}
		e := lane[0]
		q.lanes[projectID] = lane[1:]
		q.mu.Unlock()

		q.run(e)
	}
}

func (q *Queue) run(e *jobEntry) {
	defer close(e.done)

	q.sem <- struct{}{}
	defer func() { <-q.sem }()

	q.update(e, func(j *Job) {
		j.State = JobRunning
		j.StartedAt = q.now()
	})

	res, err := q.runner.Index(q.ctx, e.req, func(phase string, processed, total int) {
		q.update(e, func(j *Job) {
			j.Phase, j.Processed, j.Total = phase, processed, total
		})
	})

	q.update(e, func(j *Job) {
		j.Result = res
		j.FinishedAt = q.now()
		if err != nil {
			j.State = JobFailed
			j.Error = err.Error()
			return
		}
		j.State = JobSucceeded
	})
	if err != nil {
		q.logger.Error("index job failed", "job", e.job.ID, "project", e.req.ProjectID, "error", err)
	} else {
		q.logger.Info("index job finished", "job", e.job.ID, "project", e.req.ProjectID,
			"success", res.SuccessCount, "errors", res.ErrorCount)
	}
}

func (q *Queue) update(e *jobEntry, fn func(*Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn(&e.job)
}

// Status returns a snapshot of the job.
func (q *Queue) Status(id string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return e.job, nil
}

// Wait blocks until the job finishes or ctx is done.
func (q *Queue) Wait(ctx context.Context, id string) (Job, error) {
	q.mu.Lock()
	e, ok := q.jobs[id]
	q.mu.Unlock()
	if !ok {
		return Job{}, ErrJobNotFound
	}
	select {
	case <-e.done:
		return q.Status(id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Close stops accepting jobs and waits for submitted ones to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}
