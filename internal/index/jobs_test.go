package index

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	delay time.Duration
	fail  map[string]error

	mu      sync.Mutex
	active  map[string]int
	maxSeen map[string]int
	order   []string
	total   atomic.Int64
}

func newFakeRunner(delay time.Duration) *fakeRunner {
	return &fakeRunner{delay: delay, active: map[string]int{}, maxSeen: map[string]int{}}
}

func (r *fakeRunner) Index(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	r.mu.Lock()
	r.order = append(r.order, req.RepoRef)
	r.active[req.ProjectID]++
	if r.active[req.ProjectID] > r.maxSeen[req.ProjectID] {
		r.maxSeen[req.ProjectID] = r.active[req.ProjectID]
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.active[req.ProjectID]--
		r.mu.Unlock()
	}()

	onProgress(PhasePersist, 1, 2)
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.total.Add(1)
	if err := r.fail[req.RepoRef]; err != nil {
		return nil, err
	}
	return &Result{SuccessCount: 3, ErrorCount: 1}, nil
}

func TestQueue_SubmitAndWait(t *testing.T) {
	q := NewQueue(context.Background(), newFakeRunner(10*time.Millisecond), 2, nil)
	defer q.Close()

	id, err := q.Submit(Request{ProjectID: "p1", RepoRef: "acme/shop"})
	require.NoError(t, err)

	job, err := q.Status(id)
	require.NoError(t, err)
	assert.Contains(t, []JobState{JobPending, JobRunning}, job.State)

	job, err = q.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, job.State)
	require.NotNil(t, job.Result)
	assert.Equal(t, 3, job.Result.SuccessCount)
	assert.Equal(t, PhasePersist, job.Phase)
	assert.False(t, job.FinishedAt.IsZero())
}

func TestQueue_FailedJob(t *testing.T) {
	r := newFakeRunner(0)
	r.fail = map[string]error{"bad/repo": errors.New("fetch bad/repo: rate limited")}
	q := NewQueue(context.Background(), r, 1, nil)
	defer q.Close()

	id, err := q.Submit(Request{ProjectID: "p1", RepoRef: "bad/repo"})
	require.NoError(t, err)

	job, err := q.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.State)
	assert.Contains(t, job.Error, "rate limited")
}

func TestQueue_SameProjectIsSerialized(t *testing.T) {
	r := newFakeRunner(15 * time.Millisecond)
	q := NewQueue(context.Background(), r, 4, nil)

	for i := 0; i < 3; i++ {
		_, err := q.Submit(Request{ProjectID: "p1", RepoRef: "r"})
		require.NoError(t, err)
		_, err = q.Submit(Request{ProjectID: "p2", RepoRef: "r"})
		require.NoError(t, err)
	}
	q.Close()

	assert.Equal(t, int64(6), r.total.Load())
	assert.Equal(t, 1, r.maxSeen["p1"])
	assert.Equal(t, 1, r.maxSeen["p2"])
}

func TestQueue_SameProjectRunsInSubmissionOrder(t *testing.T) {
	r := newFakeRunner(5 * time.Millisecond)
	q := NewQueue(context.Background(), r, 4, nil)

	want := []string{"first", "second", "third", "fourth", "fifth"}
	for _, ref := range want {
		_, err := q.Submit(Request{ProjectID: "p1", RepoRef: ref, Replace: ref == "third"})
		require.NoError(t, err)
	}
	q.Close()

	assert.Equal(t, want, r.order)
}

func TestQueue_EvictsFinishedJobsAfterRetention(t *testing.T) {
	var mu sync.Mutex
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(d)
	}

	q := NewQueue(context.Background(), newFakeRunner(0), 1, nil).WithRetention(time.Minute)
	q.now = now
	defer q.Close()

	old, err := q.Submit(Request{ProjectID: "p1", RepoRef: "r"})
	require.NoError(t, err)
	_, err = q.Wait(context.Background(), old)
	require.NoError(t, err)

	advance(30 * time.Second)
	recent, err := q.Submit(Request{ProjectID: "p1", RepoRef: "r"})
	require.NoError(t, err)
	_, err = q.Wait(context.Background(), recent)
	require.NoError(t, err)
	_, err = q.Status(old)
	require.NoError(t, err, "still within retention")

	advance(45 * time.Second)
	_, err = q.Submit(Request{ProjectID: "p2", RepoRef: "r"})
	require.NoError(t, err)

	_, err = q.Status(old)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = q.Status(recent)
	assert.NoError(t, err)
}

func TestQueue_CloseRejectsAndDrains(t *testing.T) {
	r := newFakeRunner(10 * time.Millisecond)
	q := NewQueue(context.Background(), r, 1, nil)
	id, err := q.Submit(Request{ProjectID: "p1", RepoRef: "r"})
	require.NoError(t, err)

	q.Close()

	job, err := q.Status(id)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, job.State)
	_, err = q.Submit(Request{ProjectID: "p1", RepoRef: "r"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_UnknownJob(t *testing.T) {
	q := NewQueue(context.Background(), newFakeRunner(0), 1, nil)
	defer q.Close()

	_, err := q.Status("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = q.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueue_CancelAbortsRunningJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewQueue(ctx, newFakeRunner(time.Hour), 1, nil)
	id, err := q.Submit(Request{ProjectID: "p1", RepoRef: "r"})
	require.NoError(t, err)

	cancel()
	job, err := q.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.State)
	q.Close()
}

func TestQueue_WaitHonorsContext(t *testing.T) {
	q := NewQueue(context.Background(), newFakeRunner(200*time.Millisecond), 1, nil)
	defer q.Close()
	id, err := q.Submit(Request{ProjectID: "p1", RepoRef: "r"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = q.Wait(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
