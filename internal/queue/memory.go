package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	statusQueued    = "queued"
	statusActive    = "active"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

type memoryJob struct {
	job        Job
	status     string
	runAt      time.Time
	lastErr    string
	finishedAt time.Time
	seq        int
}

// MemoryQueue is an in-process Queue for tests and single-binary demos. Jobs
// do not survive a restart.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*memoryJob
	seq  int
	now  func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(map[string]*memoryJob), now: time.Now}
}

// WithClock replaces the time source.
func (q *MemoryQueue) WithClock(now func() time.Time) *MemoryQueue {
	q.now = now
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, jobType string, payload any, opts Options) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode job payload: %w", err)
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	id := uuid.NewString()
	q.jobs[id] = &memoryJob{
		job: Job{
			ID:          id,
			Type:        jobType,
			Payload:     raw,
			MaxAttempts: opts.Attempts,
			Backoff:     opts.Backoff,
		},
		status: statusQueued,
		runAt:  q.now(),
		seq:    q.seq,
	}
	return id, nil
}

func (q *MemoryQueue) Claim(_ context.Context, jobType string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var runnable []*memoryJob
	for _, mj := range q.jobs {
		if mj.job.Type == jobType && mj.status == statusQueued && !mj.runAt.After(now) {
			runnable = append(runnable, mj)
		}
	}
	if len(runnable) == 0 {
		return nil, ErrEmpty
	}
	sort.Slice(runnable, func(i, j int) bool {
		if runnable[i].runAt.Equal(runnable[j].runAt) {
			return runnable[i].seq < runnable[j].seq
		}
		return runnable[i].runAt.Before(runnable[j].runAt)
	})
	next := runnable[0]
	next.status = statusActive
	next.job.Attempt++
	job := next.job
	job.Payload = append(json.RawMessage(nil), next.job.Payload...)
	return &job, nil
}

func (q *MemoryQueue) Complete(_ context.Context, id string) error {
	return q.finish(id, statusCompleted, "")
}

func (q *MemoryQueue) Fail(_ context.Context, id string, lastErr string) error {
	return q.finish(id, statusFailed, lastErr)
}

func (q *MemoryQueue) Retry(_ context.Context, id string, lastErr string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	mj, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	mj.status = statusQueued
	mj.lastErr = lastErr
	mj.runAt = q.now().Add(delay)
	return nil
}

func (q *MemoryQueue) Purge(_ context.Context, retention time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := q.now().Add(-retention)
	var removed int64
	for id, mj := range q.jobs {
		if (mj.status == statusCompleted || mj.status == statusFailed) && mj.finishedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Status returns the job's state and last error. Used by tests.
func (q *MemoryQueue) Status(id string) (string, string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	mj, ok := q.jobs[id]
	if !ok {
		return "", "", false
	}
	return mj.status, mj.lastErr, true
}

// Len returns the number of stored jobs in any state.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *MemoryQueue) finish(id, status, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	mj, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	mj.status = status
	mj.lastErr = lastErr
	mj.finishedAt = q.now()
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
