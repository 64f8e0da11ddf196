package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/sqlinline"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type payload struct {
	AdID string `json:"adId"`
}

func TestRetryDelayDoubles(t *testing.T) {
	job := &Job{Backoff: 2 * time.Second}
	for attempt, want := range map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 8 * time.Second} {
		job.Attempt = attempt
		require.Equal(t, want, job.RetryDelay())
	}
}

func TestPoolRetriesWithBackoffThenFails(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	q := NewMemoryQueue().WithClock(c.Now)
	id, err := q.Enqueue(context.Background(), "generate-ad", payload{AdID: "ad-1"}, DefaultOptions())
	require.NoError(t, err)

	var calls int32
	pool := NewPool(q, func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&calls, 1)
		var p payload
		require.NoError(t, job.Decode(&p))
		require.Equal(t, "ad-1", p.AdID)
		return errors.New("provider down")
	}, PoolConfig{JobType: "generate-ad"}, zerolog.Nop())

	ran, err := pool.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	// Not runnable until the 2s backoff elapses.
	ran, _ = pool.RunOnce(context.Background())
	require.False(t, ran)
	c.Advance(2 * time.Second)
	ran, _ = pool.RunOnce(context.Background())
	require.True(t, ran)

	c.Advance(3 * time.Second)
	ran, _ = pool.RunOnce(context.Background())
	require.False(t, ran)
	c.Advance(time.Second)
	ran, _ = pool.RunOnce(context.Background())
	require.True(t, ran)

	status, lastErr, ok := q.Status(id)
	require.True(t, ok)
	require.Equal(t, statusFailed, status)
	require.Equal(t, "provider down", lastErr)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPermanentErrorSkipsRetries(t *testing.T) {
	q := NewMemoryQueue()
	id, _ := q.Enqueue(context.Background(), "t", payload{}, DefaultOptions())
	pool := NewPool(q, func(context.Context, *Job) error {
		return Permanent(errors.New("bad payload"))
	}, PoolConfig{JobType: "t"}, zerolog.Nop())

	_, err := pool.RunOnce(context.Background())
	require.NoError(t, err)
	status, _, _ := q.Status(id)
	require.Equal(t, statusFailed, status)
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	q := NewMemoryQueue()
	id, _ := q.Enqueue(context.Background(), "t", payload{}, Options{Attempts: 1})
	pool := NewPool(q, func(context.Context, *Job) error {
		panic("boom")
	}, PoolConfig{JobType: "t"}, zerolog.Nop())

	_, err := pool.RunOnce(context.Background())
	require.NoError(t, err)
	status, lastErr, _ := q.Status(id)
	require.Equal(t, statusFailed, status)
	require.Contains(t, lastErr, "boom")
}

func TestPoolBoundsConcurrency(t *testing.T) {
	q := NewMemoryQueue()
	for i := 0; i < 12; i++ {
		_, err := q.Enqueue(context.Background(), "t", payload{}, Options{Attempts: 1})
		require.NoError(t, err)
	}

	var (
		inFlight int32
		peak     int32
		done     int32
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := NewPool(q, func(context.Context, *Job) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		if atomic.AddInt32(&done, 1) == 12 {
			cancel()
		}
		return nil
	}, PoolConfig{JobType: "t", Concurrency: 3, PollInterval: 5 * time.Millisecond}, zerolog.Nop())

	require.NoError(t, pool.Run(ctx))
	require.Equal(t, int32(12), atomic.LoadInt32(&done))
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestMemoryPurgeDropsOldFinishedJobs(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	q := NewMemoryQueue().WithClock(c.Now)
	id, _ := q.Enqueue(context.Background(), "t", payload{}, DefaultOptions())
	_, _ = q.Enqueue(context.Background(), "t", payload{}, DefaultOptions())
	require.NoError(t, q.Complete(context.Background(), id))

	c.Advance(2 * time.Hour)
	n, err := q.Purge(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, 1, q.Len())
}

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

type stubSQL struct {
	lastQuery string
	lastArgs  []any
	row       pgx.Row
}

func (s *stubSQL) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.lastQuery, s.lastArgs = query, args
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (s *stubSQL) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.lastQuery, s.lastArgs = query, args
	if s.row == nil {
		return rowFunc(func(...any) error { return pgx.ErrNoRows })
	}
	return s.row
}

func (s *stubSQL) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestPostgresClaimEmpty(t *testing.T) {
	sql := &stubSQL{}
	_, err := NewPostgresQueue(sql, time.Minute).Claim(context.Background(), "generate-ad")
	require.ErrorIs(t, err, ErrEmpty)
	require.Equal(t, sqlinline.QClaimJob, sql.lastQuery)
	require.Equal(t, []any{"generate-ad", 60}, sql.lastArgs)
}

func TestPostgresClaimScansJob(t *testing.T) {
	sql := &stubSQL{row: rowFunc(func(dest ...any) error {
		*dest[0].(*string) = "job-1"
		*dest[1].(*string) = "generate-ad"
		*dest[2].(*[]byte) = []byte(`{"adId":"ad-9"}`)
		*dest[3].(*int) = 2
		*dest[4].(*int) = 3
		*dest[5].(*int64) = 2000
		return nil
	})}
	job, err := NewPostgresQueue(sql, 0).Claim(context.Background(), "generate-ad")
	require.NoError(t, err)
	require.Equal(t, 2, job.Attempt)
	require.Equal(t, 2*time.Second, job.Backoff)
	require.False(t, job.FinalAttempt())

	var p payload
	require.NoError(t, job.Decode(&p))
	require.Equal(t, "ad-9", p.AdID)
}

func TestPostgresEnqueueEncodesPayload(t *testing.T) {
	sql := &stubSQL{}
	id, err := NewPostgresQueue(sql, 0).Enqueue(context.Background(), "generate-ad", payload{AdID: "ad-1"}, DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, sqlinline.QEnqueueJob, sql.lastQuery)
	require.JSONEq(t, `{"adId":"ad-1"}`, string(sql.lastArgs[2].([]byte)))
	require.Equal(t, 3, sql.lastArgs[3])
	require.Equal(t, int64(2000), sql.lastArgs[4])
}

func TestPostgresClaimReturnsAbandonedFinalAttempt(t *testing.T) {
	sql := &stubSQL{row: rowFunc(func(dest ...any) error {
		*dest[0].(*string) = "job-2"
		*dest[1].(*string) = "generate-ad"
		*dest[2].(*[]byte) = []byte(`{"adId":"ad-3"}`)
		*dest[3].(*int) = 3
		*dest[4].(*int) = 3
		*dest[5].(*int64) = 0
		*dest[6].(*bool) = true
		return nil
	})}
	job, err := NewPostgresQueue(sql, time.Minute).Claim(context.Background(), "generate-ad")
	require.NoError(t, err)
	require.True(t, job.Abandoned)
	require.True(t, job.FinalAttempt())
	require.Equal(t, 3, job.Attempt)

	// Stale active rows are claimable whatever their attempt count.
	require.NotContains(t, sqlinline.QClaimJob, "and attempts < max_attempts")
	require.Contains(t, sqlinline.QClaimJob, "n.abandoned")
}
