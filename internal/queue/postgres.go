package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/sqlinline"
)

// DefaultVisibilityTimeout is how long an active job may stay locked before
// another worker reclaims it.
const DefaultVisibilityTimeout = 5 * time.Minute

// PostgresQueue stores jobs in generation_jobs and claims them with
// FOR UPDATE SKIP LOCKED so concurrent workers never share a delivery.
type PostgresQueue struct {
	sql               infra.SQLExecutor
	visibilityTimeout time.Duration
}

func NewPostgresQueue(sql infra.SQLExecutor, visibilityTimeout time.Duration) *PostgresQueue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = DefaultVisibilityTimeout
	}
	return &PostgresQueue{sql: sql, visibilityTimeout: visibilityTimeout}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, jobType string, payload any, opts Options) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode job payload: %w", err)
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	id := uuid.NewString()
	if _, err := q.sql.Exec(ctx, sqlinline.QEnqueueJob, id, jobType, raw, opts.Attempts, opts.Backoff.Milliseconds()); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

func (q *PostgresQueue) Claim(ctx context.Context, jobType string) (*Job, error) {
	row := q.sql.QueryRow(ctx, sqlinline.QClaimJob, jobType, int(q.visibilityTimeout.Seconds()))
	var (
		job       Job
		payload   []byte
		backoffMS int64
	)
	if err := row.Scan(&job.ID, &job.Type, &payload, &job.Attempt, &job.MaxAttempts, &backoffMS, &job.Abandoned); err != nil {
		if infra.IsNoRows(err) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	job.Payload = append(json.RawMessage(nil), payload...)
	job.Backoff = time.Duration(backoffMS) * time.Millisecond
	return &job, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, id string) error {
	if _, err := q.sql.Exec(ctx, sqlinline.QCompleteJob, id); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Retry(ctx context.Context, id string, lastErr string, delay time.Duration) error {
	if _, err := q.sql.Exec(ctx, sqlinline.QRetryJob, id, lastErr, delay.Milliseconds()); err != nil {
		return fmt.Errorf("retry job: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Fail(ctx context.Context, id string, lastErr string) error {
	if _, err := q.sql.Exec(ctx, sqlinline.QFailJob, id, lastErr); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := q.sql.Exec(ctx, sqlinline.QPurgeFinishedJobs, int(retention.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Queue = (*PostgresQueue)(nil)
