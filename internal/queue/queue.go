// Package queue carries generation jobs from the API to the worker pool with
// at-least-once delivery, bounded retries and exponential backoff.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrEmpty is returned by Claim when no job is runnable.
var ErrEmpty = errors.New("queue: no job available")

// Options control delivery of a single job.
type Options struct {
	// Attempts is the total number of deliveries, including the first.
	Attempts int
	// Backoff is the delay before the second attempt; later delays double.
	Backoff time.Duration
	// Retention is how long a finished job is kept before it is purged.
	Retention time.Duration
}

// DefaultOptions matches the ad generation delivery policy.
func DefaultOptions() Options {
	return Options{Attempts: 3, Backoff: 2 * time.Second, Retention: 24 * time.Hour}
}

// Job is one claimed delivery.
type Job struct {
	ID          string
	Type        string
	Payload     json.RawMessage
	Attempt     int
	MaxAttempts int
	Backoff     time.Duration
	// Abandoned marks a redelivery of a job whose final attempt was lost
	// with its worker. The handler should settle the work without retrying.
	Abandoned bool
}

// FinalAttempt reports whether a failure now exhausts the job.
func (j *Job) FinalAttempt() bool {
	return j.Attempt >= j.MaxAttempts
}

// Decode unmarshals the payload into dst.
func (j *Job) Decode(dst any) error {
	return json.Unmarshal(j.Payload, dst)
}

// RetryDelay is the wait before the next attempt: Backoff * 2^(Attempt-1).
func (j *Job) RetryDelay() time.Duration {
	if j.Backoff <= 0 {
		return 0
	}
	shift := j.Attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 16 {
		shift = 16
	}
	return j.Backoff << uint(shift)
}

// Queue is the durable job store the worker pool consumes.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts Options) (string, error)
	// Claim locks the next runnable job of jobType or returns ErrEmpty.
	Claim(ctx context.Context, jobType string) (*Job, error)
	Complete(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, lastErr string, delay time.Duration) error
	Fail(ctx context.Context, id string, lastErr string) error
	// Purge deletes finished jobs older than retention.
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// permanentError marks a handler failure that must not be retried.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the pool fails the job without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
