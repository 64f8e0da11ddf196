package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler processes one delivery. Returning nil completes the job; an error
// schedules a retry until attempts run out, unless it is Permanent.
type Handler func(ctx context.Context, job *Job) error

// PoolConfig sizes a worker pool.
type PoolConfig struct {
	JobType      string
	Concurrency  int
	PollInterval time.Duration
	// JobTimeout bounds a single handler call. Zero disables the bound.
	JobTimeout time.Duration
	// Retention enables the purge loop when positive.
	Retention     time.Duration
	PurgeInterval time.Duration
}

// Pool runs a fixed number of goroutines that claim and handle jobs.
type Pool struct {
	queue   Queue
	handler Handler
	cfg     PoolConfig
	logger  zerolog.Logger
}

func NewPool(q Queue, handler Handler, cfg PoolConfig, logger zerolog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = 10 * time.Minute
	}
	return &Pool{queue: q, handler: handler, cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled and every in-flight job has returned.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info().
		Str("job_type", p.cfg.JobType).
		Int("concurrency", p.cfg.Concurrency).
		Msg("worker: started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			p.loop(gctx, worker)
			return nil
		})
	}
	if p.cfg.Retention > 0 {
		g.Go(func() error {
			p.purgeLoop(gctx)
			return nil
		})
	}
	err := g.Wait()
	p.logger.Info().Msg("worker: stopped")
	return err
}

// RunOnce claims and handles at most one job. It reports whether a job ran.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.queue.Claim(ctx, p.cfg.JobType)
	if err != nil {
		if errors.Is(err, ErrEmpty) {
			return false, nil
		}
		return false, err
	}
	p.process(ctx, job)
	return true, nil
}

func (p *Pool) loop(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		ran, err := p.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Error().Err(err).Int("worker", worker).Msg("worker: failed to claim job")
		}
		if ran {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

func (p *Pool) process(ctx context.Context, job *Job) {
	log := p.logger.With().
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Int("attempt", job.Attempt).
		Int("max_attempts", job.MaxAttempts).
		Logger()
	log.Info().Msg("worker: picked job")

	handleCtx := ctx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		handleCtx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}
	err := p.safeHandle(handleCtx, job)

	// Acknowledge even if shutdown started mid-job; otherwise the job waits
	// for the visibility timeout before another worker sees it.
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	switch {
	case err == nil:
		if ackErr := p.queue.Complete(ackCtx, job.ID); ackErr != nil {
			log.Error().Err(ackErr).Msg("worker: complete job failed")
			return
		}
		log.Info().Msg("worker: job completed")
	case IsPermanent(err) || job.FinalAttempt():
		if ackErr := p.queue.Fail(ackCtx, job.ID, err.Error()); ackErr != nil {
			log.Error().Err(ackErr).Msg("worker: fail job failed")
			return
		}
		log.Error().Err(err).Msg("worker: job failed")
	default:
		delay := job.RetryDelay()
		if ackErr := p.queue.Retry(ackCtx, job.ID, err.Error(), delay); ackErr != nil {
			log.Error().Err(ackErr).Msg("worker: retry job failed")
			return
		}
		log.Warn().Err(err).Dur("retry_in", delay).Msg("worker: job will retry")
	}
}

func (p *Pool) safeHandle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler(ctx, job)
}

func (p *Pool) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.queue.Purge(ctx, p.cfg.Retention)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error().Err(err).Msg("worker: purge finished jobs failed")
				}
				continue
			}
			if n > 0 {
				p.logger.Debug().Int64("removed", n).Msg("worker: purged finished jobs")
			}
		}
	}
}
