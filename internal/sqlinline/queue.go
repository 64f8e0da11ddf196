package sqlinline

const QEnqueueJob = `--sql 9c844ca6-327a-4537-8772-db35960d3cc5
insert into generation_jobs (
    id, job_type, payload, status, attempts, max_attempts, backoff_ms, run_at, created_at, updated_at
)
values ($1::uuid, $2::text, $3::jsonb, 'queued', 0, $4::int, $5::bigint, now(), now(), now());
`

// QClaimJob takes the oldest runnable job. Jobs left active by a crashed
// worker become claimable again once their lock is older than $2 seconds.
// A stale job that already used its last attempt is handed out once more
// with abandoned set and its attempt count unchanged, so the handler can
// settle it instead of leaving it active forever.
const QClaimJob = `--sql 6875d3d0-8dc3-4b90-b1e4-f87ca6937639
with next_job as (
    select id, (status = 'active' and attempts >= max_attempts) as abandoned
    from generation_jobs
    where job_type = $1::text
      and (
        (status = 'queued' and run_at <= now())
        or (status = 'active' and locked_at < now() - make_interval(secs => $2::int))
      )
    order by run_at asc
    for update skip locked
    limit 1
),
updated as (
    update generation_jobs g
    set status = 'active',
        attempts = case when n.abandoned then g.attempts else g.attempts + 1 end,
        locked_at = now(),
        updated_at = now()
    from next_job n
    where g.id = n.id
    returning g.id::text, g.job_type, g.payload, g.attempts, g.max_attempts, g.backoff_ms, n.abandoned
)
select * from updated;
`

const QCompleteJob = `--sql fafb39e1-8cf9-4438-8871-a94005d05edc
update generation_jobs
set status = 'completed', locked_at = null, finished_at = now(), updated_at = now()
where id = $1::uuid;
`

const QRetryJob = `--sql 58352454-1e2e-4dfe-84b0-580b865bf986
update generation_jobs
set status = 'queued',
    locked_at = null,
    last_error = $2::text,
    run_at = now() + ($3::bigint * interval '1 millisecond'),
    updated_at = now()
where id = $1::uuid;
`

const QFailJob = `--sql ec79fd1b-83e7-40cf-820a-fbe4f910ae3d
update generation_jobs
set status = 'failed', locked_at = null, last_error = $2::text, finished_at = now(), updated_at = now()
where id = $1::uuid;
`

const QPurgeFinishedJobs = `--sql b718cecd-241b-4979-b55e-4e3c0c4e88fd
delete from generation_jobs
where status in ('completed', 'failed')
  and finished_at < now() - make_interval(secs => $1::int);
`
