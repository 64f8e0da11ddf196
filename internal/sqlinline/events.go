package sqlinline

const QNotifyAdEvent = `--sql 3f0d7a52-8c1e-4b6f-9a2d-5e7c1b9f4a60
select pg_notify($1::text, $2::text);
`
