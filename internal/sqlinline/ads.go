package sqlinline

// Ad rows are always selected with the same column order; see repo.scanAd.

const QInsertAd = `--sql 6ccff1d1-dfe6-40eb-b1a1-fdc65a39c081
insert into ads (
    id, user_id, status, media_type, prompt, aspect_ratio, variants, duration_seconds,
    product_id, template_id, provider, created_at, updated_at
)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::text, $7::int, $8::int,
        $9::text, $10::text, $11::text, now(), now())
returning created_at, updated_at;
`

const QSelectAd = `--sql 4e1a7205-0d7c-45bb-8e0c-d1890569e950
select id::text, user_id, status, media_type, prompt, aspect_ratio, variants, duration_seconds,
       product_id, template_id, provider, image_url, image_urls, video_url, video_urls, storage_ids,
       error_message, failed_at, created_at, updated_at
from ads
where id = $1::uuid;
`

const QSelectAdForUpdate = `--sql 6c976438-173c-44cc-8099-8ced17db746c
select id::text, user_id, status, media_type, prompt, aspect_ratio, variants, duration_seconds,
       product_id, template_id, provider, image_url, image_urls, video_url, video_urls, storage_ids,
       error_message, failed_at, created_at, updated_at
from ads
where id = $1::uuid
for update;
`

const QListAdsByUser = `--sql 634f01d1-37d5-4062-9b3d-d69ccb4674a4
select id::text, user_id, status, media_type, prompt, aspect_ratio, variants, duration_seconds,
       product_id, template_id, provider, image_url, image_urls, video_url, video_urls, storage_ids,
       error_message, failed_at, created_at, updated_at
from ads
where user_id = $1::text
order by created_at desc
limit $2::int;
`

const QUpdateAdState = `--sql 209090f0-0506-4bc8-9944-20f1bc488c2f
update ads
set status = $2::text,
    prompt = $3::text,
    aspect_ratio = $4::text,
    image_url = $5::text,
    image_urls = $6::text[],
    video_url = $7::text,
    video_urls = $8::text[],
    storage_ids = $9::text[],
    error_message = $10::text,
    failed_at = $11::timestamptz,
    media_type = $12::text,
    updated_at = now()
where id = $1::uuid
returning updated_at;
`

const QReplaceAdResults = `--sql c739d3b4-680a-461c-89b2-1b74bf8d3a5a
update ads
set image_url  = case when media_type = 'IMAGE' then $2::text else image_url end,
    image_urls = case when media_type = 'IMAGE' then $3::text[] else image_urls end,
    video_url  = case when media_type = 'VIDEO' then $2::text else video_url end,
    video_urls = case when media_type = 'VIDEO' then $3::text[] else video_urls end,
    storage_ids = $4::text[],
    updated_at = now()
where id = $1::uuid
  and status = 'COMPLETED';
`

const QOverrideAdStatus = `--sql 26dae2ec-1dc4-4eb5-8d9a-c6014fdcc41a
update ads
set status = $2::text,
    error_message = $3::text,
    failed_at = case when $2::text = 'FAILED' then now() else null end,
    updated_at = now()
where id = $1::uuid
returning id::text;
`

const QDeleteAd = `--sql 05993010-e67d-4984-b2a2-83f7baf1424a
delete from ads
where id = $1::uuid;
`
