package sqlinline

const QSelectProduct = `--sql 155ab5a1-db69-405f-862e-91b0cd329a1d
select id::text, user_id, name, description, brand, category, price, image_urls
from products
where id = $1::uuid
  and user_id = $2::text;
`

const QSelectTemplate = `--sql 1046d2a9-85b2-46de-8383-5a37953f0174
select id::text, name, prompt, reference_image_url, media_type, aspect_ratio
from templates
where id = $1::uuid;
`
