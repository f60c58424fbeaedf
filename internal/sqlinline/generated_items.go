package sqlinline

const QInsertGeneratedItem = `--sql 3b9e2c71-5d0a-4f6e-9c83-1a7d4e2f6b05
insert into generated_items(
  id,
  batch_id,
  chunk_index,
  item_index,
  name,
  category,
  cuisine,
  calories,
  image_url,
  image_source,
  payload,
  created_at
) values (
  gen_random_uuid(),
  $1::text,
  $2::int,
  $3::int,
  $4::text,
  $5::text,
  nullif($6::text, ''),
  $7::numeric,
  nullif($8::text, ''),
  $9::text,
  $10::jsonb,
  now()
) returning id::text;
`

const QListGeneratedItemsByBatch = `--sql 9f04d6a8-2e1b-47c3-b5d9-6c8a0e3f1d72
select id::text, payload, created_at
from generated_items
where batch_id = $1::text
order by chunk_index asc, item_index asc;
`
