package sqlinline

const QSelectProviderKey = `--sql 4e7b1c90-3a52-4d8f-9b06-d21c5e8a7f34
select api_key, updated_at
from provider_keys
where provider = $1::text;
`

const QUpsertProviderKey = `--sql b18d6e25-90c4-4a7e-8f3b-5c2a71d0e96f
insert into provider_keys (provider, api_key, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
  api_key = excluded.api_key,
  properties = excluded.properties,
  updated_at = now();
`
