package sqlinline

const QSelectCreditBalance = `--sql 8e86e9d9-8aec-46d4-9580-323e77f18ba0
select balance
from credit_accounts
where user_id = $1::text;
`

// QDeductCredits returns no row when the balance cannot cover the amount.
const QDeductCredits = `--sql ed2e1b62-2d9a-473e-9a70-c9809cb932f3
with debited as (
    update credit_accounts
    set balance = balance - $2::int, updated_at = now()
    where user_id = $1::text
      and balance >= $2::int
    returning user_id, balance
),
logged as (
    insert into credit_transactions (id, user_id, amount, reason, created_at)
    select gen_random_uuid(), user_id, -$2::int, $3::text, now()
    from debited
)
select balance from debited;
`

const QAddCredits = `--sql b7af86d8-2200-4677-8fcd-ba267d910baa
with credited as (
    insert into credit_accounts (user_id, balance, created_at, updated_at)
    values ($1::text, $2::int, now(), now())
    on conflict (user_id) do update
        set balance = credit_accounts.balance + excluded.balance,
            updated_at = now()
    returning user_id, balance
),
logged as (
    insert into credit_transactions (id, user_id, amount, reason, created_at)
    select gen_random_uuid(), user_id, $2::int, $3::text, now()
    from credited
)
select balance from credited;
`
