package postgres

const schema = `
CREATE TABLE IF NOT EXISTS customers (
    id                      UUID PRIMARY KEY,
    email                   TEXT NOT NULL UNIQUE,
    first_name              TEXT NOT NULL DEFAULT '',
    last_name               TEXT NOT NULL DEFAULT '',
    phone                   TEXT NOT NULL DEFAULT '',
    address                 JSONB,
    status                  TEXT NOT NULL,
    risk_level              TEXT NOT NULL,
    total_transactions      BIGINT NOT NULL DEFAULT 0,
    successful_transactions BIGINT NOT NULL DEFAULT 0,
    failed_transactions     BIGINT NOT NULL DEFAULT 0,
    total_amount            BIGINT NOT NULL DEFAULT 0,
    created_at              TIMESTAMPTZ NOT NULL,
    updated_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_methods (
    id                      UUID PRIMARY KEY,
    customer_id             UUID NOT NULL REFERENCES customers(id),
    type                    TEXT NOT NULL,
    card_token              CHAR(32) NOT NULL UNIQUE,
    encrypted_card_data     TEXT NOT NULL,
    fingerprint             TEXT NOT NULL,
    card_brand              TEXT NOT NULL,
    last4                   CHAR(4) NOT NULL,
    bin                     CHAR(6) NOT NULL,
    expiry_month            INT NOT NULL,
    expiry_year             INT NOT NULL,
    cardholder_name         TEXT NOT NULL DEFAULT '',
    is_default              BOOLEAN NOT NULL DEFAULT FALSE,
    status                  TEXT NOT NULL,
    total_transactions      BIGINT NOT NULL DEFAULT 0,
    successful_transactions BIGINT NOT NULL DEFAULT 0,
    failed_transactions     BIGINT NOT NULL DEFAULT 0,
    total_amount            BIGINT NOT NULL DEFAULT 0,
    last_used_at            TIMESTAMPTZ,
    created_at              TIMESTAMPTZ NOT NULL,
    updated_at              TIMESTAMPTZ NOT NULL,
    UNIQUE (customer_id, fingerprint)
);

CREATE UNIQUE INDEX IF NOT EXISTS payment_methods_one_default
    ON payment_methods (customer_id) WHERE is_default;

CREATE TABLE IF NOT EXISTS transactions (
    id                     UUID PRIMARY KEY,
    customer_id            UUID NOT NULL REFERENCES customers(id),
    payment_method_id      UUID NOT NULL REFERENCES payment_methods(id),
    amount                 BIGINT NOT NULL CHECK (amount > 0),
    currency               CHAR(3) NOT NULL,
    status                 TEXT NOT NULL,
    processing_fee         BIGINT NOT NULL,
    net_amount             BIGINT NOT NULL,
    refunded_amount        BIGINT NOT NULL DEFAULT 0,
    refundable_amount      BIGINT NOT NULL,
    order_id               TEXT NOT NULL DEFAULT '',
    description            TEXT NOT NULL DEFAULT '',
    metadata               JSONB,
    risk                   JSONB,
    gateway_transaction_id TEXT NOT NULL DEFAULT '',
    response_code          TEXT NOT NULL DEFAULT '',
    response_message       TEXT NOT NULL DEFAULT '',
    processing_time_ms     BIGINT NOT NULL DEFAULT 0,
    cancel_reason          TEXT NOT NULL DEFAULT '',
    processing_started_at  TIMESTAMPTZ,
    completed_at           TIMESTAMPTZ,
    failed_at              TIMESTAMPTZ,
    cancelled_at           TIMESTAMPTZ,
    created_at             TIMESTAMPTZ NOT NULL,
    updated_at             TIMESTAMPTZ NOT NULL,
    CHECK (refundable_amount + refunded_amount = amount)
);

CREATE INDEX IF NOT EXISTS transactions_processing
    ON transactions (processing_started_at) WHERE status = 'processing';

CREATE TABLE IF NOT EXISTS refunds (
    id                    UUID PRIMARY KEY,
    transaction_id        UUID NOT NULL REFERENCES transactions(id),
    customer_id           UUID NOT NULL REFERENCES customers(id),
    amount                BIGINT NOT NULL CHECK (amount > 0),
    currency              CHAR(3) NOT NULL,
    refund_fee            BIGINT NOT NULL,
    net_refund_amount     BIGINT NOT NULL,
    refund_type           TEXT NOT NULL,
    reason                TEXT NOT NULL,
    status                TEXT NOT NULL,
    requires_approval     BOOLEAN NOT NULL,
    initiated_by          TEXT NOT NULL DEFAULT '',
    approved_by           TEXT NOT NULL DEFAULT '',
    approved_at           TIMESTAMPTZ,
    gateway_refund_id     TEXT NOT NULL DEFAULT '',
    response_code         TEXT NOT NULL DEFAULT '',
    response_message      TEXT NOT NULL DEFAULT '',
    cancel_reason         TEXT NOT NULL DEFAULT '',
    processing_started_at TIMESTAMPTZ,
    processed_at          TIMESTAMPTZ,
    created_at            TIMESTAMPTZ NOT NULL,
    updated_at            TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS refunds_one_in_flight
    ON refunds (transaction_id) WHERE status IN ('pending', 'processing');

CREATE TABLE IF NOT EXISTS bank_accounts (
    id                       UUID PRIMARY KEY,
    owner_id                 UUID NOT NULL,
    account_holder_name      TEXT NOT NULL,
    bank_name                TEXT NOT NULL DEFAULT '',
    encrypted_account_number TEXT NOT NULL,
    encrypted_routing_number TEXT NOT NULL,
    account_last4            CHAR(4) NOT NULL,
    currency                 CHAR(3) NOT NULL,
    status                   TEXT NOT NULL,
    verification_status      TEXT NOT NULL,
    minimum_payout_amount    BIGINT NOT NULL DEFAULT 0,
    is_default               BOOLEAN NOT NULL DEFAULT FALSE,
    total_payouts            BIGINT NOT NULL DEFAULT 0,
    total_payout_amount      BIGINT NOT NULL DEFAULT 0,
    last_payout_date         TIMESTAMPTZ,
    verified_at              TIMESTAMPTZ,
    created_at               TIMESTAMPTZ NOT NULL,
    updated_at               TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS bank_accounts_one_default
    ON bank_accounts (owner_id) WHERE is_default AND status = 'active';

CREATE TABLE IF NOT EXISTS payouts (
    id                    UUID PRIMARY KEY,
    bank_account_id       UUID NOT NULL REFERENCES bank_accounts(id),
    amount                BIGINT NOT NULL CHECK (amount > 0),
    currency              CHAR(3) NOT NULL,
    processing_fee        BIGINT NOT NULL,
    net_amount            BIGINT NOT NULL,
    status                TEXT NOT NULL,
    description           TEXT NOT NULL DEFAULT '',
    retry_count           INT NOT NULL DEFAULT 0,
    max_retries           INT NOT NULL,
    next_retry_at         TIMESTAMPTZ,
    failure_reason        TEXT NOT NULL DEFAULT '',
    failure_code          TEXT NOT NULL DEFAULT '',
    transfer_reference    TEXT NOT NULL DEFAULT '',
    processing_started_at TIMESTAMPTZ,
    completed_at          TIMESTAMPTZ,
    failed_at             TIMESTAMPTZ,
    created_at            TIMESTAMPTZ NOT NULL,
    updated_at            TIMESTAMPTZ NOT NULL,
    CHECK (retry_count <= max_retries)
);

CREATE INDEX IF NOT EXISTS payouts_retry_due
    ON payouts (next_retry_at) WHERE status = 'failed';
`
