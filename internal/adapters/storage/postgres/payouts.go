package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"payment-lifecycle-engine/internal/core/domain"
)

const payoutColumns = `id, bank_account_id, amount, currency, processing_fee, net_amount, status, description,
	retry_count, max_retries, next_retry_at, failure_reason, failure_code, transfer_reference,
	processing_started_at, completed_at, failed_at, created_at, updated_at`

func scanPayout(row scanner) (*domain.Payout, error) {
	var p domain.Payout
	err := row.Scan(&p.ID, &p.BankAccountID, &p.Amount, &p.Currency, &p.ProcessingFee, &p.NetAmount, &p.Status, &p.Description,
		&p.RetryCount, &p.MaxRetries, &p.NextRetryAt, &p.FailureReason, &p.FailureCode, &p.TransferReference,
		&p.ProcessingStartedAt, &p.CompletedAt, &p.FailedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) CreatePayout(ctx context.Context, p *domain.Payout) error {
	const sql = `
		INSERT INTO payouts (` + payoutColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := q.db.Exec(ctx, sql, p.ID, p.BankAccountID, p.Amount, p.Currency, p.ProcessingFee, p.NetAmount, p.Status, p.Description,
		p.RetryCount, p.MaxRetries, p.NextRetryAt, p.FailureReason, p.FailureCode, p.TransferReference,
		p.ProcessingStartedAt, p.CompletedAt, p.FailedAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save payout: %w", err)
	}
	return nil
}

func (q *queries) GetPayout(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	sql := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1` + q.lock
	p, err := scanPayout(q.db.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, notFound(err, "payout", id)
	}
	return p, nil
}

func (q *queries) UpdatePayout(ctx context.Context, p *domain.Payout) error {
	const sql = `
		UPDATE payouts SET
			status = $2, retry_count = $3, next_retry_at = $4, failure_reason = $5, failure_code = $6,
			transfer_reference = $7, processing_started_at = $8, completed_at = $9, failed_at = $10, updated_at = $11
		WHERE id = $1`
	tag, err := q.db.Exec(ctx, sql, p.ID, p.Status, p.RetryCount, p.NextRetryAt, p.FailureReason, p.FailureCode,
		p.TransferReference, p.ProcessingStartedAt, p.CompletedAt, p.FailedAt, p.UpdatedAt)
	return mustAffect(tag, err, "payout", p.ID)
}

func (q *queries) ListRetryablePayouts(ctx context.Context, now time.Time, limit int) ([]domain.Payout, error) {
	const sql = `
		SELECT ` + payoutColumns + ` FROM payouts
		WHERE status = 'failed' AND retry_count < max_retries
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at
		LIMIT $2`
	rows, err := q.db.Query(ctx, sql, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable payouts: %w", err)
	}
	return collect(rows, scanPayout)
}

func (q *queries) ListStalePayouts(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payout, error) {
	const sql = `
		SELECT ` + payoutColumns + ` FROM payouts
		WHERE status = 'processing' AND processing_started_at < $1
		ORDER BY processing_started_at
		LIMIT $2`
	rows, err := q.db.Query(ctx, sql, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale payouts: %w", err)
	}
	return collect(rows, scanPayout)
}

const bankAccountColumns = `id, owner_id, account_holder_name, bank_name, encrypted_account_number, encrypted_routing_number,
	account_last4, currency, status, verification_status, minimum_payout_amount, is_default,
	total_payouts, total_payout_amount, last_payout_date, verified_at, created_at, updated_at`

func scanBankAccount(row scanner) (*domain.BankAccount, error) {
	var b domain.BankAccount
	err := row.Scan(&b.ID, &b.OwnerID, &b.AccountHolderName, &b.BankName, &b.EncryptedAccountNumber, &b.EncryptedRoutingNumber,
		&b.AccountLast4, &b.Currency, &b.Status, &b.VerificationStatus, &b.MinimumPayoutAmount, &b.IsDefault,
		&b.TotalPayouts, &b.TotalPayoutAmount, &b.LastPayoutDate, &b.VerifiedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (q *queries) CreateBankAccount(ctx context.Context, b *domain.BankAccount) error {
	const sql = `
		INSERT INTO bank_accounts (` + bankAccountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := q.db.Exec(ctx, sql, b.ID, b.OwnerID, b.AccountHolderName, b.BankName, b.EncryptedAccountNumber, b.EncryptedRoutingNumber,
		b.AccountLast4, b.Currency, b.Status, b.VerificationStatus, b.MinimumPayoutAmount, b.IsDefault,
		b.TotalPayouts, b.TotalPayoutAmount, b.LastPayoutDate, b.VerifiedAt, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save bank account: %w", err)
	}
	return nil
}

func (q *queries) GetBankAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	sql := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE id = $1` + q.lock
	b, err := scanBankAccount(q.db.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, notFound(err, "bank account", id)
	}
	return b, nil
}

func (q *queries) UpdateBankAccount(ctx context.Context, b *domain.BankAccount) error {
	const sql = `
		UPDATE bank_accounts SET
			status = $2, verification_status = $3, minimum_payout_amount = $4, is_default = $5,
			total_payouts = $6, total_payout_amount = $7, last_payout_date = $8, verified_at = $9, updated_at = $10
		WHERE id = $1`
	tag, err := q.db.Exec(ctx, sql, b.ID, b.Status, b.VerificationStatus, b.MinimumPayoutAmount, b.IsDefault,
		b.TotalPayouts, b.TotalPayoutAmount, b.LastPayoutDate, b.VerifiedAt, b.UpdatedAt)
	return mustAffect(tag, err, "bank account", b.ID)
}

// ClearDefaultBankAccounts takes a transaction-scoped advisory lock on the owner
// first, so concurrent set-default calls for one owner serialize here.
func (q *queries) ClearDefaultBankAccounts(ctx context.Context, ownerID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, ownerID); err != nil {
		return fmt.Errorf("failed to lock bank account owner: %w", err)
	}
	const sql = `UPDATE bank_accounts SET is_default = FALSE WHERE owner_id = $1 AND is_default`
	if _, err := q.db.Exec(ctx, sql, ownerID); err != nil {
		return fmt.Errorf("failed to clear default bank accounts: %w", err)
	}
	return nil
}
