package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"payment-lifecycle-engine/internal/core/domain"
)

const transactionColumns = `id, customer_id, payment_method_id, amount, currency, status, processing_fee, net_amount,
	refunded_amount, refundable_amount, order_id, description, metadata, risk,
	gateway_transaction_id, response_code, response_message, processing_time_ms, cancel_reason,
	processing_started_at, completed_at, failed_at, cancelled_at, created_at, updated_at`

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var metadata, risk []byte
	err := row.Scan(&tx.ID, &tx.CustomerID, &tx.PaymentMethodID, &tx.Amount, &tx.Currency, &tx.Status, &tx.ProcessingFee, &tx.NetAmount,
		&tx.RefundedAmount, &tx.RefundableAmount, &tx.OrderID, &tx.Description, &metadata, &risk,
		&tx.GatewayTransactionID, &tx.ResponseCode, &tx.ResponseMessage, &tx.ProcessingTimeMs, &tx.CancelReason,
		&tx.ProcessingStartedAt, &tx.CompletedAt, &tx.FailedAt, &tx.CancelledAt, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(metadata, &tx.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode transaction metadata: %w", err)
	}
	if err := fromJSON(risk, &tx.Risk); err != nil {
		return nil, fmt.Errorf("failed to decode risk assessment: %w", err)
	}
	return &tx, nil
}

func (q *queries) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	metadata, err := toJSON(tx.Metadata)
	if err != nil {
		return err
	}
	risk, err := toJSON(tx.Risk)
	if err != nil {
		return err
	}
	const sql = `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`
	_, err = q.db.Exec(ctx, sql, tx.ID, tx.CustomerID, tx.PaymentMethodID, tx.Amount, tx.Currency, tx.Status, tx.ProcessingFee, tx.NetAmount,
		tx.RefundedAmount, tx.RefundableAmount, tx.OrderID, tx.Description, metadata, risk,
		tx.GatewayTransactionID, tx.ResponseCode, tx.ResponseMessage, tx.ProcessingTimeMs, tx.CancelReason,
		tx.ProcessingStartedAt, tx.CompletedAt, tx.FailedAt, tx.CancelledAt, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

func (q *queries) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1` + q.lock
	tx, err := scanTransaction(q.db.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, notFound(err, "transaction", id)
	}
	return tx, nil
}

func (q *queries) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	risk, err := toJSON(tx.Risk)
	if err != nil {
		return err
	}
	const sql = `
		UPDATE transactions SET
			status = $2, refunded_amount = $3, refundable_amount = $4, risk = $5,
			gateway_transaction_id = $6, response_code = $7, response_message = $8,
			processing_time_ms = $9, cancel_reason = $10, processing_started_at = $11,
			completed_at = $12, failed_at = $13, cancelled_at = $14, updated_at = $15
		WHERE id = $1`
	tag, err := q.db.Exec(ctx, sql, tx.ID, tx.Status, tx.RefundedAmount, tx.RefundableAmount, risk,
		tx.GatewayTransactionID, tx.ResponseCode, tx.ResponseMessage,
		tx.ProcessingTimeMs, tx.CancelReason, tx.ProcessingStartedAt,
		tx.CompletedAt, tx.FailedAt, tx.CancelledAt, tx.UpdatedAt)
	return mustAffect(tag, err, "transaction", tx.ID)
}

func (q *queries) ListStaleTransactions(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	const sql = `
		SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = 'processing' AND processing_started_at < $1
		ORDER BY processing_started_at
		LIMIT $2`
	rows, err := q.db.Query(ctx, sql, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale transactions: %w", err)
	}
	return collect(rows, scanTransaction)
}

const refundColumns = `id, transaction_id, customer_id, amount, currency, refund_fee, net_refund_amount, refund_type,
	reason, status, requires_approval, initiated_by, approved_by, approved_at, gateway_refund_id,
	response_code, response_message, cancel_reason, processing_started_at, processed_at, created_at, updated_at`

func scanRefund(row scanner) (*domain.Refund, error) {
	var r domain.Refund
	err := row.Scan(&r.ID, &r.TransactionID, &r.CustomerID, &r.Amount, &r.Currency, &r.RefundFee, &r.NetRefundAmount, &r.RefundType,
		&r.Reason, &r.Status, &r.RequiresApproval, &r.InitiatedBy, &r.ApprovedBy, &r.ApprovedAt, &r.GatewayRefundID,
		&r.ResponseCode, &r.ResponseMessage, &r.CancelReason, &r.ProcessingStartedAt, &r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) CreateRefund(ctx context.Context, r *domain.Refund) error {
	const sql = `
		INSERT INTO refunds (` + refundColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := q.db.Exec(ctx, sql, r.ID, r.TransactionID, r.CustomerID, r.Amount, r.Currency, r.RefundFee, r.NetRefundAmount, r.RefundType,
		r.Reason, r.Status, r.RequiresApproval, r.InitiatedBy, r.ApprovedBy, r.ApprovedAt, r.GatewayRefundID,
		r.ResponseCode, r.ResponseMessage, r.CancelReason, r.ProcessingStartedAt, r.ProcessedAt, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save refund: %w", err)
	}
	return nil
}

func (q *queries) GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	sql := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1` + q.lock
	r, err := scanRefund(q.db.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, notFound(err, "refund", id)
	}
	return r, nil
}

func (q *queries) UpdateRefund(ctx context.Context, r *domain.Refund) error {
	const sql = `
		UPDATE refunds SET
			refund_type = $2, status = $3, approved_by = $4, approved_at = $5, gateway_refund_id = $6,
			response_code = $7, response_message = $8, cancel_reason = $9,
			processing_started_at = $10, processed_at = $11, updated_at = $12
		WHERE id = $1`
	tag, err := q.db.Exec(ctx, sql, r.ID, r.RefundType, r.Status, r.ApprovedBy, r.ApprovedAt, r.GatewayRefundID,
		r.ResponseCode, r.ResponseMessage, r.CancelReason,
		r.ProcessingStartedAt, r.ProcessedAt, r.UpdatedAt)
	return mustAffect(tag, err, "refund", r.ID)
}

func (q *queries) ListRefundsByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.Refund, error) {
	sql := `SELECT ` + refundColumns + ` FROM refunds WHERE transaction_id = $1 ORDER BY created_at` + q.lock
	rows, err := q.db.Query(ctx, sql, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return collect(rows, scanRefund)
}

func (q *queries) ListStaleRefunds(ctx context.Context, cutoff time.Time, limit int) ([]domain.Refund, error) {
	const sql = `
		SELECT ` + refundColumns + ` FROM refunds
		WHERE status = 'processing' AND processing_started_at < $1
		ORDER BY processing_started_at
		LIMIT $2`
	rows, err := q.db.Query(ctx, sql, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale refunds: %w", err)
	}
	return collect(rows, scanRefund)
}
