package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"payment-lifecycle-engine/internal/core/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

const customerColumns = `id, email, first_name, last_name, phone, address, status, risk_level,
	total_transactions, successful_transactions, failed_transactions, total_amount, created_at, updated_at`

func scanCustomer(row scanner) (*domain.Customer, error) {
	var c domain.Customer
	var address []byte
	if err := row.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Phone, &address, &c.Status, &c.RiskLevel,
		&c.TotalTransactions, &c.SuccessfulTransactions, &c.FailedTransactions, &c.TotalAmount,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON(address, &c.Address); err != nil {
		return nil, fmt.Errorf("failed to decode customer address: %w", err)
	}
	return &c, nil
}

func (q *queries) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	address, err := toJSON(c.Address)
	if err != nil {
		return err
	}
	const sql = `
		INSERT INTO customers (` + customerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = q.db.Exec(ctx, sql, c.ID, c.Email, c.FirstName, c.LastName, c.Phone, address, c.Status, c.RiskLevel,
		c.TotalTransactions, c.SuccessfulTransactions, c.FailedTransactions, c.TotalAmount, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

func (q *queries) GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	sql := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1` + q.lock
	c, err := scanCustomer(q.db.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, notFound(err, "customer", id)
	}
	return c, nil
}

func (q *queries) GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	sql := `SELECT ` + customerColumns + ` FROM customers WHERE lower(email) = lower($1)` + q.lock
	c, err := scanCustomer(q.db.QueryRow(ctx, sql, email))
	if err != nil {
		return nil, notFound(err, "customer", email)
	}
	return c, nil
}

func (q *queries) UpdateCustomer(ctx context.Context, c *domain.Customer) error {
	address, err := toJSON(c.Address)
	if err != nil {
		return err
	}
	const sql = `
		UPDATE customers SET
			email = $2, first_name = $3, last_name = $4, phone = $5, address = $6, status = $7, risk_level = $8,
			total_transactions = $9, successful_transactions = $10, failed_transactions = $11, total_amount = $12,
			updated_at = $13
		WHERE id = $1`
	tag, err := q.db.Exec(ctx, sql, c.ID, c.Email, c.FirstName, c.LastName, c.Phone, address, c.Status, c.RiskLevel,
		c.TotalTransactions, c.SuccessfulTransactions, c.FailedTransactions, c.TotalAmount, c.UpdatedAt)
	return mustAffect(tag, err, "customer", c.ID)
}

const paymentMethodColumns = `id, customer_id, type, card_token, encrypted_card_data, fingerprint, card_brand,
	last4, bin, expiry_month, expiry_year, cardholder_name, is_default, status,
	total_transactions, successful_transactions, failed_transactions, total_amount,
	last_used_at, created_at, updated_at`

func scanPaymentMethod(row scanner) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := row.Scan(&pm.ID, &pm.CustomerID, &pm.Type, &pm.CardToken, &pm.EncryptedCardData, &pm.Fingerprint, &pm.CardBrand,
		&pm.Last4, &pm.BIN, &pm.ExpiryMonth, &pm.ExpiryYear, &pm.CardholderName, &pm.IsDefault, &pm.Status,
		&pm.TotalTransactions, &pm.SuccessfulTransactions, &pm.FailedTransactions, &pm.TotalAmount,
		&pm.LastUsedAt, &pm.CreatedAt, &pm.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

func (q *queries) CreatePaymentMethod(ctx context.Context, pm *domain.PaymentMethod) error {
	const sql = `
		INSERT INTO payment_methods (` + paymentMethodColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := q.db.Exec(ctx, sql, pm.ID, pm.CustomerID, pm.Type, pm.CardToken, pm.EncryptedCardData, pm.Fingerprint, pm.CardBrand,
		pm.Last4, pm.BIN, pm.ExpiryMonth, pm.ExpiryYear, pm.CardholderName, pm.IsDefault, pm.Status,
		pm.TotalTransactions, pm.SuccessfulTransactions, pm.FailedTransactions, pm.TotalAmount,
		pm.LastUsedAt, pm.CreatedAt, pm.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save payment method: %w", err)
	}
	return nil
}

func (q *queries) GetPaymentMethod(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	sql := `SELECT ` + paymentMethodColumns + ` FROM payment_methods WHERE id = $1` + q.lock
	pm, err := scanPaymentMethod(q.db.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, notFound(err, "payment method", id)
	}
	return pm, nil
}

func (q *queries) FindPaymentMethodByFingerprint(ctx context.Context, customerID uuid.UUID, fingerprint string) (*domain.PaymentMethod, error) {
	sql := `SELECT ` + paymentMethodColumns + ` FROM payment_methods WHERE customer_id = $1 AND fingerprint = $2` + q.lock
	pm, err := scanPaymentMethod(q.db.QueryRow(ctx, sql, customerID, fingerprint))
	if err != nil {
		return nil, notFound(err, "payment method", "fingerprint")
	}
	return pm, nil
}

func (q *queries) ListPaymentMethods(ctx context.Context, customerID uuid.UUID) ([]domain.PaymentMethod, error) {
	sql := `SELECT ` + paymentMethodColumns + ` FROM payment_methods WHERE customer_id = $1 ORDER BY created_at` + q.lock
	rows, err := q.db.Query(ctx, sql, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	return collect(rows, scanPaymentMethod)
}

func (q *queries) UpdatePaymentMethod(ctx context.Context, pm *domain.PaymentMethod) error {
	const sql = `
		UPDATE payment_methods SET
			card_token = $2, encrypted_card_data = $3, expiry_month = $4, expiry_year = $5,
			is_default = $6, status = $7, cardholder_name = $8,
			total_transactions = $9, successful_transactions = $10, failed_transactions = $11, total_amount = $12,
			last_used_at = $13, updated_at = $14
		WHERE id = $1`
	tag, err := q.db.Exec(ctx, sql, pm.ID, pm.CardToken, pm.EncryptedCardData, pm.ExpiryMonth, pm.ExpiryYear,
		pm.IsDefault, pm.Status, pm.CardholderName,
		pm.TotalTransactions, pm.SuccessfulTransactions, pm.FailedTransactions, pm.TotalAmount,
		pm.LastUsedAt, pm.UpdatedAt)
	return mustAffect(tag, err, "payment method", pm.ID)
}

func (q *queries) ClearDefaultPaymentMethods(ctx context.Context, customerID uuid.UUID) error {
	const sql = `UPDATE payment_methods SET is_default = FALSE WHERE customer_id = $1 AND is_default`
	if _, err := q.db.Exec(ctx, sql, customerID); err != nil {
		return fmt.Errorf("failed to clear default payment methods: %w", err)
	}
	return nil
}

// collect drains rows through scan.
func collect[T any](rows pgx.Rows, scan func(scanner) (*T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}
