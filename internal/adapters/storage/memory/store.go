// Package memory is an in-process implementation of ports.Store used for tests
// and local development without a running PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

type dataset struct {
	customers      map[uuid.UUID]domain.Customer
	paymentMethods map[uuid.UUID]domain.PaymentMethod
	transactions   map[uuid.UUID]domain.Transaction
	refunds        map[uuid.UUID]domain.Refund
	payouts        map[uuid.UUID]domain.Payout
	bankAccounts   map[uuid.UUID]domain.BankAccount
}

func newDataset() *dataset {
	return &dataset{
		customers:      map[uuid.UUID]domain.Customer{},
		paymentMethods: map[uuid.UUID]domain.PaymentMethod{},
		transactions:   map[uuid.UUID]domain.Transaction{},
		refunds:        map[uuid.UUID]domain.Refund{},
		payouts:        map[uuid.UUID]domain.Payout{},
		bankAccounts:   map[uuid.UUID]domain.BankAccount{},
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.customers {
		c.customers[k] = v
	}
	for k, v := range d.paymentMethods {
		c.paymentMethods[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = v
	}
	for k, v := range d.refunds {
		c.refunds[k] = v
	}
	for k, v := range d.payouts {
		c.payouts[k] = v
	}
	for k, v := range d.bankAccounts {
		c.bankAccounts[k] = v
	}
	return c
}

// Store serializes WithinTx callbacks and rolls the dataset back when a callback fails.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *dataset
}

var _ ports.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{data: newDataset()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func notFound(entity string, id any) error {
	return fmt.Errorf("%w: %s %v", domain.ErrNotFound, entity, id)
}

// --- customers ---

func (s *Store) CreateCustomer(_ context.Context, c *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.customers {
		if strings.EqualFold(existing.Email, c.Email) {
			return fmt.Errorf("customer with email %s already exists", c.Email)
		}
	}
	s.data.customers[c.ID] = *c
	return nil
}

func (s *Store) GetCustomer(_ context.Context, id uuid.UUID) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data.customers[id]
	if !ok {
		return nil, notFound("customer", id)
	}
	return &c, nil
}

func (s *Store) GetCustomerByEmail(_ context.Context, email string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.data.customers {
		if strings.EqualFold(c.Email, email) {
			return &c, nil
		}
	}
	return nil, notFound("customer", email)
}

func (s *Store) UpdateCustomer(_ context.Context, c *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.customers[c.ID]; !ok {
		return notFound("customer", c.ID)
	}
	s.data.customers[c.ID] = *c
	return nil
}

// --- payment methods ---

func (s *Store) CreatePaymentMethod(_ context.Context, pm *domain.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.paymentMethods[pm.ID] = *pm
	return nil
}

func (s *Store) GetPaymentMethod(_ context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pm, ok := s.data.paymentMethods[id]
	if !ok {
		return nil, notFound("payment method", id)
	}
	return &pm, nil
}

func (s *Store) FindPaymentMethodByFingerprint(_ context.Context, customerID uuid.UUID, fingerprint string) (*domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, pm := range s.data.paymentMethods {
		if pm.CustomerID == customerID && pm.Fingerprint == fingerprint {
			return &pm, nil
		}
	}
	return nil, notFound("payment method", fingerprint)
}

func (s *Store) ListPaymentMethods(_ context.Context, customerID uuid.UUID) ([]domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PaymentMethod
	for _, pm := range s.data.paymentMethods {
		if pm.CustomerID == customerID {
			out = append(out, pm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdatePaymentMethod(_ context.Context, pm *domain.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.paymentMethods[pm.ID]; !ok {
		return notFound("payment method", pm.ID)
	}
	s.data.paymentMethods[pm.ID] = *pm
	return nil
}

func (s *Store) ClearDefaultPaymentMethods(_ context.Context, customerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pm := range s.data.paymentMethods {
		if pm.CustomerID == customerID && pm.IsDefault {
			pm.IsDefault = false
			s.data.paymentMethods[id] = pm
		}
	}
	return nil
}

// --- transactions ---

func (s *Store) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.transactions[tx.ID]; ok {
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	s.data.transactions[tx.ID] = *tx
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.data.transactions[id]
	if !ok {
		return nil, notFound("transaction", id)
	}
	return &tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.transactions[tx.ID]; !ok {
		return notFound("transaction", tx.ID)
	}
	s.data.transactions[tx.ID] = *tx
	return nil
}

func (s *Store) ListStaleTransactions(_ context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Transaction
	for _, tx := range s.data.transactions {
		if tx.Status == domain.StatusProcessing && tx.ProcessingStartedAt != nil && tx.ProcessingStartedAt.Before(cutoff) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessingStartedAt.Before(*out[j].ProcessingStartedAt) })
	return truncate(out, limit), nil
}

// --- refunds ---

func (s *Store) CreateRefund(_ context.Context, r *domain.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.refunds[r.ID] = *r
	return nil
}

func (s *Store) GetRefund(_ context.Context, id uuid.UUID) (*domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data.refunds[id]
	if !ok {
		return nil, notFound("refund", id)
	}
	return &r, nil
}

func (s *Store) UpdateRefund(_ context.Context, r *domain.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.refunds[r.ID]; !ok {
		return notFound("refund", r.ID)
	}
	s.data.refunds[r.ID] = *r
	return nil
}

func (s *Store) ListRefundsByTransaction(_ context.Context, transactionID uuid.UUID) ([]domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Refund
	for _, r := range s.data.refunds {
		if r.TransactionID == transactionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListStaleRefunds(_ context.Context, cutoff time.Time, limit int) ([]domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Refund
	for _, r := range s.data.refunds {
		if r.Status == domain.RefundProcessing && r.ProcessingStartedAt != nil && r.ProcessingStartedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessingStartedAt.Before(*out[j].ProcessingStartedAt) })
	return truncate(out, limit), nil
}

// --- payouts ---

func (s *Store) CreatePayout(_ context.Context, p *domain.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.payouts[p.ID] = *p
	return nil
}

func (s *Store) GetPayout(_ context.Context, id uuid.UUID) (*domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.payouts[id]
	if !ok {
		return nil, notFound("payout", id)
	}
	return &p, nil
}

func (s *Store) UpdatePayout(_ context.Context, p *domain.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.payouts[p.ID]; !ok {
		return notFound("payout", p.ID)
	}
	s.data.payouts[p.ID] = *p
	return nil
}

func (s *Store) ListRetryablePayouts(_ context.Context, now time.Time, limit int) ([]domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Payout
	for _, p := range s.data.payouts {
		if p.Retryable(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func (s *Store) ListStalePayouts(_ context.Context, cutoff time.Time, limit int) ([]domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Payout
	for _, p := range s.data.payouts {
		if p.Status == domain.PayoutProcessing && p.ProcessingStartedAt != nil && p.ProcessingStartedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessingStartedAt.Before(*out[j].ProcessingStartedAt) })
	return truncate(out, limit), nil
}

// --- bank accounts ---

func (s *Store) CreateBankAccount(_ context.Context, b *domain.BankAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.bankAccounts[b.ID] = *b
	return nil
}

func (s *Store) GetBankAccount(_ context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data.bankAccounts[id]
	if !ok {
		return nil, notFound("bank account", id)
	}
	return &b, nil
}

func (s *Store) UpdateBankAccount(_ context.Context, b *domain.BankAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.bankAccounts[b.ID]; !ok {
		return notFound("bank account", b.ID)
	}
	s.data.bankAccounts[b.ID] = *b
	return nil
}

func (s *Store) ClearDefaultBankAccounts(_ context.Context, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.data.bankAccounts {
		if b.OwnerID == ownerID && b.IsDefault {
			b.IsDefault = false
			s.data.bankAccounts[id] = b
		}
	}
	return nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
