package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"payment-lifecycle-engine/internal/antifraud"
	"payment-lifecycle-engine/internal/card"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
	"payment-lifecycle-engine/internal/fees"
	"payment-lifecycle-engine/internal/tokenizer"
)

// Deps is the set of collaborators shared by the services.
// Store, Tokenizer and Logger are required; the rest have defaults.
type Deps struct {
	Store     ports.Store
	Gateway   ports.GatewayClient
	Payouts   ports.PayoutClient
	Publisher ports.EventPublisher
	Locker    ports.Locker
	Tokenizer *tokenizer.Tokenizer
	Validator *card.Validator
	Scorer    *antifraud.Scorer
	Fees      *fees.Calculator
	Clock     ports.Clock
	Logger    *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Publisher == nil {
		d.Publisher = discardPublisher{}
	}
	if d.Fees == nil {
		d.Fees = fees.NewCalculator()
	}
	if d.Scorer == nil {
		d.Scorer = antifraud.NewScorer(time.UTC)
	}
	if d.Validator == nil {
		d.Validator = card.NewValidator(d.Clock.Now)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// acquire takes key from the Locker when one is configured. Release errors
// are logged, since the lock expires on its own.
func (d Deps) acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error) {
	if d.Locker == nil {
		return func() {}, nil
	}
	unlock, err := d.Locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			d.Logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}, nil
}

func payoutLockKey(id uuid.UUID) string { return "payout:" + id.String() }

func transactionLockKey(id uuid.UUID) string { return "transaction:" + id.String() }

// SystemClock is wall-clock UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, domain.Event) error { return nil }

// publish sends committed events. Failures are logged only: the state change
// they describe has already been persisted.
func publish(ctx context.Context, pub ports.EventPublisher, logger *slog.Logger, events ...domain.Event) {
	for _, ev := range events {
		if err := pub.Publish(ctx, ev); err != nil {
			logger.Error("failed to publish event", "type", ev.Type, "aggregate_id", ev.AggregateID, "error", err)
		}
	}
}
