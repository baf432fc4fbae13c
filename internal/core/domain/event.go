package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTransactionCompleted  EventType = "transaction.completed"
	EventTransactionFailed     EventType = "transaction.failed"
	EventTransactionCancelled  EventType = "transaction.cancelled"
	EventRefundPendingApproval EventType = "refund.pending_approval"
	EventRefundCompleted       EventType = "refund.completed"
	EventRefundFailed          EventType = "refund.failed"
	EventRefundCancelled       EventType = "refund.cancelled"
	EventPayoutCompleted       EventType = "payout.completed"
	EventPayoutFailed          EventType = "payout.failed"
)

// Event is a lifecycle notification published after the state change commits.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Type        EventType `json:"type"`
	AggregateID uuid.UUID `json:"aggregateId"`
	OccurredAt  time.Time `json:"occurredAt"`
	Payload     any       `json:"payload"`
}

// NewEvent stamps a new event.
func NewEvent(t EventType, aggregateID uuid.UUID, payload any, now time.Time) Event {
	return Event{ID: uuid.New(), Type: t, AggregateID: aggregateID, OccurredAt: now, Payload: payload}
}
