package domain

import (
	"errors"
	"fmt"
)

// Taxonomy sentinels. Typed errors below match them through errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrCard            = errors.New("card rejected")
	ErrPaymentDeclined = errors.New("payment declined")
	ErrProcessing      = errors.New("processing failed")
	ErrInvalidState    = errors.New("invalid state transition")
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrCustomerInactive   = errors.New("customer is not active")
	ErrInvariantViolation = errors.New("balance invariant violated")
	ErrStorageUnavailable = errors.New("database is unavailable")
	ErrBrokerUnavailable  = errors.New("kafka broker is unavailable")
	ErrLockNotAcquired    = errors.New("lock is held by another worker")
)

// ValidationError reports bad input shape or range.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CardError reports a Luhn, expiry or CVV failure. Never retried.
type CardError struct {
	Code    ResponseCode
	Message string
	Details []string
}

func (e *CardError) Error() string {
	return fmt.Sprintf("card error %s: %s", e.Code, e.Message)
}

func (e *CardError) Is(target error) bool { return target == ErrCard }

// PaymentError is a decline returned by risk checks or the gateway.
type PaymentError struct {
	Code    ResponseCode
	Message string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment declined %s: %s", e.Code, e.Message)
}

func (e *PaymentError) Is(target error) bool { return target == ErrPaymentDeclined }

// ProcessingError wraps a gateway or transport failure.
type ProcessingError struct {
	Code    ResponseCode
	Message string
	Err     error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("processing error %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("processing error %s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Is(target error) bool { return target == ErrProcessing }

func (e *ProcessingError) Unwrap() error { return e.Err }

// InvalidStateError reports an illegal lifecycle transition.
type InvalidStateError struct {
	Entity string
	From   string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s in status %q", e.Action, e.Entity, e.From)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

func invalidState(entity, from, action string) error {
	return &InvalidStateError{Entity: entity, From: from, Action: action}
}

// ErrNotEligible matches IneligibleError.
var ErrNotEligible = errors.New("not eligible")

// IneligibleError reports a workflow precondition that is not met, such as a
// refund on a transaction older than the refund window.
type IneligibleError struct {
	Entity string
	Reason string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("%s not eligible: %s", e.Entity, e.Reason)
}

func (e *IneligibleError) Is(target error) bool {
	return target == ErrNotEligible || target == ErrInvalidState
}
