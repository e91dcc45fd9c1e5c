package models

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input to an orchestrator operation.
// It is surfaced to the caller and never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
	}
	return "validation: " + e.Msg
}

// NotFoundError reports a payment id unknown to the repository or the gateway.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InvalidStateError reports an operation that is not legal for the payment's
// current status. It is never silently corrected.
type InvalidStateError struct {
	PaymentID string
	Status    PaymentStatus
	Msg       string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("payment %s (status %s): %s", e.PaymentID, e.Status, e.Msg)
}

// GatewayError wraps a failed remote call. Transient failures (network,
// timeout, 5xx) are eligible for a scheduler-level retry on the next sweep;
// permanent rejections are not.
type GatewayError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *GatewayError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("gateway %s (%s): %v", e.Op, kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NotificationError reports a delivery failure on the alerting channel.
// Always logged, never propagated past the notifier.
type NotificationError struct {
	Channel string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify via %s: %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsTransient(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Transient
}
