package provider

import (
	"context"
	"errors"
)

// Upstream failure classes. Callers treat all of them as recoverable: a
// failed acquire triggers a refund, a failed poll leaves the order as-is.
var (
	ErrTimeout         = errors.New("provider: request timed out")
	ErrUnavailable     = errors.New("provider: service unavailable")
	ErrInvalidResponse = errors.New("provider: invalid response")
)

// AcquireResult is a validated number acquisition.
type AcquireResult struct {
	OrderID string
	Number  string
}

// PollResult is one poll of a pending order. Code is empty while the SMS
// has not arrived; Status then carries the upstream state ("waiting_sms",
// "timeout", ...).
type PollResult struct {
	Code   string
	Status string
}

// Adapter is the phone-number provider contract. Implementations validate
// the upstream response shape at this boundary so the order flow never
// sees raw provider payloads.
type Adapter interface {
	AcquireNumber(ctx context.Context, service, country string) (AcquireResult, error)
	PollCode(ctx context.Context, providerOrderID string) (PollResult, error)
	Release(ctx context.Context, providerOrderID string) error
	Balance(ctx context.Context) (float64, error)
	Prices(ctx context.Context) (map[string]map[string]float64, error)
}
