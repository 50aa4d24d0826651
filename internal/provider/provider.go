package provider

import (
	"context"
	"errors"
)

var (
	// ErrNotAvailable indicates the service/country pair has no offer. Not
	// a failure: it is reported to clients as an availability condition.
	ErrNotAvailable = errors.New("service not available for country")

	// ErrAcquisitionFailed indicates the provider explicitly refused to
	// hand out a number (no stock, blocked country, etc).
	ErrAcquisitionFailed = errors.New("number acquisition failed")

	// ErrUnavailable indicates a transport-level failure talking to the
	// provider, including caller deadlines expiring mid-call.
	ErrUnavailable = errors.New("provider unavailable")
)

// Country is a catalog entry passed through to the transport layer.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Service is a catalog entry passed through to the transport layer.
type Service struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Acquisition is a successfully leased number.
type Acquisition struct {
	OrderID string
	Number  string
}

// SMS status states reported by the provider.
const (
	SMSWaiting  = "waiting"
	SMSReceived = "received"
)

// SMSStatus is the outcome of polling an activation order.
type SMSStatus struct {
	State string
	Code  string
}

// Gateway abstracts the external number-activation API. Calls carry no
// internal timeout; the caller's context bounds each request.
type Gateway interface {
	Countries(ctx context.Context) ([]Country, error)
	Services(ctx context.Context) ([]Service, error)

	// ServicePrice returns the provider's base price in provider units, or
	// ErrNotAvailable when the pair has no offer.
	ServicePrice(ctx context.Context, service, country string) (float64, error)

	// AcquireNumber leases a phone number for the service/country pair.
	AcquireNumber(ctx context.Context, service, country string) (Acquisition, error)

	// SMSStatus polls an activation order for a received code.
	SMSStatus(ctx context.Context, orderID string) (SMSStatus, error)
}
