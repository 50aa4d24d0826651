package provider

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Static simulates the activation provider for tests and local
// development. Prices are keyed by "service:country"; pairs without an
// entry are not available.
type Static struct {
	mu     sync.RWMutex
	prices map[string]float64
	sms    map[string]SMSStatus

	// FailAcquire forces AcquireNumber to refuse, mimicking the provider
	// running out of stock.
	FailAcquire bool
}

// NewStatic builds a stub provider with a small default catalog.
func NewStatic() *Static {
	return &Static{
		prices: map[string]float64{
			"telegram:us": 30,
			"telegram:gb": 42.5,
			"whatsapp:us": 55,
		},
		sms: make(map[string]SMSStatus),
	}
}

// SetPrice registers or overrides a price for a service/country pair.
func (s *Static) SetPrice(service, country string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[service+":"+country] = price
}

// DeliverCode marks an order's SMS as received with the given code.
func (s *Static) DeliverCode(orderID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sms[orderID] = SMSStatus{State: SMSReceived, Code: code}
}

func (s *Static) Countries(_ context.Context) ([]Country, error) {
	return []Country{{Code: "us", Name: "United States"}, {Code: "gb", Name: "United Kingdom"}}, nil
}

func (s *Static) Services(_ context.Context) ([]Service, error) {
	return []Service{{Code: "telegram", Name: "Telegram"}, {Code: "whatsapp", Name: "WhatsApp"}}, nil
}

func (s *Static) ServicePrice(_ context.Context, service, country string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[service+":"+country]
	if !ok {
		return 0, ErrNotAvailable
	}
	return price, nil
}

func (s *Static) AcquireNumber(_ context.Context, service, country string) (Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAcquire {
		return Acquisition{}, ErrAcquisitionFailed
	}
	if _, ok := s.prices[service+":"+country]; !ok {
		return Acquisition{}, ErrNotAvailable
	}
	orderID := uuid.NewString()
	s.sms[orderID] = SMSStatus{State: SMSWaiting}
	return Acquisition{OrderID: orderID, Number: "+15550001234"}, nil
}

func (s *Static) SMSStatus(_ context.Context, orderID string) (SMSStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.sms[orderID]
	if !ok {
		return SMSStatus{}, ErrAcquisitionFailed
	}
	return status, nil
}
