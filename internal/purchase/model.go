package purchase

import "time"

// Persisted order states. Quotes are ephemeral, so an order row first
// appears as RESERVED, after the debit; a successful acquisition lands it
// in AWAITING_CODE in the same update. Terminal states are DELIVERED and
// ACQUISITION_FAILED.
const (
	StateReserved          = "RESERVED"
	StateAwaitingCode      = "AWAITING_CODE"
	StateDelivered         = "DELIVERED"
	StateAcquisitionFailed = "ACQUISITION_FAILED"
)

// Order tracks one purchase through the debit/acquire/refund saga.
// RESERVED is entered only after a successful ledger debit; the reserved
// amount goes back to the account if and only if acquisition did not
// succeed.
type Order struct {
	ID              string
	AccountID       string
	Service         string
	Country         string
	Price           int64
	State           string
	ProviderOrderID string
	PhoneNumber     string
	SMSCode         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
