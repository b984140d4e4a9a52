package models

import "time"

// ReservationState is the lifecycle state of a discount reservation.
type ReservationState string

const (
	StatePending   ReservationState = "pending"
	StateCommitted ReservationState = "committed"
	StateReleased  ReservationState = "released"
	StateExpired   ReservationState = "expired"
)

// OfferKind tells which offer a reservation holds capacity on.
type OfferKind string

const (
	KindVoucher OfferKind = "voucher"
	KindMonthly OfferKind = "monthly"
)

// Reservation is a time-bounded claim on an offer, keyed by transaction id.
// Counters are only touched when it is committed.
type Reservation struct {
	TransactionID   string           `json:"transactionId"`
	DeviceKey       string           `json:"deviceKey"`
	DeviceIDPreview string           `json:"deviceIdPreview,omitempty"`
	Kind            OfferKind        `json:"kind"`
	Code            string           `json:"code"`
	RequestedCode   string           `json:"requestedCode,omitempty"`
	AmountOriginal  int64            `json:"amountOriginal"`
	AmountFinal     int64            `json:"amountFinal"`
	DiscountRp      int64            `json:"discountRp"`
	Unlimited       bool             `json:"unlimited,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	ExpiresAt       time.Time        `json:"expiresAt"`
	State           ReservationState `json:"state"`
	SettledAt       *time.Time       `json:"settledAt,omitempty"`
	PaidVia         string           `json:"paidVia,omitempty"`
}

// EffectiveState resolves lazy expiry: a pending reservation past its TTL is
// expired even if nobody persisted that yet.
func (r *Reservation) EffectiveState(now time.Time) ReservationState {
	if r.State == StatePending && now.After(r.ExpiresAt) {
		return StateExpired
	}
	return r.State
}

// Settle moves the reservation into a terminal state.
func (r *Reservation) Settle(state ReservationState, now time.Time) {
	r.State = state
	at := now.UTC()
	r.SettledAt = &at
}
