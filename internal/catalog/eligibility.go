package catalog

import (
	"time"

	"github.com/Cheertaboi/qris-discount-service/internal/models"
)

// Reason explains an eligibility decision.
type Reason string

const (
	ReasonOK          Reason = "ok"
	ReasonUnlimited   Reason = "unlimited"
	ReasonDisabled    Reason = "disabled"
	ReasonExpired     Reason = "expired"
	ReasonExhausted   Reason = "exhausted"
	ReasonAlreadyUsed Reason = "already_used"
)

// Decision is the outcome of Eligible.
type Decision struct {
	Eligible bool
	Reason   Reason
}

// Offer is the common view of a voucher and the monthly promo.
type Offer interface {
	OfferKind() models.OfferKind
	OfferCode() string
	OfferPercent() int
	OfferMaxRp() int64
	enabled() bool
	expired(now time.Time) bool
	remaining(now time.Time) (limited bool, left int)
	usedBy(deviceKey string, now time.Time) bool
}

// VoucherOffer adapts a voucher to Offer.
type VoucherOffer struct{ *models.Voucher }

func (o VoucherOffer) OfferKind() models.OfferKind { return models.KindVoucher }
func (o VoucherOffer) OfferCode() string           { return o.Code }
func (o VoucherOffer) OfferPercent() int           { return o.Percent }
func (o VoucherOffer) OfferMaxRp() int64           { return o.MaxRp }
func (o VoucherOffer) enabled() bool               { return o.Enabled }

func (o VoucherOffer) expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

func (o VoucherOffer) remaining(time.Time) (bool, int) {
	if o.MaxUses == nil {
		return false, 0
	}
	return true, *o.MaxUses - o.Uses
}

func (o VoucherOffer) usedBy(deviceKey string, _ time.Time) bool {
	_, ok := o.UsedDevices[deviceKey]
	return ok
}

// PromoOffer adapts the monthly promo to Offer. Counters recorded for another
// month count as zero.
type PromoOffer struct {
	*models.MonthlyPromo
	Location *time.Location
}

func (o PromoOffer) OfferKind() models.OfferKind { return models.KindMonthly }
func (o PromoOffer) OfferCode() string           { return o.Code }
func (o PromoOffer) OfferPercent() int           { return o.Percent }
func (o PromoOffer) OfferMaxRp() int64           { return o.MaxRp }
func (o PromoOffer) enabled() bool               { return o.Enabled }
func (o PromoOffer) expired(time.Time) bool      { return false }

func (o PromoOffer) remaining(now time.Time) (bool, int) {
	if o.MaxUses == nil {
		return false, 0
	}
	return true, *o.MaxUses - o.UsedThisMonth(now)
}

func (o PromoOffer) usedBy(deviceKey string, now time.Time) bool {
	if o.Month != models.MonthKey(now, o.Location) {
		return false
	}
	_, ok := o.UsedDevices[deviceKey]
	return ok
}

// UsedThisMonth returns the usage count for the month containing now.
func (o PromoOffer) UsedThisMonth(now time.Time) int {
	if o.Month != models.MonthKey(now, o.Location) {
		return 0
	}
	return o.UsedCount
}

// Eligible decides whether deviceKey may use offer at now. unlimited devices
// bypass every check except the offer being configured at all.
func Eligible(offer Offer, deviceKey string, unlimited bool, now time.Time) Decision {
	if unlimited {
		return Decision{Eligible: true, Reason: ReasonUnlimited}
	}
	if !offer.enabled() {
		return Decision{Reason: ReasonDisabled}
	}
	if offer.expired(now) {
		return Decision{Reason: ReasonExpired}
	}
	if limited, left := offer.remaining(now); limited && left <= 0 {
		return Decision{Reason: ReasonExhausted}
	}
	if perDeviceOnce(offer) && offer.usedBy(deviceKey, now) {
		return Decision{Reason: ReasonAlreadyUsed}
	}
	return Decision{Eligible: true, Reason: ReasonOK}
}

func perDeviceOnce(offer Offer) bool {
	switch o := offer.(type) {
	case VoucherOffer:
		return o.PerDeviceOnce
	case PromoOffer:
		return o.PerDeviceOnce
	}
	return false
}

// Discount computes floor(amount*percent/100), clamped to maxRp when it is
// positive.
func Discount(amount int64, percent int, maxRp int64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	if percent > 100 {
		percent = 100
	}
	// split to keep amount*percent from overflowing
	p := int64(percent)
	d := amount/100*p + amount%100*p/100
	if maxRp > 0 && d > maxRp {
		d = maxRp
	}
	return d
}

// FinalAmount never drops below one unit; payment providers reject zero.
func FinalAmount(amount, discount int64) int64 {
	final := amount - discount
	if final < 1 {
		return 1
	}
	return final
}
