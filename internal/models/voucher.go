package models

import "time"

// UsageMark records that a device consumed an offer. Only the derived device
// key (the map key) and a masked preview of the raw id are kept.
type UsageMark struct {
	At              time.Time `json:"at"`
	DeviceIDPreview string    `json:"deviceIdPreview,omitempty"`
	TransactionID   string    `json:"transactionId,omitempty"`
}

// Voucher is a single promotional code.
type Voucher struct {
	Code          string               `json:"code"`
	Name          string               `json:"name"`
	Enabled       bool                 `json:"enabled"`
	Percent       int                  `json:"percent"`
	MaxRp         int64                `json:"maxRp"`
	MaxUses       *int                 `json:"maxUses"`
	Uses          int                  `json:"uses"`
	PerDeviceOnce bool                 `json:"perDeviceOnce"`
	UsedDevices   map[string]UsageMark `json:"usedDevices,omitempty"`
	ExpiresAt     *time.Time           `json:"expiresAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// MonthlyPromo is the rotating promo whose usage cap resets every calendar
// month. UsedCount and UsedDevices belong to Month only.
type MonthlyPromo struct {
	Enabled       bool                 `json:"enabled"`
	Code          string               `json:"code"`
	Name          string               `json:"name"`
	Percent       int                  `json:"percent"`
	MaxRp         int64                `json:"maxRp"`
	MaxUses       *int                 `json:"maxUses"`
	UsedCount     int                  `json:"usedCount"`
	Month         string               `json:"month,omitempty"`
	PerDeviceOnce bool                 `json:"perDeviceOnce"`
	UsedDevices   map[string]UsageMark `json:"usedDevices,omitempty"`
	Unlimited     []string             `json:"unlimited"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// MonthKey returns the calendar month of t in loc, formatted YYYY-MM.
func MonthKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01")
}

// IsUnlimited reports whether deviceKey is on the allowlist.
func (p *MonthlyPromo) IsUnlimited(deviceKey string) bool {
	if deviceKey == "" {
		return false
	}
	for _, key := range p.Unlimited {
		if key == deviceKey {
			return true
		}
	}
	return false
}

// RollOver resets the monthly counters when month differs from the month
// they were recorded for.
func (p *MonthlyPromo) RollOver(month string) {
	if p.Month == month {
		return
	}
	p.Month = month
	p.UsedCount = 0
	p.UsedDevices = nil
}
