package catalog

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/Cheertaboi/qris-discount-service/internal/models"
)

// Optional tracks whether a field was present in the input, so that an
// explicit null can be told apart from an omitted field.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some returns a present, non-null optional.
func Some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: &v} }

// Null returns a present, explicitly null optional.
func Null[T any]() Optional[T] { return Optional[T]{Set: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// VoucherInput is the admin payload for UpsertVoucher. MaxUses and ExpiresAt
// must be present; null clears them.
type VoucherInput struct {
	Code          string           `json:"code"`
	Name          string           `json:"name"`
	Enabled       *bool            `json:"enabled"`
	Percent       *float64         `json:"percent"`
	MaxRp         *int64           `json:"maxRp"`
	MaxUses       Optional[int]    `json:"maxUses"`
	PerDeviceOnce bool             `json:"perDeviceOnce"`
	ExpiresAt     Optional[string] `json:"expiresAt"`
}

// PromoConfig is the configurable part of the monthly promo.
type PromoConfig struct {
	Enabled       *bool         `json:"enabled"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Percent       *float64      `json:"percent"`
	MaxRp         *int64        `json:"maxRp"`
	MaxUses       Optional[int] `json:"maxUses"`
	PerDeviceOnce bool          `json:"perDeviceOnce"`
}

// MonthlyPromoChange is the admin payload for SetMonthlyPromo. Exactly one
// member must be set.
type MonthlyPromoChange struct {
	Config                   *PromoConfig `json:"config,omitempty"`
	AddUnlimitedDeviceKey    string       `json:"addUnlimitedDeviceKey,omitempty"`
	RemoveUnlimitedDeviceKey string       `json:"removeUnlimitedDeviceKey,omitempty"`
	AddUnlimitedDeviceID     string       `json:"addUnlimitedDeviceId,omitempty"`
	RemoveUnlimitedDeviceID  string       `json:"removeUnlimitedDeviceId,omitempty"`
}

// CanonicalCode trims, upper-cases and strips all whitespace from a code.
func CanonicalCode(code string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(code)))
}

func validatePercent(p *float64) (int, error) {
	if p == nil {
		return 0, models.ErrValidation.New("percent required")
	}
	v := *p
	if math.IsNaN(v) || v < 0 || v > 100 {
		return 0, models.ErrValidation.New("percent must be within [0,100]")
	}
	if v != float64(int(v)) {
		return 0, models.ErrValidation.New("percent must be a whole number")
	}
	return int(v), nil
}

func validateMaxRp(p *int64) (int64, error) {
	if p == nil {
		return 0, nil
	}
	if *p < 0 {
		return 0, models.ErrValidation.New("maxRp must be >= 0")
	}
	return *p, nil
}

func validateMaxUses(o Optional[int]) (*int, error) {
	if !o.Set {
		return nil, models.ErrValidation.New("maxUses must be given; use null for unlimited")
	}
	if o.Value == nil {
		return nil, nil
	}
	if *o.Value <= 0 {
		return nil, models.ErrValidation.New("maxUses must be null or > 0")
	}
	v := *o.Value
	return &v, nil
}

func parseExpiry(o Optional[string]) (*time.Time, error) {
	if !o.Set {
		return nil, models.ErrValidation.New("expiresAt must be given; use null for no expiry")
	}
	if o.Value == nil || strings.TrimSpace(*o.Value) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(*o.Value))
	if err != nil {
		return nil, models.ErrValidation.New("invalid expiresAt; use RFC3339")
	}
	t = t.UTC()
	return &t, nil
}
