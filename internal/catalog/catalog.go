// Package catalog holds the invariant-preserving mutators for vouchers, the
// monthly promo and the unlimited device allowlist. Every function validates
// fully before it writes, so a failed call leaves the document untouched.
package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/Cheertaboi/qris-discount-service/internal/identity"
	"github.com/Cheertaboi/qris-discount-service/internal/models"
)

// UpsertVoucher inserts or fully replaces the voucher identified by the
// canonical code. Usage counters survive a replace.
func UpsertVoucher(doc *models.Document, in VoucherInput, now time.Time) (models.Voucher, error) {
	code := CanonicalCode(in.Code)
	if code == "" {
		return models.Voucher{}, models.ErrValidation.New("code required")
	}
	percent, err := validatePercent(in.Percent)
	if err != nil {
		return models.Voucher{}, err
	}
	maxRp, err := validateMaxRp(in.MaxRp)
	if err != nil {
		return models.Voucher{}, err
	}
	maxUses, err := validateMaxUses(in.MaxUses)
	if err != nil {
		return models.Voucher{}, err
	}
	expiresAt, err := parseExpiry(in.ExpiresAt)
	if err != nil {
		return models.Voucher{}, err
	}

	next := models.Voucher{
		Code:          code,
		Name:          strings.TrimSpace(in.Name),
		Enabled:       in.Enabled == nil || *in.Enabled,
		Percent:       percent,
		MaxRp:         maxRp,
		MaxUses:       maxUses,
		PerDeviceOnce: in.PerDeviceOnce,
		ExpiresAt:     expiresAt,
		UpdatedAt:     now.UTC(),
	}
	if next.Name == "" {
		next.Name = code
	}
	if prev, ok := doc.Vouchers[code]; ok && prev != nil {
		next.Uses = prev.Uses
		next.UsedDevices = copyMarks(prev.UsedDevices)
	}
	if next.MaxUses != nil && next.Uses > *next.MaxUses {
		return models.Voucher{}, models.ErrValidation.New("maxUses %d is below current uses %d", *next.MaxUses, next.Uses)
	}

	stored := next
	doc.Vouchers[code] = &stored
	return next, nil
}

// DisableVoucher turns a voucher off. Counters and history are kept.
func DisableVoucher(doc *models.Document, code string, now time.Time) (models.Voucher, error) {
	v, ok := doc.Vouchers[CanonicalCode(code)]
	if !ok || v == nil {
		return models.Voucher{}, models.ErrNotFound.New("voucher %q", CanonicalCode(code))
	}
	v.Enabled = false
	v.UpdatedAt = now.UTC()
	return *v, nil
}

// GetVoucher returns a copy of a voucher.
func GetVoucher(doc *models.Document, code string) (models.Voucher, error) {
	v, ok := doc.Vouchers[CanonicalCode(code)]
	if !ok || v == nil {
		return models.Voucher{}, models.ErrNotFound.New("voucher %q", CanonicalCode(code))
	}
	return *v, nil
}

// ListVouchers returns all vouchers ordered by code.
func ListVouchers(doc *models.Document) []models.Voucher {
	list := make([]models.Voucher, 0, len(doc.Vouchers))
	for _, v := range doc.Vouchers {
		if v != nil {
			list = append(list, *v)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list
}

// SetMonthlyPromo applies one change to the monthly promo. Raw device ids are
// turned into device keys before the allowlist is touched.
func SetMonthlyPromo(doc *models.Document, change MonthlyPromoChange, deriver identity.Deriver, now time.Time) (models.MonthlyPromo, error) {
	set := 0
	for _, present := range []bool{
		change.Config != nil,
		change.AddUnlimitedDeviceKey != "",
		change.RemoveUnlimitedDeviceKey != "",
		change.AddUnlimitedDeviceID != "",
		change.RemoveUnlimitedDeviceID != "",
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return models.MonthlyPromo{}, models.ErrValidation.New("exactly one monthly promo change required, got %d", set)
	}

	promo := &doc.MonthlyPromo
	switch {
	case change.Config != nil:
		if err := applyPromoConfig(promo, *change.Config); err != nil {
			return models.MonthlyPromo{}, err
		}
	case change.AddUnlimitedDeviceKey != "":
		key, err := normalizeKey(change.AddUnlimitedDeviceKey)
		if err != nil {
			return models.MonthlyPromo{}, err
		}
		promo.Unlimited = addKey(promo.Unlimited, key)
	case change.RemoveUnlimitedDeviceKey != "":
		key, err := normalizeKey(change.RemoveUnlimitedDeviceKey)
		if err != nil {
			return models.MonthlyPromo{}, err
		}
		promo.Unlimited = removeKey(promo.Unlimited, key)
	case change.AddUnlimitedDeviceID != "", change.RemoveUnlimitedDeviceID != "":
		raw := change.AddUnlimitedDeviceID + change.RemoveUnlimitedDeviceID
		key, err := identity.AllowlistKey(deriver, raw)
		if err != nil {
			return models.MonthlyPromo{}, err
		}
		if change.AddUnlimitedDeviceID != "" {
			promo.Unlimited = addKey(promo.Unlimited, key)
		} else {
			promo.Unlimited = removeKey(promo.Unlimited, key)
		}
	}
	promo.UpdatedAt = now.UTC()
	return clonePromo(*promo), nil
}

func applyPromoConfig(promo *models.MonthlyPromo, cfg PromoConfig) error {
	percent, err := validatePercent(cfg.Percent)
	if err != nil {
		return err
	}
	maxRp, err := validateMaxRp(cfg.MaxRp)
	if err != nil {
		return err
	}
	maxUses, err := validateMaxUses(cfg.MaxUses)
	if err != nil {
		return err
	}
	enabled := cfg.Enabled == nil || *cfg.Enabled
	code := CanonicalCode(cfg.Code)
	if enabled && code == "" {
		return models.ErrValidation.New("code required for an enabled monthly promo")
	}

	promo.Enabled = enabled
	promo.Code = code
	promo.Name = strings.TrimSpace(cfg.Name)
	if promo.Name == "" {
		promo.Name = code
	}
	promo.Percent = percent
	promo.MaxRp = maxRp
	promo.MaxUses = maxUses
	promo.PerDeviceOnce = cfg.PerDeviceOnce
	return nil
}

func normalizeKey(key string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if len(key) != 64 || strings.Trim(key, "0123456789abcdef") != "" {
		return "", models.ErrValidation.New("device key must be 64 hex characters")
	}
	return key, nil
}

func addKey(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	out := append(append([]string{}, keys...), key)
	sort.Strings(out)
	return out
}

func removeKey(keys []string, key string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

func copyMarks(marks map[string]models.UsageMark) map[string]models.UsageMark {
	if marks == nil {
		return nil
	}
	out := make(map[string]models.UsageMark, len(marks))
	for k, v := range marks {
		out[k] = v
	}
	return out
}

func clonePromo(p models.MonthlyPromo) models.MonthlyPromo {
	p.Unlimited = append([]string{}, p.Unlimited...)
	p.UsedDevices = copyMarks(p.UsedDevices)
	return p
}
