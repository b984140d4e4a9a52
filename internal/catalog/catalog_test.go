package catalog_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cheertaboi/qris-discount-service/internal/catalog"
	"github.com/Cheertaboi/qris-discount-service/internal/identity"
	"github.com/Cheertaboi/qris-discount-service/internal/models"
)

var now = time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)

func percent(v float64) *float64 { return &v }
func rp(v int64) *int64          { return &v }

func saveInput(code string) catalog.VoucherInput {
	return catalog.VoucherInput{
		Code:      code,
		Name:      "Save",
		Percent:   percent(10),
		MaxRp:     rp(0),
		MaxUses:   catalog.Some(1),
		ExpiresAt: catalog.Null[string](),
	}
}

func TestCanonicalCode(t *testing.T) {
	assert.Equal(t, "SAVE10", catalog.CanonicalCode("  save 10 "))
	assert.Equal(t, "ABC", catalog.CanonicalCode("a\tb\nc"))
	assert.Equal(t, "", catalog.CanonicalCode("   "))
}

func TestUpsertVoucherRoundTrip(t *testing.T) {
	doc := models.NewDocument()

	v, err := catalog.UpsertVoucher(doc, saveInput(" save 10"), now)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", v.Code)

	got, err := catalog.GetVoucher(doc, "save10")
	require.NoError(t, err)
	assert.Equal(t, v, got)
	assert.Equal(t, 10, got.Percent)
	assert.True(t, got.Enabled)
	require.NotNil(t, got.MaxUses)
	assert.Equal(t, 1, *got.MaxUses)
	assert.Nil(t, got.ExpiresAt)
	assert.Equal(t, now, got.UpdatedAt)
}

func TestUpsertVoucherValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*catalog.VoucherInput)
	}{
		{"empty code", func(in *catalog.VoucherInput) { in.Code = "  " }},
		{"percent above range", func(in *catalog.VoucherInput) { in.Percent = percent(101) }},
		{"percent below range", func(in *catalog.VoucherInput) { in.Percent = percent(-1) }},
		{"fractional percent", func(in *catalog.VoucherInput) { in.Percent = percent(12.5) }},
		{"missing percent", func(in *catalog.VoucherInput) { in.Percent = nil }},
		{"negative maxRp", func(in *catalog.VoucherInput) { in.MaxRp = rp(-5) }},
		{"zero maxUses", func(in *catalog.VoucherInput) { in.MaxUses = catalog.Some(0) }},
		{"omitted maxUses", func(in *catalog.VoucherInput) { in.MaxUses = catalog.Optional[int]{} }},
		{"omitted expiresAt", func(in *catalog.VoucherInput) { in.ExpiresAt = catalog.Optional[string]{} }},
		{"bad expiresAt", func(in *catalog.VoucherInput) { in.ExpiresAt = catalog.Some("tomorrow") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := models.NewDocument()
			in := saveInput("SAVE10")
			tc.mutate(&in)
			_, err := catalog.UpsertVoucher(doc, in, now)
			require.Error(t, err)
			assert.True(t, models.ErrValidation.Has(err), "%v", err)
			assert.Empty(t, doc.Vouchers)
		})
	}
}

func TestUpsertVoucherFailureLeavesExistingUntouched(t *testing.T) {
	doc := models.NewDocument()
	_, err := catalog.UpsertVoucher(doc, saveInput("SAVE10"), now)
	require.NoError(t, err)
	before := *doc.Vouchers["SAVE10"]

	bad := saveInput("SAVE10")
	bad.Name = "changed"
	bad.Percent = percent(150)
	_, err = catalog.UpsertVoucher(doc, bad, now.Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, before, *doc.Vouchers["SAVE10"])
}

func TestUpsertVoucherKeepsCounters(t *testing.T) {
	doc := models.NewDocument()
	in := saveInput("SAVE10")
	in.MaxUses = catalog.Some(5)
	_, err := catalog.UpsertVoucher(doc, in, now)
	require.NoError(t, err)
	doc.Vouchers["SAVE10"].Uses = 3
	doc.Vouchers["SAVE10"].UsedDevices = map[string]models.UsageMark{"k": {At: now}}

	in.Percent = percent(20)
	v, err := catalog.UpsertVoucher(doc, in, now)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Uses)
	assert.Equal(t, 20, v.Percent)
	assert.Contains(t, v.UsedDevices, "k")

	in.MaxUses = catalog.Some(2)
	_, err = catalog.UpsertVoucher(doc, in, now)
	assert.True(t, models.ErrValidation.Has(err))

	in.MaxUses = catalog.Null[int]()
	v, err = catalog.UpsertVoucher(doc, in, now)
	require.NoError(t, err)
	assert.Nil(t, v.MaxUses)
}

func TestVoucherInputJSONPresence(t *testing.T) {
	var in catalog.VoucherInput
	require.NoError(t, json.Unmarshal([]byte(`{"code":"x","percent":5,"maxUses":null,"expiresAt":"2030-01-01T00:00:00Z"}`), &in))
	assert.True(t, in.MaxUses.Set)
	assert.Nil(t, in.MaxUses.Value)
	require.True(t, in.ExpiresAt.Set)
	assert.Equal(t, "2030-01-01T00:00:00Z", *in.ExpiresAt.Value)

	var omitted catalog.VoucherInput
	require.NoError(t, json.Unmarshal([]byte(`{"code":"x","percent":5}`), &omitted))
	assert.False(t, omitted.MaxUses.Set)
	_, err := catalog.UpsertVoucher(models.NewDocument(), omitted, now)
	assert.True(t, models.ErrValidation.Has(err))
}

func TestDisableVoucher(t *testing.T) {
	doc := models.NewDocument()
	_, err := catalog.UpsertVoucher(doc, saveInput("SAVE10"), now)
	require.NoError(t, err)
	doc.Vouchers["SAVE10"].Uses = 1

	v, err := catalog.DisableVoucher(doc, "save10", now)
	require.NoError(t, err)
	assert.False(t, v.Enabled)
	assert.Equal(t, 1, v.Uses)

	_, err = catalog.DisableVoucher(doc, "nope", now)
	assert.True(t, models.ErrNotFound.Has(err))
}

func TestListVouchersSorted(t *testing.T) {
	doc := models.NewDocument()
	for _, code := range []string{"zeta", "alpha", "mid"} {
		_, err := catalog.UpsertVoucher(doc, saveInput(code), now)
		require.NoError(t, err)
	}
	list := catalog.ListVouchers(doc)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"ALPHA", "MID", "ZETA"}, []string{list[0].Code, list[1].Code, list[2].Code})
}

func TestSetMonthlyPromo(t *testing.T) {
	deriver, err := identity.NewHMACDeriver("pepper")
	require.NoError(t, err)
	doc := models.NewDocument()

	enabled := true
	promo, err := catalog.SetMonthlyPromo(doc, catalog.MonthlyPromoChange{Config: &catalog.PromoConfig{
		Enabled: &enabled,
		Code:    "june promo",
		Percent: percent(15),
		MaxRp:   rp(5000),
		MaxUses: catalog.Some(100),
	}}, deriver, now)
	require.NoError(t, err)
	assert.Equal(t, "JUNEPROMO", promo.Code)
	assert.Equal(t, 15, promo.Percent)

	promo, err = catalog.SetMonthlyPromo(doc, catalog.MonthlyPromoChange{AddUnlimitedDeviceID: "vip-device"}, deriver, now)
	require.NoError(t, err)
	require.Len(t, promo.Unlimited, 1)
	key, err := deriver.DeviceKey(identity.Signals{DeviceID: "vip-device"})
	require.NoError(t, err)
	assert.Equal(t, key, promo.Unlimited[0])
	assert.NotContains(t, promo.Unlimited[0], "vip-device")

	// adding twice keeps the set unique
	promo, err = catalog.SetMonthlyPromo(doc, catalog.MonthlyPromoChange{AddUnlimitedDeviceKey: key}, deriver, now)
	require.NoError(t, err)
	assert.Len(t, promo.Unlimited, 1)

	promo, err = catalog.SetMonthlyPromo(doc, catalog.MonthlyPromoChange{RemoveUnlimitedDeviceID: "vip-device"}, deriver, now)
	require.NoError(t, err)
	assert.Empty(t, promo.Unlimited)
}

func TestSetMonthlyPromoRejects(t *testing.T) {
	deriver, err := identity.NewHMACDeriver("pepper")
	require.NoError(t, err)
	doc := models.NewDocument()

	_, err = catalog.SetMonthlyPromo(doc, catalog.MonthlyPromoChange{}, deriver, now)
	assert.True(t, models.ErrValidation.Has(err))

	_, err = catalog.SetMonthlyPromo(doc, catalog.MonthlyPromoChange{
		AddUnlimitedDeviceKey: "abc", AddUnlimitedDeviceID: "d",
	}, deriver, now)
	assert.True(t, models.ErrValidation.Has(err))

	_, err = catalog.SetMonthlyPromo(doc, catalog.MonthlyPromoChange{AddUnlimitedDeviceKey: "not-hex"}, deriver, now)
	assert.True(t, models.ErrValidation.Has(err))

	_, err = catalog.SetMonthlyPromo(doc, catalog.MonthlyPromoChange{AddUnlimitedDeviceID: "d"}, nil, now)
	assert.True(t, identity.ErrNoPepper.Has(err))

	_, err = catalog.SetMonthlyPromo(doc, catalog.MonthlyPromoChange{Config: &catalog.PromoConfig{
		Code: "X", Percent: percent(200), MaxUses: catalog.Null[int](),
	}}, deriver, now)
	assert.True(t, models.ErrValidation.Has(err))
	assert.Equal(t, models.NewDocument().MonthlyPromo, doc.MonthlyPromo)
}
