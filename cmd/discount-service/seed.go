package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Cheertaboi/qris-discount-service/internal/catalog"
	"github.com/Cheertaboi/qris-discount-service/internal/config"
	"github.com/Cheertaboi/qris-discount-service/internal/identity"
	"github.com/Cheertaboi/qris-discount-service/internal/repository"
	"github.com/Cheertaboi/qris-discount-service/internal/service"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load vouchers and the monthly promo from a YAML catalog",
	Long: `Upserts every voucher in the catalog file, then applies the monthly
promo configuration and unlimited device allowlist. Usage counters of
existing vouchers are kept.

Example catalog:

  vouchers:
    - code: SAVE10
      percent: 10
      maxRp: 5000
      maxUses: 100
      expiresAt: null
  monthlyPromo:
    code: MONTHLY
    percent: 5
    maxRp: 2000
    maxUses: null
  unlimitedDeviceIds:
    - staff-phone-1`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "catalog.yaml", "catalog file")
}

// seedCatalog is the YAML catalog. It is converted to JSON before decoding
// so that explicit nulls stay distinguishable from omitted fields.
type seedCatalog struct {
	Vouchers            []catalog.VoucherInput `json:"vouchers"`
	MonthlyPromo        *catalog.PromoConfig   `json:"monthlyPromo"`
	UnlimitedDeviceKeys []string               `json:"unlimitedDeviceKeys"`
	UnlimitedDeviceIDs  []string               `json:"unlimitedDeviceIds"`
}

type seedSummary struct {
	Vouchers  int
	Promo     bool
	Unlimited int
}

func parseSeed(data []byte) (seedCatalog, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return seedCatalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return seedCatalog{}, fmt.Errorf("convert catalog: %w", err)
	}
	var out seedCatalog
	if err := json.Unmarshal(buf, &out); err != nil {
		return seedCatalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	return out, nil
}

func applySeed(ctx context.Context, catalogSvc *service.CatalogService, seed seedCatalog) (seedSummary, error) {
	var summary seedSummary
	for _, in := range seed.Vouchers {
		if _, err := catalogSvc.UpsertVoucher(ctx, in); err != nil {
			return summary, fmt.Errorf("voucher %q: %w", in.Code, err)
		}
		summary.Vouchers++
	}
	if seed.MonthlyPromo != nil {
		if _, err := catalogSvc.SetMonthlyPromo(ctx, catalog.MonthlyPromoChange{Config: seed.MonthlyPromo}); err != nil {
			return summary, fmt.Errorf("monthly promo: %w", err)
		}
		summary.Promo = true
	}
	for _, key := range seed.UnlimitedDeviceKeys {
		if _, err := catalogSvc.SetMonthlyPromo(ctx, catalog.MonthlyPromoChange{AddUnlimitedDeviceKey: key}); err != nil {
			return summary, fmt.Errorf("unlimited device key: %w", err)
		}
		summary.Unlimited++
	}
	for _, id := range seed.UnlimitedDeviceIDs {
		if _, err := catalogSvc.SetMonthlyPromo(ctx, catalog.MonthlyPromoChange{AddUnlimitedDeviceID: id}); err != nil {
			return summary, fmt.Errorf("unlimited device %q: %w", identity.Preview(id), err)
		}
		summary.Unlimited++
	}
	return summary, nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	data, err := os.ReadFile(seedFile)
	if err != nil {
		return err
	}
	seed, err := parseSeed(data)
	if err != nil {
		return err
	}

	// a missing pepper only matters for raw device ids
	var deriver identity.Deriver
	if d, err := identity.New(cfg.DeviceStrategy, cfg.Pepper); err == nil {
		deriver = d
	} else if !identity.ErrNoPepper.Has(err) {
		return err
	}

	ctx := cmd.Context()
	store, closeStore, err := openStore(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	catalogSvc := service.NewCatalogService(log, store, deriver, service.Config{
		Location: loc,
		Retry:    repository.RetryOptions{Attempts: cfg.SaveRetries},
	})
	summary, err := applySeed(ctx, catalogSvc, seed)
	if err != nil {
		return err
	}

	fmt.Printf("Seeded %d vouchers", summary.Vouchers)
	if summary.Promo {
		fmt.Print(", monthly promo")
	}
	fmt.Printf(", %d unlimited devices\n", summary.Unlimited)
	return nil
}
