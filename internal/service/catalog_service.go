package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Cheertaboi/qris-discount-service/internal/catalog"
	"github.com/Cheertaboi/qris-discount-service/internal/identity"
	"github.com/Cheertaboi/qris-discount-service/internal/models"
	"github.com/Cheertaboi/qris-discount-service/internal/repository"
)

// CatalogService runs the admin catalog mutators against the store.
type CatalogService struct {
	log     *zap.Logger
	store   repository.Store
	deriver identity.Deriver
	retry   repository.RetryOptions
	now     func() time.Time
	loc     *time.Location
	metrics *engineMetrics
}

// NewCatalogService returns a CatalogService. deriver may be nil, in which
// case raw device ids cannot be added to the unlimited allowlist.
func NewCatalogService(log *zap.Logger, store repository.Store, deriver identity.Deriver, config Config) *CatalogService {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	config.Retry.Now = config.Now
	if config.Retry.Log == nil {
		config.Retry.Log = log
	}
	return &CatalogService{
		log:     log.Named("catalog"),
		store:   store,
		deriver: deriver,
		retry:   config.Retry,
		now:     config.Now,
		loc:     config.Location,
		metrics: metrics(),
	}
}

// UpsertVoucher creates or replaces a voucher, keeping its usage counters.
func (s *CatalogService) UpsertVoucher(ctx context.Context, in catalog.VoucherInput) (models.Voucher, error) {
	var saved models.Voucher
	err := repository.Update(ctx, s.store, s.retry, func(doc *models.Document) (err error) {
		saved, err = catalog.UpsertVoucher(doc, in, s.now())
		return err
	})
	s.observe("upsert_voucher", err)
	if err != nil {
		return models.Voucher{}, err
	}
	s.log.Info("voucher saved",
		zap.String("code", saved.Code),
		zap.Bool("enabled", saved.Enabled),
		zap.Int("percent", saved.Percent))
	return saved, nil
}

// DisableVoucher turns a voucher off.
func (s *CatalogService) DisableVoucher(ctx context.Context, code string) (models.Voucher, error) {
	var saved models.Voucher
	err := repository.Update(ctx, s.store, s.retry, func(doc *models.Document) (err error) {
		saved, err = catalog.DisableVoucher(doc, code, s.now())
		return err
	})
	s.observe("disable_voucher", err)
	if err != nil {
		return models.Voucher{}, err
	}
	s.log.Info("voucher disabled", zap.String("code", saved.Code))
	return saved, nil
}

// Voucher returns a single voucher.
func (s *CatalogService) Voucher(ctx context.Context, code string) (models.Voucher, error) {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return models.Voucher{}, err
	}
	return catalog.GetVoucher(doc, code)
}

// Vouchers lists all vouchers sorted by code.
func (s *CatalogService) Vouchers(ctx context.Context) ([]models.Voucher, error) {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.ListVouchers(doc), nil
}

// MonthlyPromo returns the monthly promo with its counters for the current
// month. Counters of a past month read as zero.
func (s *CatalogService) MonthlyPromo(ctx context.Context) (models.MonthlyPromo, error) {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return models.MonthlyPromo{}, err
	}
	return s.current(doc.MonthlyPromo), nil
}

// SetMonthlyPromo applies one monthly promo change.
func (s *CatalogService) SetMonthlyPromo(ctx context.Context, change catalog.MonthlyPromoChange) (models.MonthlyPromo, error) {
	var saved models.MonthlyPromo
	err := repository.Update(ctx, s.store, s.retry, func(doc *models.Document) (err error) {
		saved, err = catalog.SetMonthlyPromo(doc, change, s.deriver, s.now())
		return err
	})
	s.observe("set_monthly_promo", err)
	if err != nil {
		return models.MonthlyPromo{}, err
	}
	s.log.Info("monthly promo saved",
		zap.Bool("enabled", saved.Enabled),
		zap.String("code", saved.Code),
		zap.Int("unlimited", len(saved.Unlimited)))
	return s.current(saved), nil
}

func (s *CatalogService) current(promo models.MonthlyPromo) models.MonthlyPromo {
	promo.RollOver(models.MonthKey(s.now(), s.loc))
	return promo
}

func (s *CatalogService) observe(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.catalog.WithLabelValues(operation, result).Inc()
}
