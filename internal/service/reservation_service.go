package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Cheertaboi/qris-discount-service/internal/catalog"
	"github.com/Cheertaboi/qris-discount-service/internal/identity"
	"github.com/Cheertaboi/qris-discount-service/internal/models"
	"github.com/Cheertaboi/qris-discount-service/internal/repository"
)

// DefaultTTL bounds how long a pending reservation holds its claim.
const DefaultTTL = 15 * time.Minute

// Config tunes the reservation engine.
type Config struct {
	// TTL is used when ApplyRequest.TTL is zero.
	TTL time.Duration
	// Location decides where calendar months of the monthly promo start.
	Location *time.Location
	Retry    repository.RetryOptions
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// ApplyRequest asks for the best discount on one transaction.
type ApplyRequest struct {
	Amount      int64
	DeviceID    string
	IP          string
	UserAgent   string
	VoucherCode string
	// TransactionID is generated when empty.
	TransactionID string
	TTL           time.Duration
}

// Applied names an offer that contributed to a quote.
type Applied struct {
	Kind models.OfferKind `json:"kind"`
	Code string           `json:"code"`
}

// Quote is the result of Apply. TransactionID is empty when nothing was
// reserved.
type Quote struct {
	TransactionID  string     `json:"transactionId,omitempty"`
	AmountOriginal int64      `json:"amountOriginal"`
	AmountFinal    int64      `json:"amountFinal"`
	DiscountRp     int64      `json:"discountRp"`
	Applied        []Applied  `json:"applied"`
	Unlimited      bool       `json:"unlimited,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// Reserved reports whether the quote holds a reservation.
func (q Quote) Reserved() bool { return q.TransactionID != "" }

// Outcome is the per transaction result of Commit and Release.
type Outcome struct {
	TransactionID string                  `json:"transactionId"`
	State         models.ReservationState `json:"state,omitempty"`
	Err           error                   `json:"-"`
}

// ReservationService reserves discounts before payment and settles them
// when the payment outcome is known. Usage counters only move on commit.
type ReservationService struct {
	log     *zap.Logger
	store   repository.Store
	deriver identity.Deriver
	config  Config
	metrics *engineMetrics
}

// NewReservationService wires the engine to its store and identity deriver.
func NewReservationService(log *zap.Logger, store repository.Store, deriver identity.Deriver, config Config) *ReservationService {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	config.Retry.Now = config.Now
	if config.Retry.Log == nil {
		config.Retry.Log = log
	}
	return &ReservationService{
		log:     log.Named("reservations"),
		store:   store,
		deriver: deriver,
		config:  config,
		metrics: metrics(),
	}
}

// Apply picks the voucher named in the request when it is eligible, else the
// monthly promo, and reserves it for the transaction. When nothing is
// eligible the full amount is quoted and nothing is written.
func (s *ReservationService) Apply(ctx context.Context, req ApplyRequest) (Quote, error) {
	// 1) validate input and derive the device key before touching the store
	if req.Amount <= 0 {
		return Quote{}, models.ErrValidation.New("amount must be positive")
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return Quote{}, models.ErrValidation.New("device id required")
	}
	if s.deriver == nil {
		return Quote{}, identity.ErrNoPepper.New("")
	}
	deviceKey, err := s.deriver.DeviceKey(identity.Signals{DeviceID: deviceID, IP: req.IP, UserAgent: req.UserAgent})
	if err != nil {
		return Quote{}, err
	}
	allowKey, err := identity.AllowlistKey(s.deriver, deviceID)
	if err != nil {
		return Quote{}, err
	}
	txID := strings.TrimSpace(req.TransactionID)
	if txID == "" {
		txID = uuid.NewString()
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.config.TTL
	}
	code := catalog.CanonicalCode(req.VoucherCode)

	// 2) choose the offer and write the pending reservation
	var quote Quote
	err = repository.Update(ctx, s.store, s.config.Retry, func(doc *models.Document) error {
		now := s.config.Now()
		quote = Quote{AmountOriginal: req.Amount, AmountFinal: req.Amount, Applied: []Applied{}}

		if existing, ok := doc.Reservations[txID]; ok {
			if existing.EffectiveState(now) != models.StatePending {
				return models.ErrValidation.New("transaction %q already settled", txID)
			}
			if existing.DeviceKey != deviceKey || existing.AmountOriginal != req.Amount || existing.RequestedCode != code {
				return models.ErrValidation.New("transaction %q reused with a different request", txID)
			}
			quote = quoteFor(existing)
			return repository.ErrUnchanged
		}

		offer, unlimited := s.choose(doc, code, deviceKey, allowKey, now)
		if offer == nil {
			return repository.ErrUnchanged
		}
		discount := catalog.Discount(req.Amount, offer.OfferPercent(), offer.OfferMaxRp())

		reservation := &models.Reservation{
			TransactionID:   txID,
			DeviceKey:       deviceKey,
			DeviceIDPreview: identity.Preview(deviceID),
			Kind:            offer.OfferKind(),
			Code:            offer.OfferCode(),
			RequestedCode:   code,
			AmountOriginal:  req.Amount,
			AmountFinal:     catalog.FinalAmount(req.Amount, discount),
			DiscountRp:      discount,
			Unlimited:       unlimited,
			CreatedAt:       now.UTC(),
			ExpiresAt:       now.Add(ttl).UTC(),
			State:           models.StatePending,
		}
		doc.Reservations[txID] = reservation
		quote = quoteFor(reservation)
		return nil
	})
	if err != nil {
		s.metrics.applies.WithLabelValues("error").Inc()
		return Quote{}, err
	}

	if !quote.Reserved() {
		s.metrics.applies.WithLabelValues("none").Inc()
		s.log.Debug("no discount applied", zap.String("voucher", code), zap.Int64("amount", req.Amount))
		return quote, nil
	}
	s.metrics.applies.WithLabelValues(string(quote.Applied[0].Kind)).Inc()
	s.log.Info("discount reserved",
		zap.String("transaction", quote.TransactionID),
		zap.String("kind", string(quote.Applied[0].Kind)),
		zap.String("code", quote.Applied[0].Code),
		zap.String("device", identity.Preview(deviceID)),
		zap.Int64("discount", quote.DiscountRp),
		zap.Bool("unlimited", quote.Unlimited))
	return quote, nil
}

// choose returns the offer to reserve, or nil when none applies with a
// positive discount.
func (s *ReservationService) choose(doc *models.Document, code, deviceKey, allowKey string, now time.Time) (catalog.Offer, bool) {
	unlimited := doc.MonthlyPromo.IsUnlimited(deviceKey) || doc.MonthlyPromo.IsUnlimited(allowKey)

	if code != "" {
		if voucher, ok := doc.Vouchers[code]; ok {
			offer := catalog.VoucherOffer{Voucher: voucher}
			if catalog.Eligible(offer, deviceKey, unlimited, now).Eligible && offer.Percent > 0 {
				return offer, unlimited
			}
		}
	}

	promo := catalog.PromoOffer{MonthlyPromo: &doc.MonthlyPromo, Location: s.config.Location}
	if catalog.Eligible(promo, deviceKey, unlimited, now).Eligible && promo.Percent > 0 {
		return promo, unlimited
	}
	return nil, false
}

func quoteFor(r *models.Reservation) Quote {
	expires := r.ExpiresAt
	return Quote{
		TransactionID:  r.TransactionID,
		AmountOriginal: r.AmountOriginal,
		AmountFinal:    r.AmountFinal,
		DiscountRp:     r.DiscountRp,
		Applied:        []Applied{{Kind: r.Kind, Code: r.Code}},
		Unlimited:      r.Unlimited,
		ExpiresAt:      &expires,
	}
}

// Commit settles paid transactions. See CommitVia.
func (s *ReservationService) Commit(ctx context.Context, ids ...string) ([]Outcome, error) {
	return s.CommitVia(ctx, "", ids...)
}

// CommitVia settles paid transactions, consuming offer capacity. Per id:
// a pending reservation is committed if the offer still has capacity, else
// released with ErrExhausted; committed is a no-op; released fails with
// ErrReleased; a reservation past its TTL is marked expired and fails with
// ErrExpired. The returned error is only set when the batch could not be
// processed at all.
func (s *ReservationService) CommitVia(ctx context.Context, paidVia string, ids ...string) ([]Outcome, error) {
	if err := validateIDs(ids); err != nil {
		return nil, err
	}

	var outcomes []Outcome
	err := repository.Update(ctx, s.store, s.config.Retry, func(doc *models.Document) error {
		now := s.config.Now()
		outcomes = make([]Outcome, 0, len(ids))
		changed := false

		for _, id := range ids {
			r, ok := doc.Reservations[id]
			if !ok {
				outcomes = append(outcomes, Outcome{TransactionID: id, Err: models.ErrNotFound.New("reservation %q", id)})
				continue
			}

			switch r.EffectiveState(now) {
			case models.StateCommitted:
				outcomes = append(outcomes, Outcome{TransactionID: id, State: r.State})
			case models.StateReleased:
				outcomes = append(outcomes, Outcome{TransactionID: id, State: r.State,
					Err: models.ErrReleased.New("reservation %q", id)})
			case models.StateExpired:
				if r.State != models.StateExpired {
					r.Settle(models.StateExpired, now)
					changed = true
				}
				outcomes = append(outcomes, Outcome{TransactionID: id, State: r.State,
					Err: models.ErrExpired.New("reservation %q expired at %s", id, r.ExpiresAt.Format(time.RFC3339))})
			case models.StatePending:
				err := s.consume(doc, r, now)
				if err != nil {
					r.Settle(models.StateReleased, now)
				} else {
					r.Settle(models.StateCommitted, now)
					r.PaidVia = paidVia
				}
				changed = true
				outcomes = append(outcomes, Outcome{TransactionID: id, State: r.State, Err: err})
			}
		}

		if !changed {
			return repository.ErrUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		s.metrics.commits.WithLabelValues(outcomeLabel(o)).Inc()
		if o.Err != nil {
			s.log.Info("commit rejected", zap.String("transaction", o.TransactionID), zap.Error(o.Err))
		} else {
			s.log.Debug("commit", zap.String("transaction", o.TransactionID), zap.String("state", string(o.State)))
		}
	}
	return outcomes, nil
}

// consume re-checks capacity and records the use of the reserved offer.
// Unlimited devices are never counted.
func (s *ReservationService) consume(doc *models.Document, r *models.Reservation, now time.Time) error {
	if r.Unlimited {
		return nil
	}
	mark := models.UsageMark{At: now.UTC(), DeviceIDPreview: r.DeviceIDPreview, TransactionID: r.TransactionID}

	switch r.Kind {
	case models.KindVoucher:
		v, ok := doc.Vouchers[r.Code]
		if !ok {
			return models.ErrExhausted.New("voucher %q no longer exists", r.Code)
		}
		if v.MaxUses != nil && v.Uses >= *v.MaxUses {
			return models.ErrExhausted.New("voucher %q used %d of %d", r.Code, v.Uses, *v.MaxUses)
		}
		if v.PerDeviceOnce {
			if _, used := v.UsedDevices[r.DeviceKey]; used {
				return models.ErrExhausted.New("voucher %q already used by device", r.Code)
			}
			if v.UsedDevices == nil {
				v.UsedDevices = map[string]models.UsageMark{}
			}
			v.UsedDevices[r.DeviceKey] = mark
		}
		v.Uses++
		return nil

	case models.KindMonthly:
		p := &doc.MonthlyPromo
		p.RollOver(models.MonthKey(now, s.config.Location))
		if p.MaxUses != nil && p.UsedCount >= *p.MaxUses {
			return models.ErrExhausted.New("monthly promo used %d of %d in %s", p.UsedCount, *p.MaxUses, p.Month)
		}
		if p.PerDeviceOnce {
			if _, used := p.UsedDevices[r.DeviceKey]; used {
				return models.ErrExhausted.New("monthly promo already used by device in %s", p.Month)
			}
			if p.UsedDevices == nil {
				p.UsedDevices = map[string]models.UsageMark{}
			}
			p.UsedDevices[r.DeviceKey] = mark
		}
		p.UsedCount++
		return nil
	}
	return models.ErrValidation.New("unknown offer kind %q", r.Kind)
}

// Release returns pending reservations without touching any counter.
// Settled reservations are left as they are.
func (s *ReservationService) Release(ctx context.Context, ids ...string) ([]Outcome, error) {
	if err := validateIDs(ids); err != nil {
		return nil, err
	}

	var outcomes []Outcome
	err := repository.Update(ctx, s.store, s.config.Retry, func(doc *models.Document) error {
		now := s.config.Now()
		outcomes = make([]Outcome, 0, len(ids))
		changed := false

		for _, id := range ids {
			r, ok := doc.Reservations[id]
			if !ok {
				outcomes = append(outcomes, Outcome{TransactionID: id, Err: models.ErrNotFound.New("reservation %q", id)})
				continue
			}
			switch r.EffectiveState(now) {
			case models.StatePending:
				r.Settle(models.StateReleased, now)
				changed = true
			case models.StateExpired:
				if r.State != models.StateExpired {
					r.Settle(models.StateExpired, now)
					changed = true
				}
			}
			outcomes = append(outcomes, Outcome{TransactionID: id, State: r.State})
		}

		if !changed {
			return repository.ErrUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		s.metrics.releases.WithLabelValues(outcomeLabel(o)).Inc()
	}
	return outcomes, nil
}

// Reservation looks up a reservation, reporting lazily expired ones as
// expired.
func (s *ReservationService) Reservation(ctx context.Context, id string) (models.Reservation, error) {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return models.Reservation{}, err
	}
	r, ok := doc.Reservations[id]
	if !ok {
		return models.Reservation{}, models.ErrNotFound.New("reservation %q", id)
	}
	out := *r
	out.State = r.EffectiveState(s.config.Now())
	return out, nil
}

// Prune deletes settled and expired reservations older than retention. A
// negative retention is treated as zero so live reservations survive.
func (s *ReservationService) Prune(ctx context.Context, retention time.Duration) (int, error) {
	if retention < 0 {
		retention = 0
	}
	var pruned int
	err := repository.Update(ctx, s.store, s.config.Retry, func(doc *models.Document) error {
		cutoff := s.config.Now().Add(-retention)
		pruned = 0
		for id, r := range doc.Reservations {
			var at time.Time
			switch {
			case r.SettledAt != nil:
				at = *r.SettledAt
			case r.State == models.StatePending:
				at = r.ExpiresAt
			default:
				continue
			}
			if at.Before(cutoff) {
				delete(doc.Reservations, id)
				pruned++
			}
		}
		if pruned == 0 {
			return repository.ErrUnchanged
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		s.log.Info("pruned reservations", zap.Int("count", pruned), zap.Duration("retention", retention))
	}
	return pruned, nil
}

func validateIDs(ids []string) error {
	if len(ids) == 0 {
		return models.ErrValidation.New("transaction id required")
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return models.ErrValidation.New("empty transaction id")
		}
	}
	return nil
}

func outcomeLabel(o Outcome) string {
	switch {
	case o.Err == nil:
		return string(o.State)
	case models.ErrNotFound.Has(o.Err):
		return "not_found"
	case models.ErrReleased.Has(o.Err):
		return "released"
	case models.ErrExpired.Has(o.Err):
		return "expired"
	case models.ErrExhausted.Has(o.Err):
		return "exhausted"
	}
	return "error"
}
