// Package repository persists the promo document behind an optimistic,
// version-token protected interface.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/Cheertaboi/qris-discount-service/internal/models"
)

var (
	// Error is the class of backing storage failures.
	Error = errs.Class("repository")

	mon = monkit.Package()

	// ErrUnchanged may be returned by an Update mutator to finish without
	// saving. Update then returns nil.
	ErrUnchanged = errors.New("document unchanged")
)

// Version is an opaque token identifying the stored revision of the
// document. The empty version means the document does not exist yet.
type Version string

// Store loads and conditionally saves the promo document.
//
// Save must fail with models.ErrConflict when version no longer matches the
// stored revision. Cache backings may accept every write instead; callers
// must not depend on which behaviour is active.
type Store interface {
	Load(ctx context.Context) (*models.Document, Version, error)
	Save(ctx context.Context, doc *models.Document, version Version) (Version, error)
}

// RetryOptions bound the load→mutate→save loop.
type RetryOptions struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Log             *zap.Logger
	Now             func() time.Time
}

// DefaultRetryOptions are used for zero fields.
var DefaultRetryOptions = RetryOptions{
	Attempts:        5,
	InitialInterval: 25 * time.Millisecond,
	MaxInterval:     400 * time.Millisecond,
}

func (opts RetryOptions) withDefaults() RetryOptions {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultRetryOptions.Attempts
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultRetryOptions.InitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultRetryOptions.MaxInterval
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// Update runs fn against a freshly loaded document and saves the result.
// On a version conflict the whole cycle is repeated, with jittered
// exponential backoff, up to opts.Attempts times. If fn fails nothing is
// saved and its error is returned as is. fn may run more than once and
// must derive everything it writes from the document it is handed.
func Update(ctx context.Context, store Store, opts RetryOptions, fn func(doc *models.Document) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	opts = opts.withDefaults()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.InitialInterval
	policy.MaxInterval = opts.MaxInterval
	policy.RandomizationFactor = 0.5
	policy.MaxElapsedTime = 0

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		doc, version, err := store.Load(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := fn(doc); err != nil {
			return backoff.Permanent(err)
		}
		doc.Touch(opts.Now())
		_, err = store.Save(ctx, doc, version)
		if err == nil {
			return nil
		}
		if !models.ErrConflict.Has(err) {
			return backoff.Permanent(err)
		}
		opts.Log.Debug("document version conflict, retrying",
			zap.Int("attempt", attempt),
			zap.String("version", string(version)))
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(opts.Attempts-1)), ctx))

	if errors.Is(err, ErrUnchanged) {
		return nil
	}
	if models.ErrConflict.Has(err) {
		opts.Log.Warn("document update gave up after conflicts", zap.Int("attempts", attempt))
		return models.ErrTransient.Wrap(err)
	}
	return err
}
