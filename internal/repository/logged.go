package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/Cheertaboi/qris-discount-service/internal/models"
)

// LoggedStore logs every load and save of the wrapped store.
type LoggedStore struct {
	log   *zap.Logger
	store Store
}

// NewLoggedStore wraps store.
func NewLoggedStore(log *zap.Logger, store Store) *LoggedStore {
	return &LoggedStore{log: log.Named("store"), store: store}
}

// Load implements Store.
func (s *LoggedStore) Load(ctx context.Context) (*models.Document, Version, error) {
	doc, version, err := s.store.Load(ctx)
	if err != nil {
		s.log.Error("Load", zap.Error(err))
		return doc, version, err
	}
	s.log.Debug("Load",
		zap.String("version", string(version)),
		zap.Int("vouchers", len(doc.Vouchers)),
		zap.Int("reservations", len(doc.Reservations)))
	return doc, version, nil
}

// Save implements Store.
func (s *LoggedStore) Save(ctx context.Context, doc *models.Document, version Version) (Version, error) {
	next, err := s.store.Save(ctx, doc, version)
	switch {
	case models.ErrConflict.Has(err):
		s.log.Info("Save conflict", zap.String("version", string(version)), zap.Error(err))
	case err != nil:
		s.log.Error("Save", zap.String("version", string(version)), zap.Error(err))
	default:
		s.log.Debug("Save",
			zap.String("version", string(version)),
			zap.String("next", string(next)),
			zap.Int64("revision", doc.Meta.Revision))
	}
	return next, err
}
