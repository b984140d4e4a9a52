// Package cache provides the in-process and Redis backings of the promo
// document store.
package cache

import (
	"context"
	"strconv"
	"sync"

	"github.com/Cheertaboi/qris-discount-service/internal/models"
	"github.com/Cheertaboi/qris-discount-service/internal/repository"
)

// MemoryStore keeps the encoded document in memory with a compare-and-swap
// on an integer version. Callers always get a private copy.
type MemoryStore struct {
	mu      sync.RWMutex
	body    []byte
	version int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements repository.Store.
func (c *MemoryStore) Load(ctx context.Context) (*models.Document, repository.Version, error) {
	c.mu.RLock()
	body, version := c.body, c.version
	c.mu.RUnlock()

	if version == 0 {
		return models.NewDocument(), "", nil
	}
	doc, err := models.DecodeDocument(body)
	if err != nil {
		return nil, "", repository.Error.Wrap(err)
	}
	return doc, formatVersion(version), nil
}

// Save implements repository.Store.
func (c *MemoryStore) Save(ctx context.Context, doc *models.Document, version repository.Version) (repository.Version, error) {
	body, err := doc.Encode()
	if err != nil {
		return "", repository.Error.Wrap(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if formatVersion(c.version) != version {
		return "", models.ErrConflict.New("memory document at %d, got %q", c.version, version)
	}
	c.body = body
	c.version++
	return formatVersion(c.version), nil
}

func formatVersion(v int64) repository.Version {
	if v == 0 {
		return ""
	}
	return repository.Version(strconv.FormatInt(v, 10))
}
