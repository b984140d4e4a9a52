package cache

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/Cheertaboi/qris-discount-service/internal/models"
	"github.com/Cheertaboi/qris-discount-service/internal/repository"
)

var (
	// Error is a redis backing error.
	Error = errs.Class("redis")

	mon = monkit.Package()
)

// DefaultRedisKey is where the document lives unless configured otherwise.
const DefaultRedisKey = "promo:document"

// RedisStore is a low latency backing with last-writer-wins semantics: Save
// returns a fresh version token but never rejects a stale one.
type RedisStore struct {
	db  *redis.Client
	key string
}

// OpenRedisStore connects to a redis:// url and verifies the connection.
func OpenRedisStore(ctx context.Context, address, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(address)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	store := NewRedisStore(redis.NewClient(opts), key)
	if err := store.db.Ping(ctx).Err(); err != nil {
		return nil, Error.New("ping failed: %v", err)
	}
	return store, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{db: client, key: key}
}

func (s *RedisStore) versionKey() string { return s.key + ":version" }

// Load implements repository.Store.
func (s *RedisStore) Load(ctx context.Context) (_ *models.Document, _ repository.Version, err error) {
	defer mon.Task()(&ctx)(&err)

	values, err := s.db.MGet(ctx, s.key, s.versionKey()).Result()
	if err != nil {
		return nil, "", Error.Wrap(err)
	}
	body, ok := values[0].(string)
	if !ok {
		return models.NewDocument(), "", nil
	}
	version, _ := values[1].(string)

	doc, err := models.DecodeDocument([]byte(body))
	if err != nil {
		return nil, "", Error.Wrap(err)
	}
	return doc, repository.Version(version), nil
}

// Save implements repository.Store.
func (s *RedisStore) Save(ctx context.Context, doc *models.Document, _ repository.Version) (_ repository.Version, err error) {
	defer mon.Task()(&ctx)(&err)

	body, err := doc.Encode()
	if err != nil {
		return "", Error.Wrap(err)
	}

	var incr *redis.IntCmd
	_, err = s.db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, body, 0)
		incr = pipe.Incr(ctx, s.versionKey())
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", Error.Wrap(err)
	}
	return repository.Version(strconv.FormatInt(incr.Val(), 10)), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return Error.Wrap(s.db.Close())
}
