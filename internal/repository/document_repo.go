package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/Cheertaboi/qris-discount-service/internal/models"
)

// DefaultDocumentID names the singleton document row.
const DefaultDocumentID = "promo"

// PostgresStore keeps the document in a single row and uses the row version
// as the compare-and-swap token.
type PostgresStore struct {
	db *sql.DB
	id string
}

// NewPostgresStore returns a store over db. Call Migrate once before use.
func NewPostgresStore(db *sql.DB, id string) *PostgresStore {
	if id == "" {
		id = DefaultDocumentID
	}
	return &PostgresStore{db: db, id: id}
}

// Migrate creates the document table.
func (r *PostgresStore) Migrate(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	query := `
		CREATE TABLE IF NOT EXISTS promo_documents (
			id         TEXT PRIMARY KEY,
			body       JSONB NOT NULL,
			version    BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`
	_, err = r.db.ExecContext(ctx, query)
	return Error.Wrap(err)
}

// Load implements Store.
func (r *PostgresStore) Load(ctx context.Context) (_ *models.Document, _ Version, err error) {
	defer mon.Task()(&ctx)(&err)

	query := `
		SELECT body, version
		FROM promo_documents
		WHERE id = $1
	`

	var body []byte
	var version int64
	err = r.db.QueryRowContext(ctx, query, r.id).Scan(&body, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewDocument(), "", nil
		}
		return nil, "", Error.Wrap(err)
	}

	doc, err := models.DecodeDocument(body)
	if err != nil {
		return nil, "", Error.Wrap(err)
	}
	return doc, Version(strconv.FormatInt(version, 10)), nil
}

// Save implements Store.
func (r *PostgresStore) Save(ctx context.Context, doc *models.Document, version Version) (_ Version, err error) {
	defer mon.Task()(&ctx)(&err)

	body, err := doc.Encode()
	if err != nil {
		return "", Error.Wrap(err)
	}

	var next int64
	if version == "" {
		insert := `
			INSERT INTO promo_documents (id, body, version, updated_at)
			VALUES ($1, $2, 1, NOW())
			ON CONFLICT (id) DO NOTHING
			RETURNING version
		`
		err = r.db.QueryRowContext(ctx, insert, r.id, string(body)).Scan(&next)
	} else {
		current, perr := strconv.ParseInt(string(version), 10, 64)
		if perr != nil {
			return "", models.ErrConflict.New("malformed version %q", version)
		}
		update := `
			UPDATE promo_documents
			SET body = $1, version = version + 1, updated_at = NOW()
			WHERE id = $2 AND version = $3
			RETURNING version
		`
		err = r.db.QueryRowContext(ctx, update, string(body), r.id, current).Scan(&next)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", models.ErrConflict.New("document %q changed since version %q", r.id, version)
		}
		return "", Error.Wrap(err)
	}
	return Version(strconv.FormatInt(next, 10)), nil
}
