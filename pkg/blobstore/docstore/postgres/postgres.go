package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-blobstore/pkg/blobstore"
)

// DBTX is an interface that allows us to use either a database connection
// or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements blobstore.DocumentStore using PostgreSQL, one row per
// blob id in the blob_attributes table.
type Store struct {
	db DBTX
}

// New creates a new PostgreSQL document store.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewWithPool creates a new PostgreSQL document store with a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// Migrate creates the backing table when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS blob_attributes (
			blob_id        TEXT PRIMARY KEY,
			creation_time  TIMESTAMPTZ NOT NULL,
			size           BIGINT NOT NULL,
			sha1           TEXT NOT NULL DEFAULT '',
			headers        JSONB,
			deleted        BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_reason TEXT NOT NULL DEFAULT ''
		)`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return s.wrapError("migrate", "", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, rec *blobstore.AttributeRecord) error {
	headers, err := json.Marshal(rec.Headers)
	if err != nil {
		return s.wrapError("put", rec.BlobID, err)
	}

	query := `
		INSERT INTO blob_attributes (
			blob_id, creation_time, size, sha1, headers, deleted, deleted_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (blob_id) DO UPDATE SET
			creation_time = EXCLUDED.creation_time,
			size = EXCLUDED.size,
			sha1 = EXCLUDED.sha1,
			headers = EXCLUDED.headers,
			deleted = EXCLUDED.deleted,
			deleted_reason = EXCLUDED.deleted_reason`

	_, err = s.db.Exec(ctx, query,
		rec.BlobID, rec.CreationTime, rec.Size, rec.SHA1, headers, rec.Deleted, rec.DeletedReason)
	if err != nil {
		return s.wrapError("put", rec.BlobID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, blobID string) (*blobstore.AttributeRecord, error) {
	query := `
		SELECT blob_id, creation_time, size, sha1, headers, deleted, deleted_reason
		FROM blob_attributes WHERE blob_id = $1`

	var rec blobstore.AttributeRecord
	var headers []byte
	err := s.db.QueryRow(ctx, query, blobID).Scan(
		&rec.BlobID, &rec.CreationTime, &rec.Size, &rec.SHA1, &headers, &rec.Deleted, &rec.DeletedReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, blobstore.ErrDocumentNotFound
		}
		return nil, s.wrapError("get", blobID, err)
	}

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &rec.Headers); err != nil {
			return nil, s.wrapError("get", blobID, err)
		}
	}
	rec.CreationTime = rec.CreationTime.UTC()
	return &rec, nil
}

// wrapError translates pgx-level failures into the core's storage error
// type so backend error types never leak into engine code.
func (s *Store) wrapError(op, blobID string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		err = fmt.Errorf("database error: %s (code: %s)", pgErr.Message, pgErr.Code)
	}
	return &blobstore.StorageError{Backend: "postgres", Key: blobID, Op: op, Err: err}
}
