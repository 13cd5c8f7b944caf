package blobstore

import (
	"context"
	"io"
	"iter"
	"time"
)

// ObjectStore is the narrow contract the engine needs from a remote
// object-storage bucket. Adapters map their client's not-found signals to
// ErrObjectNotFound; every other failure is returned as-is and wrapped by
// the engine.
type ObjectStore interface {
	// BucketExists reports whether the configured bucket exists.
	BucketExists(ctx context.Context) (bool, error)

	// CreateBucket creates the configured bucket.
	CreateBucket(ctx context.Context) error

	// Upload streams the reader to the given key, replacing any existing
	// object.
	Upload(ctx context.Context, key string, r io.Reader) error

	// Download opens a read stream for the object at key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns object metadata without fetching content.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error

	// List lazily yields objects whose keys start with prefix, in backend
	// listing order. The sequence is single-pass.
	List(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error]
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// AttributeRecord is the document-store representation of blob attributes,
// one record per blob id.
type AttributeRecord struct {
	BlobID        string
	CreationTime  time.Time
	Size          int64
	SHA1          string
	Headers       map[string]string
	Deleted       bool
	DeletedReason string
}

// DocumentStore persists attribute records keyed by blob id. Get returns
// ErrDocumentNotFound for an empty result; client-level failures are
// returned wrapped in *StorageError, never as raw backend error types.
type DocumentStore interface {
	Put(ctx context.Context, rec *AttributeRecord) error
	Get(ctx context.Context, blobID string) (*AttributeRecord, error)
}

// LocationResolver maps blob ids to storage key stems (relative to the
// content namespace) and derives new ids from create-time headers.
type LocationResolver interface {
	// Locate returns the key stem for id, without namespace prefix or
	// suffix.
	Locate(id BlobID) string

	// NewBlobID derives an identifier for a new blob from its headers.
	NewBlobID(headers map[string]string) (BlobID, error)
}

// Scheduler runs a task periodically. Schedule returns a stop function that
// cancels the schedule without leaking it.
type Scheduler interface {
	Schedule(interval time.Duration, task func(ctx context.Context)) (stop func())
}

// UsageChecker decides whether a soft-deleted blob is eligible for restore.
// It is consulted by Undelete before any mutation.
type UsageChecker interface {
	CanUndelete(ctx context.Context, id BlobID, attrs *BlobAttributes) (bool, error)
}
