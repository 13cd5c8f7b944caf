package blobstore

import (
	"context"
	"io"
	"strings"
)

// Headers callers supply on create. BlobName and CreatedBy are mandatory.
const (
	HeaderBlobName    = "blob-name"
	HeaderCreatedBy   = "created-by"
	HeaderContentType = "content-type"

	// HeaderDirectPath opts into caller-controlled storage paths: its value
	// is a relative path under the direct-path namespace, and the resulting
	// blob id carries the DirectPathIDPrefix.
	HeaderDirectPath = "direct-path"
)

// Bucket key layout.
const (
	// ContentPrefix is the namespace holding all content objects.
	ContentPrefix = "content/"

	// DirectPathPrefix is the sub-namespace (under ContentPrefix) holding
	// blobs addressed by caller-supplied relative paths.
	DirectPathPrefix = "directpath/"

	// BytesSuffix and PropertiesSuffix terminate a content object key and
	// its file-mode attribute companion at the same key stem.
	BytesSuffix      = ".bytes"
	PropertiesSuffix = ".properties"

	// TempBlobMarker prefixes the final path segment of not-yet-finalized
	// uploads. Keys containing it are invisible to enumeration and metrics.
	TempBlobMarker = "tmp$"

	// DirectPathIDPrefix distinguishes direct-path blob ids from
	// content-addressed ones.
	DirectPathIDPrefix = "path$"

	// MetadataKey is the bootstrap marker object recording the bucket's
	// attribute-storage mode.
	MetadataKey = "metadata.properties"
)

// AttributeMode is the bucket's attribute-storage mode, fixed at startup.
type AttributeMode string

const (
	// ModeFile stores attributes as .properties companions next to content.
	ModeFile AttributeMode = "file/1"

	// ModeDatastore stores attributes in an external document store.
	ModeDatastore AttributeMode = "datastore/1"
)

// BlobID identifies one logical blob. It is an opaque value; equality is by
// string value.
type BlobID string

func (id BlobID) String() string { return string(id) }

// IsDirectPath reports whether the id addresses a direct-path blob.
func (id BlobID) IsDirectPath() bool {
	return strings.HasPrefix(string(id), DirectPathIDPrefix)
}

// Blob is a handle to a stored blob. The byte stream is opened lazily via
// Open; each call opens a fresh read channel that the caller must close.
type Blob struct {
	ID         BlobID
	Attributes *BlobAttributes

	store ObjectStore
	key   string
}

// Open opens a read channel to the blob's content object.
func (b *Blob) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := b.store.Download(ctx, b.key)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, &StorageError{Key: b.key, Op: "open", Err: err}
	}
	return rc, nil
}

// Key returns the backend key of the blob's content object.
func (b *Blob) Key() string { return b.key }
