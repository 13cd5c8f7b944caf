package blobstore

import (
	"context"
	"errors"
	"io"
)

// attributeStore is the mode-dependent persistence strategy for blob
// attributes. Read returns ErrBlobNotFound when no valid record exists;
// backend failures surface as *StorageError.
type attributeStore interface {
	Read(ctx context.Context, id BlobID) (*BlobAttributes, error)
	Write(ctx context.Context, id BlobID, attrs *BlobAttributes) error
	Exists(ctx context.Context, id BlobID) (bool, error)
}

// fileAttributeStore keeps attributes as .properties companion objects at
// the same key stem as the content object.
type fileAttributeStore struct {
	store    ObjectStore
	resolver LocationResolver
}

func (s *fileAttributeStore) key(id BlobID) string {
	return ContentPrefix + s.resolver.Locate(id) + PropertiesSuffix
}

func (s *fileAttributeStore) Read(ctx context.Context, id BlobID) (*BlobAttributes, error) {
	key := s.key(id)
	rc, err := s.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, &StorageError{Key: key, Op: "read attributes", Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &StorageError{Key: key, Op: "read attributes", Err: err}
	}
	attrs, err := UnmarshalProperties(data)
	if err != nil {
		// A corrupt record means the blob is absent, not broken.
		return nil, ErrBlobNotFound
	}
	return attrs, nil
}

func (s *fileAttributeStore) Write(ctx context.Context, id BlobID, attrs *BlobAttributes) error {
	key := s.key(id)
	if err := uploadBytes(ctx, s.store, key, attrs.MarshalProperties()); err != nil {
		return &StorageError{Key: key, Op: "write attributes", Err: err}
	}
	return nil
}

func (s *fileAttributeStore) Exists(ctx context.Context, id BlobID) (bool, error) {
	key := s.key(id)
	_, err := s.store.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, &StorageError{Key: key, Op: "stat attributes", Err: err}
	}
	return true, nil
}
