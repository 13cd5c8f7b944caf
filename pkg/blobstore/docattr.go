package blobstore

import (
	"context"
	"errors"
)

// docAttributeStore keeps attributes as one document-store record per blob
// id. The underlying DocumentStore already translates client failures into
// *StorageError, so only the not-found mapping happens here.
type docAttributeStore struct {
	docs DocumentStore
}

func (s *docAttributeStore) Read(ctx context.Context, id BlobID) (*BlobAttributes, error) {
	rec, err := s.docs.Get(ctx, string(id))
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return &BlobAttributes{
		CreationTime:  rec.CreationTime,
		Size:          rec.Size,
		SHA1:          rec.SHA1,
		Headers:       rec.Headers,
		Deleted:       rec.Deleted,
		DeletedReason: rec.DeletedReason,
	}, nil
}

func (s *docAttributeStore) Write(ctx context.Context, id BlobID, attrs *BlobAttributes) error {
	return s.docs.Put(ctx, &AttributeRecord{
		BlobID:        string(id),
		CreationTime:  attrs.CreationTime,
		Size:          attrs.Size,
		SHA1:          attrs.SHA1,
		Headers:       attrs.Headers,
		Deleted:       attrs.Deleted,
		DeletedReason: attrs.DeletedReason,
	})
}

func (s *docAttributeStore) Exists(ctx context.Context, id BlobID) (bool, error) {
	_, err := s.docs.Get(ctx, string(id))
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
