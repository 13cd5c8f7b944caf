package minio

import (
	"context"
	"io"
	"iter"

	"github.com/minio/minio-go/v7"
	"github.com/tendant/simple-blobstore/pkg/blobstore"
)

// Store implements blobstore.ObjectStore for MinIO and other S3-compatible
// services via the native MinIO client.
type Store struct {
	client *minio.Client
	bucket string
	region string
}

// NewStore creates a new MinIO object store around an existing client.
func NewStore(client *minio.Client, bucket, region string) *Store {
	return &Store{client: client, bucket: bucket, region: region}
}

func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	return s.client.BucketExists(ctx, s.bucket)
}

func (s *Store) CreateBucket(ctx context.Context) error {
	err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	if err != nil {
		// Tolerate a concurrent creator
		exists, errCheck := s.client.BucketExists(ctx, s.bucket)
		if errCheck == nil && exists {
			return nil
		}
		return err
	}
	return nil
}

func (s *Store) Upload(ctx context.Context, key string, r io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{})
	return err
}

func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat forces the not-found check before the caller
	// starts reading.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, blobstore.ErrObjectNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (s *Store) Stat(ctx context.Context, key string) (blobstore.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return blobstore.ObjectInfo{}, blobstore.ErrObjectNotFound
		}
		return blobstore.ObjectInfo{}, err
	}
	return blobstore.ObjectInfo{Key: key, Size: info.Size}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *Store) List(ctx context.Context, prefix string) iter.Seq2[blobstore.ObjectInfo, error] {
	return func(yield func(blobstore.ObjectInfo, error) bool) {
		objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		})
		for obj := range objects {
			if obj.Err != nil {
				yield(blobstore.ObjectInfo{}, obj.Err)
				return
			}
			if !yield(blobstore.ObjectInfo{Key: obj.Key, Size: obj.Size}, nil) {
				return
			}
		}
	}
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}
