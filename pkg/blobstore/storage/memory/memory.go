package memory

import (
	"bytes"
	"context"
	"io"
	"iter"
	"sort"
	"sync"

	"github.com/tendant/simple-blobstore/pkg/blobstore"
)

// Store is an in-memory implementation of the blobstore.ObjectStore
// interface, used in tests and development.
type Store struct {
	mu      sync.RWMutex
	bucket  bool
	objects map[string][]byte
}

// New creates a new in-memory object store. The bucket starts absent;
// Engine.Init creates it.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bucket, nil
}

func (s *Store) CreateBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket = true
	return nil
}

func (s *Store) Upload(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, exists := s.objects[key]
	if !exists {
		return nil, blobstore.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Stat(ctx context.Context, key string) (blobstore.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, exists := s.objects[key]
	if !exists {
		return blobstore.ObjectInfo{}, blobstore.ErrObjectNotFound
	}
	return blobstore.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// List yields objects in sorted key order over a snapshot of the store.
func (s *Store) List(ctx context.Context, prefix string) iter.Seq2[blobstore.ObjectInfo, error] {
	s.mu.RLock()
	var infos []blobstore.ObjectInfo
	for key, data := range s.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			infos = append(infos, blobstore.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	s.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	return func(yield func(blobstore.ObjectInfo, error) bool) {
		for _, info := range infos {
			if !yield(info, nil) {
				return
			}
		}
	}
}
