package memory

import (
	"context"
	"sync"

	"github.com/tendant/simple-blobstore/pkg/blobstore"
)

// Store is an in-memory implementation of the blobstore.DocumentStore
// interface, used in tests and development.
type Store struct {
	mu      sync.RWMutex
	records map[string]*blobstore.AttributeRecord
}

// New creates a new in-memory document store.
func New() *Store {
	return &Store{records: make(map[string]*blobstore.AttributeRecord)}
}

func (s *Store) Put(ctx context.Context, rec *blobstore.AttributeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Copy to keep stored state immune to caller mutation
	c := *rec
	if rec.Headers != nil {
		c.Headers = make(map[string]string, len(rec.Headers))
		for k, v := range rec.Headers {
			c.Headers[k] = v
		}
	}
	s.records[rec.BlobID] = &c
	return nil
}

func (s *Store) Get(ctx context.Context, blobID string) (*blobstore.AttributeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, exists := s.records[blobID]
	if !exists {
		return nil, blobstore.ErrDocumentNotFound
	}
	c := *rec
	if rec.Headers != nil {
		c.Headers = make(map[string]string, len(rec.Headers))
		for k, v := range rec.Headers {
			c.Headers[k] = v
		}
	}
	return &c, nil
}
