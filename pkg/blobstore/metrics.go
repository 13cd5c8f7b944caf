package blobstore

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Metrics is the aggregate state of a bucket.
type Metrics struct {
	BlobCount int64
	TotalSize int64
}

// MetricsStore maintains an in-memory count/size aggregate for the bucket.
// It is refreshed periodically from a full listing and nudged on the create
// and delete fast paths; stale reads are acceptable and self-heal on the
// next refresh.
type MetricsStore struct {
	store  ObjectStore
	logger *slog.Logger

	count atomic.Int64
	size  atomic.Int64
	group singleflight.Group
}

func newMetricsStore(store ObjectStore, logger *slog.Logger) *MetricsStore {
	return &MetricsStore{store: store, logger: logger}
}

// Get returns the current aggregate.
func (m *MetricsStore) Get() Metrics {
	return Metrics{BlobCount: m.count.Load(), TotalSize: m.size.Load()}
}

// RecordAdd applies the create fast path.
func (m *MetricsStore) RecordAdd(size int64) {
	m.count.Add(1)
	m.size.Add(size)
}

// RecordRemove applies the soft-delete fast path.
func (m *MetricsStore) RecordRemove(size int64) {
	m.count.Add(-1)
	m.size.Add(-size)
}

// Refresh recomputes the aggregate from a listing of the content namespace.
// Concurrent callers are collapsed into one listing.
func (m *MetricsStore) Refresh(ctx context.Context) error {
	_, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		var count, size int64
		for info, err := range m.store.List(ctx, ContentPrefix) {
			if err != nil {
				return nil, &StorageError{Key: ContentPrefix, Op: "list", Err: err}
			}
			if !strings.HasSuffix(info.Key, BytesSuffix) || strings.Contains(info.Key, TempBlobMarker) {
				continue
			}
			count++
			size += info.Size
		}
		m.count.Store(count)
		m.size.Store(size)
		return nil, nil
	})
	return err
}

// tickerScheduler is the default Scheduler, running the task on a plain
// ticker until stopped.
type tickerScheduler struct{}

func (tickerScheduler) Schedule(interval time.Duration, task func(ctx context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				task(ctx)
			}
		}
	}()
	return cancel
}
