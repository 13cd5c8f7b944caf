package blobstore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const propType = "type"

// Engine orchestrates blob create/read/delete operations against an object
// storage bucket and a mode-dependent attribute store. It is safe for
// concurrent use; there is no cross-id locking.
type Engine struct {
	store    ObjectStore
	docs     DocumentStore
	resolver LocationResolver
	logger   *slog.Logger
	now      func() time.Time

	metrics         *MetricsStore
	scheduler       Scheduler
	metricsInterval time.Duration
	stopMetrics     func()

	mu        sync.RWMutex
	started   bool
	mode      AttributeMode
	fileAttrs *fileAttributeStore
	modeAttrs attributeStore
}

// Option represents a functional option for configuring the engine
type Option func(*Engine)

// WithObjectStore sets the object storage adapter. Required.
func WithObjectStore(store ObjectStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithDocumentStore sets the document store used in datastore mode.
func WithDocumentStore(docs DocumentStore) Option {
	return func(e *Engine) { e.docs = docs }
}

// WithLocationResolver overrides the default volume/chapter resolver.
func WithLocationResolver(r LocationResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithScheduler overrides the periodic-job scheduler used for metrics
// refresh.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// WithMetricsInterval sets the metrics refresh interval. Zero disables the
// periodic refresh.
func WithMetricsInterval(d time.Duration) Option {
	return func(e *Engine) { e.metricsInterval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a new engine instance with the given options.
func New(options ...Option) (*Engine, error) {
	e := &Engine{
		resolver:        VolumeChapterResolver{},
		now:             time.Now,
		scheduler:       tickerScheduler{},
		metricsInterval: 5 * time.Minute,
	}
	for _, option := range options {
		option(e)
	}
	if e.store == nil {
		return nil, &ConfigError{Detail: "object store is required"}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.metrics = newMetricsStore(e.store, e.logger)
	e.fileAttrs = &fileAttributeStore{store: e.store, resolver: e.resolver}
	return e, nil
}

// Init ensures the configured bucket exists, creating it if absent. It is
// idempotent: when the bucket already exists no creation call is issued.
func (e *Engine) Init(ctx context.Context) error {
	exists, err := e.store.BucketExists(ctx)
	if err != nil {
		return &StorageError{Op: "check bucket", Err: err}
	}
	if exists {
		return nil
	}
	if err := e.store.CreateBucket(ctx); err != nil {
		return &StorageError{Op: "create bucket", Err: err}
	}
	e.logger.Info("created bucket")
	return nil
}

// Start resolves the bucket's attribute mode from the bootstrap marker and
// begins the periodic metrics refresh. A marker declaring an unrecognized
// type is a fatal *ConfigError; the engine never starts half-configured.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	mode, err := e.detectMode(ctx)
	if err != nil {
		return err
	}

	switch mode {
	case ModeFile:
		e.modeAttrs = e.fileAttrs
	case ModeDatastore:
		if e.docs == nil {
			return &ConfigError{Detail: "datastore mode requires a document store"}
		}
		e.modeAttrs = &docAttributeStore{docs: e.docs}
	}
	e.mode = mode

	if e.metricsInterval > 0 {
		e.stopMetrics = e.scheduler.Schedule(e.metricsInterval, func(ctx context.Context) {
			if err := e.metrics.Refresh(ctx); err != nil {
				e.logger.Warn("metrics refresh failed", "err", err)
			}
		})
	}

	e.started = true
	e.logger.Info("blob store started", "mode", string(mode))
	return nil
}

// detectMode reads the bootstrap marker. A fresh bucket (no marker) is
// claimed for datastore mode by writing the marker, so restarts do not
// re-probe.
func (e *Engine) detectMode(ctx context.Context) (AttributeMode, error) {
	rc, err := e.store.Download(ctx, MetadataKey)
	if err != nil {
		if !errors.Is(err, ErrObjectNotFound) {
			return "", &StorageError{Key: MetadataKey, Op: "read metadata", Err: err}
		}
		if e.docs == nil {
			// Refuse before claiming the fresh bucket for datastore mode
			return "", &ConfigError{Detail: "datastore mode requires a document store"}
		}
		marker := marshalProperties(map[string]string{propType: string(ModeDatastore)})
		if err := uploadBytes(ctx, e.store, MetadataKey, marker); err != nil {
			return "", &StorageError{Key: MetadataKey, Op: "write metadata", Err: err}
		}
		return ModeDatastore, nil
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", &StorageError{Key: MetadataKey, Op: "read metadata", Err: err}
	}
	props, err := parseProperties(data)
	if err != nil {
		return "", &ConfigError{Detail: "malformed bootstrap marker", Err: err}
	}

	switch typ := AttributeMode(props[propType]); typ {
	case ModeFile, ModeDatastore:
		return typ, nil
	default:
		return "", &ConfigError{Detail: fmt.Sprintf("unsupported blob store type %q", props[propType])}
	}
}

// Stop cancels the metrics refresh schedule.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopMetrics != nil {
		e.stopMetrics()
		e.stopMetrics = nil
	}
	e.started = false
	return nil
}

// IsUsingDatastore reports whether attributes live in the document store.
func (e *Engine) IsUsingDatastore() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode == ModeDatastore
}

// Metrics returns the current aggregate blob count and total size. Reads
// may lag mutations until the next periodic refresh.
func (e *Engine) Metrics() Metrics {
	return e.metrics.Get()
}

// RefreshMetrics forces a full recount outside the periodic schedule.
func (e *Engine) RefreshMetrics(ctx context.Context) error {
	return e.metrics.Refresh(ctx)
}

// attrStore returns the attribute store serving id. Direct-path blobs
// always carry .properties companions, regardless of bucket mode.
func (e *Engine) attrStore(id BlobID) (attributeStore, error) {
	if id.IsDirectPath() {
		return e.fileAttrs, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.started {
		return nil, ErrNotStarted
	}
	return e.modeAttrs, nil
}

// contentKey returns the content object key for id.
func (e *Engine) contentKey(id BlobID) string {
	return ContentPrefix + e.resolver.Locate(id) + BytesSuffix
}

// Create streams the payload to a new content object and persists its
// attributes. Headers must include HeaderBlobName and HeaderCreatedBy. The
// payload is consumed in a single pass; size and SHA-1 are computed while
// uploading.
func (e *Engine) Create(ctx context.Context, r io.Reader, headers map[string]string) (*Blob, error) {
	for _, required := range []string{HeaderBlobName, HeaderCreatedBy} {
		if headers[required] == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingHeader, required)
		}
	}

	id, err := e.resolver.NewBlobID(headers)
	if err != nil {
		return nil, err
	}
	attrs, err := e.attrStore(id)
	if err != nil {
		return nil, err
	}

	key := e.contentKey(id)
	digest := sha1.New()
	counted := &countingReader{r: io.TeeReader(r, digest)}
	if err := e.store.Upload(ctx, key, counted); err != nil {
		return nil, &StorageError{Key: key, Op: "upload", Err: err}
	}

	record := &BlobAttributes{
		CreationTime: e.now().UTC(),
		Size:         counted.n,
		SHA1:         hex.EncodeToString(digest.Sum(nil)),
		Headers:      cloneHeaders(headers),
	}
	if err := attrs.Write(ctx, id, record); err != nil {
		// The content object is orphaned; an out-of-band reconcile task
		// cleans it up.
		e.logger.Warn("orphaned content object after attribute failure", "key", key, "err", err)
		return nil, err
	}

	e.metrics.RecordAdd(record.Size)
	return &Blob{ID: id, Attributes: record, store: e.store, key: key}, nil
}

// Get returns a handle to the blob, or ErrBlobNotFound when the blob is
// absent or soft-deleted. The content stream opens lazily via Blob.Open.
func (e *Engine) Get(ctx context.Context, id BlobID) (*Blob, error) {
	store, err := e.attrStore(id)
	if err != nil {
		return nil, err
	}
	attrs, err := store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if attrs.Deleted {
		return nil, ErrBlobNotFound
	}
	return &Blob{ID: id, Attributes: attrs, store: e.store, key: e.contentKey(id)}, nil
}

// GetBlobAttributes returns the raw attribute record for id, including
// soft-delete state. ErrBlobNotFound means no record exists.
func (e *Engine) GetBlobAttributes(ctx context.Context, id BlobID) (*BlobAttributes, error) {
	store, err := e.attrStore(id)
	if err != nil {
		return nil, err
	}
	return store.Read(ctx, id)
}

// Exists reports whether an attribute record exists for id. A backend
// failure is an error, never false: callers can distinguish "definitely
// absent" from "could not determine".
func (e *Engine) Exists(ctx context.Context, id BlobID) (bool, error) {
	store, err := e.attrStore(id)
	if err != nil {
		return false, err
	}
	return store.Exists(ctx, id)
}

// Delete soft-deletes the blob: the attribute record is marked deleted with
// the given reason, content stays in place for out-of-band compaction. It
// returns false when no attribute record exists.
func (e *Engine) Delete(ctx context.Context, id BlobID, reason string) (bool, error) {
	store, err := e.attrStore(id)
	if err != nil {
		return false, err
	}
	attrs, err := store.Read(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return false, nil
		}
		return false, err
	}

	wasVisible := !attrs.Deleted
	attrs = attrs.Clone()
	attrs.Deleted = true
	attrs.DeletedReason = reason
	if err := store.Write(ctx, id, attrs); err != nil {
		return false, err
	}
	if wasVisible {
		e.metrics.RecordRemove(attrs.Size)
	}
	return true, nil
}

// Undelete reverses a soft delete. With no known attributes it is a no-op
// returning false. In dry-run mode it reports whether an undelete would
// apply without mutating anything. Undeleting a visible blob is a safe
// no-op. The usage checker, when set, is consulted before the mutation.
func (e *Engine) Undelete(ctx context.Context, checker UsageChecker, id BlobID, attrs *BlobAttributes, dryRun bool) (bool, error) {
	if attrs == nil {
		return false, nil
	}
	applicable := attrs.Deleted
	if dryRun {
		return applicable, nil
	}
	if !applicable {
		return false, nil
	}

	if checker != nil {
		ok, err := checker.CanUndelete(ctx, id, attrs)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	store, err := e.attrStore(id)
	if err != nil {
		return false, err
	}
	restored := attrs.Clone()
	restored.Deleted = false
	restored.DeletedReason = ""
	if err := store.Write(ctx, id, restored); err != nil {
		return false, err
	}
	e.metrics.RecordAdd(restored.Size)
	return true, nil
}

// countingReader counts bytes as they stream through.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func cloneHeaders(headers map[string]string) map[string]string {
	c := make(map[string]string, len(headers))
	for k, v := range headers {
		c[k] = v
	}
	return c
}

func uploadBytes(ctx context.Context, store ObjectStore, key string, data []byte) error {
	return store.Upload(ctx, key, bytes.NewReader(data))
}
