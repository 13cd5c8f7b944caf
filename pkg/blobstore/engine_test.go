package blobstore_test

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blobstore/pkg/blobstore"
	docmemory "github.com/tendant/simple-blobstore/pkg/blobstore/docstore/memory"
	"github.com/tendant/simple-blobstore/pkg/blobstore/storage/memory"
)

// countingStore wraps the memory store counting bucket calls.
type countingStore struct {
	*memory.Store
	bucketCreates int
}

func (c *countingStore) CreateBucket(ctx context.Context) error {
	c.bucketCreates++
	return c.Store.CreateBucket(ctx)
}

// failingDocStore simulates a transient document-store outage.
type failingDocStore struct{}

func (failingDocStore) Put(ctx context.Context, rec *blobstore.AttributeRecord) error {
	return &blobstore.StorageError{Backend: "test", Key: rec.BlobID, Op: "put", Err: errors.New("datastore down")}
}

func (failingDocStore) Get(ctx context.Context, blobID string) (*blobstore.AttributeRecord, error) {
	return nil, &blobstore.StorageError{Backend: "test", Key: blobID, Op: "get", Err: errors.New("datastore down")}
}

func newStartedEngine(t *testing.T, store blobstore.ObjectStore, docs blobstore.DocumentStore) *blobstore.Engine {
	t.Helper()
	ctx := context.Background()

	engine, err := blobstore.New(
		blobstore.WithObjectStore(store),
		blobstore.WithDocumentStore(docs),
		blobstore.WithMetricsInterval(0),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Init(ctx))
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(func() { _ = engine.Stop(ctx) })
	return engine
}

func validHeaders() map[string]string {
	return map[string]string{
		blobstore.HeaderBlobName:  "report.txt",
		blobstore.HeaderCreatedBy: "test-user",
	}
}

func collectIDs(t *testing.T, seq iter.Seq2[blobstore.BlobID, error]) []string {
	t.Helper()
	var ids []string
	for id, err := range seq {
		require.NoError(t, err)
		ids = append(ids, string(id))
	}
	return ids
}

func seedObject(t *testing.T, store *memory.Store, key, content string) {
	t.Helper()
	require.NoError(t, store.Upload(context.Background(), key, strings.NewReader(content)))
}

func TestEngine_InitIdempotent(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memory.New()}

	engine, err := blobstore.New(
		blobstore.WithObjectStore(store),
		blobstore.WithMetricsInterval(0),
	)
	require.NoError(t, err)

	t.Run("FirstInitCreatesBucket", func(t *testing.T) {
		require.NoError(t, engine.Init(ctx))
		assert.Equal(t, 1, store.bucketCreates)
	})

	t.Run("SecondInitIssuesNoCreation", func(t *testing.T) {
		require.NoError(t, engine.Init(ctx))
		assert.Equal(t, 1, store.bucketCreates)
	})
}

func TestEngine_StartModeDetection(t *testing.T) {
	ctx := context.Background()

	t.Run("FreshBucketUsesDatastore", func(t *testing.T) {
		store := memory.New()
		engine := newStartedEngine(t, store, docmemory.New())
		assert.True(t, engine.IsUsingDatastore())

		// The marker is written so restarts do not re-probe
		rc, err := store.Download(ctx, blobstore.MetadataKey)
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Contains(t, string(data), "type=datastore/1")
	})

	t.Run("FileMarkerUsesFileMode", func(t *testing.T) {
		store := memory.New()
		seedObject(t, store, blobstore.MetadataKey, "type=file/1\n")
		engine := newStartedEngine(t, store, nil)
		assert.False(t, engine.IsUsingDatastore())
	})

	t.Run("DatastoreMarkerUsesDatastore", func(t *testing.T) {
		store := memory.New()
		seedObject(t, store, blobstore.MetadataKey, "type=datastore/1\n")
		engine := newStartedEngine(t, store, docmemory.New())
		assert.True(t, engine.IsUsingDatastore())
	})

	t.Run("UnrecognizedMarkerFailsStartup", func(t *testing.T) {
		store := memory.New()
		seedObject(t, store, blobstore.MetadataKey, "type=weird/9\n")

		engine, err := blobstore.New(
			blobstore.WithObjectStore(store),
			blobstore.WithMetricsInterval(0),
		)
		require.NoError(t, err)
		require.NoError(t, engine.Init(ctx))

		err = engine.Start(ctx)
		require.Error(t, err)
		var cfgErr *blobstore.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("DatastoreModeWithoutDocumentStoreFailsStartup", func(t *testing.T) {
		store := memory.New()

		engine, err := blobstore.New(
			blobstore.WithObjectStore(store),
			blobstore.WithMetricsInterval(0),
		)
		require.NoError(t, err)
		require.NoError(t, engine.Init(ctx))

		err = engine.Start(ctx)
		require.Error(t, err)
		var cfgErr *blobstore.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestEngine_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	engine := newStartedEngine(t, memory.New(), docmemory.New())

	payload := []byte("the quick brown fox jumps over the lazy dog")

	t.Run("CreateComputesAttributes", func(t *testing.T) {
		blob, err := engine.Create(ctx, bytes.NewReader(payload), validHeaders())
		require.NoError(t, err)
		require.NotNil(t, blob)

		sum := sha1.Sum(payload)
		assert.Equal(t, int64(len(payload)), blob.Attributes.Size)
		assert.Equal(t, hex.EncodeToString(sum[:]), blob.Attributes.SHA1)
		assert.Equal(t, "report.txt", blob.Attributes.Headers[blobstore.HeaderBlobName])
		assert.Equal(t, "test-user", blob.Attributes.Headers[blobstore.HeaderCreatedBy])
		assert.False(t, blob.Attributes.Deleted)
	})

	t.Run("GetReproducesPayload", func(t *testing.T) {
		created, err := engine.Create(ctx, bytes.NewReader(payload), validHeaders())
		require.NoError(t, err)

		blob, err := engine.Get(ctx, created.ID)
		require.NoError(t, err)

		rc, err := blob.Open(ctx)
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("GetUnknownIdReturnsNotFound", func(t *testing.T) {
		blob, err := engine.Get(ctx, "never-written")
		assert.Nil(t, blob)
		assert.ErrorIs(t, err, blobstore.ErrBlobNotFound)
	})

	t.Run("ExistsAfterCreate", func(t *testing.T) {
		created, err := engine.Create(ctx, bytes.NewReader(payload), validHeaders())
		require.NoError(t, err)

		exists, err := engine.Exists(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("ExistsUnknownIdReturnsFalse", func(t *testing.T) {
		exists, err := engine.Exists(ctx, "never-written")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("MissingRequiredHeaders", func(t *testing.T) {
		_, err := engine.Create(ctx, bytes.NewReader(payload), map[string]string{
			blobstore.HeaderBlobName: "only-name.txt",
		})
		assert.ErrorIs(t, err, blobstore.ErrMissingHeader)

		_, err = engine.Create(ctx, bytes.NewReader(payload), nil)
		assert.ErrorIs(t, err, blobstore.ErrMissingHeader)
	})
}

func TestEngine_FileModeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedObject(t, store, blobstore.MetadataKey, "type=file/1\n")
	engine := newStartedEngine(t, store, nil)

	payload := []byte("file mode payload")
	created, err := engine.Create(ctx, bytes.NewReader(payload), validHeaders())
	require.NoError(t, err)

	t.Run("PropertiesCompanionWritten", func(t *testing.T) {
		companion := strings.TrimSuffix(created.Key(), blobstore.BytesSuffix) + blobstore.PropertiesSuffix
		_, err := store.Stat(ctx, companion)
		require.NoError(t, err)
	})

	t.Run("GetReadsCompanion", func(t *testing.T) {
		blob, err := engine.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), blob.Attributes.Size)

		rc, err := blob.Open(ctx)
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("ExistsViaCompanion", func(t *testing.T) {
		exists, err := engine.Exists(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestEngine_SoftDelete(t *testing.T) {
	ctx := context.Background()
	engine := newStartedEngine(t, memory.New(), docmemory.New())

	created, err := engine.Create(ctx, strings.NewReader("soon deleted"), validHeaders())
	require.NoError(t, err)

	t.Run("DeleteHidesBlob", func(t *testing.T) {
		deleted, err := engine.Delete(ctx, created.ID, "cleanup policy")
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = engine.Get(ctx, created.ID)
		assert.ErrorIs(t, err, blobstore.ErrBlobNotFound)
	})

	t.Run("AttributesKeepDeleteState", func(t *testing.T) {
		attrs, err := engine.GetBlobAttributes(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, attrs.Deleted)
		assert.Equal(t, "cleanup policy", attrs.DeletedReason)
	})

	t.Run("ContentObjectStaysPresent", func(t *testing.T) {
		blob := created
		rc, err := blob.Open(ctx)
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "soon deleted", string(got))
	})

	t.Run("DeleteUnknownIdReturnsFalse", func(t *testing.T) {
		deleted, err := engine.Delete(ctx, "never-written", "reason")
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

// vetoChecker denies every undelete.
type vetoChecker struct{}

func (vetoChecker) CanUndelete(ctx context.Context, id blobstore.BlobID, attrs *blobstore.BlobAttributes) (bool, error) {
	return false, nil
}

func TestEngine_Undelete(t *testing.T) {
	ctx := context.Background()
	engine := newStartedEngine(t, memory.New(), docmemory.New())

	created, err := engine.Create(ctx, strings.NewReader("restorable"), validHeaders())
	require.NoError(t, err)
	_, err = engine.Delete(ctx, created.ID, "mistake")
	require.NoError(t, err)

	t.Run("NoKnownAttributesIsNoOp", func(t *testing.T) {
		restored, err := engine.Undelete(ctx, nil, "never-written", nil, false)
		require.NoError(t, err)
		assert.False(t, restored)
	})

	t.Run("DryRunReportsWithoutMutating", func(t *testing.T) {
		attrs, err := engine.GetBlobAttributes(ctx, created.ID)
		require.NoError(t, err)

		applicable, err := engine.Undelete(ctx, nil, created.ID, attrs, true)
		require.NoError(t, err)
		assert.True(t, applicable)

		// Visibility is unchanged
		_, err = engine.Get(ctx, created.ID)
		assert.ErrorIs(t, err, blobstore.ErrBlobNotFound)
	})

	t.Run("CheckerVetoPreventsRestore", func(t *testing.T) {
		attrs, err := engine.GetBlobAttributes(ctx, created.ID)
		require.NoError(t, err)

		restored, err := engine.Undelete(ctx, vetoChecker{}, created.ID, attrs, false)
		require.NoError(t, err)
		assert.False(t, restored)

		_, err = engine.Get(ctx, created.ID)
		assert.ErrorIs(t, err, blobstore.ErrBlobNotFound)
	})

	t.Run("UndeleteRestoresVisibility", func(t *testing.T) {
		attrs, err := engine.GetBlobAttributes(ctx, created.ID)
		require.NoError(t, err)

		restored, err := engine.Undelete(ctx, nil, created.ID, attrs, false)
		require.NoError(t, err)
		assert.True(t, restored)

		blob, err := engine.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, blob.Attributes.Deleted)
		assert.Empty(t, blob.Attributes.DeletedReason)
	})

	t.Run("UndeleteVisibleBlobIsNoOp", func(t *testing.T) {
		attrs, err := engine.GetBlobAttributes(ctx, created.ID)
		require.NoError(t, err)

		restored, err := engine.Undelete(ctx, nil, created.ID, attrs, false)
		require.NoError(t, err)
		assert.False(t, restored)
	})
}

func TestEngine_ExistsTranslatesBackendFailure(t *testing.T) {
	ctx := context.Background()
	engine := newStartedEngine(t, memory.New(), failingDocStore{})

	exists, err := engine.Exists(ctx, "some-id")
	assert.False(t, exists)
	require.Error(t, err)
	var storageErr *blobstore.StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestEngine_CreateAttributeFailureIsStorageError(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := newStartedEngine(t, store, failingDocStore{})

	blob, err := engine.Create(ctx, strings.NewReader("orphan"), validHeaders())
	assert.Nil(t, blob)
	require.Error(t, err)
	var storageErr *blobstore.StorageError
	assert.ErrorAs(t, err, &storageErr)

	// The uploaded content object is orphaned, not rolled back
	found := false
	for info, err := range store.List(ctx, blobstore.ContentPrefix) {
		require.NoError(t, err)
		if strings.HasSuffix(info.Key, blobstore.BytesSuffix) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEngine_BlobIDStream(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := newStartedEngine(t, store, docmemory.New())

	seedObject(t, store, "notundercontent.txt", "stray")
	seedObject(t, store, "content/vol-01/chap-08/thing.bytes", "payload")
	seedObject(t, store, "content/vol-01/chap-08/thing.properties", "size=7\n")
	seedObject(t, store, "content/vol-02/chap-09/tmp$thing.bytes", "partial upload")

	ids := collectIDs(t, engine.BlobIDs(ctx))
	assert.Equal(t, []string{"vol-01/chap-08/thing"}, ids)
}

func TestEngine_DirectPathBlobIDStream(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := newStartedEngine(t, store, docmemory.New())

	for _, rel := range []string{"docs/a.txt", "docs/b.txt"} {
		headers := validHeaders()
		headers[blobstore.HeaderDirectPath] = rel
		_, err := engine.Create(ctx, strings.NewReader("direct "+rel), headers)
		require.NoError(t, err)
	}

	t.Run("OneIdPerBytesPropertiesPair", func(t *testing.T) {
		// Four backend objects, two logical blobs
		var objects int
		for _, err := range store.List(ctx, blobstore.ContentPrefix+blobstore.DirectPathPrefix) {
			require.NoError(t, err)
			objects++
		}
		assert.Equal(t, 4, objects)

		ids := collectIDs(t, engine.DirectPathBlobIDs(ctx, "docs"))
		assert.ElementsMatch(t, []string{"path$docs/a.txt", "path$docs/b.txt"}, ids)
	})

	t.Run("UnmatchedPrefixYieldsEmpty", func(t *testing.T) {
		ids := collectIDs(t, engine.DirectPathBlobIDs(ctx, "nothing/here"))
		assert.Empty(t, ids)
	})

	t.Run("DirectPathExcludedFromContentStream", func(t *testing.T) {
		ids := collectIDs(t, engine.BlobIDs(ctx))
		assert.Empty(t, ids)
	})
}

func TestEngine_DirectPathCreate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := newStartedEngine(t, store, docmemory.New())

	headers := validHeaders()
	headers[blobstore.HeaderDirectPath] = "reports/2026/q1.csv"

	created, err := engine.Create(ctx, strings.NewReader("a,b,c"), headers)
	require.NoError(t, err)
	assert.True(t, created.ID.IsDirectPath())
	assert.Equal(t, blobstore.BlobID("path$reports/2026/q1.csv"), created.ID)
	assert.Equal(t, "content/directpath/reports/2026/q1.csv.bytes", created.Key())

	// Direct-path attributes are file companions even in datastore mode
	require.True(t, engine.IsUsingDatastore())
	_, err = store.Stat(ctx, "content/directpath/reports/2026/q1.csv.properties")
	require.NoError(t, err)

	blob, err := engine.Get(ctx, created.ID)
	require.NoError(t, err)
	rc, err := blob.Open(ctx)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", string(got))
}

func TestEngine_ClockControlsCreationTime(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, time.March, 1, 10, 30, 0, 0, time.UTC)

	engine, err := blobstore.New(
		blobstore.WithObjectStore(memory.New()),
		blobstore.WithDocumentStore(docmemory.New()),
		blobstore.WithMetricsInterval(0),
		blobstore.WithClock(func() time.Time { return fixed }),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Init(ctx))
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop(ctx)

	created, err := engine.Create(ctx, strings.NewReader("timed"), validHeaders())
	require.NoError(t, err)
	assert.Equal(t, fixed, created.Attributes.CreationTime)

	attrs, err := engine.GetBlobAttributes(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, fixed, attrs.CreationTime)
}
