package blobstore

import (
	"context"
	"iter"
	"path"
	"strings"
)

// BlobIDs lazily yields the identifier of every content-addressed blob in
// the bucket: objects under the content namespace whose key carries the
// .bytes suffix, skipping attribute companions, transient-upload leftovers
// (keys containing the temp marker) and the direct-path sub-namespace. The
// sequence is single-pass and non-restartable; ordering is whatever the
// backend listing returns.
func (e *Engine) BlobIDs(ctx context.Context) iter.Seq2[BlobID, error] {
	return func(yield func(BlobID, error) bool) {
		for info, err := range e.store.List(ctx, ContentPrefix) {
			if err != nil {
				yield("", &StorageError{Key: ContentPrefix, Op: "list", Err: err})
				return
			}
			id, ok := blobIDFromKey(info.Key)
			if !ok {
				continue
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

// DirectPathBlobIDs lazily yields one identifier per direct-path blob under
// the given relative prefix. Each logical blob is two backend objects (a
// .bytes/.properties pair at the same stem) but is yielded once. A prefix
// matching nothing yields an empty sequence.
func (e *Engine) DirectPathBlobIDs(ctx context.Context, prefix string) iter.Seq2[BlobID, error] {
	listPrefix := ContentPrefix + DirectPathPrefix
	if prefix != "" {
		listPrefix += strings.TrimPrefix(path.Clean(prefix), "/")
	}
	return func(yield func(BlobID, error) bool) {
		seen := make(map[string]struct{})
		for info, err := range e.store.List(ctx, listPrefix) {
			if err != nil {
				yield("", &StorageError{Key: listPrefix, Op: "list", Err: err})
				return
			}
			stem, ok := directPathStem(info.Key)
			if !ok {
				continue
			}
			if _, dup := seen[stem]; dup {
				continue
			}
			seen[stem] = struct{}{}
			if !yield(BlobID(DirectPathIDPrefix+stem), nil) {
				return
			}
		}
	}
}

// blobIDFromKey maps a content object key back to its blob id. It returns
// false for anything that is not a finalized content object.
func blobIDFromKey(key string) (BlobID, bool) {
	rel, ok := strings.CutPrefix(key, ContentPrefix)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(rel, DirectPathPrefix) {
		return "", false
	}
	rel, ok = strings.CutSuffix(rel, BytesSuffix)
	if !ok {
		return "", false
	}
	if strings.Contains(rel, TempBlobMarker) {
		return "", false
	}
	return BlobID(rel), true
}

// directPathStem maps a direct-path object key to its shared key stem.
func directPathStem(key string) (string, bool) {
	rel, ok := strings.CutPrefix(key, ContentPrefix+DirectPathPrefix)
	if !ok {
		return "", false
	}
	if strings.Contains(rel, TempBlobMarker) {
		return "", false
	}
	if stem, ok := strings.CutSuffix(rel, BytesSuffix); ok {
		return stem, true
	}
	if stem, ok := strings.CutSuffix(rel, PropertiesSuffix); ok {
		return stem, true
	}
	return "", false
}
