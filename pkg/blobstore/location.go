package blobstore

import (
	"fmt"
	"hash/fnv"
	"path"
	"strings"

	"github.com/google/uuid"
)

// VolumeChapterResolver is the default LocationResolver. Content-addressed
// blobs shard into vol-NN/chap-NN directories; the shard counts are
// relatively prime so the two levels decorrelate.
type VolumeChapterResolver struct{}

const (
	volumeCount  = 43
	chapterCount = 47
)

// Locate returns the key stem for id relative to the content namespace.
func (VolumeChapterResolver) Locate(id BlobID) string {
	if id.IsDirectPath() {
		return DirectPathPrefix + strings.TrimPrefix(string(id), DirectPathIDPrefix)
	}
	h := fnv.New32a()
	h.Write([]byte(id))
	sum := h.Sum32()
	vol := sum%volumeCount + 1
	chap := (sum/volumeCount)%chapterCount + 1
	return fmt.Sprintf("vol-%02d/chap-%02d/%s", vol, chap, id)
}

// NewBlobID derives an identifier from create-time headers. A direct-path
// header yields a path$-prefixed id preserving the caller's relative path;
// otherwise a random identifier is generated.
func (VolumeChapterResolver) NewBlobID(headers map[string]string) (BlobID, error) {
	rel, ok := headers[HeaderDirectPath]
	if !ok {
		return BlobID(uuid.NewString()), nil
	}

	cleaned := path.Clean(strings.TrimPrefix(rel, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid direct path %q", rel)
	}
	return BlobID(DirectPathIDPrefix + cleaned), nil
}
