package blobstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blobstore/pkg/blobstore"
)

func TestBlobAttributes_PropertiesRoundTrip(t *testing.T) {
	t.Run("FullRecord", func(t *testing.T) {
		attrs := &blobstore.BlobAttributes{
			CreationTime: time.Date(2026, time.January, 15, 8, 0, 0, 0, time.UTC),
			Size:         1024,
			SHA1:         "2fd4e1c67a2d28fced849ee1bb76e7391b93eb12",
			Headers: map[string]string{
				blobstore.HeaderBlobName:  "notes.md",
				blobstore.HeaderCreatedBy: "alice",
			},
			Deleted:       true,
			DeletedReason: "superseded",
		}

		decoded, err := blobstore.UnmarshalProperties(attrs.MarshalProperties())
		require.NoError(t, err)
		assert.Equal(t, attrs, decoded)
	})

	t.Run("VisibleRecordOmitsDeleteFields", func(t *testing.T) {
		attrs := &blobstore.BlobAttributes{
			CreationTime: time.UnixMilli(1700000000000).UTC(),
			Size:         3,
			SHA1:         "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		}

		encoded := string(attrs.MarshalProperties())
		assert.NotContains(t, encoded, "deleted")

		decoded, err := blobstore.UnmarshalProperties([]byte(encoded))
		require.NoError(t, err)
		assert.False(t, decoded.Deleted)
		assert.Empty(t, decoded.DeletedReason)
	})

	t.Run("HeadersArePrefixed", func(t *testing.T) {
		attrs := &blobstore.BlobAttributes{
			CreationTime: time.UnixMilli(1700000000000).UTC(),
			Headers:      map[string]string{"blob-name": "a=b.txt"},
		}

		encoded := string(attrs.MarshalProperties())
		assert.Contains(t, encoded, "@blob-name=a=b.txt\n")

		// Values containing '=' survive the round trip
		decoded, err := blobstore.UnmarshalProperties([]byte(encoded))
		require.NoError(t, err)
		assert.Equal(t, "a=b.txt", decoded.Headers["blob-name"])
	})

	t.Run("DeterministicEncoding", func(t *testing.T) {
		attrs := &blobstore.BlobAttributes{
			CreationTime: time.UnixMilli(1700000000000).UTC(),
			Headers:      map[string]string{"z": "1", "a": "2", "m": "3"},
		}
		assert.Equal(t, attrs.MarshalProperties(), attrs.MarshalProperties())
	})
}

func TestUnmarshalProperties_Corrupt(t *testing.T) {
	t.Run("MissingCreationTime", func(t *testing.T) {
		_, err := blobstore.UnmarshalProperties([]byte("size=10\n"))
		assert.Error(t, err)
	})

	t.Run("MalformedLine", func(t *testing.T) {
		_, err := blobstore.UnmarshalProperties([]byte("creationTime=1\nsize=10\nnot a property\n"))
		assert.Error(t, err)
	})

	t.Run("NonNumericSize", func(t *testing.T) {
		_, err := blobstore.UnmarshalProperties([]byte("creationTime=1\nsize=big\n"))
		assert.Error(t, err)
	})
}

func TestBlobAttributes_Clone(t *testing.T) {
	attrs := &blobstore.BlobAttributes{
		CreationTime: time.UnixMilli(1700000000000).UTC(),
		Size:         9,
		Headers:      map[string]string{"blob-name": "x"},
	}

	clone := attrs.Clone()
	clone.Headers["blob-name"] = "mutated"
	clone.Deleted = true

	assert.Equal(t, "x", attrs.Headers["blob-name"])
	assert.False(t, attrs.Deleted)
}
