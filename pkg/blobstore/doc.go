// Package blobstore provides a content-addressable blob storage engine over
// a remote object-storage bucket, with pluggable attribute persistence.
//
// The engine stores opaque payloads as content objects under the content/
// namespace and keeps per-blob attributes (creation time, size, checksum,
// original headers, soft-delete state) either as properties-style companion
// objects next to the content, or as records in an external document store.
// The mode is detected once at startup from a bootstrap marker object in the
// bucket and never changes for the life of the bucket.
//
// Object storage adapters (e.g., S3, MinIO, memory) and document stores
// (e.g., DynamoDB, Postgres, memory) are provided under subpackages.
package blobstore
