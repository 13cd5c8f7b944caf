package blobstore

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrBlobNotFound indicates a blob is absent: its content object or a
	// valid attribute record could not be retrieved, or it is soft-deleted.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrObjectNotFound is returned by ObjectStore adapters when a key does
	// not exist in the bucket.
	ErrObjectNotFound = errors.New("object not found")

	// ErrDocumentNotFound is returned by DocumentStore adapters when no
	// record matches a blob id.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrMissingHeader indicates a create call without a required header.
	ErrMissingHeader = errors.New("required header missing")

	// ErrNotStarted indicates an operation before a successful Start.
	ErrNotStarted = errors.New("blob store not started")
)

// StorageError represents a backend or transport failure during a storage
// operation. It always wraps the originating client error.
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigError represents a fatal configuration problem detected at
// initialization or startup. The engine never runs partially initialized.
type ConfigError struct {
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("blob store configuration: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("blob store configuration: %s", e.Detail)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// isNotFound reports whether err is an adapter-level not-found signal, as
// opposed to a genuine backend failure.
func isNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrDocumentNotFound)
}
