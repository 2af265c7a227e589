// Package metadata defines the MetadataStore interface and related types
// for controller metadata storage. The default implementation uses Oxia.
//
// The controller keeps stream state, active segment records, and
// transaction records as versioned key-value pairs. Optimistic
// concurrency control via compare-and-set is the only coordination
// primitive the seal workflow relies on.
package metadata

import (
	"context"
	"errors"
)

// Common errors returned by MetadataStore operations.
var (
	// ErrKeyNotFound is returned when a key does not exist.
	ErrKeyNotFound = errors.New("metadata: key not found")

	// ErrVersionMismatch is returned when the expected version does not match
	// the current version during a CAS (compare-and-set) operation.
	ErrVersionMismatch = errors.New("metadata: version mismatch")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("metadata: store closed")
)

// Version represents a key's version in the metadata store.
// Versions are monotonically increasing and drive compare-and-set writes.
//
// A zero version indicates the key has never been written.
// Versions are assigned by the metadata store on each write.
type Version int64

// KV represents a key-value pair with its version.
type KV struct {
	Key     string
	Value   []byte
	Version Version
}

// GetResult is the result of a Get operation.
type GetResult struct {
	Value   []byte
	Version Version
	Exists  bool
}

// PutOption configures a Put operation.
type PutOption func(*putOptions)

type putOptions struct {
	expectedVersion *Version
}

// WithExpectedVersion specifies the expected version for a CAS operation.
// If the current version does not match, the Put fails with
// ErrVersionMismatch. An expected version of 0 requires that the key
// does not exist yet.
func WithExpectedVersion(v Version) PutOption {
	return func(o *putOptions) {
		o.expectedVersion = &v
	}
}

// ExtractExpectedVersion extracts the expected version from Put options.
// Returns nil if no expected version was specified.
func ExtractExpectedVersion(opts []PutOption) *Version {
	var pOpts putOptions
	for _, opt := range opts {
		opt(&pOpts)
	}
	return pOpts.expectedVersion
}

// DeleteOption configures a Delete operation.
type DeleteOption func(*deleteOptions)

type deleteOptions struct {
	expectedVersion *Version
}

// WithDeleteExpectedVersion specifies the expected version for a conditional
// delete. If the current version does not match, the Delete fails with
// ErrVersionMismatch.
func WithDeleteExpectedVersion(v Version) DeleteOption {
	return func(o *deleteOptions) {
		o.expectedVersion = &v
	}
}

// ExtractDeleteExpectedVersion extracts the expected version from Delete
// options. Returns nil if no expected version was specified.
func ExtractDeleteExpectedVersion(opts []DeleteOption) *Version {
	var dOpts deleteOptions
	for _, opt := range opts {
		opt(&dOpts)
	}
	return dOpts.expectedVersion
}

// MetadataStore is the interface for controller metadata operations.
//
// All operations accept a context.Context for cancellation and timeouts.
// Operations may return context.Canceled or context.DeadlineExceeded
// if the context is cancelled or times out.
type MetadataStore interface {
	// Get retrieves a value by key.
	// Returns GetResult with Exists=false if the key does not exist (not an error).
	Get(ctx context.Context, key string) (GetResult, error)

	// Put stores a value, optionally with version checking for CAS operations.
	// Returns the new version assigned to the key.
	//
	// Use WithExpectedVersion to require a specific version for the update.
	// If the version does not match, returns ErrVersionMismatch.
	Put(ctx context.Context, key string, value []byte, opts ...PutOption) (Version, error)

	// Delete removes a key, optionally with version checking.
	// Returns nil if the key does not exist (idempotent).
	Delete(ctx context.Context, key string, opts ...DeleteOption) error

	// List returns keys in the range [startKey, endKey) in lexicographic order.
	// If endKey is empty, returns all keys with the prefix startKey.
	// If limit is 0 or negative, returns all matching keys.
	//
	// Keys sort lexicographically, so zero-padded numeric key components
	// yield numerically ordered results (e.g. active segment listings).
	List(ctx context.Context, startKey, endKey string, limit int) ([]KV, error)

	// Close releases resources held by the store.
	// After Close is called, all operations return ErrStoreClosed.
	Close() error
}
