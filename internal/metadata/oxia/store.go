// Package oxia implements the MetadataStore interface using Oxia.
package oxia

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/rivulet-io/rivulet/internal/metadata"
)

// Config configures the Oxia metadata store.
type Config struct {
	// ServiceAddress is the Oxia service endpoint (e.g., "localhost:6648").
	ServiceAddress string

	// Namespace is the Oxia namespace to use (e.g., "rivulet/cluster-1").
	// All keys will be scoped to this namespace.
	Namespace string

	// RequestTimeout is the timeout for individual requests.
	// Default: 30 seconds.
	RequestTimeout time.Duration
}

// Store implements MetadataStore using Oxia.
type Store struct {
	client oxiaclient.SyncClient
	config Config

	mu     sync.RWMutex
	closed bool
}

// New creates a new Oxia metadata store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ServiceAddress == "" {
		return nil, errors.New("oxia: service address is required")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("oxia: namespace is required")
	}

	opts := []oxiaclient.ClientOption{
		oxiaclient.WithNamespace(cfg.Namespace),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, oxiaclient.WithRequestTimeout(cfg.RequestTimeout))
	}

	client, err := oxiaclient.NewSyncClient(cfg.ServiceAddress, opts...)
	if err != nil {
		return nil, fmt.Errorf("oxia: failed to create client: %w", err)
	}

	return &Store{
		client: client,
		config: cfg,
	}, nil
}

// oxiaToMetadataVersion converts Oxia's 0-based version to our 1-based version.
// Oxia versions start at 0, but our interface uses 0 to mean "key doesn't exist".
func oxiaToMetadataVersion(oxiaVersion int64) metadata.Version {
	return metadata.Version(oxiaVersion + 1)
}

// metadataToOxiaVersion converts our 1-based version to Oxia's 0-based version.
func metadataToOxiaVersion(metaVersion metadata.Version) int64 {
	return int64(metaVersion - 1)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return metadata.ErrStoreClosed
	}
	return nil
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) (metadata.GetResult, error) {
	if err := s.checkOpen(); err != nil {
		return metadata.GetResult{}, err
	}

	_, value, version, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return metadata.GetResult{Exists: false}, nil
		}
		return metadata.GetResult{}, fmt.Errorf("oxia: get failed: %w", err)
	}

	return metadata.GetResult{
		Value:   value,
		Version: oxiaToMetadataVersion(version.VersionId),
		Exists:  true,
	}, nil
}

// Put stores a value with optional version checking for CAS operations.
func (s *Store) Put(ctx context.Context, key string, value []byte, opts ...metadata.PutOption) (metadata.Version, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	expectedVersion := metadata.ExtractExpectedVersion(opts)

	var oxiaOpts []oxiaclient.PutOption
	if expectedVersion != nil {
		if *expectedVersion == 0 {
			// Version 0 in our interface means the key must not exist.
			oxiaOpts = append(oxiaOpts, oxiaclient.ExpectedRecordNotExists())
		} else {
			oxiaOpts = append(oxiaOpts, oxiaclient.ExpectedVersionId(metadataToOxiaVersion(*expectedVersion)))
		}
	}

	_, version, err := s.client.Put(ctx, key, value, oxiaOpts...)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrUnexpectedVersionId) {
			return 0, metadata.ErrVersionMismatch
		}
		return 0, fmt.Errorf("oxia: put failed: %w", err)
	}

	return oxiaToMetadataVersion(version.VersionId), nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string, opts ...metadata.DeleteOption) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	expectedVersion := metadata.ExtractDeleteExpectedVersion(opts)

	var oxiaOpts []oxiaclient.DeleteOption
	if expectedVersion != nil {
		oxiaOpts = append(oxiaOpts, oxiaclient.ExpectedVersionId(metadataToOxiaVersion(*expectedVersion)))
	}

	err := s.client.Delete(ctx, key, oxiaOpts...)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			// Delete is idempotent - key not found is not an error.
			return nil
		}
		if errors.Is(err, oxiaclient.ErrUnexpectedVersionId) {
			return metadata.ErrVersionMismatch
		}
		return fmt.Errorf("oxia: delete failed: %w", err)
	}

	return nil
}

// List returns keys in the range [startKey, endKey) in lexicographic order.
func (s *Store) List(ctx context.Context, startKey, endKey string, limit int) ([]metadata.KV, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	// If endKey is empty, use startKey as a prefix and list all keys with
	// that prefix. Oxia treats '/' specially when sorting keys, so for a
	// prefix ending with '/' use the double-slash convention to cover all
	// direct children; otherwise compute the prefix upper bound.
	if endKey == "" {
		if len(startKey) > 0 && startKey[len(startKey)-1] == '/' {
			endKey = startKey + "/"
		} else {
			endKey = prefixEnd(startKey)
		}
	}

	results := s.client.RangeScan(ctx, startKey, endKey)

	var kvs []metadata.KV
	for result := range results {
		if result.Err != nil {
			return nil, fmt.Errorf("oxia: list failed: %w", result.Err)
		}

		kvs = append(kvs, metadata.KV{
			Key:     result.Key,
			Value:   result.Value,
			Version: oxiaToMetadataVersion(result.Version.VersionId),
		})

		if limit > 0 && len(kvs) >= limit {
			go drainRangeScan(results)
			return kvs, nil
		}
	}

	return kvs, nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// prefixEnd returns the key that is lexicographically greater than all keys
// with the given prefix.
func prefixEnd(prefix string) string {
	if prefix == "" {
		return ""
	}

	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return string(b[:i+1])
		}
	}

	// All bytes are 0xFF, no end key possible.
	return ""
}

func drainRangeScan(results <-chan oxiaclient.GetResult) {
	for range results {
	}
}

var _ metadata.MetadataStore = (*Store)(nil)
