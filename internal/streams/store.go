package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rivulet-io/rivulet/internal/metadata"
	"github.com/rivulet-io/rivulet/internal/metadata/keys"
)

// stateRecord is the persisted form of a stream's state.
type stateRecord struct {
	State       State `json:"state"`
	UpdatedAtMs int64 `json:"updatedAtMs"`
}

// TxnRecord is the persisted form of a transaction.
type TxnRecord struct {
	Status      TxnStatus `json:"status"`
	UpdatedAtMs int64     `json:"updatedAtMs"`
}

// Store provides typed stream metadata operations over the metadata
// store. Every method performs a fresh read; nothing is cached between
// calls, so overlapping workflow runs always observe current state.
type Store struct {
	meta metadata.MetadataStore
}

// NewStore creates a stream metadata store.
func NewStore(meta metadata.MetadataStore) *Store {
	return &Store{meta: meta}
}

// Create writes a new stream in ACTIVE state with segments 0..numSegments-1.
// Fails with ErrStreamExists if the stream already has a state record.
func (s *Store) Create(ctx context.Context, id StreamID, numSegments int) error {
	now := time.Now().UnixMilli()

	data, err := json.Marshal(stateRecord{State: StateActive, UpdatedAtMs: now})
	if err != nil {
		return fmt.Errorf("streams: marshal state: %w", err)
	}

	_, err = s.meta.Put(ctx, keys.StreamStateKey(id.Scope, id.Name), data, metadata.WithExpectedVersion(0))
	if err != nil {
		if errors.Is(err, metadata.ErrVersionMismatch) {
			return ErrStreamExists
		}
		return fmt.Errorf("streams: create stream: %w", err)
	}

	for n := 0; n < numSegments; n++ {
		if err := s.AddSegment(ctx, id, int64(n)); err != nil {
			return err
		}
	}
	return nil
}

// GetState reads the stream's current state.
func (s *Store) GetState(ctx context.Context, id StreamID) (State, error) {
	rec, _, err := s.getStateRecord(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.State, nil
}

func (s *Store) getStateRecord(ctx context.Context, id StreamID) (stateRecord, metadata.Version, error) {
	result, err := s.meta.Get(ctx, keys.StreamStateKey(id.Scope, id.Name))
	if err != nil {
		return stateRecord{}, 0, fmt.Errorf("streams: get state: %w", err)
	}
	if !result.Exists {
		return stateRecord{}, 0, fmt.Errorf("%w: %s", ErrStreamNotFound, id)
	}

	var rec stateRecord
	if err := json.Unmarshal(result.Value, &rec); err != nil {
		return stateRecord{}, 0, fmt.Errorf("streams: unmarshal state: %w", err)
	}
	return rec, result.Version, nil
}

// UpdateState transitions the stream to target, validating the lifecycle
// transition table and writing with compare-and-set. Returns
// ErrIllegalState for an invalid transition and ErrWriteConflict when a
// concurrent writer updated the record first.
func (s *Store) UpdateState(ctx context.Context, id StreamID, target State) error {
	rec, version, err := s.getStateRecord(ctx, id)
	if err != nil {
		return err
	}

	if !rec.State.CanTransitionTo(target) {
		return fmt.Errorf("%w: cannot transition %s from %s to %s", ErrIllegalState, id, rec.State, target)
	}

	return s.writeState(ctx, id, target, version)
}

func (s *Store) writeState(ctx context.Context, id StreamID, target State, version metadata.Version) error {
	data, err := json.Marshal(stateRecord{State: target, UpdatedAtMs: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("streams: marshal state: %w", err)
	}

	_, err = s.meta.Put(ctx, keys.StreamStateKey(id.Scope, id.Name), data, metadata.WithExpectedVersion(version))
	if err != nil {
		if errors.Is(err, metadata.ErrVersionMismatch) {
			return fmt.Errorf("%w: state of %s", ErrWriteConflict, id)
		}
		return fmt.Errorf("streams: write state: %w", err)
	}
	return nil
}

// SetSealed finalizes the seal: the state record flips to SEALED and the
// active segment records are removed. Calling it on an already sealed
// stream is a no-op success.
//
// The state write happens before the segment records are cleared. If the
// caller crashes in between, a rerun of the seal workflow re-derives the
// leftover segment set, repeats the (idempotent) storage-tier seal, and
// finishes the cleanup here.
func (s *Store) SetSealed(ctx context.Context, id StreamID) error {
	rec, version, err := s.getStateRecord(ctx, id)
	if err != nil {
		return err
	}

	switch rec.State {
	case StateSealed:
		// Already sealed, fall through to segment cleanup only.
	case StateSealing:
		if err := s.writeState(ctx, id, StateSealed, version); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: cannot seal %s in state %s", ErrIllegalState, id, rec.State)
	}

	segments, err := s.GetActiveSegments(ctx, id)
	if err != nil {
		return err
	}
	for _, seg := range segments {
		key, err := keys.SegmentKey(id.Scope, id.Name, seg.Number)
		if err != nil {
			return err
		}
		if err := s.meta.Delete(ctx, key); err != nil {
			return fmt.Errorf("streams: remove segment record: %w", err)
		}
	}
	return nil
}

// AddSegment records a new active segment. Fails with ErrSegmentExists
// if the segment is already in the active set.
func (s *Store) AddSegment(ctx context.Context, id StreamID, number int64) error {
	key, err := keys.SegmentKey(id.Scope, id.Name, number)
	if err != nil {
		return err
	}

	data, err := json.Marshal(Segment{Number: number, CreatedAtMs: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("streams: marshal segment: %w", err)
	}

	_, err = s.meta.Put(ctx, key, data, metadata.WithExpectedVersion(0))
	if err != nil {
		if errors.Is(err, metadata.ErrVersionMismatch) {
			return fmt.Errorf("%w: segment %d of %s", ErrSegmentExists, number, id)
		}
		return fmt.Errorf("streams: add segment: %w", err)
	}
	return nil
}

// GetActiveSegments returns the stream's active segments in ascending
// numeric order. An empty result means the stream is fully sealed.
func (s *Store) GetActiveSegments(ctx context.Context, id StreamID) ([]Segment, error) {
	kvs, err := s.meta.List(ctx, keys.SegmentsPrefix(id.Scope, id.Name), "", 0)
	if err != nil {
		return nil, fmt.Errorf("streams: list segments: %w", err)
	}

	segments := make([]Segment, 0, len(kvs))
	for _, kv := range kvs {
		var seg Segment
		if err := json.Unmarshal(kv.Value, &seg); err != nil {
			return nil, fmt.Errorf("streams: unmarshal segment at %s: %w", kv.Key, err)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// GetActiveTxns returns the stream's unresolved transaction records as a
// mapping of transaction id to status. Terminal records are removed by
// the coordinator's completion machinery, so they normally do not appear.
func (s *Store) GetActiveTxns(ctx context.Context, id StreamID) (map[string]TxnStatus, error) {
	kvs, err := s.meta.List(ctx, keys.TxnsPrefix(id.Scope, id.Name), "", 0)
	if err != nil {
		return nil, fmt.Errorf("streams: list transactions: %w", err)
	}

	txns := make(map[string]TxnStatus, len(kvs))
	for _, kv := range kvs {
		txnID, err := keys.ParseTxnKey(kv.Key)
		if err != nil {
			return nil, err
		}
		var rec TxnRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			return nil, fmt.Errorf("streams: unmarshal transaction at %s: %w", kv.Key, err)
		}
		txns[txnID] = rec.Status
	}
	return txns, nil
}

// CreateTxn records a new transaction. Used by the transaction lifecycle
// machinery and by tests.
func (s *Store) CreateTxn(ctx context.Context, id StreamID, txnID string, status TxnStatus) error {
	data, err := json.Marshal(TxnRecord{Status: status, UpdatedAtMs: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("streams: marshal transaction: %w", err)
	}

	_, err = s.meta.Put(ctx, keys.TxnKey(id.Scope, id.Name, txnID), data, metadata.WithExpectedVersion(0))
	if err != nil {
		if errors.Is(err, metadata.ErrVersionMismatch) {
			return fmt.Errorf("%w: transaction %s on %s", ErrIllegalState, txnID, id)
		}
		return fmt.Errorf("streams: create transaction: %w", err)
	}
	return nil
}

// RemoveTxn deletes a transaction record once its lifecycle completes.
// Removing an already-removed record is a no-op.
func (s *Store) RemoveTxn(ctx context.Context, id StreamID, txnID string) error {
	if err := s.meta.Delete(ctx, keys.TxnKey(id.Scope, id.Name, txnID)); err != nil {
		return fmt.Errorf("streams: remove transaction record: %w", err)
	}
	return nil
}

// GetTxn reads one transaction record and its store version.
// Returns ErrTxnNotFound if the record no longer exists.
func (s *Store) GetTxn(ctx context.Context, id StreamID, txnID string) (TxnRecord, metadata.Version, error) {
	result, err := s.meta.Get(ctx, keys.TxnKey(id.Scope, id.Name, txnID))
	if err != nil {
		return TxnRecord{}, 0, fmt.Errorf("streams: get transaction: %w", err)
	}
	if !result.Exists {
		return TxnRecord{}, 0, fmt.Errorf("%w: %s on %s", ErrTxnNotFound, txnID, id)
	}

	var rec TxnRecord
	if err := json.Unmarshal(result.Value, &rec); err != nil {
		return TxnRecord{}, 0, fmt.Errorf("streams: unmarshal transaction: %w", err)
	}
	return rec, result.Version, nil
}

// CASTxnStatus writes a transaction's status with compare-and-set
// against the version read earlier. Returns ErrWriteConflict when a
// concurrent writer got there first.
func (s *Store) CASTxnStatus(ctx context.Context, id StreamID, txnID string, version metadata.Version, status TxnStatus) error {
	data, err := json.Marshal(TxnRecord{Status: status, UpdatedAtMs: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("streams: marshal transaction: %w", err)
	}

	_, err = s.meta.Put(ctx, keys.TxnKey(id.Scope, id.Name, txnID), data, metadata.WithExpectedVersion(version))
	if err != nil {
		if errors.Is(err, metadata.ErrVersionMismatch) {
			return fmt.Errorf("%w: transaction %s on %s", ErrWriteConflict, txnID, id)
		}
		return fmt.Errorf("streams: write transaction: %w", err)
	}
	return nil
}
