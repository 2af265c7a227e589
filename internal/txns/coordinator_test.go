package txns

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rivulet-io/rivulet/internal/metadata"
	"github.com/rivulet-io/rivulet/internal/streams"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *streams.Store) {
	t.Helper()
	store := streams.NewStore(metadata.NewMockStore())
	return NewCoordinator(store), store
}

func TestAbortOpenTxn(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestCoordinator(t)
	id := streams.StreamID{Scope: "g1", Name: "s1"}

	if err := store.CreateTxn(ctx, id, "t1", streams.TxnOpen); err != nil {
		t.Fatalf("CreateTxn: %v", err)
	}

	if err := coord.Abort(ctx, id, "t1"); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	rec, _, err := store.GetTxn(ctx, id, "t1")
	if err != nil {
		t.Fatalf("GetTxn: %v", err)
	}
	if rec.Status != streams.TxnAborting {
		t.Errorf("status = %s, want ABORTING", rec.Status)
	}
}

func TestAbortAlreadyCompleting(t *testing.T) {
	tests := []streams.TxnStatus{
		streams.TxnCommitting,
		streams.TxnAborting,
		streams.TxnCommitted,
		streams.TxnAborted,
	}

	for _, status := range tests {
		t.Run(string(status), func(t *testing.T) {
			ctx := context.Background()
			coord, store := newTestCoordinator(t)
			id := streams.StreamID{Scope: "g1", Name: "s1"}

			if err := store.CreateTxn(ctx, id, "t1", status); err != nil {
				t.Fatalf("CreateTxn: %v", err)
			}

			err := coord.Abort(ctx, id, "t1")
			if !errors.Is(err, streams.ErrIllegalState) {
				t.Errorf("Abort error = %v, want ErrIllegalState", err)
			}
			if !IsKnownAbortRace(err) {
				t.Error("expected IsKnownAbortRace to classify the error")
			}

			// Status untouched.
			rec, _, err := store.GetTxn(ctx, id, "t1")
			if err != nil {
				t.Fatalf("GetTxn: %v", err)
			}
			if rec.Status != status {
				t.Errorf("status = %s, want %s", rec.Status, status)
			}
		})
	}
}

func TestAbortMissingTxn(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t)
	id := streams.StreamID{Scope: "g1", Name: "s1"}

	err := coord.Abort(ctx, id, "ghost")
	if !errors.Is(err, streams.ErrTxnNotFound) {
		t.Errorf("Abort error = %v, want ErrTxnNotFound", err)
	}
	if !IsKnownAbortRace(err) {
		t.Error("expected IsKnownAbortRace to classify the error")
	}
}

func TestAbortWriteConflict(t *testing.T) {
	ctx := context.Background()
	mock := metadata.NewMockStore()
	store := streams.NewStore(mock)
	coord := NewCoordinator(store)
	id := streams.StreamID{Scope: "g1", Name: "s1"}

	if err := store.CreateTxn(ctx, id, "t1", streams.TxnOpen); err != nil {
		t.Fatalf("CreateTxn: %v", err)
	}

	// Interleave a concurrent update between the coordinator's read and
	// its CAS write by racing two aborts on the same initial version.
	rec, version, err := store.GetTxn(ctx, id, "t1")
	if err != nil {
		t.Fatalf("GetTxn: %v", err)
	}
	if rec.Status != streams.TxnOpen {
		t.Fatalf("status = %s", rec.Status)
	}
	if err := store.CASTxnStatus(ctx, id, "t1", version, streams.TxnOpen); err != nil {
		t.Fatalf("CASTxnStatus: %v", err)
	}

	// The stale version now loses the race.
	err = store.CASTxnStatus(ctx, id, "t1", version, streams.TxnAborting)
	if !errors.Is(err, streams.ErrWriteConflict) {
		t.Fatalf("CASTxnStatus error = %v, want ErrWriteConflict", err)
	}
	if !IsKnownAbortRace(err) {
		t.Error("expected IsKnownAbortRace to classify the error")
	}

	// The coordinator itself still succeeds against the fresh version.
	if err := coord.Abort(ctx, id, "t1"); err != nil {
		t.Errorf("Abort: %v", err)
	}
}

func TestIsKnownAbortRaceUnclassified(t *testing.T) {
	if IsKnownAbortRace(fmt.Errorf("metadata: connection reset")) {
		t.Error("unclassified error must not be treated as a known race")
	}
	if IsKnownAbortRace(nil) {
		t.Error("nil is not a known race")
	}
}
