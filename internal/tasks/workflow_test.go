package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/rivulet-io/rivulet/internal/events"
	"github.com/rivulet-io/rivulet/internal/metadata"
	"github.com/rivulet-io/rivulet/internal/streams"
	"github.com/rivulet-io/rivulet/internal/txns"
)

// TestSealWorkflowOverMetadataStore drives the workflow over the real
// stream store and transaction coordinator, backed by the in-memory
// metadata store, from open transactions to a sealed stream.
func TestSealWorkflowOverMetadataStore(t *testing.T) {
	ctx := context.Background()
	mock := metadata.NewMockStore()
	store := streams.NewStore(mock)
	coord := txns.NewCoordinator(store)
	notifier := &fakeNotifier{}
	id := streams.StreamID{Scope: "g1", Name: "s1"}

	if err := store.Create(ctx, id, 3); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.CreateTxn(ctx, id, "t1", streams.TxnOpen); err != nil {
		t.Fatalf("CreateTxn: %v", err)
	}
	if err := store.CreateTxn(ctx, id, "t2", streams.TxnAborting); err != nil {
		t.Fatalf("CreateTxn: %v", err)
	}
	if err := store.UpdateState(ctx, id, streams.StateSealing); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	task := NewSealStreamTask(store, coord, notifier, SealStreamConfig{})

	// First run: t1 is still open, so the run defers after nudging it.
	err := task.Execute(ctx, id)
	if !errors.Is(err, ErrOperationNotAllowed) {
		t.Fatalf("first Execute error = %v, want ErrOperationNotAllowed", err)
	}
	rec, _, err := store.GetTxn(ctx, id, "t1")
	if err != nil {
		t.Fatalf("GetTxn: %v", err)
	}
	if rec.Status != streams.TxnAborting {
		t.Errorf("t1 status = %s, want ABORTING after the sweep", rec.Status)
	}
	if len(notifier.calls) != 0 {
		t.Error("no segments may be sealed while a transaction is open")
	}

	// Second run: nothing is OPEN anymore, but the aborting records are
	// still resolving, so the run keeps deferring without issuing
	// further abort requests.
	err = task.Execute(ctx, id)
	if !errors.Is(err, ErrOperationNotAllowed) {
		t.Fatalf("second Execute error = %v, want ErrOperationNotAllowed", err)
	}
	if len(notifier.calls) != 0 {
		t.Error("no segments may be sealed while transactions resolve")
	}

	// The transaction lifecycle finishes and removes the records; the
	// next run seals the segments and finalizes the state.
	if err := store.RemoveTxn(ctx, id, "t1"); err != nil {
		t.Fatalf("RemoveTxn: %v", err)
	}
	if err := store.RemoveTxn(ctx, id, "t2"); err != nil {
		t.Fatalf("RemoveTxn: %v", err)
	}
	if err := task.Execute(ctx, id); err != nil {
		t.Fatalf("third Execute: %v", err)
	}
	if len(notifier.calls) != 1 || len(notifier.calls[0]) != 3 {
		t.Fatalf("notifier calls = %v, want one call with 3 segments", notifier.calls)
	}
	state, err := store.GetState(ctx, id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != streams.StateSealed {
		t.Errorf("state = %s, want SEALED", state)
	}
	segs, err := store.GetActiveSegments(ctx, id)
	if err != nil {
		t.Fatalf("GetActiveSegments: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("active segments = %v, want none after sealing", segs)
	}

	// Fourth run: pure no-op short circuit, no extra writes.
	writesBefore := mock.PutCount()
	if err := task.Execute(ctx, id); err != nil {
		t.Fatalf("fourth Execute: %v", err)
	}
	if len(notifier.calls) != 1 {
		t.Errorf("notifier calls = %d, want still 1", len(notifier.calls))
	}
	if mock.PutCount() != writesBefore {
		t.Errorf("store writes = %d, want %d (no new writes)", mock.PutCount(), writesBefore)
	}
}

// TestSealWorkflowThroughDispatcher checks the write-back loop: an
// event delivered before the stream reaches SEALING is re-enqueued
// with a bumped attempt counter, then succeeds once the state catches up.
func TestSealWorkflowThroughDispatcher(t *testing.T) {
	ctx := context.Background()
	store := streams.NewStore(metadata.NewMockStore())
	coord := txns.NewCoordinator(store)
	notifier := &fakeNotifier{}
	id := streams.StreamID{Scope: "g1", Name: "s1"}

	if err := store.Create(ctx, id, 2); err != nil {
		t.Fatalf("Create: %v", err)
	}

	task := NewSealStreamTask(store, coord, notifier, SealStreamConfig{})
	queue := events.NewMemoryQueue()
	dispatcher := events.NewDispatcher(queue, task, events.DispatcherConfig{
		IsExpectedRetry: IsExpectedRetry,
		BackoffBase:     1, // keep the test fast
	})

	event := events.SealStreamEvent{Scope: "g1", Stream: "s1", RequestID: "r1"}

	// Delivered too early: the stream is still ACTIVE.
	if err := dispatcher.Dispatch(ctx, event); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	requeued, ok := queue.Take()
	if !ok {
		t.Fatal("expected the event to be written back")
	}
	if requeued.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", requeued.Attempt)
	}

	// The state transition lands; the redelivery succeeds.
	if err := store.UpdateState(ctx, id, streams.StateSealing); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if err := dispatcher.Dispatch(ctx, requeued); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if queue.Len() != 0 {
		t.Errorf("queue has %d events, want none", queue.Len())
	}

	state, err := store.GetState(ctx, id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != streams.StateSealed {
		t.Errorf("state = %s, want SEALED", state)
	}
}
