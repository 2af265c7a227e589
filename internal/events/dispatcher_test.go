package events

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// recordingSleep captures requested backoff delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestDispatcher(queue Queue, handler Handler, cfg DispatcherConfig) (*Dispatcher, *recordingSleep) {
	d := NewDispatcher(queue, handler, cfg)
	rs := &recordingSleep{}
	d.sleep = rs.sleep
	return d, rs
}

func TestDispatchSuccess(t *testing.T) {
	queue := NewMemoryQueue()
	var handled []SealStreamEvent
	handler := HandlerFunc(func(ctx context.Context, event SealStreamEvent) error {
		handled = append(handled, event)
		return nil
	})
	d, rs := newTestDispatcher(queue, handler, DispatcherConfig{})

	event := SealStreamEvent{Scope: "g1", Stream: "s1", RequestID: "r1"}
	if err := d.Dispatch(context.Background(), event); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(handled) != 1 || handled[0] != event {
		t.Errorf("handled = %+v", handled)
	}
	if queue.Len() != 0 {
		t.Errorf("queue has %d events, want none written back", queue.Len())
	}
	if len(rs.delays) != 0 {
		t.Errorf("unexpected backoff on success: %v", rs.delays)
	}
}

func TestDispatchFailureWritesBack(t *testing.T) {
	queue := NewMemoryQueue()
	handler := HandlerFunc(func(ctx context.Context, event SealStreamEvent) error {
		return errors.New("storage tier unreachable")
	})
	d, rs := newTestDispatcher(queue, handler, DispatcherConfig{
		BackoffBase: 50 * time.Millisecond,
	})

	event := SealStreamEvent{Scope: "g1", Stream: "s1", RequestID: "r1", Attempt: 2}
	if err := d.Dispatch(context.Background(), event); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	requeued := queue.Events()
	if len(requeued) != 1 {
		t.Fatalf("queue has %d events, want 1", len(requeued))
	}
	if requeued[0].Attempt != 3 {
		t.Errorf("attempt = %d, want 3", requeued[0].Attempt)
	}
	if requeued[0].Scope != event.Scope || requeued[0].Stream != event.Stream || requeued[0].RequestID != event.RequestID {
		t.Errorf("requeued event lost identity: %+v", requeued[0])
	}

	// Attempt 2 waits base * 2^2.
	if len(rs.delays) != 1 || rs.delays[0] != 200*time.Millisecond {
		t.Errorf("delays = %v, want [200ms]", rs.delays)
	}
}

func TestDispatchExpectedRetryClassifier(t *testing.T) {
	errDeferred := errors.New("open transactions remain")

	queue := NewMemoryQueue()
	handler := HandlerFunc(func(ctx context.Context, event SealStreamEvent) error {
		return fmt.Errorf("seal: %w", errDeferred)
	})
	d, _ := newTestDispatcher(queue, handler, DispatcherConfig{
		IsExpectedRetry: func(err error) bool { return errors.Is(err, errDeferred) },
	})

	// Expected retries still write back; only the log level differs.
	if err := d.Dispatch(context.Background(), SealStreamEvent{Scope: "g", Stream: "s"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if queue.Len() != 1 {
		t.Errorf("queue has %d events, want 1", queue.Len())
	}
}

func TestDispatchWriteBackFailure(t *testing.T) {
	queue := NewMemoryQueue()
	queue.Close()

	handler := HandlerFunc(func(ctx context.Context, event SealStreamEvent) error {
		return errors.New("boom")
	})
	d, _ := newTestDispatcher(queue, handler, DispatcherConfig{})

	// The delivery must not be treated as consumed when the write back
	// itself fails: the backing log has to redeliver it.
	err := d.Dispatch(context.Background(), SealStreamEvent{Scope: "g", Stream: "s"})
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Dispatch error = %v, want ErrQueueClosed", err)
	}
}

func TestDispatchRawPoisonDropped(t *testing.T) {
	queue := NewMemoryQueue()
	called := false
	handler := HandlerFunc(func(ctx context.Context, event SealStreamEvent) error {
		called = true
		return nil
	})
	d, _ := newTestDispatcher(queue, handler, DispatcherConfig{})

	// Malformed JSON and well-formed JSON without a stream identity are
	// equally unactionable; both drop without reaching the handler.
	for _, payload := range []string{"{broken", `{"requestId":"r1"}`} {
		if err := d.DispatchRaw(context.Background(), []byte(payload)); err != nil {
			t.Fatalf("DispatchRaw(%q): %v", payload, err)
		}
	}
	if called {
		t.Error("handler must not run for undecodable payloads")
	}
	if queue.Len() != 0 {
		t.Error("undecodable payloads must not be written back")
	}
}

func TestBackoffFor(t *testing.T) {
	d := NewDispatcher(NewMemoryQueue(), HandlerFunc(func(context.Context, SealStreamEvent) error { return nil }), DispatcherConfig{
		BackoffBase: 100 * time.Millisecond,
		BackoffMax:  1 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1 * time.Second},
		{50, 1 * time.Second},
		{-1, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := d.backoffFor(tt.attempt); got != tt.want {
			t.Errorf("backoffFor(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestMemoryQueueOrderAndKeys(t *testing.T) {
	queue := NewMemoryQueue()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		event := SealStreamEvent{Scope: "g1", Stream: "s1", Attempt: i}
		if err := queue.Write(ctx, event); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := queue.Write(ctx, SealStreamEvent{Scope: "g2", Stream: "other"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	keys := queue.Keys()
	if len(keys) != 2 || keys[0] != "g1/s1" || keys[1] != "g2/other" {
		t.Errorf("Keys() = %v", keys)
	}

	// FIFO per write order.
	for i := 0; i < 3; i++ {
		event, ok := queue.Take()
		if !ok {
			t.Fatalf("Take %d: queue empty", i)
		}
		if event.Attempt != i {
			t.Errorf("Take %d: attempt = %d", i, event.Attempt)
		}
	}
}
