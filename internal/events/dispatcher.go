package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rivulet-io/rivulet/internal/logging"
	"github.com/rivulet-io/rivulet/internal/metrics"
)

// Handler processes one event delivery. A nil return means the work is
// done; any error means the event must run again later.
type Handler interface {
	HandleSealStream(ctx context.Context, event SealStreamEvent) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event SealStreamEvent) error

// HandleSealStream calls f.
func (f HandlerFunc) HandleSealStream(ctx context.Context, event SealStreamEvent) error {
	return f(ctx, event)
}

const (
	defaultBackoffBase = 100 * time.Millisecond
	defaultBackoffMax  = 10 * time.Second
)

// DispatcherConfig holds configuration for the Dispatcher.
type DispatcherConfig struct {
	// BackoffBase is the delay before the first redelivery.
	// If zero, defaults to 100ms.
	BackoffBase time.Duration

	// BackoffMax caps the redelivery delay.
	// If zero, defaults to 10s.
	BackoffMax time.Duration

	// IsExpectedRetry classifies handler errors that are a normal part of
	// the workflow (work deferred, not broken). Expected retries are
	// logged at debug; everything else at warn. May be nil.
	IsExpectedRetry func(error) bool

	// Metrics records queue throughput. May be nil.
	Metrics *metrics.QueueMetrics
}

// Dispatcher drives event deliveries through a Handler. A delivery
// whose handler fails is written back to the queue with an incremented
// attempt counter after an attempt-scaled backoff, so no event is lost
// and a stuck stream retries forever at a bounded rate.
type Dispatcher struct {
	queue   Queue
	handler Handler

	backoffBase     time.Duration
	backoffMax      time.Duration
	isExpectedRetry func(error) bool
	metrics         *metrics.QueueMetrics

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher that hands deliveries to handler
// and writes failed deliveries back to queue.
func NewDispatcher(queue Queue, handler Handler, cfg DispatcherConfig) *Dispatcher {
	base := cfg.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	ceiling := cfg.BackoffMax
	if ceiling <= 0 {
		ceiling = defaultBackoffMax
	}

	return &Dispatcher{
		queue:           queue,
		handler:         handler,
		backoffBase:     base,
		backoffMax:      ceiling,
		isExpectedRetry: cfg.IsExpectedRetry,
		metrics:         cfg.Metrics,
		sleep:           sleepCtx,
	}
}

// Dispatch processes one delivery. A nil return means the delivery is
// consumed and its offset may be committed: either the handler
// succeeded, or the event was written back for a later attempt. A
// non-nil return means the delivery must not be committed; the backing
// log redelivers it.
func (d *Dispatcher) Dispatch(ctx context.Context, event SealStreamEvent) error {
	if d.metrics != nil {
		d.metrics.RecordConsume()
	}

	logger := logging.FromCtx(ctx).With(map[string]any{
		"scope":   event.Scope,
		"stream":  event.Stream,
		"attempt": event.Attempt,
	})

	err := d.handler.HandleSealStream(ctx, event)
	if err == nil {
		if d.metrics != nil {
			d.metrics.RecordHandlerOutcome(metrics.HandlerSuccess)
		}
		return nil
	}

	if d.isExpectedRetry != nil && d.isExpectedRetry(err) {
		logger.Debugf("seal not finished, writing event back", map[string]any{
			"reason": err.Error(),
		})
	} else {
		logger.Warnf("seal run failed, writing event back", map[string]any{
			"error": err.Error(),
		})
	}

	if err := d.sleep(ctx, d.backoffFor(event.Attempt)); err != nil {
		return err
	}

	next := event
	next.Attempt++
	if werr := d.queue.Write(ctx, next); werr != nil {
		return fmt.Errorf("events: write back seal event: %w", werr)
	}

	if d.metrics != nil {
		d.metrics.RecordHandlerOutcome(metrics.HandlerRequeued)
		d.metrics.RecordWrite()
	}
	return nil
}

// DispatchRaw decodes and dispatches one raw delivery. Undecodable
// payloads are dropped after logging: redelivering them cannot help.
func (d *Dispatcher) DispatchRaw(ctx context.Context, value []byte) error {
	event, err := DecodeSealStreamEvent(value)
	if err != nil {
		logging.FromCtx(ctx).Errorf("dropping undecodable event", map[string]any{
			"error": err.Error(),
		})
		if d.metrics != nil {
			d.metrics.RecordPoisonEvent()
		}
		return nil
	}
	return d.Dispatch(ctx, event)
}

// backoffFor returns the redelivery delay for a given attempt count,
// doubling per attempt up to the cap.
func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := d.backoffBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= d.backoffMax {
			return d.backoffMax
		}
	}
	if delay > d.backoffMax {
		return d.backoffMax
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
