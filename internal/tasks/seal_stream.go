// Package tasks implements the controller's stream workflows. Each
// task is a handler for one durable event type: it must be safe to run
// more than once for the same stream, because the queue delivers
// at-least-once and concurrent workers may overlap.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rivulet-io/rivulet/internal/events"
	"github.com/rivulet-io/rivulet/internal/logging"
	"github.com/rivulet-io/rivulet/internal/metrics"
	"github.com/rivulet-io/rivulet/internal/segments"
	"github.com/rivulet-io/rivulet/internal/streams"
	"github.com/rivulet-io/rivulet/internal/txns"
)

// StreamStore is the slice of the metadata layer the seal workflow
// reads and writes.
type StreamStore interface {
	GetState(ctx context.Context, id streams.StreamID) (streams.State, error)
	GetActiveSegments(ctx context.Context, id streams.StreamID) ([]streams.Segment, error)
	GetActiveTxns(ctx context.Context, id streams.StreamID) (map[string]streams.TxnStatus, error)
	SetSealed(ctx context.Context, id streams.StreamID) error
}

// TxnAborter issues abort requests for individual transactions.
type TxnAborter interface {
	Abort(ctx context.Context, id streams.StreamID, txnID string) error
}

// SealStreamConfig holds configuration for the seal workflow.
type SealStreamConfig struct {
	// AuthToken is the delegation token presented to the storage tier.
	AuthToken string

	// Metrics records workflow outcomes. May be nil.
	Metrics *metrics.SealMetrics
}

// SealStreamTask seals one stream: it stops transactions, tells the
// storage tier to seal the active segments, and flips the stream state
// to SEALED. Every step re-reads current state, so a redelivered or
// concurrent run converges instead of duplicating side effects.
type SealStreamTask struct {
	store     StreamStore
	aborter   TxnAborter
	notifier  segments.Notifier
	authToken string
	metrics   *metrics.SealMetrics
}

// NewSealStreamTask creates the seal workflow over its collaborators.
func NewSealStreamTask(store StreamStore, aborter TxnAborter, notifier segments.Notifier, cfg SealStreamConfig) *SealStreamTask {
	return &SealStreamTask{
		store:     store,
		aborter:   aborter,
		notifier:  notifier,
		authToken: cfg.AuthToken,
		metrics:   cfg.Metrics,
	}
}

// HandleSealStream runs the workflow for one event delivery. It
// implements events.Handler.
func (t *SealStreamTask) HandleSealStream(ctx context.Context, event events.SealStreamEvent) error {
	id := event.StreamID()
	op := streams.NewOperationContext(id)
	ctx = op.Attach(ctx)

	start := time.Now()
	err := t.Execute(ctx, id)
	if t.metrics != nil {
		t.metrics.RecordRun(runOutcome(err), time.Since(start).Seconds())
	}
	return err
}

func runOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSealed
	case errors.Is(err, ErrNotStarted):
		return metrics.OutcomeRejected
	case errors.Is(err, ErrOperationNotAllowed):
		return metrics.OutcomeRetry
	default:
		return metrics.OutcomeFailure
	}
}

// Execute runs the ordered seal steps for one stream. Nothing is
// cached between runs: a failure at any step abandons the run, and the
// next delivery starts over from the state check.
func (t *SealStreamTask) Execute(ctx context.Context, id streams.StreamID) error {
	logger := logging.FromCtx(ctx).With(map[string]any{
		"scope":  id.Scope,
		"stream": id.Name,
	})

	// Step 1: the stream must already be past the ACTIVE->SEALING
	// transition. Seeing anything else means the event outran the
	// metadata write.
	state, err := t.store.GetState(ctx, id)
	if err != nil {
		return fmt.Errorf("read stream state: %w", err)
	}
	if state != streams.StateSealing && state != streams.StateSealed {
		return fmt.Errorf("%w: stream %s is %s", ErrNotStarted, id, state)
	}

	// Step 2: no segment is sealed while a transaction record remains,
	// open or still resolving. The sweep nudges open transactions toward
	// abort but never waits for any of them; the retry re-observes.
	noOpenTxns, err := t.sweepTxns(ctx, id, logger)
	if err != nil {
		return fmt.Errorf("transaction sweep: %w", err)
	}
	if !noOpenTxns {
		return fmt.Errorf("%w: stream %s", ErrOperationNotAllowed, id)
	}

	// Step 3: an empty active segment list means a prior run already
	// finished the remaining steps.
	segs, err := t.store.GetActiveSegments(ctx, id)
	if err != nil {
		return fmt.Errorf("read active segments: %w", err)
	}
	if len(segs) == 0 {
		logger.Debug("stream already sealed")
		return nil
	}

	segmentNumbers := make([]int64, len(segs))
	for i, seg := range segs {
		segmentNumbers[i] = seg.Number
	}

	// Step 4: the storage tier treats sealing an already-sealed segment
	// as a no-op, so failing here and repeating the identical call on
	// the next run is safe.
	if err := t.notifier.SealSegments(ctx, id, segmentNumbers, t.authToken); err != nil {
		return fmt.Errorf("seal segments: %w", err)
	}
	if t.metrics != nil {
		t.metrics.RecordSegmentsSealed(len(segmentNumbers))
	}

	// Step 5: durably record SEALED. Re-sealing a sealed stream is a
	// no-op in the store, so overlapping runs cannot conflict here.
	if err := t.store.SetSealed(ctx, id); err != nil {
		return fmt.Errorf("finalize state: %w", err)
	}

	logger.Infof("stream sealed", map[string]any{
		"segments": len(segmentNumbers),
	})
	return nil
}

// sweepTxns aborts every OPEN transaction on the stream and reports
// whether the stream is clear of transaction records. Records that are
// already resolving (COMMITTING, ABORTING) get no abort request but
// still hold the sweep not clear: a COMMITTING transaction's writes
// must land before its segments seal, and the record only disappears
// once the lifecycle machinery finishes. The abort requests fan out
// concurrently; the sweep joins them only to finish classification.
// Individual abort outcomes never change the result, and the sweep
// never blocks until transactions actually resolve.
func (t *SealStreamTask) sweepTxns(ctx context.Context, id streams.StreamID, logger *logging.Logger) (bool, error) {
	active, err := t.store.GetActiveTxns(ctx, id)
	if err != nil {
		return false, err
	}
	if len(active) == 0 {
		return true, nil
	}

	var open []string
	for txnID, status := range active {
		if status == streams.TxnOpen {
			open = append(open, txnID)
		}
	}

	var wg sync.WaitGroup
	for _, txnID := range open {
		wg.Add(1)
		go func(txnID string) {
			defer wg.Done()
			t.abortOne(ctx, id, txnID, logger)
		}(txnID)
	}
	wg.Wait()

	return false, nil
}

// abortOne issues one abort request and classifies the outcome. Abort
// errors are absorbed here: known races mean someone else already
// resolves the transaction, and anything else is re-observed by the
// next run because the sweep stays not clear.
func (t *SealStreamTask) abortOne(ctx context.Context, id streams.StreamID, txnID string, logger *logging.Logger) {
	err := t.aborter.Abort(ctx, id, txnID)
	switch {
	case err == nil:
		if t.metrics != nil {
			t.metrics.RecordAbortRequest(metrics.AbortRequested)
		}
	case txns.IsKnownAbortRace(err):
		if t.metrics != nil {
			t.metrics.RecordAbortRequest(metrics.AbortRaced)
		}
		logger.Debugf("abort already handled elsewhere", map[string]any{
			"txnId":  txnID,
			"reason": err.Error(),
		})
	default:
		if t.metrics != nil {
			t.metrics.RecordAbortRequest(metrics.AbortFailed)
		}
		logger.Warnf("abort request failed", map[string]any{
			"txnId": txnID,
			"error": err.Error(),
		})
	}
}
