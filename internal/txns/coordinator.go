// Package txns implements the controller-side transaction coordinator
// client. The seal workflow uses it to nudge open transactions toward
// abort; the transaction lifecycle machinery that drives records to
// their terminal status and cleans them up lives elsewhere.
package txns

import (
	"context"
	"errors"
	"fmt"

	"github.com/rivulet-io/rivulet/internal/logging"
	"github.com/rivulet-io/rivulet/internal/streams"
)

// Coordinator issues abort requests for individual transactions.
type Coordinator struct {
	store *streams.Store
}

// NewCoordinator creates a coordinator client over the stream metadata store.
func NewCoordinator(store *streams.Store) *Coordinator {
	return &Coordinator{store: store}
}

// Abort requests the abort of one transaction by flipping its record
// from OPEN to ABORTING with compare-and-set. Abort is a nudge, not a
// guarantee: the record's owner completes the abort asynchronously.
//
// Classified failures, all meaning "someone else already handles this":
//   - streams.ErrIllegalState: the transaction is already completing.
//   - streams.ErrWriteConflict: a concurrent writer is updating the record.
//   - streams.ErrTxnNotFound: the record is already gone.
func (c *Coordinator) Abort(ctx context.Context, id streams.StreamID, txnID string) error {
	rec, version, err := c.store.GetTxn(ctx, id, txnID)
	if err != nil {
		return err
	}

	if rec.Status != streams.TxnOpen {
		return fmt.Errorf("%w: transaction %s on %s is %s", streams.ErrIllegalState, txnID, id, rec.Status)
	}

	if err := c.store.CASTxnStatus(ctx, id, txnID, version, streams.TxnAborting); err != nil {
		return err
	}

	logging.FromCtx(ctx).Debugf("abort requested", map[string]any{
		"scope":  id.Scope,
		"stream": id.Name,
		"txnId":  txnID,
	})
	return nil
}

// IsKnownAbortRace reports whether err is one of the expected races
// during transaction teardown. Callers absorb these: the record is
// already being resolved by another process.
func IsKnownAbortRace(err error) bool {
	return errors.Is(err, streams.ErrIllegalState) ||
		errors.Is(err, streams.ErrWriteConflict) ||
		errors.Is(err, streams.ErrTxnNotFound)
}
