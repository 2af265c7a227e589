package streams

import "errors"

// Store errors. ErrIllegalState, ErrWriteConflict, and ErrTxnNotFound
// are the expected races during transaction teardown: the sweep in the
// seal workflow absorbs them because each means some other process
// already owns the record's resolution.
var (
	// ErrStreamNotFound is returned when the stream has no state record.
	ErrStreamNotFound = errors.New("streams: stream not found")

	// ErrIllegalState is returned when an operation is not valid for the
	// record's current state (e.g. aborting a transaction that is already
	// completing).
	ErrIllegalState = errors.New("streams: illegal state")

	// ErrWriteConflict is returned when a compare-and-set write lost to a
	// concurrent writer updating the same record.
	ErrWriteConflict = errors.New("streams: write conflict")

	// ErrTxnNotFound is returned when a transaction record no longer
	// exists (already cleaned up after resolution).
	ErrTxnNotFound = errors.New("streams: transaction not found")

	// ErrSegmentExists is returned when creating a segment that is
	// already in the active set.
	ErrSegmentExists = errors.New("streams: segment already exists")

	// ErrStreamExists is returned when creating a stream that already
	// has a state record.
	ErrStreamExists = errors.New("streams: stream already exists")
)
