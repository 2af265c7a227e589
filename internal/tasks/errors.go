package tasks

import "errors"

// Workflow errors. Both are transient by contract: the dispatcher
// writes the event back and a later run picks the work up again.
var (
	// ErrNotStarted means the stream is not yet in a sealing state. The
	// event outran the state transition; retry once it is visible.
	ErrNotStarted = errors.New("tasks: seal not started yet")

	// ErrOperationNotAllowed means open transactions still exist. The
	// sweep has nudged them toward abort; retry after they drain.
	ErrOperationNotAllowed = errors.New("tasks: operation not allowed while transactions are open")
)

// IsExpectedRetry reports whether err is a classified deferral rather
// than a real failure. The dispatcher uses this to pick the log level
// for a write back; both kinds are retried.
func IsExpectedRetry(err error) bool {
	return errors.Is(err, ErrNotStarted) || errors.Is(err, ErrOperationNotAllowed)
}
