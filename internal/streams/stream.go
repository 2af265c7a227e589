// Package streams implements the stream metadata layer of the controller.
// Stream state, active segments, and transaction records are stored as
// versioned JSON documents in the metadata store; all mutations go
// through compare-and-set so concurrent workflow runs never clobber
// each other.
package streams

import (
	"context"

	"github.com/google/uuid"

	"github.com/rivulet-io/rivulet/internal/logging"
)

// StreamID identifies a stream within a scope.
type StreamID struct {
	Scope string
	Name  string
}

// String returns the scope-qualified stream name.
func (id StreamID) String() string {
	return id.Scope + "/" + id.Name
}

// State is the lifecycle state of a stream.
type State string

const (
	// StateCreating indicates the stream is being provisioned.
	StateCreating State = "CREATING"

	// StateActive indicates the stream accepts writes and transactions.
	StateActive State = "ACTIVE"

	// StateSealing indicates a seal has been requested; the seal workflow
	// is draining transactions and sealing segments.
	StateSealing State = "SEALING"

	// StateSealed indicates the stream is permanently closed to writes.
	// Terminal for the seal workflow.
	StateSealed State = "SEALED"

	// StateDeleting indicates the stream is being torn down.
	StateDeleting State = "DELETING"
)

// validTransitions defines the stream lifecycle. SEALING -> SEALED is
// one-directional; a sealed stream can only move on to deletion.
var validTransitions = map[State][]State{
	StateCreating: {StateActive},
	StateActive:   {StateSealing, StateDeleting},
	StateSealing:  {StateSealed},
	StateSealed:   {StateDeleting},
	StateDeleting: {},
}

// CanTransitionTo reports whether moving from s to target is a valid
// lifecycle transition.
func (s State) CanTransitionTo(target State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Segment is one independently sealable unit of a stream's data.
type Segment struct {
	// Number is the segment's numeric id, unique within the stream.
	Number int64 `json:"number"`

	// CreatedAtMs is when the segment was opened (unix milliseconds).
	CreatedAtMs int64 `json:"createdAtMs,omitempty"`
}

// TxnStatus is the status of a transaction record.
type TxnStatus string

const (
	// TxnOpen indicates the transaction accepts writes.
	TxnOpen TxnStatus = "OPEN"

	// TxnCommitting indicates commit processing is underway.
	TxnCommitting TxnStatus = "COMMITTING"

	// TxnAborting indicates abort processing is underway.
	TxnAborting TxnStatus = "ABORTING"

	// TxnCommitted is terminal.
	TxnCommitted TxnStatus = "COMMITTED"

	// TxnAborted is terminal.
	TxnAborted TxnStatus = "ABORTED"
)

// IsTerminal reports whether the transaction has fully resolved.
func (s TxnStatus) IsTerminal() bool {
	return s == TxnCommitted || s == TxnAborted
}

// OperationContext is the correlation handle for one workflow run.
// It is never persisted and never shared across runs: each run gets a
// fresh id, and nothing read under one context may be cached into the
// next.
type OperationContext struct {
	// ID is the run's correlation id.
	ID string

	// Stream is the stream the run operates on.
	Stream StreamID
}

// NewOperationContext creates a context for one workflow run.
func NewOperationContext(stream StreamID) OperationContext {
	return OperationContext{
		ID:     uuid.New().String(),
		Stream: stream,
	}
}

// Attach returns a context carrying the run's correlation id for logging.
func (op OperationContext) Attach(ctx context.Context) context.Context {
	return logging.WithCorrelationIDCtx(ctx, op.ID)
}
