// Package events implements the controller's durable work queue. Seal
// requests are posted as events; a dispatcher consumes them and drives
// the workflow, writing the event back for a later retry whenever a run
// cannot finish.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/rivulet-io/rivulet/internal/streams"
)

// SealStreamEvent asks the controller to seal one stream. The event is
// the unit of retry: a delivery that cannot complete is re-enqueued
// with an incremented attempt counter, never dropped.
type SealStreamEvent struct {
	Scope     string `json:"scope"`
	Stream    string `json:"stream"`
	RequestID string `json:"requestId"`
	Attempt   int    `json:"attempt"`
}

// StreamID returns the identifier of the stream the event targets.
func (e SealStreamEvent) StreamID() streams.StreamID {
	return streams.StreamID{Scope: e.Scope, Name: e.Stream}
}

// Key returns the partitioning key for the event. All events for one
// stream share a key, so one stream's retries stay ordered relative to
// each other.
func (e SealStreamEvent) Key() string {
	return e.Scope + "/" + e.Stream
}

// Encode serializes the event for the wire.
func (e SealStreamEvent) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("events: encode seal event: %w", err)
	}
	return data, nil
}

// DecodeSealStreamEvent deserializes an event payload.
func DecodeSealStreamEvent(data []byte) (SealStreamEvent, error) {
	var e SealStreamEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return SealStreamEvent{}, fmt.Errorf("events: decode seal event: %w", err)
	}
	if e.Scope == "" || e.Stream == "" {
		return SealStreamEvent{}, fmt.Errorf("events: decode seal event: missing stream identity")
	}
	return e, nil
}
