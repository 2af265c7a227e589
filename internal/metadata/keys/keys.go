// Package keys provides key encoding/decoding for the controller keyspace.
// Numeric components use zero-padded decimal encoding so lexicographic
// ordering matches numeric ordering.
//
// Stream metadata lives under:
//
//	/rivulet/v1/streams/<scope>/<stream>/state
//	/rivulet/v1/streams/<scope>/<stream>/segments/<numberZ>
//	/rivulet/v1/streams/<scope>/<stream>/txns/<txnId>
//
// where numberZ is a zero-padded decimal of width 20.
package keys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SegmentNumberWidth is the number of digits for zero-padded segment numbers.
// Width 20 covers the full int64 range.
const SegmentNumberWidth = 20

// Key prefixes.
const (
	// Prefix is the root prefix for all controller keys.
	Prefix = "/rivulet/v1"

	// StreamsPrefix is the prefix for stream metadata keys.
	StreamsPrefix = Prefix + "/streams"
)

// Common errors.
var (
	// ErrInvalidKey is returned when a key cannot be parsed.
	ErrInvalidKey = errors.New("keys: invalid key format")

	// ErrInvalidSegmentNumber is returned when a segment number is negative.
	ErrInvalidSegmentNumber = errors.New("keys: segment number must be non-negative")
)

// EncodeInt64 encodes a non-negative 64-bit integer as a zero-padded
// decimal string of the given width.
func EncodeInt64(v int64, width int) (string, error) {
	if v < 0 {
		return "", fmt.Errorf("keys: negative value %d not supported", v)
	}
	return fmt.Sprintf("%0*d", width, v), nil
}

// DecodeInt64 decodes a zero-padded decimal string back to int64.
func DecodeInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// StreamPrefix returns the key prefix for one stream's metadata.
func StreamPrefix(scope, stream string) string {
	return StreamsPrefix + "/" + scope + "/" + stream
}

// StreamStateKey returns the key holding a stream's state record.
func StreamStateKey(scope, stream string) string {
	return StreamPrefix(scope, stream) + "/state"
}

// SegmentsPrefix returns the prefix under which one stream's active
// segment records live. Listing this prefix yields segments in
// ascending numeric order.
func SegmentsPrefix(scope, stream string) string {
	return StreamPrefix(scope, stream) + "/segments/"
}

// SegmentKey returns the key for one active segment record.
func SegmentKey(scope, stream string, number int64) (string, error) {
	if number < 0 {
		return "", ErrInvalidSegmentNumber
	}
	enc, err := EncodeInt64(number, SegmentNumberWidth)
	if err != nil {
		return "", err
	}
	return SegmentsPrefix(scope, stream) + enc, nil
}

// ParseSegmentKey extracts the segment number from a segment key.
func ParseSegmentKey(key string) (int64, error) {
	idx := strings.LastIndex(key, "/")
	if idx < 0 || idx == len(key)-1 {
		return 0, ErrInvalidKey
	}
	n, err := DecodeInt64(key[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return n, nil
}

// TxnsPrefix returns the prefix under which one stream's transaction
// records live.
func TxnsPrefix(scope, stream string) string {
	return StreamPrefix(scope, stream) + "/txns/"
}

// TxnKey returns the key for one transaction record.
func TxnKey(scope, stream, txnID string) string {
	return TxnsPrefix(scope, stream) + txnID
}

// ParseTxnKey extracts the transaction ID from a transaction key.
func ParseTxnKey(key string) (string, error) {
	idx := strings.LastIndex(key, "/")
	if idx < 0 || idx == len(key)-1 {
		return "", ErrInvalidKey
	}
	return key[idx+1:], nil
}
