package keys

import (
	"errors"
	"sort"
	"testing"
)

func TestEncodeInt64(t *testing.T) {
	tests := []struct {
		v       int64
		width   int
		want    string
		wantErr bool
	}{
		{0, 20, "00000000000000000000", false},
		{42, 20, "00000000000000000042", false},
		{9223372036854775807, 20, "09223372036854775807", false},
		{-1, 20, "", true},
	}
	for _, tt := range tests {
		got, err := EncodeInt64(tt.v, tt.width)
		if (err != nil) != tt.wantErr {
			t.Errorf("EncodeInt64(%d) error = %v, wantErr %v", tt.v, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("EncodeInt64(%d) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestSegmentKeyOrdering(t *testing.T) {
	// Lexicographic order of encoded keys must match numeric order.
	numbers := []int64{0, 1, 2, 9, 10, 11, 99, 100, 1000000}
	keys := make([]string, len(numbers))
	for i, n := range numbers {
		k, err := SegmentKey("g1", "s1", n)
		if err != nil {
			t.Fatalf("SegmentKey(%d): %v", n, err)
		}
		keys[i] = k
	}
	if !sort.StringsAreSorted(keys) {
		t.Errorf("segment keys not lexicographically sorted: %v", keys)
	}
}

func TestSegmentKeyRoundTrip(t *testing.T) {
	key, err := SegmentKey("scope", "stream", 7)
	if err != nil {
		t.Fatalf("SegmentKey: %v", err)
	}
	n, err := ParseSegmentKey(key)
	if err != nil {
		t.Fatalf("ParseSegmentKey(%q): %v", key, err)
	}
	if n != 7 {
		t.Errorf("ParseSegmentKey = %d, want 7", n)
	}
}

func TestSegmentKeyNegative(t *testing.T) {
	if _, err := SegmentKey("g", "s", -3); !errors.Is(err, ErrInvalidSegmentNumber) {
		t.Errorf("SegmentKey(-3) error = %v, want ErrInvalidSegmentNumber", err)
	}
}

func TestParseSegmentKeyInvalid(t *testing.T) {
	for _, key := range []string{"", "nonsense", "/rivulet/v1/streams/g/s/segments/", "/rivulet/v1/streams/g/s/segments/abc"} {
		if _, err := ParseSegmentKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ParseSegmentKey(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestTxnKeyRoundTrip(t *testing.T) {
	key := TxnKey("g1", "s1", "txn-abc")
	if key != "/rivulet/v1/streams/g1/s1/txns/txn-abc" {
		t.Errorf("TxnKey = %q", key)
	}
	id, err := ParseTxnKey(key)
	if err != nil {
		t.Fatalf("ParseTxnKey: %v", err)
	}
	if id != "txn-abc" {
		t.Errorf("ParseTxnKey = %q, want txn-abc", id)
	}
}

func TestStreamStateKey(t *testing.T) {
	if got := StreamStateKey("g1", "s1"); got != "/rivulet/v1/streams/g1/s1/state" {
		t.Errorf("StreamStateKey = %q", got)
	}
}
