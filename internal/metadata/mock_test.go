package metadata

import (
	"context"
	"errors"
	"testing"
)

func TestMockStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	result, err := m.Get(ctx, "/rivulet/v1/none")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if result.Exists {
		t.Error("expected Exists=false for missing key")
	}
}

func TestMockStore_PutCAS(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	// Unconditional create.
	v1, err := m.Put(ctx, "k", []byte("a"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// Expected version 0 on an existing key must conflict.
	if _, err := m.Put(ctx, "k", []byte("b"), WithExpectedVersion(0)); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("Put(expect 0) error = %v, want ErrVersionMismatch", err)
	}

	// Correct expected version succeeds and bumps the version.
	v2, err := m.Put(ctx, "k", []byte("b"), WithExpectedVersion(v1))
	if err != nil {
		t.Fatalf("Put(expect %d) error = %v", v1, err)
	}
	if v2 <= v1 {
		t.Errorf("version did not increase: %d -> %d", v1, v2)
	}

	// Stale version conflicts.
	if _, err := m.Put(ctx, "k", []byte("c"), WithExpectedVersion(v1)); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("stale Put error = %v, want ErrVersionMismatch", err)
	}

	// Expected version 0 on a fresh key succeeds.
	if _, err := m.Put(ctx, "new", []byte("x"), WithExpectedVersion(0)); err != nil {
		t.Errorf("Put new key with expect-not-exists: %v", err)
	}
}

func TestMockStore_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	if err := m.Delete(ctx, "ghost"); err != nil {
		t.Errorf("Delete missing key error = %v, want nil", err)
	}

	v, _ := m.Put(ctx, "k", []byte("a"))
	if err := m.Delete(ctx, "k", WithDeleteExpectedVersion(v+1)); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("conditional delete error = %v, want ErrVersionMismatch", err)
	}
	if err := m.Delete(ctx, "k", WithDeleteExpectedVersion(v)); err != nil {
		t.Errorf("conditional delete error = %v", err)
	}
}

func TestMockStore_ListPrefixOrdered(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	for _, k := range []string{"/s/b/2", "/s/a/1", "/s/a/0", "/s/a/2", "/other"} {
		if _, err := m.Put(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	kvs, err := m.List(ctx, "/s/a/", "", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"/s/a/0", "/s/a/1", "/s/a/2"}
	if len(kvs) != len(want) {
		t.Fatalf("List() returned %d keys, want %d", len(kvs), len(want))
	}
	for i, kv := range kvs {
		if kv.Key != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, kv.Key, want[i])
		}
	}

	limited, err := m.List(ctx, "/s/a/", "", 2)
	if err != nil {
		t.Fatalf("List(limit) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(limit=2) returned %d keys", len(limited))
	}
}

func TestMockStore_Closed(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get after close error = %v, want ErrStoreClosed", err)
	}
	if _, err := m.Put(ctx, "k", nil); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Put after close error = %v, want ErrStoreClosed", err)
	}
}
