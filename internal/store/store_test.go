package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T, opts ...Option) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	v, err := SchemaVersion(s.db)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if v != LatestVersion() {
		t.Errorf("schema version = %d, want %d", v, LatestVersion())
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Set(ctx, KeySessions, []byte(`[]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Close()

	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	v, ok, err := s.Get(ctx, KeySessions)
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if string(v) != "[]" {
		t.Errorf("value = %q, want []", v)
	}
}

func TestUseAfterClose(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close: got %v, want ErrClosed", err)
	}
	if err := s.Set(ctx, "k", []byte("v")); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close: got %v, want ErrClosed", err)
	}
	if err := s.Remove(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Remove after Close: got %v, want ErrClosed", err)
	}
	if _, err := s.List(ctx, CachePrefix); !errors.Is(err, ErrClosed) {
		t.Errorf("List after Close: got %v, want ErrClosed", err)
	}
}

// kvContract runs the same behavioral checks against every KV implementation.
func kvContract(t *testing.T, kv interface {
	KV
	Lister
}) {
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing: ok=%v err=%v", ok, err)
	}

	if err := kv.Set(ctx, "cache_a", []byte("one")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Set(ctx, "cache_a", []byte("two")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if err := kv.Set(ctx, "cache_b", []byte("three")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Set(ctx, KeySessions, []byte("[]")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	v, ok, err := kv.Get(ctx, "cache_a")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(v) != "two" {
		t.Errorf("value = %q, want %q", v, "two")
	}

	entries, err := kv.List(ctx, CachePrefix)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d cache entries, want 2", len(entries))
	}
	if entries[0].Key != "cache_a" || entries[1].Key != "cache_b" {
		t.Errorf("unexpected keys: %+v", entries)
	}
	if entries[1].Size != len("three") {
		t.Errorf("size = %d, want %d", entries[1].Size, len("three"))
	}

	if err := kv.Remove(ctx, "cache_a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := kv.Remove(ctx, "cache_a"); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "cache_a"); ok {
		t.Error("key still present after Remove")
	}
}

func TestSQLiteContract(t *testing.T) {
	kvContract(t, openTestStore(t))
}

func TestMemoryContract(t *testing.T) {
	kvContract(t, NewMemory())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte("abc")
	m.Set(ctx, "k", buf)
	buf[0] = 'x'

	v, _, _ := m.Get(ctx, "k")
	if string(v) != "abc" {
		t.Errorf("stored value aliased caller buffer: %q", v)
	}
	v[1] = 'y'
	v2, _, _ := m.Get(ctx, "k")
	if string(v2) != "abc" {
		t.Errorf("returned value aliased stored buffer: %q", v2)
	}
}

func TestMaxValueSize(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, WithMaxValueSize(4))

	if err := s.Set(ctx, "small", []byte("1234")); err != nil {
		t.Fatalf("Set at limit failed: %v", err)
	}
	err := s.Set(ctx, "big", []byte("12345"))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("got %v, want ErrQuotaExceeded", err)
	}
	if _, ok, _ := s.Get(ctx, "big"); ok {
		t.Error("oversized value was stored")
	}
}

func TestInMemoryDSN(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Error("value not visible on the single in-memory connection")
	}
}
