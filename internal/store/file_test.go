package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileKVStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	s, err := NewFileKVStore(dir)
	if err != nil {
		t.Fatalf("NewFileKVStore: %v", err)
	}

	if _, err := s.Get(ctx, AuthKey); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get on missing key = %v, want ErrKeyNotFound", err)
	}

	if err := s.Set(ctx, AuthKey, []byte(`{"phone":"1"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, AuthKey, []byte(`{"phone":"2"}`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := s.Get(ctx, AuthKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"phone":"2"}` {
		t.Fatalf("Get = %s", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "auth.json" {
		t.Fatalf("unexpected files in storage dir: %v", entries)
	}

	if err := s.Delete(ctx, AuthKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, AuthKey); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if _, err := s.Get(ctx, AuthKey); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get after delete = %v", err)
	}
}

func TestFileKVStoreRejectsTraversal(t *testing.T) {
	s, err := NewFileKVStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKVStore: %v", err)
	}
	for _, key := range []string{"", "../x", "a/b", `a\b`} {
		if err := s.Set(context.Background(), key, []byte("{}")); err == nil {
			t.Errorf("Set(%q) succeeded", key)
		}
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	if _, ok := kv.(*MemoryKVStore); !ok {
		t.Fatalf("Open(memory) returned %T", kv)
	}

	kv, err = Open(ctx, DriverConfig{Driver: "file", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open(file): %v", err)
	}
	if _, ok := kv.(*FileKVStore); !ok {
		t.Fatalf("Open(file) returned %T", kv)
	}

	if _, err := Open(ctx, DriverConfig{Driver: "etcd"}); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("Open(etcd) error = %v", err)
	}
}
