package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryPutGet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	info, err := store.Put(ctx, "audit/s-1/turn-00001.parquet", strings.NewReader("abc"), 3, PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Size != 3 {
		t.Fatalf("Put().Size = %d", info.Size)
	}

	reader, err := store.Get(ctx, "audit/s-1/turn-00001.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, _ := io.ReadAll(reader)
	if string(data) != "abc" {
		t.Fatalf("Get() = %q", string(data))
	}
	if keys := store.Keys(); len(keys) != 1 {
		t.Fatalf("Keys() = %#v", keys)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	if _, err := NewMemory().Get(context.Background(), "nope"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
}
