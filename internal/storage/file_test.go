package storage

import (
	"context"
	"errors"
	"testing"
)

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()

	kv, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	key := "session:student:Ada Obi:42"
	payload := []byte(`{"timeLeft":120}`)

	if _, err := kv.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
	}

	if err := kv.Set(ctx, key, payload); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := kv.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("Get = %q, want %q", got, payload)
	}

	// Overwrite replaces atomically.
	if err := kv.Set(ctx, key, []byte(`{"timeLeft":115}`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, _ = kv.Get(ctx, key)
	if string(got) != `{"timeLeft":115}` {
		t.Fatalf("overwrite Get = %q", got)
	}

	if err := kv.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Delete: err = %v, want ErrNotFound", err)
	}

	// Deleting a missing key is not an error.
	if err := kv.Delete(ctx, key); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}
