package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreConformance(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()
	runStoreConformance(t, st)
}

func TestMemoryStoreExpiry(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	st.now = func() time.Time { return base }

	if err := st.Set(ctx, "ephemeral", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := st.Set(ctx, "durable", "v", NoExpiry); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := st.Get(ctx, "ephemeral"); err != nil {
		t.Fatalf("key expired before its ttl: %v", err)
	}

	st.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := st.Get(ctx, "ephemeral"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired key err = %v, want ErrNotFound", err)
	}
	if got, err := st.Get(ctx, "durable"); err != nil || got != "v" {
		t.Errorf("no-expiry key = %q, %v; want v", got, err)
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := st.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after close err = %v, want ErrClosed", err)
	}
	if err := st.Set(ctx, "k", "v", NoExpiry); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after close err = %v, want ErrClosed", err)
	}
}

func TestMemoryStoreHonorsContext(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := st.Set(ctx, "k", "v", NoExpiry); !errors.Is(err, context.Canceled) {
		t.Errorf("Set with cancelled ctx err = %v, want context.Canceled", err)
	}
}
