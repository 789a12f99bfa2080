package store

import (
	"context"
	"errors"
	"testing"
)

// runStoreConformance exercises the Store contract against any backend.
func runStoreConformance(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get_missing", func(t *testing.T) {
		if _, err := st.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("set_get_overwrite", func(t *testing.T) {
		if err := st.Set(ctx, "k", "v1", NoExpiry); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if got, err := st.Get(ctx, "k"); err != nil || got != "v1" {
			t.Fatalf("Get = %q, %v; want v1", got, err)
		}
		if err := st.Set(ctx, "k", "v2", NoExpiry); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		if got, _ := st.Get(ctx, "k"); got != "v2" {
			t.Errorf("after overwrite Get = %q, want v2", got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := st.Set(ctx, "doomed", "v", NoExpiry); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := st.Delete(ctx, "doomed"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := st.Get(ctx, "doomed"); !errors.Is(err, ErrNotFound) {
			t.Errorf("deleted key err = %v, want ErrNotFound", err)
		}
		if err := st.Delete(ctx, "never-existed"); err != nil {
			t.Errorf("deleting a missing key should be a no-op, got %v", err)
		}
	})

	t.Run("list_append_range_len", func(t *testing.T) {
		if err := st.ListAppend(ctx, "list", "a", "b", "c", "d"); err != nil {
			t.Fatalf("ListAppend: %v", err)
		}
		n, err := st.ListLen(ctx, "list")
		if err != nil || n != 4 {
			t.Fatalf("ListLen = %d, %v; want 4", n, err)
		}

		got, err := st.ListRange(ctx, "list", 0, -1)
		if err != nil {
			t.Fatalf("ListRange: %v", err)
		}
		want := []string{"a", "b", "c", "d"}
		if len(got) != len(want) {
			t.Fatalf("full range = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("range[%d] = %q, want %q", i, got[i], want[i])
			}
		}

		tail, err := st.ListRange(ctx, "list", -2, -1)
		if err != nil || len(tail) != 2 || tail[0] != "c" || tail[1] != "d" {
			t.Errorf("tail range = %v, %v; want [c d]", tail, err)
		}
	})

	t.Run("list_trim_keeps_newest", func(t *testing.T) {
		if err := st.ListAppend(ctx, "trimmed", "1", "2", "3", "4", "5"); err != nil {
			t.Fatalf("ListAppend: %v", err)
		}
		if err := st.ListTrim(ctx, "trimmed", 2); err != nil {
			t.Fatalf("ListTrim: %v", err)
		}
		got, err := st.ListRange(ctx, "trimmed", 0, -1)
		if err != nil {
			t.Fatalf("ListRange: %v", err)
		}
		if len(got) != 2 || got[0] != "4" || got[1] != "5" {
			t.Errorf("after trim = %v, want [4 5] (oldest dropped first)", got)
		}
	})

	t.Run("list_append_after_trim", func(t *testing.T) {
		if err := st.ListAppend(ctx, "trimmed", "6"); err != nil {
			t.Fatalf("ListAppend: %v", err)
		}
		got, err := st.ListRange(ctx, "trimmed", 0, -1)
		if err != nil {
			t.Fatalf("ListRange: %v", err)
		}
		if len(got) != 3 || got[2] != "6" {
			t.Errorf("after append = %v, want tail 6", got)
		}
	})

	t.Run("empty_list", func(t *testing.T) {
		n, err := st.ListLen(ctx, "no-such-list")
		if err != nil || n != 0 {
			t.Errorf("ListLen = %d, %v; want 0", n, err)
		}
		got, err := st.ListRange(ctx, "no-such-list", 0, -1)
		if err != nil || len(got) != 0 {
			t.Errorf("ListRange = %v, %v; want empty", got, err)
		}
	})

	t.Run("hash_operations", func(t *testing.T) {
		if _, err := st.HashGet(ctx, "h", "f"); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing field err = %v, want ErrNotFound", err)
		}
		if err := st.HashSet(ctx, "h", "f1", "v1"); err != nil {
			t.Fatalf("HashSet: %v", err)
		}
		if err := st.HashSet(ctx, "h", "f2", "v2"); err != nil {
			t.Fatalf("HashSet: %v", err)
		}
		if err := st.HashSet(ctx, "h", "f1", "v1b"); err != nil {
			t.Fatalf("HashSet overwrite: %v", err)
		}

		if got, err := st.HashGet(ctx, "h", "f1"); err != nil || got != "v1b" {
			t.Errorf("HashGet f1 = %q, %v; want v1b", got, err)
		}
		all, err := st.HashGetAll(ctx, "h")
		if err != nil {
			t.Fatalf("HashGetAll: %v", err)
		}
		if len(all) != 2 || all["f1"] != "v1b" || all["f2"] != "v2" {
			t.Errorf("HashGetAll = %v", all)
		}

		if err := st.HashDelete(ctx, "h", "f1"); err != nil {
			t.Fatalf("HashDelete: %v", err)
		}
		if _, err := st.HashGet(ctx, "h", "f1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("deleted field err = %v, want ErrNotFound", err)
		}
	})

	t.Run("hash_get_all_missing", func(t *testing.T) {
		all, err := st.HashGetAll(ctx, "no-such-hash")
		if err != nil {
			t.Fatalf("HashGetAll on missing hash: %v", err)
		}
		if len(all) != 0 {
			t.Errorf("HashGetAll = %v, want empty map", all)
		}
	})
}
