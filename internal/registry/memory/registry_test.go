package memory

import (
	"context"
	"testing"

	"github.com/perchlink/perch/internal/bookmarks"
)

func TestRegistryLifecycle(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	ctx := context.Background()
	item := bookmarks.ProcessingItem{
		ID:     "item-1",
		UserID: "user-1",
		URL:    "https://example.com",
		Step:   bookmarks.StepScraping,
		Status: bookmarks.StatusLoading,
	}

	if err := reg.Upsert(ctx, item); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	item.Step = bookmarks.StepMetadata
	if err := reg.Upsert(ctx, item); err != nil {
		t.Fatalf("Upsert() replace error = %v", err)
	}

	items, err := reg.List(ctx, "user-1")
	if err != nil || len(items) != 1 {
		t.Fatalf("List() unexpected result: items=%v err=%v", items, err)
	}
	if items[0].Step != bookmarks.StepMetadata {
		t.Fatalf("expected upsert to replace, got step %q", items[0].Step)
	}

	other, err := reg.List(ctx, "user-2")
	if err != nil || len(other) != 0 {
		t.Fatalf("expected empty list for other user, got %v", other)
	}

	if err := reg.Remove(ctx, "item-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := reg.Remove(ctx, "item-1"); err != nil {
		t.Fatalf("Remove() should be idempotent, got %v", err)
	}
}

func TestRegistryCancellation(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	ctx := context.Background()
	item := bookmarks.ProcessingItem{ID: "item-c", UserID: "user-1", Status: bookmarks.StatusLoading}

	if err := reg.Upsert(ctx, item); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if reg.IsCancelled(ctx, "item-c") {
		t.Fatal("fresh item should not be cancelled")
	}
	if err := reg.MarkCancelled(ctx, "item-c"); err != nil {
		t.Fatalf("MarkCancelled() error = %v", err)
	}
	if !reg.IsCancelled(ctx, "item-c") {
		t.Fatal("expected cancellation flag set")
	}
	items, _ := reg.List(ctx, "user-1")
	if len(items) != 0 {
		t.Fatal("cancelled item must not surface through List")
	}

	reg.ClearCancelled(ctx, "item-c")
	if reg.IsCancelled(ctx, "item-c") {
		t.Fatal("expected cleared flag")
	}
}
