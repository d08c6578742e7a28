package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/wikicrawler/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	runs := NewRunStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		run := store.CrawlRun{
			TaskID:      id,
			URL:         "https://en.wikipedia.org/wiki/Go",
			MaxDepth:    2,
			Total:       int64(i + 1),
			Result:      store.RunComplete,
			SubmittedAt: base,
			CompletedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := runs.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", id, err)
		}
	}

	got, err := runs.GetRun(ctx, "b")
	if err != nil || got.Total != 2 {
		t.Fatalf("GetRun() unexpected result: run=%+v err=%v", got, err)
	}
	if _, err := runs.GetRun(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	all, err := runs.ListRuns(ctx, 0, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListRuns() unexpected result: runs=%v err=%v", all, err)
	}
	if all[0].TaskID != "c" || all[2].TaskID != "a" {
		t.Fatalf("expected newest first, got %s..%s", all[0].TaskID, all[2].TaskID)
	}

	page, err := runs.ListRuns(ctx, 1, 1)
	if err != nil || len(page) != 1 || page[0].TaskID != "b" {
		t.Fatalf("ListRuns(1,1) unexpected result: runs=%v err=%v", page, err)
	}
	empty, err := runs.ListRuns(ctx, 10, 5)
	if err != nil || len(empty) != 0 {
		t.Fatalf("ListRuns past end unexpected result: runs=%v err=%v", empty, err)
	}
}

func TestRunStoreSaveReplaces(t *testing.T) {
	t.Parallel()

	runs := NewRunStore()
	ctx := context.Background()
	if err := runs.SaveRun(ctx, store.CrawlRun{TaskID: "a", Total: 1}); err != nil {
		t.Fatal(err)
	}
	if err := runs.SaveRun(ctx, store.CrawlRun{TaskID: "a", Total: 4, Failed: 1, Result: store.RunPartial}); err != nil {
		t.Fatal(err)
	}
	got, err := runs.GetRun(ctx, "a")
	if err != nil || got.Total != 4 || got.Result != store.RunPartial {
		t.Fatalf("expected replaced run, got %+v err=%v", got, err)
	}
}
