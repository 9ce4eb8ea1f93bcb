package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/acgodson/blueband-algo/internal/transport"
)

func newTestIndex(t *testing.T) (*Index, *transport.Memory) {
	t.Helper()
	tr := transport.NewMemory()
	idx := NewIndex("", tr)
	if _, err := idx.Create(context.Background(), CreateConfig{}); err != nil {
		t.Fatal(err)
	}
	return idx, tr
}

func TestIndex_InsertAndGet(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	stored, err := idx.InsertItem(ctx, &Item{Vector: []float64{3, 4}, Metadata: map[string]any{"k": "v"}})
	if err != nil {
		t.Fatal(err)
	}
	if stored.ID == "" {
		t.Error("expected generated id")
	}
	if stored.Norm != 5 {
		t.Errorf("Norm=%v, want 5", stored.Norm)
	}

	got, err := idx.GetItem(ctx, stored.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Metadata["k"] != "v" {
		t.Fatalf("GetItem returned %+v", got)
	}

	missing, err := idx.GetItem(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing id, got %+v", missing)
	}
}

func TestIndex_InsertRequiresVector(t *testing.T) {
	idx, _ := newTestIndex(t)
	if _, err := idx.InsertItem(context.Background(), &Item{ID: "a"}); !errors.Is(err, ErrVectorRequired) {
		t.Errorf("err=%v, want ErrVectorRequired", err)
	}
}

func TestIndex_DuplicateID(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	if _, err := idx.InsertItem(ctx, &Item{ID: "a", Vector: []float64{1, 0}}); err != nil {
		t.Fatal(err)
	}
	_, err := idx.InsertItem(ctx, &Item{ID: "a", Vector: []float64{0, 1}})
	var dup *DuplicateIDError
	if !errors.As(err, &dup) {
		t.Fatalf("err=%v, want DuplicateIDError", err)
	}
	if dup.ID != "a" {
		t.Errorf("dup.ID=%q", dup.ID)
	}
}

func TestIndex_UpsertReplaces(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	if _, err := idx.InsertItem(ctx, &Item{ID: "a", Vector: []float64{1, 0}, Metadata: map[string]any{"v": 1}}); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.UpsertItem(ctx, &Item{ID: "a", Vector: []float64{0, 2}, Metadata: map[string]any{"v": 2}}); err != nil {
		t.Fatal(err)
	}
	items, err := idx.ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item after upsert, got %d", len(items))
	}
	if items[0].Norm != 2 || items[0].Metadata["v"] != 2 {
		t.Errorf("upsert did not replace: %+v", items[0])
	}
}

func TestIndex_BeginUpdateConflict(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	if err := idx.BeginUpdate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := idx.BeginUpdate(ctx); !errors.Is(err, ErrUpdateInProgress) {
		t.Errorf("err=%v, want ErrUpdateInProgress", err)
	}
	idx.CancelUpdate()
	if err := idx.BeginUpdate(ctx); err != nil {
		t.Errorf("BeginUpdate after cancel: %v", err)
	}
}

func TestIndex_EndUpdateWithoutBegin(t *testing.T) {
	idx, _ := newTestIndex(t)
	if err := idx.EndUpdate(context.Background()); !errors.Is(err, ErrNoUpdateInProgress) {
		t.Errorf("err=%v, want ErrNoUpdateInProgress", err)
	}
}

func TestIndex_CancelDiscardsChanges(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	if _, err := idx.InsertItem(ctx, &Item{ID: "keep", Vector: []float64{1}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.BeginUpdate(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.InsertItem(ctx, &Item{ID: "discard", Vector: []float64{2}}); err != nil {
		t.Fatal(err)
	}
	idx.CancelUpdate()

	items, err := idx.ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != "keep" {
		t.Errorf("committed state changed after cancel: %+v", items)
	}
}

func TestIndex_FailedPublishKeepsCommittedState(t *testing.T) {
	idx, tr := newTestIndex(t)
	ctx := context.Background()
	if _, err := idx.InsertItem(ctx, &Item{ID: "a", Vector: []float64{1}}); err != nil {
		t.Fatal(err)
	}

	tr.PublishErr = errors.New("gateway down")
	_, err := idx.InsertItem(ctx, &Item{ID: "b", Vector: []float64{2}})
	if err == nil {
		t.Fatal("expected publish failure to surface")
	}
	tr.PublishErr = nil

	if idx.UpdateOpen() {
		t.Error("one-off update left open after failure")
	}
	items, err := idx.ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != "a" {
		t.Errorf("unacknowledged state adopted: %+v", items)
	}
}

func TestIndex_TransactionBatchesWrites(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	if err := idx.BeginUpdate(ctx); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := idx.InsertItem(ctx, &Item{ID: id, Vector: []float64{1}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.DeleteItem(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if err := idx.EndUpdate(ctx); err != nil {
		t.Fatal(err)
	}
	items, err := idx.ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}

func TestIndex_DeleteMissingIsNoop(t *testing.T) {
	idx, _ := newTestIndex(t)
	if err := idx.DeleteItem(context.Background(), "missing"); err != nil {
		t.Errorf("delete of missing id: %v", err)
	}
}

func TestIndex_MetadataAllowList(t *testing.T) {
	tr := transport.NewMemory()
	idx := NewIndex("", tr)
	ctx := context.Background()
	if _, err := idx.Create(ctx, CreateConfig{MetadataConfig: MetadataConfig{Indexed: []string{"kept"}}}); err != nil {
		t.Fatal(err)
	}
	stored, err := idx.InsertItem(ctx, &Item{
		Vector:   []float64{1},
		Metadata: map[string]any{"kept": "yes", "dropped": "no"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if stored.Metadata["kept"] != "yes" {
		t.Error("indexed key was not retained")
	}
	if _, ok := stored.Metadata["dropped"]; ok {
		t.Error("non-indexed key was retained")
	}
}

func TestIndex_QueryItems(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	if err := idx.BeginUpdate(ctx); err != nil {
		t.Fatal(err)
	}
	vectors := map[string][]float64{
		"x":    {1, 0, 0},
		"близ": {0.9, 0.1, 0},
		"y":    {0, 1, 0},
	}
	for id, v := range vectors {
		if _, err := idx.InsertItem(ctx, &Item{ID: id, Vector: v, Metadata: map[string]any{"group": id}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.EndUpdate(ctx); err != nil {
		t.Fatal(err)
	}

	results, err := idx.QueryItems(ctx, []float64{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Item.ID != "x" {
		t.Errorf("top result should be x, got %s", results[0].Item.ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Score < results[i].Score {
			t.Errorf("results not in descending score order: %v then %v", results[i-1].Score, results[i].Score)
		}
	}

	// Filtered query only sees matching items.
	filtered, err := idx.QueryItems(ctx, []float64{1, 0, 0}, 10, Filter{"group": "y"})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].Item.ID != "y" {
		t.Errorf("filtered query returned %+v", filtered)
	}

	// Out-of-range topK values clamp instead of panicking.
	none, err := idx.QueryItems(ctx, []float64{1, 0, 0}, -1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("negative topK returned %d results", len(none))
	}
	all, err := idx.QueryItems(ctx, []float64{1, 0, 0}, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(vectors) {
		t.Errorf("oversized topK returned %d results, want %d", len(all), len(vectors))
	}
}

func TestIndex_QueryReturnsCopies(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	if _, err := idx.InsertItem(ctx, &Item{ID: "a", Vector: []float64{1, 0}}); err != nil {
		t.Fatal(err)
	}
	results, err := idx.QueryItems(ctx, []float64{1, 0}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	results[0].Item.Vector[0] = 42

	again, err := idx.QueryItems(ctx, []float64{1, 0}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again[0].Item.Vector[0] == 42 {
		t.Error("query result aliases index-owned vector")
	}
}

func TestIndex_Stats(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	if _, err := idx.InsertItem(ctx, &Item{Vector: []float64{1}}); err != nil {
		t.Fatal(err)
	}
	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Version != 1 || stats.Items != 1 {
		t.Errorf("stats=%+v", stats)
	}
}

func TestIndex_LoadMissingName(t *testing.T) {
	tr := transport.NewMemory()
	idx := NewIndex("never-created", tr)
	_, err := idx.ListItems(context.Background())
	if !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("err=%v, want ErrIndexNotFound", err)
	}
	if idx.IsCreated(context.Background()) {
		t.Error("IsCreated should be false for missing name")
	}
}

func TestIndex_ReloadAcrossInstances(t *testing.T) {
	tr := transport.NewMemory()
	first := NewIndex("", tr)
	ctx := context.Background()
	handle, err := first.Create(ctx, CreateConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.InsertItem(ctx, &Item{ID: "a", Vector: []float64{1}}); err != nil {
		t.Fatal(err)
	}

	second := NewIndex(handle.ID, tr)
	items, err := second.ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != "a" {
		t.Errorf("reloaded items=%+v", items)
	}
	// And the reloaded instance can publish again via the embedded handle.
	if _, err := second.InsertItem(ctx, &Item{ID: "b", Vector: []float64{2}}); err != nil {
		t.Fatal(err)
	}
}

func TestIndex_CreateFailureCleansUp(t *testing.T) {
	tr := transport.NewMemory()
	tr.PublishErr = errors.New("no ack")
	idx := NewIndex("", tr)
	if _, err := idx.Create(context.Background(), CreateConfig{}); err == nil {
		t.Fatal("expected create to fail when publish is not acknowledged")
	}
	if idx.IsCreated(context.Background()) {
		t.Error("failed create left index resolvable")
	}
}
