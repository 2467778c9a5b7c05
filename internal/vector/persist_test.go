package vector

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func populatedIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := NewIndex(4)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.5, 0.5, 0, 0},
	}
	if _, err := ix.Add(ctx, "v1", testChunks("v1", 2), vectors[:2]); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Add(ctx, "v2", testChunks("v2", 1), vectors[2:]); err != nil {
		t.Fatal(err)
	}
	return ix
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ix := populatedIndex(t)
	path := filepath.Join(t.TempDir(), "index")
	if err := ix.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := NewIndex(4)
	if err != nil {
		t.Fatal(err)
	}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got, want := loaded.Info(), ix.Info(); got != want {
		t.Errorf("info after load = %+v, want %+v", got, want)
	}

	query := []float32{0.3, 0.9, 0, 0}
	ctx := context.Background()
	want, err := ix.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	got, err := loaded.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("result count %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i].EntryID != want[i].EntryID || got[i].Score != want[i].Score || got[i].Text != want[i].Text {
			t.Errorf("result %d differs: %+v vs %+v", i, got[i], want[i])
		}
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	ix, _ := NewIndex(4)
	if err := ix.Load(filepath.Join(t.TempDir(), "index")); err != nil {
		t.Errorf("missing snapshot should not error: %v", err)
	}
	if info := ix.Info(); info.Entries != 0 {
		t.Errorf("expected empty index, got %+v", info)
	}
}

func TestSaveCompactsTombstones(t *testing.T) {
	ix := populatedIndex(t)
	ctx := context.Background()
	ix.Remove(ctx, "v1")
	path := filepath.Join(t.TempDir(), "index")
	if err := ix.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewIndex(4)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	info := loaded.Info()
	if info.Entries != 1 || info.Videos != 1 {
		t.Errorf("loaded info = %+v, want 1 entry / 1 video", info)
	}
	// IDs are preserved and never reused after reload.
	ids, err := loaded.Add(ctx, "v3", testChunks("v3", 1), [][]float32{{0, 0, 1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if ids[0] != 3 {
		t.Errorf("id after reload = %d, want 3", ids[0])
	}
	results, err := loaded.Search(ctx, []float32{0.5, 0.5, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.VideoID == "v1" {
			t.Errorf("compacted entry %d resurrected", r.EntryID)
		}
	}
}

func TestLoadDimensionMismatch(t *testing.T) {
	ix := populatedIndex(t)
	path := filepath.Join(t.TempDir(), "index")
	if err := ix.Save(path); err != nil {
		t.Fatal(err)
	}
	other, _ := NewIndex(8)
	err := other.Load(path)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestLoadMissingVectorFile(t *testing.T) {
	ix := populatedIndex(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "index")
	if err := ix.Save(path); err != nil {
		t.Fatal(err)
	}
	var m manifest
	data, err := os.ReadFile(path + ".json")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, m.VectorFile)); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewIndex(4)
	if !errors.Is(loaded.Load(path), ErrCorruptIndex) {
		t.Error("expected ErrCorruptIndex for missing vector file")
	}
}

func TestLoadTruncatedVectorFile(t *testing.T) {
	ix := populatedIndex(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "index")
	if err := ix.Save(path); err != nil {
		t.Fatal(err)
	}
	var m manifest
	data, _ := os.ReadFile(path + ".json")
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	vecPath := filepath.Join(dir, m.VectorFile)
	raw, err := os.ReadFile(vecPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(vecPath, raw[:len(raw)-10], 0644); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewIndex(4)
	if !errors.Is(loaded.Load(path), ErrCorruptIndex) {
		t.Error("expected ErrCorruptIndex for truncated vector file")
	}
}

func TestLoadSnapshotMismatch(t *testing.T) {
	ix := populatedIndex(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "index")
	if err := ix.Save(path); err != nil {
		t.Fatal(err)
	}
	var m manifest
	data, _ := os.ReadFile(path + ".json")
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	m.SnapshotID = "00000000-0000-0000-0000-000000000000"
	tampered, _ := json.Marshal(&m)
	if err := os.WriteFile(path+".json", tampered, 0644); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewIndex(4)
	if !errors.Is(loaded.Load(path), ErrCorruptIndex) {
		t.Error("expected ErrCorruptIndex for snapshot mismatch")
	}
}

func TestSaveRemovesStaleSnapshots(t *testing.T) {
	ix := populatedIndex(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "index")
	if err := ix.Save(path); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Add(context.Background(), "v3", testChunks("v3", 1), [][]float32{{0, 0, 0, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Save(path); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	vecFiles := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".vec" {
			vecFiles++
		}
	}
	if vecFiles != 1 {
		t.Errorf("found %d vector files, want 1", vecFiles)
	}
}

func TestSearchResultsUnaffectedBySave(t *testing.T) {
	ix := populatedIndex(t)
	ctx := context.Background()
	query := []float32{1, 0, 0, 0}
	before, err := ix.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Save(filepath.Join(t.TempDir(), "index")); err != nil {
		t.Fatal(err)
	}
	after, err := ix.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != len(after) {
		t.Fatalf("result count changed across save")
	}
	for i := range before {
		if before[i].EntryID != after[i].EntryID {
			t.Errorf("ordering changed across save at %d", i)
		}
	}
}
