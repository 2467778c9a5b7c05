package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/clipseek/clipseek/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSpans() []models.TranscriptSpan {
	return []models.TranscriptSpan{
		{Text: "hello and welcome", Start: 0, End: 4.5},
		{Text: "today we talk about storage", Start: 4.5, End: 9.2},
		{Text: "thanks for watching", Start: 9.2, End: 12},
	}
}

func TestSaveAndGetTranscript(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	video := &models.Video{ID: "vid-1", Filename: "lecture.mp4", Duration: 12, Language: "en"}
	if err := s.SaveTranscript(ctx, video, testSpans()); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, err := s.GetVideo(ctx, "vid-1")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Filename != "lecture.mp4" || got.Duration != 12 || got.Language != "en" {
		t.Errorf("unexpected video: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	spans, err := s.GetSpans(ctx, "vid-1")
	if err != nil {
		t.Fatalf("GetSpans: %v", err)
	}
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	if spans[1].Text != "today we talk about storage" || spans[1].Start != 4.5 {
		t.Errorf("unexpected span: %+v", spans[1])
	}
}

func TestSaveTranscriptReplaces(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	video := &models.Video{ID: "vid-1", Filename: "v1.mp4", Duration: 12}
	if err := s.SaveTranscript(ctx, video, testSpans()); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	updated := &models.Video{ID: "vid-1", Filename: "v2.mp4", Duration: 5}
	if err := s.SaveTranscript(ctx, updated, []models.TranscriptSpan{
		{Text: "only span", Start: 0, End: 5},
	}); err != nil {
		t.Fatalf("SaveTranscript (replace): %v", err)
	}

	got, err := s.GetVideo(ctx, "vid-1")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Filename != "v2.mp4" {
		t.Errorf("Filename = %s, want v2.mp4", got.Filename)
	}
	spans, err := s.GetSpans(ctx, "vid-1")
	if err != nil {
		t.Fatalf("GetSpans: %v", err)
	}
	if len(spans) != 1 {
		t.Errorf("got %d spans after replace, want 1", len(spans))
	}
}

func TestGetVideoNotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetVideo(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFullText(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	video := &models.Video{ID: "vid-1", Filename: "a.mp4", Duration: 12}
	if err := s.SaveTranscript(ctx, video, testSpans()); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	text, err := s.FullText(ctx, "vid-1")
	if err != nil {
		t.Fatalf("FullText: %v", err)
	}
	want := "hello and welcome today we talk about storage thanks for watching"
	if text != want {
		t.Errorf("FullText = %q, want %q", text, want)
	}
}

func TestDeleteVideoCascades(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	video := &models.Video{ID: "vid-1", Filename: "a.mp4", Duration: 12}
	if err := s.SaveTranscript(ctx, video, testSpans()); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	if err := s.DeleteVideo(ctx, "vid-1"); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}

	if _, err := s.GetVideo(ctx, "vid-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	n, err := s.CountSpans(ctx)
	if err != nil {
		t.Fatalf("CountSpans: %v", err)
	}
	if n != 0 {
		t.Errorf("CountSpans = %d after delete, want 0", n)
	}

	if err := s.DeleteVideo(ctx, "vid-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListAndCount(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, id := range []string{"vid-a", "vid-b", "vid-c"} {
		video := &models.Video{ID: id, Filename: id + ".mp4", Duration: 10}
		if err := s.SaveTranscript(ctx, video, testSpans()[:1]); err != nil {
			t.Fatalf("SaveTranscript(%s): %v", id, err)
		}
	}

	videos, err := s.ListVideos(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(videos) != 3 {
		t.Errorf("got %d videos, want 3", len(videos))
	}

	n, err := s.CountVideos(ctx)
	if err != nil {
		t.Fatalf("CountVideos: %v", err)
	}
	if n != 3 {
		t.Errorf("CountVideos = %d, want 3", n)
	}
	spans, err := s.CountSpans(ctx)
	if err != nil {
		t.Fatalf("CountSpans: %v", err)
	}
	if spans != 3 {
		t.Errorf("CountSpans = %d, want 3", spans)
	}
}
