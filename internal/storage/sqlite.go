package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/clipseek/clipseek/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		duration REAL NOT NULL,
		language TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS transcript_spans (
		video_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		start_sec REAL NOT NULL,
		end_sec REAL NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (video_id, seq),
		FOREIGN KEY (video_id) REFERENCES videos(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_spans_video_id ON transcript_spans(video_id);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveTranscript stores the video and its spans in one transaction, replacing
// any previous transcript for the same video ID.
func (s *SQLiteStorage) SaveTranscript(ctx context.Context, video *models.Video, spans []models.TranscriptSpan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if video.CreatedAt.IsZero() {
		video.CreatedAt = time.Now()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, video.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO videos (id, filename, duration, language, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		video.ID, video.Filename, video.Duration, video.Language, video.CreatedAt,
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcript_spans (video_id, seq, start_sec, end_sec, text)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, span := range spans {
		if _, err := stmt.ExecContext(ctx, video.ID, i, span.Start, span.End, span.Text); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetVideo returns a video by ID.
func (s *SQLiteStorage) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, duration, language, created_at
		 FROM videos WHERE id = ?`, id,
	).Scan(&video.ID, &video.Filename, &video.Duration, &video.Language, &video.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// GetSpans returns all spans of a video ordered by sequence.
func (s *SQLiteStorage) GetSpans(ctx context.Context, videoID string) ([]models.TranscriptSpan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_sec, end_sec, text FROM transcript_spans
		 WHERE video_id = ? ORDER BY seq`, videoID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spans []models.TranscriptSpan
	for rows.Next() {
		var span models.TranscriptSpan
		if err := rows.Scan(&span.Start, &span.End, &span.Text); err != nil {
			return nil, err
		}
		spans = append(spans, span)
	}
	return spans, rows.Err()
}

// FullText returns the transcript text of a video, spans joined with spaces.
func (s *SQLiteStorage) FullText(ctx context.Context, videoID string) (string, error) {
	spans, err := s.GetSpans(ctx, videoID)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(spans))
	for i, span := range spans {
		parts[i] = span.Text
	}
	return strings.Join(parts, " "), nil
}

// ListVideos returns videos with offset and limit, newest first.
func (s *SQLiteStorage) ListVideos(ctx context.Context, offset, limit int) ([]*models.Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, duration, language, created_at
		 FROM videos ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*models.Video
	for rows.Next() {
		var video models.Video
		if err := rows.Scan(&video.ID, &video.Filename, &video.Duration, &video.Language, &video.CreatedAt); err != nil {
			return nil, err
		}
		videos = append(videos, &video)
	}
	return videos, rows.Err()
}

// DeleteVideo removes a video and, via cascade, its spans.
func (s *SQLiteStorage) DeleteVideo(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// CountVideos returns the total number of videos.
func (s *SQLiteStorage) CountVideos(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&count)
	return count, err
}

// CountSpans returns the total number of transcript spans.
func (s *SQLiteStorage) CountSpans(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcript_spans`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
