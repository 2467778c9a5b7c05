package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Embedding.Dimensions != 1024 {
		t.Errorf("default dimensions = %d, want 1024", cfg.Embedding.Dimensions)
	}
	if cfg.Search.ChunkDuration != 30.0 {
		t.Errorf("default chunk duration = %v, want 30", cfg.Search.ChunkDuration)
	}
	if cfg.Search.DefaultTopK != 5 || cfg.Search.MaxTopK != 50 {
		t.Errorf("default top-k = %d/%d, want 5/50", cfg.Search.DefaultTopK, cfg.Search.MaxTopK)
	}
	if cfg.Embedding.Timeout() != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", cfg.Embedding.Timeout())
	}
	if cfg.Embedding.RetryBackoff() != 500*time.Millisecond {
		t.Errorf("default backoff = %v, want 500ms", cfg.Embedding.RetryBackoff())
	}
}

func TestApplyDefaultsKeepsExplicit(t *testing.T) {
	cfg := Config{}
	cfg.Embedding.Dimensions = 384
	cfg.Search.ChunkDuration = 15
	ApplyDefaults(&cfg)
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("explicit dimensions overwritten: %d", cfg.Embedding.Dimensions)
	}
	if cfg.Search.ChunkDuration != 15 {
		t.Errorf("explicit chunk duration overwritten: %v", cfg.Search.ChunkDuration)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 9090
storage:
  database_path: ./data/transcripts.db
embedding:
  provider: mock
  dimensions: 8
search:
  chunk_duration: 10
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Debug {
		t.Error("debug not parsed")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("host default = %q, want localhost", cfg.Server.Host)
	}
	want := filepath.Join(dir, "data/transcripts.db")
	if cfg.Storage.DatabasePath != want {
		t.Errorf("database path = %q, want %q", cfg.Storage.DatabasePath, want)
	}
	if cfg.Embedding.Provider != "mock" || cfg.Embedding.Dimensions != 8 {
		t.Errorf("embedding config not parsed: %+v", cfg.Embedding)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
