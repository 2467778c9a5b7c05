// Package main is the clipseek CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/clipseek/clipseek/internal/config"
	"github.com/clipseek/clipseek/internal/embedding"
	"github.com/clipseek/clipseek/internal/indexer"
	"github.com/clipseek/clipseek/internal/keyword"
	"github.com/clipseek/clipseek/internal/models"
	"github.com/clipseek/clipseek/internal/retrieval"
	"github.com/clipseek/clipseek/internal/server"
	"github.com/clipseek/clipseek/internal/storage"
	"github.com/clipseek/clipseek/internal/vector"
	"github.com/clipseek/clipseek/internal/watcher"
	"github.com/clipseek/clipseek/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/clipseek/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence so running from the project dir
// uses the project's config. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// .env carries the embedding API key in development; missing is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "index":
		runIndex()
	case "remove":
		runRemove()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("clipseek version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	idx := components.Indexer
	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if _, err := idx.IndexTranscriptFile(context.Background(), path); err != nil {
				logger.Warn("watch index transcript failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			base := filepath.Base(path)
			videoID := strings.TrimSuffix(base, filepath.Ext(base))
			if err := idx.DeleteVideo(context.Background(), videoID); err != nil {
				logger.Warn("watch remove video failed", zap.String("path", path), zap.Error(err))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(
		components.Retriever,
		components.Indexer,
		components.Storage,
		components.VectorIndex,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	watchSvc.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags that appear after the query to the front so
// flag.Parse() sees them; the flag package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	topK := fs.Int("top-k", 0, "number of results (0 = configured default)")
	videoID := fs.String("video", "", "restrict results to one video ID")
	minScore := fs.Float64("min-score", 0, "minimum similarity score (0 = configured default)")
	keywordEnabled := fs.Bool("keyword", false, "blend keyword matching into the ranking")
	pad := fs.Float64("pad", -1, "segment padding in seconds (-1 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: clipseek search [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	query := &models.SearchQuery{
		Query:          queryStr,
		TopK:           *topK,
		VideoID:        *videoID,
		MinScore:       *minScore,
		KeywordEnabled: *keywordEnabled,
	}
	if *pad >= 0 {
		query.PadSeconds = pad
	}

	if *serverURL != "" {
		response, err := searchViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		writeSearchResults(response, *outputFormat)
		return
	}

	// Direct access when the server is not running.
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	response, err := components.Retriever.Search(context.Background(), query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	hits := make([]searchHit, len(response.Results))
	for i, r := range response.Results {
		hits[i] = searchHit{SearchResult: r}
	}
	writeSearchResults(&searchResponse{
		Results:   hits,
		Total:     response.Total,
		QueryTime: response.QueryTime,
		Query:     response.Query,
	}, *outputFormat)
}

// searchHit mirrors the server's search response shape.
type searchHit struct {
	*models.SearchResult
	Segment *struct {
		VideoID string  `json:"video_id"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	} `json:"segment,omitempty"`
}

type searchResponse struct {
	Results   []searchHit `json:"results"`
	Total     int         `json:"total"`
	QueryTime int64       `json:"query_time_ms"`
	Query     string      `json:"query"`
}

func writeSearchResults(response *searchResponse, format string) {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(response.Results) == 0 {
			fmt.Println("No results.")
			return
		}
		for i, hit := range response.Results {
			fmt.Printf("%d. [%.3f] %s #%d  %s\n", i+1, hit.Score, hit.VideoID, hit.ChunkIndex,
				utils.Truncate(hit.Text, 100))
			if hit.Segment != nil {
				fmt.Printf("   play %s - %s\n", formatTimestamp(hit.Segment.Start), formatTimestamp(hit.Segment.End))
			} else {
				fmt.Printf("   chunk %s - %s\n", formatTimestamp(hit.Start), formatTimestamp(hit.End))
			}
		}
		fmt.Printf("\n%d result(s) in %dms\n", response.Total, response.QueryTime)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", format)
		os.Exit(1)
	}
}

// formatTimestamp renders seconds as h:mm:ss or m:ss.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*searchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: clipseek index [flags] <transcript.json>...")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	for _, path := range fs.Args() {
		videoID, err := components.Indexer.IndexTranscriptFile(ctx, path)
		if err != nil {
			fmt.Printf("Indexing %s failed: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Transcript indexed: %s (video %s)\n", path, videoID)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			fmt.Printf("Vector index save failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func runRemove() {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: clipseek remove [flags] <video-id>")
		os.Exit(1)
	}
	videoID := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Indexer.DeleteVideo(context.Background(), videoID); err != nil {
		fmt.Printf("Removal failed: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			fmt.Printf("Vector index save failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("Video removed: %s\n", videoID)
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Videos       int64                  `json:"videos"`
	Spans        int64                  `json:"spans"`
	IndexEntries int                    `json:"index_entries"`
	Config       map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		videoCount, err := components.Storage.CountVideos(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count videos failed: %v\n", err)
			os.Exit(1)
		}
		spanCount, err := components.Storage.CountSpans(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count spans failed: %v\n", err)
			os.Exit(1)
		}
		info := components.VectorIndex.Info()
		status = statusResponse{
			Videos:       videoCount,
			Spans:        spanCount,
			IndexEntries: info.Entries,
			Config: map[string]interface{}{
				"embedding_dimensions": cfg.Embedding.Dimensions,
				"chunk_duration":       cfg.Search.ChunkDuration,
				"database_path":        cfg.Storage.DatabasePath,
				"vector_index_path":    cfg.Storage.VectorIndexPath,
				"keyword_index_path":   cfg.Storage.KeywordIndexPath,
			},
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("videos:         %d\n", status.Videos)
		fmt.Printf("spans:          %d\n", status.Spans)
		fmt.Printf("index_entries:  %d\n", status.IndexEntries)
		if len(status.Config) > 0 {
			fmt.Println()
			fmt.Println("# configuration")
			for _, key := range []string{"embedding_dimensions", "chunk_duration", "database_path", "vector_index_path", "keyword_index_path"} {
				if v, ok := status.Config[key]; ok {
					fmt.Printf("%-22s%v\n", key+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  *vector.Index
	KeywordIndex keyword.Index
	Retriever    *retrieval.Service
	Indexer      *indexer.Indexer
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.NewFromConfig(&cfg.Embedding)
	if err != nil {
		logger.Warn("embedder unavailable, falling back to mock", zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}

	vectorIndex, err := vector.NewIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			return nil, fmt.Errorf("failed to load vector index: %w", loadErr)
		}
	}

	var keywordIndex keyword.Index
	if cfg.Storage.KeywordIndexPath != "" {
		keywordIndex, err = keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	} else {
		keywordIndex, err = keyword.NewMemOnlyIndex()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	retOpts := []retrieval.Option{}
	idxOpts := []indexer.Option{}
	if debug {
		retOpts = append(retOpts, retrieval.WithLogger(logger))
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	if cfg.Storage.VectorIndexPath != "" {
		idxOpts = append(idxOpts, indexer.WithAutosave(cfg.Storage.VectorIndexPath))
	}

	retriever := retrieval.NewService(embedder, vectorIndex, keywordIndex, &cfg.Embedding, &cfg.Search, retOpts...)
	idx, err := indexer.NewIndexer(store, embedder, vectorIndex, keywordIndex, &cfg.Search, idxOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}

	logger.Info("components initialized",
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Int("indexed_entries", vectorIndex.Info().Entries))

	return &Components{
		Storage:      store,
		Embedder:     embedder,
		VectorIndex:  vectorIndex,
		KeywordIndex: keywordIndex,
		Retriever:    retriever,
		Indexer:      idx,
	}, nil
}

func printUsage() {
	fmt.Println(`clipseek - semantic search over video transcripts

Usage:
  clipseek server [flags]             Start the HTTP server
  clipseek search [flags] <query>     Search indexed transcripts
  clipseek index [flags] <file>...    Index transcript JSON files
  clipseek remove [flags] <video-id>  Remove a video from the index
  clipseek status [flags]             Show storage and index status
  clipseek version                    Show version
  clipseek help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/clipseek/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --top-k int        Number of results (default from config)
  --video string     Restrict results to one video ID
  --min-score float  Minimum similarity score (default from config)
  --keyword          Blend keyword matching into the ranking
  --pad float        Segment padding in seconds (default from config)
  --output string    Output format: text or json (default: text)

Examples:
  clipseek server
  clipseek search how do transformers work
  clipseek search --video lecture-03 "attention mechanism"
  clipseek index transcripts/lecture-03.json
  clipseek remove lecture-03
  clipseek status --output json`)
}
