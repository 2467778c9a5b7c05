package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// chunkDoc is the document shape stored in Bleve. Only text participates in
// scoring; video_id is a keyword field used for per-video deletion.
type chunkDoc struct {
	Text    string `json:"text"`
	VideoID string `json:"video_id"`
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so queries match
	// the exact spoken words.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("video_id", keywordFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// opened and reused; remove the directory to force a full re-index after a
// mapping change.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemOnlyIndex creates an in-memory Bleve index. Used when no keyword index
// path is configured and in tests.
func NewMemOnlyIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces the chunk document for entryID.
func (b *BleveIndex) Index(ctx context.Context, entryID int64, videoID, text string) error {
	return b.index.Index(strconv.FormatInt(entryID, 10), &chunkDoc{Text: text, VideoID: videoID})
}

// Search runs a match query over chunk text and returns up to limit results.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DeleteVideo removes every chunk document whose video_id matches videoID.
// Deleting an unknown video is a no-op.
func (b *BleveIndex) DeleteVideo(ctx context.Context, videoID string) error {
	q := bleve.NewTermQuery(videoID)
	q.SetField("video_id")

	// Page through matches; deleting while iterating is safe because each
	// request is a fresh snapshot starting from offset 0.
	const pageSize = 1000
	for {
		req := bleve.NewSearchRequest(q)
		req.Size = pageSize
		results, err := b.index.Search(req)
		if err != nil {
			return fmt.Errorf("Bleve video lookup failed: %w", err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete video chunks: %w", err)
		}
		if len(results.Hits) < pageSize {
			return nil
		}
	}
}

// DocCount returns the total number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
