package rag

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/philippgille/chromem-go"
)

// Hit is one ranked search result.
type Hit struct {
	ID      string
	Content string
	Source  string
	Score   float32
}

// Index is a chromem-go collection of embedded chunks.
type Index struct {
	db  *chromem.DB
	col *chromem.Collection
}

// IndexOptions configures NewIndex.
type IndexOptions struct {
	// Collection names the chromem collection. Defaults to "relay".
	Collection string
	Embedder   Embedder
	// PersistDir keeps the collection on disk when set; otherwise the index
	// lives in memory.
	PersistDir string
	Compress   bool
}

// NewIndex opens or creates the collection described by opts.
func NewIndex(opts IndexOptions) (*Index, error) {
	if opts.Embedder == nil {
		return nil, errors.New("rag: index needs an embedder")
	}
	if opts.Collection == "" {
		opts.Collection = "relay"
	}

	db := chromem.NewDB()
	if opts.PersistDir != "" {
		var err error
		db, err = chromem.NewPersistentDB(opts.PersistDir, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("rag: open %s: %w", opts.PersistDir, err)
		}
	}

	col, err := db.GetOrCreateCollection(opts.Collection, nil, opts.Embedder)
	if err != nil {
		return nil, fmt.Errorf("rag: collection %s: %w", opts.Collection, err)
	}

	return &Index{db: db, col: col}, nil
}

// Count returns the number of stored chunks.
func (x *Index) Count() int { return x.col.Count() }

// Add embeds and stores chunks. Chunks are keyed by ID, so adding the same
// chunk twice leaves one copy.
func (x *Index) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:      c.ID,
			Content: c.Content,
			Metadata: map[string]string{
				"source": c.Source,
				"chunk":  strconv.Itoa(c.Index),
			},
		})
	}

	if err := x.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return modeladapter.TransportError("embedding", "add documents", err)
	}
	return nil
}

// Query returns up to k chunks ranked by cosine similarity to query.
func (x *Index) Query(ctx context.Context, query string, k int) ([]Hit, error) {
	if query == "" {
		return nil, errors.New("rag: empty query")
	}
	if k <= 0 {
		k = DefaultTopK
	}
	k = min(k, x.col.Count())
	if k == 0 {
		return nil, nil
	}

	results, err := x.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, modeladapter.TransportError("embedding", "query", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:      r.ID,
			Content: r.Content,
			Source:  r.Metadata["source"],
			Score:   r.Similarity,
		})
	}
	return hits, nil
}

// Ingest splits docs with sp and adds the chunks to x. It returns the
// number of chunks written.
func (x *Index) Ingest(ctx context.Context, docs []Document, sp Splitter) (int, error) {
	chunks, err := sp.SplitDocuments(docs)
	if err != nil {
		return 0, err
	}
	if err := x.Add(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}
