// Package retrieval answers "what do the uploaded documents say about this?"
// by embedding a query and searching stored chunks by vector distance.
//
// Retrieval is best-effort: a provider or database failure degrades to an
// empty result instead of failing the caller.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chatllm/internal/log"
	"chatllm/internal/provider"
	"chatllm/internal/store"
)

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, ep provider.Endpoint, text string) ([]float32, error)
}

// ChunkSearcher finds the stored chunks nearest to an embedding.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, embedding []float32, conversationID *uuid.UUID, maxDistance float64, limit int) ([]store.ChunkMatch, error)
}

// Config bounds what a search may return.
type Config struct {
	// Limit is the maximum number of chunks per query.
	Limit int

	// MaxDistance is the inclusive L2 distance cutoff; chunks farther from
	// the query are never returned regardless of Limit.
	MaxDistance float64
}

// Result is the outcome of one retrieval.
//
// Found reports whether any chunk passed the distance cutoff. Failed reports
// that retrieval itself broke (embedding or search error); Found is then
// always false and Context empty.
type Result struct {
	Context string
	Matches []store.ChunkMatch
	Found   bool
	Failed  bool
}

// Retriever embeds queries and formats nearby chunks into a context block.
type Retriever struct {
	cfg      Config
	embedder QueryEmbedder
	searcher ChunkSearcher
	logger   log.Logger
}

// New creates a Retriever.
func New(cfg Config, embedder QueryEmbedder, searcher ChunkSearcher, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{cfg: cfg, embedder: embedder, searcher: searcher, logger: logger}
}

// Retrieve embeds the query and returns the nearest chunks, formatted as a
// single context block, closest first. When conversationID is non-nil only
// chunks from files uploaded in that conversation are considered. Retrieve
// never returns an error: failures are logged and reported through
// Result.Failed so callers can degrade gracefully.
func (r *Retriever) Retrieve(ctx context.Context, ep provider.Endpoint, query string, conversationID *uuid.UUID) Result {
	embedding, err := r.embedder.EmbedOne(ctx, ep, query)
	if err != nil {
		r.logger.Warn("query embedding failed, skipping retrieval", "error", err)
		return Result{Failed: true}
	}

	matches, err := r.searcher.SearchChunks(ctx, embedding, conversationID, r.cfg.MaxDistance, r.cfg.Limit)
	if err != nil {
		r.logger.Warn("chunk search failed, skipping retrieval", "error", err)
		return Result{Failed: true}
	}
	if len(matches) == 0 {
		return Result{}
	}

	return Result{
		Context: FormatContext(matches),
		Matches: matches,
		Found:   true,
	}
}

// FormatContext renders matches into the context block handed to the model:
// one header line per chunk naming its source and distance, followed by the
// chunk text, blocks separated by a blank line.
func FormatContext(matches []store.ChunkMatch) string {
	blocks := make([]string, len(matches))
	for i, m := range matches {
		blocks[i] = fmt.Sprintf("[Source: %s, Distance: %.4f]\n%s",
			m.Chunk.Metadata.Source, m.Distance, m.Chunk.Content)
	}
	return strings.Join(blocks, "\n\n")
}
