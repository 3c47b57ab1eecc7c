package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chatllm/internal/log"
	"chatllm/internal/provider"
	"chatllm/internal/store"
)

// Embedder converts texts into vectors against a caller-chosen endpoint.
type Embedder interface {
	Embed(ctx context.Context, ep provider.Endpoint, texts []string) ([][]float32, error)
}

// ChunkWriter persists embedded chunks.
type ChunkWriter interface {
	InsertChunk(ctx context.Context, chunk *store.DocumentChunk) error
}

// Config sizes the chunking and embedding pipeline.
type Config struct {
	ChunkSize    int
	ChunkOverlap int

	// BatchSize is the number of chunks embedded per provider call.
	BatchSize int

	// MaxConcurrentFiles bounds how many documents IngestAll processes at
	// once. Zero means sequential.
	MaxConcurrentFiles int
}

// Document is one uploaded file's text, ready to be chunked.
type Document struct {
	FileID uuid.UUID
	Source string
	Text   string
}

// Ingestor chunks documents, embeds the chunks in batches and persists them.
type Ingestor struct {
	cfg      Config
	embedder Embedder
	chunks   ChunkWriter
	logger   log.Logger
}

// New creates an Ingestor.
func New(cfg Config, embedder Embedder, chunks ChunkWriter, logger log.Logger) *Ingestor {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingestor{cfg: cfg, embedder: embedder, chunks: chunks, logger: logger}
}

// Ingest chunks one document and persists every chunk whose embedding batch
// succeeded. Chunk indices and positions are assigned from the split, before
// any batch is dispatched, so a skipped batch leaves a gap rather than
// renumbering later chunks. The returned count is the number of chunks
// actually persisted.
func (in *Ingestor) Ingest(ctx context.Context, ep provider.Endpoint, doc Document) (int, error) {
	pieces := Split(doc.Text, in.cfg.ChunkSize, in.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return 0, nil
	}

	persisted := 0
	for start := 0; start < len(pieces); start += in.cfg.BatchSize {
		end := start + in.cfg.BatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Text
		}

		vectors, err := in.embedder.Embed(ctx, ep, texts)
		if err != nil {
			// Skip only this batch; the rest of the document still lands.
			in.logger.Warn("embedding batch failed, skipping",
				"file_id", doc.FileID, "source", doc.Source,
				"batch_start", start, "batch_size", len(batch), "error", err)
			continue
		}

		for i, p := range batch {
			chunk := &store.DocumentChunk{
				FileID:    doc.FileID,
				Content:   p.Text,
				Embedding: vectors[i],
				Metadata: store.ChunkMetadata{
					Source:     doc.Source,
					ChunkIndex: start + i,
					Position:   p.Offset,
				},
			}
			if err := in.chunks.InsertChunk(ctx, chunk); err != nil {
				return persisted, fmt.Errorf("persisting chunk %d of %s: %w", start+i, doc.Source, err)
			}
			persisted++
		}
	}

	in.logger.Info("ingested document",
		"file_id", doc.FileID, "source", doc.Source,
		"chunks", len(pieces), "persisted", persisted)
	return persisted, nil
}

// IngestAll processes several documents, concurrently when configured, and
// returns the total number of chunks persisted across all of them. On error
// the total still reflects the chunks that landed before the failure, so
// callers can report partial ingestion.
func (in *Ingestor) IngestAll(ctx context.Context, ep provider.Endpoint, docs []Document) (int, error) {
	counts := make([]int, len(docs))

	g, ctx := errgroup.WithContext(ctx)
	if in.cfg.MaxConcurrentFiles > 0 {
		g.SetLimit(in.cfg.MaxConcurrentFiles)
	} else {
		g.SetLimit(1)
	}
	for i, doc := range docs {
		g.Go(func() error {
			n, err := in.Ingest(ctx, ep, doc)
			counts[i] = n
			return err
		})
	}
	err := g.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, err
}
