package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chatllm/internal/provider"
	"chatllm/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]bool // 1-based call numbers that fail
}

func (f *fakeEmbedder) Embed(_ context.Context, _ provider.Endpoint, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn[f.calls] {
		return nil, errors.New("provider unavailable")
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 0, 0}
	}
	return vectors, nil
}

type fakeChunkWriter struct {
	mu         sync.Mutex
	chunks     []*store.DocumentChunk
	err        error
	failSource string // when set, err applies only to chunks from this source
}

func (f *fakeChunkWriter) InsertChunk(_ context.Context, chunk *store.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil && (f.failSource == "" || chunk.Metadata.Source == f.failSource) {
		return f.err
	}
	f.chunks = append(f.chunks, chunk)
	return nil
}

func TestIngest(t *testing.T) {
	cfg := Config{ChunkSize: 100, ChunkOverlap: 10, BatchSize: 3}

	t.Run("persists every chunk", func(t *testing.T) {
		embedder := &fakeEmbedder{}
		writer := &fakeChunkWriter{}
		in := New(cfg, embedder, writer, nil)

		// 100-byte chunks with stride 90 over 500 bytes: offsets 0..450.
		doc := Document{FileID: uuid.New(), Source: "notes.txt", Text: strings.Repeat("a", 500)}
		n, err := in.Ingest(context.Background(), provider.Endpoint{}, doc)
		require.NoError(t, err)
		assert.Equal(t, 6, n)
		require.Len(t, writer.chunks, 6)

		for i, c := range writer.chunks {
			assert.Equal(t, doc.FileID, c.FileID)
			assert.Equal(t, "notes.txt", c.Metadata.Source)
			assert.Equal(t, i, c.Metadata.ChunkIndex)
			assert.Equal(t, i*90, c.Metadata.Position)
			assert.NotEmpty(t, c.Embedding)
		}
	})

	t.Run("failed batch skips only its own chunks", func(t *testing.T) {
		embedder := &fakeEmbedder{failOn: map[int]bool{1: true}}
		writer := &fakeChunkWriter{}
		in := New(cfg, embedder, writer, nil)

		doc := Document{FileID: uuid.New(), Source: "notes.txt", Text: strings.Repeat("a", 500)}
		n, err := in.Ingest(context.Background(), provider.Endpoint{}, doc)
		require.NoError(t, err)

		// First batch (chunks 0..2) is lost, second batch (3..5) lands.
		assert.Equal(t, 3, n)
		require.Len(t, writer.chunks, 3)
		assert.Equal(t, 3, writer.chunks[0].Metadata.ChunkIndex)
		assert.Equal(t, 270, writer.chunks[0].Metadata.Position)
	})

	t.Run("empty document is a no-op", func(t *testing.T) {
		embedder := &fakeEmbedder{}
		in := New(cfg, embedder, &fakeChunkWriter{}, nil)

		n, err := in.Ingest(context.Background(), provider.Endpoint{}, Document{Source: "empty.txt"})
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, embedder.calls)
	})

	t.Run("persistence failure aborts", func(t *testing.T) {
		writer := &fakeChunkWriter{err: errors.New("disk full")}
		in := New(cfg, &fakeEmbedder{}, writer, nil)

		doc := Document{FileID: uuid.New(), Source: "notes.txt", Text: strings.Repeat("a", 500)}
		_, err := in.Ingest(context.Background(), provider.Endpoint{}, doc)
		assert.Error(t, err)
	})
}

func TestIngestAll(t *testing.T) {
	t.Run("sums chunks across documents", func(t *testing.T) {
		cfg := Config{ChunkSize: 100, ChunkOverlap: 10, BatchSize: 10, MaxConcurrentFiles: 4}
		writer := &fakeChunkWriter{}
		in := New(cfg, &fakeEmbedder{}, writer, nil)

		docs := []Document{
			{FileID: uuid.New(), Source: "a.txt", Text: strings.Repeat("a", 250)},
			{FileID: uuid.New(), Source: "b.txt", Text: strings.Repeat("b", 50)},
			{FileID: uuid.New(), Source: "c.txt", Text: ""},
		}
		total, err := in.IngestAll(context.Background(), provider.Endpoint{}, docs)
		require.NoError(t, err)

		// a.txt splits into 3 chunks (offsets 0, 90, 180), b.txt into 1.
		assert.Equal(t, 4, total)
		assert.Len(t, writer.chunks, 4)
	})

	t.Run("failure still reports chunks already persisted", func(t *testing.T) {
		cfg := Config{ChunkSize: 100, ChunkOverlap: 10, BatchSize: 10}
		writer := &fakeChunkWriter{err: errors.New("disk full"), failSource: "b.txt"}
		in := New(cfg, &fakeEmbedder{}, writer, nil)

		docs := []Document{
			{FileID: uuid.New(), Source: "a.txt", Text: strings.Repeat("a", 250)},
			{FileID: uuid.New(), Source: "b.txt", Text: strings.Repeat("b", 50)},
		}
		total, err := in.IngestAll(context.Background(), provider.Endpoint{}, docs)
		require.Error(t, err)

		// a.txt's 3 chunks landed before b.txt failed.
		assert.Equal(t, 3, total)
		assert.Len(t, writer.chunks, 3)
	})
}
