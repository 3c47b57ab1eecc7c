package api

import (
	"context"

	"github.com/google/uuid"

	"chatllm/internal/chat"
	"chatllm/internal/ingest"
	"chatllm/internal/provider"
	"chatllm/internal/retrieval"
	"chatllm/internal/store"
)

// Orchestrator runs chat completions.
type Orchestrator interface {
	Complete(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// ContextSearcher answers similarity queries over ingested documents.
type ContextSearcher interface {
	Retrieve(ctx context.Context, ep provider.Endpoint, query string, conversationID *uuid.UUID) retrieval.Result
}

// ModelLister enumerates the models an endpoint offers.
type ModelLister interface {
	ListModels(ctx context.Context, ep provider.Endpoint) ([]string, error)
}

// DocumentIngestor chunks, embeds and persists uploaded documents.
type DocumentIngestor interface {
	IngestAll(ctx context.Context, ep provider.Endpoint, docs []ingest.Document) (int, error)
}

// FileRecords persists upload metadata.
type FileRecords interface {
	CreateFile(ctx context.Context, messageID uuid.UUID, fileName, storagePath, fileType string, fileSize int64) (*store.MessageFile, error)
	ListFiles(ctx context.Context, messageID uuid.UUID) ([]*store.MessageFile, error)
}
