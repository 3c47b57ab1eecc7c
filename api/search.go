package api

import (
	"net/http"

	"github.com/google/uuid"

	"chatllm/internal/log"
	"chatllm/internal/provider"
)

// SearchHandler exposes document retrieval directly, without a completion.
type SearchHandler struct {
	retriever ContextSearcher
	logger    log.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(retriever ContextSearcher, logger log.Logger) *SearchHandler {
	return &SearchHandler{retriever: retriever, logger: logger}
}

// RegisterRoutes registers search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.search)
}

// SearchRequest is the body for a similarity search. ConversationID, when
// set, restricts the search to documents uploaded in that conversation.
type SearchRequest struct {
	provider.Endpoint

	Query          string     `json:"query"`
	ConversationID *uuid.UUID `json:"conversation_id"`
}

// SearchResult is one matched chunk.
type SearchResult struct {
	Source     string  `json:"source"`
	Content    string  `json:"content"`
	ChunkIndex int     `json:"chunk_index"`
	Distance   float64 `json:"distance"`
}

// SearchResponse is the search outcome. Context is the same formatted block
// a completion would receive.
type SearchResponse struct {
	Found        bool           `json:"found"`
	Context      string         `json:"context"`
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "query must not be empty")
		return
	}

	res := h.retriever.Retrieve(r.Context(), req.Endpoint, req.Query, req.ConversationID)
	if res.Failed {
		writeError(w, http.StatusBadGateway, "retrieval_failed", "could not search documents")
		return
	}

	results := make([]SearchResult, len(res.Matches))
	for i, m := range res.Matches {
		results[i] = SearchResult{
			Source:     m.Chunk.Metadata.Source,
			Content:    m.Chunk.Content,
			ChunkIndex: m.Chunk.Metadata.ChunkIndex,
			Distance:   m.Distance,
		}
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Found:        res.Found,
		Context:      res.Context,
		Results:      results,
		TotalResults: len(results),
	})
}
