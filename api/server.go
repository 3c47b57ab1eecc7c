// Package api exposes the assistant over HTTP.
//
// Endpoints:
//
//	GET    /health                              liveness probe
//	GET    /ready                               readiness probe
//	GET    /api/conversations                   list conversations
//	POST   /api/conversations                   create conversation
//	GET    /api/conversations/{id}              fetch conversation
//	PATCH  /api/conversations/{id}              rename conversation
//	DELETE /api/conversations/{id}              delete conversation
//	POST   /api/conversations/{id}/fork         fork conversation
//	POST   /api/conversations/{id}/clear        clear message history
//	GET    /api/conversations/{id}/messages     list messages
//	POST   /api/conversations/{id}/messages     append message
//	POST   /api/conversations/{id}/chat         run a completion
//	GET    /api/messages/{id}                   fetch message
//	PATCH  /api/messages/{id}                   edit message content
//	DELETE /api/messages/{id}                   delete message (paired)
//	GET    /api/messages/{id}/versions          list edit snapshots
//	POST   /api/messages/{id}/regenerate        regenerate assistant reply
//	GET    /api/messages/{id}/files             list uploaded files
//	POST   /api/messages/{id}/files             upload and ingest documents
//	POST   /api/search                          search document chunks
//	POST   /api/models                          list endpoint models
//
// Everything under /api requires an authenticated caller; health probes do
// not. Middleware order: recovery, then logging, then authentication.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chatllm/internal/conversation"
	"chatllm/internal/filestore"
	"chatllm/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against clients that stall mid-header.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout = 60 * time.Second

	// WriteTimeout is the maximum duration for writing a response.
	// Completions can be slow, so this is generous.
	WriteTimeout = 180 * time.Second

	// IdleTimeout applies to keep-alive connections between requests.
	IdleTimeout = 120 * time.Second
)

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Pool          *pgxpool.Pool
	Auth          Authenticator
	Conversations *conversation.Service
	Chat          Orchestrator
	Retriever     ContextSearcher
	Models        ModelLister
	Ingest        DocumentIngestor
	Files         FileRecords
	Storage       *filestore.Store
	Logger        log.Logger
}

// Server is the HTTP server for the assistant's REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer creates a server with all routes registered.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	apiMux := http.NewServeMux()
	NewConversationHandler(deps.Conversations, logger).RegisterRoutes(apiMux)
	NewMessageHandler(deps.Conversations, logger).RegisterRoutes(apiMux)
	NewCompletionHandler(deps.Conversations, deps.Chat, logger).RegisterRoutes(apiMux)
	NewFileHandler(deps.Conversations, deps.Files, deps.Storage, deps.Ingest, logger).RegisterRoutes(apiMux)
	NewSearchHandler(deps.Retriever, logger).RegisterRoutes(apiMux)
	NewModelHandler(deps.Models, logger).RegisterRoutes(apiMux)

	mux := http.NewServeMux()
	NewHealthHandler(deps.Pool, logger).RegisterRoutes(mux)
	mux.Handle("/api/", requireAuth(deps.Auth, apiMux, logger))

	return &Server{mux: mux, logger: logger}
}

// Handler returns the routing handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger))
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
