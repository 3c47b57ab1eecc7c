// Package chat assembles prompts and runs completions. It owns the shape of
// the prompt: retrieved document context first, then the caller's system
// prompt, then history, then the new user message.
//
// The orchestrator has no side effects; persisting the exchange is the
// caller's job.
package chat

import (
	"context"

	"github.com/google/uuid"

	"chatllm/internal/log"
	"chatllm/internal/provider"
	"chatllm/internal/retrieval"
	"chatllm/internal/store"
)

// Messages shown to the model when retrieval finds nothing or breaks. The
// model is told explicitly so it does not hallucinate document citations.
const (
	noContextNotice     = "No relevant context found. Answering based on general knowledge."
	failedContextNotice = "Context retrieval failed. Answering based on general knowledge."
)

const contextPreamble = "Use the following context to answer the question:\n\n"

// Completer runs one chat completion.
type Completer interface {
	Complete(ctx context.Context, ep provider.Endpoint, messages []provider.Message) (string, error)
}

// ContextRetriever finds document context for a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, ep provider.Endpoint, query string, conversationID *uuid.UUID) retrieval.Result
}

// Request is one completion to run.
type Request struct {
	Endpoint provider.Endpoint

	// History is the prior turns, oldest first.
	History []*store.Message

	// NewMessage is the user turn being answered.
	NewMessage string

	// SystemPrompt, when set, is prepended after any retrieved context.
	SystemPrompt string

	// UseContext enables document retrieval for this request.
	UseContext bool

	// Scope restricts retrieval to files of one conversation; nil searches
	// everything the deployment has ingested.
	Scope *uuid.UUID
}

// Response is the completion outcome.
type Response struct {
	Text string

	// UsedContext reports whether retrieved document context actually
	// informed the answer.
	UsedContext bool
}

// Orchestrator turns requests into provider calls.
type Orchestrator struct {
	completer Completer
	retriever ContextRetriever
	logger    log.Logger
}

// New creates an Orchestrator.
func New(completer Completer, retriever ContextRetriever, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{completer: completer, retriever: retriever, logger: logger}
}

// Complete assembles the prompt and runs it. Retrieval failures degrade to a
// no-context answer; only the completion itself can fail the request.
func (o *Orchestrator) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := make([]provider.Message, 0, len(req.History)+3)
	usedContext := false

	if req.UseContext {
		res := o.retriever.Retrieve(ctx, req.Endpoint, req.NewMessage, req.Scope)
		switch {
		case res.Found:
			prompt = append(prompt, provider.Message{
				Role:    "system",
				Content: contextPreamble + res.Context,
			})
			usedContext = true
		case res.Failed:
			prompt = append(prompt, provider.Message{Role: "system", Content: failedContextNotice})
		default:
			prompt = append(prompt, provider.Message{Role: "system", Content: noContextNotice})
		}
	}

	if req.SystemPrompt != "" {
		prompt = append(prompt, provider.Message{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		prompt = append(prompt, provider.Message{Role: string(m.Role), Content: m.Content})
	}
	prompt = append(prompt, provider.Message{Role: "user", Content: req.NewMessage})

	text, err := o.completer.Complete(ctx, req.Endpoint, prompt)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("completion finished",
		"history", len(req.History), "used_context", usedContext, "chars", len(text))
	return &Response{Text: text, UsedContext: usedContext}, nil
}
