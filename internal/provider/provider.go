// Package provider calls OpenAI-compatible endpoints for chat completions,
// embeddings and model listing.
//
// The endpoint (base URL, API key, chat model) is chosen per request by the
// caller; the service only fixes the embedding model and vector dimension,
// which must match the database schema. Requests are never retried — a
// provider failure surfaces immediately.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"golang.org/x/time/rate"

	"chatllm/internal/log"
)

// ErrEmptyCompletion indicates the provider returned no choices.
var ErrEmptyCompletion = errors.New("provider returned empty completion")

// Endpoint identifies an OpenAI-compatible provider for a single request.
type Endpoint struct {
	BaseURL string `json:"endpoint_base_url"`
	APIKey  string `json:"endpoint_api_key"`
	Model   string `json:"endpoint_model"`
}

// Message is a single prompt turn sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config controls client behaviour independent of the per-request endpoint.
type Config struct {
	// DefaultModel is used when an Endpoint does not name a chat model.
	DefaultModel string

	// EmbedModel and EmbedDimension define the embedding space. The
	// dimension is passed to the provider so returned vectors always match
	// the vector(N) column width.
	EmbedModel     string
	EmbedDimension int

	// Timeout bounds each provider call.
	Timeout time.Duration

	// EmbedRatePerSec and EmbedRateBurst throttle embedding requests.
	// Zero disables throttling.
	EmbedRatePerSec float64
	EmbedRateBurst  int
}

// Client is a stateless provider client. It is constructed once by the
// composition root and shared; per-request endpoint credentials never
// outlive the call that carries them.
type Client struct {
	cfg     Config
	limiter *rate.Limiter
	logger  log.Logger
}

// New creates a provider client.
func New(cfg Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.EmbedRatePerSec > 0 {
		burst := cfg.EmbedRateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRatePerSec), burst)
	}
	return &Client{cfg: cfg, limiter: limiter, logger: logger}
}

func (c *Client) api(ep Endpoint) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(ep.APIKey),
		option.WithMaxRetries(0),
	}
	if ep.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(ep.BaseURL))
	}
	return openai.NewClient(opts...)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// model resolves the chat model for an endpoint, falling back to the
// configured default.
func (c *Client) model(ep Endpoint) string {
	if ep.Model != "" {
		return ep.Model
	}
	return c.cfg.DefaultModel
}

// Complete sends the assembled prompt to the provider and returns the single
// completion text.
func (c *Client) Complete(ctx context.Context, ep Endpoint, messages []Message) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model(ep)),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	api := c.api(ep)
	resp, err := api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed converts texts into vectors, one per input, order preserved. The
// provider call is a single batch; callers control batch sizing.
func (c *Client) Embed(ctx context.Context, ep Endpoint, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limit: %w", err)
		}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.cfg.EmbedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if c.cfg.EmbedDimension > 0 {
		params.Dimensions = openai.Int(int64(c.cfg.EmbedDimension))
	}

	api := c.api(ep)
	resp, err := api.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data))
	}

	// Responses may arrive out of order; Index restores input order.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}
	return vectors, nil
}

// EmbedOne embeds a single text, the degenerate query case.
func (c *Client) EmbedOne(ctx context.Context, ep Endpoint, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, ep, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// ListModels returns the model ids the endpoint offers.
func (c *Client) ListModels(ctx context.Context, ep Endpoint) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	api := c.api(ep)
	page, err := api.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}

	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
