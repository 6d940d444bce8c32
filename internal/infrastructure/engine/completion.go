package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"persona-gateway/internal/domain"
)

type completionRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

type completionResponse struct {
	Content string `json:"content"`
}

// Completion serves a locally hosted model behind a flat text-completion
// endpoint. The prompt is rendered as ChatML and the call is blocking only.
type Completion struct {
	http  *httpTransport
	model string
	stop  string
	topP  float64
	topK  int
}

func NewCompletion(s Settings) *Completion {
	return &Completion{
		http:  newHTTPTransport(s.BaseURL, s.APIKey, s.Timeout),
		model: s.Model,
		stop:  s.StopMarker,
		topP:  s.TopP,
		topK:  s.TopK,
	}
}

func (c *Completion) Name() string         { return KindCompletion }
func (c *Completion) DefaultModel() string { return c.model }

func (c *Completion) Infer(ctx context.Context, prompt *domain.Prompt, opts domain.GenerateOptions) (string, error) {
	req := completionRequest{
		Prompt:      prompt.ChatML(),
		NPredict:    opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        c.topP,
		TopK:        c.topK,
	}
	if c.stop != "" {
		req.Stop = []string{c.stop}
	}

	var resp completionResponse
	if err := c.http.call(ctx, http.MethodPost, "/completion", req, &resp); err != nil {
		return "", err
	}
	text, _ := truncateAtStop(resp.Content, c.stop)
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrUpstreamError)
	}
	return text, nil
}

// InferStream is not supported; callers fall back to re-chunking Infer.
func (c *Completion) InferStream(context.Context, *domain.Prompt, domain.GenerateOptions) (<-chan domain.Snapshot, error) {
	return nil, domain.ErrStreamUnsupported
}

// Models reports the single model the server was started with.
func (c *Completion) Models(ctx context.Context) ([]domain.ModelInfo, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return []domain.ModelInfo{{Name: c.model}}, nil
}

func (c *Completion) Ping(ctx context.Context) error {
	return c.http.call(ctx, http.MethodGet, "/health", nil, nil)
}
