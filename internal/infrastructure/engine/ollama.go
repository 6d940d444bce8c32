package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"persona-gateway/internal/domain"
	"persona-gateway/internal/logger"
)

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name       string `json:"name"`
		Size       int64  `json:"size"`
		ModifiedAt string `json:"modified_at"`
	} `json:"models"`
}

// Ollama talks to a chat-completion daemon over /api/chat and /api/tags.
// Streaming responses are newline-delimited JSON objects carrying deltas,
// which are accumulated into cumulative snapshots.
type Ollama struct {
	http  *httpTransport
	model string
	stop  string
	topP  float64
	topK  int
}

func NewOllama(s Settings) *Ollama {
	return &Ollama{
		http:  newHTTPTransport(s.BaseURL, s.APIKey, s.Timeout),
		model: s.Model,
		stop:  s.StopMarker,
		topP:  s.TopP,
		topK:  s.TopK,
	}
}

func (o *Ollama) Name() string         { return KindOllama }
func (o *Ollama) DefaultModel() string { return o.model }

func (o *Ollama) request(prompt *domain.Prompt, opts domain.GenerateOptions, stream bool) *ollamaChatRequest {
	msgs := make([]ollamaMessage, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		msgs = append(msgs, ollamaMessage{Role: m.Role.String(), Content: m.Content})
	}
	req := &ollamaChatRequest{
		Model:    opts.Model,
		Messages: msgs,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
			TopP:        o.topP,
			TopK:        o.topK,
		},
	}
	if req.Model == "" {
		req.Model = o.model
	}
	if o.stop != "" {
		req.Options.Stop = []string{o.stop}
	}
	return req
}

func (o *Ollama) Infer(ctx context.Context, prompt *domain.Prompt, opts domain.GenerateOptions) (string, error) {
	var resp ollamaChatResponse
	if err := o.http.call(ctx, http.MethodPost, "/api/chat", o.request(prompt, opts, false), &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrUpstreamError, resp.Error)
	}
	text, _ := truncateAtStop(resp.Message.Content, o.stop)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrUpstreamError)
	}
	return text, nil
}

func (o *Ollama) InferStream(ctx context.Context, prompt *domain.Prompt, opts domain.GenerateOptions) (<-chan domain.Snapshot, error) {
	resp, err := o.http.do(ctx, http.MethodPost, "/api/chat", o.request(prompt, opts, true))
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Snapshot)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		var acc strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				logger.Debug("skipping malformed stream line", "engine", KindOllama, "error", err)
				continue
			}
			if chunk.Error != "" {
				emit(ctx, out, domain.Snapshot{Err: fmt.Errorf("%w: %s", domain.ErrUpstreamError, chunk.Error)})
				return
			}

			acc.WriteString(chunk.Message.Content)
			if chunk.Done {
				break
			}
			text, stopped := stableAtStop(acc.String(), o.stop)
			if !emit(ctx, out, domain.Snapshot{Text: text}) || stopped {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, out, domain.Snapshot{Err: classify(err)})
			return
		}
		// The stream ended without a marker; release any held-back tail.
		text, _ := truncateAtStop(acc.String(), o.stop)
		emit(ctx, out, domain.Snapshot{Text: text})
	}()
	return out, nil
}

func (o *Ollama) Models(ctx context.Context) ([]domain.ModelInfo, error) {
	var tags ollamaTagsResponse
	if err := o.http.call(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return nil, err
	}
	models := make([]domain.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, domain.ModelInfo{Name: m.Name, Size: m.Size, Modified: m.ModifiedAt})
	}
	return models, nil
}

func (o *Ollama) Ping(ctx context.Context) error {
	return o.http.call(ctx, http.MethodGet, "/api/tags", nil, nil)
}
