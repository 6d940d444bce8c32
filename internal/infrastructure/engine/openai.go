package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"persona-gateway/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI drives a batching inference server through the OpenAI
// chat-completions API.
type OpenAI struct {
	client openai.Client
	model  string
	stop   string
	topP   float64
}

func NewOpenAI(s Settings) *OpenAI {
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(s.BaseURL, "/") + "/"),
		option.WithHTTPClient(&http.Client{Timeout: s.Timeout}),
		option.WithMaxRetries(0),
	}
	// Self-hosted servers usually accept any key but the SDK insists on one.
	apiKey := s.APIKey
	if apiKey == "" {
		apiKey = "none"
	}
	opts = append(opts, option.WithAPIKey(apiKey))

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  s.Model,
		stop:   s.StopMarker,
		topP:   s.TopP,
	}
}

func (o *OpenAI) Name() string         { return KindOpenAI }
func (o *OpenAI) DefaultModel() string { return o.model }

func (o *OpenAI) params(prompt *domain.Prompt, opts domain.GenerateOptions) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		switch m.Role {
		case domain.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	model := opts.Model
	if model == "" {
		model = o.model
	}
	p := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    msgs,
		Temperature: openai.Float(opts.Temperature),
		MaxTokens:   openai.Int(int64(opts.MaxTokens)),
	}
	if o.topP > 0 {
		p.TopP = openai.Float(o.topP)
	}
	return p
}

func (o *OpenAI) Infer(ctx context.Context, prompt *domain.Prompt, opts domain.GenerateOptions) (string, error) {
	completion, err := o.client.Chat.Completions.New(ctx, o.params(prompt, opts))
	if err != nil {
		return "", classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", domain.ErrUpstreamError)
	}
	text, _ := truncateAtStop(completion.Choices[0].Message.Content, o.stop)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrUpstreamError)
	}
	return text, nil
}

func (o *OpenAI) InferStream(ctx context.Context, prompt *domain.Prompt, opts domain.GenerateOptions) (<-chan domain.Snapshot, error) {
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(prompt, opts))
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, classify(err)
	}

	out := make(chan domain.Snapshot)
	go func() {
		defer close(out)
		defer func() { _ = stream.Close() }()

		var acc strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			acc.WriteString(chunk.Choices[0].Delta.Content)
			text, stopped := stableAtStop(acc.String(), o.stop)
			if !emit(ctx, out, domain.Snapshot{Text: text}) || stopped {
				return
			}
		}
		if err := stream.Err(); err != nil {
			emit(ctx, out, domain.Snapshot{Err: classify(err)})
			return
		}
		text, _ := truncateAtStop(acc.String(), o.stop)
		emit(ctx, out, domain.Snapshot{Text: text})
	}()
	return out, nil
}

func (o *OpenAI) Models(ctx context.Context) ([]domain.ModelInfo, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return nil, classify(err)
	}
	models := make([]domain.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, domain.ModelInfo{Name: m.ID})
	}
	return models, nil
}

func (o *OpenAI) Ping(ctx context.Context) error {
	_, err := o.Models(ctx)
	return err
}
