package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"persona-gateway/internal/domain"
	"persona-gateway/internal/logger"

	"github.com/google/uuid"
)

const (
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 512

	maxTemperature = 2.0
	maxTokensLimit = 8192

	persistTimeout = 5 * time.Second

	defaultArchivePage = 50
	maxArchivePage     = 200
)

// ChatRequest is a chat call after transport decoding. Nil pointers mean
// the caller left the field out.
type ChatRequest struct {
	Message      string
	SystemPrompt string
	CharacterID  string
	Memory       string
	History      []domain.ChatMessage
	Temperature  *float64
	MaxTokens    *int
	Model        string
}

// ChatResult is the outcome of a blocking chat call.
type ChatResult struct {
	Response    string
	CharacterID string
	Model       string
	Timestamp   time.Time
}

// HealthReport summarises upstream connectivity.
type HealthReport struct {
	Status          string
	Engine          string
	Model           string
	Connected       bool
	AvailableModels []string
	Error           string
}

// Options configures a ChatService.
type Options struct {
	// EngineTimeout bounds every engine call, streaming included.
	EngineTimeout time.Duration
	// ProbeTimeout bounds health and model listing calls.
	ProbeTimeout time.Duration
	// RechunkSize is the slice size for engines without native streaming.
	RechunkSize int
}

// ChatService binds the composer, the engine, the relay and the store.
type ChatService struct {
	engine   domain.InferenceEngine
	composer *Composer
	store    domain.ConversationStore
	archive  domain.ArchiveWriter
	reader   domain.ExchangeArchive
	opts     Options
}

func NewChatService(
	engine domain.InferenceEngine,
	composer *Composer,
	store domain.ConversationStore,
	archive domain.ArchiveWriter,
	reader domain.ExchangeArchive,
	opts Options,
) *ChatService {
	if opts.EngineTimeout <= 0 {
		opts.EngineTimeout = 120 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	return &ChatService{
		engine:   engine,
		composer: composer,
		store:    store,
		archive:  archive,
		reader:   reader,
		opts:     opts,
	}
}

// EngineName identifies the configured backend.
func (s *ChatService) EngineName() string {
	return s.engine.Name()
}

// normalize validates the request and fills defaults in place.
func (s *ChatService) normalize(req *ChatRequest) (domain.GenerateOptions, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return domain.GenerateOptions{}, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}

	opts := domain.GenerateOptions{
		Model:       req.Model,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	if opts.Model == "" {
		opts.Model = s.engine.DefaultModel()
	}
	if req.Temperature != nil {
		if *req.Temperature < 0 || *req.Temperature > maxTemperature {
			return opts, fmt.Errorf("%w: temperature must be between 0 and %.1f", domain.ErrValidation, maxTemperature)
		}
		opts.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		if *req.MaxTokens < 1 || *req.MaxTokens > maxTokensLimit {
			return opts, fmt.Errorf("%w: max_tokens must be between 1 and %d", domain.ErrValidation, maxTokensLimit)
		}
		opts.MaxTokens = *req.MaxTokens
	}
	return opts, nil
}

// Chat runs a blocking completion and records the exchange when the request
// names a character.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	opts, err := s.normalize(&req)
	if err != nil {
		return nil, err
	}
	prompt := s.composer.Compose(req.Message, req.SystemPrompt, req.Memory, req.History)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.EngineTimeout)
	defer cancel()

	text, err := s.engine.Infer(callCtx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no response from model %s", domain.ErrUpstreamError, opts.Model)
	}

	s.record(ctx, req.CharacterID, req.Message, text, opts.Model)

	return &ChatResult{
		Response:    text,
		CharacterID: req.CharacterID,
		Model:       opts.Model,
		Timestamp:   time.Now(),
	}, nil
}

// ChatStream starts a streaming completion. Errors before the stream exists
// are returned directly; later failures arrive as the terminal error event.
// The exchange is recorded before the done event is delivered.
func (s *ChatService) ChatStream(ctx context.Context, req ChatRequest) (<-chan domain.StreamDelta, error) {
	opts, err := s.normalize(&req)
	if err != nil {
		return nil, err
	}
	prompt := s.composer.Compose(req.Message, req.SystemPrompt, req.Memory, req.History)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.EngineTimeout)

	snapshots, err := s.engine.InferStream(callCtx, prompt, opts)
	if errors.Is(err, domain.ErrStreamUnsupported) {
		snapshots, err = s.inferRechunked(callCtx, prompt, opts)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	deltas := Relay(ctx, withDeadline(ctx, callCtx, snapshots))
	out := make(chan domain.StreamDelta)

	go func() {
		defer close(out)
		defer cancel()

		var full strings.Builder
		for d := range deltas {
			switch {
			case d.Token != "":
				full.WriteString(d.Token)
			case d.Done:
				s.record(ctx, req.CharacterID, req.Message, full.String(), opts.Model)
			case d.Error != "":
				logger.Warn("stream ended with error", "engine", s.engine.Name(), "error", d.Error)
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// withDeadline forwards snapshots from an engine bound to callCtx. Engines
// stop quietly once callCtx expires, so a close caused by the deadline is
// turned into a timeout error here.
func withDeadline(ctx, callCtx context.Context, in <-chan domain.Snapshot) <-chan domain.Snapshot {
	out := make(chan domain.Snapshot)
	go func() {
		defer close(out)
		for snap := range in {
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
			if snap.Err != nil {
				return
			}
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			select {
			case out <- domain.Snapshot{Err: fmt.Errorf("%w: no response within deadline", domain.ErrUpstreamTimeout)}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

// inferRechunked runs a blocking call and replays the answer as growing
// snapshots.
func (s *ChatService) inferRechunked(ctx context.Context, prompt *domain.Prompt, opts domain.GenerateOptions) (<-chan domain.Snapshot, error) {
	text, err := s.engine.Infer(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	return Rechunk(ctx, text, s.opts.RechunkSize), nil
}

// record stores the exchange for characterID and hands it to the archive.
// Storage failures are logged; they never fail the chat call.
func (s *ChatService) record(ctx context.Context, characterID, userText, assistantText, model string) {
	if characterID == "" || assistantText == "" {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.store.Append(saveCtx, characterID, userText, assistantText); err != nil {
		logger.Error("append exchange failed", "character_id", characterID, "error", err)
	}
	if s.archive != nil {
		s.archive.Record(saveCtx, &domain.ArchivedExchange{
			ID:          uuid.New().String(),
			CharacterID: characterID,
			User:        userText,
			Assistant:   assistantText,
			Model:       model,
			CreatedAt:   time.Now(),
		})
	}
}

// GetContext returns the stored record, empty for unknown keys.
func (s *ChatService) GetContext(ctx context.Context, characterID string) (*domain.ConversationRecord, error) {
	return s.store.Get(ctx, characterID)
}

// SaveContext overwrites the record for characterID with a full snapshot.
func (s *ChatService) SaveContext(ctx context.Context, characterID string, saved domain.SavedContext) error {
	if strings.TrimSpace(characterID) == "" {
		return fmt.Errorf("%w: character_id is required", domain.ErrValidation)
	}
	saved.LastUpdated = time.Now()
	return s.store.SaveContext(ctx, characterID, saved)
}

// DeleteContext removes the record and reports whether one existed.
func (s *ChatService) DeleteContext(ctx context.Context, characterID string) (bool, error) {
	return s.store.Delete(ctx, characterID)
}

// Archive pages through durably archived exchanges, newest first.
func (s *ChatService) Archive(ctx context.Context, characterID string, limit, offset int) ([]*domain.ArchivedExchange, error) {
	if s.reader == nil {
		return nil, domain.ErrArchiveDisabled
	}
	limit, offset = ArchiveWindow(limit, offset)
	return s.reader.FindByCharacter(ctx, characterID, limit, offset)
}

// ArchiveWindow clamps paging parameters: limit falls back to 50 when it is
// outside 1..200 and a negative offset becomes 0.
func ArchiveWindow(limit, offset int) (int, int) {
	if limit <= 0 || limit > maxArchivePage {
		limit = defaultArchivePage
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Models lists the engine's models.
func (s *ChatService) Models(ctx context.Context) ([]domain.ModelInfo, error) {
	probeCtx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()
	return s.engine.Models(probeCtx)
}

// Health probes the engine. It never fails; problems show up in the report.
func (s *ChatService) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Engine: s.engine.Name(),
		Model:  s.engine.DefaultModel(),
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()

	if err := s.engine.Ping(probeCtx); err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		return report
	}
	report.Connected = true

	models, err := s.engine.Models(probeCtx)
	if err != nil {
		report.Status = "degraded"
		report.Error = err.Error()
		return report
	}
	report.Status = "healthy"
	report.AvailableModels = make([]string, 0, len(models))
	for _, m := range models {
		report.AvailableModels = append(report.AvailableModels, m.Name)
	}
	return report
}
