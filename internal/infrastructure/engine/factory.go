package engine

import (
	"fmt"
	"time"

	"persona-gateway/config"
	"persona-gateway/internal/domain"
	"persona-gateway/internal/logger"
)

const (
	KindOllama     = "ollama"
	KindOpenAI     = "openai"
	KindCompletion = "completion"
)

// Settings is the engine-facing slice of the configuration.
type Settings struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	StopMarker string
	TopP       float64
	TopK       int
}

func settingsFrom(cfg config.EngineConfig) Settings {
	return Settings{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		StopMarker: cfg.StopMarker,
		TopP:       cfg.TopP,
		TopK:       cfg.TopK,
	}
}

// New builds the engine selected by cfg.Kind.
func New(cfg config.EngineConfig) (domain.InferenceEngine, error) {
	s := settingsFrom(cfg)

	var eng domain.InferenceEngine
	switch cfg.Kind {
	case KindOllama:
		eng = NewOllama(s)
	case KindOpenAI:
		eng = NewOpenAI(s)
	case KindCompletion:
		eng = NewCompletion(s)
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Kind)
	}

	logger.Info("inference engine configured", "kind", cfg.Kind, "base_url", cfg.BaseURL, "model", cfg.Model)
	return eng, nil
}
