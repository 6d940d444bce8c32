package httpapi

import (
	"time"

	"persona-gateway/internal/domain"
)

// messageDTO accepts history entries leniently; a missing or unknown role
// becomes "user".
type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toMessages(in []messageDTO) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(in))
	for _, m := range in {
		out = append(out, domain.ChatMessage{Role: domain.ParseRole(m.Role), Content: m.Content})
	}
	return out
}

type chatRequest struct {
	Message             string       `json:"message"`
	CharacterID         string       `json:"character_id"`
	SystemPrompt        string       `json:"system_prompt"`
	Memory              string       `json:"memory"`
	ConversationHistory []messageDTO `json:"conversation_history"`
	Model               string       `json:"model"`
	Temperature         *float64     `json:"temperature"`
	MaxTokens           *int         `json:"max_tokens"`
}

type chatResponse struct {
	Response    string    `json:"response"`
	CharacterID string    `json:"character_id,omitempty"`
	ModelUsed   string    `json:"model_used"`
	Timestamp   time.Time `json:"timestamp"`
}

type saveContextRequest struct {
	CharacterID         string       `json:"character_id"`
	SystemPrompt        string       `json:"system_prompt"`
	Memory              string       `json:"memory"`
	ConversationHistory []messageDTO `json:"conversation_history"`
}

type contextResponse struct {
	CharacterID       string               `json:"character_id"`
	ConversationCount int                  `json:"conversation_count"`
	Conversations     []domain.Exchange    `json:"conversations"`
	Context           *domain.SavedContext `json:"context,omitempty"`
}

type healthResponse struct {
	Status            string   `json:"status"`
	Engine            string   `json:"engine"`
	Model             string   `json:"model"`
	UpstreamConnected bool     `json:"upstream_connected"`
	AvailableModels   []string `json:"available_models"`
	Error             string   `json:"error,omitempty"`
}

type archiveResponse struct {
	CharacterID string                     `json:"character_id"`
	Limit       int                        `json:"limit"`
	Offset      int                        `json:"offset"`
	Exchanges   []*domain.ArchivedExchange `json:"exchanges"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}
