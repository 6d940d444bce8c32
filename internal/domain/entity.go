package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) String() string {
	return string(r)
}

// ParseRole coerces free-form input to a known role; anything unrecognised
// becomes RoleUser.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleSystem:
		return RoleSystem
	case RoleAssistant:
		return RoleAssistant
	default:
		return RoleUser
	}
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Exchange is one stored user/assistant round trip.
type Exchange struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"timestamp"`
}

// SavedContext is a full snapshot written through /context/save.
type SavedContext struct {
	SystemPrompt string        `json:"system_prompt"`
	Memory       string        `json:"memory"`
	History      []ChatMessage `json:"history"`
	LastUpdated  time.Time     `json:"last_updated"`
}

// ConversationRecord holds whatever is stored for one key. At most one of
// Exchanges and Context is populated.
type ConversationRecord struct {
	Key       string
	Exchanges []Exchange
	Context   *SavedContext
}

// IsEmpty reports whether nothing is stored for the key.
func (r *ConversationRecord) IsEmpty() bool {
	return len(r.Exchanges) == 0 && r.Context == nil
}

// GenerateOptions are the sampling knobs forwarded to the engine.
type GenerateOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ModelInfo describes one model the engine can serve.
type ModelInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size,omitempty"`
	Modified string `json:"modified,omitempty"`
}

// StreamDelta is one event on a chat stream. Exactly one of the fields is
// meaningful per event.
type StreamDelta struct {
	Token string `json:"token,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// IsTerminal reports whether the event closes the stream.
func (d StreamDelta) IsTerminal() bool {
	return d.Done || d.Error != ""
}
