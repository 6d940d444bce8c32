package domain

import (
	"context"
	"time"
)

// ConversationStore keeps per-key conversation state. Operations on the same
// key are atomic relative to each other.
type ConversationStore interface {
	Append(ctx context.Context, key, userText, assistantText string) error
	SaveContext(ctx context.Context, key string, saved SavedContext) error
	// Get never fails for an unknown key; it returns an empty record.
	Get(ctx context.Context, key string) (*ConversationRecord, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// ArchivedExchange is an exchange as persisted by the durable archive.
type ArchivedExchange struct {
	ID          string    `json:"id"`
	CharacterID string    `json:"character_id"`
	User        string    `json:"user"`
	Assistant   string    `json:"assistant"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExchangeArchive persists exchanges beyond the bounded store window.
type ExchangeArchive interface {
	Save(ctx context.Context, ex *ArchivedExchange) error
	FindByCharacter(ctx context.Context, characterID string, limit, offset int) ([]*ArchivedExchange, error)
}

// ArchiveWriter accepts exchanges for archiving without blocking the caller
// on durability.
type ArchiveWriter interface {
	Record(ctx context.Context, ex *ArchivedExchange)
}
