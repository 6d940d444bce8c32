package adapter

import (
	"context"

	"persona-gateway/internal/domain"
	"persona-gateway/internal/logger"
)

// ExchangePublisher hands exchanges to the message queue.
type ExchangePublisher interface {
	SendSaveExchangeEvent(ctx context.Context, ex *domain.ArchivedExchange) error
}

// ArchiveAdapter routes exchanges to the durable archive. With a publisher
// the write goes through the queue and falls back to a direct write when
// publishing fails; without one it always writes directly.
type ArchiveAdapter struct {
	repo      domain.ExchangeArchive
	publisher ExchangePublisher
}

func NewArchiveAdapter(repo domain.ExchangeArchive, publisher ExchangePublisher) *ArchiveAdapter {
	return &ArchiveAdapter{repo: repo, publisher: publisher}
}

// Record never fails the caller; archive problems are only logged.
func (a *ArchiveAdapter) Record(ctx context.Context, ex *domain.ArchivedExchange) {
	if a.publisher != nil {
		err := a.publisher.SendSaveExchangeEvent(ctx, ex)
		if err == nil {
			return
		}
		logger.Error("send exchange to MQ failed, fallback to sync write", "id", ex.ID, "error", err)
	}
	if err := a.repo.Save(ctx, ex); err != nil {
		logger.Error("archive exchange failed", "id", ex.ID, "character_id", ex.CharacterID, "error", err)
	}
}
