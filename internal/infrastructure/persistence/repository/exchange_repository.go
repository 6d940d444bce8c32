package repository

import (
	"context"
	"fmt"

	"persona-gateway/internal/domain"
	"persona-gateway/internal/infrastructure/persistence/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExchangeRepository struct {
	db *gorm.DB
}

func NewExchangeRepository(db *gorm.DB) *ExchangeRepository {
	return &ExchangeRepository{db: db}
}

// Save inserts the exchange. Redelivered exchanges with a known id are
// ignored.
func (r *ExchangeRepository) Save(ctx context.Context, ex *domain.ArchivedExchange) error {
	row := model.ToExchangeModel(ex)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "exchange_id"}}, DoNothing: true}).
		Create(row).Error; err != nil {
		return fmt.Errorf("failed to create exchange: %w", err)
	}
	return nil
}

func (r *ExchangeRepository) FindByCharacter(ctx context.Context, characterID string, limit, offset int) ([]*domain.ArchivedExchange, error) {
	var rows []*model.ExchangeModel
	if err := r.db.WithContext(ctx).
		Where("character_id = ?", characterID).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get exchanges: %w", err)
	}
	exchanges := make([]*domain.ArchivedExchange, len(rows))
	for i, row := range rows {
		exchanges[i] = row.ToDomain()
	}
	return exchanges, nil
}
