package model

import (
	"time"

	"persona-gateway/internal/domain"
)

type ExchangeModel struct {
	ID          uint      `gorm:"primaryKey;autoIncrement;column:id"`
	ExchangeID  string    `gorm:"uniqueIndex:idx_exchange_id;size:36;not null;column:exchange_id"`
	CharacterID string    `gorm:"index:idx_character_created,priority:1;size:255;not null;column:character_id"`
	User        string    `gorm:"type:text;not null;column:user_text"`
	Assistant   string    `gorm:"type:text;not null;column:assistant_text"`
	Model       string    `gorm:"size:255;column:model"`
	CreatedAt   time.Time `gorm:"index:idx_character_created,priority:2;not null;column:created_at"`
}

func (ExchangeModel) TableName() string {
	return "exchanges"
}

func (m *ExchangeModel) ToDomain() *domain.ArchivedExchange {
	return &domain.ArchivedExchange{
		ID:          m.ExchangeID,
		CharacterID: m.CharacterID,
		User:        m.User,
		Assistant:   m.Assistant,
		Model:       m.Model,
		CreatedAt:   m.CreatedAt,
	}
}

func ToExchangeModel(d *domain.ArchivedExchange) *ExchangeModel {
	return &ExchangeModel{
		ExchangeID:  d.ID,
		CharacterID: d.CharacterID,
		User:        d.User,
		Assistant:   d.Assistant,
		Model:       d.Model,
		CreatedAt:   d.CreatedAt,
	}
}
