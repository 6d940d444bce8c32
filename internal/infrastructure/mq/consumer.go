package mq

import (
	"context"
	"encoding/json"

	"persona-gateway/internal/domain"
	"persona-gateway/internal/infrastructure/persistence/model"
	"persona-gateway/internal/logger"

	rocketmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
)

type Consumer struct {
	client  rocketmq.PushConsumer
	archive domain.ExchangeArchive
	topic   string
}

func NewConsumer(client rocketmq.PushConsumer, archive domain.ExchangeArchive, topic string) *Consumer {
	if topic == "" {
		topic = TopicPersistence
	}
	return &Consumer{client: client, archive: archive, topic: topic}
}

func (c *Consumer) SubscribePersistence() error {
	return c.client.Subscribe(
		c.topic,
		consumer.MessageSelector{Type: consumer.TAG, Expression: TagSaveExchange},
		c.handlePersistenceMessage,
	)
}

func (c *Consumer) handlePersistenceMessage(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		if msg.GetTags() != TagSaveExchange {
			logger.Warn("unknown message tag", "tag", msg.GetTags(), "msg_id", msg.MsgId)
			continue
		}
		if err := c.handleSaveExchange(ctx, msg.Body); err != nil {
			logger.Error("persist exchange failed, will retry", "msg_id", msg.MsgId, "error", err)
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}

// handleSaveExchange drops undecodable bodies; retrying them cannot help.
func (c *Consumer) handleSaveExchange(ctx context.Context, body []byte) error {
	var row model.ExchangeModel
	if err := json.Unmarshal(body, &row); err != nil {
		logger.Error("unmarshal exchange failed", "error", err)
		return nil
	}

	ex := row.ToDomain()
	if err := c.archive.Save(ctx, ex); err != nil {
		return err
	}
	logger.Debug("exchange persisted", "id", ex.ID, "character_id", ex.CharacterID)
	return nil
}

func (c *Consumer) Start() error {
	return c.client.Start()
}

func (c *Consumer) Shutdown() error {
	return c.client.Shutdown()
}
