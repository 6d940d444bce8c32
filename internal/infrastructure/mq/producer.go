package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"persona-gateway/internal/domain"
	"persona-gateway/internal/infrastructure/persistence/model"

	rocketmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
)

type Producer struct {
	client rocketmq.Producer
	topic  string
}

func NewProducer(client rocketmq.Producer, topic string) *Producer {
	if topic == "" {
		topic = TopicPersistence
	}
	return &Producer{client: client, topic: topic}
}

// SendSaveExchangeEvent publishes ex for the archive consumer, keyed by
// character so one character's exchanges share a queue.
func (p *Producer) SendSaveExchangeEvent(ctx context.Context, ex *domain.ArchivedExchange) error {
	data, err := json.Marshal(model.ToExchangeModel(ex))
	if err != nil {
		return fmt.Errorf("marshal exchange: %w", err)
	}
	msg := primitive.NewMessage(p.topic, data)
	msg.WithTag(TagSaveExchange)
	msg.WithKeys([]string{ex.CharacterID})

	result, err := p.client.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("send to %s: %w", p.topic, err)
	}
	if result.Status != primitive.SendOK {
		return fmt.Errorf("send to %s: status=%d", p.topic, result.Status)
	}
	return nil
}

func (p *Producer) Shutdown() error {
	return p.client.Shutdown()
}
