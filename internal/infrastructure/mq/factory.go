package mq

import (
	"context"
	"fmt"
	"net"

	"persona-gateway/config"
	"persona-gateway/internal/domain"
	"persona-gateway/internal/logger"

	rocketmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

// InitProducer starts a producer, or returns nil when no name servers are
// configured.
func InitProducer(ctx context.Context, cfg config.RocketMQConfig) (*Producer, error) {
	nameServers := resolveNameServers(cfg.NameServers)
	if len(nameServers) == 0 {
		logger.Info("rocketmq name servers not configured, archive writes are synchronous")
		return nil, nil
	}

	p, err := rocketmq.NewProducer(
		producer.WithNsResolver(primitive.NewPassthroughResolver(nameServers)),
		producer.WithGroupName(cfg.GroupName),
		producer.WithRetry(cfg.MaxRetries),
		producer.WithQueueSelector(producer.NewHashQueueSelector()),
	)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("start rocketmq producer: %w", err)
	}

	// Brokers with autoCreateTopicEnable create the topic on first send.
	topic := topicOrDefault(cfg.Topic)
	if _, err := p.SendSync(ctx, primitive.NewMessage(topic, []byte("init"))); err != nil {
		logger.Warn("topic warm-up failed", "topic", topic, "error", err)
	}

	logger.Info("rocketmq producer started", "name_servers", nameServers, "topic", topic)
	return NewProducer(p, topic), nil
}

// InitConsumer subscribes the archive consumer and starts it, or returns
// nil when no name servers are configured.
func InitConsumer(cfg config.RocketMQConfig, archive domain.ExchangeArchive) (*Consumer, error) {
	nameServers := resolveNameServers(cfg.NameServers)
	if len(nameServers) == 0 {
		return nil, nil
	}

	c, err := rocketmq.NewPushConsumer(
		consumer.WithNsResolver(primitive.NewPassthroughResolver(nameServers)),
		consumer.WithGroupName(cfg.ConsumerGroup),
		consumer.WithRetry(cfg.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq consumer: %w", err)
	}

	mqConsumer := NewConsumer(c, archive, topicOrDefault(cfg.Topic))
	if err := mqConsumer.SubscribePersistence(); err != nil {
		return nil, fmt.Errorf("subscribe persistence topic: %w", err)
	}
	if err := mqConsumer.Start(); err != nil {
		return nil, fmt.Errorf("start rocketmq consumer: %w", err)
	}

	logger.Info("rocketmq consumer started", "group", cfg.ConsumerGroup)
	return mqConsumer, nil
}

func topicOrDefault(topic string) string {
	if topic == "" {
		return TopicPersistence
	}
	return topic
}

// resolveNameServers turns host:port entries into ip:port, which the
// passthrough resolver requires. Unresolvable entries are kept as given.
func resolveNameServers(servers []string) []string {
	var resolved []string
	for _, addr := range servers {
		if addr == "" {
			continue
		}
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			logger.Warn("bad name server address", "addr", addr, "error", err)
			resolved = append(resolved, addr)
			continue
		}
		ips, err := net.LookupHost(host)
		if err != nil || len(ips) == 0 {
			logger.Warn("name server lookup failed", "host", host, "error", err)
			resolved = append(resolved, addr)
			continue
		}
		resolved = append(resolved, net.JoinHostPort(ips[0], port))
	}
	return resolved
}
