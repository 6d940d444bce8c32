package main

import (
	"context"
	"fmt"

	"persona-gateway/config"
	"persona-gateway/internal/application"
	"persona-gateway/internal/domain"
	"persona-gateway/internal/infrastructure/adapter"
	"persona-gateway/internal/infrastructure/cache"
	"persona-gateway/internal/infrastructure/engine"
	"persona-gateway/internal/infrastructure/mq"
	"persona-gateway/internal/infrastructure/persistence/db"
	"persona-gateway/internal/infrastructure/persistence/repository"
	"persona-gateway/internal/infrastructure/registry"
	"persona-gateway/internal/interfaces/grpcapi"
	"persona-gateway/internal/interfaces/httpapi"
	"persona-gateway/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

type gateway struct {
	router   *gin.Engine
	grpc     *grpcapi.HealthServer
	registry *registry.ServiceManager
	closers  []func() error
}

func (g *gateway) close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

// build wires the gateway from configuration. Optional pieces (redis rate
// limiting, the archive, consul) are skipped with a log line when they are
// not configured.
func build(ctx context.Context, cfg *config.AppConfig) (g *gateway, err error) {
	g = &gateway{}
	defer func() {
		if err != nil {
			g.close()
		}
	}()

	eng, err := engine.New(cfg.Engine)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			if cfg.Store.Backend == "redis" {
				return nil, err
			}
			logger.Warn("redis unavailable, rate limiting disabled", "error", err)
			redisClient, err = nil, nil
		} else {
			g.closers = append(g.closers, redisClient.Close)
		}
	}

	var store domain.ConversationStore
	switch cfg.Store.Backend {
	case "redis":
		store = cache.NewRedisStore(redisClient, cfg.Redis.Prefix, cfg.Store.MaxExchanges)
	default:
		store = cache.NewMemoryStore(cfg.Store.MaxExchanges)
	}
	logger.Info("conversation store ready", "backend", cfg.Store.Backend, "max_exchanges", cfg.Store.MaxExchanges)

	var (
		writer domain.ArchiveWriter
		reader domain.ExchangeArchive
	)
	if cfg.Archive.Enabled {
		writer, reader, err = buildArchive(ctx, cfg, g)
		if err != nil {
			return nil, err
		}
	}

	chat := application.NewChatService(
		eng,
		application.NewComposer(cfg.Engine.HistoryWindow),
		store,
		writer,
		reader,
		application.Options{
			EngineTimeout: cfg.Engine.Timeout,
			ProbeTimeout:  cfg.Engine.ProbeTimeout,
			RechunkSize:   cfg.Engine.RechunkSize,
		},
	)

	handler := httpapi.NewHandler(chat, httpapi.Info{Name: cfg.Server.Name, Version: cfg.Server.Version})
	g.router = httpapi.NewRouter(handler, httpapi.RouterDeps{
		Server:    cfg.Server,
		Auth:      cfg.Auth,
		Limiter:   redisClient,
		RateLimit: cfg.Redis.RateLimitQPS,
	})

	if cfg.Server.GRPCPort > 0 {
		g.grpc = grpcapi.NewHealthServer(cfg.Server.Name, chat, 0)
	}

	if cfg.Consul.Enabled {
		ip, err := registry.GetLocalIP()
		if err != nil {
			return nil, fmt.Errorf("resolve local ip: %w", err)
		}
		g.registry, err = registry.NewServiceManager(cfg.Consul, registry.GatewayService(cfg.Server, ip))
		if err != nil {
			return nil, fmt.Errorf("init consul: %w", err)
		}
	}

	return g, nil
}

// buildArchive opens the database and, when rocketmq is configured, routes
// archive writes through the queue.
func buildArchive(ctx context.Context, cfg *config.AppConfig, g *gateway) (domain.ArchiveWriter, domain.ExchangeArchive, error) {
	gdb, err := db.InitGorm(cfg.Archive)
	if err != nil {
		return nil, nil, err
	}
	g.closers = append(g.closers, func() error { return db.Close(gdb) })
	repo := repository.NewExchangeRepository(gdb)

	var publisher adapter.ExchangePublisher
	producer, err := mq.InitProducer(ctx, cfg.RocketMQ)
	if err != nil {
		logger.Warn("rocketmq producer unavailable, archive writes are synchronous", "error", err)
	} else if producer != nil {
		publisher = producer
		g.closers = append(g.closers, producer.Shutdown)

		consumer, err := mq.InitConsumer(cfg.RocketMQ, repo)
		if err != nil {
			return nil, nil, err
		}
		if consumer != nil {
			g.closers = append(g.closers, consumer.Shutdown)
		}
	}

	logger.Info("exchange archive enabled", "driver", cfg.Archive.Driver, "queued", publisher != nil)
	return adapter.NewArchiveAdapter(repo, publisher), repo, nil
}
