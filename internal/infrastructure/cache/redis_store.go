package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"persona-gateway/config"
	"persona-gateway/internal/domain"

	"github.com/go-redis/redis/v8"
)

// appendScript pushes one exchange, trims the list to the newest ARGV[2]
// entries and drops any saved context for the key, atomically.
var appendScript = redis.NewScript(`
redis.call('DEL', KEYS[2])
redis.call('RPUSH', KEYS[1], ARGV[1])
redis.call('LTRIM', KEYS[1], -tonumber(ARGV[2]), -1)
return redis.call('LLEN', KEYS[1])
`)

// NewRedisClient connects and pings the configured server.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps conversation records in redis without expiry. Exchanges
// live in a list, saved contexts in a plain string key.
type RedisStore struct {
	client *redis.Client
	prefix string
	max    int
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, prefix string, maxExchanges int) *RedisStore {
	if maxExchanges <= 0 {
		maxExchanges = DefaultMaxExchanges
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		max:    maxExchanges,
		now:    time.Now,
	}
}

func (r *RedisStore) Append(ctx context.Context, key, userText, assistantText string) error {
	data, err := json.Marshal(domain.Exchange{
		User:      userText,
		Assistant: assistantText,
		Timestamp: r.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal exchange: %w", err)
	}
	keys := []string{r.exchangesKey(key), r.contextKey(key)}
	if err := appendScript.Run(ctx, r.client, keys, data, r.max).Err(); err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	return nil
}

func (r *RedisStore) SaveContext(ctx context.Context, key string, saved domain.SavedContext) error {
	data, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.exchangesKey(key))
		pipe.Set(ctx, r.contextKey(key), data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (*domain.ConversationRecord, error) {
	var (
		listCmd *redis.StringSliceCmd
		ctxCmd  *redis.StringCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		listCmd = pipe.LRange(ctx, r.exchangesKey(key), 0, -1)
		ctxCmd = pipe.Get(ctx, r.contextKey(key))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	rec := &domain.ConversationRecord{Key: key, Exchanges: []domain.Exchange{}}
	for _, raw := range listCmd.Val() {
		var ex domain.Exchange
		if err := json.Unmarshal([]byte(raw), &ex); err != nil {
			continue
		}
		rec.Exchanges = append(rec.Exchanges, ex)
	}

	raw, err := ctxCmd.Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("get context: %w", err)
	default:
		var saved domain.SavedContext
		if err := json.Unmarshal([]byte(raw), &saved); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
		rec.Context = &saved
	}
	return rec, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, r.exchangesKey(key), r.contextKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) exchangesKey(key string) string {
	return fmt.Sprintf("%sconversation:%s", r.prefix, key)
}

func (r *RedisStore) contextKey(key string) string {
	return fmt.Sprintf("%scontext:%s", r.prefix, key)
}
