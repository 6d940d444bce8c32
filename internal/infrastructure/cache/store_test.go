package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"persona-gateway/config"
	"persona-gateway/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:", DefaultMaxExchanges), mr
}

// forEachStore runs fn against every ConversationStore implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, store domain.ConversationStore)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore(DefaultMaxExchanges))
	})
	t.Run("redis", func(t *testing.T) {
		store, _ := newTestRedisStore(t)
		fn(t, store)
	})
}

func TestStoreBoundsExchanges(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domain.ConversationStore) {
		ctx := context.Background()
		for i := 0; i < 60; i++ {
			require.NoError(t, store.Append(ctx, "ada", fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i)))
		}

		rec, err := store.Get(ctx, "ada")
		require.NoError(t, err)
		require.Len(t, rec.Exchanges, 50)
		assert.Equal(t, "u10", rec.Exchanges[0].User)
		assert.Equal(t, "a59", rec.Exchanges[49].Assistant)
		assert.False(t, rec.Exchanges[0].Timestamp.IsZero())
	})
}

func TestStoreUnknownKeyIsEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domain.ConversationStore) {
		rec, err := store.Get(context.Background(), "nobody")
		require.NoError(t, err)
		assert.True(t, rec.IsEmpty())
		assert.NotNil(t, rec.Exchanges)
		assert.Empty(t, rec.Exchanges)
	})
}

func TestStoreLastWriteDecidesShape(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domain.ConversationStore) {
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, "ada", "hi", "hello"))

		saved := domain.SavedContext{
			SystemPrompt: "You are Ada.",
			Memory:       "likes tea",
			History:      []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
		}
		require.NoError(t, store.SaveContext(ctx, "ada", saved))

		rec, err := store.Get(ctx, "ada")
		require.NoError(t, err)
		assert.Empty(t, rec.Exchanges)
		require.NotNil(t, rec.Context)
		assert.Equal(t, "likes tea", rec.Context.Memory)
		assert.Equal(t, saved.History, rec.Context.History)

		require.NoError(t, store.Append(ctx, "ada", "again", "yes"))
		rec, err = store.Get(ctx, "ada")
		require.NoError(t, err)
		assert.Nil(t, rec.Context)
		require.Len(t, rec.Exchanges, 1)
		assert.Equal(t, "again", rec.Exchanges[0].User)
	})
}

func TestStoreSaveContextIsUnbounded(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domain.ConversationStore) {
		history := make([]domain.ChatMessage, 120)
		for i := range history {
			history[i] = domain.ChatMessage{Role: domain.RoleUser, Content: fmt.Sprint(i)}
		}
		require.NoError(t, store.SaveContext(context.Background(), "ada", domain.SavedContext{History: history}))

		rec, err := store.Get(context.Background(), "ada")
		require.NoError(t, err)
		assert.Len(t, rec.Context.History, 120)
	})
}

func TestStoreDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domain.ConversationStore) {
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, "ada", "hi", "hello"))

		deleted, err := store.Delete(ctx, "ada")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = store.Delete(ctx, "ada")
		require.NoError(t, err)
		assert.False(t, deleted)

		rec, err := store.Get(ctx, "ada")
		require.NoError(t, err)
		assert.True(t, rec.IsEmpty())
	})
}

func TestStoreConcurrentAppends(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domain.ConversationStore) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					assert.NoError(t, store.Append(ctx, "shared", fmt.Sprintf("w%d-%d", w, i), "ok"))
				}
			}(w)
		}
		wg.Wait()

		rec, err := store.Get(ctx, "shared")
		require.NoError(t, err)
		assert.Len(t, rec.Exchanges, 40)

		seen := make(map[string]bool)
		for _, ex := range rec.Exchanges {
			seen[ex.User] = true
		}
		assert.Len(t, seen, 40)
	})
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	history := []domain.ChatMessage{{Role: domain.RoleUser, Content: "original"}}
	require.NoError(t, store.SaveContext(ctx, "ada", domain.SavedContext{History: history}))

	history[0].Content = "changed"
	rec, err := store.Get(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "original", rec.Context.History[0].Content)

	rec.Context.History[0].Content = "changed again"
	rec, err = store.Get(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "original", rec.Context.History[0].Content)
}

func TestRedisStoreKeysHaveNoExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	require.NoError(t, store.Append(context.Background(), "ada", "hi", "hello"))

	assert.True(t, mr.Exists("test:conversation:ada"))
	assert.Zero(t, mr.TTL("test:conversation:ada"))
}

func TestRedisStoreSurfacesOutage(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "ada")
	assert.Error(t, err)
	assert.Error(t, store.Append(context.Background(), "ada", "hi", "hello"))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Server().Addr().Port

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Address: host, Port: port})
	require.NoError(t, err)
	_ = client.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), config.RedisConfig{Address: host, Port: port})
	assert.Error(t, err)
}
