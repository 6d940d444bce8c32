package cache

import (
	"context"
	"sync"
	"time"

	"persona-gateway/internal/domain"
)

// DefaultMaxExchanges bounds how many exchanges a key keeps.
const DefaultMaxExchanges = 50

type memoryEntry struct {
	mu        sync.Mutex
	exchanges []domain.Exchange
	saved     *domain.SavedContext
	deleted   bool
}

// MemoryStore keeps conversation records in process memory for the life of
// the process. Each key has its own lock so different keys never contend.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	max     int
	now     func() time.Time
}

func NewMemoryStore(maxExchanges int) *MemoryStore {
	if maxExchanges <= 0 {
		maxExchanges = DefaultMaxExchanges
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		max:     maxExchanges,
		now:     time.Now,
	}
}

func (s *MemoryStore) lookup(key string) *memoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key]
}

// lockedEntry returns the entry for key, creating it if needed, with its
// lock held. A concurrently deleted entry is replaced.
func (s *MemoryStore) lockedEntry(key string) *memoryEntry {
	for {
		e := s.lookup(key)
		if e == nil {
			s.mu.Lock()
			if e = s.entries[key]; e == nil {
				e = &memoryEntry{}
				s.entries[key] = e
			}
			s.mu.Unlock()
		}
		e.mu.Lock()
		if !e.deleted {
			return e
		}
		e.mu.Unlock()
	}
}

func (s *MemoryStore) Append(_ context.Context, key, userText, assistantText string) error {
	e := s.lockedEntry(key)
	defer e.mu.Unlock()

	e.saved = nil
	e.exchanges = append(e.exchanges, domain.Exchange{
		User:      userText,
		Assistant: assistantText,
		Timestamp: s.now(),
	})
	if over := len(e.exchanges) - s.max; over > 0 {
		e.exchanges = append([]domain.Exchange(nil), e.exchanges[over:]...)
	}
	return nil
}

func (s *MemoryStore) SaveContext(_ context.Context, key string, saved domain.SavedContext) error {
	e := s.lockedEntry(key)
	defer e.mu.Unlock()

	saved.History = append([]domain.ChatMessage(nil), saved.History...)
	e.saved = &saved
	e.exchanges = nil
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*domain.ConversationRecord, error) {
	rec := &domain.ConversationRecord{Key: key, Exchanges: []domain.Exchange{}}

	e := s.lookup(key)
	if e == nil {
		return rec, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return rec, nil
	}

	rec.Exchanges = append(rec.Exchanges, e.exchanges...)
	if e.saved != nil {
		saved := *e.saved
		saved.History = append([]domain.ChatMessage(nil), e.saved.History...)
		rec.Context = &saved
	}
	return rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = true
	return len(e.exchanges) > 0 || e.saved != nil, nil
}
