package application

import (
	"persona-gateway/internal/domain"
)

// MemoryHeader separates the caller's system prompt from the memory text.
const MemoryHeader = "Memory/Context:"

// Composer builds engine prompts. It is pure: the same inputs always give
// the same prompt.
type Composer struct {
	historyWindow int
}

// NewComposer returns a composer that keeps the last historyWindow history
// entries. A non-positive window keeps none.
func NewComposer(historyWindow int) *Composer {
	return &Composer{historyWindow: historyWindow}
}

// HistoryWindow is the number of history entries a prompt may carry.
func (c *Composer) HistoryWindow() int {
	return c.historyWindow
}

// Compose orders the prompt as [system?, history..., user]. Memory is
// appended to the system prompt under MemoryHeader, never replacing it.
func (c *Composer) Compose(message, systemPrompt, memory string, history []domain.ChatMessage) *domain.Prompt {
	recent := c.truncate(history)
	messages := make([]domain.ChatMessage, 0, len(recent)+2)

	if system := SystemText(systemPrompt, memory); system != "" {
		messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: system})
	}
	messages = append(messages, recent...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: message})

	return &domain.Prompt{Messages: messages}
}

// SystemText merges the system prompt and memory.
func SystemText(systemPrompt, memory string) string {
	if memory == "" {
		return systemPrompt
	}
	section := MemoryHeader + "\n" + memory
	if systemPrompt == "" {
		return section
	}
	return systemPrompt + "\n\n" + section
}

// truncate drops entries from the front so at most historyWindow remain.
func (c *Composer) truncate(history []domain.ChatMessage) []domain.ChatMessage {
	if c.historyWindow <= 0 {
		return nil
	}
	if len(history) > c.historyWindow {
		history = history[len(history)-c.historyWindow:]
	}
	out := make([]domain.ChatMessage, len(history))
	copy(out, history)
	return out
}
