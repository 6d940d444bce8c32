package domain

import "strings"

const (
	chatMLStart = "<|im_start|>"
	chatMLEnd   = "<|im_end|>"
)

// Prompt is a composed model input. Messages is the structured form;
// ChatML renders the equivalent flat form.
type Prompt struct {
	Messages []ChatMessage
}

// System returns the system text, or "" when the prompt has none.
func (p *Prompt) System() string {
	if len(p.Messages) > 0 && p.Messages[0].Role == RoleSystem {
		return p.Messages[0].Content
	}
	return ""
}

// ChatML renders the prompt with per-role delimiters, ending with an open
// assistant turn.
func (p *Prompt) ChatML() string {
	parts := make([]string, 0, len(p.Messages)+1)
	for _, m := range p.Messages {
		parts = append(parts, chatMLStart+m.Role.String()+"\n"+m.Content+chatMLEnd)
	}
	parts = append(parts, chatMLStart+RoleAssistant.String()+"\n")
	return strings.Join(parts, "\n")
}
