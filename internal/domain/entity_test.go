package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"system", RoleSystem},
		{"assistant", RoleAssistant},
		{" Assistant ", RoleAssistant},
		{"user", RoleUser},
		{"", RoleUser},
		{"narrator", RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRole(tt.in))
		})
	}
}

func TestPromptChatML(t *testing.T) {
	p := &Prompt{Messages: []ChatMessage{
		{Role: RoleSystem, Content: "be kind"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "how are you?"},
	}}

	want := "<|im_start|>system\nbe kind<|im_end|>\n" +
		"<|im_start|>user\nhi<|im_end|>\n" +
		"<|im_start|>assistant\nhello<|im_end|>\n" +
		"<|im_start|>user\nhow are you?<|im_end|>\n" +
		"<|im_start|>assistant\n"
	assert.Equal(t, want, p.ChatML())
	assert.Equal(t, "be kind", p.System())
}

func TestPromptWithoutSystem(t *testing.T) {
	p := &Prompt{Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}}

	assert.Equal(t, "", p.System())
	assert.Equal(t, "<|im_start|>user\nhi<|im_end|>\n<|im_start|>assistant\n", p.ChatML())
}

func TestStreamDeltaIsTerminal(t *testing.T) {
	assert.False(t, StreamDelta{Token: "x"}.IsTerminal())
	assert.True(t, StreamDelta{Done: true}.IsTerminal())
	assert.True(t, StreamDelta{Error: "boom"}.IsTerminal())
}

func TestConversationRecordIsEmpty(t *testing.T) {
	assert.True(t, (&ConversationRecord{Key: "k"}).IsEmpty())
	assert.False(t, (&ConversationRecord{Exchanges: []Exchange{{User: "a"}}}).IsEmpty())
	assert.False(t, (&ConversationRecord{Context: &SavedContext{}}).IsEmpty())
}
