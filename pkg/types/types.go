// Package types holds the domain values shared by the gateway, the conversation
// store and the personality directory. JSON tags use the internal (lowerCamel)
// convention; the gateway rewrites them to the wire convention.
package types

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one entry of a conversation. CreatedAt is nil when the backend
// record did not carry one.
type Message struct {
	ID        string     `json:"id" yaml:"id"`
	Role      Role       `json:"role" yaml:"role"`
	Content   string     `json:"content" yaml:"content"`
	CreatedAt *Timestamp `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

func (m Message) String() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

// Conversation is the backend record of a conversation.
type Conversation struct {
	ID            string    `json:"id" yaml:"id"`
	PersonalityID string    `json:"personalityId" yaml:"personalityId"`
	CreatedAt     Timestamp `json:"createdAt" yaml:"createdAt"`
	Messages      []Message `json:"messages" yaml:"messages"`
}

// ConversationSummary is an element of the conversation index.
type ConversationSummary struct {
	ID            string    `json:"id" yaml:"id"`
	PersonalityID string    `json:"personalityId" yaml:"personalityId"`
	CreatedAt     Timestamp `json:"createdAt" yaml:"createdAt"`
}

// ConversationPage is the envelope returned by the conversation listing.
// Total, Page and PageSize are zero when the backend omits them.
type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total,omitempty"`
	Page          int                   `json:"page,omitempty"`
	PageSize      int                   `json:"pageSize,omitempty"`
}

// Personality is a named bundle of response settings. Trait values range from
// 1 to 10.
type Personality struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name" jsonschema:"required,minLength=1"`
	Description  string `json:"description" yaml:"description" jsonschema:"maxLength=200"`
	SystemPrompt string `json:"systemPrompt" yaml:"systemPrompt" jsonschema:"required,maxLength=500"`
	Tone         int    `json:"tone" yaml:"tone" jsonschema:"required,minimum=1,maximum=10"`
	Verbosity    int    `json:"verbosity" yaml:"verbosity" jsonschema:"required,minimum=1,maximum=10"`
	Creativity   int    `json:"creativity" yaml:"creativity" jsonschema:"required,minimum=1,maximum=10"`
	Formality    int    `json:"formality" yaml:"formality" jsonschema:"required,minimum=1,maximum=10"`
	IsDefault    bool   `json:"isDefault" yaml:"isDefault"`
}

// ChatbotPrompt is a canned question offered to seed a new conversation.
type ChatbotPrompt struct {
	ID       string `json:"id" yaml:"id"`
	Prompt   string `json:"prompt" yaml:"prompt"`
	Category string `json:"category" yaml:"category"`
}
