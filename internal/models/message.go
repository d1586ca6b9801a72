package models

import (
	"fmt"
	"slices"
)

// Message represents an individual turn within a conversation. It carries the participant's role and
// the text content exactly as it travels on the relay wire.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the person using the client.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the language model. While a stream is active, the
	// trailing assistant message is the only message whose content changes.
	RoleAssistant Role = "assistant"
	// RoleSystem represents an instruction message, usually placed first in the conversation.
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the roles accepted on the wire.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ValidateMessages checks that every message in the slice carries a known role.
func ValidateMessages(messages []Message) error {
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("message %d has invalid role %q", i, msg.Role)
		}
	}
	return nil
}

// ApplyDelta returns a new conversation with delta appended to the trailing assistant message. If the
// conversation doesn't end with an assistant message, a new one is appended holding only delta. The
// input slice is never modified, so callers can keep handing out earlier snapshots.
func ApplyDelta(messages []Message, delta string) []Message {
	if delta == "" {
		return messages
	}

	last := len(messages) - 1
	if last >= 0 && messages[last].Role == RoleAssistant {
		updated := slices.Clone(messages)
		updated[last].Content += delta
		return updated
	}

	updated := make([]Message, len(messages), len(messages)+1)
	copy(updated, messages)
	return append(updated, Message{Role: RoleAssistant, Content: delta})
}

// HasSystemMessage reports whether any message in the conversation has the system role.
func HasSystemMessage(messages []Message) bool {
	return slices.ContainsFunc(messages, func(m Message) bool {
		return m.Role == RoleSystem
	})
}
