package models

import (
	"fmt"
	"time"
)

// ChatType distinguishes two-party chats from groups.
type ChatType string

const (
	ChatTypeDirect ChatType = "direct"
	ChatTypeGroup  ChatType = "group"
)

// Chat represents a direct or group conversation.
type Chat struct {
	ID            int64      `json:"id"`
	Type          ChatType   `json:"type"`
	Name          string     `json:"name,omitempty"`
	Participants  []int64    `json:"participants"`
	GroupAdmin    *int64     `json:"group_admin,omitempty"`
	LastMessageID *int64     `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasParticipant reports whether userID belongs to the chat.
func (c Chat) HasParticipant(userID int64) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the other member of a direct chat.
func (c Chat) Counterpart(userID int64) (int64, bool) {
	if c.Type != ChatTypeDirect || len(c.Participants) != 2 || !c.HasParticipant(userID) {
		return 0, false
	}
	if c.Participants[0] == userID {
		return c.Participants[1], true
	}
	return c.Participants[0], true
}

// ChatView is a chat populated with participant and last message details.
type ChatView struct {
	Chat
	ParticipantDetails []UserSummary `json:"participant_details,omitempty"`
	LastMessage        *MessageView  `json:"last_message,omitempty"`
}

// DirectKey canonicalises an unordered user pair.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// UniqueParticipants prepends admin to ids and drops repeats, keeping the
// first occurrence of every user.
func UniqueParticipants(admin int64, ids []int64) []int64 {
	seen := map[int64]struct{}{admin: {}}
	out := []int64{admin}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
