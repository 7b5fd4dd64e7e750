package models

import (
	"fmt"
	"strings"
	"time"

	"messaging-service/internal/apperr"
)

// MessageType tags the populated variant of a message's content.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeAudio MessageType = "audio"
	MessageTypeVideo MessageType = "video"
)

// IsFile reports whether the type carries a file URL.
func (t MessageType) IsFile() bool {
	return t == MessageTypeImage || t == MessageTypeAudio || t == MessageTypeVideo
}

// Content is the tagged union stored with every message.
type Content struct {
	Type    MessageType `json:"message_type" bson:"message_type"`
	Text    string      `json:"text" bson:"text"`
	FileURL string      `json:"file_url,omitempty" bson:"file_url,omitempty"`
}

// NewTextContent builds the text variant.
func NewTextContent(text string) Content {
	return Content{Type: MessageTypeText, Text: text}
}

// NewFileContent builds an image, audio or video variant with empty text.
func NewFileContent(kind MessageType, url string) Content {
	return Content{Type: kind, FileURL: url}
}

// Validate checks that exactly one variant is populated.
func (c Content) Validate() error {
	switch {
	case c.Type == MessageTypeText:
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("text content is empty: %w", apperr.ErrValidation)
		}
		if c.FileURL != "" {
			return fmt.Errorf("text content carries a file url: %w", apperr.ErrValidation)
		}
	case c.Type.IsFile():
		if c.FileURL == "" {
			return fmt.Errorf("%s content has no file url: %w", c.Type, apperr.ErrValidation)
		}
		if c.Text != "" {
			return fmt.Errorf("%s content carries text: %w", c.Type, apperr.ErrValidation)
		}
	default:
		return fmt.Errorf("unknown message type %q: %w", c.Type, apperr.ErrValidation)
	}
	return nil
}

// Message is a single entry in a chat's history. Only the visibility sets
// change after creation, and they only grow.
type Message struct {
	ID         int64     `json:"id"`
	ChatID     int64     `json:"chat_id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    Content   `json:"content"`
	SeenBy     []int64   `json:"seen_by"`
	DeletedBy  []int64   `json:"deleted_by"`
	UnsentBy   []int64   `json:"unsent_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks the fields required before a message is stored.
func (m Message) Validate() error {
	switch {
	case m.ChatID == 0:
		return fmt.Errorf("chat id is required: %w", apperr.ErrValidation)
	case m.SenderID == 0:
		return fmt.Errorf("sender id is required: %w", apperr.ErrValidation)
	case m.ReceiverID == 0:
		return fmt.Errorf("receiver id is required: %w", apperr.ErrValidation)
	}
	return m.Content.Validate()
}

// VisibilitySet names one of the per-message user sets.
type VisibilitySet string

const (
	SeenBy    VisibilitySet = "seen_by"
	DeletedBy VisibilitySet = "deleted_by"
	UnsentBy  VisibilitySet = "unsent_by"
)

// Add inserts userID into the named set unless it is already present and
// reports whether the message changed.
func (m *Message) Add(set VisibilitySet, userID int64) bool {
	target := m.set(set)
	if target == nil {
		return false
	}
	for _, id := range *target {
		if id == userID {
			return false
		}
	}
	*target = append(*target, userID)
	return true
}

func (m *Message) set(set VisibilitySet) *[]int64 {
	switch set {
	case SeenBy:
		return &m.SeenBy
	case DeletedBy:
		return &m.DeletedBy
	case UnsentBy:
		return &m.UnsentBy
	}
	return nil
}

// Contains reports membership of userID in the named set.
func (m Message) Contains(set VisibilitySet, userID int64) bool {
	target := m.set(set)
	if target == nil {
		return false
	}
	for _, id := range *target {
		if id == userID {
			return true
		}
	}
	return false
}

// MessageView is a message populated with its sender's summary.
type MessageView struct {
	Message
	Sender *UserSummary `json:"sender,omitempty"`
}
