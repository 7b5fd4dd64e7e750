// Package memory is an in-process store used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"messaging-service/internal/apperr"
	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
	"messaging-service/internal/repositories"
)

// Store implements the chat, message and user repositories over maps.
type Store struct {
	mu sync.RWMutex

	chats    map[int64]models.Chat
	direct   map[string]int64
	messages map[int64]models.Message
	users    map[int64]models.UserSummary

	nextChatID    int64
	nextMessageID int64

	online   repositories.OnlineChecker
	now      func() time.Time
	chatOpts pagination.Options[models.ChatView]
	msgOpts  pagination.Options[models.MessageView]
}

var (
	_ repositories.ChatRepository    = (*Store)(nil)
	_ repositories.MessageRepository = (*Store)(nil)
	_ repositories.UserDirectory     = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPresence attaches an online checker to user summaries.
func WithPresence(online repositories.OnlineChecker) Option {
	return func(s *Store) { s.online = online }
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		chats:    make(map[int64]models.Chat),
		direct:   make(map[string]int64),
		messages: make(map[int64]models.Message),
		users:    make(map[int64]models.UserSummary),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.chatOpts = repositories.ChatPageOptions(s, s)
	s.msgOpts = repositories.MessagePageOptions(s)
	return s
}

// PutUser inserts or replaces a user summary.
func (s *Store) PutUser(u models.UserSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.IsOnline = false
	s.users[u.ID] = u
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) ListChatsForUser(ctx context.Context, filter repositories.ChatFilter, req pagination.Request) (pagination.Page[models.ChatView], error) {
	name := strings.ToLower(strings.TrimSpace(filter.Name))

	s.mu.RLock()
	var matched []models.ChatView
	for _, c := range s.chats {
		if !c.HasParticipant(filter.UserID) {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(c.Name), name) {
			continue
		}
		matched = append(matched, models.ChatView{Chat: cloneChat(c)})
	}
	s.mu.RUnlock()

	return pagination.Run[models.ChatView](ctx, &sliceSource[models.ChatView]{items: matched, less: lessChat}, req, s.chatOpts)
}

func (s *Store) GetChat(_ context.Context, chatID int64) (models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return cloneChat(c), nil
}

func (s *Store) FindDirectChat(_ context.Context, userA, userB int64) (models.Chat, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.direct[models.DirectKey(userA, userB)]
	if !ok {
		return models.Chat{}, false, nil
	}
	return cloneChat(s.chats[id]), true, nil
}

func (s *Store) CreateDirectChat(_ context.Context, userA, userB int64) (models.Chat, error) {
	key := models.DirectKey(userA, userB)

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.direct[key]; ok {
		return cloneChat(s.chats[id]), nil
	}
	s.nextChatID++
	now := s.now()
	chat := models.Chat{
		ID:           s.nextChatID,
		Type:         models.ChatTypeDirect,
		Participants: []int64{userA, userB},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.chats[chat.ID] = chat
	s.direct[key] = chat.ID
	return cloneChat(chat), nil
}

func (s *Store) CreateGroupChat(_ context.Context, name string, participantIDs []int64, adminID int64) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextChatID++
	now := s.now()
	admin := adminID
	chat := models.Chat{
		ID:           s.nextChatID,
		Type:         models.ChatTypeGroup,
		Name:         name,
		Participants: models.UniqueParticipants(adminID, participantIDs),
		GroupAdmin:   &admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.chats[chat.ID] = chat
	return cloneChat(chat), nil
}

func (s *Store) SetLastMessage(_ context.Context, chatID, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	msg, ok := s.messages[messageID]
	if !ok {
		return nil
	}
	id, at := msg.ID, msg.CreatedAt
	chat.LastMessageID = &id
	chat.LastMessageAt = &at
	chat.UpdatedAt = s.now()
	s.chats[chatID] = chat
	return nil
}

func (s *Store) IsParticipant(_ context.Context, chatID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	return ok && c.HasParticipant(userID), nil
}

func (s *Store) ListMessages(ctx context.Context, filter repositories.MessageFilter, req pagination.Request) (pagination.Page[models.MessageView], error) {
	if err := repositories.ValidateMessageFilter(filter); err != nil {
		return pagination.Page[models.MessageView]{}, err
	}

	s.mu.RLock()
	var matched []models.MessageView
	for _, m := range s.messages {
		if m.ChatID != filter.ChatID {
			continue
		}
		if filter.HideDeletedFor != 0 && m.Contains(models.DeletedBy, filter.HideDeletedFor) {
			continue
		}
		matched = append(matched, models.MessageView{Message: cloneMessage(m)})
	}
	s.mu.RUnlock()

	return pagination.Run[models.MessageView](ctx, &sliceSource[models.MessageView]{items: matched, less: lessMessage}, req, s.msgOpts)
}

func (s *Store) Append(_ context.Context, msg models.Message) (models.Message, error) {
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMessageID++
	now := s.now()
	msg.ID = s.nextMessageID
	msg.SeenBy = []int64{}
	msg.DeletedBy = []int64{}
	msg.UnsentBy = []int64{}
	msg.CreatedAt = now
	msg.UpdatedAt = now
	s.messages[msg.ID] = msg
	return cloneMessage(msg), nil
}

func (s *Store) GetMessage(_ context.Context, messageID int64) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return cloneMessage(m), nil
}

func (s *Store) GetMessages(_ context.Context, ids []int64) (map[int64]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]models.Message, len(ids))
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			out[id] = cloneMessage(m)
		}
	}
	return out, nil
}

func (s *Store) MarkSeen(_ context.Context, messageID, userID int64) (models.Message, error) {
	return s.addToSet(models.SeenBy, messageID, userID)
}

func (s *Store) MarkDeleted(_ context.Context, messageID, userID int64) (models.Message, error) {
	return s.addToSet(models.DeletedBy, messageID, userID)
}

func (s *Store) MarkUnsent(_ context.Context, messageID, userID int64) (models.Message, error) {
	return s.addToSet(models.UnsentBy, messageID, userID)
}

func (s *Store) addToSet(set models.VisibilitySet, messageID, userID int64) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	m = cloneMessage(m)
	if m.Add(set, userID) {
		m.UpdatedAt = s.now()
		s.messages[messageID] = m
	}
	return cloneMessage(m), nil
}

func (s *Store) UserExists(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *Store) GetUserSummary(ctx context.Context, userID int64) (models.UserSummary, error) {
	s.mu.RLock()
	u, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return models.UserSummary{}, repositories.ErrUserNotFound
	}
	out := map[int64]models.UserSummary{u.ID: u}
	_ = repositories.ApplyPresence(ctx, s.online, out)
	return out[u.ID], nil
}

func (s *Store) BulkSummaries(ctx context.Context, ids []int64) (map[int64]models.UserSummary, error) {
	s.mu.RLock()
	out := make(map[int64]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	s.mu.RUnlock()
	_ = repositories.ApplyPresence(ctx, s.online, out)
	return out, nil
}

func cloneChat(c models.Chat) models.Chat {
	c.Participants = slices.Clone(c.Participants)
	if c.GroupAdmin != nil {
		v := *c.GroupAdmin
		c.GroupAdmin = &v
	}
	if c.LastMessageID != nil {
		v := *c.LastMessageID
		c.LastMessageID = &v
	}
	if c.LastMessageAt != nil {
		v := *c.LastMessageAt
		c.LastMessageAt = &v
	}
	return c
}

func cloneMessage(m models.Message) models.Message {
	m.SeenBy = append([]int64{}, m.SeenBy...)
	m.DeletedBy = append([]int64{}, m.DeletedBy...)
	m.UnsentBy = append([]int64{}, m.UnsentBy...)
	return m
}

// sliceSource serves a pre-filtered snapshot through the pagination engine.
type sliceSource[T any] struct {
	items []T
	less  func(a, b T, sort []pagination.SortField) (int, error)
}

func (s *sliceSource[T]) Count(context.Context) (int64, error) {
	return int64(len(s.items)), nil
}

func (s *sliceSource[T]) Fetch(_ context.Context, w pagination.Window) ([]T, error) {
	sorted := slices.Clone(s.items)
	var sortErr error
	slices.SortStableFunc(sorted, func(a, b T) int {
		c, err := s.less(a, b, w.Sort)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return c
	})
	if sortErr != nil {
		return nil, sortErr
	}
	if w.Offset < 0 || w.Limit < 1 {
		return nil, fmt.Errorf("invalid window offset=%d limit=%d: %w", w.Offset, w.Limit, apperr.ErrInvalidArgument)
	}
	if w.Offset >= len(sorted) {
		return []T{}, nil
	}
	end := min(w.Offset+w.Limit, len(sorted))
	return sorted[w.Offset:end], nil
}

func lessChat(a, b models.ChatView, sort []pagination.SortField) (int, error) {
	for _, f := range sort {
		var c int
		switch f.Field {
		case "lastMessageAt":
			// chats without messages sort last in either direction
			switch {
			case a.LastMessageAt == nil && b.LastMessageAt == nil:
				continue
			case a.LastMessageAt == nil:
				return 1, nil
			case b.LastMessageAt == nil:
				return -1, nil
			}
			c = a.LastMessageAt.Compare(*b.LastMessageAt)
		case "createdAt":
			c = a.CreatedAt.Compare(b.CreatedAt)
		case "updatedAt":
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		case "name":
			c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		default:
			return 0, fmt.Errorf("unsupported chat sort field %q", f.Field)
		}
		if f.Desc {
			c = -c
		}
		if c != 0 {
			return c, nil
		}
	}
	return -cmpInt(a.ID, b.ID), nil
}

func lessMessage(a, b models.MessageView, sort []pagination.SortField) (int, error) {
	for _, f := range sort {
		var c int
		switch f.Field {
		case "createdAt":
			c = a.CreatedAt.Compare(b.CreatedAt)
		case "id":
			c = cmpInt(a.ID, b.ID)
		default:
			return 0, fmt.Errorf("unsupported message sort field %q", f.Field)
		}
		if f.Desc {
			c = -c
		}
		if c != 0 {
			return c, nil
		}
	}
	return cmpInt(a.ID, b.ID), nil
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
