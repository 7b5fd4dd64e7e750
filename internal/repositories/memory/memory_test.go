package memory

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperr"
	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
	"messaging-service/internal/repositories"
)

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newStore(t *testing.T) *Store {
	t.Helper()
	clock := &tickingClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(WithClock(clock.Now))
	for id, name := range map[int64]string{1: "alice", 2: "bob", 3: "carol", 4: "dave"} {
		s.PutUser(models.UserSummary{ID: id, DisplayName: name})
	}
	return s
}

func appendText(t *testing.T, s *Store, chatID, sender, receiver int64, text string) models.Message {
	t.Helper()
	msg, err := s.Append(context.Background(), models.Message{
		ChatID: chatID, SenderID: sender, ReceiverID: receiver, Content: models.NewTextContent(text),
	})
	require.NoError(t, err)
	return msg
}

func TestCreateDirectChatIsOrderIndependent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, err := s.CreateDirectChat(ctx, 1, 2)
	require.NoError(t, err)
	second, err := s.CreateDirectChat(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	found, ok, err := s.FindDirectChat(ctx, 2, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, []int64{1, 2}, found.Participants)
}

func TestConcurrentDirectChatCreationYieldsOneChat(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := int64(1), int64(2)
			if i%2 == 1 {
				a, b = b, a
			}
			chat, err := s.CreateDirectChat(ctx, a, b)
			assert.NoError(t, err)
			ids[i] = chat.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	page, err := s.ListChatsForUser(ctx, repositories.ChatFilter{UserID: 1}, pagination.Request{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalResults)
}

func TestCreateGroupChatDedupesParticipants(t *testing.T) {
	s := newStore(t)
	chat, err := s.CreateGroupChat(context.Background(), "team", []int64{2, 1, 3, 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ChatTypeGroup, chat.Type)
	assert.Equal(t, []int64{1, 2, 3}, chat.Participants)
	require.NotNil(t, chat.GroupAdmin)
	assert.Equal(t, int64(1), *chat.GroupAdmin)
}

func TestListChatsOrdersByLastActivity(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	quiet, err := s.CreateDirectChat(ctx, 1, 4)
	require.NoError(t, err)
	older, err := s.CreateDirectChat(ctx, 1, 2)
	require.NoError(t, err)
	newer, err := s.CreateDirectChat(ctx, 1, 3)
	require.NoError(t, err)

	m1 := appendText(t, s, older.ID, 1, 2, "first")
	require.NoError(t, s.SetLastMessage(ctx, older.ID, m1.ID))
	m2 := appendText(t, s, newer.ID, 3, 1, "second")
	require.NoError(t, s.SetLastMessage(ctx, newer.ID, m2.ID))

	page, err := s.ListChatsForUser(ctx, repositories.ChatFilter{UserID: 1}, pagination.Request{})
	require.NoError(t, err)
	require.Len(t, page.Results, 3)
	assert.Equal(t, []int64{newer.ID, older.ID, quiet.ID},
		[]int64{page.Results[0].ID, page.Results[1].ID, page.Results[2].ID})

	top := page.Results[0]
	require.NotNil(t, top.LastMessage)
	assert.Equal(t, "second", top.LastMessage.Content.Text)
	require.NotNil(t, top.LastMessage.Sender)
	assert.Equal(t, "carol", top.LastMessage.Sender.DisplayName)
	assert.Len(t, top.ParticipantDetails, 2)
}

func TestListChatsFiltersByName(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.CreateGroupChat(ctx, "Weekend Plans", []int64{2}, 1)
	require.NoError(t, err)
	_, err = s.CreateGroupChat(ctx, "work", []int64{3}, 1)
	require.NoError(t, err)

	page, err := s.ListChatsForUser(ctx, repositories.ChatFilter{UserID: 1, Name: "weekend"}, pagination.Request{})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Weekend Plans", page.Results[0].Name)

	page, err = s.ListChatsForUser(ctx, repositories.ChatFilter{UserID: 4}, pagination.Request{})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.NotNil(t, page.Results)
}

func TestSetLastMessageIgnoresUnknownChat(t *testing.T) {
	s := newStore(t)
	assert.NoError(t, s.SetLastMessage(context.Background(), 99, 1))
}

func TestListMessagesPagination(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	chat, err := s.CreateDirectChat(ctx, 1, 2)
	require.NoError(t, err)
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		appendText(t, s, chat.ID, 1, 2, text)
	}

	page, err := s.ListMessages(ctx, repositories.MessageFilter{ChatID: chat.ID}, pagination.Request{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.TotalResults)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Results, 2)
	assert.Equal(t, "c", page.Results[0].Content.Text)
	assert.Equal(t, "d", page.Results[1].Content.Text)
	require.NotNil(t, page.Results[0].Sender)
	assert.Equal(t, "alice", page.Results[0].Sender.DisplayName)

	page, err = s.ListMessages(ctx, repositories.MessageFilter{ChatID: chat.ID}, pagination.Request{SortBy: "createdAt:desc", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "e", page.Results[0].Content.Text)
}

func TestListMessagesRejectsOutOfRangePage(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	chat, err := s.CreateDirectChat(ctx, 1, 2)
	require.NoError(t, err)
	appendText(t, s, chat.ID, 1, 2, "hi")

	_, err = s.ListMessages(ctx, repositories.MessageFilter{ChatID: chat.ID}, pagination.Request{Page: math.MaxInt, Limit: 10})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = s.ListChatsForUser(ctx, repositories.ChatFilter{UserID: 1}, pagination.Request{Page: math.MaxInt, Limit: 3})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestSliceSourceRejectsNegativeOffset(t *testing.T) {
	src := &sliceSource[int]{items: []int{1, 2}, less: func(a, b int, _ []pagination.SortField) (int, error) { return a - b, nil }}
	_, err := src.Fetch(context.Background(), pagination.Window{Offset: -10, Limit: 10})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestListMessagesRequiresChat(t *testing.T) {
	s := newStore(t)
	_, err := s.ListMessages(context.Background(), repositories.MessageFilter{}, pagination.Request{})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestListMessagesRejectsUnknownSortField(t *testing.T) {
	s := newStore(t)
	_, err := s.ListMessages(context.Background(), repositories.MessageFilter{ChatID: 1}, pagination.Request{SortBy: "text:asc"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestMarkOperationsAreIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	chat, err := s.CreateDirectChat(ctx, 1, 2)
	require.NoError(t, err)
	msg := appendText(t, s, chat.ID, 1, 2, "hi")

	seen, err := s.MarkSeen(ctx, msg.ID, 2)
	require.NoError(t, err)
	again, err := s.MarkSeen(ctx, msg.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, again.SeenBy)
	assert.Equal(t, seen.UpdatedAt, again.UpdatedAt)

	deleted, err := s.MarkDeleted(ctx, msg.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, deleted.DeletedBy)
	unsent, err := s.MarkUnsent(ctx, msg.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, unsent.UnsentBy)
	assert.Equal(t, []int64{2}, unsent.SeenBy)

	_, err = s.MarkSeen(ctx, 404, 2)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestHideDeletedFor(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	chat, err := s.CreateDirectChat(ctx, 1, 2)
	require.NoError(t, err)
	hidden := appendText(t, s, chat.ID, 1, 2, "oops")
	appendText(t, s, chat.ID, 1, 2, "kept")
	_, err = s.MarkDeleted(ctx, hidden.ID, 2)
	require.NoError(t, err)

	page, err := s.ListMessages(ctx, repositories.MessageFilter{ChatID: chat.ID, HideDeletedFor: 2}, pagination.Request{})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "kept", page.Results[0].Content.Text)

	page, err = s.ListMessages(ctx, repositories.MessageFilter{ChatID: chat.ID, HideDeletedFor: 1}, pagination.Request{})
	require.NoError(t, err)
	assert.Len(t, page.Results, 2)
}

func TestAppendRejectsInvalidContent(t *testing.T) {
	s := newStore(t)
	_, err := s.Append(context.Background(), models.Message{ChatID: 1, SenderID: 1, ReceiverID: 2, Content: models.NewTextContent("")})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

type staticPresence map[int64]bool

func (p staticPresence) AreOnline(_ context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = p[id]
	}
	return out, nil
}

func TestSummariesCarryPresence(t *testing.T) {
	s := New(WithPresence(staticPresence{2: true}))
	s.PutUser(models.UserSummary{ID: 1, DisplayName: "alice"})
	s.PutUser(models.UserSummary{ID: 2, DisplayName: "bob"})

	summaries, err := s.BulkSummaries(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
	assert.False(t, summaries[1].IsOnline)
	assert.True(t, summaries[2].IsOnline)

	_, err = s.GetUserSummary(context.Background(), 3)
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
}
