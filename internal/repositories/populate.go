package repositories

import (
	"context"

	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
)

// MessageLookup is the subset of MessageRepository used to resolve last messages.
type MessageLookup interface {
	GetMessages(ctx context.Context, ids []int64) (map[int64]models.Message, error)
}

// ChatPageOptions builds the pagination options for chat listings.
func ChatPageOptions(users UserDirectory, messages MessageLookup) pagination.Options[models.ChatView] {
	return pagination.Options[models.ChatView]{
		DefaultSort:  DefaultChatSort,
		DefaultLimit: DefaultPageLimit,
		MaxLimit:     MaxPageLimit,
		SortFields:   ChatSortFields,
		Populators: map[string]pagination.Populator[models.ChatView]{
			"participants": populateParticipants(users),
			"lastMessage":  populateLastMessage(users, messages),
		},
		DefaultPopulate: []string{"participants", "lastMessage"},
	}
}

// MessagePageOptions builds the pagination options for message listings.
func MessagePageOptions(users UserDirectory) pagination.Options[models.MessageView] {
	return pagination.Options[models.MessageView]{
		DefaultSort:  DefaultMessageSort,
		DefaultLimit: DefaultPageLimit,
		MaxLimit:     MaxPageLimit,
		SortFields:   MessageSortFields,
		Populators: map[string]pagination.Populator[models.MessageView]{
			"sender": populateSenders(users),
		},
		DefaultPopulate: []string{"sender"},
	}
}

func populateParticipants(users UserDirectory) pagination.Populator[models.ChatView] {
	return func(ctx context.Context, chats []models.ChatView) error {
		var ids []int64
		for _, c := range chats {
			ids = append(ids, c.Participants...)
		}
		summaries, err := users.BulkSummaries(ctx, uniqueIDs(ids))
		if err != nil {
			return err
		}
		for i := range chats {
			details := make([]models.UserSummary, 0, len(chats[i].Participants))
			for _, id := range chats[i].Participants {
				if s, ok := summaries[id]; ok {
					details = append(details, s)
				}
			}
			chats[i].ParticipantDetails = details
		}
		return nil
	}
}

func populateLastMessage(users UserDirectory, messages MessageLookup) pagination.Populator[models.ChatView] {
	return func(ctx context.Context, chats []models.ChatView) error {
		var ids []int64
		for _, c := range chats {
			if c.LastMessageID != nil {
				ids = append(ids, *c.LastMessageID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		msgs, err := messages.GetMessages(ctx, uniqueIDs(ids))
		if err != nil {
			return err
		}
		senderIDs := make([]int64, 0, len(msgs))
		for _, m := range msgs {
			senderIDs = append(senderIDs, m.SenderID)
		}
		senders, err := users.BulkSummaries(ctx, uniqueIDs(senderIDs))
		if err != nil {
			return err
		}
		for i := range chats {
			if chats[i].LastMessageID == nil {
				continue
			}
			m, ok := msgs[*chats[i].LastMessageID]
			if !ok {
				continue
			}
			view := &models.MessageView{Message: m}
			if s, ok := senders[m.SenderID]; ok {
				view.Sender = &s
			}
			chats[i].LastMessage = view
		}
		return nil
	}
}

func populateSenders(users UserDirectory) pagination.Populator[models.MessageView] {
	return func(ctx context.Context, msgs []models.MessageView) error {
		ids := make([]int64, 0, len(msgs))
		for _, m := range msgs {
			ids = append(ids, m.SenderID)
		}
		senders, err := users.BulkSummaries(ctx, uniqueIDs(ids))
		if err != nil {
			return err
		}
		for i := range msgs {
			if s, ok := senders[msgs[i].SenderID]; ok {
				msgs[i].Sender = &s
			}
		}
		return nil
	}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ApplyPresence sets IsOnline on summaries when a checker is configured.
func ApplyPresence(ctx context.Context, online OnlineChecker, summaries map[int64]models.UserSummary) error {
	if online == nil || len(summaries) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(summaries))
	for id := range summaries {
		ids = append(ids, id)
	}
	status, err := online.AreOnline(ctx, ids)
	if err != nil {
		return err
	}
	for id, s := range summaries {
		s.IsOnline = status[id]
		summaries[id] = s
	}
	return nil
}
