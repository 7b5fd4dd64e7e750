// Package mongostore implements the repositories on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
	"messaging-service/internal/repositories"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
	usersCollection    = "users"
	countersCollection = "counters"
)

var (
	chatSortKeys = map[string]string{
		"lastMessageAt": "last_message_at",
		"createdAt":     "created_at",
		"updatedAt":     "updated_at",
		"name":          "name",
	}
	messageSortKeys = map[string]string{
		"createdAt": "created_at",
		"id":        "_id",
	}
	caseInsensitive = &options.Collation{Locale: "en", Strength: 2}
)

type chatDoc struct {
	ID            int64      `bson:"_id"`
	Type          string     `bson:"type"`
	Name          string     `bson:"name"`
	Participants  []int64    `bson:"participants"`
	GroupAdmin    *int64     `bson:"group_admin,omitempty"`
	DirectKey     string     `bson:"direct_key,omitempty"`
	LastMessageID *int64     `bson:"last_message_id,omitempty"`
	LastMessageAt *time.Time `bson:"last_message_at,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func (d chatDoc) toModel() models.Chat {
	participants := d.Participants
	if participants == nil {
		participants = []int64{}
	}
	return models.Chat{
		ID:            d.ID,
		Type:          models.ChatType(d.Type),
		Name:          d.Name,
		Participants:  participants,
		GroupAdmin:    d.GroupAdmin,
		LastMessageID: d.LastMessageID,
		LastMessageAt: d.LastMessageAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type messageDoc struct {
	ID         int64          `bson:"_id"`
	ChatID     int64          `bson:"chat_id"`
	SenderID   int64          `bson:"sender_id"`
	ReceiverID int64          `bson:"receiver_id"`
	Content    models.Content `bson:"content"`
	SeenBy     []int64        `bson:"seen_by"`
	DeletedBy  []int64        `bson:"deleted_by"`
	UnsentBy   []int64        `bson:"unsent_by"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

func (d messageDoc) toModel() models.Message {
	return models.Message{
		ID:         d.ID,
		ChatID:     d.ChatID,
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Content:    d.Content,
		SeenBy:     orEmpty(d.SeenBy),
		DeletedBy:  orEmpty(d.DeletedBy),
		UnsentBy:   orEmpty(d.UnsentBy),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type userDoc struct {
	ID          int64  `bson:"_id"`
	DisplayName string `bson:"display_name"`
	AvatarURL   string `bson:"avatar_url"`
}

func orEmpty(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// Store is a MongoDB implementation of the chat, message and user repositories.
type Store struct {
	db       *mongo.Database
	chats    *mongo.Collection
	messages *mongo.Collection
	users    *mongo.Collection
	counters *mongo.Collection
	online   repositories.OnlineChecker

	chatOpts pagination.Options[models.ChatView]
	msgOpts  pagination.Options[models.MessageView]
}

var (
	_ repositories.ChatRepository    = (*Store)(nil)
	_ repositories.MessageRepository = (*Store)(nil)
	_ repositories.UserDirectory     = (*Store)(nil)
)

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// New wraps db and ensures the indexes the store relies on. online may be nil.
func New(ctx context.Context, db *mongo.Database, online repositories.OnlineChecker) (*Store, error) {
	s := &Store{
		db:       db,
		chats:    db.Collection(chatsCollection),
		messages: db.Collection(messagesCollection),
		users:    db.Collection(usersCollection),
		counters: db.Collection(countersCollection),
		online:   online,
	}
	s.chatOpts = repositories.ChatPageOptions(s, s)
	s.msgOpts = repositories.MessagePageOptions(s)

	if _, err := s.chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "direct_key", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"direct_key": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}}},
	}); err != nil {
		return nil, fmt.Errorf("chat indexes: %w", err)
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return nil, fmt.Errorf("message indexes: %w", err)
	}
	return s, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *Store) nextID(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", name, err)
	}
	return counter.Seq, nil
}

func (s *Store) ListChatsForUser(ctx context.Context, filter repositories.ChatFilter, req pagination.Request) (pagination.Page[models.ChatView], error) {
	query := bson.M{"participants": filter.UserID}
	if name := strings.TrimSpace(filter.Name); name != "" {
		query["name"] = bson.M{"$regex": regexp.QuoteMeta(name), "$options": "i"}
	}
	src := &source[chatDoc, models.ChatView]{
		coll:     s.chats,
		filter:   query,
		sortKeys: chatSortKeys,
		tieBreak: bson.E{Key: "_id", Value: -1},
		convert:  func(d chatDoc) models.ChatView { return models.ChatView{Chat: d.toModel()} },
	}
	return pagination.Run[models.ChatView](ctx, src, req, s.chatOpts)
}

func (s *Store) GetChat(ctx context.Context, chatID int64) (models.Chat, error) {
	var doc chatDoc
	err := s.chats.FindOne(ctx, bson.M{"_id": chatID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	return doc.toModel(), nil
}

func (s *Store) FindDirectChat(ctx context.Context, userA, userB int64) (models.Chat, bool, error) {
	var doc chatDoc
	err := s.chats.FindOne(ctx, bson.M{"direct_key": models.DirectKey(userA, userB)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Chat{}, false, nil
	}
	if err != nil {
		return models.Chat{}, false, err
	}
	return doc.toModel(), true, nil
}

// CreateDirectChat inserts the pair's chat; a duplicate key on direct_key
// resolves to the chat that won the race.
func (s *Store) CreateDirectChat(ctx context.Context, userA, userB int64) (models.Chat, error) {
	if chat, ok, err := s.FindDirectChat(ctx, userA, userB); err != nil || ok {
		return chat, err
	}
	id, err := s.nextID(ctx, chatsCollection)
	if err != nil {
		return models.Chat{}, err
	}
	now := time.Now().UTC()
	doc := chatDoc{
		ID:           id,
		Type:         string(models.ChatTypeDirect),
		Participants: []int64{userA, userB},
		DirectKey:    models.DirectKey(userA, userB),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.chats.InsertOne(ctx, doc); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return models.Chat{}, err
		}
		chat, ok, ferr := s.FindDirectChat(ctx, userA, userB)
		if ferr != nil {
			return models.Chat{}, ferr
		}
		if !ok {
			return models.Chat{}, fmt.Errorf("direct chat vanished after conflict: %w", err)
		}
		return chat, nil
	}
	return doc.toModel(), nil
}

func (s *Store) CreateGroupChat(ctx context.Context, name string, participantIDs []int64, adminID int64) (models.Chat, error) {
	id, err := s.nextID(ctx, chatsCollection)
	if err != nil {
		return models.Chat{}, err
	}
	now := time.Now().UTC()
	admin := adminID
	doc := chatDoc{
		ID:           id,
		Type:         string(models.ChatTypeGroup),
		Name:         name,
		Participants: models.UniqueParticipants(adminID, participantIDs),
		GroupAdmin:   &admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.chats.InsertOne(ctx, doc); err != nil {
		return models.Chat{}, err
	}
	return doc.toModel(), nil
}

func (s *Store) SetLastMessage(ctx context.Context, chatID, messageID int64) error {
	msg, err := s.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.chats.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{"$set": bson.M{
		"last_message_id": msg.ID,
		"last_message_at": msg.CreatedAt,
		"updated_at":      time.Now().UTC(),
	}})
	return err
}

func (s *Store) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	n, err := s.chats.CountDocuments(ctx, bson.M{"_id": chatID, "participants": userID}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *Store) ListMessages(ctx context.Context, filter repositories.MessageFilter, req pagination.Request) (pagination.Page[models.MessageView], error) {
	if err := repositories.ValidateMessageFilter(filter); err != nil {
		return pagination.Page[models.MessageView]{}, err
	}
	query := bson.M{"chat_id": filter.ChatID}
	if filter.HideDeletedFor != 0 {
		query["deleted_by"] = bson.M{"$ne": filter.HideDeletedFor}
	}
	src := &source[messageDoc, models.MessageView]{
		coll:     s.messages,
		filter:   query,
		sortKeys: messageSortKeys,
		tieBreak: bson.E{Key: "_id", Value: 1},
		convert:  func(d messageDoc) models.MessageView { return models.MessageView{Message: d.toModel()} },
	}
	return pagination.Run[models.MessageView](ctx, src, req, s.msgOpts)
}

func (s *Store) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}
	id, err := s.nextID(ctx, messagesCollection)
	if err != nil {
		return models.Message{}, err
	}
	now := time.Now().UTC()
	doc := messageDoc{
		ID:         id,
		ChatID:     msg.ChatID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		SeenBy:     []int64{},
		DeletedBy:  []int64{},
		UnsentBy:   []int64{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return models.Message{}, err
	}
	return doc.toModel(), nil
}

func (s *Store) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var doc messageDoc
	err := s.messages.FindOne(ctx, bson.M{"_id": messageID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return doc.toModel(), nil
}

func (s *Store) GetMessages(ctx context.Context, ids []int64) (map[int64]models.Message, error) {
	out := make(map[int64]models.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.messages.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.ID] = d.toModel()
	}
	return out, nil
}

func (s *Store) MarkSeen(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return s.addToSet(ctx, models.SeenBy, messageID, userID)
}

func (s *Store) MarkDeleted(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return s.addToSet(ctx, models.DeletedBy, messageID, userID)
}

func (s *Store) MarkUnsent(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return s.addToSet(ctx, models.UnsentBy, messageID, userID)
}

// addToSet only touches updated_at when userID is new to the set; a miss on
// the conditional update falls back to a plain read.
func (s *Store) addToSet(ctx context.Context, set models.VisibilitySet, messageID, userID int64) (models.Message, error) {
	field := string(set)
	var doc messageDoc
	err := s.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID, field: bson.M{"$ne": userID}},
		bson.M{
			"$addToSet": bson.M{field: userID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return s.GetMessage(ctx, messageID)
	}
	if err != nil {
		return models.Message{}, err
	}
	return doc.toModel(), nil
}

func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	n, err := s.users.CountDocuments(ctx, bson.M{"_id": userID}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *Store) GetUserSummary(ctx context.Context, userID int64) (models.UserSummary, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.UserSummary{}, repositories.ErrUserNotFound
	}
	if err != nil {
		return models.UserSummary{}, err
	}
	out := map[int64]models.UserSummary{doc.ID: {ID: doc.ID, DisplayName: doc.DisplayName, AvatarURL: doc.AvatarURL}}
	_ = repositories.ApplyPresence(ctx, s.online, out)
	return out[doc.ID], nil
}

func (s *Store) BulkSummaries(ctx context.Context, ids []int64) (map[int64]models.UserSummary, error) {
	out := make(map[int64]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.ID] = models.UserSummary{ID: d.ID, DisplayName: d.DisplayName, AvatarURL: d.AvatarURL}
	}
	_ = repositories.ApplyPresence(ctx, s.online, out)
	return out, nil
}

// source adapts a filtered collection to the pagination engine.
type source[D any, T any] struct {
	coll     *mongo.Collection
	filter   bson.M
	sortKeys map[string]string
	tieBreak bson.E
	convert  func(D) T
}

func (s *source[D, T]) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, s.filter)
}

func (s *source[D, T]) Fetch(ctx context.Context, w pagination.Window) ([]T, error) {
	sort := bson.D{}
	hasTieBreak := false
	for _, f := range w.Sort {
		key, ok := s.sortKeys[f.Field]
		if !ok {
			return nil, fmt.Errorf("unsupported sort field %q", f.Field)
		}
		dir := 1
		if f.Desc {
			dir = -1
		}
		hasTieBreak = hasTieBreak || key == s.tieBreak.Key
		sort = append(sort, bson.E{Key: key, Value: dir})
	}
	if !hasTieBreak {
		sort = append(sort, s.tieBreak)
	}

	opts := options.Find().
		SetSort(sort).
		SetSkip(int64(w.Offset)).
		SetLimit(int64(w.Limit)).
		SetCollation(caseInsensitive)
	cur, err := s.coll.Find(ctx, s.filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		out = append(out, s.convert(d))
	}
	return out, nil
}
