// Package presence tracks which users hold a live connection.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a connection counts as online without a refresh.
const DefaultTTL = 90 * time.Second

// Tracker stores per-user connection sets in Redis so presence is shared
// across instances. Keys:
//
//	<prefix>:conn:<userID>  set of connection ids
type Tracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewTracker constructs a Tracker.
func NewTracker(client *redis.Client, prefix string, ttl time.Duration) *Tracker {
	if prefix == "" {
		prefix = "messaging"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{client: client, prefix: prefix, ttl: ttl}
}

func (t *Tracker) connKey(userID int64) string {
	return fmt.Sprintf("%s:conn:%s", t.prefix, strconv.FormatInt(userID, 10))
}

// Connect marks connID online for userID.
func (t *Tracker) Connect(ctx context.Context, userID int64, connID string) error {
	key := t.connKey(userID)
	pipe := t.client.TxPipeline()
	pipe.SAdd(ctx, key, connID)
	pipe.Expire(ctx, key, t.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Refresh extends the user's presence window; called from the ping loop.
func (t *Tracker) Refresh(ctx context.Context, userID int64) error {
	return t.client.Expire(ctx, t.connKey(userID), t.ttl).Err()
}

// Disconnect removes connID. The user stays online while other connections remain.
func (t *Tracker) Disconnect(ctx context.Context, userID int64, connID string) error {
	return t.client.SRem(ctx, t.connKey(userID), connID).Err()
}

// AreOnline reports presence for each id.
func (t *Tracker) AreOnline(ctx context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	pipe := t.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.SCard(ctx, t.connKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	for i, id := range ids {
		out[id] = cmds[i].Val() > 0
	}
	return out, nil
}
