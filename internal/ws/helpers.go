package ws

import (
	"encoding/json"
	"strings"

	"messaging-service/internal/bus"
)

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// clientFrame is a control frame sent by the client.
type clientFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// serverFrame is everything the server writes. Event carries the bus payload
// untouched.
type serverFrame struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Event json.RawMessage `json:"event,omitempty"`
	Error string          `json:"error,omitempty"`
}

const (
	frameEvent        = "event"
	frameSubscribed   = "subscribed"
	frameUnsubscribed = "unsubscribed"
	frameError        = "error"
)

// parseTopics splits the comma separated ?topics= value, dropping blanks and repeats.
func parseTopics(raw string) []string {
	var topics []string
	seen := map[string]struct{}{}
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}
	return topics
}

// topicAllowed reports whether userID may listen on topic. Every delivery
// topic ends with the id of the user it is addressed to.
func topicAllowed(topic string, userID int64) bool {
	owner, ok := bus.TopicOwner(topic)
	return ok && owner == userID
}
