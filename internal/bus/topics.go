package bus

import (
	"fmt"
	"strconv"
	"strings"
)

const topicSeparator = "::"

// MessageTopic addresses new messages in chatID to receiverID.
func MessageTopic(chatID, receiverID int64) string {
	return fmt.Sprintf("%d%s%d", chatID, topicSeparator, receiverID)
}

// ChatTopic addresses chat-list updates from senderID to receiverID.
func ChatTopic(senderID, receiverID int64) string {
	return fmt.Sprintf("%d%s%d", senderID, topicSeparator, receiverID)
}

// TopicOwner returns the user a topic is addressed to.
func TopicOwner(topic string) (int64, bool) {
	prefix, owner, ok := strings.Cut(topic, topicSeparator)
	if !ok || prefix == "" || strings.Contains(owner, topicSeparator) {
		return 0, false
	}
	if _, err := strconv.ParseInt(prefix, 10, 64); err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(owner, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
