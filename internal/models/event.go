package models

// Delivery event types pushed to live subscribers.
const (
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventChatUpdated    = "chat.updated"
)

// DeliveryEvent is the payload published on delivery topics.
type DeliveryEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}
