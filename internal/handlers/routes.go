package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the chat and message endpoints on an authenticated group.
func RegisterRoutes(r gin.IRouter, chats *ChatHandler, messages *MessageHandler) {
	r.GET("/chats", chats.ListChats)
	r.GET("/chats/:chat_id", chats.GetChat)
	r.POST("/chats", chats.CreateDirectChat)
	r.POST("/chats/group", chats.CreateGroupChat)

	r.GET("/messages", messages.ListMessages)
	r.POST("/messages", messages.SendMessage)
	r.PATCH("/messages/:message_id/seen", messages.MarkSeen)
	r.PATCH("/messages/:message_id/deleted", messages.MarkDeleted)
	r.PATCH("/messages/:message_id/unsent", messages.MarkUnsent)
}
