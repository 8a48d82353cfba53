package chat

import (
	"geminichat-backend/internal/models"

	"github.com/google/uuid"
)

// Event types emitted after each store mutation.
const (
	EventChatLoaded          = "chat_loaded"
	EventChatroomCreated     = "chatroom_created"
	EventChatroomDeleted     = "chatroom_deleted"
	EventActiveChatroom      = "active_chatroom"
	EventNewMessage          = "new_message"
	EventTypingIndicator     = "typing_indicator"
	EventOlderMessagesLoaded = "older_messages_loaded"
	EventMessagesCleared     = "messages_cleared"
	EventChatroomSeeded      = "chatroom_seeded"
)

// Event describes one applied mutation.
type Event struct {
	Type    string
	Payload interface{}
}

// Notifier receives events while the store lock is held, so it must not
// block or call back into the store.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// --- Event payloads ---

type ChatroomDeletedPayload struct {
	ChatroomID       uuid.UUID  `json:"chatroomId"`
	ActiveChatroomID *uuid.UUID `json:"activeChatroomId"`
}

type ActiveChatroomPayload struct {
	ActiveChatroomID *uuid.UUID `json:"activeChatroomId"`
}

type NewMessagePayload struct {
	ChatroomID    uuid.UUID       `json:"chatroomId"`
	Message       models.Message  `json:"message"`
	TotalMessages int             `json:"totalMessages"`
	LastActivity  models.JSONTime `json:"lastActivity"`
}

type TypingIndicatorPayload struct {
	ChatroomID uuid.UUID `json:"chatroomId"`
	IsTyping   bool      `json:"isTyping"`
}

type OlderMessagesPayload struct {
	ChatroomID      uuid.UUID        `json:"chatroomId"`
	Messages        []models.Message `json:"messages"`
	CurrentPage     int              `json:"currentPage"`
	HasMoreMessages bool             `json:"hasMoreMessages"`
	TotalMessages   int              `json:"totalMessages"`
}

type MessagesClearedPayload struct {
	ChatroomID   uuid.UUID       `json:"chatroomId"`
	LastActivity models.JSONTime `json:"lastActivity"`
}
