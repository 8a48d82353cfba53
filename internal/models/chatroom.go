package models

import (
	"github.com/google/uuid"
)

const (
	// DefaultChatroomName names the room created when none exist.
	DefaultChatroomName = "General Chat"
	// MaxHistoryPage is the page at which older history runs out.
	MaxHistoryPage = 5
	// MessagesPerPage is the page size used when listing history.
	MessagesPerPage = 20
)

// Chatroom is an independently addressable conversation thread.
type Chatroom struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Messages        []Message `json:"messages"`
	LastActivity    JSONTime  `json:"lastActivity"`
	IsTyping        bool      `json:"isTyping"`
	CurrentPage     int       `json:"currentPage"`
	HasMoreMessages bool      `json:"hasMoreMessages"`
	TotalMessages   int       `json:"totalMessages"`
}

// NewChatroom returns an empty chatroom on page 1.
func NewChatroom(name string, now JSONTime) Chatroom {
	return Chatroom{
		ID:              uuid.New(),
		Name:            name,
		Messages:        []Message{},
		LastActivity:    now,
		CurrentPage:     1,
		HasMoreMessages: true,
	}
}

// Clone returns a copy that shares no slices with c.
func (c Chatroom) Clone() Chatroom {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// EarliestTimestamp returns the timestamp of the first message, if any.
func (c Chatroom) EarliestTimestamp() (JSONTime, bool) {
	if len(c.Messages) == 0 {
		return JSONTime{}, false
	}
	return c.Messages[0].Timestamp, true
}

// ChatState is the full in-memory state owned by the chat store.
type ChatState struct {
	Chatrooms        []Chatroom `json:"chatrooms"`
	ActiveChatroomID *uuid.UUID `json:"activeChatroomId"`
	MessagesPerPage  int        `json:"messagesPerPage"`
}

// ChatData is the record persisted under the chatData key.
type ChatData struct {
	Chatrooms []Chatroom `json:"chatrooms"`
	Timestamp int64      `json:"timestamp"`
}

// --- DTOs for Chatroom operations ---

// CreateChatroomRequest defines the payload for creating a chatroom.
type CreateChatroomRequest struct {
	Name string `json:"name" binding:"max=100"`
}

// SetActiveChatroomRequest selects the chatroom targeted by default.
type SetActiveChatroomRequest struct {
	ChatroomID uuid.UUID `json:"chatroomId" binding:"required"`
}

// MessagePage is one page of a chatroom's history, newest page first.
type MessagePage struct {
	ChatroomID uuid.UUID `json:"chatroomId"`
	Page       int       `json:"page"`
	PerPage    int       `json:"perPage"`
	Total      int       `json:"total"`
	HasMore    bool      `json:"hasMore"`
	Messages   []Message `json:"messages"`
}
