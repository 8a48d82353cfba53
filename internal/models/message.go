package models

import (
	"github.com/google/uuid"
)

const (
	// ImageOnlyContent is stored as the body of a message that carries only an image.
	ImageOnlyContent = "Shared an image"
	// MaxContentLength bounds the text of a single message.
	MaxContentLength = 4096
)

// Message is a single entry in a chatroom's history.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"isUser"`
	Timestamp JSONTime  `json:"timestamp"`
	Image     string    `json:"image,omitempty"`
}

// CreateMessageRequest is the payload for sending a user message.
// ChatroomID falls back to the active chatroom when omitted.
type CreateMessageRequest struct {
	ChatroomID *uuid.UUID `json:"chatroomId,omitempty"`
	Content    string     `json:"content" binding:"max=4096"`
	Image      string     `json:"image,omitempty"`
}

// SendMessageResponse is returned after a user message is accepted.
type SendMessageResponse struct {
	Message    *Message  `json:"message"`
	ChatroomID uuid.UUID `json:"chatroomId"`
	IsTyping   bool      `json:"isTyping"`
}
