package websocket

import (
	"encoding/json"

	"geminichat-backend/internal/models"

	"github.com/google/uuid"
)

// WebSocket message types. Store change events reuse the chat event names.
const (
	MessageTypeChatState      = "chat_state"       // Full state, sent once on connect
	MessageTypeNewMessage     = "new_message"      // Client sends a chat message; server echoes store events
	MessageTypeMessageSentAck = "message_sent_ack" // Server acknowledges a message sent over the socket
	MessageTypeError          = "error"
)

// WebSocketMessage is a generic wrapper for all messages sent over WebSocket.
type WebSocketMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// inboundMessage defers payload decoding until the type is known.
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessagePayload is what a client sends when the user hits send.
type NewMessagePayload struct {
	ChatroomID   *uuid.UUID `json:"chatroomId,omitempty"`
	Content      string     `json:"content"`
	Image        string     `json:"image,omitempty"`
	ClientTempID *string    `json:"clientTempId,omitempty"`
}

// MessageSentAckPayload confirms a socket-sent message was stored.
type MessageSentAckPayload struct {
	ClientTempID *string        `json:"clientTempId,omitempty"`
	ChatroomID   uuid.UUID      `json:"chatroomId"`
	Message      models.Message `json:"message"`
	IsTyping     bool           `json:"isTyping"`
}

// ErrorPayload is used for sending error details over WebSocket.
type ErrorPayload struct {
	Message      string  `json:"message"`
	Code         int     `json:"code,omitempty"`
	ClientTempID *string `json:"clientTempId,omitempty"`
}
