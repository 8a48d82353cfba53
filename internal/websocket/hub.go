package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"geminichat-backend/internal/chat"
	"geminichat-backend/internal/chatroom"
	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/models"

	"github.com/rs/zerolog"
)

const broadcastBuffer = 256

// MessageSender stores a user message and schedules the reply.
type MessageSender interface {
	SendMessage(ctx context.Context, req models.CreateMessageRequest) (*models.SendMessageResponse, error)
}

// StateSource provides the snapshot sent to newly connected clients.
type StateSource interface {
	Snapshot() models.ChatState
}

// Hub maintains active WebSocket clients and fans store events out to them.
type Hub struct {
	clients    map[*Client]bool
	clientsMux sync.RWMutex

	processMessage chan HubMessage
	register       chan *Client
	unregister     chan *Client
	broadcast      chan []byte
	quit           chan struct{}
	stopOnce       sync.Once

	sender MessageSender
	state  StateSource
	log    zerolog.Logger
}

// NewHub returns a Hub wired to the chat flows.
func NewHub(sender MessageSender, state StateSource) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		processMessage: make(chan HubMessage),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan []byte, broadcastBuffer),
		quit:           make(chan struct{}),
		sender:         sender,
		state:          state,
		log:            logger.Component("ws_hub"),
	}
}

// Notify queues a store event for every client. It never blocks: when the
// queue is full the event is dropped.
func (h *Hub) Notify(e chat.Event) {
	data, err := json.Marshal(WebSocketMessage{Type: e.Type, Payload: e.Payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", e.Type).Msg("failed to marshal event")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn().Str("event", e.Type).Msg("broadcast queue full, dropping event")
	}
}

// Run processes hub events until Stop is called.
func (h *Hub) Run() {
	h.log.Info().Msg("WebSocket Hub: Starting...")
	for {
		select {
		case client := <-h.register:
			h.clientsMux.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.clientsMux.Unlock()
			client.SendMessage(MessageTypeChatState, h.state.Snapshot())
			client.log.Info().Int("clients", total).Msg("WebSocket Hub: Client registered")

		case client := <-h.unregister:
			h.clientsMux.Lock()
			if _, ok := h.clients[client]; ok {
				close(client.send)
				delete(h.clients, client)
				client.log.Info().Int("clients", len(h.clients)).Msg("WebSocket Hub: Client unregistered")
			}
			h.clientsMux.Unlock()

		case data := <-h.broadcast:
			h.clientsMux.RLock()
			for client := range h.clients {
				client.enqueue(data)
			}
			h.clientsMux.RUnlock()

		case hubMsg := <-h.processMessage:
			h.handleIncomingMessage(hubMsg.client, hubMsg.rawJSON)

		case <-h.quit:
			h.clientsMux.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.clientsMux.Unlock()
			h.log.Info().Msg("WebSocket Hub: Stopped")
			return
		}
	}
}

// Stop ends Run and closes every client's outbound queue.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}

func (h *Hub) handleIncomingMessage(senderClient *Client, rawJSON []byte) {
	var wsMsg inboundMessage
	if err := json.Unmarshal(rawJSON, &wsMsg); err != nil {
		senderClient.log.Debug().Err(err).Msg("WebSocket Hub: Error unmarshalling message")
		senderClient.SendMessage(MessageTypeError, ErrorPayload{Message: "Invalid message format", Code: http.StatusBadRequest})
		return
	}

	switch wsMsg.Type {
	case MessageTypeNewMessage:
		var payload NewMessagePayload
		if err := json.Unmarshal(wsMsg.Payload, &payload); err != nil {
			senderClient.SendMessage(MessageTypeError, ErrorPayload{Message: "Invalid new_message payload", Code: http.StatusBadRequest})
			return
		}
		h.handleNewChatMessageViaWS(senderClient, payload)

	default:
		senderClient.log.Debug().Str("type", wsMsg.Type).Msg("WebSocket Hub: Unknown message type")
		senderClient.SendMessage(MessageTypeError, ErrorPayload{Message: "Unknown message type", Code: http.StatusBadRequest})
	}
}

func (h *Hub) handleNewChatMessageViaWS(senderClient *Client, payload NewMessagePayload) {
	ctx := logger.WithLogger(context.Background(), senderClient.log)
	resp, err := h.sender.SendMessage(ctx, models.CreateMessageRequest{
		ChatroomID: payload.ChatroomID,
		Content:    payload.Content,
		Image:      payload.Image,
	})
	if err != nil {
		senderClient.SendMessage(MessageTypeError, ErrorPayload{
			Message:      err.Error(),
			Code:         chatroom.StatusFor(err),
			ClientTempID: payload.ClientTempID,
		})
		return
	}

	senderClient.SendMessage(MessageTypeMessageSentAck, MessageSentAckPayload{
		ClientTempID: payload.ClientTempID,
		ChatroomID:   resp.ChatroomID,
		Message:      *resp.Message,
		IsTyping:     resp.IsTyping,
	})
}
