package websocket

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Large enough for a 5MB image encoded as a data URI.
	maxMessageSize = 8 << 20
	sendBuffer     = 256
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client bridges a WebSocket connection with the hub.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	phone string
	log   zerolog.Logger
}

// NewClient constructs a Client for the given hub connection.
func NewClient(hub *Hub, conn *websocket.Conn, phone string) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		phone: phone,
		log: hub.log.With().
			Str("remote_addr", conn.RemoteAddr().String()).
			Str("phone", phone).
			Logger(),
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
		c.log.Debug().Msg("readPump: Unregistered and connection closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("readPump: unexpected close")
			} else {
				c.log.Debug().Err(err).Msg("readPump: Connection closed")
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.log.Debug().Int("message_type", messageType).Msg("readPump: Ignoring non-text message")
			continue
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		select {
		case c.hub.processMessage <- HubMessage{client: c, rawJSON: message}:
		case <-c.hub.quit:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("writePump: Ticker stopped and connection closed")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.log.Debug().Err(err).Msg("writePump: Error getting next writer")
				return
			}

			if _, err = w.Write(message); err != nil {
				c.log.Debug().Err(err).Msg("writePump: Error writing message")
			}

			if err := w.Close(); err != nil {
				c.log.Debug().Err(err).Msg("writePump: Error closing writer")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug().Err(err).Msg("writePump: Error sending ping")
				return
			}
		}
	}
}

// SendMessage places a WebSocketMessage onto the outbound queue for this
// client. It must only be called from the hub goroutine.
func (c *Client) SendMessage(msgType string, payload interface{}) {
	jsonMsg, err := json.Marshal(WebSocketMessage{Type: msgType, Payload: payload})
	if err != nil {
		c.log.Error().Err(err).Str("type", msgType).Msg("SendMessage: Error marshalling message")
		return
	}
	c.enqueue(jsonMsg)
}

func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.log.Warn().Msg("SendMessage: Send channel full. Dropping message")
	}
}

// HubMessage holds raw JSON from a client awaiting processing.
type HubMessage struct {
	client  *Client
	rawJSON []byte
}
