package chatroom

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"geminichat-backend/internal/chat"
	"geminichat-backend/internal/history"
	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/models"
	"geminichat-backend/internal/responder"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RestHandler handles REST API requests for chatrooms and messages.
type RestHandler struct {
	store   *chat.Store
	service *Service
}

// NewRestHandler creates a new RestHandler.
func NewRestHandler(store *chat.Store, service *Service) *RestHandler {
	return &RestHandler{
		store:   store,
		service: service,
	}
}

// GetState returns the full chat state.
// GET /chat/state
func (h *RestHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

// CreateChatroom adds a chatroom and makes it active.
// POST /chatrooms
func (h *RestHandler) CreateChatroom(c *gin.Context) {
	var req models.CreateChatroomRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	room := h.store.CreateChatroom(c.Request.Context(), req.Name)
	c.JSON(http.StatusCreated, room)
}

// DeleteChatroom removes a chatroom.
// DELETE /chatrooms/:id
func (h *RestHandler) DeleteChatroom(c *gin.Context) {
	id, ok := chatroomIDParam(c)
	if !ok {
		return
	}

	if err := h.service.DeleteChatroom(c.Request.Context(), id); err != nil {
		writeError(c, "DeleteChatroom", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "Chatroom deleted",
		"activeChatroomId": h.store.Snapshot().ActiveChatroomID,
	})
}

// SetActiveChatroom switches the active chatroom.
// PUT /chatrooms/active
func (h *RestHandler) SetActiveChatroom(c *gin.Context) {
	var req models.SetActiveChatroomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	if err := h.store.SetActiveChatroom(c.Request.Context(), req.ChatroomID); err != nil {
		writeError(c, "SetActiveChatroom", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeChatroomId": req.ChatroomID})
}

// ClearChatroom empties a chatroom's history.
// POST /chatrooms/:id/clear
func (h *RestHandler) ClearChatroom(c *gin.Context) {
	id, ok := chatroomIDParam(c)
	if !ok {
		return
	}

	if err := h.store.ClearChatroomMessages(c.Request.Context(), id); err != nil {
		writeError(c, "ClearChatroom", err)
		return
	}
	h.respondWithChatroom(c, id)
}

// SeedChatroom replaces a chatroom's history with a sample conversation.
// POST /chatrooms/:id/sample
func (h *RestHandler) SeedChatroom(c *gin.Context) {
	id, ok := chatroomIDParam(c)
	if !ok {
		return
	}

	if err := h.store.InitializeWithDummyMessages(c.Request.Context(), id); err != nil {
		writeError(c, "SeedChatroom", err)
		return
	}
	h.respondWithChatroom(c, id)
}

// GetMessages returns one page of a chatroom's history, newest page first.
// GET /chatrooms/:id/messages?page=N
func (h *RestHandler) GetMessages(c *gin.Context) {
	id, ok := chatroomIDParam(c)
	if !ok {
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page parameter"})
		return
	}

	room, err := h.store.Chatroom(&id)
	if err != nil {
		writeError(c, "GetMessages", err)
		return
	}

	result, err := history.Page(room, page, h.store.Snapshot().MessagesPerPage)
	if err != nil {
		writeError(c, "GetMessages", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RequestHistory starts loading the next older page.
// POST /chatrooms/:id/history
func (h *RestHandler) RequestHistory(c *gin.Context) {
	id, ok := chatroomIDParam(c)
	if !ok {
		return
	}

	if err := h.service.RequestOlder(c.Request.Context(), id); err != nil {
		writeError(c, "RequestHistory", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Loading older messages", "chatroomId": id})
}

// PostMessage handles requests to send a new message.
// POST /messages
func (h *RestHandler) PostMessage(c *gin.Context) {
	var req models.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	resp, err := h.service.SendMessage(c.Request.Context(), req)
	if err != nil {
		writeError(c, "PostMessage", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *RestHandler) respondWithChatroom(c *gin.Context, id uuid.UUID) {
	room, err := h.store.Chatroom(&id)
	if err != nil {
		writeError(c, "respondWithChatroom", err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func chatroomIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chatroom ID format"})
		return uuid.Nil, false
	}
	return id, true
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrChatroomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrLastChatroom),
		errors.Is(err, responder.ErrResponsePending),
		errors.Is(err, history.ErrLoadInFlight),
		errors.Is(err, history.ErrNoMoreMessages):
		return http.StatusConflict
	case errors.Is(err, ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrMessageLength),
		errors.Is(err, ErrInvalidImage),
		errors.Is(err, ErrNotAnImage),
		errors.Is(err, history.ErrInvalidPage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, op string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		lg := logger.Ctx(c.Request.Context())
		lg.Error().Err(err).Msgf("%s: unexpected error", op)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
