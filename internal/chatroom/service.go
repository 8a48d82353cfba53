package chatroom

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"

	"geminichat-backend/internal/chat"
	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/models"
	"geminichat-backend/internal/responder"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MaxImageBytes is the largest decoded image accepted as an attachment.
const MaxImageBytes = 5 * 1024 * 1024

var (
	ErrEmptyMessage  = errors.New("message needs text or an image")
	ErrMessageLength = errors.New("message text is too long")
	ErrInvalidImage  = errors.New("image must be a base64 data URI")
	ErrNotAnImage    = errors.New("attachment is not an image")
	ErrImageTooLarge = errors.New("image exceeds the 5MB limit")
	ErrLastChatroom  = chat.ErrLastChatroom
)

// Responder schedules assistant replies.
type Responder interface {
	Respond(ctx context.Context, chatroomID uuid.UUID) error
	Pending(chatroomID uuid.UUID) bool
	Cancel(chatroomID uuid.UUID) bool
}

// HistoryLoader fetches older pages.
type HistoryLoader interface {
	RequestOlder(ctx context.Context, chatroomID uuid.UUID) error
	Cancel(chatroomID uuid.UUID) bool
}

// Service runs the multi-step chat flows shared by REST and WebSocket.
type Service struct {
	store     *chat.Store
	responder Responder
	loader    HistoryLoader

	// sendMu keeps the pending check, the append and the reply scheduling
	// of one send from interleaving with another.
	sendMu sync.Mutex
}

func NewService(store *chat.Store, r Responder, l HistoryLoader) *Service {
	return &Service{store: store, responder: r, loader: l}
}

// SendMessage appends a user message and triggers an assistant reply.
func (s *Service) SendMessage(ctx context.Context, req models.CreateMessageRequest) (*models.SendMessageResponse, error) {
	content := strings.TrimSpace(req.Content)
	image := strings.TrimSpace(req.Image)
	if content == "" && image == "" {
		return nil, ErrEmptyMessage
	}
	if len(content) > models.MaxContentLength {
		return nil, ErrMessageLength
	}
	if image != "" {
		if err := ValidateImage(image); err != nil {
			return nil, err
		}
	}
	if content == "" {
		content = models.ImageOnlyContent
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	room, err := s.store.Chatroom(req.ChatroomID)
	if err != nil {
		return nil, err
	}
	if s.responder.Pending(room.ID) {
		return nil, responder.ErrResponsePending
	}

	msg, err := s.store.AddMessage(ctx, chat.AddMessageParams{
		ChatroomID: &room.ID,
		Content:    content,
		IsUser:     true,
		Image:      image,
	})
	if err != nil {
		return nil, err
	}

	resp := &models.SendMessageResponse{Message: &msg, ChatroomID: room.ID, IsTyping: true}
	if err := s.responder.Respond(ctx, room.ID); err != nil {
		lg := logger.Ctx(ctx)
		lg.Warn().Err(err).Str(logger.FieldChatroomID, room.ID.String()).Msg("SendMessage: reply not scheduled")
		resp.IsTyping = false
	}
	return resp, nil
}

// DeleteChatroom removes a chatroom unless it is the only one left, and
// drops any reply or history load still scheduled for it.
func (s *Service) DeleteChatroom(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteChatroomKeepingOne(ctx, id); err != nil {
		return err
	}
	s.responder.Cancel(id)
	s.loader.Cancel(id)
	return nil
}

// RequestOlder asks the loader for the chatroom's next older page.
func (s *Service) RequestOlder(ctx context.Context, id uuid.UUID) error {
	return s.loader.RequestOlder(ctx, id)
}

// ValidateImage accepts a base64 data URI whose decoded bytes are an image
// of at most MaxImageBytes.
func ValidateImage(dataURI string) error {
	if !strings.HasPrefix(dataURI, "data:") {
		return ErrInvalidImage
	}
	header, data, ok := strings.Cut(strings.TrimPrefix(dataURI, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return ErrInvalidImage
	}
	if declared := strings.TrimSuffix(header, ";base64"); declared != "" && !strings.HasPrefix(declared, "image/") {
		return ErrNotAnImage
	}

	if base64.StdEncoding.DecodedLen(len(data)) > MaxImageBytes+2 {
		return ErrImageTooLarge
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return ErrInvalidImage
	}
	if len(decoded) > MaxImageBytes {
		return ErrImageTooLarge
	}
	if !strings.HasPrefix(mimetype.Detect(decoded).String(), "image/") {
		return ErrNotAnImage
	}
	return nil
}
