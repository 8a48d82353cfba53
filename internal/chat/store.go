package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"geminichat-backend/internal/clock"
	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/models"
	"geminichat-backend/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrChatroomNotFound = errors.New("chatroom not found")
	ErrLastChatroom     = errors.New("cannot delete the last chatroom")
)

// AddMessageParams describes a message to append. ChatroomID falls back to
// the active chatroom when nil.
type AddMessageParams struct {
	ChatroomID *uuid.UUID
	Content    string
	IsUser     bool
	Image      string
}

// Store owns the chat state. Every operation runs under one lock and, when
// it mutates, writes the full chatroom collection to persistence before
// returning.
type Store struct {
	mu          sync.Mutex
	state       models.ChatState
	persistence *store.Persistence
	clock       clock.Clock
	notifier    Notifier
	log         zerolog.Logger
}

func NewStore(persistence *store.Persistence, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Store{
		state: models.ChatState{
			Chatrooms:       []models.Chatroom{},
			MessagesPerPage: models.MessagesPerPage,
		},
		persistence: persistence,
		clock:       clk,
		log:         logger.Component("chat_store"),
	}
}

// SetNotifier installs the receiver of change events.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

func (s *Store) now() models.JSONTime {
	return models.NewJSONTime(s.clock.Now())
}

func (s *Store) emit(eventType string, payload interface{}) {
	if s.notifier != nil {
		s.notifier.Notify(Event{Type: eventType, Payload: payload})
	}
}

// persist must be called with s.mu held. A failed write is logged and the
// in-memory mutation stands.
func (s *Store) persist(ctx context.Context) {
	if err := s.persistence.SaveChatData(ctx, s.state.Chatrooms); err != nil {
		s.log.Error().Err(err).Msg("failed to persist chat data")
	}
}

func (s *Store) indexOf(id uuid.UUID) int {
	for i := range s.state.Chatrooms {
		if s.state.Chatrooms[i].ID == id {
			return i
		}
	}
	return -1
}

// resolve returns the chatroom addressed by id, or by the active pointer when
// id is nil.
func (s *Store) resolve(id *uuid.UUID) (*models.Chatroom, error) {
	target := id
	if target == nil {
		target = s.state.ActiveChatroomID
	}
	if target == nil {
		return nil, ErrChatroomNotFound
	}
	i := s.indexOf(*target)
	if i < 0 {
		return nil, ErrChatroomNotFound
	}
	return &s.state.Chatrooms[i], nil
}

// CreateChatroom appends a chatroom and makes it active. A blank name
// becomes "Chat N".
func (s *Store) CreateChatroom(ctx context.Context, name string) models.Chatroom {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Chat %d", len(s.state.Chatrooms)+1)
	}
	room := models.NewChatroom(name, s.now())
	s.state.Chatrooms = append(s.state.Chatrooms, room)
	id := room.ID
	s.state.ActiveChatroomID = &id

	s.persist(ctx)
	s.emit(EventChatroomCreated, room.Clone())
	return room.Clone()
}

// DeleteChatroom removes a chatroom. Deleting the active one moves the
// pointer to the first remaining chatroom, or nil when none remain.
func (s *Store) DeleteChatroom(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrChatroomNotFound
	}
	s.deleteLocked(ctx, i)
	return nil
}

// DeleteChatroomKeepingOne is DeleteChatroom that refuses to remove the only
// remaining chatroom.
func (s *Store) DeleteChatroomKeepingOne(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrChatroomNotFound
	}
	if len(s.state.Chatrooms) <= 1 {
		return ErrLastChatroom
	}
	s.deleteLocked(ctx, i)
	return nil
}

func (s *Store) deleteLocked(ctx context.Context, i int) {
	id := s.state.Chatrooms[i].ID
	s.state.Chatrooms = append(s.state.Chatrooms[:i], s.state.Chatrooms[i+1:]...)

	if s.state.ActiveChatroomID != nil && *s.state.ActiveChatroomID == id {
		s.state.ActiveChatroomID = nil
		if len(s.state.Chatrooms) > 0 {
			first := s.state.Chatrooms[0].ID
			s.state.ActiveChatroomID = &first
		}
	}

	s.persist(ctx)
	s.emit(EventChatroomDeleted, ChatroomDeletedPayload{ChatroomID: id, ActiveChatroomID: copyID(s.state.ActiveChatroomID)})
}

// SetActiveChatroom points the active pointer at id. Unknown ids are
// rejected and leave the pointer unchanged.
func (s *Store) SetActiveChatroom(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return ErrChatroomNotFound
	}
	s.state.ActiveChatroomID = &id

	s.persist(ctx)
	s.emit(EventActiveChatroom, ActiveChatroomPayload{ActiveChatroomID: copyID(&id)})
	return nil
}

// AddMessage appends a new message with a fresh id and timestamp.
func (s *Store) AddMessage(ctx context.Context, params AddMessageParams) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolve(params.ChatroomID)
	if err != nil {
		return models.Message{}, err
	}

	now := s.now()
	msg := models.Message{
		ID:        uuid.New(),
		Content:   params.Content,
		IsUser:    params.IsUser,
		Timestamp: now,
		Image:     params.Image,
	}
	room.Messages = append(room.Messages, msg)
	room.TotalMessages = len(room.Messages)
	room.LastActivity = now

	s.persist(ctx)
	s.emit(EventNewMessage, NewMessagePayload{
		ChatroomID:    room.ID,
		Message:       msg,
		TotalMessages: room.TotalMessages,
		LastActivity:  room.LastActivity,
	})
	return msg, nil
}

// SetTyping toggles the typing flag of the resolved chatroom.
func (s *Store) SetTyping(ctx context.Context, chatroomID *uuid.UUID, isTyping bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolve(chatroomID)
	if err != nil {
		return err
	}
	room.IsTyping = isTyping

	s.persist(ctx)
	s.emit(EventTypingIndicator, TypingIndicatorPayload{ChatroomID: room.ID, IsTyping: isTyping})
	return nil
}

// LoadOlderMessages prepends page to the resolved chatroom's history, oldest
// first, and advances its page counter. Messages whose id already exists in
// the chatroom are skipped.
func (s *Store) LoadOlderMessages(ctx context.Context, chatroomID *uuid.UUID, page []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolve(chatroomID)
	if err != nil {
		return err
	}

	seen := make(map[uuid.UUID]struct{}, len(room.Messages)+len(page))
	for _, m := range room.Messages {
		seen[m.ID] = struct{}{}
	}
	older := make([]models.Message, 0, len(page))
	for _, m := range page {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		older = append(older, m)
	}
	sort.SliceStable(older, func(i, j int) bool {
		return older[i].Timestamp.Before(older[j].Timestamp)
	})

	merged := make([]models.Message, 0, len(older)+len(room.Messages))
	merged = append(merged, older...)
	merged = append(merged, room.Messages...)
	room.Messages = merged
	room.CurrentPage++
	room.TotalMessages = len(room.Messages)
	if room.CurrentPage >= models.MaxHistoryPage {
		room.HasMoreMessages = false
	}

	s.persist(ctx)
	s.emit(EventOlderMessagesLoaded, OlderMessagesPayload{
		ChatroomID:      room.ID,
		Messages:        append([]models.Message(nil), older...),
		CurrentPage:     room.CurrentPage,
		HasMoreMessages: room.HasMoreMessages,
		TotalMessages:   room.TotalMessages,
	})
	return nil
}

// ClearChatroomMessages empties a chatroom and resets its pagination.
func (s *Store) ClearChatroomMessages(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolve(&id)
	if err != nil {
		return err
	}
	room.Messages = []models.Message{}
	room.CurrentPage = 1
	room.HasMoreMessages = true
	room.TotalMessages = 0
	room.LastActivity = s.now()

	s.persist(ctx)
	s.emit(EventMessagesCleared, MessagesClearedPayload{ChatroomID: room.ID, LastActivity: room.LastActivity})
	return nil
}

// InitializeWithDummyMessages replaces a chatroom's history with a short
// sample conversation.
func (s *Store) InitializeWithDummyMessages(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolve(&id)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	room.Messages = []models.Message{
		{
			ID:        uuid.New(),
			Content:   "Hello! How can I help you today?",
			IsUser:    false,
			Timestamp: models.NewJSONTime(now.Add(-60 * time.Second)),
		},
		{
			ID:        uuid.New(),
			Content:   "Hi there! I'd like to know more about Next.js",
			IsUser:    true,
			Timestamp: models.NewJSONTime(now.Add(-30 * time.Second)),
		},
		{
			ID:        uuid.New(),
			Content:   "Next.js is a React framework that gives you building blocks to create web applications. It provides features like server-side rendering, static site generation, and API routes out of the box.",
			IsUser:    false,
			Timestamp: models.NewJSONTime(now.Add(-15 * time.Second)),
		},
	}
	room.TotalMessages = len(room.Messages)
	room.LastActivity = models.NewJSONTime(now)

	s.persist(ctx)
	s.emit(EventChatroomSeeded, room.Clone())
	return nil
}

// InitializeDefaultChatroom creates the "General Chat" room when the store is
// empty. It reports whether a chatroom was created.
func (s *Store) InitializeDefaultChatroom(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.state.Chatrooms) > 0 {
		return false
	}
	room := models.NewChatroom(models.DefaultChatroomName, s.now())
	s.state.Chatrooms = append(s.state.Chatrooms, room)
	id := room.ID
	s.state.ActiveChatroomID = &id

	s.persist(ctx)
	s.emit(EventChatroomCreated, room.Clone())
	return true
}

// LoadChatData replaces the collection wholesale, typically with data
// restored from persistence, and does not write it back. Restored rooms are
// normalized: duplicate ids are dropped, counters recomputed and typing
// flags cleared since no response survives a restart.
func (s *Store) LoadChatData(chatrooms []models.Chatroom) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]models.Chatroom, 0, len(chatrooms))
	seen := make(map[uuid.UUID]struct{}, len(chatrooms))
	for _, c := range chatrooms {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		room := c.Clone()
		room.TotalMessages = len(room.Messages)
		room.IsTyping = false
		if room.CurrentPage < 1 {
			room.CurrentPage = 1
		}
		if room.CurrentPage >= models.MaxHistoryPage {
			room.HasMoreMessages = false
		}
		rooms = append(rooms, room)
	}

	s.state.Chatrooms = rooms
	s.state.ActiveChatroomID = nil
	if len(rooms) > 0 {
		first := rooms[0].ID
		s.state.ActiveChatroomID = &first
	}

	s.emit(EventChatLoaded, s.snapshotLocked())
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() models.ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() models.ChatState {
	rooms := make([]models.Chatroom, len(s.state.Chatrooms))
	for i, c := range s.state.Chatrooms {
		rooms[i] = c.Clone()
	}
	return models.ChatState{
		Chatrooms:        rooms,
		ActiveChatroomID: copyID(s.state.ActiveChatroomID),
		MessagesPerPage:  s.state.MessagesPerPage,
	}
}

// Chatroom returns a copy of the chatroom addressed by id, or the active one
// when id is nil.
func (s *Store) Chatroom(id *uuid.UUID) (models.Chatroom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolve(id)
	if err != nil {
		return models.Chatroom{}, err
	}
	return room.Clone(), nil
}

// ActiveChatroom returns a copy of the active chatroom.
func (s *Store) ActiveChatroom() (models.Chatroom, error) {
	return s.Chatroom(nil)
}

// Count returns the number of chatrooms.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Chatrooms)
}

// Restore loads chatData from persistence and ensures a default chatroom
// exists. Unreadable or unreachable data is logged and treated as absent.
func (s *Store) Restore(ctx context.Context) {
	data, err := s.persistence.GetChatData(ctx)
	if err != nil {
		if errors.Is(err, store.ErrDeserialization) {
			s.log.Warn().Err(err).Msg("stored chat data is malformed, starting fresh")
		} else {
			s.log.Warn().Err(err).Msg("failed to restore chat data, starting fresh")
		}
		data = nil
	}
	if data != nil {
		s.LoadChatData(data.Chatrooms)
		s.log.Info().Int("chatrooms", len(data.Chatrooms)).Msg("chat data restored")
	}
	if s.InitializeDefaultChatroom(ctx) {
		s.log.Info().Msg("default chatroom created")
	}
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
