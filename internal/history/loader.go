package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"geminichat-backend/internal/chat"
	"geminichat-backend/internal/clock"
	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoMoreMessages = errors.New("no older messages available")
	ErrLoadInFlight   = errors.New("older messages are already loading")
	ErrInvalidPage    = errors.New("page must be at least 1")
)

const (
	// PageSize is the number of messages synthesized per older page.
	PageSize = 10
	// DefaultDelay simulates the latency of fetching a page.
	DefaultDelay = 1 * time.Second

	pageSpacing    = 10 * time.Minute
	messageSpacing = time.Minute
)

// ChatStore is the subset of the chat store the loader needs.
type ChatStore interface {
	Chatroom(id *uuid.UUID) (models.Chatroom, error)
	LoadOlderMessages(ctx context.Context, chatroomID *uuid.UUID, page []models.Message) error
}

// GeneratePage synthesizes one page of older history whose newest message
// sits at anchor. Messages are one minute apart and returned oldest first.
func GeneratePage(page int, anchor time.Time) []models.Message {
	out := make([]models.Message, PageSize)
	for k := 0; k < PageSize; k++ {
		out[PageSize-1-k] = models.Message{
			ID:        uuid.New(),
			Content:   fmt.Sprintf("This is a dummy message from page %d, message %d. This simulates older conversation history.", page, k+1),
			IsUser:    k%2 == 0,
			Timestamp: models.NewJSONTime(anchor.Add(-time.Duration(k) * messageSpacing)),
		}
	}
	return out
}

// Anchor returns the timestamp of the newest message on the given page. It
// stays strictly before the chatroom's earliest message.
func Anchor(now time.Time, page int, room models.Chatroom) time.Time {
	anchor := now.Add(-time.Duration(page) * pageSpacing)
	if earliest, ok := room.EarliestTimestamp(); ok {
		limit := earliest.Time().Add(-messageSpacing)
		if limit.Before(anchor) {
			anchor = limit
		}
	}
	return anchor
}

// Loader fetches older pages after a delay, one load per chatroom at a time.
type Loader struct {
	mu       sync.Mutex
	store    ChatStore
	clock    clock.Clock
	delay    time.Duration
	inFlight map[uuid.UUID]clock.Timer
	log      zerolog.Logger
}

func NewLoader(store ChatStore, clk clock.Clock, delay time.Duration) *Loader {
	if clk == nil {
		clk = clock.Real{}
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Loader{
		store:    store,
		clock:    clk,
		delay:    delay,
		inFlight: make(map[uuid.UUID]clock.Timer),
		log:      logger.Component("history"),
	}
}

// RequestOlder schedules the next older page for the chatroom.
func (l *Loader) RequestOlder(ctx context.Context, chatroomID uuid.UUID) error {
	room, err := l.store.Chatroom(&chatroomID)
	if err != nil {
		return err
	}
	if !room.HasMoreMessages {
		return ErrNoMoreMessages
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.inFlight[chatroomID]; busy {
		return ErrLoadInFlight
	}

	var timer clock.Timer
	timer = l.clock.AfterFunc(l.delay, func() {
		l.mu.Lock()
		if l.inFlight[chatroomID] != timer {
			l.mu.Unlock()
			return
		}
		delete(l.inFlight, chatroomID)
		l.mu.Unlock()

		l.load(chatroomID)
	})
	l.inFlight[chatroomID] = timer

	lg := logger.Ctx(ctx)
	lg.Debug().Str(logger.FieldChatroomID, chatroomID.String()).Int("page", room.CurrentPage).Msg("older page requested")
	return nil
}

func (l *Loader) load(chatroomID uuid.UUID) {
	// Re-read the room: it may have changed since the request.
	room, err := l.store.Chatroom(&chatroomID)
	if err != nil || !room.HasMoreMessages {
		return
	}
	page := GeneratePage(room.CurrentPage, Anchor(l.clock.Now(), room.CurrentPage, room))
	if err := l.store.LoadOlderMessages(context.Background(), &chatroomID, page); err != nil && !errors.Is(err, chat.ErrChatroomNotFound) {
		l.log.Warn().Err(err).Str(logger.FieldChatroomID, chatroomID.String()).Msg("failed to load older messages")
	}
}

// Loading reports whether a load is in flight for the chatroom.
func (l *Loader) Loading(chatroomID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inFlight[chatroomID]
	return ok
}

// Cancel drops the chatroom's in-flight load. It reports whether one was
// pending.
func (l *Loader) Cancel(chatroomID uuid.UUID) bool {
	l.mu.Lock()
	timer, ok := l.inFlight[chatroomID]
	delete(l.inFlight, chatroomID)
	l.mu.Unlock()

	if ok {
		timer.Stop()
	}
	return ok
}

// Stop cancels every in-flight load.
func (l *Loader) Stop() {
	l.mu.Lock()
	timers := l.inFlight
	l.inFlight = make(map[uuid.UUID]clock.Timer)
	l.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

// Page slices a chatroom's history into pages counted from the newest end:
// page 1 holds the latest perPage messages. Messages within a page stay
// oldest first.
func Page(room models.Chatroom, page, perPage int) (models.MessagePage, error) {
	if page < 1 {
		return models.MessagePage{}, ErrInvalidPage
	}
	if perPage <= 0 {
		perPage = models.MessagesPerPage
	}

	total := len(room.Messages)
	skip := total
	if page-1 <= total/perPage {
		skip = (page - 1) * perPage
	}
	end := total - skip
	start := end - perPage
	if end < 0 {
		end = 0
	}
	if start < 0 {
		start = 0
	}

	msgs := make([]models.Message, end-start)
	copy(msgs, room.Messages[start:end])
	return models.MessagePage{
		ChatroomID: room.ID,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		HasMore:    start > 0 || room.HasMoreMessages,
		Messages:   msgs,
	}, nil
}
