package responder

import (
	"context"
	"errors"
	"math/rand"
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
	ErrResponsePending = errors.New("a response is already pending for this chatroom")
)

// Catalog holds the canned replies the assistant picks from.
var Catalog = []string{
	"I understand your question. Let me help you with that.",
	"That's an interesting point. Here's what I think about it:",
	"Based on what you've shared, I'd recommend considering these aspects:",
	"Great question! This is a topic I can definitely help you explore.",
	"I see what you're getting at. Let me break this down for you:",
	"That's a common question, and I'm happy to provide some insights.",
	"Excellent topic! Here's my perspective on this:",
	"I can help you understand this better. Let me explain:",
}

const (
	DefaultMinDelay = 1 * time.Second
	DefaultMaxDelay = 3 * time.Second
)

// ChatStore is the subset of the chat store the responder drives.
type ChatStore interface {
	SetTyping(ctx context.Context, chatroomID *uuid.UUID, isTyping bool) error
	AddMessage(ctx context.Context, params chat.AddMessageParams) (models.Message, error)
}

// Config tunes reply timing. Zero values select the defaults.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Rand     *rand.Rand
}

type pendingReply struct {
	timer clock.Timer
}

// Responder simulates an assistant that answers after a random delay.
type Responder struct {
	mu       sync.Mutex
	store    ChatStore
	clock    clock.Clock
	rng      *rand.Rand
	minDelay time.Duration
	maxDelay time.Duration
	pending  map[uuid.UUID]*pendingReply
	log      zerolog.Logger
}

func New(store ChatStore, clk clock.Clock, cfg Config) *Responder {
	if clk == nil {
		clk = clock.Real{}
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Responder{
		store:    store,
		clock:    clk,
		rng:      cfg.Rand,
		minDelay: cfg.MinDelay,
		maxDelay: cfg.MaxDelay,
		pending:  make(map[uuid.UUID]*pendingReply),
		log:      logger.Component("responder"),
	}
}

// delay must be called with r.mu held.
func (r *Responder) delay() time.Duration {
	span := r.maxDelay - r.minDelay
	if span <= 0 {
		return r.minDelay
	}
	return r.minDelay + time.Duration(r.rng.Int63n(int64(span)))
}

// Respond marks the chatroom as typing and schedules one canned reply.
func (r *Responder) Respond(ctx context.Context, chatroomID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.pending[chatroomID]; busy {
		return ErrResponsePending
	}
	if err := r.store.SetTyping(ctx, &chatroomID, true); err != nil {
		return err
	}

	content := Catalog[r.rng.Intn(len(Catalog))]
	reply := &pendingReply{}
	reply.timer = r.clock.AfterFunc(r.delay(), func() {
		r.deliver(chatroomID, reply, content)
	})
	r.pending[chatroomID] = reply
	return nil
}

func (r *Responder) deliver(chatroomID uuid.UUID, reply *pendingReply, content string) {
	r.mu.Lock()
	if r.pending[chatroomID] != reply {
		r.mu.Unlock()
		return
	}
	delete(r.pending, chatroomID)
	r.mu.Unlock()

	ctx := context.Background()
	if _, err := r.store.AddMessage(ctx, chat.AddMessageParams{ChatroomID: &chatroomID, Content: content}); err != nil {
		if !errors.Is(err, chat.ErrChatroomNotFound) {
			r.log.Error().Err(err).Str(logger.FieldChatroomID, chatroomID.String()).Msg("failed to add reply")
		}
		return
	}
	if err := r.store.SetTyping(ctx, &chatroomID, false); err != nil && !errors.Is(err, chat.ErrChatroomNotFound) {
		r.log.Error().Err(err).Str(logger.FieldChatroomID, chatroomID.String()).Msg("failed to clear typing flag")
	}
}

// Pending reports whether a reply is scheduled for the chatroom.
func (r *Responder) Pending(chatroomID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[chatroomID]
	return ok
}

// Cancel drops the chatroom's scheduled reply. It reports whether one was
// pending.
func (r *Responder) Cancel(chatroomID uuid.UUID) bool {
	r.mu.Lock()
	reply, ok := r.pending[chatroomID]
	delete(r.pending, chatroomID)
	r.mu.Unlock()

	if ok {
		reply.timer.Stop()
		r.log.Debug().Str(logger.FieldChatroomID, chatroomID.String()).Msg("pending reply cancelled")
	}
	return ok
}

// Stop cancels every scheduled reply.
func (r *Responder) Stop() {
	r.mu.Lock()
	replies := r.pending
	r.pending = make(map[uuid.UUID]*pendingReply)
	r.mu.Unlock()

	for _, reply := range replies {
		reply.timer.Stop()
	}
}
