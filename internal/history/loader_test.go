package history

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"geminichat-backend/internal/chat"
	"geminichat-backend/internal/clock"
	"geminichat-backend/internal/models"

	"github.com/google/uuid"
)

var epoch = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func TestGeneratePage(t *testing.T) {
	anchor := epoch.Add(-20 * time.Minute)
	page := GeneratePage(2, anchor)

	if len(page) != PageSize {
		t.Fatalf("len = %d, want %d", len(page), PageSize)
	}
	newest := page[len(page)-1]
	if !newest.Timestamp.Time().Equal(anchor) {
		t.Fatalf("newest timestamp = %v, want %v", newest.Timestamp.Time(), anchor)
	}
	if !newest.IsUser {
		t.Fatal("newest message should be from the user")
	}
	if want := "This is a dummy message from page 2, message 1. This simulates older conversation history."; newest.Content != want {
		t.Fatalf("content = %q", newest.Content)
	}
	oldest := page[0]
	if !oldest.Timestamp.Time().Equal(anchor.Add(-9 * time.Minute)) {
		t.Fatalf("oldest timestamp = %v", oldest.Timestamp.Time())
	}
	if !strings.Contains(oldest.Content, "message 10.") || oldest.IsUser {
		t.Fatalf("oldest message = %+v", oldest)
	}
	for i := 1; i < len(page); i++ {
		if page[i].Timestamp.Time().Sub(page[i-1].Timestamp.Time()) != time.Minute {
			t.Fatalf("messages %d and %d are not one minute apart", i-1, i)
		}
	}
}

func TestAnchorStaysBeforeEarliest(t *testing.T) {
	room := models.NewChatroom("A", models.NewJSONTime(epoch))
	if got := Anchor(epoch, 1, room); !got.Equal(epoch.Add(-10 * time.Minute)) {
		t.Fatalf("empty room anchor = %v", got)
	}

	room.Messages = []models.Message{{ID: uuid.New(), Timestamp: models.NewJSONTime(epoch.Add(-time.Hour))}}
	if got := Anchor(epoch, 1, room); !got.Equal(epoch.Add(-61 * time.Minute)) {
		t.Fatalf("anchor = %v, want one minute before earliest", got)
	}
}

func newLoader(t *testing.T) (*chat.Store, *clock.Fake, *Loader, models.Chatroom) {
	t.Helper()
	fake := clock.NewFake(epoch)
	cs := chat.NewStore(nil, fake)
	room := cs.CreateChatroom(context.Background(), "A")
	return cs, fake, NewLoader(cs, fake, 0), room
}

func TestRequestOlderLoadsAfterDelay(t *testing.T) {
	cs, fake, l, room := newLoader(t)
	ctx := context.Background()
	_, _ = cs.AddMessage(ctx, chat.AddMessageParams{Content: "latest", IsUser: true})

	if err := l.RequestOlder(ctx, room.ID); err != nil {
		t.Fatalf("RequestOlder: %v", err)
	}
	if err := l.RequestOlder(ctx, room.ID); !errors.Is(err, ErrLoadInFlight) {
		t.Fatalf("second request error = %v", err)
	}

	fake.Advance(DefaultDelay - time.Millisecond)
	if got, _ := cs.Chatroom(&room.ID); len(got.Messages) != 1 {
		t.Fatal("page loaded before the delay")
	}

	fake.Advance(time.Millisecond)
	got, _ := cs.Chatroom(&room.ID)
	if len(got.Messages) != 1+PageSize {
		t.Fatalf("len = %d", len(got.Messages))
	}
	if got.CurrentPage != 2 || got.TotalMessages != len(got.Messages) {
		t.Fatalf("page = %d, total = %d", got.CurrentPage, got.TotalMessages)
	}
	if got.Messages[len(got.Messages)-1].Content != "latest" {
		t.Fatal("latest message is no longer last")
	}
	for i := 1; i < len(got.Messages); i++ {
		if got.Messages[i].Timestamp.Before(got.Messages[i-1].Timestamp) {
			t.Fatalf("history out of order at %d", i)
		}
	}
	if l.Loading(room.ID) {
		t.Fatal("load still in flight")
	}
}

func TestRequestOlderUntilExhausted(t *testing.T) {
	cs, fake, l, room := newLoader(t)
	ctx := context.Background()

	for i := 0; i < models.MaxHistoryPage-1; i++ {
		if err := l.RequestOlder(ctx, room.ID); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		fake.Advance(DefaultDelay)
	}

	got, _ := cs.Chatroom(&room.ID)
	if got.HasMoreMessages || got.CurrentPage != models.MaxHistoryPage {
		t.Fatalf("page = %d, hasMore = %v", got.CurrentPage, got.HasMoreMessages)
	}
	if len(got.Messages) != (models.MaxHistoryPage-1)*PageSize {
		t.Fatalf("len = %d", len(got.Messages))
	}
	if err := l.RequestOlder(ctx, room.ID); !errors.Is(err, ErrNoMoreMessages) {
		t.Fatalf("request past the last page: %v", err)
	}
}

func TestRequestOlderUnknownChatroom(t *testing.T) {
	_, _, l, _ := newLoader(t)
	if err := l.RequestOlder(context.Background(), uuid.New()); !errors.Is(err, chat.ErrChatroomNotFound) {
		t.Fatalf("error = %v", err)
	}
}

func TestCancel(t *testing.T) {
	cs, fake, l, room := newLoader(t)
	ctx := context.Background()

	if err := l.RequestOlder(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	if !l.Cancel(room.ID) {
		t.Fatal("Cancel reported nothing in flight")
	}
	fake.Advance(DefaultDelay)
	if got, _ := cs.Chatroom(&room.ID); len(got.Messages) != 0 || got.CurrentPage != 1 {
		t.Fatal("cancelled load was applied")
	}
	if err := l.RequestOlder(ctx, room.ID); err != nil {
		t.Fatalf("request after cancel: %v", err)
	}
}

func TestLoadForDeletedChatroomIsDropped(t *testing.T) {
	cs, fake, l, room := newLoader(t)
	ctx := context.Background()

	if err := l.RequestOlder(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	if err := cs.DeleteChatroom(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	fake.Advance(DefaultDelay)
	if cs.Count() != 0 {
		t.Fatal("deleted chatroom came back")
	}
}

func TestPage(t *testing.T) {
	room := models.NewChatroom("A", models.NewJSONTime(epoch))
	for i := 0; i < 45; i++ {
		room.Messages = append(room.Messages, models.Message{ID: uuid.New(), Timestamp: models.NewJSONTime(epoch.Add(time.Duration(i) * time.Minute))})
	}
	room.TotalMessages = len(room.Messages)
	room.HasMoreMessages = false

	first, err := Page(room, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Messages) != 20 || first.Messages[19].ID != room.Messages[44].ID || !first.HasMore {
		t.Fatalf("first page = %+v", first)
	}

	last, _ := Page(room, 3, 20)
	if len(last.Messages) != 5 || last.Messages[0].ID != room.Messages[0].ID || last.HasMore {
		t.Fatalf("last page len = %d, hasMore = %v", len(last.Messages), last.HasMore)
	}

	beyond, _ := Page(room, 9, 20)
	if len(beyond.Messages) != 0 || beyond.Total != 45 {
		t.Fatalf("page past the end = %+v", beyond)
	}

	if _, err := Page(room, 0, 20); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("page 0 error = %v", err)
	}

	for _, page := range []int{math.MaxInt, math.MaxInt / 20, math.MaxInt/20 + 1} {
		huge, err := Page(room, page, 20)
		if err != nil || len(huge.Messages) != 0 || huge.HasMore {
			t.Fatalf("page %d = %+v, %v", page, huge, err)
		}
	}
}
