package chatroom

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"geminichat-backend/internal/chat"
	"geminichat-backend/internal/clock"
	"geminichat-backend/internal/history"
	"geminichat-backend/internal/models"
	"geminichat-backend/internal/responder"
	"geminichat-backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func pngDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
}

type restEnv struct {
	router    *gin.Engine
	store     *chat.Store
	clock     *clock.Fake
	responder *responder.Responder
	loader    *history.Loader
	service   *Service
}

func newRestEnv(t *testing.T) *restEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := clock.NewFake(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	cs := chat.NewStore(store.NewPersistence(store.NewMemoryKVStore(), fake), fake)
	cs.Restore(context.Background())
	r := responder.New(cs, fake, responder.Config{MinDelay: time.Second, MaxDelay: 3 * time.Second})
	l := history.NewLoader(cs, fake, time.Second)
	svc := NewService(cs, r, l)
	h := NewRestHandler(cs, svc)

	router := gin.New()
	router.GET("/chat/state", h.GetState)
	router.POST("/chatrooms", h.CreateChatroom)
	router.DELETE("/chatrooms/:id", h.DeleteChatroom)
	router.PUT("/chatrooms/active", h.SetActiveChatroom)
	router.POST("/chatrooms/:id/clear", h.ClearChatroom)
	router.POST("/chatrooms/:id/sample", h.SeedChatroom)
	router.GET("/chatrooms/:id/messages", h.GetMessages)
	router.POST("/chatrooms/:id/history", h.RequestHistory)
	router.POST("/messages", h.PostMessage)

	return &restEnv{router: router, store: cs, clock: fake, responder: r, loader: l, service: svc}
}

func (env *restEnv) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w.Code
}

func (env *restEnv) activeID(t *testing.T) uuid.UUID {
	t.Helper()
	room, err := env.store.ActiveChatroom()
	if err != nil {
		t.Fatalf("no active chatroom: %v", err)
	}
	return room.ID
}

func TestGetStateAfterRestore(t *testing.T) {
	env := newRestEnv(t)
	var state models.ChatState
	if code := env.do(t, http.MethodGet, "/chat/state", nil, &state); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(state.Chatrooms) != 1 || state.Chatrooms[0].Name != models.DefaultChatroomName {
		t.Fatalf("state = %+v", state)
	}
	if state.MessagesPerPage != models.MessagesPerPage {
		t.Fatalf("messagesPerPage = %d", state.MessagesPerPage)
	}
}

func TestCreateChatroom(t *testing.T) {
	env := newRestEnv(t)

	var unnamed models.Chatroom
	if code := env.do(t, http.MethodPost, "/chatrooms", nil, &unnamed); code != http.StatusCreated {
		t.Fatalf("status = %d", code)
	}
	if unnamed.Name != "Chat 2" {
		t.Fatalf("name = %q", unnamed.Name)
	}

	var work models.Chatroom
	env.do(t, http.MethodPost, "/chatrooms", gin.H{"name": "Work"}, &work)
	state := env.store.Snapshot()
	if len(state.Chatrooms) != 3 || *state.ActiveChatroomID != work.ID {
		t.Fatalf("state = %+v", state)
	}

	if code := env.do(t, http.MethodPost, "/chatrooms", gin.H{"name": strings.Repeat("x", 101)}, nil); code != http.StatusBadRequest {
		t.Fatalf("long name status = %d", code)
	}
}

func TestDeleteChatroom(t *testing.T) {
	env := newRestEnv(t)
	first := env.activeID(t)

	if code := env.do(t, http.MethodDelete, "/chatrooms/"+first.String(), nil, nil); code != http.StatusConflict {
		t.Fatalf("deleting the last chatroom status = %d", code)
	}

	second := env.store.CreateChatroom(context.Background(), "B")
	var resp struct {
		ActiveChatroomID *uuid.UUID `json:"activeChatroomId"`
	}
	if code := env.do(t, http.MethodDelete, "/chatrooms/"+second.ID.String(), nil, &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.ActiveChatroomID == nil || *resp.ActiveChatroomID != first {
		t.Fatalf("active = %v, want %s", resp.ActiveChatroomID, first)
	}

	if code := env.do(t, http.MethodDelete, "/chatrooms/"+uuid.NewString(), nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d", code)
	}
	if code := env.do(t, http.MethodDelete, "/chatrooms/not-a-uuid", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", code)
	}
}

func TestDeleteCancelsPendingReply(t *testing.T) {
	env := newRestEnv(t)
	ctx := context.Background()
	doomed := env.store.CreateChatroom(ctx, "Doomed")

	if code := env.do(t, http.MethodPost, "/messages", gin.H{"chatroomId": doomed.ID, "content": "hello"}, nil); code != http.StatusCreated {
		t.Fatalf("post status = %d", code)
	}
	if code := env.do(t, http.MethodPost, "/chatrooms/"+doomed.ID.String()+"/history", nil, nil); code != http.StatusAccepted {
		t.Fatalf("history status = %d", code)
	}
	if code := env.do(t, http.MethodDelete, "/chatrooms/"+doomed.ID.String(), nil, nil); code != http.StatusOK {
		t.Fatalf("delete status = %d", code)
	}
	if env.clock.Pending() != 0 {
		t.Fatalf("%d timers left after delete", env.clock.Pending())
	}
	env.clock.Advance(5 * time.Second)
	for _, room := range env.store.Snapshot().Chatrooms {
		if len(room.Messages) != 0 {
			t.Fatalf("chatroom %s received messages", room.Name)
		}
	}
}

// serve runs one request without touching t, so it can be called from
// several goroutines.
func (env *restEnv) serve(method, path string, body interface{}) int {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w.Code
}

func concurrently(n int, f func(i int) int) map[int]int {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := f(i)
			mu.Lock()
			codes[code]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	return codes
}

func TestConcurrentDeletesKeepOneChatroom(t *testing.T) {
	env := newRestEnv(t)
	ids := []uuid.UUID{env.activeID(t), env.store.CreateChatroom(context.Background(), "B").ID}

	codes := concurrently(len(ids), func(i int) int {
		return env.serve(http.MethodDelete, "/chatrooms/"+ids[i].String(), nil)
	})
	if codes[http.StatusOK] != 1 || codes[http.StatusConflict] != 1 {
		t.Fatalf("status codes = %v", codes)
	}

	snap := env.store.Snapshot()
	if len(snap.Chatrooms) != 1 || snap.ActiveChatroomID == nil || *snap.ActiveChatroomID != snap.Chatrooms[0].ID {
		t.Fatalf("state after deletes = %+v", snap)
	}
	if code := env.do(t, http.MethodPost, "/messages", gin.H{"content": "still here"}, nil); code != http.StatusCreated {
		t.Fatalf("post after deletes status = %d", code)
	}
}

func TestConcurrentSendsScheduleOneReply(t *testing.T) {
	env := newRestEnv(t)
	id := env.activeID(t)

	codes := concurrently(8, func(i int) int {
		return env.serve(http.MethodPost, "/messages", gin.H{"chatroomId": id, "content": "hello"})
	})
	if codes[http.StatusCreated] != 1 || codes[http.StatusConflict] != 7 {
		t.Fatalf("status codes = %v", codes)
	}

	room, _ := env.store.Chatroom(&id)
	if len(room.Messages) != 1 || !room.IsTyping || env.clock.Pending() != 1 {
		t.Fatalf("messages = %d, typing = %v, timers = %d", len(room.Messages), room.IsTyping, env.clock.Pending())
	}
	env.clock.Advance(3 * time.Second)
	room, _ = env.store.Chatroom(&id)
	if len(room.Messages) != 2 || room.IsTyping {
		t.Fatalf("after reply: messages = %d, typing = %v", len(room.Messages), room.IsTyping)
	}
}

func TestSetActiveChatroom(t *testing.T) {
	env := newRestEnv(t)
	first := env.activeID(t)
	env.store.CreateChatroom(context.Background(), "B")

	if code := env.do(t, http.MethodPut, "/chatrooms/active", gin.H{"chatroomId": first}, nil); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if env.activeID(t) != first {
		t.Fatal("active not switched")
	}

	if code := env.do(t, http.MethodPut, "/chatrooms/active", gin.H{"chatroomId": uuid.New()}, nil); code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d", code)
	}
	if env.activeID(t) != first {
		t.Fatal("unknown id moved the active pointer")
	}

	if code := env.do(t, http.MethodPut, "/chatrooms/active", gin.H{}, nil); code != http.StatusBadRequest {
		t.Fatalf("missing id status = %d", code)
	}
}

func TestPostMessageTriggersReply(t *testing.T) {
	env := newRestEnv(t)
	id := env.activeID(t)

	var resp models.SendMessageResponse
	if code := env.do(t, http.MethodPost, "/messages", gin.H{"content": "  What is Go?  "}, &resp); code != http.StatusCreated {
		t.Fatalf("status = %d", code)
	}
	if resp.Message == nil || resp.Message.Content != "What is Go?" || !resp.Message.IsUser || !resp.IsTyping || resp.ChatroomID != id {
		t.Fatalf("response = %+v", resp)
	}

	room, _ := env.store.Chatroom(&id)
	if !room.IsTyping || len(room.Messages) != 1 {
		t.Fatalf("room after post = %+v", room)
	}

	if code := env.do(t, http.MethodPost, "/messages", gin.H{"content": "again"}, nil); code != http.StatusConflict {
		t.Fatalf("post while typing status = %d", code)
	}

	env.clock.Advance(3 * time.Second)
	room, _ = env.store.Chatroom(&id)
	if room.IsTyping || len(room.Messages) != 2 || room.Messages[1].IsUser {
		t.Fatalf("room after reply = %+v", room)
	}
	if room.TotalMessages != 2 {
		t.Fatalf("totalMessages = %d", room.TotalMessages)
	}
}

func TestPostMessageValidation(t *testing.T) {
	env := newRestEnv(t)
	big := make([]byte, MaxImageBytes+1)
	copy(big, pngHeader)
	gif := "data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("plain text, not a picture"))

	cases := []struct {
		name string
		body gin.H
		want int
	}{
		{"empty", gin.H{"content": "   "}, http.StatusBadRequest},
		{"not a data uri", gin.H{"image": "http://example.com/cat.png"}, http.StatusBadRequest},
		{"declared non-image", gin.H{"image": "data:text/plain;base64,aGVsbG8="}, http.StatusBadRequest},
		{"sniffed non-image", gin.H{"image": gif}, http.StatusBadRequest},
		{"too large", gin.H{"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(big)}, http.StatusRequestEntityTooLarge},
		{"unknown chatroom", gin.H{"chatroomId": uuid.New(), "content": "hi"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code := env.do(t, http.MethodPost, "/messages", tc.body, nil); code != tc.want {
				t.Fatalf("status = %d, want %d", code, tc.want)
			}
		})
	}

	id := env.activeID(t)
	room, _ := env.store.Chatroom(&id)
	if len(room.Messages) != 0 {
		t.Fatal("rejected messages were stored")
	}
}

func TestPostImageOnlyMessage(t *testing.T) {
	env := newRestEnv(t)
	var resp models.SendMessageResponse
	if code := env.do(t, http.MethodPost, "/messages", gin.H{"image": pngDataURI()}, &resp); code != http.StatusCreated {
		t.Fatalf("status = %d", code)
	}
	if resp.Message.Content != models.ImageOnlyContent || resp.Message.Image != pngDataURI() {
		t.Fatalf("message = %+v", resp.Message)
	}
}

func TestClearAndSeed(t *testing.T) {
	env := newRestEnv(t)
	id := env.activeID(t)

	var seeded models.Chatroom
	if code := env.do(t, http.MethodPost, "/chatrooms/"+id.String()+"/sample", nil, &seeded); code != http.StatusOK {
		t.Fatalf("sample status = %d", code)
	}
	if len(seeded.Messages) != 3 || seeded.TotalMessages != 3 {
		t.Fatalf("seeded = %+v", seeded)
	}

	var cleared models.Chatroom
	if code := env.do(t, http.MethodPost, "/chatrooms/"+id.String()+"/clear", nil, &cleared); code != http.StatusOK {
		t.Fatalf("clear status = %d", code)
	}
	if len(cleared.Messages) != 0 || cleared.CurrentPage != 1 || !cleared.HasMoreMessages {
		t.Fatalf("cleared = %+v", cleared)
	}

	if code := env.do(t, http.MethodPost, "/chatrooms/"+uuid.NewString()+"/clear", nil, nil); code != http.StatusNotFound {
		t.Fatalf("clear unknown status = %d", code)
	}
}

func TestHistoryAndMessagePages(t *testing.T) {
	env := newRestEnv(t)
	id := env.activeID(t)
	path := "/chatrooms/" + id.String()

	if code := env.do(t, http.MethodPost, path+"/history", nil, nil); code != http.StatusAccepted {
		t.Fatalf("history status = %d", code)
	}
	if code := env.do(t, http.MethodPost, path+"/history", nil, nil); code != http.StatusConflict {
		t.Fatalf("second history status = %d", code)
	}
	env.clock.Advance(time.Second)
	env.do(t, http.MethodPost, path+"/history", nil, nil)
	env.clock.Advance(time.Second)

	var page models.MessagePage
	if code := env.do(t, http.MethodGet, path+"/messages", nil, &page); code != http.StatusOK {
		t.Fatalf("messages status = %d", code)
	}
	if page.Total != 2*history.PageSize || len(page.Messages) != models.MessagesPerPage || page.Page != 1 {
		t.Fatalf("page = %+v", page)
	}

	if code := env.do(t, http.MethodGet, path+"/messages?page=0", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("page 0 status = %d", code)
	}
}

func TestValidateImage(t *testing.T) {
	if err := ValidateImage(pngDataURI()); err != nil {
		t.Fatalf("png rejected: %v", err)
	}
	if err := ValidateImage("data:image/png;base64,!!!"); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("bad base64 error = %v", err)
	}
	if err := ValidateImage("data:image/png,rawdata"); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("non-base64 uri error = %v", err)
	}
}
