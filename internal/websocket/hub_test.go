package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"orthobox-backend/internal/models"
)

func watch(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Watch(w, r, sessionID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Watchers(sessionID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watcher never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn
}

func TestHub_PublishResultReachesWatcher(t *testing.T) {
	hub := NewHub(nil)
	conn := watch(t, hub, "abc")

	hub.PublishResult(context.Background(), models.ResultEvent{SessionID: "abc", Result: models.ResultPass, Grade: 1.0 / 3})
	hub.PublishResult(context.Background(), models.ResultEvent{SessionID: "other", Result: models.ResultFail})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg struct {
		Type    string             `json:"type"`
		Payload models.ResultEvent `json:"payload"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "result" || msg.Payload.SessionID != "abc" || msg.Payload.Result != models.ResultPass {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestHub_ConcurrentPublishesArriveWhole(t *testing.T) {
	hub := NewHub(nil)
	conn := watch(t, hub, "abc")

	const publishers = 20
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.PublishResult(context.Background(), models.ResultEvent{SessionID: "abc", Result: models.ResultPass, Grade: float64(i)})
		}(i)
	}
	wg.Wait()

	seen := make(map[float64]bool)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(seen) < publishers {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read after %d messages: %v", len(seen), err)
		}
		var msg struct {
			Payload models.ResultEvent `json:"payload"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("corrupt frame %q: %v", raw, err)
		}
		seen[msg.Payload.Grade] = true
	}
}
