package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"orthobox-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// watcher serializes writes to one connection; gorilla allows a single
// concurrent writer.
type watcher struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *watcher) write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub pushes result events to the waiting pages watching a session. With
// Redis configured, events fan out across instances through pub/sub.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*watcher
	redisClient *redis.Client
	cancelFuncs map[string]context.CancelFunc
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		connections: make(map[string][]*watcher),
		redisClient: redisClient,
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

func channelName(sessionID string) string {
	return "session_results:" + sessionID
}

// Watch upgrades the request and streams events for sessionID.
func (h *Hub) Watch(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wt := &watcher{conn: conn}
	h.registerConnection(sessionID, wt)

	go func() {
		defer h.unregisterConnection(sessionID, wt)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(sessionID string, wt *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[sessionID] = append(h.connections[sessionID], wt)

	if h.redisClient != nil && len(h.connections[sessionID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[sessionID] = cancel
		go h.subscribeToPubSub(ctx, sessionID)
	}

	log.Printf("WebSocket connected: session %s (total: %d)", sessionID, len(h.connections[sessionID]))
}

func (h *Hub) unregisterConnection(sessionID string, wt *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	wt.conn.Close()

	conns := h.connections[sessionID]
	for i, c := range conns {
		if c == wt {
			h.connections[sessionID] = append(conns[:i:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, sessionID)
		}
	}

	log.Printf("WebSocket disconnected: session %s", sessionID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, sessionID string) {
	pubsub := h.redisClient.Subscribe(ctx, channelName(sessionID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(sessionID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(sessionID string, data []byte) {
	h.mu.RLock()
	watchers := append([]*watcher(nil), h.connections[sessionID]...)
	h.mu.RUnlock()

	for _, wt := range watchers {
		if err := wt.write(data); err != nil {
			log.Printf("WebSocket write failed for session %s: %v", sessionID, err)
		}
	}
}

// Watchers reports how many local connections follow sessionID.
func (h *Hub) Watchers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}

// PublishResult sends a "result" message to everyone watching the session.
func (h *Hub) PublishResult(ctx context.Context, event models.ResultEvent) {
	data, err := json.Marshal(models.WSMessage{Type: "result", Payload: event})
	if err != nil {
		return
	}

	if h.redisClient != nil {
		err := h.redisClient.Publish(ctx, channelName(event.SessionID), data).Err()
		if err == nil {
			return
		}
		log.Printf("Redis publish failed, delivering locally: %v", err)
	}
	h.broadcast(event.SessionID, data)
}
