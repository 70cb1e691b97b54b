package progress

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// Hub 通过 WebSocket 广播进度事件
type Hub struct {
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
	clients     map[*websocket.Conn]struct{}
	clientMutex sync.RWMutex
	broadcast   chan Event

	lastMu sync.RWMutex
	last   *Event
}

// NewHub 创建广播中心
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Event, 100),
	}
}

// Run 运行广播循环，直到 ctx 取消
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case e := <-h.broadcast:
			h.send(e)
		}
	}
}

func (h *Hub) send(e Event) {
	h.clientMutex.RLock()
	var dead []*websocket.Conn
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(e); err != nil {
			h.logger.WithError(err).Debug("Failed to write to WebSocket client")
			dead = append(dead, conn)
		}
	}
	h.clientMutex.RUnlock()

	for _, conn := range dead {
		h.remove(conn)
	}
}

// Publish 发布事件；缓冲区满时丢弃，不阻塞调用方
func (h *Hub) Publish(e Event) {
	h.lastMu.Lock()
	h.last = &e
	h.lastMu.Unlock()

	select {
	case h.broadcast <- e:
	default:
		h.logger.Warn("Progress channel is full, dropping event")
	}
}

// Reporter 返回指定阶段的进度回调
func (h *Hub) Reporter(phase string) Func {
	return func(done, total int, item string) {
		h.Publish(Event{Phase: phase, Done: done, Total: total, Item: item})
	}
}

// Last 最近一次发布的事件
func (h *Hub) Last() (Event, bool) {
	h.lastMu.RLock()
	defer h.lastMu.RUnlock()
	if h.last == nil {
		return Event{}, false
	}
	return *h.last, true
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.clientMutex.RLock()
	defer h.clientMutex.RUnlock()
	return len(h.clients)
}

// ServeWS 升级为 WebSocket 并保持连接，连接时先推送最近一次事件
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	if e, ok := h.Last(); ok {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(e)
	}

	h.clientMutex.Lock()
	h.clients[conn] = struct{}{}
	h.clientMutex.Unlock()

	h.logger.WithField("remote", r.RemoteAddr).Info("WebSocket client connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("WebSocket error")
			}
			break
		}
	}

	h.remove(conn)
	h.logger.WithField("remote", r.RemoteAddr).Info("WebSocket client disconnected")
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.clientMutex.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.clientMutex.Unlock()
}

func (h *Hub) closeAll() {
	h.clientMutex.Lock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	h.clientMutex.Unlock()
}
