package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/mpesa_anal_server/internal/pkg/pubsub"
)

const writeWait = 5 * time.Second

type Hub struct {
	// 每个会话可以有多个连接（多标签页、重连等场景）
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	SessionID string
	Conn      *websocket.Conn
	mu        sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.SessionID] == nil {
		h.clients[client.SessionID] = make(map[*Client]struct{})
	}
	h.clients[client.SessionID][client] = struct{}{}

	log.Debug().
		Str("session_id", client.SessionID).
		Int("session_conns", len(h.clients[client.SessionID])).
		Int("total", h.countLocked()).
		Msg("ws connected")
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.SessionID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.SessionID)
		}
	}
	log.Debug().Str("session_id", client.SessionID).Msg("ws disconnected")
}

// SendToSession 向指定会话的所有连接发送消息
func (h *Hub) SendToSession(sessionID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[sessionID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("ws write failed")
		}
	}
	return nil
}

// PublishProgress 把进度消息直接推送给本机连接
func (h *Hub) PublishProgress(_ context.Context, msg *pubsub.ProgressMessage) error {
	if msg.Type == "" {
		msg.Type = pubsub.TypeJobProgress
	}
	return h.SendToSession(msg.SessionID, &Message{Type: msg.Type, Data: msg})
}

// IsOnline 检查会话是否在线
func (h *Hub) IsOnline(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[sessionID]
	return ok && len(conns) > 0
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
