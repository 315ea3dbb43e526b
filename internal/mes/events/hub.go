// Package events 向浏览器推送批次、容器、BOM、COA 的变更（Server-Sent Events）
package events

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event 一条推送事件
type Event struct {
	Type    string // SSE event 字段，如 batch_update
	Company string // 为空时推送给所有客户端
	Data    []byte
}

// Change 实体变更内容
type Change struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	UserID     string    `json:"user_id"`
	At         time.Time `json:"at"`
}

// Client 已连接的订阅者
type Client struct {
	ID      string
	UserID  string
	Company string
	Events  chan Event
}

// Hub 管理所有 SSE 连接
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

// Register 加入订阅
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("SSE client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.Int("total", len(h.clients)))
}

// Unregister 移除订阅并关闭通道
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("SSE client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Close 断开所有订阅，服务停止前调用
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.Events)
		delete(h.clients, id)
	}
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 非阻塞投递，缓冲区满的客户端跳过
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if event.Company != "" && client.Company != "" && client.Company != event.Company {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("SSE client buffer full, skipping event",
				zap.String("client_id", client.ID),
				zap.String("event", event.Type))
		}
	}
}

// Publish 以 {entity_type}_update 为事件名广播变更
func (h *Hub) Publish(company string, c Change) {
	data, err := json.Marshal(c)
	if err != nil {
		h.logger.Warn("SSE event encode failed", zap.Error(err))
		return
	}
	h.Broadcast(Event{Type: c.EntityType + "_update", Company: company, Data: data})
}
