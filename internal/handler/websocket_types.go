// internal/handler/websocket_types.go
package handler

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"device-session/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	mutex sync.RWMutex
	// empty means every kind
	kinds map[model.EventKind]bool
}

// Subscribe adds event kinds to the client filter
func (c *Client) Subscribe(kinds ...model.EventKind) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.kinds == nil {
		c.kinds = make(map[model.EventKind]bool)
	}
	for _, k := range kinds {
		c.kinds[k] = true
	}
}

// Unsubscribe removes event kinds from the client filter
func (c *Client) Unsubscribe(kinds ...model.EventKind) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, k := range kinds {
		delete(c.kinds, k)
	}
}

// Wants reports whether the client receives events of kind
func (c *Client) Wants(kind model.EventKind) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.kinds) == 0 || c.kinds[kind]
}

// Subscriptions returns the subscribed kinds, empty for all
func (c *Client) Subscriptions() []model.EventKind {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	kinds := make([]model.EventKind, 0, len(c.kinds))
	for k := range c.kinds {
		kinds = append(kinds, k)
	}
	return kinds
}

// ParseKinds splits a comma separated kind list such as "IO_STATUS,raw_line"
func ParseKinds(value string) []model.EventKind {
	var kinds []model.EventKind
	for _, part := range strings.Split(value, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			kinds = append(kinds, model.EventKind(part))
		}
	}
	return kinds
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ConnectionManager tracks WebSocket clients. A client's Send channel is only
// written and closed under the manager lock.
type ConnectionManager struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.clients[client.ID] = client
}

// Unregister removes a client and closes its Send channel. Safe to call twice.
func (cm *ConnectionManager) Unregister(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if _, ok := cm.clients[client.ID]; ok {
		delete(cm.clients, client.ID)
		close(client.Send)
	}
}

// Deliver queues message for one client. It returns false when the client is
// gone or its queue is full.
func (cm *ConnectionManager) Deliver(client *Client, message []byte) bool {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	if _, ok := cm.clients[client.ID]; !ok {
		return false
	}
	select {
	case client.Send <- message:
		return true
	default:
		return false
	}
}

// Broadcast queues message for every client subscribed to kind and returns the
// IDs of clients whose queue was full
func (cm *ConnectionManager) Broadcast(kind model.EventKind, message []byte) (dropped []string) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	for _, client := range cm.clients {
		if !client.Wants(kind) {
			continue
		}
		select {
		case client.Send <- message:
		default:
			dropped = append(dropped, client.ID)
		}
	}
	return dropped
}

// CloseAll unregisters every client
func (cm *ConnectionManager) CloseAll() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	for id, client := range cm.clients {
		delete(cm.clients, id)
		close(client.Send)
	}
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		Clients:          make([]ClientInfo, 0, len(cm.clients)),
	}

	for _, client := range cm.clients {
		stats.Clients = append(stats.Clients, ClientInfo{
			ID:            client.ID,
			RemoteAddr:    client.RemoteAddr,
			UserAgent:     client.UserAgent,
			ConnectedAt:   client.ConnectedAt,
			Subscriptions: client.Subscriptions(),
		})
	}

	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int          `json:"total_connections"`
	Clients          []ClientInfo `json:"clients"`
}

// ClientInfo describes one connected client
type ClientInfo struct {
	ID            string            `json:"id"`
	RemoteAddr    string            `json:"remote_addr"`
	UserAgent     string            `json:"user_agent"`
	ConnectedAt   time.Time         `json:"connected_at"`
	Subscriptions []model.EventKind `json:"subscriptions"`
}
