package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/gin-gonic/gin"
)

// Event is one server-sent event targeted at a single user.
type Event struct {
	UserID  string
	Type    string
	Payload interface{}
}

// Manager fans events out to every open connection of a user. It backs the
// "syncing" UI feedback: stage transitions and sync results are pushed here.
type Manager struct {
	mu         sync.RWMutex
	clients    map[string]map[chan Event]struct{} // userID -> connections
	broadcast  chan Event
	register   chan registration
	unregister chan registration
}

type registration struct {
	userID string
	ch     chan Event
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]map[chan Event]struct{}),
		broadcast:  make(chan Event, 256),
		register:   make(chan registration),
		unregister: make(chan registration),
	}
}

// Run processes registrations and broadcasts; start it once in main.
func (m *Manager) Run() {
	for {
		select {
		case reg := <-m.register:
			m.mu.Lock()
			if m.clients[reg.userID] == nil {
				m.clients[reg.userID] = make(map[chan Event]struct{})
			}
			m.clients[reg.userID][reg.ch] = struct{}{}
			m.mu.Unlock()
		case reg := <-m.unregister:
			m.mu.Lock()
			if conns, ok := m.clients[reg.userID]; ok {
				delete(conns, reg.ch)
				if len(conns) == 0 {
					delete(m.clients, reg.userID)
				}
			}
			m.mu.Unlock()
			close(reg.ch)
		case ev := <-m.broadcast:
			m.mu.RLock()
			for ch := range m.clients[ev.UserID] {
				select {
				case ch <- ev:
				default:
					// Slow consumer, drop instead of blocking the manager.
				}
			}
			m.mu.RUnlock()
		}
	}
}

// SendToUser queues an event for all of a user's open connections.
func (m *Manager) SendToUser(userID string, eventType string, payload interface{}) {
	select {
	case m.broadcast <- Event{UserID: userID, Type: eventType, Payload: payload}:
	default:
		log.Printf("[SSE] Broadcast buffer full, dropping %s event for user %s", eventType, userID)
	}
}

// ServeHTTP streams events for one authenticated user until the client
// disconnects.
func (m *Manager) ServeHTTP(c *gin.Context, userID string) {
	ch := make(chan Event, 16)
	m.register <- registration{userID: userID, ch: ch}
	defer func() {
		m.unregister <- registration{userID: userID, ch: ch}
	}()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-ch
		if !ok {
			return false
		}
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return true
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		return true
	})
}
