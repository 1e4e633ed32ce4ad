package ws

import (
	"context"
	"encoding/json"
	"sync"

	"creatively/internal/logger"
	"creatively/internal/query"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const MessageInvalidate = "invalidate"

// Message уходит клиенту, когда данные под ключом устарели и их пора перечитать.
type Message struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// Hub держит подключённые дашборды и рассылает им инвалидации кэша.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	once       sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Attach подписывает хаб на инвалидации кэша запросов.
func (h *Hub) Attach(cache *query.Client) {
	cache.OnInvalidate(h.Notify)
}

func (h *Hub) Run(ctx context.Context) {
	defer h.once.Do(func() { close(h.done) })
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			logger.Debug("WS: Клиент подключён", zap.String("user_id", client.UserID), zap.Int("clients", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// медленный клиент, отключаем
					delete(h.clients, client)
					close(client.Send)
				}
			}
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			return
		}
	}
}

// Notify вызывается из Invalidate и поэтому никогда не блокирует.
func (h *Hub) Notify(key query.Key) {
	payload, err := json.Marshal(Message{Type: MessageInvalidate, Key: key.String()})
	if err != nil {
		logger.Warn("WS: Не удалось сериализовать сообщение", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		logger.Warn("WS: Очередь рассылки переполнена, сообщение пропущено", zap.String("key", key.String()))
	}
}

// Register добавляет клиента. false, если хаб уже остановлен.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

type Client struct {
	Conn   *websocket.Conn
	Hub    *Hub
	Send   chan []byte
	UserID string
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}
}
