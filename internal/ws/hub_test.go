package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"creatively/internal/auth"
	"creatively/internal/models"
	"creatively/internal/query"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := models.Identity{ID: "u1", Email: "u1@example.com"}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		resp.Body.Close()
	})
	return conn
}

// TestHub_BroadcastsInvalidation тестирует доставку инвалидации кэша клиенту
func TestHub_BroadcastsInvalidation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	cache := query.NewClient()
	defer cache.Close()
	hub.Attach(cache)

	srv := httptest.NewServer(withUser(NewHandler(hub, nil)))
	defer srv.Close()
	conn := dial(t, srv)

	// регистрация асинхронная, повторяем инвалидацию до первого сообщения
	received := make(chan Message, 1)
	go func() {
		var msg Message
		if _, data, err := conn.ReadMessage(); err == nil && json.Unmarshal(data, &msg) == nil {
			received <- msg
		}
	}()

	var msg Message
	require.Eventually(t, func() bool {
		cache.Invalidate(query.NewKey("tasks"))
		select {
		case msg = <-received:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, MessageInvalidate, msg.Type)
	assert.Equal(t, "tasks", msg.Key)
}

func TestHandler_RequiresIdentity(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_CheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"без ограничений", nil, "https://evil.example", true},
		{"разрешённый источник", []string{"https://app.example"}, "https://app.example", true},
		{"чужой источник", []string{"https://app.example"}, "https://evil.example", false},
		{"тот же хост", []string{"https://app.example"}, "http://api.example", true},
		{"звёздочка", []string{"*"}, "https://any.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil, tt.allowed)
			r := httptest.NewRequest(http.MethodGet, "http://api.example/ws", nil)
			r.Host = "api.example"
			r.Header.Set("Origin", tt.origin)
			assert.Equal(t, tt.want, h.checkOrigin(r))
		})
	}
}

func TestHub_NotifyNeverBlocks(t *testing.T) {
	hub := NewHub()
	// хаб не запущен: буфер заполняется, лишние сообщения отбрасываются
	done := make(chan struct{})
	go func() {
		for range 200 {
			hub.Notify(query.NewKey("calendar"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify заблокировался")
	}
}

func TestHub_RegisterAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.False(t, hub.Register(NewClient(hub, nil, "u1")))
}
