package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creatively/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Development = false
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Server.RateLimit = 0
	require.NoError(t, cfg.Validate())

	a, err := New(cfg).Init(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a.Handler()
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

// TestApp_DashboardFlow тестирует путь пользователя через собранный роутер
func TestApp_DashboardFlow(t *testing.T) {
	h := newTestApp(t)

	rr, body := call(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr, _ = call(t, h, http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = call(t, h, http.MethodPost, "/auth/signup", "", map[string]any{
		"email": "anna@example.com", "password": "secret123", "full_name": "Anna",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr, body = call(t, h, http.MethodPost, "/auth/signin", "", map[string]any{
		"email": "anna@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	token := body["session"].(map[string]any)["access_token"].(string)
	require.NotEmpty(t, token)

	rr, body = call(t, h, http.MethodPost, "/api/tasks", token, map[string]any{
		"title": "Сдать макет", "priority": "high", "due_date": "2024-06-01",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "Задача создана", body["notice"])

	rr, body = call(t, h, http.MethodGet, "/api/calendar/day?date=2024-06-01", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	day := body["day"].(map[string]any)
	assert.Len(t, day["tasks"], 1)
	assert.Equal(t, false, day["empty"])

	rr, body = call(t, h, http.MethodGet, "/api/calendar/day?date=2024-06-02", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	day = body["day"].(map[string]any)
	assert.Equal(t, true, day["empty"])
	assert.Equal(t, "No events scheduled for this day.", day["message"])

	rr, body = call(t, h, http.MethodGet, "/api/capabilities", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, body["resources"])

	rr, _ = call(t, h, http.MethodPost, "/auth/signout", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, _ = call(t, h, http.MethodGet, "/api/tasks", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestApp_CalendarValidation(t *testing.T) {
	h := newTestApp(t)

	rr, _ := call(t, h, http.MethodPost, "/auth/signup", "", map[string]any{
		"email": "boris@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	_, body := call(t, h, http.MethodPost, "/auth/signin", "", map[string]any{
		"email": "boris@example.com", "password": "secret123",
	})
	token := body["session"].(map[string]any)["access_token"].(string)

	rr, body = call(t, h, http.MethodGet, "/api/calendar/day?date=2024-13-40", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["error"])

	rr, _ = call(t, h, http.MethodGet, "/api/tasks/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
