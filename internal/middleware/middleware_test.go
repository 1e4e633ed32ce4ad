package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creatively/internal/auth"
	"creatively/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

// TestRequestID тестирует генерацию и проброс идентификатора запроса
func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc", seen)
}

func TestLogging_KeepsStatus(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("x"))
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

// TestRateLimit тестирует отказ после исчерпания лимита
func TestRateLimit(t *testing.T) {
	h := RateLimit(2)(http.HandlerFunc(ok))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
			assert.Equal(t, "RATE_LIMIT_EXCEEDED", decode(t, w)["error"])
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// другой клиент не затронут
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTimeout_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var has bool
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, has = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	require.True(t, has)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
}

type stubProvider struct {
	tokens map[string]models.Identity
}

func (s stubProvider) SignUp(ctx context.Context, req auth.SignUpRequest) (*auth.Session, error) {
	return nil, errors.New("не поддерживается")
}

func (s stubProvider) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	return nil, errors.New("не поддерживается")
}

func (s stubProvider) SignOut(ctx context.Context, accessToken string) error { return nil }

func (s stubProvider) User(ctx context.Context, accessToken string) (models.Identity, error) {
	id, ok := s.tokens[accessToken]
	if !ok {
		return models.Identity{}, auth.ErrUnauthorized
	}
	return id, nil
}

// TestAuthenticator тестирует извлечение токена и проверку через провайдера и verifier
func TestAuthenticator(t *testing.T) {
	verifier := auth.NewVerifier("secret")
	signed, _, err := verifier.Sign(models.Identity{ID: "u2", Email: "b@example.com", Role: string(models.RoleMember)}, time.Hour, "jti")
	require.NoError(t, err)

	provider := stubProvider{tokens: map[string]models.Identity{"tok": {ID: "u1"}}}

	tests := []struct {
		name           string
		verifier       *auth.Verifier
		setup          func(r *http.Request)
		expectedStatus int
		expectedUser   string
	}{
		{
			name:           "no token",
			setup:          func(r *http.Request) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "provider bearer",
			setup:          func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok") },
			expectedStatus: http.StatusOK,
			expectedUser:   "u1",
		},
		{
			name: "provider query token",
			setup: func(r *http.Request) {
				r.URL.RawQuery = "access_token=tok"
			},
			expectedStatus: http.StatusOK,
			expectedUser:   "u1",
		},
		{
			name:           "provider rejects",
			setup:          func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "verifier",
			verifier:       verifier,
			setup:          func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+signed) },
			expectedStatus: http.StatusOK,
			expectedUser:   "u2",
		},
		{
			name:           "verifier rejects foreign token",
			verifier:       verifier,
			setup:          func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok") },
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var user string
			h := NewAuthenticator(tt.verifier, provider).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				id, _ := auth.FromContext(r.Context())
				user = id.ID
			}))

			req := httptest.NewRequest("GET", "/api/tasks", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedUser, user)
			if tt.expectedStatus == http.StatusUnauthorized {
				assert.Equal(t, "UNAUTHORIZED", decode(t, w)["error"])
			}
		})
	}
}

// TestRecovery тестирует обе границы восстановления после паники
func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("сломалось")
	})

	w := httptest.NewRecorder()
	Recovery(panicking).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decode(t, w)["error"])

	w = httptest.NewRecorder()
	CalendarRecovery(panicking).ServeHTTP(w, httptest.NewRequest("GET", "/calendar/day", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["fallback"])
	assert.Equal(t, "reload", body["action"])
}

func TestRecovery_PassesThrough(t *testing.T) {
	w := httptest.NewRecorder()
	Recovery(http.HandlerFunc(ok)).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
