package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"creatively/internal/auth"
	"creatively/internal/logger"
	"creatively/internal/models"

	"go.uber.org/zap"
)

// Authenticator кладёт в контекст пользователя из bearer-токена. Если задан
// verifier, токен проверяется локально, иначе запросом к провайдеру.
type Authenticator struct {
	verifier *auth.Verifier
	provider auth.Provider
}

func NewAuthenticator(verifier *auth.Verifier, provider auth.Provider) *Authenticator {
	return &Authenticator{verifier: verifier, provider: provider}
}

// bearerToken читает заголовок Authorization. Браузерный websocket не умеет
// ставить заголовки, поэтому для него принимается ?access_token=.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if token, ok := strings.CutPrefix(h, "bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("access_token")
}

func (a *Authenticator) identify(r *http.Request) (models.Identity, error) {
	token := bearerToken(r)
	if token == "" {
		return models.Identity{}, auth.ErrUnauthorized
	}
	if a.verifier != nil {
		return a.verifier.Verify(token)
	}
	return a.provider.User(r.Context(), token)
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.identify(r)
		if err != nil {
			logger.Warn("Auth: Запрос без действующего токена",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Error(err))

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="creatively"`)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"error":   "UNAUTHORIZED",
				"message": "Требуется вход в систему",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}
