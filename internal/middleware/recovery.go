package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"creatively/internal/logger"

	"go.uber.org/zap"
)

func recovered(w http.ResponseWriter, r *http.Request, rec any, body map[string]any, status int) {
	if rec == http.ErrAbortHandler {
		panic(rec)
	}
	logger.Error("HTTP: Паника в обработчике", fmt.Errorf("%v", rec),
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.ByteString("stack", debug.Stack()))

	body["request_id"] = GetRequestID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				recovered(w, r, rec, map[string]any{
					"error":   "INTERNAL_ERROR",
					"message": "Внутренняя ошибка сервера",
				}, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CalendarRecovery - граница для страницы календаря: вместо голой 500
// отдаётся запасной экран с предложением перезагрузить.
func CalendarRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				recovered(w, r, rec, map[string]any{
					"fallback": true,
					"action":   "reload",
					"message":  "Не удалось загрузить календарь. Перезагрузите страницу.",
				}, http.StatusOK)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
