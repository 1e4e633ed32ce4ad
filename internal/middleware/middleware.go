package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"creatively/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

const headerRequestID = "X-Request-ID"

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// statusRecorder запоминает код ответа и объём тела для журнала.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	sent   bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.sent {
		return
	}
	sr.status, sr.sent = code, true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.WriteHeader(http.StatusOK)
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Unwrap открывает исходный writer для http.ResponseController (websocket).
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zap.ErrorLevel
	case status >= 400:
		return zap.WarnLevel
	default:
		return zap.InfoLevel
	}
}

func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		id := GetRequestID(r.Context())

		logger.Info("HTTP_IN: Начало запроса",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("client_ip", clientIP(r)))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.Int("status", rec.status),
			zap.Int("bytes_written", rec.bytes),
			zap.Duration("ms", time.Since(started)),
		}
		// шаблон маршрута известен только после роутинга
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			fields = append(fields, zap.String("route", rc.RoutePattern()))
		}
		logger.Log(levelFor(rec.status), "HTTP_OUT: Завершение запроса", fields...)
	})
}

// Timeout ограничивает время, которое обработчик может ждать хранилище.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// window - счётчик запросов одного адреса в текущем окне.
type window struct {
	used    int
	resetAt time.Time
}

// limiter считает запросы по IP в окнах фиксированной длины.
type limiter struct {
	mtx     sync.Mutex
	perSpan int
	span    time.Duration
	windows map[string]*window
}

func newLimiter(perSpan int, span time.Duration) *limiter {
	return &limiter{perSpan: perSpan, span: span, windows: make(map[string]*window)}
}

// take списывает один запрос. ok == false, если окно исчерпано.
func (l *limiter) take(key string, now time.Time) (ok bool, left int, resetAt time.Time) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	win := l.windows[key]
	if win == nil || now.After(win.resetAt) {
		win = &window{resetAt: now.Add(l.span)}
		l.windows[key] = win
	}
	if win.used >= l.perSpan {
		return false, 0, win.resetAt
	}
	win.used++

	if len(l.windows) > 1024 {
		l.forget(now)
	}
	return true, l.perSpan - win.used, win.resetAt
}

// forget выбрасывает истёкшие окна. Вызывается под mtx.
func (l *limiter) forget(now time.Time) {
	for k, win := range l.windows {
		if now.After(win.resetAt) {
			delete(l.windows, k)
		}
	}
}

func RateLimit(rpm int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rpm <= 0 {
			return next
		}
		lim := newLimiter(rpm, time.Minute)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			ok, left, resetAt := lim.take(clientIP(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rpm))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(left))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if ok {
				next.ServeHTTP(w, r)
				return
			}

			wait := int(resetAt.Sub(now).Seconds())
			logger.Warn("RateLimit: Превышен лимит запросов",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.String("client_ip", clientIP(r)))

			h.Set("Content-Type", "application/json")
			h.Set("Retry-After", strconv.Itoa(wait))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":       "RATE_LIMIT_EXCEEDED",
				"message":     "Слишком много запросов. Попробуйте позже.",
				"retry":       true,
				"retry_after": wait,
				"request_id":  GetRequestID(r.Context()),
			})
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
