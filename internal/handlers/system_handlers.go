package handlers

import (
	"context"
	"net/http"
	"time"

	"creatively/internal/logger"

	"go.uber.org/zap"
)

const healthTimeout = 3 * time.Second

type SystemHandler struct {
	Store HealthChecker
	Caps  Capabilities
}

func NewSystemHandler(store HealthChecker, caps Capabilities) SystemHandler {
	return SystemHandler{Store: store, Caps: caps}
}

func (s *SystemHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.Store.HealthCheck(ctx); err != nil {
		logger.Warn("HTTP: Хранилище недоступно", zap.Error(err))
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("status", "unhealthy"),
			toPayload("service", "creatively"),
			toPayload("time", time.Now().UTC()),
		)
		return
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("status", "healthy"),
		toPayload("service", "creatively"),
		toPayload("time", time.Now().UTC()),
	)
}

func (s *SystemHandler) Capabilities(w http.ResponseWriter, r *http.Request) {
	responseWithJSON(w, http.StatusOK,
		toPayload("resources", s.Caps.Statuses()),
		toPayload("probed_at", s.Caps.ProbedAt()),
	)
}

// RefreshCapabilities повторяет проверку таблиц (кнопка «Повторить»).
func (s *SystemHandler) RefreshCapabilities(w http.ResponseWriter, r *http.Request) {
	statuses := s.Caps.Refresh(r.Context())
	responseWithNotice(w, http.StatusOK, "Проверка разделов выполнена",
		toPayload("resources", statuses),
		toPayload("probed_at", s.Caps.ProbedAt()),
	)
}
