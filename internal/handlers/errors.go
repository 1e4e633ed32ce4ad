package handlers

import (
	"context"
	"errors"
	"net/http"

	"creatively/internal/logger"
	"creatively/internal/service"

	"go.uber.org/zap"
)

func handleBusinessError(w http.ResponseWriter, err error) bool {
	var businessErr *service.BusinessError
	if !errors.As(err, &businessErr) {
		return false
	}
	statusCode := mapBusinessErrorToHTTP(businessErr.Code)

	logger.Warn("HTTP: Бизнес-ошибка",
		zap.String("error_code", businessErr.Code),
		zap.Int("http_status", statusCode),
		zap.NamedError("cause", businessErr.Err))

	responseWithJSON(w, statusCode,
		toPayload("error", businessErr.Code),
		toPayload("message", businessErr.Message),
		toPayload("details", businessErr.Details),
		toPayload("retry", businessErr.Retry),
	)
	return true
}

// handleError отвечает на любую ошибку сервиса.
func handleError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	if handleBusinessError(w, err) {
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Debug("HTTP: Запрос отменён клиентом", zap.String("operation", operation))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		responseWithJSON(w, http.StatusGatewayTimeout,
			toPayload("error", "TIMEOUT"),
			toPayload("message", "Сервер не дождался ответа хранилища"),
			toPayload("retry", true),
		)
		return
	}

	logger.Error("HTTP: Ошибка Service", err,
		zap.String("operation", operation),
		zap.String("client_ip", r.RemoteAddr))
	responseWithJSON(w, http.StatusInternalServerError,
		toPayload("error", "INTERNAL_ERROR"),
		toPayload("message", "Внутренняя ошибка сервера"),
		toPayload("retry", true),
	)
}

// handleListError отдаёт неподключённый раздел как обычное состояние экрана.
func handleListError(w http.ResponseWriter, r *http.Request, err error, key, operation string) {
	var businessErr *service.BusinessError
	if errors.As(err, &businessErr) && businessErr.Code == service.CodeNotProvisioned {
		responseWithJSON(w, http.StatusOK,
			toPayload(key, []any{}),
			toPayload("state", "not_provisioned"),
			toPayload("message", businessErr.Message),
			toPayload("remediation", businessErr.Details["remediation"]),
		)
		return
	}
	handleError(w, r, err, operation)
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodeUnauthorized:
		return http.StatusUnauthorized
	case service.CodeForbidden:
		return http.StatusForbidden
	case service.CodeConflict, service.CodeInvalidTransition:
		return http.StatusConflict
	case service.CodeConfirmationRequired:
		return http.StatusPreconditionRequired
	case service.CodeNotProvisioned:
		return http.StatusServiceUnavailable
	case service.CodeBackend:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}
