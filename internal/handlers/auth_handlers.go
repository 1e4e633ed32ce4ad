package handlers

import (
	"errors"
	"net/http"

	"creatively/internal/auth"
	"creatively/internal/handlers/dto"
	"creatively/internal/logger"

	"go.uber.org/zap"
)

type AuthHandler struct {
	Provider auth.Provider
}

func NewAuthHandler(provider auth.Provider) AuthHandler {
	return AuthHandler{Provider: provider}
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		responseWithError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		responseWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Требуется вход в систему")
	case errors.Is(err, auth.ErrEmailTaken):
		responseWithError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, auth.ErrWeakPassword):
		responseWithError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		handleError(w, r, err, operation)
	}
}

func (s *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var request auth.SignUpRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if err := request.Validate(); err != nil {
		responseWithError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	session, err := s.Provider.SignUp(r.Context(), request)
	if err != nil {
		handleAuthError(w, r, err, "sign_up")
		return
	}
	logger.Info("HTTP_OUT: Пользователь зарегистрирован", zap.String("user_id", session.User.ID))

	notice := "Аккаунт создан"
	if session.AccessToken == "" {
		notice = "Проверьте почту, чтобы подтвердить аккаунт"
	}
	responseWithNotice(w, http.StatusCreated, notice, toPayload("session", session))
}

func (s *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var request dto.SignInRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	session, err := s.Provider.SignIn(r.Context(), request.Email, request.Password)
	if err != nil {
		handleAuthError(w, r, err, "sign_in")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("session", session))
}

func (s *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		responseWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Требуется вход в систему")
		return
	}
	if err := s.Provider.SignOut(r.Context(), id.AccessToken); err != nil {
		handleAuthError(w, r, err, "sign_out")
		return
	}
	responseWithNotice(w, http.StatusOK, "Вы вышли из аккаунта")
}

// Session отдаёт пользователя, под которым выполнен запрос.
func (s *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		responseWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Требуется вход в систему")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("user", id))
}
