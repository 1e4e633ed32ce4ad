package auth

import (
	"context"
	"errors"
	"strings"

	"creatively/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	ErrUnauthorized       = errors.New("требуется авторизация")
	ErrEmailTaken         = errors.New("пользователь с таким email уже существует")
	ErrWeakPassword       = errors.New("пароль должен содержать не менее 6 символов")
)

type Session struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	TokenType    string          `json:"token_type"`
	ExpiresAt    int64           `json:"expires_at"`
	User         models.Identity `json:"user"`
}

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (r *SignUpRequest) Validate() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Email == "" || !strings.Contains(r.Email, "@") {
		return errors.New("некорректный email")
	}
	if len(r.Password) < 6 {
		return ErrWeakPassword
	}
	return nil
}

// Provider - источник учётных записей.
type Provider interface {
	SignUp(ctx context.Context, req SignUpRequest) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	User(ctx context.Context, accessToken string) (models.Identity, error)
}
