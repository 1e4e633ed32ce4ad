package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"creatively/internal/logger"
	"creatively/internal/models"

	"go.uber.org/zap"
)

// Client - облачный сервис аутентификации (/auth/v1).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type remoteUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u remoteUser) identity(token string) models.Identity {
	return models.Identity{ID: u.ID, Email: u.Email, Role: u.Role, AccessToken: token}
}

type remoteSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	User         remoteUser `json:"user"`
}

func (s remoteSession) session() *Session {
	exp := s.ExpiresAt
	if exp == 0 && s.ExpiresIn > 0 {
		exp = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	tt := s.TokenType
	if tt == "" {
		tt = "bearer"
	}
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    tt,
		ExpiresAt:    exp,
		User:         s.User.identity(s.AccessToken),
	}
}

type remoteError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e remoteError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body := map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"data":     map[string]any{"full_name": req.FullName},
	}
	raw, err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body)
	if err != nil {
		return nil, err
	}

	var rs remoteSession
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("разбор ответа регистрации: %w", err)
	}
	if rs.AccessToken == "" {
		// требуется подтверждение email: сервис вернул только пользователя
		var u remoteUser
		if err := json.Unmarshal(raw, &u); err == nil && u.ID != "" {
			return &Session{TokenType: "bearer", User: u.identity("")}, nil
		}
	}
	return rs.session(), nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]any{"email": strings.ToLower(strings.TrimSpace(email)), "password": password}
	raw, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body)
	if err != nil {
		return nil, err
	}
	var rs remoteSession
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("разбор ответа входа: %w", err)
	}
	return rs.session(), nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil)
	return err
}

func (c *Client) User(ctx context.Context, accessToken string) (models.Identity, error) {
	if accessToken == "" {
		return models.Identity{}, ErrUnauthorized
	}
	raw, err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil)
	if err != nil {
		return models.Identity{}, err
	}
	var u remoteUser
	if err := json.Unmarshal(raw, &u); err != nil || u.ID == "" {
		return models.Identity{}, ErrUnauthorized
	}
	return u.identity(accessToken), nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("кодирование запроса: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("Auth: Ошибка запроса к сервису авторизации", err, zap.String("path", path))
		return nil, fmt.Errorf("запрос авторизации: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа: %w", err)
	}
	if resp.StatusCode < 400 {
		return raw, nil
	}

	var re remoteError
	_ = json.Unmarshal(raw, &re)
	logger.Warn("Auth: Сервис авторизации отказал",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("reason", re.text()))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case re.Error == "invalid_grant" || re.ErrorCode == "invalid_credentials":
		return nil, ErrInvalidCredentials
	case re.ErrorCode == "user_already_exists" || re.ErrorCode == "email_exists" ||
		strings.Contains(strings.ToLower(re.text()), "already registered"):
		return nil, ErrEmailTaken
	case re.ErrorCode == "weak_password":
		return nil, ErrWeakPassword
	}
	if msg := re.text(); msg != "" {
		return nil, fmt.Errorf("сервис авторизации: %s", msg)
	}
	return nil, fmt.Errorf("сервис авторизации: статус %d", resp.StatusCode)
}
