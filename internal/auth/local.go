package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"creatively/internal/logger"
	"creatively/internal/models"
	repo "creatively/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type localUser struct {
	id       string
	email    string
	hash     []byte
	fullName string
}

// Local - провайдер в памяти процесса, для разработки и тестов.
type Local struct {
	mtx      *sync.RWMutex
	users    map[string]*localUser
	revoked  map[string]time.Time
	verifier *Verifier
	store    repo.Store
	ttl      time.Duration
}

func NewLocal(secret string, ttl time.Duration, store repo.Store) *Local {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Local{
		mtx:      &sync.RWMutex{},
		users:    make(map[string]*localUser),
		revoked:  make(map[string]time.Time),
		verifier: NewVerifier(secret),
		store:    store,
		ttl:      ttl,
	}
}

func (l *Local) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	l.mtx.Lock()
	if _, exists := l.users[req.Email]; exists {
		l.mtx.Unlock()
		return nil, ErrEmailTaken
	}
	u := &localUser{id: uuid.NewString(), email: req.Email, hash: hash, fullName: strings.TrimSpace(req.FullName)}
	l.users[req.Email] = u
	l.mtx.Unlock()

	if l.store != nil {
		_, err := l.store.Insert(ctx, repo.Profiles, map[string]any{
			"id":        u.id,
			"email":     u.email,
			"full_name": u.fullName,
			"role":      string(models.RoleMember),
		})
		if err != nil {
			logger.Warn("Auth: Не удалось создать профиль", zap.String("user_id", u.id), zap.Error(err))
		}
	}

	logger.Info("Auth: Пользователь зарегистрирован", zap.String("user_id", u.id))
	return l.issue(u)
}

func (l *Local) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	l.mtx.RLock()
	u, ok := l.users[email]
	l.mtx.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return l.issue(u)
}

func (l *Local) SignOut(ctx context.Context, accessToken string) error {
	claims, err := l.verifier.Parse(accessToken)
	if err != nil {
		return err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.revoked[claims.ID] = claims.ExpiresAt.Time
	// истёкшие отзывы больше не нужны
	now := time.Now()
	for id, exp := range l.revoked {
		if exp.Before(now) {
			delete(l.revoked, id)
		}
	}
	return nil
}

func (l *Local) User(ctx context.Context, accessToken string) (models.Identity, error) {
	claims, err := l.verifier.Parse(accessToken)
	if err != nil {
		return models.Identity{}, err
	}
	l.mtx.RLock()
	_, revoked := l.revoked[claims.ID]
	l.mtx.RUnlock()
	if revoked {
		return models.Identity{}, ErrUnauthorized
	}
	return models.Identity{ID: claims.Subject, Email: claims.Email, Role: claims.Role, AccessToken: accessToken}, nil
}

func (l *Local) issue(u *localUser) (*Session, error) {
	id := models.Identity{ID: u.id, Email: u.email, Role: "authenticated"}
	token, exp, err := l.verifier.Sign(id, l.ttl, uuid.NewString())
	if err != nil {
		return nil, err
	}
	id.AccessToken = token
	return &Session{AccessToken: token, TokenType: "bearer", ExpiresAt: exp.Unix(), User: id}, nil
}
