package service

import (
	"context"
	"strings"
	"time"

	"creatively/internal/auth"
	"creatively/internal/capability"
	"creatively/internal/logger"
	"creatively/internal/models"
	"creatively/internal/query"
	repo "creatively/internal/repository"

	"go.uber.org/zap"
)

// Deps - общее для всех сервисов, собирается один раз в app.
type Deps struct {
	Store    repo.Store
	Cache    *query.Client
	Caps     *capability.Probe
	Location *time.Location
	Now      func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) location() *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return time.UTC
}

func (d *Deps) invalidate(keys ...query.Key) {
	if d.Cache == nil {
		return
	}
	for _, k := range keys {
		d.Cache.Invalidate(k)
	}
}

func (d *Deps) has(r repo.Resource) bool {
	return d.Caps == nil || d.Caps.Has(r)
}

func (d *Deps) markMissing(r repo.Resource) {
	if d.Caps != nil {
		d.Caps.MarkMissing(r)
	}
}

// requireResource сразу отказывает, если проверка не нашла ресурс.
func (d *Deps) requireResource(r repo.Resource) error {
	if !d.has(r) {
		return NewNotProvisioned(r)
	}
	return nil
}

// cached читает через кэш запросов, если он есть.
func cached[T any](ctx context.Context, d *Deps, key query.Key, fn func(context.Context) (T, error)) (T, error) {
	if d.Cache == nil {
		return fn(ctx)
	}
	return query.Fetch(ctx, d.Cache, key, fn)
}

func currentUser(ctx context.Context) (models.Identity, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return models.Identity{}, NewBusinessError(CodeUnauthorized, "Требуется вход в систему")
	}
	return id, nil
}

// Корни ключей кэша. Изменения инвалидируют корень целиком.
var (
	KeyTasks    = query.NewKey(string(repo.Tasks))
	KeyProjects = query.NewKey(string(repo.Projects))
	KeyTeam     = query.NewKey(string(repo.TeamMembers))
	KeyFiles    = query.NewKey(string(repo.Files))
	KeyProfiles = query.NewKey(string(repo.Profiles))
	KeyCalendar = query.NewKey("calendar")
)

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// searchFilter ищет needle в любой из колонок.
func searchFilter(q *repo.Query, needle string, columns ...string) *repo.Query {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return q
	}
	group := make([]repo.Filter, 0, len(columns))
	for _, c := range columns {
		group = append(group, repo.Contains(c, needle))
	}
	return q.Any(group...)
}

func logPartialFailure(msg string, err error, fields ...zap.Field) {
	logger.Warn(msg, append(fields, zap.Error(err))...)
}
