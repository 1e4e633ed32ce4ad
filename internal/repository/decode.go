package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"creatively/internal/logger"

	"go.uber.org/zap"
)

// Record - модель, которая проверяет себя после декодирования.
type Record[T any] interface {
	*T
	Validate() error
}

// DecodeRows разбирает строки в типизированные записи. Строки, которые не
// декодируются или не проходят Validate, логируются и пропускаются.
func DecodeRows[T any, P Record[T]](resource Resource, rows []Row) []T {
	out := make([]T, 0, len(rows))
	for _, raw := range rows {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			logger.Warn("Repository: Ошибка разбора строки", zap.String("resource", string(resource)), zap.Error(err))
			continue
		}
		if err := P(&v).Validate(); err != nil {
			logger.Warn("Repository: Строка не прошла проверку", zap.String("resource", string(resource)), zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out
}

// DecodeOne разбирает первую строку и падает, если она негодна.
func DecodeOne[T any, P Record[T]](resource Resource, rows []Row) (*T, error) {
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	var v T
	if err := json.Unmarshal(rows[0], &v); err != nil {
		return nil, fmt.Errorf("разбор %s: %w", resource, err)
	}
	if err := P(&v).Validate(); err != nil {
		return nil, fmt.Errorf("проверка %s: %w", resource, err)
	}
	return &v, nil
}

func SelectInto[T any, P Record[T]](ctx context.Context, s Store, q *Query) ([]T, error) {
	rows, err := s.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	return DecodeRows[T, P](q.Resource, rows), nil
}

func GetByID[T any, P Record[T]](ctx context.Context, s Store, resource Resource, id string) (*T, error) {
	rows, err := s.Select(ctx, From(resource).Where(Eq("id", id)).Take(1))
	if err != nil {
		return nil, err
	}
	return DecodeOne[T, P](resource, rows)
}

func InsertOne[T any, P Record[T]](ctx context.Context, s Store, resource Resource, values map[string]any) (*T, error) {
	rows, err := s.Insert(ctx, resource, values)
	if err != nil {
		return nil, err
	}
	return DecodeOne[T, P](resource, rows)
}

func UpdateByID[T any, P Record[T]](ctx context.Context, s Store, resource Resource, id string, patch map[string]any) (*T, error) {
	rows, err := s.Update(ctx, resource, patch, Eq("id", id))
	if err != nil {
		return nil, err
	}
	return DecodeOne[T, P](resource, rows)
}
