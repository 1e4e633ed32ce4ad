package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"creatively/internal/logger"
	repo "creatively/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const slowQuery = 100 * time.Millisecond

// таблицы с колонкой updated_at, которую двигает каждое обновление
var touched = map[repo.Resource]bool{
	repo.Profiles:       true,
	repo.Projects:       true,
	repo.Tasks:          true,
	repo.CalendarEvents: true,
	repo.TeamMembers:    true,
}

type Storage struct {
	pool *pgxpool.Pool
}

type Option func(*pgxpool.Config)

func WithPoolSize(maxConns, minConns int32) Option {
	return func(c *pgxpool.Config) {
		if maxConns > 0 {
			c.MaxConns = maxConns
		}
		if minConns > 0 {
			c.MinConns = minConns
		}
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(c *pgxpool.Config) {
		if d > 0 {
			c.MaxConnIdleTime = d
		}
	}
}

func New(ctx context.Context, connString string, opts ...Option) (*Storage, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = time.Minute * 5
	for _, opt := range opts {
		opt(config)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	err := s.pool.Ping(ctx)
	if err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	logger.Debug("Repository: Соединение стабильно")
	return nil
}

func (s *Storage) Select(ctx context.Context, q *repo.Query) ([]repo.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var args []any
	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = "t." + ident(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT row_to_json(x) FROM (SELECT %s FROM %s t", cols, ident(string(q.Resource)))
	where := whereClause(q.Filters, q.Or, &args)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("t.%s %s NULLS LAST", ident(o.Column), dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	b.WriteString(") x")

	return s.queryRows(ctx, q.Resource, "select", b.String(), args...)
}

func (s *Storage) Insert(ctx context.Context, resource repo.Resource, values ...map[string]any) ([]repo.Row, error) {
	if !repo.ValidIdentifier(string(resource)) {
		return nil, fmt.Errorf("недопустимое имя ресурса %q", resource)
	}
	out := make([]repo.Row, 0, len(values))
	for _, v := range values {
		cols, err := columns(v)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("кодирование строки: %w", err)
		}
		table := ident(string(resource))
		query := fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM json_populate_record(NULL::%s, $1::json) RETURNING row_to_json(%s.*)",
			table, strings.Join(cols, ", "), strings.Join(cols, ", "), table, table)
		rows, err := s.queryRows(ctx, resource, "insert", query, string(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *Storage) Update(ctx context.Context, resource repo.Resource, patch map[string]any, filters ...repo.Filter) ([]repo.Row, error) {
	if len(filters) == 0 {
		return nil, repo.ErrEmptyFilter
	}
	if err := (&repo.Query{Resource: resource, Filters: filters}).Validate(); err != nil {
		return nil, err
	}
	clean := make(map[string]any, len(patch))
	for k, v := range patch {
		if k != "id" {
			clean[k] = v
		}
	}
	patch = clean
	cols, err := columns(patch)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("кодирование изменений: %w", err)
	}

	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = r.%s", c, c))
	}
	if _, ok := patch["updated_at"]; !ok && touched[resource] {
		sets = append(sets, "updated_at = NOW()")
	}
	if len(sets) == 0 {
		return s.Select(ctx, &repo.Query{Resource: resource, Filters: filters})
	}

	args := []any{string(payload)}
	table := ident(string(resource))
	query := fmt.Sprintf(
		"UPDATE %s t SET %s FROM json_populate_record(NULL::%s, $1::json) r WHERE %s RETURNING row_to_json(t)",
		table, strings.Join(sets, ", "), table, whereClause(filters, nil, &args))
	return s.queryRows(ctx, resource, "update", query, args...)
}

func (s *Storage) Delete(ctx context.Context, resource repo.Resource, filters ...repo.Filter) (int, error) {
	if len(filters) == 0 {
		return 0, repo.ErrEmptyFilter
	}
	if err := (&repo.Query{Resource: resource, Filters: filters}).Validate(); err != nil {
		return 0, err
	}
	start := time.Now()

	var args []any
	query := fmt.Sprintf("DELETE FROM %s t WHERE %s", ident(string(resource)), whereClause(filters, nil, &args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Удаление строк", err, zap.String("resource", string(resource)), zap.Duration("ms", time.Since(start)))
		return 0, mapError(resource, "delete", err)
	}

	if time.Since(start) > slowQuery {
		logger.Warn("Repository: Медленная операция", zap.String("resource", string(resource)), zap.Duration("ms", time.Since(start)))
	}
	return int(tag.RowsAffected()), nil
}

func (s *Storage) queryRows(ctx context.Context, resource repo.Resource, op, query string, args ...any) ([]repo.Row, error) {
	start := time.Now()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, s.fail(resource, op, err, start)
	}
	defer rows.Close()

	out := make([]repo.Row, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, s.fail(resource, op, err, start)
		}
		out = append(out, repo.Row(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(resource, op, err, start)
	}

	if time.Since(start) > slowQuery {
		logger.Warn("Repository: Медленная операция",
			zap.String("resource", string(resource)),
			zap.String("op", op),
			zap.Duration("ms", time.Since(start)))
	}
	return out, nil
}

func (s *Storage) fail(resource repo.Resource, op string, err error, start time.Time) error {
	mapped := mapError(resource, op, err)
	if repo.IsRelationMissing(mapped) {
		logger.Warn("Repository: Таблица не создана", zap.String("resource", string(resource)))
		return mapped
	}
	logger.Error("Repository: Ошибка запроса", err,
		zap.String("resource", string(resource)),
		zap.String("op", op),
		zap.Duration("ms", time.Since(start)))
	return mapped
}

func mapError(resource repo.Resource, op string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s %s: %w", op, resource, err)
	}
	status := 400
	switch pgErr.Code {
	case repo.CodeUndefinedTable:
		status = 404
	case repo.CodeUniqueViolation, repo.CodeForeignKey:
		status = 409
	}
	return &repo.Error{
		Resource: resource,
		Op:       op,
		Status:   status,
		Code:     pgErr.Code,
		Message:  pgErr.Message,
		Details:  pgErr.Detail,
		Hint:     pgErr.Hint,
	}
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// columns отдаёт проверенные и отсортированные ключи v.
func columns(v map[string]any) ([]string, error) {
	keys := make([]string, 0, len(v))
	for k := range v {
		if !repo.ValidIdentifier(k) {
			return nil, fmt.Errorf("недопустимая колонка %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		keys[i] = ident(k)
	}
	return keys, nil
}

func whereClause(filters []repo.Filter, groups [][]repo.Filter, args *[]any) string {
	parts := make([]string, 0, len(filters)+len(groups))
	for _, f := range filters {
		parts = append(parts, condition(f, args))
	}
	for _, g := range groups {
		alts := make([]string, 0, len(g))
		for _, f := range g {
			alts = append(alts, condition(f, args))
		}
		parts = append(parts, "("+strings.Join(alts, " OR ")+")")
	}
	return strings.Join(parts, " AND ")
}

func condition(f repo.Filter, args *[]any) string {
	col := "t." + ident(f.Column)
	bind := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}
	switch f.Op {
	case repo.OpIs:
		return col + " IS NULL"
	case repo.OpNotIs:
		return col + " IS NOT NULL"
	case repo.OpNeq:
		return fmt.Sprintf("%s IS DISTINCT FROM %s", col, bind(f.Value))
	case repo.OpILike:
		return fmt.Sprintf("%s::text ILIKE %s", col, bind(fmt.Sprint(f.Value)))
	case repo.OpIn:
		return fmt.Sprintf("%s::text = ANY(%s::text[])", col, bind(f.Value))
	case repo.OpGte:
		return fmt.Sprintf("%s >= %s", col, bind(f.Value))
	case repo.OpLte:
		return fmt.Sprintf("%s <= %s", col, bind(f.Value))
	default:
		return fmt.Sprintf("%s = %s", col, bind(f.Value))
	}
}
