package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"creatively/internal/logger"
	"creatively/internal/models"
	repo "creatively/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	OpSelect = "select"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

type faultKey struct {
	op       string
	resource repo.Resource
}

// Store хранит каждый ресурс как упорядоченную таблицу строк.
type Store struct {
	mtx    *sync.RWMutex
	tables map[repo.Resource]*table
	faults map[faultKey]error
	calls  map[faultKey]int
	now    func() time.Time
}

type table struct {
	rows map[string]map[string]any
	ids  []string
}

// NewStore создаёт переданные ресурсы, а если их нет - все известные.
func NewStore(resources ...repo.Resource) *Store {
	if len(resources) == 0 {
		resources = repo.AllResources
	}
	s := &Store{
		mtx:    &sync.RWMutex{},
		tables: make(map[repo.Resource]*table),
		faults: make(map[faultKey]error),
		calls:  make(map[faultKey]int),
		now:    time.Now,
	}
	for _, r := range resources {
		s.tables[r] = &table{rows: make(map[string]map[string]any)}
	}
	return s
}

func (s *Store) HealthCheck(ctx context.Context) error {
	logger.Debug("Repository: Соединение стабильно")
	return nil
}

func (s *Store) Close() {}

// Drop удаляет ресурс: дальше он выглядит как не созданный.
func (s *Store) Drop(resource repo.Resource) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.tables, resource)
}

// Fail: каждая операция op над resource возвращает err до вызова Recover.
func (s *Store) Fail(op string, resource repo.Resource, err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.faults[faultKey{op, resource}] = err
}

func (s *Store) Recover(op string, resource repo.Resource) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.faults, faultKey{op, resource})
}

func (s *Store) Calls(op string, resource repo.Resource) int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.calls[faultKey{op, resource}]
}

// Seed вставляет строки как есть, без сбоев и без подсчёта вызовов.
func (s *Store) Seed(resource repo.Resource, rows ...map[string]any) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	t, ok := s.tables[resource]
	if !ok {
		return repo.NewRelationMissing(resource, OpInsert)
	}
	for _, r := range rows {
		s.insertRow(t, r)
	}
	return nil
}

func (s *Store) enter(op string, resource repo.Resource) (*table, error) {
	k := faultKey{op, resource}
	s.calls[k]++
	if err, ok := s.faults[k]; ok {
		return nil, err
	}
	t, ok := s.tables[resource]
	if !ok {
		return nil, repo.NewRelationMissing(resource, op)
	}
	return t, nil
}

func (s *Store) Select(ctx context.Context, q *repo.Query) ([]repo.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()

	t, err := s.enter(OpSelect, q.Resource)
	if err != nil {
		return nil, err
	}

	matched := make([]map[string]any, 0)
	for _, id := range t.ids {
		row := t.rows[id]
		if matchAll(row, q.Filters) && matchGroups(row, q.Or) {
			matched = append(matched, row)
		}
	}

	if len(q.Order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.Order {
				c := compare(matched[i][o.Column], matched[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return encode(matched, q.Columns)
}

func (s *Store) Insert(ctx context.Context, resource repo.Resource, values ...map[string]any) ([]repo.Row, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	t, err := s.enter(OpInsert, resource)
	if err != nil {
		return nil, err
	}
	inserted := make([]map[string]any, 0, len(values))
	for _, v := range values {
		id, _ := v["id"].(string)
		if id != "" {
			if _, exists := t.rows[id]; exists {
				return nil, &repo.Error{
					Resource: resource,
					Op:       OpInsert,
					Status:   409,
					Code:     repo.CodeUniqueViolation,
					Message:  fmt.Sprintf("duplicate key value violates unique constraint \"%s_pkey\"", resource),
				}
			}
		}
		inserted = append(inserted, s.insertRow(t, v))
	}
	return encode(inserted, nil)
}

func (s *Store) insertRow(t *table, v map[string]any) map[string]any {
	row := normalize(v)
	id, _ := row["id"].(string)
	if id == "" {
		id = uuid.NewString()
		row["id"] = id
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = s.now().UTC().Format(time.RFC3339Nano)
	}
	t.rows[id] = row
	t.ids = append(t.ids, id)
	return row
}

func (s *Store) Update(ctx context.Context, resource repo.Resource, patch map[string]any, filters ...repo.Filter) ([]repo.Row, error) {
	if len(filters) == 0 {
		return nil, repo.ErrEmptyFilter
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()

	t, err := s.enter(OpUpdate, resource)
	if err != nil {
		return nil, err
	}
	p := normalize(patch)
	updated := make([]map[string]any, 0)
	for _, id := range t.ids {
		row := t.rows[id]
		if !matchAll(row, filters) {
			continue
		}
		for k, v := range p {
			if k == "id" {
				continue
			}
			row[k] = v
		}
		if _, ok := row["updated_at"]; ok {
			row["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)
		}
		updated = append(updated, row)
	}
	return encode(updated, nil)
}

func (s *Store) Delete(ctx context.Context, resource repo.Resource, filters ...repo.Filter) (int, error) {
	if len(filters) == 0 {
		return 0, repo.ErrEmptyFilter
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()

	t, err := s.enter(OpDelete, resource)
	if err != nil {
		return 0, err
	}
	kept := t.ids[:0]
	deleted := 0
	for _, id := range t.ids {
		if matchAll(t.rows[id], filters) {
			delete(t.rows, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	t.ids = kept
	if deleted > 0 {
		logger.Debug("Repository: Удаление строк", zap.String("resource", string(resource)), zap.Int("deleted", deleted))
	}
	return deleted, nil
}

// normalize прогоняет значения через JSON, чтобы строки были как из сети.
func normalize(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	b, err := json.Marshal(v)
	if err != nil {
		for k, val := range v {
			out[k] = val
		}
		return out
	}
	_ = json.Unmarshal(b, &out)
	return out
}

func encode(rows []map[string]any, columns []string) ([]repo.Row, error) {
	out := make([]repo.Row, 0, len(rows))
	for _, row := range rows {
		src := row
		if len(columns) > 0 {
			src = make(map[string]any, len(columns))
			for _, c := range columns {
				src[c] = row[c]
			}
		}
		b, err := json.Marshal(src)
		if err != nil {
			return nil, fmt.Errorf("кодирование строки: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func matchAll(row map[string]any, filters []repo.Filter) bool {
	for _, f := range filters {
		if !match(row, f) {
			return false
		}
	}
	return true
}

func matchGroups(row map[string]any, groups [][]repo.Filter) bool {
	for _, g := range groups {
		hit := false
		for _, f := range g {
			if match(row, f) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func match(row map[string]any, f repo.Filter) bool {
	v, present := row[f.Column]
	isNull := !present || v == nil
	switch f.Op {
	case repo.OpIs:
		return isNull
	case repo.OpNotIs:
		return !isNull
	}
	if isNull {
		return false
	}
	switch f.Op {
	case repo.OpEq:
		return toString(v) == toString(f.Value)
	case repo.OpNeq:
		return toString(v) != toString(f.Value)
	case repo.OpILike:
		pattern, _ := f.Value.(string)
		return likeMatch(toString(v), pattern)
	case repo.OpIn:
		values, _ := f.Value.([]string)
		sv := toString(v)
		for _, x := range values {
			if x == sv {
				return true
			}
		}
		return false
	case repo.OpGte:
		return compare(v, f.Value) >= 0
	case repo.OpLte:
		return compare(v, f.Value) <= 0
	}
	return false
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func compare(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	as, bs := toString(a), toString(b)
	af, aerr := strconv.ParseFloat(as, 64)
	bf, berr := strconv.ParseFloat(bs, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	ad, bd := models.ParseDateTime(as), models.ParseDateTime(bs)
	if ad.Valid() && bd.Valid() {
		return ad.Time().Compare(bd.Time())
	}
	return strings.Compare(as, bs)
}

var likeCache sync.Map

func likeMatch(s, pattern string) bool {
	re, ok := likeCache.Load(pattern)
	if !ok {
		compiled, err := regexp.Compile("(?is)" + repo.LikeRegexp(pattern))
		if err != nil {
			return false
		}
		re, _ = likeCache.LoadOrStore(pattern, compiled)
	}
	return re.(*regexp.Regexp).MatchString(s)
}
