package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type Resource string

const (
	Projects       Resource = "projects"
	Tasks          Resource = "tasks"
	CalendarEvents Resource = "calendar_events"
	EventAttendees Resource = "event_attendees"
	TeamMembers    Resource = "team_members"
	Profiles       Resource = "profiles"
	Folders        Resource = "folders"
	Files          Resource = "files"
)

var AllResources = []Resource{Projects, Tasks, CalendarEvents, EventAttendees, TeamMembers, Profiles, Folders, Files}

type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpIs    Op = "is"     // IS NULL
	OpNotIs Op = "not_is" // IS NOT NULL
	OpILike Op = "ilike"
	OpIn    Op = "in"
	OpGte   Op = "gte"
	OpLte   Op = "lte"
)

type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, value any) Filter    { return Filter{Column: column, Op: OpEq, Value: value} }
func Neq(column string, value any) Filter   { return Filter{Column: column, Op: OpNeq, Value: value} }
func IsNull(column string) Filter           { return Filter{Column: column, Op: OpIs} }
func NotNull(column string) Filter          { return Filter{Column: column, Op: OpNotIs} }
func Gte(column string, value any) Filter   { return Filter{Column: column, Op: OpGte, Value: value} }
func Lte(column string, value any) Filter   { return Filter{Column: column, Op: OpLte, Value: value} }
func In(column string, values []string) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Contains - поиск подстроки без учёта регистра. Символы шаблона в needle
// экранируются обратной косой, как принято в LIKE.
func Contains(column, needle string) Filter {
	return Filter{Column: column, Op: OpILike, Value: "%" + likeEscaper.Replace(needle) + "%"}
}

// LikeRegexp переводит LIKE-шаблон в якорное регулярное выражение:
// % - любая строка, _ - один символ, \x - буквальный x.
func LikeRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

type Order struct {
	Column string
	Desc   bool
}

// Query описывает чтение. Filters объединяются через AND, группа Or внутри
// через OR, а с остальным снова через AND.
type Query struct {
	Resource Resource
	Columns  []string
	Filters  []Filter
	Or       [][]Filter
	Order    []Order
	Limit    int
}

func From(resource Resource) *Query {
	return &Query{Resource: resource}
}

func (q *Query) Where(filters ...Filter) *Query {
	q.Filters = append(q.Filters, filters...)
	return q
}

func (q *Query) Any(filters ...Filter) *Query {
	if len(filters) > 0 {
		q.Or = append(q.Or, filters)
	}
	return q
}

func (q *Query) OrderBy(column string, desc bool) *Query {
	q.Order = append(q.Order, Order{Column: column, Desc: desc})
	return q
}

func (q *Query) Take(limit int) *Query {
	q.Limit = limit
	return q
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier: можно ли подставить name как имя колонки или таблицы.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}

func (q *Query) Validate() error {
	if !ValidIdentifier(string(q.Resource)) {
		return fmt.Errorf("недопустимое имя ресурса %q", q.Resource)
	}
	for _, c := range q.Columns {
		if !ValidIdentifier(c) {
			return fmt.Errorf("недопустимая колонка %q", c)
		}
	}
	check := func(fs []Filter) error {
		for _, f := range fs {
			if !ValidIdentifier(f.Column) {
				return fmt.Errorf("недопустимая колонка фильтра %q", f.Column)
			}
			switch f.Op {
			case OpEq, OpNeq, OpIs, OpNotIs, OpILike, OpGte, OpLte:
			case OpIn:
				if _, ok := f.Value.([]string); !ok {
					return fmt.Errorf("фильтр in по %q ожидает []string", f.Column)
				}
			default:
				return fmt.Errorf("неизвестная операция %q", f.Op)
			}
		}
		return nil
	}
	if err := check(q.Filters); err != nil {
		return err
	}
	for _, g := range q.Or {
		if err := check(g); err != nil {
			return err
		}
	}
	for _, o := range q.Order {
		if !ValidIdentifier(o.Column) {
			return fmt.Errorf("недопустимая колонка сортировки %q", o.Column)
		}
	}
	return nil
}

type Row = json.RawMessage

// Store - построчный интерфейс бэкенда.
type Store interface {
	Select(ctx context.Context, q *Query) ([]Row, error)
	Insert(ctx context.Context, resource Resource, values ...map[string]any) ([]Row, error)
	Update(ctx context.Context, resource Resource, patch map[string]any, filters ...Filter) ([]Row, error)
	Delete(ctx context.Context, resource Resource, filters ...Filter) (int, error)
	HealthCheck(ctx context.Context) error
	Close()
}
