package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"creatively/internal/logger"
	"creatively/internal/models"
	repo "creatively/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const filterAll = "all"

// CalendarFilter сужает календарь до участника или типа события.
// Пусто или "all" - без ограничений.
type CalendarFilter struct {
	TeamMember string
	EventType  string
}

func (f CalendarFilter) member() string {
	if f.TeamMember == filterAll {
		return ""
	}
	return strings.TrimSpace(f.TeamMember)
}

func (f CalendarFilter) eventType() string {
	if f.EventType == filterAll {
		return ""
	}
	return strings.TrimSpace(f.EventType)
}

type DayRequest struct {
	Date   string
	Search string
	Filter CalendarFilter
}

type DayView struct {
	Date     string                 `json:"date"`
	Events   []models.CalendarEvent `json:"events"`
	Tasks    []models.Task          `json:"tasks"`
	Empty    bool                   `json:"empty"`
	Fallback bool                   `json:"fallback"`
	Error    string                 `json:"error,omitempty"`
	Notify   bool                   `json:"notify,omitempty"`
}

type MonthRequest struct {
	Month  string // YYYY-MM
	Search string
	Filter CalendarFilter
}

type DayCount struct {
	Date   string `json:"date"`
	Events int    `json:"events"`
	Tasks  int    `json:"tasks"`
}

type MonthView struct {
	Month    string     `json:"month"`
	Days     []DayCount `json:"days"`
	Fallback bool       `json:"fallback"`
	Error    string     `json:"error,omitempty"`
	Notify   bool       `json:"notify,omitempty"`
}

// collections - всё, из чего строится календарь до отбора по дням.
type collections struct {
	events   []models.CalendarEvent
	tasks    []models.Task
	fallback bool
}

type CalendarService struct {
	deps *Deps
}

func NewCalendarService(deps *Deps) *CalendarService {
	return &CalendarService{deps: deps}
}

// Day отдаёт события и задачи одной даты. Сбой бэкенда попадает
// в само представление, а не в ошибку.
func (s *CalendarService) Day(ctx context.Context, req DayRequest) (*DayView, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	day, err := models.CivilDate(req.Date)
	if err != nil {
		return nil, NewValidationError("date", "ожидается YYYY-MM-DD")
	}
	if err := checkFilter(req.Filter); err != nil {
		return nil, err
	}
	date := day.Format(models.DateLayout)
	view := &DayView{Date: date, Events: []models.CalendarEvent{}, Tasks: []models.Task{}}

	col, err := s.load(ctx, me, req.Search, req.Filter)
	if err != nil {
		view.Empty = true
		view.Error, view.Notify = s.failure(err, req.Search, req.Filter)
		return view, nil
	}

	loc := s.deps.location()
	for _, ev := range col.events {
		if ev.StartDate.DateKey(loc) == date {
			view.Events = append(view.Events, ev)
		}
	}
	for _, t := range col.tasks {
		if t.HasDueDate() && t.DueDate.DateKey(loc) == date {
			view.Tasks = append(view.Tasks, t)
		}
	}
	view.Fallback = col.fallback
	view.Empty = len(view.Events) == 0 && len(view.Tasks) == 0
	return view, nil
}

// Month считает события и задачи по дням для сетки месяца.
func (s *CalendarService) Month(ctx context.Context, req MonthRequest) (*MonthView, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	first, err := time.Parse("2006-01", strings.TrimSpace(req.Month))
	if err != nil {
		return nil, NewValidationError("month", "ожидается YYYY-MM")
	}
	if err := checkFilter(req.Filter); err != nil {
		return nil, err
	}

	view := &MonthView{Month: first.Format("2006-01"), Days: []DayCount{}}
	index := make(map[string]int)
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		key := d.Format(models.DateLayout)
		index[key] = len(view.Days)
		view.Days = append(view.Days, DayCount{Date: key})
	}

	col, err := s.load(ctx, me, req.Search, req.Filter)
	if err != nil {
		view.Error, view.Notify = s.failure(err, req.Search, req.Filter)
		return view, nil
	}

	loc := s.deps.location()
	for _, ev := range col.events {
		if i, ok := index[ev.StartDate.DateKey(loc)]; ok {
			view.Days[i].Events++
		}
	}
	for _, t := range col.tasks {
		if !t.HasDueDate() {
			continue
		}
		if i, ok := index[t.DueDate.DateKey(loc)]; ok {
			view.Days[i].Tasks++
		}
	}
	view.Fallback = col.fallback
	return view, nil
}

func checkFilter(f CalendarFilter) error {
	if t := f.eventType(); t != "" {
		if _, err := models.ParseEventType(t); err != nil {
			return NewValidationError("event_type", err.Error())
		}
	}
	return nil
}

func (s *CalendarService) failure(err error, search string, f CalendarFilter) (string, bool) {
	logger.Error("Service: Ошибка загрузки календаря", err)
	msg := "Не удалось загрузить календарь"
	var b *BusinessError
	if errors.As(err, &b) {
		msg = b.Message
	}
	active := strings.TrimSpace(search) != "" || f.member() != "" || f.eventType() != ""
	return msg, active
}

// load параллельно загружает события и задачи, каждое через кэш.
func (s *CalendarService) load(ctx context.Context, me models.Identity, search string, f CalendarFilter) (*collections, error) {
	col := &collections{}
	search = strings.TrimSpace(search)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if !s.deps.has(repo.CalendarEvents) {
			col.fallback = true
			return nil
		}
		events, err := s.events(gctx, me, search, f)
		if repo.IsRelationMissing(err) {
			s.deps.markMissing(repo.CalendarEvents)
			col.fallback = true
			return nil
		}
		if err != nil {
			return s.deps.storeError(repo.CalendarEvents, "", err)
		}
		col.events = events
		return nil
	})
	g.Go(func() error {
		if t := f.eventType(); t != "" && t != string(models.EventTypeTask) {
			return nil
		}
		tasks, err := s.tasks(gctx, me, search, f)
		if err != nil {
			return s.deps.storeError(repo.Tasks, "", err)
		}
		col.tasks = tasks
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if col.fallback {
		col.events = make([]models.CalendarEvent, 0, len(col.tasks))
		for _, t := range col.tasks {
			if t.HasDueDate() {
				col.events = append(col.events, t.AsEvent())
			}
		}
	}
	return col, nil
}

func (s *CalendarService) events(ctx context.Context, me models.Identity, search string, f CalendarFilter) ([]models.CalendarEvent, error) {
	member, kind := f.member(), f.eventType()
	key := KeyCalendar.With("events", me.ID, "q="+search, "type="+kind, "member="+member)

	return cached(ctx, s.deps, key, func(ctx context.Context) ([]models.CalendarEvent, error) {
		q := repo.From(repo.CalendarEvents).OrderBy("start_date", false)
		searchFilter(q, search, "title", "description")
		if kind != "" {
			q.Where(repo.Eq("event_type", kind))
		}

		if member != "" {
			attending, err := s.attending(ctx, member)
			switch {
			case err != nil && member == me.ID:
				q.Where(repo.Eq("created_by", me.ID))
			case err != nil:
				return []models.CalendarEvent{}, nil
			case member == me.ID && len(attending) > 0:
				q.Any(repo.Eq("created_by", me.ID), repo.In("id", attending))
			case member == me.ID:
				q.Where(repo.Eq("created_by", me.ID))
			case len(attending) == 0:
				return []models.CalendarEvent{}, nil
			default:
				q.Where(repo.In("id", attending))
			}
		}

		events, err := repo.SelectInto[models.CalendarEvent](ctx, s.deps.Store, q)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(events))
		for _, ev := range events {
			ids = append(ids, ev.ID)
		}
		byEvent := attendeesFor(ctx, s.deps, ids)
		for i := range events {
			events[i].Attendees = byEvent[events[i].ID]
			if events[i].Attendees == nil {
				events[i].Attendees = []models.EventAttendee{}
			}
		}
		return events, nil
	})
}

// attending - id событий, где пользователь участник.
func (s *CalendarService) attending(ctx context.Context, userID string) ([]string, error) {
	if !s.deps.has(repo.EventAttendees) {
		return nil, NewNotProvisioned(repo.EventAttendees)
	}
	rows, err := repo.SelectInto[models.EventAttendee](ctx, s.deps.Store,
		repo.From(repo.EventAttendees).Where(repo.Eq("user_id", userID)))
	if err != nil {
		if repo.IsRelationMissing(err) {
			s.deps.markMissing(repo.EventAttendees)
		}
		logPartialFailure("Service: Не удалось определить участие в событиях", err, zap.String("user_id", userID))
		return nil, fmt.Errorf("участники: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.EventID)
	}
	return ids, nil
}

func (s *CalendarService) tasks(ctx context.Context, me models.Identity, search string, f CalendarFilter) ([]models.Task, error) {
	member := f.member()
	key := KeyCalendar.With("tasks", me.ID, "q="+search, "member="+member)

	return cached(ctx, s.deps, key, func(ctx context.Context) ([]models.Task, error) {
		q := repo.From(repo.Tasks).Where(repo.NotNull("due_date")).OrderBy("due_date", false)
		searchFilter(q, search, "title", "description")
		if member != "" {
			q.Where(repo.Eq("assigned_to", member))
		}
		return repo.SelectInto[models.Task](ctx, s.deps.Store, q)
	})
}
