package service

import (
	"context"
	"strings"

	"creatively/internal/logger"
	"creatively/internal/models"
	repo "creatively/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventInput - новое событие, как его прислала форма.
type EventInput struct {
	Title       string
	Description string
	EventType   string
	Start       string
	End         string
	AllDay      bool
	ProjectID   *string
	Attendees   []string
}

func (in EventInput) build(createdBy string) (*models.CalendarEvent, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, NewValidationError("title", "обязательное поле")
	}
	kind := in.EventType
	if strings.TrimSpace(kind) == "" {
		kind = string(models.EventTypeMeeting)
	}
	t, err := models.ParseEventType(kind)
	if err != nil {
		return nil, NewValidationError("event_type", err.Error())
	}
	start := models.ParseDateTime(in.Start)
	if !start.Valid() {
		return nil, NewValidationError("start_date", "некорректная дата")
	}
	ev := &models.CalendarEvent{
		ID:          uuid.NewString(),
		Title:       title,
		Description: in.Description,
		EventType:   t,
		StartDate:   start,
		AllDay:      in.AllDay,
		ProjectID:   trimmed(in.ProjectID),
		CreatedBy:   createdBy,
	}
	if strings.TrimSpace(in.End) != "" {
		end := models.ParseDateTime(in.End)
		if !end.Valid() {
			return nil, NewValidationError("end_date", "некорректная дата")
		}
		ev.EndDate = &end
	}
	if err := checkEventTimes(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func checkEventTimes(ev *models.CalendarEvent) error {
	if ev.HasEnd() && ev.EndDate.Time().Before(ev.StartDate.Time()) {
		return NewValidationError("end_date", "окончание раньше начала")
	}
	return nil
}

type EventService struct {
	deps *Deps
}

func NewEventService(deps *Deps) *EventService {
	return &EventService{deps: deps}
}

// Create проверяет событие, вставляет его и добавляет участников. Ошибка
// вставки участников логируется, событие остаётся.
func (s *EventService) Create(ctx context.Context, in EventInput) (*models.CalendarEvent, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	ev, err := in.build(me.ID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.requireResource(repo.CalendarEvents); err != nil {
		return nil, err
	}

	created, err := repo.InsertOne[models.CalendarEvent](ctx, s.deps.Store, repo.CalendarEvents, map[string]any{
		"id":          ev.ID,
		"title":       ev.Title,
		"description": ev.Description,
		"event_type":  string(ev.EventType),
		"start_date":  ev.StartDate.String(),
		"end_date":    nullableDate(ev.EndDate),
		"all_day":     ev.AllDay,
		"project_id":  ev.ProjectID,
		"created_by":  ev.CreatedBy,
	})
	if err != nil {
		return nil, s.deps.storeError(repo.CalendarEvents, ev.ID, err)
	}
	created.Attendees = s.addAttendees(ctx, created.ID, in.Attendees)
	s.deps.invalidate(KeyCalendar)
	logger.Info("Service: Событие создано", zap.String("event_id", created.ID), zap.Int("attendees", len(created.Attendees)))
	return created, nil
}

func (s *EventService) addAttendees(ctx context.Context, eventID string, userIDs []string) []models.EventAttendee {
	out := []models.EventAttendee{}
	seen := make(map[string]bool, len(userIDs))
	rows := make([]map[string]any, 0, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, map[string]any{
			"event_id":        eventID,
			"user_id":         id,
			"role":            "attendee",
			"response_status": string(models.ResponsePending),
		})
	}
	if len(rows) == 0 {
		return out
	}
	if !s.deps.has(repo.EventAttendees) {
		logger.Warn("Service: Участники не сохранены, таблица не создана", zap.String("event_id", eventID))
		return out
	}

	inserted, err := s.deps.Store.Insert(ctx, repo.EventAttendees, rows...)
	if err != nil {
		if repo.IsRelationMissing(err) {
			s.deps.markMissing(repo.EventAttendees)
		}
		logPartialFailure("Service: Не удалось добавить участников", err, zap.String("event_id", eventID))
		return out
	}
	return repo.DecodeRows[models.EventAttendee](repo.EventAttendees, inserted)
}

func (s *EventService) Get(ctx context.Context, id string) (*models.CalendarEvent, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	if err := s.deps.requireResource(repo.CalendarEvents); err != nil {
		return nil, err
	}
	ev, err := repo.GetByID[models.CalendarEvent](ctx, s.deps.Store, repo.CalendarEvents, id)
	if err != nil {
		return nil, s.deps.storeError(repo.CalendarEvents, id, err)
	}
	byEvent := attendeesFor(ctx, s.deps, []string{id})
	ev.Attendees = byEvent[id]
	if ev.Attendees == nil {
		ev.Attendees = []models.EventAttendee{}
	}
	return ev, nil
}

func (s *EventService) Update(ctx context.Context, id string, options ...EventOption) (*models.CalendarEvent, error) {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	attendees := ev.Attendees
	c := newChange(ev)
	for _, opt := range options {
		opt(c)
	}
	if c.err != nil {
		return nil, c.err
	}
	if len(c.patch) == 0 {
		return ev, nil
	}
	if err := checkEventTimes(ev); err != nil {
		return nil, err
	}

	updated, err := repo.UpdateByID[models.CalendarEvent](ctx, s.deps.Store, repo.CalendarEvents, id, c.patch)
	if err != nil {
		return nil, s.deps.storeError(repo.CalendarEvents, id, err)
	}
	updated.Attendees = attendees
	s.deps.invalidate(KeyCalendar)
	return updated, nil
}

// Delete удаляет сначала участников, потом событие.
func (s *EventService) Delete(ctx context.Context, id string) error {
	if _, err := currentUser(ctx); err != nil {
		return err
	}
	if err := s.deps.requireResource(repo.CalendarEvents); err != nil {
		return err
	}
	if s.deps.has(repo.EventAttendees) {
		if _, err := s.deps.Store.Delete(ctx, repo.EventAttendees, repo.Eq("event_id", id)); err != nil {
			logPartialFailure("Service: Не удалось удалить участников события", err, zap.String("event_id", id))
		}
	}

	n, err := s.deps.Store.Delete(ctx, repo.CalendarEvents, repo.Eq("id", id))
	if err != nil {
		return s.deps.storeError(repo.CalendarEvents, id, err)
	}
	if n == 0 {
		return NewNotFound(repo.CalendarEvents, id)
	}
	s.deps.invalidate(KeyCalendar)
	logger.Info("Service: Событие удалено", zap.String("event_id", id))
	return nil
}

// attendeesFor загружает участников многих событий одним запросом. Ошибки
// логируются, участников тогда нет.
func attendeesFor(ctx context.Context, d *Deps, eventIDs []string) map[string][]models.EventAttendee {
	out := make(map[string][]models.EventAttendee, len(eventIDs))
	if len(eventIDs) == 0 || !d.has(repo.EventAttendees) {
		return out
	}
	rows, err := repo.SelectInto[models.EventAttendee](ctx, d.Store,
		repo.From(repo.EventAttendees).Where(repo.In("event_id", eventIDs)))
	if err != nil {
		if repo.IsRelationMissing(err) {
			d.markMissing(repo.EventAttendees)
		}
		logPartialFailure("Service: Не удалось загрузить участников", err, zap.Int("events", len(eventIDs)))
		return out
	}
	for _, a := range rows {
		out[a.EventID] = append(out[a.EventID], a)
	}
	return out
}
