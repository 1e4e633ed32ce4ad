package handlers

import (
	"net/http"

	"creatively/internal/handlers/dto"
	"creatively/internal/logger"
	"creatively/internal/service"

	"go.uber.org/zap"
)

type CalendarHandler struct {
	Calendar    CalendarService
	Events      EventService
	Rescheduler Rescheduler
	Clock       Clock
}

func NewCalendarHandler(calendar CalendarService, events EventService, rescheduler Rescheduler, clock Clock) CalendarHandler {
	return CalendarHandler{
		Calendar:    calendar,
		Events:      events,
		Rescheduler: rescheduler,
		Clock:       clock,
	}
}

func calendarFilter(r *http.Request) (string, service.CalendarFilter) {
	q := r.URL.Query()
	return q.Get("q"), service.CalendarFilter{
		TeamMember: q.Get("member"),
		EventType:  q.Get("type"),
	}
}

// GET /calendar/day?date=YYYY-MM-DD&q=&member=&type=
func (s *CalendarHandler) Day(w http.ResponseWriter, r *http.Request) {
	search, filter := calendarFilter(r)
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.Clock.now().In(s.Clock.location()).Format("2006-01-02")
	}

	view, err := s.Calendar.Day(r.Context(), service.DayRequest{Date: date, Search: search, Filter: filter})
	if err != nil {
		handleError(w, r, err, "calendar_day")
		return
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("day", dto.FromDay(view, s.Clock.now(), s.Clock.location())))
}

// GET /calendar/month?month=YYYY-MM
func (s *CalendarHandler) Month(w http.ResponseWriter, r *http.Request) {
	search, filter := calendarFilter(r)
	month := r.URL.Query().Get("month")
	if month == "" {
		month = s.Clock.now().In(s.Clock.location()).Format("2006-01")
	}

	view, err := s.Calendar.Month(r.Context(), service.MonthRequest{Month: month, Search: search, Filter: filter})
	if err != nil {
		handleError(w, r, err, "calendar_month")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("month", view))
}

func (s *CalendarHandler) StartDrag(w http.ResponseWriter, r *http.Request) {
	var request dto.DragStartRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	sess, err := s.Rescheduler.Start(r.Context(), service.ItemRef{Kind: service.ItemKind(request.Kind), ID: request.ID})
	if err != nil {
		handleError(w, r, err, "drag_start")
		return
	}
	responseWithJSON(w, http.StatusCreated, toPayload("session", sess))
}

func (s *CalendarHandler) GetDrag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sess, err := s.Rescheduler.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "drag_get")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("session", sess))
}

func (s *CalendarHandler) DragOver(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var request dto.DragOverRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	sess, err := s.Rescheduler.Over(r.Context(), id, request.Date)
	if err != nil {
		handleError(w, r, err, "drag_over")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("session", sess))
}

// Drop возвращает предложение переноса, которое пользователь должен подтвердить.
func (s *CalendarHandler) Drop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	proposal, err := s.Rescheduler.Drop(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "drag_drop")
		return
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("proposal", proposal),
		toPayload("state", service.DragConfirming),
	)
}

func (s *CalendarHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	proposal, err := s.Rescheduler.Confirm(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "drag_confirm")
		return
	}
	notice := "Перенесено на " + proposal.ToDate
	if proposal.NoOp {
		notice = "Дата не изменилась"
	}
	logger.Info("HTTP_OUT: Перенос подтверждён", zap.String("item_id", proposal.Item.ID))
	responseWithNotice(w, http.StatusOK, notice,
		toPayload("proposal", proposal),
		toPayload("state", service.DragIdle),
	)
}

func (s *CalendarHandler) CancelDrag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sess, err := s.Rescheduler.Cancel(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "drag_cancel")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("session", sess))
}

func (s *CalendarHandler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var request dto.CreateEventRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	ev, err := s.Events.Create(r.Context(), request.Input())
	if err != nil {
		handleError(w, r, err, "create_event")
		return
	}
	responseWithNotice(w, http.StatusCreated, "Событие создано", toPayload("event", dto.FromEvent(*ev)))
}

func (s *CalendarHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ev, err := s.Events.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "get_event")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("event", dto.FromEvent(*ev)))
}

func (s *CalendarHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var request dto.UpdateEventRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	current, err := s.Events.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "update_event")
		return
	}
	ev, err := s.Events.Update(r.Context(), id, request.Options(current)...)
	if err != nil {
		handleError(w, r, err, "update_event")
		return
	}
	responseWithNotice(w, http.StatusOK, "Событие обновлено", toPayload("event", dto.FromEvent(*ev)))
}

func (s *CalendarHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Events.Delete(r.Context(), id); err != nil {
		handleError(w, r, err, "delete_event")
		return
	}
	responseWithNotice(w, http.StatusOK, "Событие удалено", toPayload("id", id))
}
