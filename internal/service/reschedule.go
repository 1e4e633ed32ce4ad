package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"creatively/internal/logger"
	"creatively/internal/models"
	repo "creatively/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DragState string

const (
	DragIdle       DragState = "idle"
	DragDragging   DragState = "dragging"
	DragOver       DragState = "over"
	DragConfirming DragState = "confirming"
	DragApplying   DragState = "applying"
)

type ItemKind string

const (
	ItemEvent ItemKind = "event"
	ItemTask  ItemKind = "task"
)

type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   string   `json:"id"`
}

// Proposal - то, что пользователь подтверждает после броска.
type Proposal struct {
	Item      ItemRef          `json:"item"`
	Title     string           `json:"title"`
	FromDate  string           `json:"from_date"`
	ToDate    string           `json:"to_date"`
	DeltaDays int              `json:"delta_days"`
	OldStart  models.DateTime  `json:"old_start"`
	NewStart  models.DateTime  `json:"new_start"`
	OldEnd    *models.DateTime `json:"old_end,omitempty"`
	NewEnd    *models.DateTime `json:"new_end,omitempty"`
	NoOp      bool             `json:"no_op"`
}

// DragSession - одно перетаскивание одного элемента календаря.
type DragSession struct {
	ID        string           `json:"id"`
	UserID    string           `json:"-"`
	State     DragState        `json:"state"`
	Item      ItemRef          `json:"item"`
	Title     string           `json:"title"`
	Start     models.DateTime  `json:"start"`
	End       *models.DateTime `json:"end,omitempty"`
	Target    string           `json:"target,omitempty"`
	Proposal  *Proposal        `json:"proposal,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type Rescheduler struct {
	deps     *Deps
	ttl      time.Duration
	mtx      *sync.Mutex
	sessions map[string]*DragSession
}

func NewRescheduler(deps *Deps, ttl time.Duration) *Rescheduler {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Rescheduler{
		deps:     deps,
		ttl:      ttl,
		mtx:      &sync.Mutex{},
		sessions: make(map[string]*DragSession),
	}
}

func invalidTransition(s *DragSession, action string) error {
	return NewBusinessError(CodeInvalidTransition,
		fmt.Sprintf("Действие %q недоступно в состоянии %q", action, s.State),
		ToDetail("session_id", s.ID), ToDetail("state", s.State))
}

// Start берёт событие или задачу со сроком.
func (r *Rescheduler) Start(ctx context.Context, item ItemRef) (*DragSession, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	sess := &DragSession{
		ID:     uuid.NewString(),
		UserID: me.ID,
		State:  DragDragging,
		Item:   item,
	}
	switch item.Kind {
	case ItemEvent:
		if err := r.deps.requireResource(repo.CalendarEvents); err != nil {
			return nil, err
		}
		ev, err := repo.GetByID[models.CalendarEvent](ctx, r.deps.Store, repo.CalendarEvents, item.ID)
		if err != nil {
			return nil, r.deps.storeError(repo.CalendarEvents, item.ID, err)
		}
		if !ev.StartDate.Valid() {
			return nil, NewValidationError("start_date", "у события некорректная дата")
		}
		sess.Title, sess.Start, sess.End = ev.Title, ev.StartDate, ev.EndDate
	case ItemTask:
		t, err := repo.GetByID[models.Task](ctx, r.deps.Store, repo.Tasks, item.ID)
		if err != nil {
			return nil, r.deps.storeError(repo.Tasks, item.ID, err)
		}
		if !t.HasDueDate() {
			return nil, NewValidationError("due_date", "у задачи нет срока")
		}
		sess.Title, sess.Start = t.Title, *t.DueDate
	default:
		return nil, NewValidationError("kind", "ожидается event или task")
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()
	sess.UpdatedAt = r.deps.now()
	r.sessions[sess.ID] = sess
	logger.Debug("Service: Перетаскивание начато", zap.String("session_id", sess.ID), zap.String("item_id", item.ID))
	return sess.snapshot(), nil
}

// session отдаёт сессию вызывающего. Вызывается под mtx.
func (r *Rescheduler) session(ctx context.Context, id string) (*DragSession, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	sess, ok := r.sessions[id]
	if !ok || sess.UserID != me.ID {
		return nil, NewBusinessError(CodeNotFound, "Перетаскивание не найдено", ToDetail("session_id", id))
	}
	return sess, nil
}

func (r *Rescheduler) Get(ctx context.Context, id string) (*DragSession, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	sess, err := r.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.snapshot(), nil
}

// Over запоминает ячейку дня под курсором.
func (r *Rescheduler) Over(ctx context.Context, id, date string) (*DragSession, error) {
	day, err := models.CivilDate(date)
	if err != nil {
		return nil, NewValidationError("date", "ожидается YYYY-MM-DD")
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()
	sess, err := r.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != DragDragging && sess.State != DragOver {
		return nil, invalidTransition(sess, "over")
	}
	sess.State = DragOver
	sess.Target = day.Format(models.DateLayout)
	sess.UpdatedAt = r.deps.now()
	return sess.snapshot(), nil
}

// Drop завершает перетаскивание и просит подтверждения.
func (r *Rescheduler) Drop(ctx context.Context, id string) (*Proposal, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	sess, err := r.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != DragOver {
		return nil, invalidTransition(sess, "drop")
	}

	p, err := r.propose(sess)
	if err != nil {
		return nil, err
	}
	sess.State = DragConfirming
	sess.Proposal = p
	sess.UpdatedAt = r.deps.now()
	out := *p
	return &out, nil
}

// propose сдвигает начало и конец на одно число целых дней:
// длительность и время суток не меняются.
func (r *Rescheduler) propose(sess *DragSession) (*Proposal, error) {
	from := sess.Start.DateKey(r.deps.location())
	delta, err := models.DaysBetween(from, sess.Target)
	if err != nil {
		return nil, NewValidationError("date", err.Error())
	}
	p := &Proposal{
		Item:      sess.Item,
		Title:     sess.Title,
		FromDate:  from,
		ToDate:    sess.Target,
		DeltaDays: delta,
		OldStart:  sess.Start,
		NewStart:  sess.Start.ShiftDays(delta),
		NoOp:      delta == 0,
	}
	if sess.End != nil && sess.End.Valid() {
		oldEnd := *sess.End
		newEnd := oldEnd.ShiftDays(delta)
		p.OldEnd, p.NewEnd = &oldEnd, &newEnd
	}
	return p, nil
}

// Confirm применяет перенос одним обновлением. Сессия завершается в любом
// случае, при ошибке ничего не двигается.
func (r *Rescheduler) Confirm(ctx context.Context, id string) (*Proposal, error) {
	r.mtx.Lock()
	sess, err := r.session(ctx, id)
	if err != nil {
		r.mtx.Unlock()
		return nil, err
	}
	if sess.State != DragConfirming || sess.Proposal == nil {
		err := invalidTransition(sess, "confirm")
		r.mtx.Unlock()
		return nil, err
	}
	sess.State = DragApplying
	p := *sess.Proposal
	r.mtx.Unlock()

	applyErr := r.apply(ctx, &p)

	r.mtx.Lock()
	delete(r.sessions, id)
	r.mtx.Unlock()

	if applyErr != nil {
		logger.Warn("Service: Перенос не выполнен", zap.String("item_id", p.Item.ID), zap.Error(applyErr))
		return nil, applyErr
	}
	return &p, nil
}

func (r *Rescheduler) apply(ctx context.Context, p *Proposal) error {
	if p.NoOp {
		return nil
	}

	var err error
	switch p.Item.Kind {
	case ItemEvent:
		patch := map[string]any{"start_date": p.NewStart.String()}
		if p.NewEnd != nil {
			patch["end_date"] = p.NewEnd.String()
		}
		_, err = repo.UpdateByID[models.CalendarEvent](ctx, r.deps.Store, repo.CalendarEvents, p.Item.ID, patch)
		err = r.deps.storeError(repo.CalendarEvents, p.Item.ID, err)
	case ItemTask:
		patch := map[string]any{"due_date": p.NewStart.String()}
		_, err = repo.UpdateByID[models.Task](ctx, r.deps.Store, repo.Tasks, p.Item.ID, patch)
		err = r.deps.storeError(repo.Tasks, p.Item.ID, err)
	}
	if err != nil {
		return err
	}

	r.deps.invalidate(KeyCalendar, KeyTasks)
	logger.Info("Service: Элемент перенесён",
		zap.String("kind", string(p.Item.Kind)),
		zap.String("item_id", p.Item.ID),
		zap.String("to", p.ToDate),
	)
	return nil
}

// Cancel сбрасывает сессию, если обновление ещё не началось.
func (r *Rescheduler) Cancel(ctx context.Context, id string) (*DragSession, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	sess, err := r.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State == DragApplying {
		return nil, invalidTransition(sess, "cancel")
	}
	delete(r.sessions, id)
	out := sess.snapshot()
	out.State = DragIdle
	out.Proposal = nil
	return out, nil
}

// Sweep забывает сессии, брошенные дольше ttl.
func (r *Rescheduler) Sweep(now time.Time) int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	removed := 0
	for id, sess := range r.sessions {
		if sess.State != DragApplying && now.Sub(sess.UpdatedAt) > r.ttl {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

func (r *Rescheduler) Len() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.sessions)
}

func (s *DragSession) snapshot() *DragSession {
	out := *s
	if s.Proposal != nil {
		p := *s.Proposal
		out.Proposal = &p
	}
	return &out
}
