package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"creatively/internal/models"
	repo "creatively/internal/repository"
	"creatively/internal/repository/inmemory"
	"creatively/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func drag(t *testing.T, r *service.Rescheduler, ctx context.Context, item service.ItemRef, target string) (*service.DragSession, *service.Proposal) {
	t.Helper()
	sess, err := r.Start(ctx, item)
	require.NoError(t, err)
	_, err = r.Over(ctx, sess.ID, target)
	require.NoError(t, err)
	p, err := r.Drop(ctx, sess.ID)
	require.NoError(t, err)
	return sess, p
}

func TestReschedule_EventJune1ToJune5(t *testing.T) {
	e := newEnv(t)
	e.seed(t, repo.CalendarEvents,
		eventRow("e1", "Kickoff", "meeting", "2024-06-01T10:30:00Z", "2024-06-01T12:00:00Z", meID))
	r := service.NewRescheduler(e.deps, time.Minute)
	events := service.NewEventService(e.deps)
	ctx := userCtx(meID)

	sess, p := drag(t, r, ctx, service.ItemRef{Kind: service.ItemEvent, ID: "e1"}, "2024-06-05")
	assert.Equal(t, 4, p.DeltaDays)
	assert.Equal(t, "2024-06-01", p.FromDate)

	got, err := r.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, service.DragConfirming, got.State)

	_, err = r.Confirm(ctx, sess.ID)
	require.NoError(t, err)

	ev, err := events.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 5, 10, 30, 0, 0, time.UTC), ev.StartDate.Time().UTC())
	require.True(t, ev.HasEnd())
	assert.Equal(t, 90*time.Minute, ev.EndDate.Time().Sub(ev.StartDate.Time()))
	assert.Equal(t, 0, r.Len())
}

func TestReschedule_DeclineLeavesEventInPlace(t *testing.T) {
	e := newEnv(t)
	e.seed(t, repo.CalendarEvents, eventRow("e1", "Kickoff", "meeting", "2024-06-01T10:30:00Z", "", meID))
	r := service.NewRescheduler(e.deps, time.Minute)
	ctx := userCtx(meID)

	sess, _ := drag(t, r, ctx, service.ItemRef{Kind: service.ItemEvent, ID: "e1"}, "2024-06-05")
	cancelled, err := r.Cancel(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, service.DragIdle, cancelled.State)

	ev, err := service.NewEventService(e.deps).Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", ev.StartDate.DateKey(time.UTC))
	assert.Equal(t, 0, e.store.Calls(inmemory.OpUpdate, repo.CalendarEvents))

	_, err = r.Confirm(ctx, sess.ID)
	requireCode(t, err, service.CodeNotFound)
}

func TestReschedule_DurationPreserved(t *testing.T) {
	tests := []struct {
		name   string
		start  string
		end    string
		target string
	}{
		{name: "вперёд через месяц", start: "2024-06-28T09:00:00Z", end: "2024-07-02T18:00:00Z", target: "2024-07-10"},
		{name: "назад", start: "2024-06-15T09:00:00+03:00", end: "2024-06-15T10:15:00+03:00", target: "2024-06-03"},
		{name: "весь день", start: "2024-06-10", end: "2024-06-12", target: "2024-06-20"},
		{name: "через смену года", start: "2024-12-30T23:00:00Z", end: "2025-01-01T01:00:00Z", target: "2025-01-02"},
		{name: "доли секунды", start: "2024-06-01T10:00:00.500Z", end: "2024-06-01T11:00:00Z", target: "2024-06-05"},
		{name: "доли секунды без зоны", start: "2024-06-01T10:00:00.250", end: "2024-06-01T11:00:00", target: "2024-06-05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.seed(t, repo.CalendarEvents, eventRow("e1", "Съёмка", "meeting", tt.start, tt.end, meID))
			r := service.NewRescheduler(e.deps, time.Minute)
			ctx := userCtx(meID)

			before := models.ParseDateTime(tt.end).Time().Sub(models.ParseDateTime(tt.start).Time())
			sess, p := drag(t, r, ctx, service.ItemRef{Kind: service.ItemEvent, ID: "e1"}, tt.target)
			_, err := r.Confirm(ctx, sess.ID)
			require.NoError(t, err)

			ev, err := service.NewEventService(e.deps).Get(ctx, "e1")
			require.NoError(t, err)
			require.True(t, ev.HasEnd())
			assert.Equal(t, before, ev.EndDate.Time().Sub(ev.StartDate.Time()))
			assert.Equal(t, tt.target, ev.StartDate.DateKey(time.UTC))
			assert.Equal(t, p.NewStart.String(), ev.StartDate.String())
		})
	}
}

func TestReschedule_TaskPatchesOnlyDueDate(t *testing.T) {
	store := new(MockStore)
	deps := &service.Deps{Store: store, Now: func() time.Time { return fixedNow }}
	r := service.NewRescheduler(deps, time.Minute)
	ctx := userCtx(meID)

	store.On("Select", mock.Anything, mock.Anything).
		Return(rows(`{"id":"t1","title":"Сдать макет","status":"in_progress","priority":"high","due_date":"2024-06-01","assigned_to":"u2"}`), nil)
	store.On("Update", mock.Anything, repo.Tasks,
		map[string]any{"due_date": "2024-06-05"},
		[]repo.Filter{repo.Eq("id", "t1")},
	).Return(rows(`{"id":"t1","title":"Сдать макет","status":"in_progress","priority":"high","due_date":"2024-06-05","assigned_to":"u2"}`), nil).Once()

	sess, p := drag(t, r, ctx, service.ItemRef{Kind: service.ItemTask, ID: "t1"}, "2024-06-05")
	assert.Nil(t, p.NewEnd)
	_, err := r.Confirm(ctx, sess.ID)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestReschedule_SameDayIsNoOp(t *testing.T) {
	e := newEnv(t)
	e.seed(t, repo.Tasks, taskRowFor("t1", "Сдать", "2024-06-01", ""))
	r := service.NewRescheduler(e.deps, time.Minute)
	ctx := userCtx(meID)

	sess, p := drag(t, r, ctx, service.ItemRef{Kind: service.ItemTask, ID: "t1"}, "2024-06-01")
	assert.True(t, p.NoOp)
	_, err := r.Confirm(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, e.store.Calls(inmemory.OpUpdate, repo.Tasks))
}

func TestReschedule_FailureReturnsToIdle(t *testing.T) {
	e := newEnv(t)
	e.seed(t, repo.CalendarEvents, eventRow("e1", "Kickoff", "meeting", "2024-06-01T10:30:00Z", "", meID))
	r := service.NewRescheduler(e.deps, time.Minute)
	ctx := userCtx(meID)

	sess, _ := drag(t, r, ctx, service.ItemRef{Kind: service.ItemEvent, ID: "e1"}, "2024-06-05")
	e.store.Fail(inmemory.OpUpdate, repo.CalendarEvents, errors.New("network down"))

	_, err := r.Confirm(ctx, sess.ID)
	requireCode(t, err, service.CodeBackend)
	assert.Equal(t, 0, r.Len())

	e.store.Recover(inmemory.OpUpdate, repo.CalendarEvents)
	ev, err := service.NewEventService(e.deps).Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", ev.StartDate.DateKey(time.UTC))
}

func TestReschedule_Transitions(t *testing.T) {
	e := newEnv(t)
	e.seed(t, repo.CalendarEvents, eventRow("e1", "Kickoff", "meeting", "2024-06-01T10:30:00Z", "", meID))
	e.seed(t, repo.Tasks, map[string]any{"id": "t-no-due", "title": "Без срока", "status": "todo"})
	r := service.NewRescheduler(e.deps, time.Minute)
	ctx := userCtx(meID)

	_, err := r.Start(ctx, service.ItemRef{Kind: service.ItemTask, ID: "t-no-due"})
	requireCode(t, err, service.CodeValidation)

	_, err = r.Start(ctx, service.ItemRef{Kind: "project", ID: "e1"})
	requireCode(t, err, service.CodeValidation)

	_, err = r.Start(ctx, service.ItemRef{Kind: service.ItemEvent, ID: "missing"})
	requireCode(t, err, service.CodeNotFound)

	sess, err := r.Start(ctx, service.ItemRef{Kind: service.ItemEvent, ID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, service.DragDragging, sess.State)

	_, err = r.Drop(ctx, sess.ID)
	requireCode(t, err, service.CodeInvalidTransition)

	_, err = r.Confirm(ctx, sess.ID)
	requireCode(t, err, service.CodeInvalidTransition)

	_, err = r.Over(ctx, sess.ID, "5 июня")
	requireCode(t, err, service.CodeValidation)

	_, err = r.Over(ctx, sess.ID, "2024-06-04")
	require.NoError(t, err)
	over, err := r.Over(ctx, sess.ID, "2024-06-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-05", over.Target)

	_, err = r.Get(userCtx(otherID), sess.ID)
	requireCode(t, err, service.CodeNotFound)

	_, err = r.Drop(ctx, sess.ID)
	require.NoError(t, err)
	_, err = r.Over(ctx, sess.ID, "2024-06-06")
	requireCode(t, err, service.CodeInvalidTransition)
}

func TestReschedule_CancelRefusedWhileApplying(t *testing.T) {
	store := new(MockStore)
	deps := &service.Deps{Store: store, Now: func() time.Time { return fixedNow }}
	r := service.NewRescheduler(deps, time.Minute)
	ctx := userCtx(meID)

	release := make(chan time.Time)
	store.On("Select", mock.Anything, mock.Anything).
		Return(rows(`{"id":"e1","title":"Kickoff","event_type":"meeting","start_date":"2024-06-01T10:00:00Z"}`), nil)
	store.On("Update", mock.Anything, repo.CalendarEvents, mock.Anything, mock.Anything).
		WaitUntil(release).
		Return(rows(`{"id":"e1","title":"Kickoff","event_type":"meeting","start_date":"2024-06-05T10:00:00Z"}`), nil)

	sess, _ := drag(t, r, ctx, service.ItemRef{Kind: service.ItemEvent, ID: "e1"}, "2024-06-05")

	done := make(chan error, 1)
	go func() {
		_, err := r.Confirm(ctx, sess.ID)
		done <- err
	}()

	require.Eventually(t, func() bool {
		s, err := r.Get(ctx, sess.ID)
		return err == nil && s.State == service.DragApplying
	}, time.Second, 5*time.Millisecond)

	_, err := r.Cancel(ctx, sess.ID)
	requireCode(t, err, service.CodeInvalidTransition)
	assert.Equal(t, 0, r.Sweep(fixedNow.Add(time.Hour)))

	close(release)
	require.NoError(t, <-done)
}

func TestReschedule_SweepForgetsAbandonedSessions(t *testing.T) {
	e := newEnv(t)
	e.seed(t, repo.CalendarEvents, eventRow("e1", "Kickoff", "meeting", "2024-06-01T10:30:00Z", "", meID))
	r := service.NewRescheduler(e.deps, time.Minute)

	_, err := r.Start(userCtx(meID), service.ItemRef{Kind: service.ItemEvent, ID: "e1"})
	require.NoError(t, err)

	assert.Equal(t, 0, r.Sweep(fixedNow.Add(30*time.Second)))
	assert.Equal(t, 1, r.Sweep(fixedNow.Add(2*time.Minute)))
	assert.Equal(t, 0, r.Len())
}
