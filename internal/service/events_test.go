package service_test

import (
	"errors"
	"testing"

	repo "creatively/internal/repository"
	"creatively/internal/repository/inmemory"
	"creatively/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventService_CreateWithAttendees(t *testing.T) {
	e := newEnv(t)
	svc := service.NewEventService(e.deps)
	ctx := userCtx(meID)

	ev, err := svc.Create(ctx, service.EventInput{
		Title:     "Kickoff",
		Start:     "2024-06-01T10:00:00Z",
		End:       "2024-06-01T11:00:00Z",
		Attendees: []string{otherID, otherID, " ", meID},
	})
	require.NoError(t, err)
	assert.Equal(t, "meeting", string(ev.EventType))
	assert.Equal(t, meID, ev.CreatedBy)
	assert.Len(t, ev.Attendees, 2)
	assert.Equal(t, 1, e.store.Calls(inmemory.OpInsert, repo.EventAttendees))

	got, err := svc.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, got.Attendees, 2)
}

func TestEventService_AttendeeFailureKeepsEvent(t *testing.T) {
	e := newEnv(t)
	e.store.Fail(inmemory.OpInsert, repo.EventAttendees, errors.New("rls violation"))
	svc := service.NewEventService(e.deps)

	ev, err := svc.Create(userCtx(meID), service.EventInput{
		Title:     "Съёмка",
		Start:     "2024-06-03",
		AllDay:    true,
		Attendees: []string{otherID},
	})
	require.NoError(t, err)
	assert.Empty(t, ev.Attendees)

	_, err = svc.Get(userCtx(meID), ev.ID)
	require.NoError(t, err)
}

func TestEventService_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   service.EventInput
	}{
		{name: "без названия", in: service.EventInput{Start: "2024-06-01"}},
		{name: "без начала", in: service.EventInput{Title: "Созвон"}},
		{name: "неизвестный тип", in: service.EventInput{Title: "Созвон", Start: "2024-06-01", EventType: "party"}},
		{name: "конец раньше начала", in: service.EventInput{Title: "Созвон", Start: "2024-06-02T10:00:00Z", End: "2024-06-01T10:00:00Z"}},
		{name: "кривой конец", in: service.EventInput{Title: "Созвон", Start: "2024-06-02", End: "завтра"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			_, err := service.NewEventService(e.deps).Create(userCtx(meID), tt.in)
			requireCode(t, err, service.CodeValidation)
			assert.Equal(t, 0, e.store.Calls(inmemory.OpInsert, repo.CalendarEvents))
		})
	}
}

func TestEventService_UpdateKeepsAttendees(t *testing.T) {
	e := newEnv(t)
	svc := service.NewEventService(e.deps)
	ctx := userCtx(meID)

	ev, err := svc.Create(ctx, service.EventInput{Title: "Kickoff", Start: "2024-06-01T10:00:00Z", Attendees: []string{otherID}})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, ev.ID, service.WithEventTitle("Kickoff v2"))
	require.NoError(t, err)
	assert.Equal(t, "Kickoff v2", updated.Title)
	assert.Len(t, updated.Attendees, 1)
}

func TestEventService_DeleteRemovesAttendeesFirst(t *testing.T) {
	e := newEnv(t)
	svc := service.NewEventService(e.deps)
	ctx := userCtx(meID)

	ev, err := svc.Create(ctx, service.EventInput{Title: "Kickoff", Start: "2024-06-01T10:00:00Z", Attendees: []string{otherID}})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, ev.ID))
	assert.Equal(t, 1, e.store.Calls(inmemory.OpDelete, repo.EventAttendees))

	_, err = svc.Get(ctx, ev.ID)
	requireCode(t, err, service.CodeNotFound)

	err = svc.Delete(ctx, ev.ID)
	requireCode(t, err, service.CodeNotFound)
}

func TestEventService_NotProvisioned(t *testing.T) {
	e := newEnv(t, repo.Tasks)
	_, err := service.NewEventService(e.deps).Create(userCtx(meID), service.EventInput{Title: "Kickoff", Start: "2024-06-01"})
	requireCode(t, err, service.CodeNotProvisioned)
}
