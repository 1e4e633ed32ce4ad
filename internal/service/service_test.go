package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"creatively/internal/auth"
	"creatively/internal/capability"
	"creatively/internal/models"
	"creatively/internal/query"
	repo "creatively/internal/repository"
	"creatively/internal/repository/inmemory"
	"creatively/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	meID    = "11111111-1111-1111-1111-111111111111"
	otherID = "22222222-2222-2222-2222-222222222222"
)

var fixedNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func userCtx(id string) context.Context {
	return auth.WithIdentity(context.Background(), models.Identity{ID: id, Email: id[:4] + "@creatively.test"})
}

type env struct {
	store *inmemory.Store
	cache *query.Client
	probe *capability.Probe
	deps  *service.Deps
}

// newEnv собирает сервисы над бэкендом в памяти с переданными ресурсами
// (без аргументов - со всеми).
func newEnv(t *testing.T, resources ...repo.Resource) *env {
	t.Helper()
	store := inmemory.NewStore(resources...)
	probe := capability.NewProbe(store)
	probe.Run(context.Background())
	cache := query.NewClient(query.WithStaleTime(time.Minute))
	t.Cleanup(cache.Close)

	return &env{
		store: store,
		cache: cache,
		probe: probe,
		deps: &service.Deps{
			Store:    store,
			Cache:    cache,
			Caps:     probe,
			Location: time.UTC,
			Now:      func() time.Time { return fixedNow },
		},
	}
}

func (e *env) seed(t *testing.T, resource repo.Resource, rows ...map[string]any) {
	t.Helper()
	require.NoError(t, e.store.Seed(resource, rows...))
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var b *service.BusinessError
	require.True(t, errors.As(err, &b), "ожидалась BusinessError, получено %v", err)
	assert.Equal(t, code, b.Code, b.Message)
}

// MockStore - мок хранилища
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Select(ctx context.Context, q *repo.Query) ([]repo.Row, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repo.Row), args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, resource repo.Resource, values ...map[string]any) ([]repo.Row, error) {
	args := m.Called(ctx, resource, values)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repo.Row), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, resource repo.Resource, patch map[string]any, filters ...repo.Filter) ([]repo.Row, error) {
	args := m.Called(ctx, resource, patch, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repo.Row), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, resource repo.Resource, filters ...repo.Filter) (int, error) {
	args := m.Called(ctx, resource, filters)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() {}

var _ repo.Store = (*MockStore)(nil)

func rows(raw ...string) []repo.Row {
	out := make([]repo.Row, 0, len(raw))
	for _, r := range raw {
		out = append(out, repo.Row(r))
	}
	return out
}

func TestTaskService_CreateAndList(t *testing.T) {
	e := newEnv(t)
	svc := service.NewTaskService(e.deps)
	ctx := userCtx(meID)

	due := models.NewDate(2024, time.June, 15)
	created, err := svc.Create(ctx,
		service.WithTitle("  Бриф для клиента "),
		service.WithPriority("high"),
		service.WithDueDate(&due),
	)
	require.NoError(t, err)
	assert.Equal(t, "Бриф для клиента", created.Title)
	assert.Equal(t, models.TaskStatusTodo, created.Status)
	assert.Equal(t, models.PriorityHigh, created.Priority)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, meID, *created.CreatedBy)
	assert.Equal(t, "2024-06-15", created.DueDate.String())
	assert.Nil(t, created.CompletedAt)

	list, err := svc.List(ctx, service.TaskFilter{Priority: "high"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = svc.List(ctx, service.TaskFilter{Search: "клиент"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = svc.List(ctx, service.TaskFilter{Status: "done"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTaskService_Validation(t *testing.T) {
	e := newEnv(t)
	svc := service.NewTaskService(e.deps)

	tests := []struct {
		name    string
		ctx     context.Context
		options []service.TaskOption
		code    string
	}{
		{
			name:    "без входа",
			ctx:     context.Background(),
			options: []service.TaskOption{service.WithTitle("x")},
			code:    service.CodeUnauthorized,
		},
		{
			name: "пустой заголовок",
			ctx:  userCtx(meID),
			code: service.CodeValidation,
		},
		{
			name:    "неизвестный статус",
			ctx:     userCtx(meID),
			options: []service.TaskOption{service.WithTitle("x"), service.WithStatus("blocked")},
			code:    service.CodeValidation,
		},
		{
			name:    "неизвестный приоритет",
			ctx:     userCtx(meID),
			options: []service.TaskOption{service.WithTitle("x"), service.WithPriority("urgent")},
			code:    service.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(tt.ctx, tt.options...)
			requireCode(t, err, tt.code)
		})
	}
	assert.Equal(t, 0, e.store.Calls(inmemory.OpInsert, repo.Tasks))
}

func TestTaskService_CompleteKeepsCompletedAtInStep(t *testing.T) {
	e := newEnv(t)
	svc := service.NewTaskService(e.deps)
	ctx := userCtx(meID)

	task, err := svc.Create(ctx, service.WithTitle("Макет"))
	require.NoError(t, err)

	done, err := svc.Complete(ctx, task.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, done.CompletedAt.Time().Equal(fixedNow))

	reopened, err := svc.Complete(ctx, task.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTodo, reopened.Status)
	assert.Nil(t, reopened.CompletedAt)
}

func TestTaskService_UpdateSendsOnlyChangedColumns(t *testing.T) {
	store := new(MockStore)
	deps := &service.Deps{Store: store, Now: func() time.Time { return fixedNow }}
	svc := service.NewTaskService(deps)

	store.On("Select", mock.Anything, mock.Anything).
		Return(rows(`{"id":"t1","title":"Old","status":"todo","priority":"low"}`), nil)
	store.On("Update", mock.Anything, repo.Tasks,
		map[string]any{"title": "New"},
		[]repo.Filter{repo.Eq("id", "t1")},
	).Return(rows(`{"id":"t1","title":"New","status":"todo","priority":"low"}`), nil)

	updated, err := svc.Update(userCtx(meID), "t1", service.WithTitle("New"))
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	store.AssertExpectations(t)
}

func TestTaskService_DeleteMissing(t *testing.T) {
	e := newEnv(t)
	svc := service.NewTaskService(e.deps)

	err := svc.Delete(userCtx(meID), "nope")
	requireCode(t, err, service.CodeNotFound)
}

func TestTaskService_MutationInvalidatesCachedList(t *testing.T) {
	e := newEnv(t)
	svc := service.NewTaskService(e.deps)
	ctx := userCtx(meID)

	list, err := svc.List(ctx, service.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Create(ctx, service.WithTitle("Новая"))
	require.NoError(t, err)

	list, err = svc.List(ctx, service.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 2, e.store.Calls(inmemory.OpSelect, repo.Tasks))
}

func TestTaskService_BackendFailureIsRetryable(t *testing.T) {
	e := newEnv(t)
	svc := service.NewTaskService(e.deps)
	e.store.Fail(inmemory.OpSelect, repo.Tasks, errors.New("connection reset"))

	_, err := svc.List(userCtx(meID), service.TaskFilter{})
	var b *service.BusinessError
	require.ErrorAs(t, err, &b)
	assert.Equal(t, service.CodeBackend, b.Code)
	assert.True(t, b.Retry)
}

func TestProjectService_Lifecycle(t *testing.T) {
	e := newEnv(t)
	svc := service.NewProjectService(e.deps)
	ctx := userCtx(meID)

	start := models.NewDate(2024, time.June, 10)
	due := models.NewDate(2024, time.June, 1)
	_, err := svc.Create(ctx, service.WithProjectName("Ребрендинг"), service.WithSchedule(&start, &due))
	requireCode(t, err, service.CodeValidation)

	due = models.NewDate(2024, time.July, 1)
	p, err := svc.Create(ctx, service.WithProjectName("Ребрендинг"), service.WithSchedule(&start, &due))
	require.NoError(t, err)
	assert.Equal(t, models.ProjectDraft, p.Status)

	p, err = svc.Update(ctx, p.ID, service.WithProjectStatus("in_progress"))
	require.NoError(t, err)
	assert.Equal(t, models.ProjectInProgress, p.Status)

	list, err := svc.List(ctx, service.ProjectFilter{Status: "in_progress", Search: "бренд"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestProjectService_Delete(t *testing.T) {
	tests := []struct {
		name      string
		caller    string
		confirmed bool
		code      string
	}{
		{name: "чужой проект", caller: otherID, confirmed: true, code: service.CodeForbidden},
		{name: "без подтверждения", caller: meID, confirmed: false, code: service.CodeConfirmationRequired},
		{name: "автор с подтверждением", caller: meID, confirmed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.seed(t, repo.Projects, map[string]any{"id": "p1", "name": "Сайт", "status": "draft", "created_by": meID})
			svc := service.NewProjectService(e.deps)

			err := svc.Delete(userCtx(tt.caller), "p1", tt.confirmed)
			if tt.code != "" {
				requireCode(t, err, tt.code)
				assert.Equal(t, 0, e.store.Calls(inmemory.OpDelete, repo.Projects))
				return
			}
			require.NoError(t, err)
			_, err = svc.Get(userCtx(meID), "p1")
			requireCode(t, err, service.CodeNotFound)
		})
	}
}

func TestProfileService_CreatesRowOnFirstSave(t *testing.T) {
	e := newEnv(t)
	svc := service.NewProfileService(e.deps)
	ctx := userCtx(meID)

	p, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, meID, p.ID)
	assert.Equal(t, models.RoleMember, p.Role)

	p, err = svc.Update(ctx, service.WithFullName("Анна Смирнова"), service.WithJob("Дизайнер", "Студия"))
	require.NoError(t, err)
	assert.Equal(t, "Анна Смирнова", p.FullName)

	again, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Дизайнер", again.JobTitle)
}

func TestStoreError_MarksMissingResource(t *testing.T) {
	e := newEnv(t)
	svc := service.NewTeamService(e.deps)
	require.True(t, e.probe.Has(repo.TeamMembers))

	e.store.Drop(repo.TeamMembers)
	_, err := svc.List(userCtx(meID), false)
	requireCode(t, err, service.CodeNotProvisioned)
	assert.False(t, e.probe.Has(repo.TeamMembers))

	var b *service.BusinessError
	require.ErrorAs(t, err, &b)
	assert.True(t, b.Retry)
	assert.NotEmpty(t, b.Details["remediation"])
}
