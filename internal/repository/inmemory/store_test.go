package inmemory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"creatively/internal/models"
	repo "creatively/internal/repository"
	"creatively/internal/repository/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore_HealthCheck тестирует проверку здоровья
func TestStore_HealthCheck(t *testing.T) {
	store := inmemory.NewStore()
	assert.NoError(t, store.HealthCheck(context.Background()))
}

// TestStore_InsertAssignsID тестирует создание строки
func TestStore_InsertAssignsID(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()

	created, err := repo.InsertOne[models.Task](ctx, store, repo.Tasks, map[string]any{
		"title":    "Draft copy",
		"status":   "todo",
		"due_date": "2024-06-15",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotNil(t, created.CreatedAt)

	got, err := repo.GetByID[models.Task](ctx, store, repo.Tasks, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Draft copy", got.Title)
	assert.Equal(t, 1, store.Calls(inmemory.OpInsert, repo.Tasks))
}

func TestStore_DuplicateID(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()

	_, err := store.Insert(ctx, repo.Projects, map[string]any{"id": "p1", "name": "A", "created_by": "u1"})
	require.NoError(t, err)

	_, err = store.Insert(ctx, repo.Projects, map[string]any{"id": "p1", "name": "B", "created_by": "u1"})
	require.Error(t, err)
	assert.True(t, repo.IsUniqueViolation(err))
}

// TestStore_Filters тестирует семантику фильтров
func TestStore_Filters(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	require.NoError(t, store.Seed(repo.Tasks,
		map[string]any{"id": "a", "title": "Logo concepts", "status": "todo", "due_date": "2024-06-10", "assigned_to": "u1"},
		map[string]any{"id": "b", "title": "Website copy", "status": "completed", "due_date": "2024-06-15", "assigned_to": "u2"},
		map[string]any{"id": "c", "title": "Print LOGO", "status": "in_progress", "due_date": nil},
	))

	tests := []struct {
		name string
		q    *repo.Query
		want []string
	}{
		{"eq", repo.From(repo.Tasks).Where(repo.Eq("status", "todo")), []string{"a"}},
		{"neq", repo.From(repo.Tasks).Where(repo.Neq("status", "todo")), []string{"b", "c"}},
		{"is null", repo.From(repo.Tasks).Where(repo.IsNull("due_date")), []string{"c"}},
		{"not null", repo.From(repo.Tasks).Where(repo.NotNull("assigned_to")), []string{"a", "b"}},
		{"ilike", repo.From(repo.Tasks).Where(repo.Contains("title", "logo")), []string{"a", "c"}},
		{"in", repo.From(repo.Tasks).Where(repo.In("id", []string{"a", "c", "z"})), []string{"a", "c"}},
		{"range", repo.From(repo.Tasks).Where(repo.Gte("due_date", "2024-06-12"), repo.Lte("due_date", "2024-06-30")), []string{"b"}},
		{"or group", repo.From(repo.Tasks).Any(repo.Eq("assigned_to", "u2"), repo.IsNull("assigned_to")), []string{"b", "c"}},
		{"order desc", repo.From(repo.Tasks).Where(repo.NotNull("due_date")).OrderBy("due_date", true), []string{"b", "a"}},
		{"limit", repo.From(repo.Tasks).OrderBy("id", false).Take(2), []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := repo.SelectInto[models.Task](ctx, store, tt.q)
			require.NoError(t, err)
			ids := make([]string, 0, len(tasks))
			for _, task := range tasks {
				ids = append(ids, task.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

// TestStore_ContainsIsLiteral тестирует, что символы шаблона в поиске ищутся буквально
func TestStore_ContainsIsLiteral(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	require.NoError(t, store.Seed(repo.Tasks,
		map[string]any{"id": "a", "title": "Скидка 50%", "status": "todo"},
		map[string]any{"id": "b", "title": "Бюджет 500 тыс", "status": "todo"},
		map[string]any{"id": "c", "title": "brand_book", "status": "todo"},
		map[string]any{"id": "d", "title": "brandXbook", "status": "todo"},
		map[string]any{"id": "e", "title": "Рейтинг 5*", "status": "todo"},
		map[string]any{"id": "f", "title": `путь C:\work`, "status": "todo"},
	))

	tests := []struct {
		needle string
		want   []string
	}{
		{"50%", []string{"a"}},
		{"d_b", []string{"c"}},
		{"5*", []string{"e"}},
		{`c:\w`, []string{"f"}},
		{"BRAND", []string{"c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.needle, func(t *testing.T) {
			tasks, err := repo.SelectInto[models.Task](ctx, store,
				repo.From(repo.Tasks).Where(repo.Contains("title", tt.needle)).OrderBy("id", false))
			require.NoError(t, err)
			ids := make([]string, 0, len(tasks))
			for _, task := range tasks {
				ids = append(ids, task.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_ColumnProjection(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	require.NoError(t, store.Seed(repo.Profiles, map[string]any{"id": "u1", "full_name": "Ann", "email": "ann@example.com"}))

	rows, err := store.Select(ctx, &repo.Query{Resource: repo.Profiles, Columns: []string{"id"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"id":"u1"}`, string(rows[0]))
}

// TestStore_UpdateAndDelete тестирует изменение и удаление
func TestStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	require.NoError(t, store.Seed(repo.TeamMembers,
		map[string]any{"id": "m1", "full_name": "Ann", "email": "ann@example.com", "role": "member", "active": true},
		map[string]any{"id": "m2", "full_name": "Bob", "email": "bob@example.com", "role": "admin", "active": true},
	))

	rows, err := store.Update(ctx, repo.TeamMembers, map[string]any{"active": false, "id": "ignored"}, repo.Eq("id", "m1"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	members, err := repo.SelectInto[models.TeamMember](ctx, store, repo.From(repo.TeamMembers).Where(repo.Eq("active", true)))
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "m2", members[0].ID)

	_, err = store.Update(ctx, repo.TeamMembers, map[string]any{"active": false})
	assert.ErrorIs(t, err, repo.ErrEmptyFilter)

	n, err := store.Delete(ctx, repo.TeamMembers, repo.Eq("id", "m1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.GetByID[models.TeamMember](ctx, store, repo.TeamMembers, "m1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

// TestStore_NotProvisioned тестирует отсутствующую таблицу
func TestStore_NotProvisioned(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore(repo.Tasks)

	_, err := store.Select(ctx, repo.From(repo.CalendarEvents))
	require.Error(t, err)
	assert.True(t, repo.IsRelationMissing(err))

	store.Drop(repo.Tasks)
	_, err = store.Insert(ctx, repo.Tasks, map[string]any{"title": "x"})
	assert.True(t, repo.IsRelationMissing(err))
}

func TestStore_FaultInjection(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	boom := errors.New("boom")

	store.Fail(inmemory.OpSelect, repo.Tasks, boom)
	_, err := store.Select(ctx, repo.From(repo.Tasks))
	assert.ErrorIs(t, err, boom)

	store.Recover(inmemory.OpSelect, repo.Tasks)
	_, err = store.Select(ctx, repo.From(repo.Tasks))
	assert.NoError(t, err)
	assert.Equal(t, 2, store.Calls(inmemory.OpSelect, repo.Tasks))
}

// TestStore_ConcurrentAccess тестирует конкурентный доступ
func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Insert(ctx, repo.Tasks, map[string]any{"title": "t", "status": "todo"})
			assert.NoError(t, err)
			_, err = store.Select(ctx, repo.From(repo.Tasks))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows, err := store.Select(ctx, repo.From(repo.Tasks))
	require.NoError(t, err)
	assert.Len(t, rows, 20)
}
