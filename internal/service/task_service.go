package service

import (
	"context"

	"creatively/internal/logger"
	"creatively/internal/models"
	repo "creatively/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TaskFilter struct {
	Status     string
	Priority   string
	ProjectID  string
	AssignedTo string
	Search     string
}

func (f TaskFilter) key() []string {
	return []string{"status=" + f.Status, "priority=" + f.Priority, "project=" + f.ProjectID, "assignee=" + f.AssignedTo, "q=" + f.Search}
}

type TaskService struct {
	deps *Deps
}

func NewTaskService(deps *Deps) *TaskService {
	return &TaskService{deps: deps}
}

func (s *TaskService) List(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	q := repo.From(repo.Tasks)
	if f.Status != "" {
		st, err := models.ParseTaskStatus(f.Status)
		if err != nil {
			return nil, NewValidationError("status", err.Error())
		}
		f.Status = string(st)
		q.Where(repo.Eq("status", f.Status))
	}
	if f.Priority != "" {
		p, err := models.ParseTaskPriority(f.Priority)
		if err != nil {
			return nil, NewValidationError("priority", err.Error())
		}
		f.Priority = string(p)
		q.Where(repo.Eq("priority", f.Priority))
	}
	if f.ProjectID != "" {
		q.Where(repo.Eq("project_id", f.ProjectID))
	}
	if f.AssignedTo != "" {
		q.Where(repo.Eq("assigned_to", f.AssignedTo))
	}
	searchFilter(q, f.Search, "title", "description")
	q.OrderBy("created_at", true)

	key := KeyTasks.With(me.ID, "list").With(f.key()...)
	tasks, err := cached(ctx, s.deps, key, func(ctx context.Context) ([]models.Task, error) {
		return repo.SelectInto[models.Task](ctx, s.deps.Store, q)
	})
	if err != nil {
		return nil, s.deps.storeError(repo.Tasks, "", err)
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, id string) (*models.Task, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	task, err := repo.GetByID[models.Task](ctx, s.deps.Store, repo.Tasks, id)
	if err != nil {
		logger.Info("Service: Задача не найдена", zap.String("target_id", id), zap.Error(err))
		return nil, s.deps.storeError(repo.Tasks, id, err)
	}
	return task, nil
}

// Create создаёт задачу от имени вызывающего. Заголовок обязателен.
func (s *TaskService) Create(ctx context.Context, options ...TaskOption) (*models.Task, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:        uuid.NewString(),
		Status:    models.TaskStatusTodo,
		Priority:  models.PriorityMedium,
		CreatedBy: &me.ID,
	}
	c := newChange(task)
	for _, opt := range options {
		opt(c)
	}
	if c.err != nil {
		return nil, c.err
	}
	if task.Title == "" {
		return nil, NewValidationError("title", "обязательное поле")
	}
	task.Normalize(s.deps.now())

	created, err := repo.InsertOne[models.Task](ctx, s.deps.Store, repo.Tasks, taskRow(task))
	if err != nil {
		return nil, s.deps.storeError(repo.Tasks, task.ID, err)
	}
	s.deps.invalidate(KeyTasks, KeyCalendar)
	logger.Info("Service: Задача создана", zap.String("task_id", created.ID))
	return created, nil
}

// Update отправляет только затронутые колонки. При смене статуса
// completed_at пересчитывается.
func (s *TaskService) Update(ctx context.Context, id string, options ...TaskOption) (*models.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	wasDone := task.Status.Done()
	c := newChange(task)
	for _, opt := range options {
		opt(c)
	}
	if c.err != nil {
		return nil, c.err
	}
	if len(c.patch) == 0 {
		return task, nil
	}
	if _, touched := c.patch["status"]; touched && task.Status.Done() != wasDone {
		task.Normalize(s.deps.now())
		c.set("completed_at", nullableDate(task.CompletedAt))
	}

	updated, err := repo.UpdateByID[models.Task](ctx, s.deps.Store, repo.Tasks, id, c.patch)
	if err != nil {
		return nil, s.deps.storeError(repo.Tasks, id, err)
	}
	s.deps.invalidate(KeyTasks, KeyCalendar)
	return updated, nil
}

func (s *TaskService) Complete(ctx context.Context, id string, done bool) (*models.Task, error) {
	status := models.TaskStatusTodo
	if done {
		status = models.TaskStatusCompleted
	}
	return s.Update(ctx, id, WithStatus(string(status)))
}

func (s *TaskService) Delete(ctx context.Context, id string) error {
	if _, err := currentUser(ctx); err != nil {
		return err
	}
	n, err := s.deps.Store.Delete(ctx, repo.Tasks, repo.Eq("id", id))
	if err != nil {
		return s.deps.storeError(repo.Tasks, id, err)
	}
	if n == 0 {
		return NewNotFound(repo.Tasks, id)
	}
	s.deps.invalidate(KeyTasks, KeyCalendar)
	logger.Info("Service: Задача удалена", zap.String("task_id", id))
	return nil
}

func taskRow(t *models.Task) map[string]any {
	return map[string]any{
		"id":           t.ID,
		"title":        t.Title,
		"description":  t.Description,
		"status":       string(t.Status),
		"priority":     string(t.Priority),
		"project_id":   t.ProjectID,
		"assigned_to":  t.AssignedTo,
		"created_by":   t.CreatedBy,
		"due_date":     nullableDate(t.DueDate),
		"completed_at": nullableDate(t.CompletedAt),
	}
}
