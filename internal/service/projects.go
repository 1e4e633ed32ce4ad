package service

import (
	"context"

	"creatively/internal/logger"
	"creatively/internal/models"
	repo "creatively/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProjectFilter struct {
	Status string
	Search string
}

type ProjectService struct {
	deps *Deps
}

func NewProjectService(deps *Deps) *ProjectService {
	return &ProjectService{deps: deps}
}

func (s *ProjectService) List(ctx context.Context, f ProjectFilter) ([]models.Project, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	q := repo.From(repo.Projects)
	if f.Status != "" {
		st, err := models.ParseProjectStatus(f.Status)
		if err != nil {
			return nil, NewValidationError("status", err.Error())
		}
		f.Status = string(st)
		q.Where(repo.Eq("status", f.Status))
	}
	searchFilter(q, f.Search, "name", "description")
	q.OrderBy("created_at", true)

	key := KeyProjects.With(me.ID, "list", "status="+f.Status, "q="+f.Search)
	projects, err := cached(ctx, s.deps, key, func(ctx context.Context) ([]models.Project, error) {
		return repo.SelectInto[models.Project](ctx, s.deps.Store, q)
	})
	if err != nil {
		return nil, s.deps.storeError(repo.Projects, "", err)
	}
	return projects, nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (*models.Project, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	p, err := repo.GetByID[models.Project](ctx, s.deps.Store, repo.Projects, id)
	if err != nil {
		return nil, s.deps.storeError(repo.Projects, id, err)
	}
	return p, nil
}

func (s *ProjectService) Create(ctx context.Context, options ...ProjectOption) (*models.Project, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	p := &models.Project{
		ID:        uuid.NewString(),
		Status:    models.ProjectDraft,
		CreatedBy: me.ID,
	}
	c := newChange(p)
	for _, opt := range options {
		opt(c)
	}
	if c.err != nil {
		return nil, c.err
	}
	if p.Name == "" {
		return nil, NewValidationError("name", "обязательное поле")
	}
	if err := checkSchedule(p); err != nil {
		return nil, err
	}

	created, err := repo.InsertOne[models.Project](ctx, s.deps.Store, repo.Projects, map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"type":        p.Type,
		"status":      string(p.Status),
		"client_id":   p.ClientID,
		"start_date":  nullableDate(p.StartDate),
		"due_date":    nullableDate(p.DueDate),
		"budget":      p.Budget,
		"created_by":  p.CreatedBy,
	})
	if err != nil {
		return nil, s.deps.storeError(repo.Projects, p.ID, err)
	}
	s.deps.invalidate(KeyProjects)
	logger.Info("Service: Проект создан", zap.String("project_id", created.ID))
	return created, nil
}

func (s *ProjectService) Update(ctx context.Context, id string, options ...ProjectOption) (*models.Project, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := newChange(p)
	for _, opt := range options {
		opt(c)
	}
	if c.err != nil {
		return nil, c.err
	}
	if len(c.patch) == 0 {
		return p, nil
	}
	if err := checkSchedule(p); err != nil {
		return nil, err
	}

	updated, err := repo.UpdateByID[models.Project](ctx, s.deps.Store, repo.Projects, id, c.patch)
	if err != nil {
		return nil, s.deps.storeError(repo.Projects, id, err)
	}
	s.deps.invalidate(KeyProjects)
	return updated, nil
}

// Delete удаляет проект насовсем. Только автор и только
// после подтверждения.
func (s *ProjectService) Delete(ctx context.Context, id string, confirmed bool) error {
	me, err := currentUser(ctx)
	if err != nil {
		return err
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.CreatedBy != me.ID {
		return NewBusinessError(CodeForbidden, "Удалить проект может только его автор",
			ToDetail("project_id", id))
	}
	if !confirmed {
		return NewBusinessError(CodeConfirmationRequired, "Подтвердите удаление проекта",
			ToDetail("project_id", id), ToDetail("name", p.Name))
	}

	n, err := s.deps.Store.Delete(ctx, repo.Projects, repo.Eq("id", id))
	if err != nil {
		return s.deps.storeError(repo.Projects, id, err)
	}
	if n == 0 {
		return NewNotFound(repo.Projects, id)
	}
	// задачи и события остаются, project_id обнуляется
	s.deps.invalidate(KeyProjects, KeyTasks, KeyCalendar)
	logger.Info("Service: Проект удалён", zap.String("project_id", id), zap.String("user_id", me.ID))
	return nil
}

func checkSchedule(p *models.Project) error {
	if p.StartDate == nil || p.DueDate == nil || !p.StartDate.Valid() || !p.DueDate.Valid() {
		return nil
	}
	if p.DueDate.Time().Before(p.StartDate.Time()) {
		return NewValidationError("due_date", "срок раньше даты начала")
	}
	return nil
}
