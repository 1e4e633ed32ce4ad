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

type MemberInput struct {
	FullName   string
	Email      string
	Role       string
	JobTitle   string
	Department string
	UserID     *string
}

type TeamService struct {
	deps *Deps
}

func NewTeamService(deps *Deps) *TeamService {
	return &TeamService{deps: deps}
}

func (s *TeamService) List(ctx context.Context, activeOnly bool) ([]models.TeamMember, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.deps.requireResource(repo.TeamMembers); err != nil {
		return nil, err
	}

	scope := "all"
	q := repo.From(repo.TeamMembers).OrderBy("full_name", false)
	if activeOnly {
		scope = "active"
		q.Where(repo.Eq("active", true))
	}
	members, err := cached(ctx, s.deps, KeyTeam.With(me.ID, scope), func(ctx context.Context) ([]models.TeamMember, error) {
		return repo.SelectInto[models.TeamMember](ctx, s.deps.Store, q)
	})
	if err != nil {
		return nil, s.deps.storeError(repo.TeamMembers, "", err)
	}
	return members, nil
}

func (s *TeamService) Get(ctx context.Context, id string) (*models.TeamMember, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	if err := s.deps.requireResource(repo.TeamMembers); err != nil {
		return nil, err
	}
	m, err := repo.GetByID[models.TeamMember](ctx, s.deps.Store, repo.TeamMembers, id)
	if err != nil {
		return nil, s.deps.storeError(repo.TeamMembers, id, err)
	}
	return m, nil
}

// Invite добавляет активного участника. Email в команде уникален.
func (s *TeamService) Invite(ctx context.Context, in MemberInput) (*models.TeamMember, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	if err := s.deps.requireResource(repo.TeamMembers); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return nil, NewValidationError("full_name", "обязательное поле")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !strings.Contains(email, "@") {
		return nil, NewValidationError("email", "некорректный адрес")
	}
	role := models.RoleMember
	if in.Role != "" {
		r, err := models.ParseRole(in.Role)
		if err != nil {
			return nil, NewValidationError("role", err.Error())
		}
		role = r
	}

	id := uuid.NewString()
	m, err := repo.InsertOne[models.TeamMember](ctx, s.deps.Store, repo.TeamMembers, map[string]any{
		"id":         id,
		"user_id":    trimmed(in.UserID),
		"full_name":  name,
		"email":      email,
		"role":       string(role),
		"active":     true,
		"job_title":  strings.TrimSpace(in.JobTitle),
		"department": strings.TrimSpace(in.Department),
	})
	if err != nil {
		if repo.IsUniqueViolation(err) {
			return nil, &BusinessError{
				Code:    CodeConflict,
				Message: "Участник с таким email уже есть в команде",
				Details: map[string]any{"email": email},
				Err:     err,
			}
		}
		return nil, s.deps.storeError(repo.TeamMembers, id, err)
	}
	s.deps.invalidate(KeyTeam)
	logger.Info("Service: Участник добавлен", zap.String("member_id", m.ID))
	return m, nil
}

func (s *TeamService) Update(ctx context.Context, id string, options ...MemberOption) (*models.TeamMember, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := newChange(m)
	for _, opt := range options {
		opt(c)
	}
	if c.err != nil {
		return nil, c.err
	}
	if len(c.patch) == 0 {
		return m, nil
	}

	updated, err := repo.UpdateByID[models.TeamMember](ctx, s.deps.Store, repo.TeamMembers, id, c.patch)
	if err != nil {
		return nil, s.deps.storeError(repo.TeamMembers, id, err)
	}
	s.deps.invalidate(KeyTeam)
	return updated, nil
}
