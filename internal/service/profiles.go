package service

import (
	"context"
	"errors"

	"creatively/internal/models"
	repo "creatively/internal/repository"
)

type ProfileService struct {
	deps *Deps
}

func NewProfileService(deps *Deps) *ProfileService {
	return &ProfileService{deps: deps}
}

// Get отдаёт профиль вызывающего. Если строки профиля нет,
// он собирается из сессии.
func (s *ProfileService) Get(ctx context.Context) (*models.Profile, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	p, err := cached(ctx, s.deps, KeyProfiles.With(me.ID), func(ctx context.Context) (*models.Profile, error) {
		return repo.GetByID[models.Profile](ctx, s.deps.Store, repo.Profiles, me.ID)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return &models.Profile{ID: me.ID, Email: me.Email, Role: models.RoleMember}, nil
	}
	if err != nil {
		return nil, s.deps.storeError(repo.Profiles, me.ID, err)
	}
	out := *p
	return &out, nil
}

// Update правит профиль, при первом сохранении создаёт строку.
func (s *ProfileService) Update(ctx context.Context, options ...ProfileOption) (*models.Profile, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.Get(ctx)
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

	updated, err := repo.UpdateByID[models.Profile](ctx, s.deps.Store, repo.Profiles, me.ID, c.patch)
	if errors.Is(err, repo.ErrNotFound) {
		row := map[string]any{"id": me.ID, "email": me.Email, "role": string(p.Role)}
		for k, v := range c.patch {
			row[k] = v
		}
		updated, err = repo.InsertOne[models.Profile](ctx, s.deps.Store, repo.Profiles, row)
	}
	if err != nil {
		return nil, s.deps.storeError(repo.Profiles, me.ID, err)
	}
	s.deps.invalidate(KeyProfiles.With(me.ID))
	return updated, nil
}
