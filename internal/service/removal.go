package service

import (
	"context"
	"errors"
	"fmt"

	"creatively/internal/logger"
	"creatively/internal/models"
	repo "creatively/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type RemovalMode string

const (
	RemovalDeactivated RemovalMode = "deactivated"
	RemovalDeleted     RemovalMode = "deleted"
)

type RemovalResult struct {
	Mode     RemovalMode        `json:"mode"`
	MemberID string             `json:"member_id"`
	Member   *models.TeamMember `json:"member,omitempty"`
}

// placeholderEmail освобождает адрес для будущего приглашения,
// не нарушая уникальность.
func placeholderEmail() string {
	return fmt.Sprintf("removed+%s@deleted.invalid", uuid.NewString())
}

// Remove убирает участника из команды: сначала деактивирует запись и
// подменяет email, а если не вышло, удаляет строку.
func (s *TeamService) Remove(ctx context.Context, id string) (*RemovalResult, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	patch := map[string]any{"active": false, "email": placeholderEmail()}
	m, deactivateErr := repo.UpdateByID[models.TeamMember](ctx, s.deps.Store, repo.TeamMembers, id, patch)
	if deactivateErr == nil {
		s.deps.invalidate(KeyTeam)
		logger.Info("Service: Участник деактивирован", zap.String("member_id", id))
		return &RemovalResult{Mode: RemovalDeactivated, MemberID: id, Member: m}, nil
	}
	logger.Warn("Service: Деактивация не удалась, удаляем запись", zap.String("member_id", id), zap.Error(deactivateErr))

	n, deleteErr := s.deps.Store.Delete(ctx, repo.TeamMembers, repo.Eq("id", id))
	if deleteErr == nil && n == 0 {
		deleteErr = repo.ErrNotFound
	}
	if deleteErr != nil {
		err := multierr.Combine(deactivateErr, deleteErr)
		if repo.IsRelationMissing(err) || errors.Is(deleteErr, repo.ErrNotFound) {
			return nil, s.deps.storeError(repo.TeamMembers, id, deleteErr)
		}
		return nil, &BusinessError{
			Code:    CodeBackend,
			Message: "Не удалось удалить участника",
			Details: map[string]any{"member_id": id},
			Retry:   true,
			Err:     err,
		}
	}

	s.deps.invalidate(KeyTeam)
	logger.Info("Service: Участник удалён", zap.String("member_id", id))
	return &RemovalResult{Mode: RemovalDeleted, MemberID: id}, nil
}

// ForceDelete удаляет участника насовсем после явного подтверждения.
func (s *TeamService) ForceDelete(ctx context.Context, id string, confirmed bool) (*RemovalResult, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, NewBusinessError(CodeConfirmationRequired, "Подтвердите окончательное удаление участника",
			ToDetail("member_id", id), ToDetail("full_name", m.FullName))
	}

	n, err := s.deps.Store.Delete(ctx, repo.TeamMembers, repo.Eq("id", id))
	if err != nil {
		return nil, s.deps.storeError(repo.TeamMembers, id, err)
	}
	if n == 0 {
		return nil, NewNotFound(repo.TeamMembers, id)
	}
	s.deps.invalidate(KeyTeam)
	logger.Info("Service: Участник удалён окончательно", zap.String("member_id", id))
	return &RemovalResult{Mode: RemovalDeleted, MemberID: id}, nil
}
