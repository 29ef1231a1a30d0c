package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

// SharingService publishes snapshots of personal budgets to groups.
type SharingService struct {
	store store.Store
}

// NewSharingService creates a SharingService.
func NewSharingService(st store.Store) *SharingService {
	return &SharingService{store: st}
}

// Share copies the user's budget into a snapshot visible to the group. A user
// shares at most once per group.
func (s *SharingService) Share(ctx context.Context, uid, groupID string) (*models.SharedBudget, error) {
	if _, err := loadGroupAsMember(ctx, s.store, groupID, uid); err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	sb := &models.SharedBudget{
		ID:        uuid.NewString(),
		UserID:    uid,
		UserName:  user.Name,
		UserPhone: user.Phone,
		GroupID:   groupID,
		Budget:    user.Budget.Clone(),
	}
	if err := s.store.CreateSharedBudget(ctx, sb); err != nil {
		return nil, fmt.Errorf("failed to share budget: %w", err)
	}

	logger.Log.Info().
		Str(logFieldUser, logger.HashUserID(uid)).
		Str(logFieldGroup, groupID).
		Msg("Budget shared")
	return sb, nil
}

// Unshare deletes a snapshot. Only the user who shared it may do this.
func (s *SharingService) Unshare(ctx context.Context, uid, sharedBudgetID string) error {
	sb, err := s.store.GetSharedBudget(ctx, sharedBudgetID)
	if err != nil {
		return err
	}
	if sb.UserID != uid {
		return fmt.Errorf("%w: shared budget %s", models.ErrNotOwner, sharedBudgetID)
	}
	if err := s.store.DeleteSharedBudget(ctx, sharedBudgetID); err != nil {
		return fmt.Errorf("failed to unshare budget: %w", err)
	}
	return nil
}

// ListByGroup returns the snapshots shared with a group to one of its members.
func (s *SharingService) ListByGroup(ctx context.Context, actor, groupID string) ([]models.SharedBudget, error) {
	if _, err := loadGroupAsMember(ctx, s.store, groupID, actor); err != nil {
		return nil, err
	}
	return s.store.ListSharedBudgetsByGroup(ctx, groupID)
}

// Get returns one snapshot to a member of its group.
func (s *SharingService) Get(ctx context.Context, actor, sharedBudgetID string) (*models.SharedBudget, error) {
	sb, err := s.store.GetSharedBudget(ctx, sharedBudgetID)
	if err != nil {
		return nil, err
	}
	if sb.UserID != actor {
		if _, err := loadGroupAsMember(ctx, s.store, sb.GroupID, actor); err != nil {
			return nil, err
		}
	}
	return sb, nil
}
