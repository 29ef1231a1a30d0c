// Package store defines the persistence interfaces of the budget services.
//
// Implementations live in internal/repository (PostgreSQL) and
// internal/store/memory. Get methods return models.ErrNotFound for missing
// records. Delete methods are idempotent. Update methods load the record, run
// fn on a private copy and persist the result atomically with respect to other
// updates of the same record; an error from fn aborts the update and is
// returned unchanged, and ErrSkip aborts it without error.
package store

import (
	"context"
	"errors"

	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

// ErrSkip tells an Update method that fn made no change worth writing.
var ErrSkip = errors.New("skip update")

// UserStore persists users and their personal budgets.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsersByPhones(ctx context.Context, phones []string) ([]models.User, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	UpdateUser(ctx context.Context, id string, fn func(*models.User) error) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// GroupStore persists groups and their member lists.
type GroupStore interface {
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	GetGroups(ctx context.Context, ids []string) ([]models.Group, error)
	ListGroupsByMember(ctx context.Context, uid string) ([]models.Group, error)
	UpdateGroup(ctx context.Context, id string, fn func(*models.Group) error) (*models.Group, error)
	DeleteGroup(ctx context.Context, id string) error
}

// SharedBudgetStore persists shared budget snapshots. CreateSharedBudget
// returns models.ErrAlreadyShared when the (user, group) pair exists.
type SharedBudgetStore interface {
	CreateSharedBudget(ctx context.Context, sb *models.SharedBudget) error
	GetSharedBudget(ctx context.Context, id string) (*models.SharedBudget, error)
	ListSharedBudgetsByGroup(ctx context.Context, groupID string) ([]models.SharedBudget, error)
	ListSharedBudgetsByUser(ctx context.Context, uid string) ([]models.SharedBudget, error)
	UpdateSharedBudget(ctx context.Context, id string, fn func(*models.SharedBudget) error) (*models.SharedBudget, error)
	DeleteSharedBudget(ctx context.Context, id string) error
}

// GroupBudgetStore persists group budgets.
type GroupBudgetStore interface {
	CreateGroupBudget(ctx context.Context, gb *models.GroupBudget) error
	GetGroupBudget(ctx context.Context, id string) (*models.GroupBudget, error)
	ListGroupBudgetsByGroup(ctx context.Context, groupID string) ([]models.GroupBudget, error)
	UpdateGroupBudget(ctx context.Context, id string, fn func(*models.GroupBudget) error) (*models.GroupBudget, error)
	DeleteGroupBudget(ctx context.Context, id string) error
}

// MessageStore persists group chat logs. ListMessages orders by ascending
// timestamp.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, groupID string) ([]models.Message, error)
	MarkRead(ctx context.Context, groupID, uid string) (int, error)
	DeleteMessages(ctx context.Context, groupID string) (int, error)
}

// Store bundles every store of one backend.
type Store interface {
	UserStore
	GroupStore
	SharedBudgetStore
	GroupBudgetStore
	MessageStore
	Ping(ctx context.Context) error
}
