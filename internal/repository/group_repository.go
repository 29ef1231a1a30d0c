package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/sharedbudget/internal/database"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

const groupColumns = `id, name, owner_id, members, created_at`

// GroupRepository handles group database operations.
type GroupRepository struct {
	db database.DB
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(db database.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func scanGroup(row pgx.Row) (*models.Group, error) {
	var g models.Group
	if err := row.Scan(&g.ID, &g.Name, &g.Owner, &g.Members, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func membersOrEmpty(m []models.Member) []models.Member {
	if m == nil {
		return []models.Member{}
	}
	return m
}

func (r *GroupRepository) queryGroups(ctx context.Context, sql string, args ...any) ([]models.Group, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// CreateGroup inserts a new group.
func (r *GroupRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO groups (id, name, owner_id, members)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, group.ID, group.Name, group.Owner, membersOrEmpty(group.Members)).Scan(&group.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by id.
func (r *GroupRepository) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	g, err := scanGroup(r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "group", id)
	}
	return g, nil
}

// GetGroups returns the existing groups among ids, oldest first.
func (r *GroupRepository) GetGroups(ctx context.Context, ids []string) ([]models.Group, error) {
	return r.queryGroups(ctx, `
		SELECT `+groupColumns+` FROM groups
		WHERE id = ANY($1)
		ORDER BY created_at, id
	`, nonNilStrings(ids))
}

// ListGroupsByMember returns the groups whose member list contains uid.
func (r *GroupRepository) ListGroupsByMember(ctx context.Context, uid string) ([]models.Group, error) {
	probe, err := json.Marshal([]map[string]string{{"uid": uid}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode member probe: %w", err)
	}
	return r.queryGroups(ctx, `
		SELECT `+groupColumns+` FROM groups
		WHERE members @> $1::jsonb
		ORDER BY created_at, id
	`, string(probe))
}

// UpdateGroup locks the group row, applies fn and writes the result.
func (r *GroupRepository) UpdateGroup(ctx context.Context, id string, fn func(*models.Group) error) (*models.Group, error) {
	return updateRow(ctx, r.db,
		func(tx pgx.Tx) (*models.Group, error) {
			g, err := scanGroup(tx.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1 FOR UPDATE`, id))
			if err != nil {
				return nil, notFound(err, "group", id)
			}
			return g, nil
		},
		(*models.Group).Clone,
		fn,
		func(tx pgx.Tx, g *models.Group) error {
			g.ID = id
			_, err := tx.Exec(ctx, `
				UPDATE groups SET name = $2, owner_id = $3, members = $4 WHERE id = $1
			`, id, g.Name, g.Owner, membersOrEmpty(g.Members))
			if err != nil {
				return fmt.Errorf("failed to update group: %w", err)
			}
			return nil
		},
	)
}

// DeleteGroup removes the group. Deleting a missing group is not an error.
func (r *GroupRepository) DeleteGroup(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}
