package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mkratky/rollcall/internal/store"
)

// GroupRepository provides PostgreSQL-backed group storage.
type GroupRepository struct {
	pool *Pool
}

// NewGroupRepository creates a new PostgreSQL group repository.
func NewGroupRepository(pool *Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

func (r *GroupRepository) Create(ctx context.Context, group *store.Group) error {
	query := `
		INSERT INTO groups (id, name, owner, department, schedule)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, group.ID, group.Name, group.Owner, group.Department, group.Schedule)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (r *GroupRepository) Get(ctx context.Context, id uuid.UUID) (*store.Group, error) {
	var group store.Group
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, owner, department, schedule, created_at FROM groups WHERE id = $1", id,
	).Scan(&group.ID, &group.Name, &group.Owner, &group.Department, &group.Schedule, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query group: %w", err)
	}
	return &group, nil
}

func (r *GroupRepository) List(ctx context.Context) ([]store.Group, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, name, owner, department, schedule, created_at FROM groups ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var out []store.Group
	for rows.Next() {
		var group store.Group
		if err := rows.Scan(&group.ID, &group.Name, &group.Owner, &group.Department, &group.Schedule, &group.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return out, nil
}
