package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mkratky/rollcall/internal/store"
)

// IdentityRepository provides PostgreSQL-backed identity storage.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

const identityColumns = "id, code, name, email, department, group_id, created_at"

func (r *IdentityRepository) Create(ctx context.Context, identity *store.Identity) error {
	query := `
		INSERT INTO identities (id, code, name, email, department, group_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		identity.ID, identity.Code, identity.Name, identity.Email, identity.Department, nullUUID(identity.GroupID))
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (r *IdentityRepository) Get(ctx context.Context, id uuid.UUID) (*store.Identity, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+identityColumns+" FROM identities WHERE id = $1", id)
	return scanIdentity(row)
}

func (r *IdentityRepository) GetByCode(ctx context.Context, code string) (*store.Identity, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+identityColumns+" FROM identities WHERE code = $1", code)
	return scanIdentity(row)
}

// FindByName matches against the normalized display name. The SQL
// normalization (LOWER + unaccent + dash replacement) mirrors
// store.NormalizeName so lookups behave the same on every backend.
func (r *IdentityRepository) FindByName(ctx context.Context, name string) ([]store.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE LOWER(REPLACE(unaccent(name), '-', ' ')) = $1
		ORDER BY code
	`
	rows, err := r.pool.Query(ctx, query, store.NormalizeName(name))
	if err != nil {
		return nil, fmt.Errorf("query identities by name: %w", err)
	}
	defer rows.Close()
	return scanIdentities(rows)
}

func (r *IdentityRepository) List(ctx context.Context) ([]store.Identity, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+identityColumns+" FROM identities ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()
	return scanIdentities(rows)
}

func (r *IdentityRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]store.Identity, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+identityColumns+" FROM identities WHERE group_id = $1 ORDER BY code", groupID)
	if err != nil {
		return nil, fmt.Errorf("query identities by group: %w", err)
	}
	defer rows.Close()
	return scanIdentities(rows)
}

func (r *IdentityRepository) AssignGroup(ctx context.Context, identityID uuid.UUID, groupID *uuid.UUID) error {
	result, err := r.pool.Exec(ctx, "UPDATE identities SET group_id = $1 WHERE id = $2", nullUUID(groupID), identityID)
	if err != nil {
		return fmt.Errorf("assign group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *IdentityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanIdentity(row *sql.Row) (*store.Identity, error) {
	var identity store.Identity
	var groupID uuid.NullUUID
	err := row.Scan(
		&identity.ID,
		&identity.Code,
		&identity.Name,
		&identity.Email,
		&identity.Department,
		&groupID,
		&identity.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	if groupID.Valid {
		identity.GroupID = &groupID.UUID
	}
	return &identity, nil
}

func scanIdentities(rows *sql.Rows) ([]store.Identity, error) {
	var out []store.Identity
	for rows.Next() {
		var identity store.Identity
		var groupID uuid.NullUUID
		if err := rows.Scan(
			&identity.ID,
			&identity.Code,
			&identity.Name,
			&identity.Email,
			&identity.Department,
			&groupID,
			&identity.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if groupID.Valid {
			identity.GroupID = &groupID.UUID
		}
		out = append(out, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// nullUUID adapts an optional UUID pointer for database parameters.
func nullUUID(p *uuid.UUID) uuid.NullUUID {
	if p == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *p, Valid: true}
}
