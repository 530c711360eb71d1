package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/mkratky/rollcall/internal/store"
)

// TemplateRepository provides PostgreSQL-backed template storage with
// pgvector embeddings. One row per identity; Save replaces.
type TemplateRepository struct {
	pool *Pool
}

// NewTemplateRepository creates a new PostgreSQL template repository.
func NewTemplateRepository(pool *Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

func (r *TemplateRepository) Save(ctx context.Context, tpl *store.StoredTemplate) error {
	query := `
		INSERT INTO templates (identity_id, embedding, model, dim, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (identity_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			created_at = EXCLUDED.created_at
	`
	vec := pgvector.NewVector(tpl.Embedding)
	_, err := r.pool.Exec(ctx, query, tpl.IdentityID, vec, tpl.Model, tpl.Dim)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) Get(ctx context.Context, identityID uuid.UUID) (*store.StoredTemplate, error) {
	query := `
		SELECT identity_id, embedding, model, dim, created_at
		FROM templates
		WHERE identity_id = $1
	`
	var tpl store.StoredTemplate
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, query, identityID).Scan(
		&tpl.IdentityID,
		&vec,
		&tpl.Model,
		&tpl.Dim,
		&tpl.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	tpl.Embedding = vec.Slice()
	return &tpl, nil
}

func (r *TemplateRepository) GetAll(ctx context.Context) ([]store.StoredTemplate, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT identity_id, embedding, model, dim, created_at FROM templates")
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []store.StoredTemplate
	for rows.Next() {
		var tpl store.StoredTemplate
		var vec pgvector.Vector
		if err := rows.Scan(&tpl.IdentityID, &vec, &tpl.Model, &tpl.Dim, &tpl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		tpl.Embedding = vec.Slice()
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, identityID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM templates WHERE identity_id = $1", identityID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
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
