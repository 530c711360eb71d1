package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IdentityRepository provides access to enrolled identities.
type IdentityRepository interface {
	// Create stores a new identity. The caller assigns the ID.
	Create(ctx context.Context, identity *Identity) error
	// Get retrieves an identity by ID, returns nil if not found.
	Get(ctx context.Context, id uuid.UUID) (*Identity, error)
	// GetByCode retrieves an identity by its unique code, returns nil if not found.
	GetByCode(ctx context.Context, code string) (*Identity, error)
	// FindByName retrieves identities whose normalized display name matches.
	// Names are normalized before comparison (lowercase, no diacritics,
	// dashes to spaces).
	FindByName(ctx context.Context, name string) ([]Identity, error)
	// List returns all identities.
	List(ctx context.Context) ([]Identity, error)
	// ListByGroup returns all identities belonging to a group.
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]Identity, error)
	// AssignGroup sets (or clears, with nil) an identity's group membership.
	AssignGroup(ctx context.Context, identityID uuid.UUID, groupID *uuid.UUID) error
	// Delete removes an identity; templates and attendance records cascade.
	Delete(ctx context.Context, id uuid.UUID) error
}

// GroupRepository provides access to groups.
type GroupRepository interface {
	Create(ctx context.Context, group *Group) error
	// Get retrieves a group by ID, returns nil if not found.
	Get(ctx context.Context, id uuid.UUID) (*Group, error)
	List(ctx context.Context) ([]Group, error)
}

// TemplateRepository provides durable storage for biometric templates,
// one active template per identity.
type TemplateRepository interface {
	// Save stores the template, replacing any prior template for the identity.
	Save(ctx context.Context, tpl *StoredTemplate) error
	// Get retrieves the template for an identity, returns nil if not found.
	Get(ctx context.Context, identityID uuid.UUID) (*StoredTemplate, error)
	// GetAll returns every stored template. Used to warm the in-memory cache.
	GetAll(ctx context.Context) ([]StoredTemplate, error)
	// Delete removes the identity's template. Returns ErrNotFound when
	// no template exists.
	Delete(ctx context.Context, identityID uuid.UUID) error
}

// AttendanceRepository provides durable storage for daily attendance
// records with a uniqueness constraint on (identity, group, date).
type AttendanceRepository interface {
	// InsertIfAbsent creates the record unless one already exists for the
	// triple. Returns true when a row was created, false when the
	// constraint matched an existing row. Concurrent inserts for the same
	// triple are serialized by the constraint; exactly one wins.
	InsertIfAbsent(ctx context.Context, rec *AttendanceRecord) (bool, error)
	// Upsert creates the record or overwrites status, time-in, time-out
	// and source of the existing one. Used by manual corrections only.
	Upsert(ctx context.Context, rec *AttendanceRecord) error
	// Get retrieves the record for a triple, returns nil if not found.
	Get(ctx context.Context, identityID, groupID uuid.UUID, date time.Time) (*AttendanceRecord, error)
	// ListByGroupDate returns all records of a group for a date.
	ListByGroupDate(ctx context.Context, groupID uuid.UUID, date time.Time) ([]AttendanceRecord, error)
	// ListByIdentitySince returns an identity's records on or after the
	// given date, newest first.
	ListByIdentitySince(ctx context.Context, identityID uuid.UUID, since time.Time) ([]AttendanceRecord, error)
}
