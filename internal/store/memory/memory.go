// Package memory provides in-memory implementations of the store
// repositories for unit tests and single-process use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mkratky/rollcall/internal/store"
)

// IdentityRepository is an in-memory implementation of store.IdentityRepository.
type IdentityRepository struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]*store.Identity

	// Error injection
	CreateError error
	GetError    error
	ListError   error
}

// NewIdentityRepository creates an empty in-memory identity repository.
func NewIdentityRepository() *IdentityRepository {
	return &IdentityRepository{identities: make(map[uuid.UUID]*store.Identity)}
}

func (r *IdentityRepository) Create(ctx context.Context, identity *store.Identity) error {
	if r.CreateError != nil {
		return r.CreateError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *identity
	r.identities[identity.ID] = &clone
	return nil
}

func (r *IdentityRepository) Get(ctx context.Context, id uuid.UUID) (*store.Identity, error) {
	if r.GetError != nil {
		return nil, r.GetError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.identities[id]
	if !ok {
		return nil, nil
	}
	clone := *identity
	return &clone, nil
}

func (r *IdentityRepository) GetByCode(ctx context.Context, code string) (*store.Identity, error) {
	if r.GetError != nil {
		return nil, r.GetError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, identity := range r.identities {
		if identity.Code == code {
			clone := *identity
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *IdentityRepository) FindByName(ctx context.Context, name string) ([]store.Identity, error) {
	if r.ListError != nil {
		return nil, r.ListError
	}
	normalized := store.NormalizeName(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Identity
	for _, identity := range r.identities {
		if store.NormalizeName(identity.Name) == normalized {
			out = append(out, *identity)
		}
	}
	sortIdentities(out)
	return out, nil
}

func (r *IdentityRepository) List(ctx context.Context) ([]store.Identity, error) {
	if r.ListError != nil {
		return nil, r.ListError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.Identity, 0, len(r.identities))
	for _, identity := range r.identities {
		out = append(out, *identity)
	}
	sortIdentities(out)
	return out, nil
}

func (r *IdentityRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]store.Identity, error) {
	if r.ListError != nil {
		return nil, r.ListError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Identity
	for _, identity := range r.identities {
		if identity.GroupID != nil && *identity.GroupID == groupID {
			out = append(out, *identity)
		}
	}
	sortIdentities(out)
	return out, nil
}

func (r *IdentityRepository) AssignGroup(ctx context.Context, identityID uuid.UUID, groupID *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[identityID]
	if !ok {
		return store.ErrNotFound
	}
	if groupID == nil {
		identity.GroupID = nil
		return nil
	}
	g := *groupID
	identity.GroupID = &g
	return nil
}

func (r *IdentityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.identities[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.identities, id)
	return nil
}

func sortIdentities(ids []store.Identity) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Code < ids[j].Code })
}

// GroupRepository is an in-memory implementation of store.GroupRepository.
type GroupRepository struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]*store.Group

	CreateError error
	GetError    error
}

// NewGroupRepository creates an empty in-memory group repository.
func NewGroupRepository() *GroupRepository {
	return &GroupRepository{groups: make(map[uuid.UUID]*store.Group)}
}

func (r *GroupRepository) Create(ctx context.Context, group *store.Group) error {
	if r.CreateError != nil {
		return r.CreateError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *group
	r.groups[group.ID] = &clone
	return nil
}

func (r *GroupRepository) Get(ctx context.Context, id uuid.UUID) (*store.Group, error) {
	if r.GetError != nil {
		return nil, r.GetError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	group, ok := r.groups[id]
	if !ok {
		return nil, nil
	}
	clone := *group
	return &clone, nil
}

func (r *GroupRepository) List(ctx context.Context) ([]store.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.Group, 0, len(r.groups))
	for _, group := range r.groups {
		out = append(out, *group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// TemplateRepository is an in-memory implementation of store.TemplateRepository.
type TemplateRepository struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]*store.StoredTemplate

	SaveError   error
	GetError    error
	DeleteError error
}

// NewTemplateRepository creates an empty in-memory template repository.
func NewTemplateRepository() *TemplateRepository {
	return &TemplateRepository{templates: make(map[uuid.UUID]*store.StoredTemplate)}
}

func (r *TemplateRepository) Save(ctx context.Context, tpl *store.StoredTemplate) error {
	if r.SaveError != nil {
		return r.SaveError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *tpl
	clone.Embedding = append([]float32(nil), tpl.Embedding...)
	r.templates[tpl.IdentityID] = &clone
	return nil
}

func (r *TemplateRepository) Get(ctx context.Context, identityID uuid.UUID) (*store.StoredTemplate, error) {
	if r.GetError != nil {
		return nil, r.GetError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.templates[identityID]
	if !ok {
		return nil, nil
	}
	clone := *tpl
	clone.Embedding = append([]float32(nil), tpl.Embedding...)
	return &clone, nil
}

func (r *TemplateRepository) GetAll(ctx context.Context) ([]store.StoredTemplate, error) {
	if r.GetError != nil {
		return nil, r.GetError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.StoredTemplate, 0, len(r.templates))
	for _, tpl := range r.templates {
		clone := *tpl
		clone.Embedding = append([]float32(nil), tpl.Embedding...)
		out = append(out, clone)
	}
	return out, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, identityID uuid.UUID) error {
	if r.DeleteError != nil {
		return r.DeleteError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[identityID]; !ok {
		return store.ErrNotFound
	}
	delete(r.templates, identityID)
	return nil
}

// AttendanceRepository is an in-memory implementation of
// store.AttendanceRepository. The triple uniqueness constraint is enforced
// under the repository mutex, mirroring the database unique index.
type AttendanceRepository struct {
	mu      sync.Mutex
	records map[tripleKey]*store.AttendanceRecord

	InsertError error
	UpsertError error
	GetError    error
}

type tripleKey struct {
	identityID uuid.UUID
	groupID    uuid.UUID
	date       string
}

func keyOf(rec *store.AttendanceRecord) tripleKey {
	return tripleKey{
		identityID: rec.IdentityID,
		groupID:    rec.GroupID,
		date:       store.DateOf(rec.Date).Format("2006-01-02"),
	}
}

// NewAttendanceRepository creates an empty in-memory attendance repository.
func NewAttendanceRepository() *AttendanceRepository {
	return &AttendanceRepository{records: make(map[tripleKey]*store.AttendanceRecord)}
}

func (r *AttendanceRepository) InsertIfAbsent(ctx context.Context, rec *store.AttendanceRecord) (bool, error) {
	if r.InsertError != nil {
		return false, r.InsertError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := keyOf(rec)
	if _, ok := r.records[key]; ok {
		return false, nil
	}
	clone := *rec
	r.records[key] = &clone
	return true, nil
}

func (r *AttendanceRepository) Upsert(ctx context.Context, rec *store.AttendanceRecord) error {
	if r.UpsertError != nil {
		return r.UpsertError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := keyOf(rec)
	if existing, ok := r.records[key]; ok {
		existing.Status = rec.Status
		existing.TimeIn = rec.TimeIn
		existing.TimeOut = rec.TimeOut
		existing.Source = rec.Source
		return nil
	}
	clone := *rec
	r.records[key] = &clone
	return nil
}

func (r *AttendanceRepository) Get(ctx context.Context, identityID, groupID uuid.UUID, date time.Time) (*store.AttendanceRecord, error) {
	if r.GetError != nil {
		return nil, r.GetError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tripleKey{identityID: identityID, groupID: groupID, date: store.DateOf(date).Format("2006-01-02")}
	rec, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

func (r *AttendanceRepository) ListByGroupDate(ctx context.Context, groupID uuid.UUID, date time.Time) ([]store.AttendanceRecord, error) {
	if r.GetError != nil {
		return nil, r.GetError
	}
	day := store.DateOf(date).Format("2006-01-02")
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.AttendanceRecord
	for key, rec := range r.records {
		if key.groupID == groupID && key.date == day {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityID.String() < out[j].IdentityID.String() })
	return out, nil
}

func (r *AttendanceRepository) ListByIdentitySince(ctx context.Context, identityID uuid.UUID, since time.Time) ([]store.AttendanceRecord, error) {
	if r.GetError != nil {
		return nil, r.GetError
	}
	cutoff := store.DateOf(since)
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.AttendanceRecord
	for key, rec := range r.records {
		if key.identityID == identityID && !store.DateOf(rec.Date).Before(cutoff) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}
