// Package templates implements the biometric template store: durable
// per-identity templates behind a write-through in-memory cache.
package templates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkratky/rollcall/internal/detector"
	"github.com/mkratky/rollcall/internal/store"
)

// ErrNoFaceDetected is returned when enrollment input contains no
// detected face region.
var ErrNoFaceDetected = errors.New("no face detected")

// EnrollResult describes a successful enrollment.
type EnrollResult struct {
	Template *store.StoredTemplate
	// MultipleFaces is set when the detector reported more than one face
	// and the first region was used. Non-fatal; callers surface it as a
	// warning.
	MultipleFaces bool
}

// Store owns the template cache. All mutation persists to the repository
// first and updates the cache after (write-through), so a crash between
// the two can only leave the cache stale, never lose data.
type Store struct {
	repo  store.TemplateRepository
	cache *cache
}

// NewStore creates a template store. Call WarmUp before serving reads.
func NewStore(repo store.TemplateRepository) *Store {
	return &Store{repo: repo, cache: newCache()}
}

// WarmUp loads every stored template into the cache and builds the
// full-population search index.
func (s *Store) WarmUp(ctx context.Context) error {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}
	byID := make(map[uuid.UUID][]float32, len(all))
	for i := range all {
		byID[all[i].IdentityID] = all[i].Embedding
	}
	s.cache.replaceAll(byID)
	return nil
}

// Enroll stores the template extracted from detector output, replacing
// any prior template for the identity. Zero detections fail with
// ErrNoFaceDetected; with more than one detection the first region is
// used and the result carries a warning flag.
func (s *Store) Enroll(ctx context.Context, identityID uuid.UUID, detections []detector.Detection, model string) (*EnrollResult, error) {
	if len(detections) == 0 {
		return nil, ErrNoFaceDetected
	}

	first := detections[0]
	if len(first.Embedding) == 0 {
		return nil, errors.New("detector returned an empty embedding")
	}

	tpl := &store.StoredTemplate{
		IdentityID: identityID,
		Embedding:  first.Embedding,
		Model:      model,
		Dim:        len(first.Embedding),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, tpl); err != nil {
		return nil, fmt.Errorf("persisting template: %w", err)
	}
	s.cache.put(identityID, first.Embedding)

	return &EnrollResult{
		Template:      tpl,
		MultipleFaces: len(detections) > 1,
	}, nil
}

// Get returns the cached template embedding for an identity.
func (s *Store) Get(identityID uuid.UUID) ([]float32, bool) {
	return s.cache.get(identityID)
}

// Revoke removes the identity's template from durable storage and the
// cache. Returns store.ErrNotFound when no template exists.
func (s *Store) Revoke(ctx context.Context, identityID uuid.UUID) error {
	if err := s.repo.Delete(ctx, identityID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting template: %w", err)
	}
	s.cache.remove(identityID)
	return nil
}

// Count returns the number of cached templates.
func (s *Store) Count() int {
	return s.cache.count()
}

// Search returns up to k nearest enrolled templates to the probe across
// the full population, using the in-memory HNSW index.
func (s *Store) Search(probe []float32, k int) []Neighbor {
	return s.cache.search(probe, k)
}
