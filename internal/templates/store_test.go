package templates

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/mkratky/rollcall/internal/detector"
	"github.com/mkratky/rollcall/internal/store"
	"github.com/mkratky/rollcall/internal/store/memory"
)

func detection(embedding []float32) detector.Detection {
	return detector.Detection{FaceIndex: 0, Dim: len(embedding), Embedding: embedding, DetScore: 0.99}
}

func TestEnrollAndGet(t *testing.T) {
	repo := memory.NewTemplateRepository()
	s := NewStore(repo)

	id := uuid.New()
	embedding := []float32{0.1, 0.2, 0.3, 0.4}

	result, err := s.Enroll(context.Background(), id, []detector.Detection{detection(embedding)}, "arcface-r100")
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if result.MultipleFaces {
		t.Error("single detection reported MultipleFaces")
	}
	if result.Template.Model != "arcface-r100" {
		t.Errorf("model = %s; want arcface-r100", result.Template.Model)
	}
	if result.Template.Dim != 4 {
		t.Errorf("dim = %d; want 4", result.Template.Dim)
	}

	// Cached
	cached, ok := s.Get(id)
	if !ok {
		t.Fatal("template missing from cache after enroll")
	}
	if len(cached) != 4 {
		t.Errorf("cached embedding has %d dims; want 4", len(cached))
	}

	// Persisted
	stored, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("repo Get failed: %v", err)
	}
	if stored == nil {
		t.Fatal("template missing from repository after enroll")
	}
}

func TestEnrollNoFace(t *testing.T) {
	s := NewStore(memory.NewTemplateRepository())
	id := uuid.New()

	_, err := s.Enroll(context.Background(), id, nil, "m")
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Errorf("Enroll with zero detections = %v; want ErrNoFaceDetected", err)
	}
	if _, ok := s.Get(id); ok {
		t.Error("failed enrollment left a template in the cache")
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d after failed enrollment; want 0", s.Count())
	}
}

func TestEnrollMultipleFacesUsesFirst(t *testing.T) {
	s := NewStore(memory.NewTemplateRepository())
	id := uuid.New()

	first := []float32{1, 0, 0}
	second := []float32{0, 1, 0}
	result, err := s.Enroll(context.Background(), id, []detector.Detection{detection(first), detection(second)}, "m")
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if !result.MultipleFaces {
		t.Error("two detections did not report MultipleFaces")
	}
	cached, _ := s.Get(id)
	if cached[0] != 1 || cached[1] != 0 {
		t.Errorf("cached embedding = %v; want first detection %v", cached, first)
	}
}

func TestEnrollReplacesPrior(t *testing.T) {
	s := NewStore(memory.NewTemplateRepository())
	id := uuid.New()

	if _, err := s.Enroll(context.Background(), id, []detector.Detection{detection([]float32{1, 0})}, "m"); err != nil {
		t.Fatalf("first Enroll failed: %v", err)
	}
	if _, err := s.Enroll(context.Background(), id, []detector.Detection{detection([]float32{0, 1})}, "m"); err != nil {
		t.Fatalf("second Enroll failed: %v", err)
	}

	if s.Count() != 1 {
		t.Errorf("Count = %d after re-enrollment; want 1", s.Count())
	}
	cached, _ := s.Get(id)
	if cached[0] != 0 || cached[1] != 1 {
		t.Errorf("cached embedding = %v; want replacement", cached)
	}
}

func TestEnrollPersistFailureLeavesCacheUnchanged(t *testing.T) {
	repo := memory.NewTemplateRepository()
	repo.SaveError = errors.New("disk full")
	s := NewStore(repo)
	id := uuid.New()

	if _, err := s.Enroll(context.Background(), id, []detector.Detection{detection([]float32{1, 0})}, "m"); err == nil {
		t.Fatal("expected error from failing repository")
	}
	if _, ok := s.Get(id); ok {
		t.Error("cache updated despite persistence failure")
	}
}

func TestRevoke(t *testing.T) {
	repo := memory.NewTemplateRepository()
	s := NewStore(repo)
	id := uuid.New()

	if _, err := s.Enroll(context.Background(), id, []detector.Detection{detection([]float32{1, 0})}, "m"); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if err := s.Revoke(context.Background(), id); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, ok := s.Get(id); ok {
		t.Error("template still cached after revoke")
	}
	if stored, _ := repo.Get(context.Background(), id); stored != nil {
		t.Error("template still persisted after revoke")
	}
}

func TestRevokeMissing(t *testing.T) {
	s := NewStore(memory.NewTemplateRepository())
	if err := s.Revoke(context.Background(), uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Revoke of missing template = %v; want ErrNotFound", err)
	}
}

func TestWarmUp(t *testing.T) {
	repo := memory.NewTemplateRepository()
	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		tpl := &store.StoredTemplate{
			IdentityID: ids[i],
			Embedding:  []float32{float32(i), 1, 0},
			Model:      "m",
			Dim:        3,
		}
		if err := repo.Save(context.Background(), tpl); err != nil {
			t.Fatalf("seeding repository: %v", err)
		}
	}

	s := NewStore(repo)
	if err := s.WarmUp(context.Background()); err != nil {
		t.Fatalf("WarmUp failed: %v", err)
	}
	if s.Count() != 5 {
		t.Errorf("Count = %d after warmup; want 5", s.Count())
	}
	for _, id := range ids {
		if _, ok := s.Get(id); !ok {
			t.Errorf("template %s missing after warmup", id)
		}
	}
}

func TestSearch(t *testing.T) {
	s := NewStore(memory.NewTemplateRepository())

	near := uuid.New()
	far := uuid.New()
	if _, err := s.Enroll(context.Background(), near, []detector.Detection{detection([]float32{1, 0, 0, 0})}, "m"); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if _, err := s.Enroll(context.Background(), far, []detector.Detection{detection([]float32{0, 0, 0, 1})}, "m"); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	got := s.Search([]float32{0.99, 0.01, 0, 0}, 1)
	if len(got) != 1 {
		t.Fatalf("Search returned %d neighbors; want 1", len(got))
	}
	if got[0].IdentityID != near {
		t.Errorf("nearest neighbor = %s; want %s", got[0].IdentityID, near)
	}
}

func TestSearchExcludesRevoked(t *testing.T) {
	s := NewStore(memory.NewTemplateRepository())

	revoked := uuid.New()
	kept := uuid.New()
	if _, err := s.Enroll(context.Background(), revoked, []detector.Detection{detection([]float32{1, 0, 0, 0})}, "m"); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if _, err := s.Enroll(context.Background(), kept, []detector.Detection{detection([]float32{0.9, 0.1, 0, 0})}, "m"); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if err := s.Revoke(context.Background(), revoked); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	// The revoked node is a tombstone in the index; search must skip it.
	got := s.Search([]float32{1, 0, 0, 0}, 2)
	for _, n := range got {
		if n.IdentityID == revoked {
			t.Error("search returned a revoked template")
		}
	}
	if len(got) != 1 || got[0].IdentityID != kept {
		t.Errorf("Search = %v; want only %s", got, kept)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	s := NewStore(memory.NewTemplateRepository())
	if got := s.Search([]float32{1, 0}, 3); got != nil {
		t.Errorf("Search on empty store = %v; want nil", got)
	}
}
