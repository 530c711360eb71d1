//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mkratky/rollcall/internal/config"
	"github.com/mkratky/rollcall/internal/store"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Connect(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to connect: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func seedGroup(t *testing.T, groups *GroupRepository, name string) *store.Group {
	t.Helper()
	group := &store.Group{ID: uuid.New(), Name: name, Owner: "prof", Schedule: "MWF 8:00-9:00"}
	if err := groups.Create(context.Background(), group); err != nil {
		t.Fatalf("creating group: %v", err)
	}
	return group
}

func seedIdentity(t *testing.T, identities *IdentityRepository, code string, groupID *uuid.UUID) *store.Identity {
	t.Helper()
	identity := &store.Identity{ID: uuid.New(), Code: code, Name: "Person " + code, GroupID: groupID}
	if err := identities.Create(context.Background(), identity); err != nil {
		t.Fatalf("creating identity: %v", err)
	}
	return identity
}

func TestIdentityRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	identities := NewIdentityRepository(pool)
	groups := NewGroupRepository(pool)
	group := seedGroup(t, groups, "CS101")

	t.Run("CreateAndGet", func(t *testing.T) {
		created := &store.Identity{
			ID:         uuid.New(),
			Code:       "s100",
			Name:       "Jana Černá",
			Email:      "jana@example.com",
			Department: "CS",
			GroupID:    &group.ID,
		}
		if err := identities.Create(ctx, created); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		got, err := identities.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got == nil {
			t.Fatal("Get returned nil")
		}
		if got.Code != "s100" || got.Name != "Jana Černá" {
			t.Errorf("got %+v; want code s100, name Jana Černá", got)
		}
		if got.GroupID == nil || *got.GroupID != group.ID {
			t.Errorf("group = %v; want %s", got.GroupID, group.ID)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := identities.Get(ctx, uuid.New())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Errorf("Get of missing identity = %+v; want nil", got)
		}
	})

	t.Run("GetByCode", func(t *testing.T) {
		got, err := identities.GetByCode(ctx, "s100")
		if err != nil {
			t.Fatalf("GetByCode failed: %v", err)
		}
		if got == nil || got.Code != "s100" {
			t.Errorf("GetByCode = %+v; want s100", got)
		}
	})

	t.Run("FindByNameIgnoresDiacritics", func(t *testing.T) {
		found, err := identities.FindByName(ctx, "jana cerna")
		if err != nil {
			t.Fatalf("FindByName failed: %v", err)
		}
		if len(found) != 1 {
			t.Errorf("found %d identities; want 1", len(found))
		}
	})

	t.Run("AssignAndClearGroup", func(t *testing.T) {
		loner := seedIdentity(t, identities, "s101", nil)

		if err := identities.AssignGroup(ctx, loner.ID, &group.ID); err != nil {
			t.Fatalf("AssignGroup failed: %v", err)
		}
		got, _ := identities.Get(ctx, loner.ID)
		if got.GroupID == nil || *got.GroupID != group.ID {
			t.Error("group not assigned")
		}

		if err := identities.AssignGroup(ctx, loner.ID, nil); err != nil {
			t.Fatalf("clearing group failed: %v", err)
		}
		got, _ = identities.Get(ctx, loner.ID)
		if got.GroupID != nil {
			t.Error("group not cleared")
		}
	})

	t.Run("ListByGroup", func(t *testing.T) {
		members, err := identities.ListByGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListByGroup failed: %v", err)
		}
		if len(members) != 1 {
			t.Errorf("got %d members; want 1", len(members))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		victim := seedIdentity(t, identities, "s102", nil)
		if err := identities.Delete(ctx, victim.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		got, _ := identities.Get(ctx, victim.ID)
		if got != nil {
			t.Error("identity still present after delete")
		}
	})
}

func TestTemplateRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	identities := NewIdentityRepository(pool)
	tpls := NewTemplateRepository(pool)
	identity := seedIdentity(t, identities, "s1", nil)

	embedding := make([]float32, 128)
	for i := range embedding {
		embedding[i] = float32(i) / 128.0
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		tpl := &store.StoredTemplate{
			IdentityID: identity.ID,
			Embedding:  embedding,
			Model:      "arcface-r100",
			Dim:        128,
			CreatedAt:  time.Now().UTC(),
		}
		if err := tpls.Save(ctx, tpl); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := tpls.Get(ctx, identity.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got == nil {
			t.Fatal("Get returned nil")
		}
		if len(got.Embedding) != 128 {
			t.Errorf("embedding has %d dims; want 128", len(got.Embedding))
		}
		if got.Model != "arcface-r100" {
			t.Errorf("model = %s; want arcface-r100", got.Model)
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		replacement := make([]float32, 128)
		replacement[0] = 42
		tpl := &store.StoredTemplate{
			IdentityID: identity.ID,
			Embedding:  replacement,
			Model:      "arcface-r200",
			Dim:        128,
			CreatedAt:  time.Now().UTC(),
		}
		if err := tpls.Save(ctx, tpl); err != nil {
			t.Fatalf("replacing Save failed: %v", err)
		}

		got, _ := tpls.Get(ctx, identity.ID)
		if got.Model != "arcface-r200" {
			t.Errorf("model = %s; want replacement arcface-r200", got.Model)
		}
		if got.Embedding[0] != 42 {
			t.Error("embedding not replaced")
		}

		all, err := tpls.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll failed: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("GetAll returned %d templates; want 1 after replacement", len(all))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := tpls.Delete(ctx, identity.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := tpls.Delete(ctx, identity.ID); err != store.ErrNotFound {
			t.Errorf("second Delete = %v; want ErrNotFound", err)
		}
	})

	t.Run("DeleteCascadesFromIdentity", func(t *testing.T) {
		victim := seedIdentity(t, identities, "s2", nil)
		tpl := &store.StoredTemplate{IdentityID: victim.ID, Embedding: embedding, Model: "m", Dim: 128, CreatedAt: time.Now().UTC()}
		if err := tpls.Save(ctx, tpl); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := identities.Delete(ctx, victim.ID); err != nil {
			t.Fatalf("identity Delete failed: %v", err)
		}
		got, err := tpls.Get(ctx, victim.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Error("template survived identity deletion")
		}
	})
}

func TestAttendanceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	identities := NewIdentityRepository(pool)
	groups := NewGroupRepository(pool)
	records := NewAttendanceRepository(pool)

	group := seedGroup(t, groups, "CS101")
	identity := seedIdentity(t, identities, "s1", &group.ID)
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	newRecord := func(status store.Status, source store.Source) *store.AttendanceRecord {
		timeIn := day.Add(8 * time.Hour)
		return &store.AttendanceRecord{
			ID:         uuid.New(),
			IdentityID: identity.ID,
			GroupID:    group.ID,
			Date:       day,
			Status:     status,
			TimeIn:     &timeIn,
			Source:     source,
		}
	}

	t.Run("InsertIfAbsent", func(t *testing.T) {
		created, err := records.InsertIfAbsent(ctx, newRecord(store.StatusPresent, store.SourceAutomatic))
		if err != nil {
			t.Fatalf("first insert failed: %v", err)
		}
		if !created {
			t.Error("first insert reported existing record")
		}

		created, err = records.InsertIfAbsent(ctx, newRecord(store.StatusLate, store.SourceAutomatic))
		if err != nil {
			t.Fatalf("second insert failed: %v", err)
		}
		if created {
			t.Error("second insert for the same triple created a record")
		}

		got, err := records.Get(ctx, identity.ID, group.ID, day)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status != store.StatusPresent {
			t.Errorf("status = %s; want the original present", got.Status)
		}
	})

	t.Run("ConcurrentInsertIfAbsent", func(t *testing.T) {
		day2 := day.AddDate(0, 0, 1)
		const n = 8
		var wg sync.WaitGroup
		results := make([]bool, n)
		errs := make([]error, n)

		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				timeIn := day2.Add(8 * time.Hour)
				rec := &store.AttendanceRecord{
					ID:         uuid.New(),
					IdentityID: identity.ID,
					GroupID:    group.ID,
					Date:       day2,
					Status:     store.StatusPresent,
					TimeIn:     &timeIn,
					Source:     store.SourceAutomatic,
				}
				results[i], errs[i] = records.InsertIfAbsent(ctx, rec)
			}(i)
		}
		wg.Wait()

		created := 0
		for i := 0; i < n; i++ {
			if errs[i] != nil {
				t.Fatalf("insert %d failed: %v", i, errs[i])
			}
			if results[i] {
				created++
			}
		}
		if created != 1 {
			t.Errorf("%d concurrent inserts created %d records; want 1", n, created)
		}
	})

	t.Run("UpsertOverwrites", func(t *testing.T) {
		rec := newRecord(store.StatusAbsent, store.SourceManual)
		rec.TimeIn = nil
		if err := records.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		got, _ := records.Get(ctx, identity.ID, group.ID, day)
		if got.Status != store.StatusAbsent {
			t.Errorf("status = %s; want absent after manual upsert", got.Status)
		}
		if got.Source != store.SourceManual {
			t.Errorf("source = %s; want manual", got.Source)
		}
		if got.TimeIn != nil {
			t.Error("time-in not cleared by upsert")
		}
	})

	t.Run("ListByGroupDate", func(t *testing.T) {
		recs, err := records.ListByGroupDate(ctx, group.ID, day)
		if err != nil {
			t.Fatalf("ListByGroupDate failed: %v", err)
		}
		if len(recs) != 1 {
			t.Errorf("got %d records; want 1", len(recs))
		}
	})

	t.Run("ListByIdentitySince", func(t *testing.T) {
		recs, err := records.ListByIdentitySince(ctx, identity.ID, day)
		if err != nil {
			t.Fatalf("ListByIdentitySince failed: %v", err)
		}
		// day and day+1 records
		if len(recs) != 2 {
			t.Fatalf("got %d records; want 2", len(recs))
		}
		if recs[0].Date.Before(recs[1].Date) {
			t.Error("records not ordered newest first")
		}
	})
}
