package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mkratky/rollcall/internal/attendance"
	"github.com/mkratky/rollcall/internal/config"
	"github.com/mkratky/rollcall/internal/detector"
	"github.com/mkratky/rollcall/internal/logger"
	"github.com/mkratky/rollcall/internal/matching"
	"github.com/mkratky/rollcall/internal/metrics"
	"github.com/mkratky/rollcall/internal/session"
	"github.com/mkratky/rollcall/internal/store"
	"github.com/mkratky/rollcall/internal/store/postgres"
	"github.com/mkratky/rollcall/internal/templates"
)

// app bundles the wired core for CLI commands. Close releases the
// database pool.
type app struct {
	cfg        *config.Config
	pool       *postgres.Pool
	identities store.IdentityRepository
	groups     store.GroupRepository
	attendance store.AttendanceRepository
	templates  *templates.Store
	matcher    *matching.Engine
	ledger     *attendance.Ledger
	detector   detector.Client
	controller *session.Controller
	log        *slog.Logger
}

// newApp connects to PostgreSQL, runs migrations, warms the template
// cache, and wires the recognition pipeline. CLI commands run without
// metrics; the serve command builds its own collector.
func newApp(ctx context.Context, rec metrics.Recorder) (*app, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	log := logger.Setup(os.Stderr)

	pool, err := postgres.Connect(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	identities := postgres.NewIdentityRepository(pool)
	groups := postgres.NewGroupRepository(pool)
	templateRepo := postgres.NewTemplateRepository(pool)
	attendanceRepo := postgres.NewAttendanceRepository(pool)

	tpls := templates.NewStore(templateRepo)
	if err := tpls.WarmUp(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("warming template cache: %w", err)
	}

	matcher := matching.NewEngine(tpls, cfg.Matching.Tolerance)
	policy := attendance.NewPolicy(
		cfg.Attendance.DefaultCutoff,
		time.Duration(cfg.Attendance.GraceMinutes)*time.Minute,
	)
	ledger := attendance.NewLedger(attendanceRepo, identities, policy)
	det := detector.NewHTTPClient(cfg.Detector.URL)

	controller := session.NewController(det, matcher, tpls, ledger, identities, groups, rec, log)

	return &app{
		cfg:        cfg,
		pool:       pool,
		identities: identities,
		groups:     groups,
		attendance: attendanceRepo,
		templates:  tpls,
		matcher:    matcher,
		ledger:     ledger,
		detector:   det,
		controller: controller,
		log:        log,
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}

// resolveIdentity accepts either an identity UUID or its code.
func (a *app) resolveIdentity(ctx context.Context, ref string) (*store.Identity, error) {
	if id, err := uuid.Parse(ref); err == nil {
		identity, err := a.identities.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if identity == nil {
			return nil, fmt.Errorf("identity %s not found", ref)
		}
		return identity, nil
	}
	identity, err := a.identities.GetByCode(ctx, ref)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, fmt.Errorf("identity %q not found", ref)
	}
	return identity, nil
}

// resolveGroup accepts either a group UUID or its exact name.
func (a *app) resolveGroup(ctx context.Context, ref string) (*store.Group, error) {
	if id, err := uuid.Parse(ref); err == nil {
		group, err := a.groups.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if group == nil {
			return nil, fmt.Errorf("group %s not found", ref)
		}
		return group, nil
	}
	all, err := a.groups.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == ref {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("group %q not found", ref)
}

// parseDateFlag parses a --date flag value, defaulting to today (UTC).
func parseDateFlag(value string) (time.Time, error) {
	if value == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", value)
}
