package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mkratky/rollcall/internal/store"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage.
// The UNIQUE (identity_id, group_id, day) index is the serialization
// point for concurrent automatic marking: the second writer's insert
// simply does not land.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = "id, identity_id, group_id, day, status, time_in, time_out, source, created_at"

func (r *AttendanceRepository) InsertIfAbsent(ctx context.Context, rec *store.AttendanceRecord) (bool, error) {
	query := `
		INSERT INTO attendance (id, identity_id, group_id, day, status, time_in, time_out, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (identity_id, group_id, day) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		rec.ID, rec.IdentityID, rec.GroupID, store.DateOf(rec.Date),
		rec.Status, rec.TimeIn, rec.TimeOut, rec.Source)
	if err != nil {
		// A serialization error can still surface the constraint directly;
		// treat it the same as a lost insert race.
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *AttendanceRepository) Upsert(ctx context.Context, rec *store.AttendanceRecord) error {
	query := `
		INSERT INTO attendance (id, identity_id, group_id, day, status, time_in, time_out, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (identity_id, group_id, day) DO UPDATE SET
			status = EXCLUDED.status,
			time_in = EXCLUDED.time_in,
			time_out = EXCLUDED.time_out,
			source = EXCLUDED.source
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.IdentityID, rec.GroupID, store.DateOf(rec.Date),
		rec.Status, rec.TimeIn, rec.TimeOut, rec.Source)
	if err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

func (r *AttendanceRepository) Get(ctx context.Context, identityID, groupID uuid.UUID, date time.Time) (*store.AttendanceRecord, error) {
	query := "SELECT " + attendanceColumns + ` FROM attendance
		WHERE identity_id = $1 AND group_id = $2 AND day = $3`
	row := r.pool.QueryRow(ctx, query, identityID, groupID, store.DateOf(date))

	var rec store.AttendanceRecord
	err := row.Scan(
		&rec.ID, &rec.IdentityID, &rec.GroupID, &rec.Date,
		&rec.Status, &rec.TimeIn, &rec.TimeOut, &rec.Source, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	return &rec, nil
}

func (r *AttendanceRepository) ListByGroupDate(ctx context.Context, groupID uuid.UUID, date time.Time) ([]store.AttendanceRecord, error) {
	query := "SELECT " + attendanceColumns + ` FROM attendance
		WHERE group_id = $1 AND day = $2
		ORDER BY identity_id`
	rows, err := r.pool.Query(ctx, query, groupID, store.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("query attendance by group: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *AttendanceRepository) ListByIdentitySince(ctx context.Context, identityID uuid.UUID, since time.Time) ([]store.AttendanceRecord, error) {
	query := "SELECT " + attendanceColumns + ` FROM attendance
		WHERE identity_id = $1 AND day >= $2
		ORDER BY day DESC`
	rows, err := r.pool.Query(ctx, query, identityID, store.DateOf(since))
	if err != nil {
		return nil, fmt.Errorf("query attendance by identity: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]store.AttendanceRecord, error) {
	var out []store.AttendanceRecord
	for rows.Next() {
		var rec store.AttendanceRecord
		if err := rows.Scan(
			&rec.ID, &rec.IdentityID, &rec.GroupID, &rec.Date,
			&rec.Status, &rec.TimeIn, &rec.TimeOut, &rec.Source, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return out, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
