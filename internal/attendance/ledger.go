// Package attendance implements the per (identity, group, date) daily
// attendance state machine. The single atomic region is the
// check-then-create of automatic marking, delegated to the store's
// uniqueness constraint.
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkratky/rollcall/internal/store"
)

// MarkOutcome is the result of an automatic mark attempt.
type MarkOutcome struct {
	Record *store.AttendanceRecord
	// Already is set when a record for the triple existed before the
	// call; Record then holds the existing record, untouched.
	Already bool
}

// Ledger coordinates attendance record writes.
type Ledger struct {
	records    store.AttendanceRepository
	identities store.IdentityRepository
	policy     *Policy
}

// NewLedger creates an attendance ledger.
func NewLedger(records store.AttendanceRepository, identities store.IdentityRepository, policy *Policy) *Ledger {
	return &Ledger{records: records, identities: identities, policy: policy}
}

// RecordAutomatic marks an identity for today's date in a group, at most
// once per day. A second call for the same triple on the same date is a
// no-op reporting Already, whether the earlier record came from matching,
// manual action, or finalization. Safe under concurrent invocation for
// the same triple: the constraint-protected insert lets exactly one
// writer through.
func (l *Ledger) RecordAutomatic(ctx context.Context, identity *store.Identity, group *store.Group, now time.Time) (*MarkOutcome, error) {
	timeIn := now
	rec := &store.AttendanceRecord{
		ID:         uuid.New(),
		IdentityID: identity.ID,
		GroupID:    group.ID,
		Date:       store.DateOf(now),
		Status:     l.policy.Classify(group, now),
		TimeIn:     &timeIn,
		Source:     store.SourceAutomatic,
	}

	created, err := l.records.InsertIfAbsent(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("recording automatic mark: %w", err)
	}
	if created {
		return &MarkOutcome{Record: rec}, nil
	}

	existing, err := l.records.Get(ctx, identity.ID, group.ID, now)
	if err != nil {
		return nil, fmt.Errorf("loading existing record: %w", err)
	}
	return &MarkOutcome{Record: existing, Already: true}, nil
}

// RecordManual creates or overwrites the record for the triple with the
// given status. Manual action is the only operation allowed to change an
// already-recorded status; it unconditionally supersedes prior automatic
// or manual values. Time-in is stamped with now when the status implies
// presence and cleared otherwise.
func (l *Ledger) RecordManual(ctx context.Context, identityID, groupID uuid.UUID, date time.Time, status store.Status, now time.Time) (*store.AttendanceRecord, error) {
	if _, err := store.ParseStatus(string(status)); err != nil {
		return nil, err
	}

	rec := &store.AttendanceRecord{
		ID:         uuid.New(),
		IdentityID: identityID,
		GroupID:    groupID,
		Date:       store.DateOf(date),
		Status:     status,
		Source:     store.SourceManual,
	}
	if status.ImpliesPresence() {
		timeIn := now
		rec.TimeIn = &timeIn
	}

	if err := l.records.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("recording manual mark: %w", err)
	}

	// The upsert may have kept the original row; return the stored state.
	stored, err := l.records.Get(ctx, identityID, groupID, date)
	if err != nil {
		return nil, fmt.Errorf("loading stored record: %w", err)
	}
	if stored == nil {
		return rec, nil
	}
	return stored, nil
}

// FinalizeSession creates an absent record for every identity of the
// group lacking one on the date, and returns how many were created.
// Idempotent: a second run finds every triple recorded and marks nothing.
// Safe concurrently with in-flight automatic marks; whichever write lands
// first for an identity wins.
func (l *Ledger) FinalizeSession(ctx context.Context, group *store.Group, date time.Time) (int, error) {
	members, err := l.identities.ListByGroup(ctx, group.ID)
	if err != nil {
		return 0, fmt.Errorf("listing group members: %w", err)
	}

	marked := 0
	for i := range members {
		rec := &store.AttendanceRecord{
			ID:         uuid.New(),
			IdentityID: members[i].ID,
			GroupID:    group.ID,
			Date:       store.DateOf(date),
			Status:     store.StatusAbsent,
			Source:     store.SourceFinalization,
		}
		created, err := l.records.InsertIfAbsent(ctx, rec)
		if err != nil {
			return marked, fmt.Errorf("finalizing %s: %w", members[i].Code, err)
		}
		if created {
			marked++
		}
	}
	return marked, nil
}

// Summary counts a group's records for a date by status.
type Summary struct {
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`
}

// Summarize tallies the group's records for a date.
func (l *Ledger) Summarize(ctx context.Context, groupID uuid.UUID, date time.Time) (*Summary, []store.AttendanceRecord, error) {
	records, err := l.records.ListByGroupDate(ctx, groupID, date)
	if err != nil {
		return nil, nil, fmt.Errorf("listing group records: %w", err)
	}
	var summary Summary
	for i := range records {
		switch records[i].Status {
		case store.StatusPresent:
			summary.Present++
		case store.StatusLate:
			summary.Late++
		case store.StatusAbsent:
			summary.Absent++
		}
	}
	return &summary, records, nil
}

// History returns an identity's records from the last `days` days,
// newest first.
func (l *Ledger) History(ctx context.Context, identityID uuid.UUID, days int, now time.Time) ([]store.AttendanceRecord, error) {
	since := store.DateOf(now).AddDate(0, 0, -days)
	records, err := l.records.ListByIdentitySince(ctx, identityID, since)
	if err != nil {
		return nil, fmt.Errorf("listing identity records: %w", err)
	}
	return records, nil
}
