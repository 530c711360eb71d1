package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the daily attendance state of an identity.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPresent, StatusLate, StatusAbsent:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// ImpliesPresence returns true when the status carries a time-in stamp.
func (s Status) ImpliesPresence() bool {
	return s == StatusPresent || s == StatusLate
}

// Source records which path created or last updated an attendance record.
type Source string

const (
	SourceAutomatic    Source = "automatic-match"
	SourceManual       Source = "manual"
	SourceFinalization Source = "system-finalization"
)

// Identity is an enrolled person. The code is the stable human-visible
// key (e.g. a student registration code); display attributes are mutable.
type Identity struct {
	ID         uuid.UUID  `json:"id"`
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	Email      string     `json:"email,omitempty"`
	Department string     `json:"department,omitempty"`
	GroupID    *uuid.UUID `json:"group_id,omitempty"` // nil when not assigned to any group
	CreatedAt  time.Time  `json:"created_at"`
}

// Group is a collection of identities under one responsible owner,
// with a schedule string used for lateness classification
// (e.g. "MWF 8:00-9:00").
type Group struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Owner      string    `json:"owner,omitempty"`
	Department string    `json:"department,omitempty"`
	Schedule   string    `json:"schedule,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// StoredTemplate is the single active biometric template of an identity.
// Re-enrollment replaces it.
type StoredTemplate struct {
	IdentityID uuid.UUID `json:"identity_id"`
	Embedding  []float32 `json:"-"`
	Model      string    `json:"model"`
	Dim        int       `json:"dim"`
	CreatedAt  time.Time `json:"created_at"`
}

// AttendanceRecord is the unique daily state for an (identity, group, date)
// triple. At most one record exists per triple; the store enforces this.
type AttendanceRecord struct {
	ID         uuid.UUID  `json:"id"`
	IdentityID uuid.UUID  `json:"identity_id"`
	GroupID    uuid.UUID  `json:"group_id"`
	Date       time.Time  `json:"date"` // normalized to UTC midnight, see DateOf
	Status     Status     `json:"status"`
	TimeIn     *time.Time `json:"time_in,omitempty"`
	TimeOut    *time.Time `json:"time_out,omitempty"`
	Source     Source     `json:"source"`
	CreatedAt  time.Time  `json:"created_at"`
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
