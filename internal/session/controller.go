// Package session drives live attendance-taking: per-frame recognition,
// manual corrections, and end-of-session finalization. Every operation
// returns a definite outcome; one frame's failure never terminates the
// session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkratky/rollcall/internal/attendance"
	"github.com/mkratky/rollcall/internal/detector"
	"github.com/mkratky/rollcall/internal/matching"
	"github.com/mkratky/rollcall/internal/metrics"
	"github.com/mkratky/rollcall/internal/store"
	"github.com/mkratky/rollcall/internal/templates"
)

// ErrGroupNotFound is returned when the referenced group does not exist.
var ErrGroupNotFound = errors.New("group not found")

// ErrIdentityNotFound is returned when the referenced identity does not exist.
var ErrIdentityNotFound = errors.New("identity not found")

// ResultKind discriminates recognition outcomes.
type ResultKind string

const (
	// ResultMarked means a new attendance record was created.
	ResultMarked ResultKind = "marked"
	// ResultAlreadyRecorded means the identity was recognized but already
	// has a record for today. Benign.
	ResultAlreadyRecorded ResultKind = "already_recorded"
	// ResultNoMatch means a face was detected but matched no enrolled
	// identity in scope. Benign.
	ResultNoMatch ResultKind = "no_match"
	// ResultNoFace means the frame contained no detectable face. Benign.
	ResultNoFace ResultKind = "no_face"
	// ResultRecognized means the face was identified against the full
	// enrolled population; no attendance was recorded.
	ResultRecognized ResultKind = "recognized"
	// ResultFailure means extraction, storage, or a ledger write failed.
	// The frame is retryable.
	ResultFailure ResultKind = "failure"
)

// Result is the outcome of one recognition attempt.
type Result struct {
	Kind       ResultKind              `json:"kind"`
	Identity   *store.Identity         `json:"identity,omitempty"`
	Record     *store.AttendanceRecord `json:"record,omitempty"`
	Confidence float64                 `json:"confidence,omitempty"`
	// MultipleFaces is set when the frame contained more than one face
	// and the first region was used.
	MultipleFaces bool   `json:"multiple_faces,omitempty"`
	Message       string `json:"message,omitempty"`
}

// EnrollOutcome is the result of a successful enrollment.
type EnrollOutcome struct {
	Template *store.StoredTemplate `json:"template"`
	// Warning carries the non-fatal multiple-faces notice, empty otherwise.
	Warning string `json:"warning,omitempty"`
}

// Controller is the caller-facing core API. It orchestrates the detector,
// matching engine, template store, and attendance ledger.
type Controller struct {
	detector   detector.Client
	matcher    *matching.Engine
	templates  *templates.Store
	ledger     *attendance.Ledger
	identities store.IdentityRepository
	groups     store.GroupRepository
	metrics    metrics.Recorder
	log        *slog.Logger
	now        func() time.Time
}

// NewController wires the attendance session controller. A nil recorder
// or logger falls back to no-op metrics and the default logger.
func NewController(
	det detector.Client,
	matcher *matching.Engine,
	tpls *templates.Store,
	ledger *attendance.Ledger,
	identities store.IdentityRepository,
	groups store.GroupRepository,
	rec metrics.Recorder,
	log *slog.Logger,
) *Controller {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		detector:   det,
		matcher:    matcher,
		templates:  tpls,
		ledger:     ledger,
		identities: identities,
		groups:     groups,
		metrics:    rec,
		log:        log,
		now:        time.Now,
	}
}

// SetClock overrides the controller's time source. Tests only.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// AttemptRecognition processes one captured frame for a group: detect,
// match against the group's members, and record attendance. Each attempt
// is independent; the caller retries with the next frame on failure.
func (c *Controller) AttemptRecognition(ctx context.Context, image []byte, groupID uuid.UUID) Result {
	started := c.now()
	c.metrics.RecordFrame()

	group, err := c.groups.Get(ctx, groupID)
	if err != nil {
		return c.failure("loading group", err)
	}
	if group == nil {
		return c.failure("loading group", ErrGroupNotFound)
	}

	detections, _, err := c.detector.DetectFaces(ctx, image)
	if err != nil {
		return c.failure("face detection", err)
	}
	if len(detections) == 0 {
		c.metrics.RecordNoFace()
		return Result{Kind: ResultNoFace, Message: "no face detected"}
	}

	// Detection order carries no meaning; the first region is used by
	// policy when several faces appear in frame.
	probe := detections[0].Embedding
	multiple := len(detections) > 1

	members, err := c.identities.ListByGroup(ctx, groupID)
	if err != nil {
		return c.failure("listing group members", err)
	}

	match := c.matcher.Match(probe, members)
	c.metrics.RecordMatchLatency(c.now().Sub(started))
	if match == nil {
		c.metrics.RecordNoMatch()
		return Result{Kind: ResultNoMatch, MultipleFaces: multiple, Message: "face not recognized"}
	}

	outcome, err := c.ledger.RecordAutomatic(ctx, &match.Identity, group, c.now())
	if err != nil {
		return c.failure("recording attendance", err)
	}

	if outcome.Already {
		c.metrics.RecordAlreadyRecorded()
		return Result{
			Kind:          ResultAlreadyRecorded,
			Identity:      &match.Identity,
			Record:        outcome.Record,
			Confidence:    match.Confidence,
			MultipleFaces: multiple,
			Message:       fmt.Sprintf("%s already recorded today", match.Identity.Name),
		}
	}

	c.metrics.RecordMark(string(outcome.Record.Status))
	c.log.Info("attendance marked",
		slog.String("identity", match.Identity.Code),
		slog.String("group", group.Name),
		slog.String("status", string(outcome.Record.Status)),
		slog.Float64("confidence", match.Confidence),
	)
	return Result{
		Kind:          ResultMarked,
		Identity:      &match.Identity,
		Record:        outcome.Record,
		Confidence:    match.Confidence,
		MultipleFaces: multiple,
		Message:       fmt.Sprintf("%s marked %s", match.Identity.Name, outcome.Record.Status),
	}
}

// Identify matches the frame's face against the full enrolled
// population, through the template index rather than a candidate scan.
// It only answers "who is this"; no attendance is recorded. Use
// AttemptRecognition when a group scope applies.
func (c *Controller) Identify(ctx context.Context, image []byte) Result {
	started := c.now()
	c.metrics.RecordFrame()

	detections, _, err := c.detector.DetectFaces(ctx, image)
	if err != nil {
		return c.failure("face detection", err)
	}
	if len(detections) == 0 {
		c.metrics.RecordNoFace()
		return Result{Kind: ResultNoFace, Message: "no face detected"}
	}

	probe := detections[0].Embedding
	multiple := len(detections) > 1

	match := c.matcher.MatchAll(probe)
	c.metrics.RecordMatchLatency(c.now().Sub(started))
	if match == nil {
		c.metrics.RecordNoMatch()
		return Result{Kind: ResultNoMatch, MultipleFaces: multiple, Message: "face not recognized"}
	}

	identity, err := c.identities.Get(ctx, match.IdentityID)
	if err != nil {
		return c.failure("loading identity", err)
	}
	if identity == nil {
		// Template survived its identity in the cache; treat as unknown.
		c.metrics.RecordNoMatch()
		return Result{Kind: ResultNoMatch, MultipleFaces: multiple, Message: "face not recognized"}
	}

	return Result{
		Kind:          ResultRecognized,
		Identity:      identity,
		Confidence:    match.Confidence,
		MultipleFaces: multiple,
		Message:       fmt.Sprintf("recognized %s", identity.Name),
	}
}

// Enroll extracts a template from the image and stores it for the
// identity, replacing any prior template.
func (c *Controller) Enroll(ctx context.Context, image []byte, identityID uuid.UUID) (*EnrollOutcome, error) {
	identity, err := c.identities.Get(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}
	if identity == nil {
		return nil, ErrIdentityNotFound
	}

	detections, model, err := c.detector.DetectFaces(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("face detection: %w", err)
	}

	result, err := c.templates.Enroll(ctx, identityID, detections, model)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordEnrollment()

	outcome := &EnrollOutcome{Template: result.Template}
	if result.MultipleFaces {
		outcome.Warning = "multiple faces detected; used the first one"
		c.log.Warn("enrollment used first of several faces", slog.String("identity", identity.Code))
	}
	return outcome, nil
}

// Revoke removes the identity's template.
func (c *Controller) Revoke(ctx context.Context, identityID uuid.UUID) error {
	return c.templates.Revoke(ctx, identityID)
}

// MarkManual records or corrects attendance directly, bypassing
// detection. Manual marks supersede any prior value.
func (c *Controller) MarkManual(ctx context.Context, identityID, groupID uuid.UUID, date time.Time, status store.Status) (*store.AttendanceRecord, error) {
	identity, err := c.identities.Get(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}
	if identity == nil {
		return nil, ErrIdentityNotFound
	}
	group, err := c.groups.Get(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("loading group: %w", err)
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}

	rec, err := c.ledger.RecordManual(ctx, identityID, groupID, date, status, c.now())
	if err != nil {
		return nil, err
	}
	c.metrics.RecordMark(string(rec.Status))
	return rec, nil
}

// EndSession finalizes the group's session for the date, creating an
// absent record for everyone still unrecorded, and returns the count.
func (c *Controller) EndSession(ctx context.Context, groupID uuid.UUID, date time.Time) (int, error) {
	group, err := c.groups.Get(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("loading group: %w", err)
	}
	if group == nil {
		return 0, ErrGroupNotFound
	}

	marked, err := c.ledger.FinalizeSession(ctx, group, date)
	if err != nil {
		return marked, err
	}
	c.log.Info("session finalized",
		slog.String("group", group.Name),
		slog.Int("marked_absent", marked),
	)
	return marked, nil
}

func (c *Controller) failure(during string, err error) Result {
	c.metrics.RecordFailure(during)
	c.log.Error("recognition attempt failed", slog.String("during", during), slog.String("error", err.Error()))
	return Result{
		Kind:    ResultFailure,
		Message: fmt.Sprintf("%s: %v", during, err),
	}
}
