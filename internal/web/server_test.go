package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkratky/rollcall/internal/attendance"
	"github.com/mkratky/rollcall/internal/detector"
	"github.com/mkratky/rollcall/internal/matching"
	"github.com/mkratky/rollcall/internal/metrics"
	"github.com/mkratky/rollcall/internal/session"
	"github.com/mkratky/rollcall/internal/store"
	"github.com/mkratky/rollcall/internal/store/memory"
	"github.com/mkratky/rollcall/internal/templates"
)

type fakeDetector struct {
	detections []detector.Detection
}

func (f *fakeDetector) DetectFaces(ctx context.Context, imageData []byte) ([]detector.Detection, string, error) {
	return f.detections, "test-model", nil
}

type testEnv struct {
	server     *Server
	detector   *fakeDetector
	identities *memory.IdentityRepository
	groups     *memory.GroupRepository
	templates  *templates.Store
	group      *store.Group
	member     *store.Identity
}

var memberEmbedding = []float32{1, 0, 0, 0}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	identities := memory.NewIdentityRepository()
	groups := memory.NewGroupRepository()
	records := memory.NewAttendanceRepository()

	tpls := templates.NewStore(memory.NewTemplateRepository())
	if err := tpls.WarmUp(ctx); err != nil {
		t.Fatalf("WarmUp failed: %v", err)
	}

	group := &store.Group{ID: uuid.New(), Name: "CS101", Schedule: "MWF 8:00-9:00"}
	if err := groups.Create(ctx, group); err != nil {
		t.Fatalf("creating group: %v", err)
	}
	member := &store.Identity{ID: uuid.New(), Code: "s1", Name: "Alice Novak", GroupID: &group.ID}
	if err := identities.Create(ctx, member); err != nil {
		t.Fatalf("creating identity: %v", err)
	}
	if _, err := tpls.Enroll(ctx, member.ID, []detector.Detection{
		{FaceIndex: 0, Dim: len(memberEmbedding), Embedding: memberEmbedding},
	}, "test-model"); err != nil {
		t.Fatalf("enrolling template: %v", err)
	}

	det := &fakeDetector{}
	matcher := matching.NewEngine(tpls, 0.6)
	policy := attendance.NewPolicy("08:15", 15*time.Minute)
	ledger := attendance.NewLedger(records, identities, policy)
	controller := session.NewController(det, matcher, tpls, ledger, identities, groups, metrics.Nop{}, nil)

	server := NewServer(Deps{
		Controller: controller,
		Ledger:     ledger,
		Matcher:    matcher,
		Identities: identities,
		Groups:     groups,
		Registry:   prometheus.NewRegistry(),
	}, "127.0.0.1", 0)

	return &testEnv{
		server:     server,
		detector:   det,
		identities: identities,
		groups:     groups,
		templates:  tpls,
		group:      group,
		member:     member,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doImage(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "frame.jpg")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	part.Write(testJPEG)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d; want 200", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d; want 200", rec.Code)
	}
}

func TestCreateAndGetIdentity(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/identities", map[string]any{
		"code": "s2",
		"name": "Bob Dvorak",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s); want 201", rec.Code, rec.Body.String())
	}
	var created store.Identity
	decodeBody(t, rec, &created)
	if created.Code != "s2" {
		t.Errorf("code = %s; want s2", created.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/identities/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d; want 200", rec.Code)
	}
}

func TestCreateIdentityDuplicateCode(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/identities", map[string]any{
		"code": "s1",
		"name": "Impostor",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d; want 409 for duplicate code", rec.Code)
	}
}

func TestCreateIdentityMissingFields(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/identities", map[string]any{"code": "s9"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400 for missing name", rec.Code)
	}
}

func TestGetIdentityNotFound(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/identities/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d; want 404", rec.Code)
	}
}

func TestGetIdentityInvalidUUID(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/identities/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestRecognizeMarksAttendance(t *testing.T) {
	e := newTestEnv(t)
	e.detector.detections = []detector.Detection{{FaceIndex: 0, Embedding: memberEmbedding}}

	rec := e.doImage(t, "/api/v1/groups/"+e.group.ID.String()+"/recognize")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s); want 200", rec.Code, rec.Body.String())
	}

	var result session.Result
	decodeBody(t, rec, &result)
	if result.Kind != session.ResultMarked {
		t.Errorf("kind = %s; want marked", result.Kind)
	}
	if result.Identity == nil || result.Identity.Code != "s1" {
		t.Error("result does not carry the matched identity")
	}

	// Second frame for the same member is benign.
	rec = e.doImage(t, "/api/v1/groups/"+e.group.ID.String()+"/recognize")
	decodeBody(t, rec, &result)
	if result.Kind != session.ResultAlreadyRecorded {
		t.Errorf("second kind = %s; want already_recorded", result.Kind)
	}
}

func TestRecognizeNoFace(t *testing.T) {
	e := newTestEnv(t)
	e.detector.detections = nil

	rec := e.doImage(t, "/api/v1/groups/"+e.group.ID.String()+"/recognize")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 (no_face is benign)", rec.Code)
	}
	var result session.Result
	decodeBody(t, rec, &result)
	if result.Kind != session.ResultNoFace {
		t.Errorf("kind = %s; want no_face", result.Kind)
	}
}

func TestRecognizeWithoutImage(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/groups/"+e.group.ID.String()+"/recognize", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400 for missing multipart image", rec.Code)
	}
}

func TestEnrollAndRevokeTemplate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	fresh := &store.Identity{ID: uuid.New(), Code: "s2", Name: "Bob", GroupID: &e.group.ID}
	if err := e.identities.Create(ctx, fresh); err != nil {
		t.Fatalf("creating identity: %v", err)
	}

	e.detector.detections = []detector.Detection{{FaceIndex: 0, Embedding: []float32{0, 0, 1, 0}}}
	rec := e.doImage(t, "/api/v1/identities/"+fresh.ID.String()+"/template")
	if rec.Code != http.StatusCreated {
		t.Fatalf("enroll status = %d (%s); want 201", rec.Code, rec.Body.String())
	}
	if _, ok := e.templates.Get(fresh.ID); !ok {
		t.Error("template missing after enrollment")
	}

	rec = e.do(t, http.MethodDelete, "/api/v1/identities/"+fresh.ID.String()+"/template", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke status = %d; want 200", rec.Code)
	}
	if _, ok := e.templates.Get(fresh.ID); ok {
		t.Error("template still cached after revocation")
	}

	rec = e.do(t, http.MethodDelete, "/api/v1/identities/"+fresh.ID.String()+"/template", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second revoke status = %d; want 404", rec.Code)
	}
}

func TestEnrollNoFaceRejected(t *testing.T) {
	e := newTestEnv(t)
	e.detector.detections = nil

	rec := e.doImage(t, "/api/v1/identities/"+e.member.ID.String()+"/template")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d; want 422 for a photo with no face", rec.Code)
	}
}

func TestManualMarkAndSummary(t *testing.T) {
	e := newTestEnv(t)
	day := time.Now().UTC().Format("2006-01-02")

	rec := e.do(t, http.MethodPost, "/api/v1/attendance", map[string]any{
		"identity_id": e.member.ID,
		"group_id":    e.group.ID,
		"date":        day,
		"status":      "late",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("mark status = %d (%s); want 200", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/groups/%s/summary?date=%s", e.group.ID, day), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d; want 200", rec.Code)
	}
	var resp struct {
		Summary attendance.Summary `json:"summary"`
	}
	decodeBody(t, rec, &resp)
	if resp.Summary.Late != 1 {
		t.Errorf("summary = %+v; want 1 late", resp.Summary)
	}
}

func TestManualMarkInvalidStatus(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/attendance", map[string]any{
		"identity_id": e.member.ID,
		"group_id":    e.group.ID,
		"status":      "excused",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400 for invalid status", rec.Code)
	}
}

func TestFinalizeGroup(t *testing.T) {
	e := newTestEnv(t)
	day := time.Now().UTC().Format("2006-01-02")

	rec := e.do(t, http.MethodPost, fmt.Sprintf("/api/v1/groups/%s/finalize?date=%s", e.group.ID, day), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize status = %d (%s); want 200", rec.Code, rec.Body.String())
	}
	var resp struct {
		MarkedAbsent int `json:"marked_absent"`
	}
	decodeBody(t, rec, &resp)
	if resp.MarkedAbsent != 1 {
		t.Errorf("marked_absent = %d; want 1", resp.MarkedAbsent)
	}
}

func TestToleranceConfig(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPut, "/api/v1/config/tolerance", map[string]any{"tolerance": 0.45})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s); want 200", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/api/v1/config", nil)
	var resp struct {
		Tolerance float64 `json:"tolerance"`
	}
	decodeBody(t, rec, &resp)
	if resp.Tolerance != 0.45 {
		t.Errorf("tolerance = %f; want 0.45", resp.Tolerance)
	}
}

func TestToleranceConfigRejectsOutOfRange(t *testing.T) {
	e := newTestEnv(t)
	for _, v := range []float64{0, -1, 1.5} {
		rec := e.do(t, http.MethodPut, "/api/v1/config/tolerance", map[string]any{"tolerance": v})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("tolerance %f: status = %d; want 400", v, rec.Code)
		}
	}
}

func TestListGroupMembers(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/groups/"+e.group.ID.String()+"/members", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	var resp struct {
		Members []store.Identity `json:"members"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Members) != 1 || resp.Members[0].Code != "s1" {
		t.Errorf("members = %+v; want the one enrolled member", resp.Members)
	}
}

func TestSearchIdentitiesByName(t *testing.T) {
	e := newTestEnv(t)
	// Diacritics and case fold away in name search.
	rec := e.do(t, http.MethodGet, "/api/v1/identities?name="+strings.ReplaceAll("alice novák", " ", "%20"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	var resp struct {
		Identities []store.Identity `json:"identities"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Identities) != 1 {
		t.Errorf("found %d identities; want 1", len(resp.Identities))
	}
}

// testJPEG is a tiny valid JPEG so multipart uploads decode.
var testJPEG = makeTestJPEG()

func makeTestJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
	return buf.Bytes()
}

func TestIdentifyAcrossPopulation(t *testing.T) {
	e := newTestEnv(t)
	e.detector.detections = []detector.Detection{{FaceIndex: 0, Embedding: memberEmbedding}}

	rec := e.doImage(t, "/api/v1/recognize")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s); want 200", rec.Code, rec.Body.String())
	}

	var result session.Result
	decodeBody(t, rec, &result)
	if result.Kind != session.ResultRecognized {
		t.Errorf("kind = %s; want recognized", result.Kind)
	}
	if result.Identity == nil || result.Identity.Code != "s1" {
		t.Error("result does not carry the identified identity")
	}
	if result.Record != nil {
		t.Error("identification must not record attendance")
	}
}

func TestIdentifyUnknownFace(t *testing.T) {
	e := newTestEnv(t)
	e.detector.detections = []detector.Detection{{FaceIndex: 0, Embedding: []float32{0, 1, 0, 0}}}

	rec := e.doImage(t, "/api/v1/recognize")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s); want 200", rec.Code, rec.Body.String())
	}

	var result session.Result
	decodeBody(t, rec, &result)
	if result.Kind != session.ResultNoMatch {
		t.Errorf("kind = %s; want no_match", result.Kind)
	}
}

func TestDeleteIdentityNotFound(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodDelete, "/api/v1/identities/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d; want 404 for a nonexistent identity", rec.Code)
	}
}

func TestDeleteIdentity(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodDelete, "/api/v1/identities/"+e.member.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s); want 200", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/api/v1/identities/"+e.member.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d; want 404 after deletion", rec.Code)
	}
}
