package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/noahsadir/courseman/internal/gradebook/domain"
	"github.com/noahsadir/courseman/internal/gradebook/service"
	"github.com/noahsadir/courseman/internal/identifier"
	permissionservice "github.com/noahsadir/courseman/internal/permission/service"
	"github.com/noahsadir/courseman/internal/platform/respond"
	sessionservice "github.com/noahsadir/courseman/internal/session/service"
	"github.com/noahsadir/courseman/internal/testutil/memstore"
)

// fakeGradebook records which operations ran.
type fakeGradebook struct {
	calls     []string
	classes   []domain.ClassData
	modifyErr error
}

func (f *fakeGradebook) GetClasses(ctx context.Context, accountID string) ([]domain.ClassData, error) {
	f.calls = append(f.calls, "get:"+accountID)
	return f.classes, nil
}

func (f *fakeGradebook) CreateClass(ctx context.Context, accountID string, c domain.Class) (*domain.Class, error) {
	f.calls = append(f.calls, "create:"+c.Name)
	c.ID = "newclass"
	return &c, nil
}

func (f *fakeGradebook) ModifyClass(ctx context.Context, c domain.Class) error {
	f.calls = append(f.calls, "modify:"+c.ID)
	return f.modifyErr
}

func (f *fakeGradebook) ShareClass(ctx context.Context, classID, targetID string) error {
	f.calls = append(f.calls, "share:"+classID+":"+targetID)
	return nil
}

func (f *fakeGradebook) UnshareClass(ctx context.Context, classID, targetID string) error {
	f.calls = append(f.calls, "unshare:"+classID+":"+targetID)
	return service.ErrLastEditor
}

func (f *fakeGradebook) CreateTerm(ctx context.Context, accountID string, t domain.Term) (*domain.Term, error) {
	f.calls = append(f.calls, "term:"+t.Title)
	t.ID = "term1"
	return &t, nil
}

func (f *fakeGradebook) DeleteTerm(ctx context.Context, accountID, termID string) (bool, error) {
	f.calls = append(f.calls, "delterm:"+termID)
	return true, nil
}

// core wires the real token service and permission registry over in-memory tables.
type core struct {
	tokens   *sessionservice.TokenService
	registry *permissionservice.Registry
	book     *fakeGradebook
	h        *Handler
}

func newCore() *core {
	sessions := memstore.NewSessions()
	alloc := identifier.NewAllocator(nil, sessions, identifier.DefaultMaxAttempts, nil)
	c := &core{
		tokens:   sessionservice.NewTokenService(sessions, alloc, time.Hour, 32, nil, nil),
		registry: permissionservice.NewRegistry(memstore.NewGrants(), nil, nil),
		book:     &fakeGradebook{},
	}
	c.h = NewHandler(c.book, c.tokens, c.registry, respond.Responder{})
	return c
}

func postRaw(t *testing.T, fn http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(raw))))
	return rec
}

func post(t *testing.T, fn http.HandlerFunc, body any) (int, map[string]any) {
	t.Helper()
	rec := postRaw(t, fn, body)
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v: %s", err, rec.Body.String())
	}
	return rec.Code, out
}

func wantFailure(t *testing.T, code int, body map[string]any, wantStatus int, wantCode string) {
	t.Helper()
	if code != wantStatus {
		t.Errorf("status = %d, want %d", code, wantStatus)
	}
	if body["error"] != wantCode {
		t.Errorf("error = %v, want %s", body["error"], wantCode)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
}

func (c *core) issue(t *testing.T, accountID string) string {
	t.Helper()
	sess, err := c.tokens.Issue(context.Background(), accountID)
	if err != nil {
		t.Fatalf("Issue(%s): %v", accountID, err)
	}
	return sess.Token
}

func (c *core) noCalls(t *testing.T) {
	t.Helper()
	if len(c.book.calls) != 0 {
		t.Errorf("gradebook was called: %v", c.book.calls)
	}
}

func TestScenario_NoSession(t *testing.T) {
	c := newCore()
	code, body := post(t, c.h.ModifyClass, map[string]any{
		"internal_id": "u1", "token": "x", "class_id": "class42", "class_name": "Algebra",
	})
	wantFailure(t, code, body, http.StatusUnauthorized, respond.CodeTokenNotAvailable)
	c.noCalls(t)
}

func TestScenario_ValidTokenWithoutGrant(t *testing.T) {
	c := newCore()
	token := c.issue(t, "u1")

	code, body := post(t, c.h.ModifyClass, map[string]any{
		"internal_id": "u1", "token": token, "class_id": "class42", "class_name": "Algebra",
	})
	wantFailure(t, code, body, http.StatusForbidden, respond.CodeEditPermission)
	c.noCalls(t)
}

func TestScenario_GrantThenRevoke(t *testing.T) {
	c := newCore()
	ctx := context.Background()
	req := map[string]any{"internal_id": "u1", "token": c.issue(t, "u1"), "class_id": "class42", "class_name": "Algebra"}

	if err := c.registry.Grant(ctx, "u1", "class42"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	code, body := post(t, c.h.ModifyClass, req)
	if code != http.StatusOK || body["success"] != true {
		t.Errorf("with grant: %d %v, want success", code, body)
	}
	if want := []string{"modify:class42"}; !reflect.DeepEqual(c.book.calls, want) {
		t.Errorf("calls = %v, want %v", c.book.calls, want)
	}

	if err := c.registry.Revoke(ctx, "u1", "class42"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	code, body = post(t, c.h.ModifyClass, req)
	wantFailure(t, code, body, http.StatusForbidden, respond.CodeEditPermission)
	if len(c.book.calls) != 1 {
		t.Errorf("calls after revoke = %v, want no new call", c.book.calls)
	}
}

func TestReissueInvalidatesPreviousToken(t *testing.T) {
	c := newCore()
	first := c.issue(t, "u1")
	c.issue(t, "u1")

	code, body := post(t, c.h.GetClasses, map[string]any{"internal_id": "u1", "token": first})
	wantFailure(t, code, body, http.StatusUnauthorized, respond.CodeInvalidToken)
}

func TestMissingArgs(t *testing.T) {
	c := newCore()
	token := c.issue(t, "u1")

	testCases := []struct {
		name string
		fn   http.HandlerFunc
		body map[string]any
	}{
		{"get_classes without token", c.h.GetClasses, map[string]any{"internal_id": "u1"}},
		{"create_class without name", c.h.CreateClass, map[string]any{"internal_id": "u1", "token": token}},
		{"modify_class without class", c.h.ModifyClass, map[string]any{"internal_id": "u1", "token": token, "class_name": "x"}},
		{"share_class without target", c.h.ShareClass, map[string]any{"internal_id": "u1", "token": token, "class_id": "c"}},
		{"create_term without title", c.h.CreateTerm, map[string]any{"internal_id": "u1", "token": token}},
		{"delete_term without term", c.h.DeleteTerm, map[string]any{"internal_id": "u1", "token": token}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := post(t, tc.fn, tc.body)
			wantFailure(t, code, body, http.StatusBadRequest, respond.CodeMissingArgs)
		})
	}
	c.noCalls(t)
}

func TestGetClasses_Shape(t *testing.T) {
	c := newCore()
	token := c.issue(t, "u1")
	c.book.classes = []domain.ClassData{
		{Class: domain.Class{ID: "b", Name: "Second"}},
		{
			Class:      domain.Class{ID: "a", Name: "First", Weight: 4},
			Categories: []domain.Category{{ID: "cat", Name: "Labs", DropCount: 1}},
			GradeScale: []domain.GradeBand{{GradeID: "A", MinScore: 90}},
		},
	}

	rec := postRaw(t, c.h.GetClasses, map[string]any{"internal_id": "u1", "token": token})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"assignments":{}`) {
		t.Errorf("categories should carry an empty assignments object: %s", rec.Body.String())
	}

	var body struct {
		Gradebook struct {
			Classes []struct {
				ClassID    string `json:"class_id"`
				GradeScale []struct {
					GradeID string `json:"grade_id"`
				} `json:"grade_scale"`
				Categories []struct {
					CategoryName string         `json:"category_name"`
					Assignments  map[string]any `json:"assignments"`
				} `json:"categories"`
			} `json:"classes"`
		} `json:"gradebook"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	classes := body.Gradebook.Classes
	if len(classes) != 2 {
		t.Fatalf("classes = %d, want 2", len(classes))
	}
	if classes[0].ClassID != "b" {
		t.Errorf("first class = %q, want b (grant order)", classes[0].ClassID)
	}
	if classes[0].Categories == nil || classes[0].GradeScale == nil {
		t.Error("empty categories and grade_scale must encode as [] not null")
	}
	second := classes[1]
	if len(second.Categories) != 1 || second.Categories[0].CategoryName != "Labs" {
		t.Errorf("categories = %+v, want Labs", second.Categories)
	} else if a := second.Categories[0].Assignments; a == nil || len(a) != 0 {
		t.Errorf("assignments = %v, want {}", a)
	}
	if len(second.GradeScale) != 1 || second.GradeScale[0].GradeID != "A" {
		t.Errorf("grade_scale = %+v, want A", second.GradeScale)
	}
}

func TestCreateClassAndTerms(t *testing.T) {
	c := newCore()
	token := c.issue(t, "u1")
	creds := func(extra map[string]any) map[string]any {
		extra["internal_id"] = "u1"
		extra["token"] = token
		return extra
	}

	testCases := []struct {
		name  string
		fn    http.HandlerFunc
		body  map[string]any
		key   string
		value any
	}{
		{"create_class", c.h.CreateClass, creds(map[string]any{"class_name": "Art"}), "class_id", "newclass"},
		{"create_term", c.h.CreateTerm, creds(map[string]any{"title": "Spring"}), "term_id", "term1"},
		{"delete_term", c.h.DeleteTerm, creds(map[string]any{"term_id": "term1"}), "deleted", true},
	}
	for _, tc := range testCases {
		code, body := post(t, tc.fn, tc.body)
		if code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", tc.name, code)
		}
		if body[tc.key] != tc.value {
			t.Errorf("%s: %s = %v, want %v", tc.name, tc.key, body[tc.key], tc.value)
		}
	}
}

func TestServiceErrorMapping(t *testing.T) {
	c := newCore()
	token := c.issue(t, "u1")
	if err := c.registry.Grant(context.Background(), "u1", "c1"); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	c.book.modifyErr = service.ErrClassNotFound
	code, body := post(t, c.h.ModifyClass, map[string]any{"internal_id": "u1", "token": token, "class_id": "c1", "class_name": "x"})
	wantFailure(t, code, body, http.StatusNotFound, respond.CodeClassNotFound)

	code, body = post(t, c.h.UnshareClass, map[string]any{"internal_id": "u1", "token": token, "class_id": "c1", "target_id": "u1"})
	wantFailure(t, code, body, http.StatusConflict, respond.CodeLastEditor)

	if code, _ := post(t, c.h.ShareClass, map[string]any{"internal_id": "u1", "token": token, "class_id": "c1", "target_id": "u2"}); code != http.StatusOK {
		t.Errorf("share: status = %d, want 200", code)
	}
	if !slices.Contains(c.book.calls, "share:c1:u2") {
		t.Errorf("calls = %v, want share:c1:u2", c.book.calls)
	}
}
