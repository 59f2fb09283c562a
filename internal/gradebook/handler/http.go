// Package handler exposes the gradebook operations over HTTP. Every handler
// verifies the caller's session, and class mutations also require an edit
// grant, before the service is called.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/noahsadir/courseman/internal/gradebook/domain"
	"github.com/noahsadir/courseman/internal/gradebook/service"
	"github.com/noahsadir/courseman/internal/platform/rbac"
	"github.com/noahsadir/courseman/internal/platform/respond"
)

// GradebookAPI is the gradebook service as seen by the handler.
type GradebookAPI interface {
	GetClasses(ctx context.Context, accountID string) ([]domain.ClassData, error)
	CreateClass(ctx context.Context, accountID string, c domain.Class) (*domain.Class, error)
	ModifyClass(ctx context.Context, c domain.Class) error
	ShareClass(ctx context.Context, classID, targetID string) error
	UnshareClass(ctx context.Context, classID, targetID string) error
	CreateTerm(ctx context.Context, accountID string, t domain.Term) (*domain.Term, error)
	DeleteTerm(ctx context.Context, accountID, termID string) (bool, error)
}

// Handler serves the class and term endpoints.
type Handler struct {
	gradebook GradebookAPI
	verifier  rbac.TokenVerifier
	checker   rbac.EditChecker
	resp      respond.Responder
}

// NewHandler returns a gradebook Handler.
func NewHandler(gradebook GradebookAPI, verifier rbac.TokenVerifier, checker rbac.EditChecker, resp respond.Responder) *Handler {
	return &Handler{gradebook: gradebook, verifier: verifier, checker: checker, resp: resp}
}

type credentials struct {
	InternalID string `json:"internal_id"`
	Token      string `json:"token"`
}

type classRequest struct {
	credentials
	ClassID   string  `json:"class_id"`
	ClassName string  `json:"class_name"`
	ClassCode string  `json:"class_code"`
	Color     int     `json:"color"`
	Weight    float64 `json:"weight"`
}

func (r classRequest) class() domain.Class {
	return domain.Class{ID: r.ClassID, Name: r.ClassName, Code: r.ClassCode, Color: r.Color, Weight: r.Weight}
}

type shareRequest struct {
	credentials
	ClassID  string `json:"class_id"`
	TargetID string `json:"target_id"`
}

type termRequest struct {
	credentials
	TermID    string `json:"term_id"`
	Title     string `json:"title"`
	StartDate int64  `json:"start_date"`
	EndDate   int64  `json:"end_date"`
}

// GetClasses returns every class the caller holds a grant for, in grant order.
func (h *Handler) GetClasses(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}
	if err := rbac.RequireSession(r.Context(), h.verifier, req.InternalID, req.Token); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	classes, err := h.gradebook.GetClasses(r.Context(), req.InternalID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, map[string]any{"gradebook": gradebookView{Classes: classViews(classes)}})
}

// CreateClass creates a class owned by the caller.
func (h *Handler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req classRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !rbac.Present(req.ClassName) {
		h.resp.Fail(w, r, respond.MissingArgs())
		return
	}
	if err := rbac.RequireSession(r.Context(), h.verifier, req.InternalID, req.Token); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	c, err := h.gradebook.CreateClass(r.Context(), req.InternalID, req.class())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, map[string]any{"message": "Successfully created class.", "class_id": c.ID})
}

// ModifyClass overwrites a class the caller may edit.
func (h *Handler) ModifyClass(w http.ResponseWriter, r *http.Request) {
	var req classRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !rbac.Present(req.ClassName) {
		h.resp.Fail(w, r, respond.MissingArgs())
		return
	}
	if err := rbac.RequireEditSession(r.Context(), h.verifier, h.checker, req.InternalID, req.Token, req.ClassID); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	if err := h.gradebook.ModifyClass(r.Context(), req.class()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.resp.Message(w, http.StatusOK, "Successfully modified class.")
}

// ShareClass grants another account edit rights on a class the caller may edit.
func (h *Handler) ShareClass(w http.ResponseWriter, r *http.Request) {
	h.share(w, r, h.gradebook.ShareClass, "Successfully shared class.")
}

// UnshareClass revokes an account's edit rights on a class the caller may edit.
func (h *Handler) UnshareClass(w http.ResponseWriter, r *http.Request) {
	h.share(w, r, h.gradebook.UnshareClass, "Successfully unshared class.")
}

func (h *Handler) share(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, classID, targetID string) error, msg string) {
	var req shareRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !rbac.Present(req.TargetID) {
		h.resp.Fail(w, r, respond.MissingArgs())
		return
	}
	if err := rbac.RequireEditSession(r.Context(), h.verifier, h.checker, req.InternalID, req.Token, req.ClassID); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	if err := op(r.Context(), req.ClassID, req.TargetID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.resp.Message(w, http.StatusOK, msg)
}

// CreateTerm creates a term owned by the caller.
func (h *Handler) CreateTerm(w http.ResponseWriter, r *http.Request) {
	var req termRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !rbac.Present(req.Title) {
		h.resp.Fail(w, r, respond.MissingArgs())
		return
	}
	if err := rbac.RequireSession(r.Context(), h.verifier, req.InternalID, req.Token); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	t, err := h.gradebook.CreateTerm(r.Context(), req.InternalID, domain.Term{Title: req.Title, StartDate: req.StartDate, EndDate: req.EndDate})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, map[string]any{"message": "Successfully created term.", "term_id": t.ID})
}

// DeleteTerm deletes one of the caller's terms.
func (h *Handler) DeleteTerm(w http.ResponseWriter, r *http.Request) {
	var req termRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !rbac.Present(req.TermID) {
		h.resp.Fail(w, r, respond.MissingArgs())
		return
	}
	if err := rbac.RequireSession(r.Context(), h.verifier, req.InternalID, req.Token); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	deleted, err := h.gradebook.DeleteTerm(r.Context(), req.InternalID, req.TermID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, map[string]any{"message": "Successfully deleted term.", "deleted": deleted})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := respond.DecodeJSON(r, v); err != nil {
		h.resp.Fail(w, r, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		err = respond.BadRequest(err.Error())
	case errors.Is(err, service.ErrClassNotFound):
		err = &respond.Failure{Status: http.StatusNotFound, Code: respond.CodeClassNotFound, Message: "The class does not exist."}
	case errors.Is(err, service.ErrUnknownAccount):
		err = &respond.Failure{Status: http.StatusNotFound, Code: respond.CodeAccountNotFound, Message: "The target account does not exist."}
	case errors.Is(err, service.ErrLastEditor):
		err = &respond.Failure{Status: http.StatusConflict, Code: respond.CodeLastEditor, Message: "A class must keep at least one editor."}
	}
	h.resp.Fail(w, r, err)
}

type gradebookView struct {
	Classes []classView `json:"classes"`
}

type classView struct {
	ClassID    string         `json:"class_id"`
	Name       string         `json:"name"`
	Code       string         `json:"code"`
	Color      int            `json:"color"`
	Weight     float64        `json:"weight"`
	GradeScale []gradeView    `json:"grade_scale"`
	Categories []categoryView `json:"categories"`
}

type gradeView struct {
	GradeID  string  `json:"grade_id"`
	MinScore float64 `json:"min_score"`
	MaxScore float64 `json:"max_score"`
	Credit   float64 `json:"credit"`
}

// categoryView always carries an empty assignments object; assignment storage
// is not part of this service.
type categoryView struct {
	CategoryID   string         `json:"category_id"`
	CategoryName string         `json:"category_name"`
	DropCount    int            `json:"drop_count"`
	Weight       float64        `json:"weight"`
	Assignments  map[string]any `json:"assignments"`
}

func classViews(classes []domain.ClassData) []classView {
	out := make([]classView, 0, len(classes))
	for _, cd := range classes {
		v := classView{
			ClassID:    cd.Class.ID,
			Name:       cd.Class.Name,
			Code:       cd.Class.Code,
			Color:      cd.Class.Color,
			Weight:     cd.Class.Weight,
			GradeScale: make([]gradeView, 0, len(cd.GradeScale)),
			Categories: make([]categoryView, 0, len(cd.Categories)),
		}
		for _, g := range cd.GradeScale {
			v.GradeScale = append(v.GradeScale, gradeView{GradeID: g.GradeID, MinScore: g.MinScore, MaxScore: g.MaxScore, Credit: g.Credit})
		}
		for _, c := range cd.Categories {
			v.Categories = append(v.Categories, categoryView{CategoryID: c.ID, CategoryName: c.Name, DropCount: c.DropCount, Weight: c.Weight, Assignments: map[string]any{}})
		}
		out = append(out, v)
	}
	return out
}
