package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noahsadir/courseman/internal/gradebook/domain"
	"github.com/noahsadir/courseman/internal/identifier"
	permissiondomain "github.com/noahsadir/courseman/internal/permission/domain"
	permissionservice "github.com/noahsadir/courseman/internal/permission/service"
	"github.com/noahsadir/courseman/internal/testutil/memstore"
)

// memClassRepo is an in-memory classes/categories/grade_scales/terms store.
type memClassRepo struct {
	mu         sync.Mutex
	classes    map[string]domain.Class
	categories map[string][]domain.Category
	scales     map[string][]domain.GradeBand
	terms      map[string]domain.Term
	rowLocks   map[string]*sync.Mutex
	getErr     error
}

func newMemClassRepo() *memClassRepo {
	return &memClassRepo{
		classes:    make(map[string]domain.Class),
		categories: make(map[string][]domain.Category),
		scales:     make(map[string][]domain.GradeBand),
		terms:      make(map[string]domain.Term),
		rowLocks:   make(map[string]*sync.Mutex),
	}
}

func (r *memClassRepo) rowLock(classID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rowLocks[classID]
	if !ok {
		l = &sync.Mutex{}
		r.rowLocks[classID] = l
	}
	return l
}

// LockClass outside a transaction releases the lock at once, like a bare SELECT ... FOR UPDATE.
func (r *memClassRepo) LockClass(ctx context.Context, classID string) (bool, error) {
	l := r.rowLock(classID)
	l.Lock()
	defer l.Unlock()
	c, err := r.GetClass(ctx, classID)
	return c != nil, err
}

func (r *memClassRepo) GetClass(ctx context.Context, classID string) (*domain.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	c, ok := r.classes[classID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memClassRepo) ListCategories(ctx context.Context, classID string) ([]domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.categories[classID], nil
}

func (r *memClassRepo) ListGradeScale(ctx context.Context, classID string) ([]domain.GradeBand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scales[classID], nil
}

func (r *memClassRepo) CreateClass(ctx context.Context, c *domain.Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[c.ID]; ok {
		return &pgconn.PgError{Code: "23505", ConstraintName: identifier.ClassIDs.Constraint}
	}
	r.classes[c.ID] = *c
	return nil
}

func (r *memClassRepo) UpdateClass(ctx context.Context, c *domain.Class) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[c.ID]; !ok {
		return false, nil
	}
	r.classes[c.ID] = *c
	return true, nil
}

func (r *memClassRepo) CreateTerm(ctx context.Context, t *domain.Term) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.terms[t.ID]; ok {
		return &pgconn.PgError{Code: "23505", ConstraintName: identifier.TermIDs.Constraint}
	}
	r.terms[t.ID] = *t
	return nil
}

func (r *memClassRepo) DeleteTerm(ctx context.Context, termID, accountID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.terms[termID]
	if !ok || t.AccountID != accountID {
		return false, nil
	}
	delete(r.terms, termID)
	return true, nil
}

func (r *memClassRepo) Occurrences(ctx context.Context, scope identifier.Scope, value string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch scope.Table {
	case "classes":
		if _, ok := r.classes[value]; ok {
			return 1, nil
		}
	case "terms":
		if _, ok := r.terms[value]; ok {
			return 1, nil
		}
	}
	return 0, nil
}

// stagedTx buffers class inserts and applies them only when fn succeeds.
// Row locks taken through LockClass are held until the transaction ends.
type stagedTx struct {
	repo    *memClassRepo
	pending []domain.Class
	locks   []*sync.Mutex
}

func (s *stagedTx) release() {
	for _, l := range s.locks {
		l.Unlock()
	}
}

func (s *stagedTx) CreateClass(ctx context.Context, c *domain.Class) error {
	if cur, _ := s.repo.GetClass(ctx, c.ID); cur != nil {
		return &pgconn.PgError{Code: "23505", ConstraintName: identifier.ClassIDs.Constraint}
	}
	s.pending = append(s.pending, *c)
	return nil
}

type failingGrants struct {
	TxGrants
	err error
}

func (f failingGrants) Grant(ctx context.Context, accountID, classID string) error { return f.err }

type fixture struct {
	repo     *memClassRepo
	grants   *memstore.Grants
	registry *permissionservice.Registry
	grantErr error
	// txGrants, if set, wraps the grants every transaction sees.
	txGrants func(TxGrants) TxGrants
	svc      *GradebookService
}

func newFixture() *fixture {
	f := &fixture{repo: newMemClassRepo(), grants: memstore.NewGrants()}
	f.registry = permissionservice.NewRegistry(f.grants, nil, nil)
	inTx := func(ctx context.Context, fn func(TxScope) error) error {
		var grants TxGrants = f.registry
		if f.grantErr != nil {
			grants = failingGrants{TxGrants: f.registry, err: f.grantErr}
		}
		if f.txGrants != nil {
			grants = f.txGrants(grants)
		}
		tx := &stagedTx{repo: f.repo}
		defer tx.release()
		if err := fn(TxScope{Classes: txClasses{tx}, Grants: grants}); err != nil {
			return err
		}
		for _, c := range tx.pending {
			if err := f.repo.CreateClass(ctx, &c); err != nil {
				return err
			}
		}
		return nil
	}
	alloc := identifier.NewAllocator(nil, f.repo, 5, nil)
	f.svc = NewGradebookService(f.repo, f.registry, alloc, inTx, 16)
	return f
}

// txClasses exposes stagedTx as a ClassRepo; only CreateClass is used inside transactions.
type txClasses struct{ *stagedTx }

func (t txClasses) GetClass(ctx context.Context, id string) (*domain.Class, error) {
	return t.repo.GetClass(ctx, id)
}
func (t txClasses) ListCategories(ctx context.Context, id string) ([]domain.Category, error) {
	return t.repo.ListCategories(ctx, id)
}
func (t txClasses) ListGradeScale(ctx context.Context, id string) ([]domain.GradeBand, error) {
	return t.repo.ListGradeScale(ctx, id)
}
func (t txClasses) UpdateClass(ctx context.Context, c *domain.Class) (bool, error) {
	return t.repo.UpdateClass(ctx, c)
}
func (t txClasses) CreateTerm(ctx context.Context, term *domain.Term) error {
	return t.repo.CreateTerm(ctx, term)
}
func (t txClasses) DeleteTerm(ctx context.Context, termID, accountID string) (bool, error) {
	return t.repo.DeleteTerm(ctx, termID, accountID)
}
func (t txClasses) LockClass(ctx context.Context, classID string) (bool, error) {
	l := t.repo.rowLock(classID)
	l.Lock()
	t.locks = append(t.locks, l)
	c, err := t.repo.GetClass(ctx, classID)
	return c != nil, err
}

func (f *fixture) createClass(t *testing.T, accountID, name string) *domain.Class {
	t.Helper()
	c, err := f.svc.CreateClass(context.Background(), accountID, domain.Class{Name: name})
	if err != nil {
		t.Fatalf("CreateClass(%q): %v", name, err)
	}
	return c
}

func TestCreateClass_GrantsCreator(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	c, err := f.svc.CreateClass(ctx, "u1", domain.Class{Name: "  Algebra II ", Code: "MATH-201", Weight: 4})
	if err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	if len(c.ID) != 16 {
		t.Errorf("class id length = %d, want 16", len(c.ID))
	}
	if c.Name != "Algebra II" {
		t.Errorf("Name = %q, want trimmed", c.Name)
	}
	if n := f.grants.Count("u1", c.ID); n != 1 {
		t.Errorf("creator grants = %d, want 1", n)
	}

	stored, err := f.repo.GetClass(ctx, c.ID)
	if err != nil || stored == nil {
		t.Fatalf("stored class = %+v, %v", stored, err)
	}
	if stored.Code != "MATH-201" {
		t.Errorf("stored Code = %q", stored.Code)
	}
}

func TestCreateClass_GrantFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.grantErr = errors.New("grant insert failed")

	_, err := f.svc.CreateClass(context.Background(), "u1", domain.Class{Name: "Biology"})
	if !errors.Is(err, f.grantErr) {
		t.Errorf("err = %v, want wrapped %v", err, f.grantErr)
	}
	if len(f.repo.classes) != 0 {
		t.Errorf("class row outlived a failed grant: %v", f.repo.classes)
	}
}

func TestCreateClass_RequiresName(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.CreateClass(context.Background(), "u1", domain.Class{Name: "   "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestGetClasses_GrantOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var want []string
	for i := 0; i < 4; i++ {
		want = append(want, f.createClass(t, "u1", fmt.Sprintf("Class %d", i)).ID)
	}
	f.repo.categories[want[1]] = []domain.Category{{ID: "cat1", ClassID: want[1], Name: "Homework", Weight: 0.4}}
	f.repo.scales[want[1]] = []domain.GradeBand{{GradeID: "A", MinScore: 90, MaxScore: 100, Credit: 4}}
	f.createClass(t, "u2", "Not mine")

	got, err := f.svc.GetClasses(ctx, "u1")
	if err != nil {
		t.Fatalf("GetClasses: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("classes = %d, want 4", len(got))
	}
	for i, cd := range got {
		if cd.Class.ID != want[i] {
			t.Errorf("class %d = %s, want %s", i, cd.Class.ID, want[i])
		}
	}
	if len(got[1].Categories) != 1 || got[1].Categories[0].Name != "Homework" {
		t.Errorf("categories = %+v, want Homework", got[1].Categories)
	}
	if len(got[1].GradeScale) != 1 || got[1].GradeScale[0].GradeID != "A" {
		t.Errorf("grade scale = %+v, want A", got[1].GradeScale)
	}
}

func TestGetClasses_StorageError(t *testing.T) {
	f := newFixture()
	f.createClass(t, "u1", "History")
	f.repo.getErr = errors.New("timeout")

	if _, err := f.svc.GetClasses(context.Background(), "u1"); !errors.Is(err, f.repo.getErr) {
		t.Errorf("err = %v, want wrapped %v", err, f.repo.getErr)
	}
}

func TestModifyClass(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.createClass(t, "u1", "Chemistry")

	if err := f.svc.ModifyClass(ctx, domain.Class{ID: c.ID, Name: "Chemistry Honors", Color: 3}); err != nil {
		t.Fatalf("ModifyClass: %v", err)
	}
	stored, _ := f.repo.GetClass(ctx, c.ID)
	if stored.Name != "Chemistry Honors" || stored.Color != 3 {
		t.Errorf("stored = %+v, want renamed with color 3", stored)
	}

	if err := f.svc.ModifyClass(ctx, domain.Class{ID: "missing", Name: "x"}); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("missing class: err = %v, want ErrClassNotFound", err)
	}
	if err := f.svc.ModifyClass(ctx, domain.Class{ID: c.ID}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank name: err = %v, want ErrInvalidInput", err)
	}
}

func TestShareAndUnshareClass(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.createClass(t, "u1", "Physics")

	for i := 0; i < 2; i++ {
		if err := f.svc.ShareClass(ctx, c.ID, "u2"); err != nil {
			t.Fatalf("ShareClass #%d: %v", i+1, err)
		}
	}
	if n := f.grants.Count("u2", c.ID); n != 1 {
		t.Errorf("u2 grants = %d, want 1", n)
	}

	if err := f.svc.UnshareClass(ctx, c.ID, "u1"); err != nil {
		t.Fatalf("UnshareClass(u1): %v", err)
	}
	if n := f.grants.Count("u1", c.ID); n != 0 {
		t.Errorf("u1 grants = %d, want 0", n)
	}

	if err := f.svc.UnshareClass(ctx, c.ID, "u2"); !errors.Is(err, ErrLastEditor) {
		t.Errorf("last editor: err = %v, want ErrLastEditor", err)
	}
	if err := f.svc.UnshareClass(ctx, c.ID, "stranger"); err != nil {
		t.Errorf("non-editor: err = %v, want nil", err)
	}
}

// lingeringGrants holds each caller after it reads the editor list until a
// second caller has read it too, or until patience runs out.
type lingeringGrants struct {
	TxGrants
	readers  *atomic.Int32
	patience time.Duration
}

func (g lingeringGrants) ListEditors(ctx context.Context, classID string) ([]*permissiondomain.Grant, error) {
	editors, err := g.TxGrants.ListEditors(ctx, classID)
	g.readers.Add(1)
	deadline := time.Now().Add(g.patience)
	for g.readers.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return editors, err
}

func TestUnshareClass_ConcurrentKeepsOneEditor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.createClass(t, "u1", "Chemistry")
	if err := f.svc.ShareClass(ctx, c.ID, "u2"); err != nil {
		t.Fatalf("ShareClass: %v", err)
	}

	var readers atomic.Int32
	f.txGrants = func(g TxGrants) TxGrants {
		return lingeringGrants{TxGrants: g, readers: &readers, patience: 100 * time.Millisecond}
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, target := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			errs[i] = f.svc.UnshareClass(ctx, c.ID, target)
		}(i, target)
	}
	wg.Wait()

	editors, err := f.registry.ListEditors(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListEditors: %v", err)
	}
	if len(editors) != 1 {
		t.Errorf("editors left = %d, want 1", len(editors))
	}

	lastEditor := 0
	for i, err := range errs {
		switch {
		case errors.Is(err, ErrLastEditor):
			lastEditor++
		case err != nil:
			t.Errorf("unshare %d: %v", i, err)
		}
	}
	if lastEditor != 1 {
		t.Errorf("ErrLastEditor returned %d times, want 1", lastEditor)
	}
}

func TestShareClass_UnknownAccount(t *testing.T) {
	f := newFixture()
	fk := &pgconn.PgError{Code: "23503", ConstraintName: grantAccountFK}
	svc := NewGradebookService(f.repo, fkPerms{Permissions: f.registry, err: fk}, nil, nil, 16)
	if err := svc.ShareClass(context.Background(), "c1", "ghost"); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("err = %v, want ErrUnknownAccount", err)
	}
}

type fkPerms struct {
	Permissions
	err error
}

func (p fkPerms) Grant(ctx context.Context, accountID, classID string) error {
	return fmt.Errorf("grant: %w", p.err)
}

func TestTerms(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	term, err := f.svc.CreateTerm(ctx, "u1", domain.Term{Title: "Fall 2026", StartDate: 1, EndDate: 2})
	if err != nil {
		t.Fatalf("CreateTerm: %v", err)
	}
	if len(term.ID) != 16 || term.AccountID != "u1" {
		t.Errorf("term = %+v, want 16-char id owned by u1", term)
	}

	if _, err := f.svc.CreateTerm(ctx, "u1", domain.Term{Title: "Backwards", StartDate: 5, EndDate: 2}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("backwards term: err = %v, want ErrInvalidInput", err)
	}

	if deleted, err := f.svc.DeleteTerm(ctx, "u2", term.ID); err != nil || deleted {
		t.Errorf("DeleteTerm by u2 = %v, %v; another account's term must not be deleted", deleted, err)
	}
	if deleted, err := f.svc.DeleteTerm(ctx, "u1", term.ID); err != nil || !deleted {
		t.Errorf("DeleteTerm by owner = %v, %v; want true", deleted, err)
	}
}
