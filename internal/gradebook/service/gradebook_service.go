// Package service implements the gradebook operations that sit behind the
// session and edit-permission checks.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noahsadir/courseman/internal/db"
	"github.com/noahsadir/courseman/internal/gradebook/domain"
	"github.com/noahsadir/courseman/internal/identifier"
	"github.com/noahsadir/courseman/internal/logging"
	"github.com/noahsadir/courseman/internal/oops"
	permissiondomain "github.com/noahsadir/courseman/internal/permission/domain"
)

// grantAccountFK is the foreign key from edit_permissions to accounts.
const grantAccountFK = "edit_permissions_internal_id_fkey"

// Sentinel errors; the HTTP handler maps them to status codes.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrClassNotFound  = errors.New("class not found")
	ErrUnknownAccount = errors.New("account does not exist")
	ErrLastEditor     = errors.New("class must keep at least one editor")
)

// ClassRepo is the minimal gradebook repository needed by the service.
type ClassRepo interface {
	GetClass(ctx context.Context, classID string) (*domain.Class, error)
	ListCategories(ctx context.Context, classID string) ([]domain.Category, error)
	ListGradeScale(ctx context.Context, classID string) ([]domain.GradeBand, error)
	CreateClass(ctx context.Context, c *domain.Class) error
	UpdateClass(ctx context.Context, c *domain.Class) (bool, error)
	CreateTerm(ctx context.Context, t *domain.Term) error
	DeleteTerm(ctx context.Context, termID, accountID string) (bool, error)
	// LockClass locks the class row until the surrounding transaction ends and reports whether it exists.
	LockClass(ctx context.Context, classID string) (bool, error)
}

// Permissions is the part of the permission registry the gradebook uses.
type Permissions interface {
	ListClassesFor(ctx context.Context, accountID string) ([]string, error)
	Grant(ctx context.Context, accountID, classID string) error
}

// TxGrants is the grant access a transaction needs.
type TxGrants interface {
	Grant(ctx context.Context, accountID, classID string) error
	Revoke(ctx context.Context, accountID, classID string) error
	ListEditors(ctx context.Context, classID string) ([]*permissiondomain.Grant, error)
}

// IDAllocator mints an id and persists the row that uses it in one step.
type IDAllocator interface {
	AllocateAndInsert(ctx context.Context, scope identifier.Scope, length int, insert identifier.InsertFunc) (string, error)
}

// TxScope holds repositories bound to a single transaction.
type TxScope struct {
	Classes ClassRepo
	Grants  TxGrants
}

// Transactor runs fn in one transaction; fn's error rolls it back and is returned unchanged.
type Transactor func(ctx context.Context, fn func(TxScope) error) error

// GradebookService implements the class and term operations.
type GradebookService struct {
	repo     ClassRepo
	perms    Permissions
	alloc    IDAllocator
	inTx     Transactor
	idLength int
}

// NewGradebookService returns a GradebookService with the given dependencies.
func NewGradebookService(repo ClassRepo, perms Permissions, alloc IDAllocator, inTx Transactor, idLength int) *GradebookService {
	return &GradebookService{repo: repo, perms: perms, alloc: alloc, inTx: inTx, idLength: idLength}
}

// GetClasses loads every class accountID holds a grant for, with its
// categories and grade scale. Classes come back in grant order.
func (s *GradebookService) GetClasses(ctx context.Context, accountID string) ([]domain.ClassData, error) {
	ids, err := s.perms.ListClassesFor(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ClassData, 0, len(ids))
	for _, id := range ids {
		data, err := s.loadClass(ctx, id)
		if err != nil {
			return nil, err
		}
		if data == nil {
			logging.ExtractLogger(ctx).Warn().Str("class_id", id).Msg("grant references a missing class")
			continue
		}
		out = append(out, *data)
	}
	return out, nil
}

func (s *GradebookService) loadClass(ctx context.Context, classID string) (*domain.ClassData, error) {
	c, err := s.repo.GetClass(ctx, classID)
	if err != nil {
		return nil, oops.New(err, "failed to load class %s", classID)
	}
	if c == nil {
		return nil, nil
	}
	cats, err := s.repo.ListCategories(ctx, classID)
	if err != nil {
		return nil, oops.New(err, "failed to load categories of class %s", classID)
	}
	scale, err := s.repo.ListGradeScale(ctx, classID)
	if err != nil {
		return nil, oops.New(err, "failed to load grade scale of class %s", classID)
	}
	return &domain.ClassData{Class: *c, Categories: cats, GradeScale: scale}, nil
}

// CreateClass inserts the class under a freshly allocated class id and
// grants accountID edit rights on it, both in one transaction.
func (s *GradebookService) CreateClass(ctx context.Context, accountID string, c domain.Class) (*domain.Class, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, fmt.Errorf("%w: class name is required", ErrInvalidInput)
	}
	_, err := s.alloc.AllocateAndInsert(ctx, identifier.ClassIDs, s.idLength, func(ctx context.Context, id string) error {
		c.ID = id
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return s.inTx(ctx, func(tx TxScope) error {
			if err := tx.Classes.CreateClass(ctx, &c); err != nil {
				return err
			}
			return tx.Grants.Grant(ctx, accountID, id)
		})
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) || errors.Is(err, identifier.ErrAllocationExhausted) {
			return nil, err
		}
		return nil, oops.New(err, "failed to create class")
	}
	return &c, nil
}

// ModifyClass overwrites the class's attributes. The caller must already hold an edit grant.
func (s *GradebookService) ModifyClass(ctx context.Context, c domain.Class) error {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ok, err := s.repo.UpdateClass(ctx, &c)
	if err != nil {
		return oops.New(err, "failed to update class")
	}
	if !ok {
		return ErrClassNotFound
	}
	return nil
}

// ShareClass grants targetID edit rights on classID. The caller must already hold an edit grant.
func (s *GradebookService) ShareClass(ctx context.Context, classID, targetID string) error {
	err := s.perms.Grant(ctx, targetID, classID)
	if db.IsForeignKeyViolation(err, grantAccountFK) {
		return ErrUnknownAccount
	}
	return err
}

// UnshareClass revokes targetID's edit rights on classID. The last editor
// of a class cannot be removed. The class row stays locked from the editor
// count until the revoke commits, so concurrent unshares of the same class
// run one after another.
func (s *GradebookService) UnshareClass(ctx context.Context, classID, targetID string) error {
	return s.inTx(ctx, func(tx TxScope) error {
		if _, err := tx.Classes.LockClass(ctx, classID); err != nil {
			return oops.New(err, "failed to lock class %s", classID)
		}
		editors, err := tx.Grants.ListEditors(ctx, classID)
		if err != nil {
			return err
		}
		held := false
		for _, g := range editors {
			if g.AccountID == targetID {
				held = true
				break
			}
		}
		if !held {
			return nil
		}
		if len(editors) == 1 {
			return ErrLastEditor
		}
		return tx.Grants.Revoke(ctx, targetID, classID)
	})
}

// CreateTerm inserts a term owned by accountID under a freshly allocated term id.
func (s *GradebookService) CreateTerm(ctx context.Context, accountID string, t domain.Term) (*domain.Term, error) {
	t.AccountID = accountID
	t.Title = strings.TrimSpace(t.Title)
	_, err := s.alloc.AllocateAndInsert(ctx, identifier.TermIDs, s.idLength, func(ctx context.Context, id string) error {
		t.ID = id
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return s.repo.CreateTerm(ctx, &t)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) || errors.Is(err, identifier.ErrAllocationExhausted) {
			return nil, err
		}
		return nil, oops.New(err, "failed to create term")
	}
	return &t, nil
}

// DeleteTerm deletes termID if accountID owns it. Deleting a term that is
// missing or owned by someone else changes nothing and reports false.
func (s *GradebookService) DeleteTerm(ctx context.Context, accountID, termID string) (bool, error) {
	deleted, err := s.repo.DeleteTerm(ctx, termID, accountID)
	if err != nil {
		return false, oops.New(err, "failed to delete term")
	}
	return deleted, nil
}
