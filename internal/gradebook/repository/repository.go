package repository

import (
	"context"

	"github.com/noahsadir/courseman/internal/gradebook/domain"
)

// Repository defines persistence for classes, their categories and grade scales, and terms.
type Repository interface {
	GetClass(ctx context.Context, classID string) (*domain.Class, error)
	ListCategories(ctx context.Context, classID string) ([]domain.Category, error)
	ListGradeScale(ctx context.Context, classID string) ([]domain.GradeBand, error)
	CreateClass(ctx context.Context, c *domain.Class) error
	UpdateClass(ctx context.Context, c *domain.Class) (bool, error)
	CreateTerm(ctx context.Context, t *domain.Term) error
	DeleteTerm(ctx context.Context, termID, accountID string) (bool, error)
	LockClass(ctx context.Context, classID string) (bool, error)
}
