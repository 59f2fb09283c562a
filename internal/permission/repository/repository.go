package repository

import (
	"context"

	"github.com/noahsadir/courseman/internal/permission/domain"
)

// Repository defines persistence for edit permission grants.
type Repository interface {
	Grant(ctx context.Context, accountID, classID string) error
	Revoke(ctx context.Context, accountID, classID string) error
	Exists(ctx context.Context, accountID, classID string) (bool, error)
	ListClassIDs(ctx context.Context, accountID string) ([]string, error)
	ListGrants(ctx context.Context, classID string) ([]*domain.Grant, error)
}
