package repository

import (
	"context"
	"time"

	"github.com/noahsadir/courseman/internal/session/domain"
)

// Repository defines persistence for sessions, one row per account.
type Repository interface {
	GetByAccount(ctx context.Context, accountID string) (*domain.Session, error)
	Upsert(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, accountID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
