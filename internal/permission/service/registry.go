// Package service answers whether an account may edit a class and manages the grants behind that answer.
package service

import (
	"context"
	"errors"

	"github.com/noahsadir/courseman/internal/oops"
	"github.com/noahsadir/courseman/internal/permission/domain"
	"github.com/noahsadir/courseman/internal/telemetry"
	"github.com/noahsadir/courseman/internal/telemetry/metrics"
)

// ErrMissingIDs is returned when a grant mutation names no account or class.
var ErrMissingIDs = errors.New("permission: account id and class id are required")

// GrantRepo is the minimal grant repository needed by the registry.
type GrantRepo interface {
	Grant(ctx context.Context, accountID, classID string) error
	Revoke(ctx context.Context, accountID, classID string) error
	Exists(ctx context.Context, accountID, classID string) (bool, error)
	ListClassIDs(ctx context.Context, accountID string) ([]string, error)
	ListGrants(ctx context.Context, classID string) ([]*domain.Grant, error)
}

// Registry is the edit permission registry.
type Registry struct {
	repo    GrantRepo
	metrics *metrics.Registry
	emitter telemetry.EventEmitter
}

// NewRegistry returns a Registry. m and emitter may be nil.
func NewRegistry(repo GrantRepo, m *metrics.Registry, emitter telemetry.EventEmitter) *Registry {
	if emitter == nil {
		emitter = telemetry.NopEmitter{}
	}
	return &Registry{repo: repo, metrics: m, emitter: emitter}
}

// WithRepo returns a copy of the registry bound to repo, e.g. a transaction-scoped repository.
func (r *Registry) WithRepo(repo GrantRepo) *Registry {
	cp := *r
	cp.repo = repo
	return &cp
}

// Check reports whether accountID may edit classID. An unknown class and a
// class granted only to others both yield Denied. A non-nil error
// accompanies StorageFailure only.
func (r *Registry) Check(ctx context.Context, accountID, classID string) (domain.Decision, error) {
	decision, err := r.check(ctx, accountID, classID)
	r.metrics.PermissionDecision(decision.String())
	return decision, err
}

func (r *Registry) check(ctx context.Context, accountID, classID string) (domain.Decision, error) {
	if accountID == "" || classID == "" {
		return domain.Denied, nil
	}
	ok, err := r.repo.Exists(ctx, accountID, classID)
	if err != nil {
		return domain.StorageFailure, oops.New(err, "failed to check edit permission")
	}
	if !ok {
		return domain.Denied, nil
	}
	return domain.Granted, nil
}

// Grant gives accountID edit rights on classID. Granting twice is a no-op.
func (r *Registry) Grant(ctx context.Context, accountID, classID string) error {
	if accountID == "" || classID == "" {
		return ErrMissingIDs
	}
	if err := r.repo.Grant(ctx, accountID, classID); err != nil {
		return oops.New(err, "failed to grant edit permission")
	}
	telemetry.EmitAsync(r.emitter, ctx, &telemetry.Event{
		Type:      telemetry.EventGrantAdded,
		AccountID: accountID,
		ClassID:   classID,
		Source:    "permission",
	})
	return nil
}

// Revoke removes accountID's edit rights on classID. Revoking a missing grant is a no-op.
func (r *Registry) Revoke(ctx context.Context, accountID, classID string) error {
	if accountID == "" || classID == "" {
		return ErrMissingIDs
	}
	if err := r.repo.Revoke(ctx, accountID, classID); err != nil {
		return oops.New(err, "failed to revoke edit permission")
	}
	telemetry.EmitAsync(r.emitter, ctx, &telemetry.Event{
		Type:      telemetry.EventGrantRemoved,
		AccountID: accountID,
		ClassID:   classID,
		Source:    "permission",
	})
	return nil
}

// ListClassesFor returns the classes accountID holds grants for, in grant order.
// The same grants decide visibility on read paths.
func (r *Registry) ListClassesFor(ctx context.Context, accountID string) ([]string, error) {
	ids, err := r.repo.ListClassIDs(ctx, accountID)
	if err != nil {
		return nil, oops.New(err, "failed to list classes for account")
	}
	return ids, nil
}

// ListEditors returns every grant on classID, in grant order.
func (r *Registry) ListEditors(ctx context.Context, classID string) ([]*domain.Grant, error) {
	grants, err := r.repo.ListGrants(ctx, classID)
	if err != nil {
		return nil, oops.New(err, "failed to list editors for class")
	}
	return grants, nil
}
