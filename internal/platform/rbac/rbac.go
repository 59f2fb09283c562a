// Package rbac is the gate every gradebook handler passes through before it
// touches data: token verification first, then the per-class edit grant.
package rbac

import (
	"context"
	"strings"

	permissiondomain "github.com/noahsadir/courseman/internal/permission/domain"
	"github.com/noahsadir/courseman/internal/platform/respond"
	sessiondomain "github.com/noahsadir/courseman/internal/session/domain"
)

// TokenVerifier verifies a claimed session token.
type TokenVerifier interface {
	Verify(ctx context.Context, accountID, token string) (sessiondomain.Outcome, error)
}

// EditChecker answers whether an account may edit a class.
type EditChecker interface {
	Check(ctx context.Context, accountID, classID string) (permissiondomain.Decision, error)
}

// Present reports whether every value is non-blank.
func Present(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// RequireSession returns nil when token is the account's live token.
// Otherwise it returns a *respond.Failure describing the denial or fault.
func RequireSession(ctx context.Context, verifier TokenVerifier, accountID, token string) error {
	if !Present(accountID, token) {
		return respond.MissingArgs()
	}
	if f := respond.FromOutcome(verifier.Verify(ctx, accountID, token)); f != nil {
		return f
	}
	return nil
}

// RequireClassEditor returns nil when the account holds an edit grant on the class.
// Otherwise it returns a *respond.Failure. Call it only after RequireSession.
func RequireClassEditor(ctx context.Context, checker EditChecker, accountID, classID string) error {
	if !Present(accountID, classID) {
		return respond.MissingArgs()
	}
	if f := respond.FromDecision(checker.Check(ctx, accountID, classID)); f != nil {
		return f
	}
	return nil
}

// RequireEditSession runs RequireSession then RequireClassEditor.
func RequireEditSession(ctx context.Context, verifier TokenVerifier, checker EditChecker, accountID, token, classID string) error {
	if !Present(accountID, token, classID) {
		return respond.MissingArgs()
	}
	if err := RequireSession(ctx, verifier, accountID, token); err != nil {
		return err
	}
	return RequireClassEditor(ctx, checker, accountID, classID)
}
