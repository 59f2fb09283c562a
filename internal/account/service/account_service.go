// Package service registers accounts and exchanges credentials for session tokens.
package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/noahsadir/courseman/internal/account/domain"
	"github.com/noahsadir/courseman/internal/account/repository"
	"github.com/noahsadir/courseman/internal/db"
	"github.com/noahsadir/courseman/internal/identifier"
	"github.com/noahsadir/courseman/internal/logging"
	"github.com/noahsadir/courseman/internal/oops"
	"github.com/noahsadir/courseman/internal/security"
	sessiondomain "github.com/noahsadir/courseman/internal/session/domain"
	"github.com/noahsadir/courseman/internal/telemetry"
)

// Sentinel errors for the account service; the HTTP handler maps them to status codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
)

// ValidationError reports malformed registration input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// AccountRepo is the minimal account repository needed by the account service.
type AccountRepo interface {
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
}

// IDAllocator mints an account id and persists the account in one step.
type IDAllocator interface {
	AllocateAndInsert(ctx context.Context, scope identifier.Scope, length int, insert identifier.InsertFunc) (string, error)
}

// SessionIssuer is the part of the token service used on login and logout.
type SessionIssuer interface {
	IssueIdempotent(ctx context.Context, accountID, requestID string) (*sessiondomain.Session, error)
	Revoke(ctx context.Context, accountID string) error
}

// AccountService implements register, authenticate and logout.
type AccountService struct {
	repo     AccountRepo
	alloc    IDAllocator
	sessions SessionIssuer
	hasher   *security.Hasher
	idLength int
	emitter  telemetry.EventEmitter
	nowF     func() time.Time
}

// NewAccountService returns an AccountService with the given dependencies. emitter may be nil.
func NewAccountService(
	repo AccountRepo,
	alloc IDAllocator,
	sessions SessionIssuer,
	hasher *security.Hasher,
	idLength int,
	emitter telemetry.EventEmitter,
) *AccountService {
	if emitter == nil {
		emitter = telemetry.NopEmitter{}
	}
	return &AccountService{
		repo:     repo,
		alloc:    alloc,
		sessions: sessions,
		hasher:   hasher,
		idLength: idLength,
		emitter:  emitter,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account for email and password and returns it.
// The account's internal id is allocated against the accounts table.
func (s *AccountService) Register(ctx context.Context, email, password string) (*domain.Account, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, oops.New(err, "failed to look up account by email")
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, oops.New(err, "failed to hash password")
	}
	acct := &domain.Account{
		Email:        email,
		PasswordHash: hashed,
		CreatedAt:    s.nowF(),
	}
	_, err = s.alloc.AllocateAndInsert(ctx, identifier.AccountIDs, s.idLength, func(ctx context.Context, id string) error {
		acct.InternalID = id
		if err := acct.Validate(); err != nil {
			return &ValidationError{Reason: err.Error()}
		}
		return s.repo.Create(ctx, acct)
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		if db.IsUniqueViolation(err, repository.EmailConstraint) {
			return nil, ErrEmailAlreadyRegistered
		}
		if errors.Is(err, identifier.ErrAllocationExhausted) {
			return nil, err
		}
		return nil, oops.New(err, "failed to create account")
	}

	telemetry.EmitAsync(s.emitter, ctx, &telemetry.Event{
		Type:      telemetry.EventAccountRegistered,
		AccountID: acct.InternalID,
		Source:    "account",
	})
	return acct, nil
}

// Authenticate checks email and password and issues the account's session
// token. requestID, when set, makes a retried login return the same token.
func (s *AccountService) Authenticate(ctx context.Context, email, password, requestID string) (*sessiondomain.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	acct, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, oops.New(err, "failed to look up account by email")
	}
	if acct == nil {
		_ = s.hasher.CompareDummy([]byte(password))
		s.loginFailed(ctx, "", "unknown_email")
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(acct.PasswordHash, []byte(password)); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			logging.ExtractLogger(ctx).Error().Err(err).Str("internal_id", acct.InternalID).Msg("stored password hash is unusable")
		}
		s.loginFailed(ctx, acct.InternalID, "wrong_password")
		return nil, ErrInvalidCredentials
	}
	return s.sessions.IssueIdempotent(ctx, acct.InternalID, requestID)
}

// Logout revokes the account's session.
func (s *AccountService) Logout(ctx context.Context, accountID string) error {
	return s.sessions.Revoke(ctx, accountID)
}

func (s *AccountService) loginFailed(ctx context.Context, accountID, reason string) {
	telemetry.EmitAsync(s.emitter, ctx, &telemetry.Event{
		Type:      telemetry.EventLoginFailed,
		AccountID: accountID,
		Source:    "account",
		Attrs:     map[string]string{"reason": reason},
	})
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

var simpleEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Reason: "email is required"}
	}
	if len(email) > 320 || !simpleEmail.MatchString(email) {
		return &ValidationError{Reason: "invalid email format"}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return &ValidationError{Reason: "password must be at least 12 characters"}
	}
	if len(password) > 72 {
		return &ValidationError{Reason: "password must be at most 72 bytes"}
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return &ValidationError{Reason: "password must contain at least one uppercase letter"}
	}
	if !hasLower {
		return &ValidationError{Reason: "password must contain at least one lowercase letter"}
	}
	if !hasNumber {
		return &ValidationError{Reason: "password must contain at least one number"}
	}
	if !hasSymbol {
		return &ValidationError{Reason: "password must contain at least one symbol"}
	}
	return nil
}
