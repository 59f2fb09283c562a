// Package service issues, verifies and revokes session tokens.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noahsadir/courseman/internal/identifier"
	"github.com/noahsadir/courseman/internal/logging"
	"github.com/noahsadir/courseman/internal/oops"
	"github.com/noahsadir/courseman/internal/session/domain"
	"github.com/noahsadir/courseman/internal/telemetry"
	"github.com/noahsadir/courseman/internal/telemetry/metrics"
)

// ErrEmptyAccountID is returned when issuing or revoking without an account.
var ErrEmptyAccountID = errors.New("session: account id is required")

// SessionRepo is the minimal session repository needed by the token service.
type SessionRepo interface {
	GetByAccount(ctx context.Context, accountID string) (*domain.Session, error)
	Upsert(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, accountID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenAllocator mints a token and persists it in one step, retrying on a unique-token collision.
type TokenAllocator interface {
	AllocateAndInsert(ctx context.Context, scope identifier.Scope, length int, insert identifier.InsertFunc) (string, error)
}

// TokenService is the token store and verifier: one live session per account.
type TokenService struct {
	repo        SessionRepo
	alloc       TokenAllocator
	ttl         time.Duration
	tokenLength int
	metrics     *metrics.Registry
	emitter     telemetry.EventEmitter
	tracer      trace.Tracer
	nowF        func() time.Time
}

// NewTokenService returns a TokenService. m and emitter may be nil.
func NewTokenService(
	repo SessionRepo,
	alloc TokenAllocator,
	ttl time.Duration,
	tokenLength int,
	m *metrics.Registry,
	emitter telemetry.EventEmitter,
) *TokenService {
	if emitter == nil {
		emitter = telemetry.NopEmitter{}
	}
	return &TokenService{
		repo:        repo,
		alloc:       alloc,
		ttl:         ttl,
		tokenLength: tokenLength,
		metrics:     m,
		emitter:     emitter,
		tracer:      otel.Tracer("github.com/noahsadir/courseman/internal/session"),
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue mints a fresh token for accountID and replaces any previous session.
func (s *TokenService) Issue(ctx context.Context, accountID string) (*domain.Session, error) {
	return s.issue(ctx, accountID, "")
}

// IssueIdempotent behaves like Issue, except that a retry carrying the same
// requestID gets back the session the first attempt created, as long as it is
// still the account's live session. An empty requestID is a plain Issue.
func (s *TokenService) IssueIdempotent(ctx context.Context, accountID, requestID string) (*domain.Session, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return s.Issue(ctx, accountID)
	}
	if accountID == "" {
		return nil, ErrEmptyAccountID
	}
	existing, err := s.repo.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, oops.New(err, "failed to load session for idempotent issue")
	}
	if existing != nil && existing.RequestID == requestID && !existing.ExpiredAt(s.nowF()) {
		return existing, nil
	}
	return s.issue(ctx, accountID, requestID)
}

func (s *TokenService) issue(ctx context.Context, accountID, requestID string) (*domain.Session, error) {
	if accountID == "" {
		return nil, ErrEmptyAccountID
	}
	ctx, span := s.tracer.Start(ctx, "session.Issue", trace.WithAttributes(attribute.String("account_id", accountID)))
	defer span.End()

	now := s.nowF()
	sess := &domain.Session{
		AccountID: accountID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
		RequestID: requestID,
	}
	_, err := s.alloc.AllocateAndInsert(ctx, identifier.SessionTokens, s.tokenLength, func(ctx context.Context, token string) error {
		sess.Token = token
		return s.repo.Upsert(ctx, sess)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue failed")
		if errors.Is(err, identifier.ErrAllocationExhausted) {
			return nil, err
		}
		return nil, oops.New(err, "failed to issue session token")
	}

	telemetry.EmitAsync(s.emitter, ctx, &telemetry.Event{
		Type:      telemetry.EventTokenIssued,
		AccountID: accountID,
		RequestID: requestID,
		Source:    "session",
		Attrs:     map[string]string{"expires_at": sess.ExpiresAt.Format(time.RFC3339)},
	})
	return sess, nil
}

// Verify checks claimedToken against the account's session. It never
// modifies the session. A non-nil error accompanies StorageFailure only.
func (s *TokenService) Verify(ctx context.Context, accountID, claimedToken string) (domain.Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "session.Verify", trace.WithAttributes(attribute.String("account_id", accountID)))
	defer span.End()

	outcome, err := s.verify(ctx, accountID, claimedToken)
	span.SetAttributes(attribute.String("outcome", outcome.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session lookup failed")
	}
	s.metrics.VerifyOutcome(outcome.String())
	return outcome, err
}

func (s *TokenService) verify(ctx context.Context, accountID, claimedToken string) (domain.Outcome, error) {
	sess, err := s.repo.GetByAccount(ctx, accountID)
	if err != nil {
		return domain.StorageFailure, oops.New(err, "failed to load session")
	}
	if sess == nil {
		return domain.NoTokenIssued, nil
	}
	if subtle.ConstantTimeCompare([]byte(sess.Token), []byte(claimedToken)) != 1 {
		return domain.InvalidToken, nil
	}
	if sess.ExpiredAt(s.nowF()) {
		return domain.TokenExpired, nil
	}
	return domain.Valid, nil
}

// Revoke deletes the account's session. Revoking an account without a session is not an error.
func (s *TokenService) Revoke(ctx context.Context, accountID string) error {
	if accountID == "" {
		return ErrEmptyAccountID
	}
	if err := s.repo.Delete(ctx, accountID); err != nil {
		return oops.New(err, "failed to revoke session")
	}
	telemetry.EmitAsync(s.emitter, ctx, &telemetry.Event{
		Type:      telemetry.EventTokenRevoked,
		AccountID: accountID,
		Source:    "session",
	})
	return nil
}

// DeleteExpired removes every session that has expired as of now.
func (s *TokenService) DeleteExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.nowF())
	if err != nil {
		return 0, oops.New(err, "failed to delete expired sessions")
	}
	s.metrics.SessionsSwept(n)
	if n > 0 {
		logging.ExtractLogger(ctx).Info().Int64("num deleted sessions", n).Msg("Deleted expired sessions")
	}
	return n, nil
}
