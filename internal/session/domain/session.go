package domain

import "time"

// Session is the single live token held by an account. Issuing a new token replaces it.
type Session struct {
	AccountID string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RequestID string // client-supplied idempotency key of the issuing request; empty if none
}

// ExpiredAt reports whether the session is no longer usable at now.
// A session is expired once now reaches ExpiresAt.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
