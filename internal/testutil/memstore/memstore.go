// Package memstore provides in-memory session and grant tables for tests that
// wire the real token service and permission registry together.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noahsadir/courseman/internal/identifier"
	permissiondomain "github.com/noahsadir/courseman/internal/permission/domain"
	sessiondomain "github.com/noahsadir/courseman/internal/session/domain"
)

// Sessions is a sessions table keyed by account with a unique token index.
// It also answers uniqueness checks for identifier.SessionTokens.
type Sessions struct {
	mu sync.Mutex
	m  map[string]sessiondomain.Session
}

func NewSessions() *Sessions {
	return &Sessions{m: make(map[string]sessiondomain.Session)}
}

func (s *Sessions) GetByAccount(ctx context.Context, accountID string) (*sessiondomain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[accountID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *Sessions) Upsert(ctx context.Context, sess *sessiondomain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for acct, other := range s.m {
		if acct != sess.AccountID && other.Token == sess.Token {
			return &pgconn.PgError{Code: "23505", ConstraintName: identifier.SessionTokens.Constraint}
		}
	}
	s.m[sess.AccountID] = *sess
	return nil
}

func (s *Sessions) Delete(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, accountID)
	return nil
}

func (s *Sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for acct, sess := range s.m {
		if sess.ExpiredAt(now) {
			delete(s.m, acct)
			n++
		}
	}
	return n, nil
}

func (s *Sessions) Occurrences(ctx context.Context, scope identifier.Scope, value string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.m {
		if sess.Token == value {
			n++
		}
	}
	return n, nil
}

// Grants is an edit_permissions table keyed by (account, class).
type Grants struct {
	mu     sync.Mutex
	grants map[[2]string]time.Time
	seq    int64
}

func NewGrants() *Grants {
	return &Grants{grants: make(map[[2]string]time.Time)}
}

func (g *Grants) Grant(ctx context.Context, accountID, classID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := [2]string{accountID, classID}
	if _, ok := g.grants[key]; ok {
		return nil
	}
	g.seq++
	g.grants[key] = time.Unix(g.seq, 0).UTC()
	return nil
}

func (g *Grants) Revoke(ctx context.Context, accountID, classID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.grants, [2]string{accountID, classID})
	return nil
}

func (g *Grants) Exists(ctx context.Context, accountID, classID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.grants[[2]string{accountID, classID}]
	return ok, nil
}

func (g *Grants) ListClassIDs(ctx context.Context, accountID string) ([]string, error) {
	var ids []string
	for _, gr := range g.list(func(k [2]string) bool { return k[0] == accountID }) {
		ids = append(ids, gr.ClassID)
	}
	return ids, nil
}

func (g *Grants) ListGrants(ctx context.Context, classID string) ([]*permissiondomain.Grant, error) {
	return g.list(func(k [2]string) bool { return k[1] == classID }), nil
}

// Count returns the number of grant rows for (accountID, classID): 0 or 1.
func (g *Grants) Count(accountID, classID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.grants[[2]string{accountID, classID}]; ok {
		return 1
	}
	return 0
}

func (g *Grants) list(match func([2]string) bool) []*permissiondomain.Grant {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*permissiondomain.Grant
	for k, at := range g.grants {
		if match(k) {
			out = append(out, &permissiondomain.Grant{AccountID: k[0], ClassID: k[1], GrantedAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out
}
