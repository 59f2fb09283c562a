package domain

import (
	"testing"
	"time"
)

func TestSession_ExpiredAt(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &Session{ExpiresAt: exp}

	if s.ExpiredAt(exp.Add(-time.Nanosecond)) {
		t.Error("session should be live just before expires_at")
	}
	if !s.ExpiredAt(exp) {
		t.Error("session should be expired exactly at expires_at")
	}
	if !s.ExpiredAt(exp.Add(time.Hour)) {
		t.Error("session should be expired after expires_at")
	}
}

func TestOutcome_String(t *testing.T) {
	testCases := []struct {
		o    Outcome
		want string
	}{
		{Valid, "valid"},
		{NoTokenIssued, "no_token_issued"},
		{InvalidToken, "invalid_token"},
		{TokenExpired, "token_expired"},
		{StorageFailure, "storage_failure"},
		{Outcome(0), "unknown"},
		{Outcome(42), "unknown"},
	}
	for _, tc := range testCases {
		if got := tc.o.String(); got != tc.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(tc.o), got, tc.want)
		}
	}
}
