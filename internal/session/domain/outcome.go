package domain

// Outcome is the result of verifying a claimed token for an account.
// The zero value is not a valid outcome.
type Outcome int

const (
	// Valid means a session exists, the token matches and it has not expired.
	Valid Outcome = iota + 1
	// NoTokenIssued means the account has no session (never authenticated or logged out).
	NoTokenIssued
	// InvalidToken means a session exists but holds a different token.
	InvalidToken
	// TokenExpired means the token matches but the session has expired.
	TokenExpired
	// StorageFailure means the lookup itself failed.
	StorageFailure
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case NoTokenIssued:
		return "no_token_issued"
	case InvalidToken:
		return "invalid_token"
	case TokenExpired:
		return "token_expired"
	case StorageFailure:
		return "storage_failure"
	}
	return "unknown"
}
