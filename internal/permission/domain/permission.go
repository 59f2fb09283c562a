package domain

import "time"

// Grant lets an account edit (and see) a class.
type Grant struct {
	AccountID string
	ClassID   string
	GrantedAt time.Time
}

// Decision is the result of an edit-permission check. The zero value is not a valid decision.
type Decision int

const (
	// Granted means a grant row exists for the account and class.
	Granted Decision = iota + 1
	// Denied means no such grant exists, whether or not the class exists.
	Denied
	// StorageFailure means the check could not be completed.
	StorageFailure
)

func (d Decision) String() string {
	switch d {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	case StorageFailure:
		return "storage_failure"
	}
	return "unknown"
}
