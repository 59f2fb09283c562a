package telemetry

import (
	"context"
	"time"
)

// Event types emitted by the identity core.
const (
	EventAccountRegistered = "account.registered"
	EventTokenIssued       = "session.token_issued"
	EventTokenRevoked      = "session.token_revoked"
	EventLoginFailed       = "session.login_failed"
	EventGrantAdded        = "permission.granted"
	EventGrantRemoved      = "permission.revoked"
)

// Event is a security-relevant occurrence. Tokens and passwords never appear in it.
type Event struct {
	ID        string
	Type      string
	AccountID string
	ClassID   string
	RequestID string
	Source    string
	Attrs     map[string]string
	CreatedAt time.Time
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, *Event) error { return nil }
