// Package respond writes the JSON envelope every endpoint answers with and maps
// core verdicts onto it.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/noahsadir/courseman/internal/identifier"
	"github.com/noahsadir/courseman/internal/logging"
	permissiondomain "github.com/noahsadir/courseman/internal/permission/domain"
	sessiondomain "github.com/noahsadir/courseman/internal/session/domain"
)

// Error codes carried in the "error" field.
const (
	CodeMissingArgs       = "ERR_MISSING_ARGS"
	CodeBadRequest        = "ERR_BAD_REQUEST"
	CodeInvalidAPIKey     = "ERR_INVALID_API_KEY"
	CodeTokenNotAvailable = "ERR_TOKEN_NOT_AVAILABLE"
	CodeInvalidToken      = "ERR_INVALID_TOKEN"
	CodeTokenExpired      = "ERR_TOKEN_EXPIRED"
	CodeTokenVerify       = "ERR_TOKEN_VERIFY"
	CodeEditPermission    = "ERR_EDIT_PERMISSION"
	CodePermissionCheck   = "ERR_PERMISSION_CHECK"
	CodeIDAllocation      = "ERR_ID_ALLOCATION"
	CodeSQLQuery          = "DBG_ERR_SQL_QUERY"
	CodeInvalidCreds      = "ERR_INVALID_CREDENTIALS"
	CodeEmailTaken        = "ERR_EMAIL_TAKEN"
	CodeClassNotFound     = "ERR_CLASS_NOT_FOUND"
	CodeAccountNotFound   = "ERR_ACCOUNT_NOT_FOUND"
	CodeLastEditor        = "ERR_LAST_EDITOR"
	CodeRateLimited       = "ERR_RATE_LIMITED"
	CodeNotServing        = "ERR_NOT_SERVING"
	CodeNotFound          = "ERR_NOT_FOUND"
	CodeInternal          = "ERR_INTERNAL"
)

// Envelope is the body of every response. Successful responses merge their payload alongside.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// Failure is an error that knows how it should be reported to the client.
type Failure struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Cause)
	}
	return f.Code + ": " + f.Message
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

func MissingArgs() *Failure {
	return &Failure{Status: http.StatusBadRequest, Code: CodeMissingArgs, Message: "The request is missing required arguments."}
}

func BadRequest(msg string) *Failure {
	return &Failure{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: msg}
}

func Storage(err error) *Failure {
	return &Failure{Status: http.StatusInternalServerError, Code: CodeSQLQuery, Message: "Unable to perform query.", Cause: err}
}

// FromOutcome maps a verification outcome to a failure, or nil for Valid.
func FromOutcome(o sessiondomain.Outcome, err error) *Failure {
	switch o {
	case sessiondomain.Valid:
		return nil
	case sessiondomain.NoTokenIssued:
		return &Failure{Status: http.StatusUnauthorized, Code: CodeTokenNotAvailable, Message: "A token has not been created for this user."}
	case sessiondomain.InvalidToken:
		return &Failure{Status: http.StatusUnauthorized, Code: CodeInvalidToken, Message: "The token is invalid."}
	case sessiondomain.TokenExpired:
		return &Failure{Status: http.StatusUnauthorized, Code: CodeTokenExpired, Message: "Token expired; please renew."}
	case sessiondomain.StorageFailure:
		return Storage(err)
	}
	return &Failure{
		Status:  http.StatusInternalServerError,
		Code:    CodeTokenVerify,
		Message: "Unable to verify token due to server-side malfunction.",
		Cause:   unhandled("verification outcome", int(o), err),
	}
}

// FromDecision maps a permission decision to a failure, or nil for Granted.
func FromDecision(d permissiondomain.Decision, err error) *Failure {
	switch d {
	case permissiondomain.Granted:
		return nil
	case permissiondomain.Denied:
		return &Failure{Status: http.StatusForbidden, Code: CodeEditPermission, Message: "User does not have edit permissions for this class."}
	case permissiondomain.StorageFailure:
		return Storage(err)
	}
	return &Failure{
		Status:  http.StatusInternalServerError,
		Code:    CodePermissionCheck,
		Message: "Unable to check permissions due to server-side malfunction.",
		Cause:   unhandled("permission decision", int(d), err),
	}
}

func unhandled(kind string, v int, err error) error {
	if err != nil {
		return fmt.Errorf("unhandled %s %d: %w", kind, v, err)
	}
	return fmt.Errorf("unhandled %s %d", kind, v)
}

// FromError turns any error into a Failure. Errors that already are Failures pass through.
func FromError(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, identifier.ErrAllocationExhausted) {
		return &Failure{Status: http.StatusInternalServerError, Code: CodeIDAllocation, Message: "Unable to allocate a unique identifier.", Cause: err}
	}
	return Storage(err)
}

// Responder writes envelopes. Storage error details are only exposed when ExposeDetails is set.
type Responder struct {
	ExposeDetails bool
}

// JSON writes payload with success=true merged in. payload must marshal to a JSON object or be nil.
func (rs Responder) JSON(w http.ResponseWriter, status int, payload any) {
	body := map[string]any{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err == nil {
			err = json.Unmarshal(raw, &body)
		}
		if err != nil {
			logging.Error().Err(err).Msg("failed to encode response payload")
			rs.Fail(w, nil, &Failure{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Unable to encode response.", Cause: err})
			return
		}
	}
	body["success"] = true
	write(w, status, body)
}

// Message writes a success envelope carrying only a message.
func (rs Responder) Message(w http.ResponseWriter, status int, msg string) {
	write(w, status, Envelope{Success: true, Message: msg})
}

// Fail writes err as a failure envelope and logs server-side faults.
func (rs Responder) Fail(w http.ResponseWriter, r *http.Request, err error) {
	f := FromError(err)
	env := Envelope{Success: false, Error: f.Code, Message: f.Message}
	if f.Status >= http.StatusInternalServerError {
		logger := logging.GlobalLogger()
		if r != nil {
			logger = logging.ExtractLogger(r.Context())
		}
		logger.Error().Err(f.Cause).Str("code", f.Code).Msg("request failed")
		if rs.ExposeDetails && f.Cause != nil {
			env.Details = f.Cause.Error()
		}
	}
	write(w, f.Status, env)
}

// DecodeJSON reads a JSON request body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return BadRequest("Request body must be a JSON object.")
	}
	return nil
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("failed to encode JSON response")
	}
}
