// Package handler serves GET /health for load balancers and deploy checks.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/noahsadir/courseman/internal/platform/respond"
)

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SchemaChecker reports the applied migration version and whether it is dirty.
type SchemaChecker func(ctx context.Context) (version uint, dirty bool, err error)

// pingTimeout bounds a single readiness check.
const pingTimeout = 2 * time.Second

// Handler reports whether the service can reach its database.
type Handler struct {
	pinger Pinger
	schema SchemaChecker
	resp   respond.Responder
}

// NewHandler returns a health Handler. pinger and schema may be nil; nil checks are skipped.
func NewHandler(pinger Pinger, schema SchemaChecker, resp respond.Responder) *Handler {
	return &Handler{pinger: pinger, schema: schema, resp: resp}
}

// ServeHTTP answers 200 with status "serving", or 503 with status "not_serving".
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	body := map[string]any{"status": "serving"}
	if h.pinger != nil {
		if err := h.pinger.PingContext(ctx); err != nil {
			h.notServing(w, r, "database unreachable", err)
			return
		}
	}
	if h.schema != nil {
		version, dirty, err := h.schema(ctx)
		if err != nil {
			h.notServing(w, r, "schema version unavailable", err)
			return
		}
		if dirty {
			h.notServing(w, r, "schema migration is dirty", nil)
			return
		}
		body["schema_version"] = version
	}
	h.resp.JSON(w, http.StatusOK, body)
}

func (h *Handler) notServing(w http.ResponseWriter, r *http.Request, reason string, cause error) {
	h.resp.Fail(w, r, &respond.Failure{
		Status:  http.StatusServiceUnavailable,
		Code:    respond.CodeNotServing,
		Message: reason,
		Cause:   cause,
	})
}
