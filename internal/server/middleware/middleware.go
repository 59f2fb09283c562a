// Package middleware wraps HTTP handlers with request ids, access logging,
// tracing, metrics, rate limiting and panic recovery.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/noahsadir/courseman/internal/logging"
	"github.com/noahsadir/courseman/internal/platform/respond"
	"github.com/noahsadir/courseman/internal/telemetry/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first one listed runs outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Route labels the request with route for logs and metrics. Use the mux pattern, not the raw path.
func Route(route string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(withRoute(r.Context(), route)))
		})
	}
}

// RequestID keeps a caller-supplied X-Request-ID or assigns a new UUID, and
// attaches a request-scoped logger carrying it.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if requestID == "" || len(requestID) > 128 {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			logger := logging.GlobalLogger().With().Str("request_id", requestID).Logger()
			ctx := WithRequestID(r.Context(), requestID)
			ctx = logging.AttachLoggerToContext(&logger, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog logs one line per request at a level chosen by the status code.
func AccessLog() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger := logging.ExtractLogger(r.Context())
			ev := logger.Info()
			switch {
			case rec.status >= 500:
				ev = logger.Error()
			case rec.status >= 400:
				ev = logger.Warn()
			}
			ev.Str("method", r.Method).
				Str("route", routeFrom(r.Context())).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Str("client_ip", ClientIP(r)).
				Msg("request completed")
		})
	}
}

// Trace starts a server span per request, continuing any incoming W3C trace context.
func Trace() Middleware {
	tracer := otel.Tracer("github.com/noahsadir/courseman/internal/server")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			route := routeFrom(ctx)
			ctx, span := tracer.Start(ctx, route, trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("http.route", route),
				))
			defer span.End()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
			if rec.status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
		})
	}
}

// Metrics records request count and latency per route and status.
func Metrics(m *metrics.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.ObserveHTTP(routeFrom(r.Context()), rec.status, time.Since(start))
		})
	}
}

// Recover turns a panic into a 500 envelope and logs it with a stack trace.
func Recover(resp respond.Responder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if val := recover(); val != nil {
					if val == http.ErrAbortHandler {
						panic(val)
					}
					logging.LogPanicValue(logging.ExtractLogger(r.Context()), val, "panic while serving request")
					resp.Fail(w, r, &respond.Failure{
						Status:  http.StatusInternalServerError,
						Code:    respond.CodeInternal,
						Message: "Internal server error.",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
