// Package server assembles the HTTP routes and middleware.
package server

import (
	"net/http"

	"github.com/noahsadir/courseman/internal/platform/respond"
	"github.com/noahsadir/courseman/internal/server/middleware"
	"github.com/noahsadir/courseman/internal/telemetry/metrics"
)

// AccountRoutes serves the credential endpoints.
type AccountRoutes interface {
	CreateUser(w http.ResponseWriter, r *http.Request)
	AuthenticateUser(w http.ResponseWriter, r *http.Request)
	LogoutUser(w http.ResponseWriter, r *http.Request)
}

// GradebookRoutes serves the class and term endpoints.
type GradebookRoutes interface {
	GetClasses(w http.ResponseWriter, r *http.Request)
	CreateClass(w http.ResponseWriter, r *http.Request)
	ModifyClass(w http.ResponseWriter, r *http.Request)
	ShareClass(w http.ResponseWriter, r *http.Request)
	UnshareClass(w http.ResponseWriter, r *http.Request)
	CreateTerm(w http.ResponseWriter, r *http.Request)
	DeleteTerm(w http.ResponseWriter, r *http.Request)
}

// Deps holds the handlers and shared infrastructure the routes need.
type Deps struct {
	Accounts  AccountRoutes
	Gradebook GradebookRoutes
	// Health serves GET /health. If nil, /health always answers 200.
	Health http.Handler
	// Metrics backs request metrics and GET /metrics. If nil, neither is recorded nor served.
	Metrics *metrics.Registry
	// AuthLimiter throttles the credential endpoints per client IP. If nil, they are not limited.
	AuthLimiter *middleware.LimiterRegistry
	// TrustedProxies may set the client IP through forwarding headers. If nil, the peer address is used.
	TrustedProxies *middleware.TrustedProxies
	Responder      respond.Responder
}

// NewHandler returns the root handler with every route registered.
//
// Route → handler mapping:
//   - /create_user, /authenticate_user, /logout_user → internal/account/handler
//   - /get_classes, /create_class, /modify_class, /share_class,
//     /unshare_class, /create_term, /delete_term   → internal/gradebook/handler
//   - /health                                      → internal/health/handler
func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	common := []middleware.Middleware{
		middleware.Trace(),
		middleware.Metrics(deps.Metrics),
		middleware.AccessLog(),
		middleware.Recover(deps.Responder),
	}
	handle := func(pattern string, h http.HandlerFunc, extra ...middleware.Middleware) {
		chain := append([]middleware.Middleware{middleware.Route(pattern)}, common...)
		chain = append(chain, extra...)
		mux.Handle(pattern, middleware.Chain(h, chain...))
	}
	limited := middleware.RateLimit(deps.AuthLimiter, deps.Metrics, deps.Responder)

	if deps.Accounts != nil {
		handle("POST /create_user", deps.Accounts.CreateUser, limited)
		handle("POST /authenticate_user", deps.Accounts.AuthenticateUser, limited)
		handle("POST /logout_user", deps.Accounts.LogoutUser)
	}
	if deps.Gradebook != nil {
		handle("POST /get_classes", deps.Gradebook.GetClasses)
		handle("POST /create_class", deps.Gradebook.CreateClass)
		handle("POST /modify_class", deps.Gradebook.ModifyClass)
		handle("POST /share_class", deps.Gradebook.ShareClass)
		handle("POST /unshare_class", deps.Gradebook.UnshareClass)
		handle("POST /create_term", deps.Gradebook.CreateTerm)
		handle("POST /delete_term", deps.Gradebook.DeleteTerm)
	}

	health := deps.Health
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deps.Responder.JSON(w, http.StatusOK, map[string]any{"status": "serving"})
		})
	}
	handle("GET /health", health.ServeHTTP)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		deps.Responder.Fail(w, r, &respond.Failure{Status: http.StatusNotFound, Code: respond.CodeNotFound, Message: "No such endpoint."})
	})

	return middleware.Chain(mux, middleware.RequestID(), middleware.ClientAddr(deps.TrustedProxies))
}
