// Package httpapi exposes the budget services over HTTP and streams group
// chat over websockets.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gitlab.com/yelinaung/sharedbudget/internal/auth"
	"gitlab.com/yelinaung/sharedbudget/internal/service"
	"gitlab.com/yelinaung/sharedbudget/internal/session"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the API serves.
type Deps struct {
	Store        Pinger
	Auth         *auth.PasswordAuthenticator
	Sessions     *session.Manager
	Budgets      *service.BudgetService
	Groups       *service.GroupService
	GroupBudgets *service.GroupBudgetService
	Sharing      *service.SharingService
	Messages     *service.MessageService
	Profiles     *service.ProfileService
	// Registry collects the HTTP metrics. Nil uses a private registry.
	Registry *prometheus.Registry
	// Clock dates exports. Nil uses time.Now.
	Clock service.Clock
}

// Server routes requests to the services.
type Server struct {
	deps    Deps
	metrics *httpMetrics
	router  chi.Router
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
		deps.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	s := &Server{deps: deps, metrics: newHTTPMetrics(deps.Registry)}
	s.router = s.routes()
	return s
}

// Handler returns the root handler. Plain requests are traced; websocket
// upgrades bypass the tracer since a stream can stay open for hours.
func (s *Server) Handler() http.Handler {
	traced := otelhttp.NewHandler(s.router, "sharedbudget.http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUpgrade(r) {
			s.router.ServeHTTP(w, r)
			return
		}
		traced.ServeHTTP(w, r)
	})
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(s.metrics.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth(s.deps.Sessions))

			r.Post("/auth/logout", s.handleLogout)

			r.Route("/me", func(r chi.Router) {
				r.Get("/", s.handleGetMe)
				r.Delete("/", s.handleDeleteAccount)
				r.Put("/name", s.handleUpdateName)
				r.Put("/phone", s.handleUpdatePhone)
				r.Put("/email", s.handleUpdateEmail)
				r.Put("/password", s.handleUpdatePassword)
				r.Put("/picture", s.handleUpdatePicture)
			})

			r.Route("/budget", func(r chi.Router) {
				r.Get("/summary", s.handleSummary)
				r.Put("/settings", s.handleUpdateSettings)
				r.Post("/entries", s.handleAddEntry)
				r.Delete("/entries/{category}", s.handleDeleteEntry)
				r.Delete("/entries/{category}/{expense}", s.handleDeleteEntry)
				r.Post("/recurring", s.handleAddRecurring)
				r.Delete("/recurring/{entryID}", s.handleRemoveRecurring)
				r.Get("/export.csv", s.handleExportCSV)
				r.Get("/savings.csv", s.handleSavingsCSV)
				r.Get("/chart.png", s.handleChart)
			})

			r.Post("/contacts/match", s.handleMatchContacts)

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", s.handleListGroups)
				r.Post("/", s.handleCreateGroup)

				r.Route("/{groupID}", func(r chi.Router) {
					r.Get("/", s.handleGetGroup)
					r.Delete("/", s.handleDeleteGroup)
					r.Post("/members", s.handleAddMembers)
					r.Delete("/members/{uid}", s.handleRemoveMember)

					r.Get("/budgets", s.handleListGroupBudgets)
					r.Post("/budgets", s.handleCreateGroupBudget)

					r.Get("/shared-budgets", s.handleListSharedBudgets)
					r.Post("/shared-budgets", s.handleShareBudget)

					r.Get("/messages", s.handleListMessages)
					r.Post("/messages", s.handleSendMessage)
					r.Post("/messages/read", s.handleMarkRead)
					r.Get("/messages/unread", s.handleUnreadCount)
					r.Get("/messages/stream", s.handleMessageStream)
				})
			})

			r.Route("/group-budgets/{budgetID}", func(r chi.Router) {
				r.Get("/", s.handleGetGroupBudget)
				r.Delete("/", s.handleDeleteGroupBudget)
				r.Put("/ceiling", s.handleSetCeiling)
				r.Post("/expenses", s.handleAddGroupExpense)
				r.Delete("/expenses/{category}", s.handleDeleteGroupExpense)
				r.Delete("/expenses/{category}/{expense}", s.handleDeleteGroupExpense)
			})

			r.Route("/shared-budgets/{sharedID}", func(r chi.Router) {
				r.Get("/", s.handleGetSharedBudget)
				r.Delete("/", s.handleUnshareBudget)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// caller returns the authenticated user id. requireAuth guarantees one.
func caller(r *http.Request) string {
	uid, _ := auth.UserID(r.Context())
	return uid
}
