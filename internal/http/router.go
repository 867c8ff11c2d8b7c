package httpx

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/userdesk/internal/service/user"
	"github.com/splax/userdesk/internal/ws"
)

// Options tunes router behaviour.
type Options struct {
	// Environment is the deployment name; "development" exposes fault details.
	Environment string
	Version     string
	// WriteRateLimit caps mutating API requests per client per minute. Zero disables it.
	WriteRateLimit int
	// StoreHealth, when set, is probed by /health.
	StoreHealth func(context.Context) error
}

// Router wires HTTP endpoints to the user service.
type Router struct {
	mux      chi.Router
	logger   *slog.Logger
	users    user.Service
	hub      *ws.Hub
	limiter  RateLimiter
	views    *template.Template
	upgrader websocket.Upgrader
	opts     Options
	started  time.Time

	registry           *prometheus.Registry
	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	healthCheckTimeout = 2 * time.Second
	apiName            = "User Management API"
)

// NewRouter assembles routes with dependencies. hub and limiter may be nil.
func NewRouter(logger *slog.Logger, users user.Service, hub *ws.Hub, limiter RateLimiter, opts Options) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	views, err := parseViews()
	if err != nil {
		return nil, fmt.Errorf("parse views: %w", err)
	}
	if strings.TrimSpace(opts.Version) == "" {
		opts.Version = "1.0.0"
	}
	r := &Router{
		mux:     chi.NewRouter(),
		logger:  logger,
		users:   users,
		hub:     hub,
		limiter: limiter,
		views:   views,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		opts:     opts,
		started:  time.Now(),
		registry: prometheus.NewRegistry(),
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r, nil
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.Use(middleware.RealIP)
	r.mux.Use(r.audit)
	r.mux.Use(r.recoverer)

	r.mux.NotFound(r.handleNotFound)
	r.mux.MethodNotAllowed(r.handleMethodNotAllowed)

	r.mux.Get("/health", r.handleHealth)
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	r.mux.Get("/ws/users", r.handleUsersWS)

	r.mux.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			MaxAge:         300,
		}))
		api.Get("/", r.handleAPIDocs)
		api.Route("/users", func(users chi.Router) {
			writes := users.With(r.withRateLimit("api_users_write", r.opts.WriteRateLimit, rateWindowDefault, rateLimitKeyIP))

			users.Get("/", r.handleListUsers)
			writes.Post("/", r.handleCreateUser)

			users.With(r.requireUserID).Get("/{id}", r.handleGetUser)
			writes.With(r.requireUserID).Put("/{id}", r.handleUpdateUser)
			writes.With(r.requireUserID).Delete("/{id}", r.handleDeleteUser)
		})
	})

	r.mux.Get("/", r.handleHome)
	r.mux.Route("/users", func(views chi.Router) {
		views.Get("/", r.renderUsersPage)
		views.Post("/", r.handleCreateForm)
		views.Get("/create", r.renderCreatePage)
		views.With(r.requireUserID).Get("/{id}", r.renderUserDetailPage)
		views.With(r.requireUserID).Get("/{id}/edit", r.renderEditPage)
		views.With(r.requireUserID).Post("/{id}/update", r.handleUpdateForm)
		views.With(r.requireUserID).Post("/{id}/delete", r.handleDeleteForm)
	})
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	status := "ok"
	payload := map[string]any{
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
		"environment": r.opts.Environment,
		"uptime":      time.Since(r.started).Seconds(),
	}
	if r.opts.StoreHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.opts.StoreHealth(ctx); err != nil {
			r.logger.Warn("store health check failed", "error", err)
			status = "degraded"
			payload["components"] = map[string]any{"store": map[string]any{"status": "down"}}
		} else {
			payload["components"] = map[string]any{"store": map[string]any{"status": "up"}}
		}
	}
	payload["status"] = status
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

type endpointDoc struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var apiEndpoints = []endpointDoc{
	{Method: http.MethodGet, Path: "/api/users", Description: "Get all users"},
	{Method: http.MethodGet, Path: "/api/users/:id", Description: "Get user by ID"},
	{Method: http.MethodPost, Path: "/api/users", Description: "Create new user"},
	{Method: http.MethodPut, Path: "/api/users/:id", Description: "Update user"},
	{Method: http.MethodDelete, Path: "/api/users/:id", Description: "Delete user"},
}

func (r *Router) handleAPIDocs(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      apiName,
		"version":   r.opts.Version,
		"endpoints": apiEndpoints,
	})
}

func (r *Router) handleNotFound(w http.ResponseWriter, req *http.Request) {
	if isAPIRequest(req) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	r.renderError(w, req, http.StatusNotFound, "404 - Not Found", "The page you are looking for does not exist.")
}

func (r *Router) handleMethodNotAllowed(w http.ResponseWriter, req *http.Request) {
	if isAPIRequest(req) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	r.renderError(w, req, http.StatusMethodNotAllowed, "Method Not Allowed", "This action is not supported.")
}

// recoverer turns a panic into a 500 response in the caller's representation.
func (r *Router) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil || rec == http.ErrAbortHandler {
				if rec != nil {
					panic(rec)
				}
				return
			}
			err := fmt.Errorf("panic: %v", rec)
			r.logger.Error("handler panic", "path", req.URL.Path, "error", err)
			if isAPIRequest(req) {
				r.writeFault(w, err)
				return
			}
			message := "An unexpected error occurred. Please try again later."
			if r.devMode() {
				message = err.Error()
			}
			r.renderError(w, req, http.StatusInternalServerError, "Server Error", message)
		}()
		next.ServeHTTP(w, req)
	})
}

// writeFault reports an unexpected error. Details are only exposed in development.
func (r *Router) writeFault(w http.ResponseWriter, err error) {
	payload := map[string]any{"success": false, "message": msgServerError}
	if r.devMode() && err != nil {
		payload["error"] = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, payload)
}

func (r *Router) devMode() bool {
	return strings.EqualFold(strings.TrimSpace(r.opts.Environment), "development")
}

func isAPIRequest(req *http.Request) bool {
	return req.URL.Path == "/api" || strings.HasPrefix(req.URL.Path, "/api/")
}
