package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dukerupert/recipebox/internal/auth"
	"github.com/dukerupert/recipebox/internal/backend"
	"github.com/dukerupert/recipebox/internal/config"
	"github.com/dukerupert/recipebox/internal/events"
	"github.com/dukerupert/recipebox/internal/handler"
	"github.com/dukerupert/recipebox/internal/metrics"
	"github.com/dukerupert/recipebox/internal/middleware"
	"github.com/dukerupert/recipebox/internal/profile"
	"github.com/dukerupert/recipebox/internal/recipe"
	"github.com/dukerupert/recipebox/internal/seal"
	"github.com/dukerupert/recipebox/internal/store"
	ws "github.com/dukerupert/recipebox/internal/websocket"
)

type Server struct {
	provider    *auth.Provider
	hub         *ws.Hub
	pageH       *handler.PageHandler
	authH       *handler.AuthHandler
	apiH        *handler.APIHandler
	registry    *prometheus.Registry
	rateLimiter *middleware.RateLimiter
	loopback    bool
	logger      *slog.Logger

	unsubscribe func()
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	var sessionOpts []store.SessionOption
	if cfg.StatePassphrase != "" {
		sessionOpts = append(sessionOpts, store.WithSealer(seal.New(cfg.StatePassphrase)))
	}
	sessions := store.NewSessionStore(store.NewStateStore(db), logger.With("component", "session_store"), sessionOpts...)

	client := backend.New(cfg.BackendURL, cfg.BackendAnonKey,
		backend.WithTokenSource(sessions.AccessToken),
		backend.WithMetrics(collector),
		backend.WithTimeouts(cfg.AuthTimeout, cfg.UserTimeout, cfg.DataTimeout),
		backend.WithLogger(logger.With("component", "backend")),
	)

	bus := events.NewBus(logger.With("component", "events"))
	gateway := auth.NewGateway(client, sessions, bus, logger.With("component", "auth_gateway"),
		auth.WithGatewayMetrics(collector),
	)
	resolver := profile.NewResolver(client, logger.With("component", "profile"))
	provider := auth.NewProvider(gateway, sessions, resolver, bus, client, logger.With("component", "auth_provider"))
	repo := recipe.NewRepository(client, sessions, logger.With("component", "recipe"), recipe.WithMetrics(collector))

	hub := ws.NewHub(logger.With("component", "websocket"))
	rd := handler.MustRenderer(logger.With("component", "template"))

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 12
	}
	ratePerMinute := cfg.AuthRatePerMinute
	if ratePerMinute <= 0 {
		ratePerMinute = 10
	}

	return &Server{
		provider:    provider,
		hub:         hub,
		pageH:       handler.NewPageHandler(repo, gateway, provider, hub, rd, pageSize, logger.With("component", "pages")),
		authH:       handler.NewAuthHandler(gateway, provider, rd, logger.With("component", "auth")),
		apiH:        handler.NewAPIHandler(repo, provider, hub, pageSize, logger.With("component", "api")),
		registry:    registry,
		rateLimiter: middleware.NewRateLimiter(ratePerMinute),
		loopback:    cfg.Loopback(),
		logger:      logger,
	}
}

// Start mirrors auth state changes to open pages, then restores the
// persisted session.
func (s *Server) Start(ctx context.Context) {
	s.unsubscribe = s.provider.Subscribe(func(st auth.State) {
		if !st.Authenticated() {
			s.hub.Broadcast(ws.AuthMessage("", ""))
			return
		}
		username := ""
		if st.Profile != nil {
			username = st.Profile.Username
		}
		s.hub.Broadcast(ws.AuthMessage(st.User.ID, username))
	})
	s.provider.Start(ctx)
}

func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.provider.Close()
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler(s.registry))
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	load := middleware.LoadAuth(s.provider)
	public := func(h http.HandlerFunc) http.Handler { return load(h) }
	protected := func(h http.HandlerFunc) http.Handler { return middleware.RequireAuth(s.provider)(h) }
	anonymous := func(h http.HandlerFunc) http.Handler { return middleware.RequireAnonymous(s.provider)(h) }

	// Pages
	mux.Handle("GET /{$}", public(s.pageH.Home))
	mux.Handle("GET /recipes", public(s.pageH.Browse))
	mux.Handle("GET /recipes/{id}", public(s.pageH.Detail))
	mux.Handle("GET /category/{slug}", public(s.pageH.Category))
	mux.Handle("GET /upload", protected(s.pageH.UploadForm))
	mux.Handle("POST /upload", protected(s.pageH.Upload))
	mux.Handle("POST /recipes/{id}/delete", protected(s.pageH.DeleteRecipe))
	mux.Handle("GET /dashboard", protected(s.pageH.Dashboard))
	mux.Handle("POST /dashboard/profile", protected(s.pageH.UpdateProfile))

	// Auth
	mux.Handle("GET /login", anonymous(s.authH.LoginPage))
	mux.Handle("POST /login", s.rateLimited(anonymous(s.authH.Login)))
	mux.Handle("GET /signup", anonymous(s.authH.SignupPage))
	mux.Handle("POST /signup", s.rateLimited(anonymous(s.authH.Signup)))
	mux.Handle("POST /logout", protected(s.authH.Logout))

	// JSON API
	mux.Handle("GET /api/session", public(s.apiH.Session))
	mux.Handle("GET /api/recipes", public(s.apiH.ListRecipes))
	mux.Handle("GET /api/recipes/search", public(s.apiH.SearchRecipes))
	mux.Handle("GET /api/recipes/{id}", public(s.apiH.GetRecipe))
	mux.Handle("POST /api/recipes", protected(s.apiH.CreateRecipe))
	mux.Handle("PATCH /api/recipes/{id}", protected(s.apiH.UpdateRecipe))
	mux.Handle("DELETE /api/recipes/{id}", protected(s.apiH.DeleteRecipe))
	mux.Handle("GET /api/me/recipes", protected(s.apiH.MyRecipes))
	mux.Handle("GET /api/me/stats", protected(s.apiH.MyStats))
	mux.Handle("PUT /api/profile", protected(s.apiH.UpdateProfile))

	// Every request acts as the signed-in user, so writes must come from
	// this app's own pages.
	var h http.Handler = middleware.CrossOrigin(s.logger.With("component", "http"))(mux)
	if s.loopback {
		h = middleware.LoopbackHost(s.logger.With("component", "http"))(h)
	}
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"auth":    s.provider.State().Status.String(),
		"clients": s.hub.ClientCount(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) rateLimited(h http.Handler) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.RealIP)(h)
}
