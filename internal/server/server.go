package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/scorepulse/internal/registry"
	"github.com/jpalmerr/scorepulse/internal/snapshot"
)

const (
	// defaultTitle is used when no custom title is configured.
	defaultTitle = "ScorePulse"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"

	defaultPingInterval = 30 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Registry is the subscriber registry as seen by stream handlers.
type Registry interface {
	Add(key snapshot.WatchKey, sink registry.Sink) *registry.Subscriber
	Remove(id uuid.UUID) bool
	Len() int
	KeyCount() int
}

// Broadcaster hands held snapshots to new subscribers.
type Broadcaster interface {
	Attach(ctx context.Context, sub *registry.Subscriber) error
	HeldCount() int
}

// Sources serves cached upstream payloads for the proxy routes.
type Sources interface {
	User(ctx context.Context, username string) (json.RawMessage, error)
	UserLeagues(ctx context.Context, userID, season string) (json.RawMessage, error)
	League(ctx context.Context, leagueID string) (json.RawMessage, error)
	Rosters(ctx context.Context, leagueID string) (json.RawMessage, error)
	Users(ctx context.Context, leagueID string) (json.RawMessage, error)
	Matchups(ctx context.Context, leagueID string, week int) (json.RawMessage, error)
	Players(ctx context.Context) (json.RawMessage, error)
	Scoreboard(ctx context.Context, week int) (json.RawMessage, error)
	PlayerMapping(ctx context.Context) (json.RawMessage, error)
	Len() int
}

// Config holds server settings. Zero values select defaults.
type Config struct {
	Port int

	// Title is substituted into the dashboard page.
	Title string

	// Assets contains assets/index.html. Nil disables the dashboard.
	Assets fs.FS

	// PingInterval is the keepalive period on idle streams.
	PingInterval time.Duration

	// StreamRatePerSecond and StreamBurst limit new streams per client IP.
	// A rate of zero disables the limit.
	StreamRatePerSecond float64
	StreamBurst         int

	// MaxStreams caps concurrent streams. Zero means unlimited.
	MaxStreams int64
}

// Server handles HTTP requests for streams, proxy reads and health.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	cfg         Config
	registry    Registry
	broadcaster Broadcaster
	sources     Sources
	logger      *slog.Logger

	rateLimiter   *ConnectionRateLimiter
	globalLimiter *GlobalConnectionLimiter
	router        chi.Router

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// New creates a [Server]. It does not listen until [Server.Start].
func New(cfg Config, reg Registry, bc Broadcaster, src Sources, logger *slog.Logger) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:           cfg,
		registry:      reg,
		broadcaster:   bc,
		sources:       src,
		logger:        logger,
		rateLimiter:   NewConnectionRateLimiter(cfg.StreamRatePerSecond, cfg.StreamBurst),
		globalLimiter: NewGlobalConnectionLimiter(cfg.MaxStreams),
	}
	s.router = s.routes()
	return s
}

// Handler returns the router. Useful for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/stream/matchup/{leagueId}/{week}", s.handleSSE)
	r.Get("/ws/matchup/{leagueId}/{week}", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/user/{username}", s.proxy("user", func(r *http.Request) (json.RawMessage, error) {
			return s.sources.User(r.Context(), chi.URLParam(r, "username"))
		}))
		r.Get("/user/{userId}/leagues/{season}", s.proxy("leagues", func(r *http.Request) (json.RawMessage, error) {
			return s.sources.UserLeagues(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "season"))
		}))
		r.Get("/league/{leagueId}", s.proxy("league", func(r *http.Request) (json.RawMessage, error) {
			return s.sources.League(r.Context(), chi.URLParam(r, "leagueId"))
		}))
		r.Get("/league/{leagueId}/matchups/{week}", s.proxyWeek("matchups", func(r *http.Request, week int) (json.RawMessage, error) {
			return s.sources.Matchups(r.Context(), chi.URLParam(r, "leagueId"), week)
		}))
		r.Get("/league/{leagueId}/rosters", s.proxy("rosters", func(r *http.Request) (json.RawMessage, error) {
			return s.sources.Rosters(r.Context(), chi.URLParam(r, "leagueId"))
		}))
		r.Get("/league/{leagueId}/users", s.proxy("users", func(r *http.Request) (json.RawMessage, error) {
			return s.sources.Users(r.Context(), chi.URLParam(r, "leagueId"))
		}))
		r.Get("/players/nfl", s.proxy("players", func(r *http.Request) (json.RawMessage, error) {
			return s.sources.Players(r.Context())
		}))
		r.Get("/nfl/scoreboard/{week}", s.proxyWeek("scoreboard", func(r *http.Request, week int) (json.RawMessage, error) {
			return s.sources.Scoreboard(r.Context(), week)
		}))
		r.Get("/espn/player-mapping", s.proxy("player mapping", func(r *http.Request) (json.RawMessage, error) {
			return s.sources.PlayerMapping(r.Context())
		}))
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	if s.cfg.Assets != nil {
		r.Get("/", s.handleDashboard)
	}

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns after confirming the server is
// listening. When ctx is cancelled the server shuts down gracefully with a
// 5-second timeout; open streams end because every request context derives
// from ctx.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address after Start, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	content, err := fs.ReadFile(s.cfg.Assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// escape to keep a configured title from injecting markup
	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// healthResponse is the /health body. ActiveStreams counts the league weeks
// with at least one connected subscriber, not connections (see Clients).
// HeldSnapshots counts the latest snapshots kept for delivery, including
// those held through the grace period after their last subscriber left.
type healthResponse struct {
	Status        string `json:"status"`
	Clients       int    `json:"clients"`
	CacheSize     int    `json:"cacheSize"`
	ActiveStreams int    `json:"activeStreams"`
	HeldSnapshots int    `json:"heldSnapshots"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Clients:       s.registry.Len(),
		CacheSize:     s.sources.Len(),
		ActiveStreams: s.registry.KeyCount(),
		HeldSnapshots: s.broadcaster.HeldCount(),
	})
}
