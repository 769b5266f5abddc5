// Package api is the JSON HTTP surface: upload sessions, mapping,
// analysis, query validation/execution, table management, and task polling.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rowforge/ingest/internal/analyzer"
	"github.com/rowforge/ingest/internal/audit"
	"github.com/rowforge/ingest/internal/lineage"
	"github.com/rowforge/ingest/internal/objectstore"
	"github.com/rowforge/ingest/internal/parsecache"
	"github.com/rowforge/ingest/internal/pipeline"
	"github.com/rowforge/ingest/internal/store"
	"github.com/rowforge/ingest/internal/taskmanager"
	"github.com/rowforge/ingest/internal/validator"
)

// Server is the HTTP front door for the import system.
type Server struct {
	db       *store.Store
	lineage  *lineage.Store
	executor *pipeline.Executor
	tasks    *taskmanager.Manager
	objects  *objectstore.Client
	cache    parsecache.Cache
	llm      *analyzer.Analyzer
	audit    *audit.Log // nil disables audit recording

	router *chi.Mux
	server *http.Server

	syncTimeout    time.Duration
	exportTTL      time.Duration
	exportRowLimit int
	adminToken     string
}

// Deps wires every component the API surface dispatches to.
type Deps struct {
	DB             *store.Store
	Lineage        *lineage.Store
	Executor       *pipeline.Executor
	Tasks          *taskmanager.Manager
	Objects        *objectstore.Client
	ParseCache     parsecache.Cache   // nil falls back to a no-op NullCache
	LLM            *analyzer.Analyzer // nil disables Analyzer endpoints
	Audit          *audit.Log         // nil disables audit recording
	SyncTimeout    time.Duration
	ExportTTL      time.Duration
	ExportRowLimit int      // max rows one export may stream (0 means unlimited)
	MaxUploadBytes int64    // request body cap (0 disables)
	AllowedOrigins []string // CORS allowlist; empty denies cross-origin requests
	AdminToken     string   // X-Admin-Token required on admin endpoints when set
	RateLimit      int      // requests per minute per IP (0 disables)
}

// NewServer builds the router and middleware stack.
func NewServer(deps Deps) *Server {
	s := &Server{
		db:             deps.DB,
		lineage:        deps.Lineage,
		executor:       deps.Executor,
		tasks:          deps.Tasks,
		objects:        deps.Objects,
		cache:          deps.ParseCache,
		llm:            deps.LLM,
		audit:          deps.Audit,
		router:         chi.NewRouter(),
		syncTimeout:    deps.SyncTimeout,
		exportTTL:      deps.ExportTTL,
		exportRowLimit: deps.ExportRowLimit,
		adminToken:     deps.AdminToken,
	}

	if s.syncTimeout <= 0 {
		s.syncTimeout = 30 * time.Second
	}
	if s.exportTTL <= 0 {
		s.exportTTL = 120 * time.Second
	}
	if s.cache == nil {
		s.cache = parsecache.NullCache{}
	}

	s.setupMiddleware(deps)
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware(deps Deps) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.syncTimeout))
	s.router.Use(securityHeaders)

	if len(deps.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Token"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if deps.MaxUploadBytes > 0 {
		s.router.Use(middleware.RequestSize(deps.MaxUploadBytes))
	}

	if deps.RateLimit > 0 {
		limiter := newRateLimiter(deps.RateLimit, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/map-data", func(r chi.Router) {
		r.Post("/", s.handleMapData)
	})
	s.router.Post("/map-b2-data", s.handleMapB2Data)
	s.router.Post("/map-b2-data-async", s.handleMapB2DataAsync)

	s.router.Post("/analyze-file", s.handleAnalyzeFile)
	s.router.Post("/analyze-file-interactive", s.handleAnalyzeFileInteractive)
	s.router.Post("/execute-recommended-import", s.handleExecuteRecommendedImport)

	s.router.Route("/uploads", func(r chi.Router) {
		r.Post("/", s.handleCreateUploadSession)
		r.Post("/{uploadID}/parts/{partNumber}", s.handleUploadPart)
		r.Post("/{uploadID}/complete", s.handleCompleteUpload)
		r.Post("/{uploadID}/abort", s.handleAbortUpload)
	})

	s.router.Post("/query-database", s.handleQueryDatabase)
	s.router.Post("/api/v1/generate-sql", s.handleGenerateSQL)
	s.router.Get("/api/export/query", s.handleExportQuery)

	s.router.Route("/tables", func(r chi.Router) {
		r.Get("/", s.handleListTables)
		r.Get("/{tableName}", s.handleGetTable)
		r.Get("/{tableName}/schema", s.handleGetTableSchema)
		r.Get("/{tableName}/stats", s.handleGetTableStats)
		r.With(s.requireAdmin).Post("/{tableName}/rollback/{importID}", s.handleRollback)
	})

	s.router.Get("/tasks/{taskID}", s.handleGetTask)
	s.router.With(s.requireAdmin).Post("/tasks/{taskID}/cancel", s.handleCancelTask)

	s.router.Route("/audit", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/", s.handleListAudit)
		r.Get("/export", s.handleExportAudit)
	})

	s.router.Get("/healthz", s.handleHealth)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	slog.Info("api server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// requestIP extracts the caller's address the same way the rate limiter
// does, for consistent audit attribution.
func requestIP(r *http.Request) string {
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// recordAudit writes an audit entry if auditing is enabled, logging (but
// not failing the request on) a write error since audit is best-effort
// observability, not a transactional guarantee.
func (s *Server) recordAudit(ctx context.Context, p audit.Params) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, p); err != nil {
		slog.Warn("audit record failed", "action", p.Action, "err", err)
	}
}

// validatorSchema builds a validator.Schema snapshot of the live, non
// protected catalog.
func (s *Server) validatorSchema(ctx context.Context) (validator.Schema, error) {
	names, err := s.db.ListTables(ctx)
	if err != nil {
		return validator.Schema{}, err
	}
	tables := make(map[string][]string, len(names))
	for _, name := range names {
		schema, ok, err := s.db.GetTableSchema(ctx, name)
		if err != nil || !ok {
			continue
		}
		tables[name] = schema.ColumnNames()
	}
	return validator.Schema{Tables: tables}, nil
}

// requireAdmin gates destructive endpoints behind the configured admin
// token. A server with no token configured leaves them open (development
// mode).
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken != "" && r.Header.Get("X-Admin-Token") != s.adminToken {
			writeErrorEnvelope(w, http.StatusForbidden, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders applies the standard hardening headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is a per-IP token bucket.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{visitors: make(map[string]*visitor), rate: rate, window: window}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: time.Now()}
		return true
	}
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = realIP
		}
		if !rl.allow(ip) {
			w.Header().Set("Retry-After", "60")
			writeErrorEnvelope(w, http.StatusTooManyRequests, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
