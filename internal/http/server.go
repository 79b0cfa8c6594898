package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"stash/internal/cache"
	applog "stash/internal/log"
	"stash/internal/services"
)

type Server struct {
	http.Server
	service     *services.AllocationService
	logger      *applog.Logger
	rateLimiter *rateLimiter

	// Computed allocation snapshots keyed by account id.
	snapshotCache *cache.TTLCache[services.AllocationSnapshot]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, service *services.AllocationService, logger *applog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		service:       service,
		logger:        logger,
		rateLimiter:   newRateLimiter(),
		snapshotCache: cache.NewTTLCache[services.AllocationSnapshot](256, time.Minute),
		cacheManager:  cache.NewManager(),
	}

	s.cacheManager.Register(s.snapshotCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /accounts", s.withMiddleware(s.handleListAccounts))
	mux.HandleFunc("POST /accounts", s.withMiddleware(s.handleCreateAccount))
	mux.HandleFunc("GET /accounts/{id}", s.withMiddleware(s.handleGetAccount))
	mux.HandleFunc("DELETE /accounts/{id}", s.withMiddleware(s.handleDeleteAccount))
	mux.HandleFunc("PUT /accounts/{id}/balance", s.withMiddleware(s.handleUpdateBalance))
	mux.HandleFunc("GET /accounts/{id}/allocation", s.withMiddleware(s.handleGetAllocation))

	mux.HandleFunc("PUT /accounts/{id}/rules", s.withMiddleware(s.handleReplaceRules))
	mux.HandleFunc("POST /accounts/{id}/rules", s.withMiddleware(s.handleAddRule))
	mux.HandleFunc("PATCH /accounts/{id}/rules/{ruleID}", s.withMiddleware(s.handleUpdateRule))
	mux.HandleFunc("DELETE /accounts/{id}/rules/{ruleID}", s.withMiddleware(s.handleDeleteRule))
	mux.HandleFunc("POST /accounts/{id}/rules/{ruleID}/move", s.withMiddleware(s.handleMoveRule))
	mux.HandleFunc("POST /accounts/{id}/rules/{ruleID}/cancel", s.withMiddleware(s.handleCancelEdit))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withMiddleware adds security headers, rate limiting, and request
// logging around a handler.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		logger := s.logger.With("request_id", requestID)
		ctx := applog.WithContext(r.Context(), logger)
		r = r.WithContext(ctx)

		logger.InfoContext(ctx, "Request started",
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Rate limit mutations only; reads are cheap and cached.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		logger.InfoContext(ctx, "Request completed",
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
