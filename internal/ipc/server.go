package ipc

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server wraps an HTTP server with verifier routing.
type Server struct {
	httpServer *http.Server
}

// NewRouter registers every endpoint. A nil metrics handler leaves /metrics
// unrouted.
func NewRouter(h *Handler, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()

	// Health endpoint.
	r.HandleFunc("/api/health", h.Health).Methods(http.MethodGet)

	// Auth endpoints.
	r.HandleFunc("/api/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/signin", h.SignIn).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/verify-user", h.VerifyUser).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/reset-pattern", h.ResetPattern).Methods(http.MethodPost)

	// Audit endpoint, admin only.
	r.HandleFunc("/api/auth/audit/{username}", h.requireAdmin(h.ListAudit)).Methods(http.MethodGet)

	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	r.Use(loggingMiddleware(h.logger()))
	return r
}

// NewServer creates a Server that binds to the given address.
func NewServer(h *Handler, metrics http.Handler, listenAddr string) *Server {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           corsMiddleware(NewRouter(h, metrics)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		httpServer: srv,
	}
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for browser clients on other origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}
