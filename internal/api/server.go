package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/auth"
	"github.com/fleetwatch/fleetwatch/internal/crypto"
	"github.com/fleetwatch/fleetwatch/internal/monitor"
	"github.com/fleetwatch/fleetwatch/internal/storage"
	"github.com/fleetwatch/fleetwatch/internal/watcher"
	"github.com/gorilla/mux"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Server handles HTTP requests
type Server struct {
	db           *storage.DB
	cipher       *crypto.Cipher
	monitor      *monitor.Monitor
	scheduler    *watcher.Scheduler
	router       *mux.Router
	loginLimiter *auth.RateLimiter
}

// New creates a new API server
func New(db *storage.DB, cipher *crypto.Cipher, mon *monitor.Monitor, sched *watcher.Scheduler) *Server {
	s := &Server{
		db:           db,
		cipher:       cipher,
		monitor:      mon,
		scheduler:    sched,
		router:       mux.NewRouter(),
		loginLimiter: auth.NewRateLimiter(10, 15*time.Minute),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Public endpoints
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/auth/register", s.handleRegister).Methods("POST")
	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/auth/logout", s.handleLogout).Methods("POST")

	// Account endpoints
	api.HandleFunc("/auth/profile", s.requireAuth(s.handleProfile)).Methods("GET")
	api.HandleFunc("/auth/change-password", s.requireAuth(s.handleChangePassword)).Methods("POST")

	// Platform endpoints
	api.HandleFunc("/platforms", s.requireAuth(s.handleGetPlatforms)).Methods("GET")
	api.HandleFunc("/platforms", s.requireAuth(s.handleAddPlatform)).Methods("POST")
	api.HandleFunc("/platforms/{id}", s.requireAuth(s.handleUpdatePlatform)).Methods("PUT")
	api.HandleFunc("/platforms/{id}", s.requireAuth(s.handleDeletePlatform)).Methods("DELETE")
	api.HandleFunc("/platforms/{id}/apikey", s.requireAuth(s.handleRevealAPIKey)).Methods("GET")
	api.HandleFunc("/platforms/{id}/test", s.requireAuth(s.handleTestPlatform)).Methods("POST")

	// Container endpoints
	api.HandleFunc("/containers", s.requireAuth(s.handleGetContainers)).Methods("GET")
	api.HandleFunc("/containers/refresh", s.requireAuth(s.handleRefreshContainers)).Methods("POST")
	api.HandleFunc("/containers/batch", s.requireAuth(s.handleBatchContainerAction)).Methods("POST")
	api.HandleFunc("/containers/{id}", s.requireAuth(s.handleGetContainer)).Methods("GET")
	api.HandleFunc("/containers/{id}", s.requireAuth(s.handleDeleteContainer)).Methods("DELETE")
	api.HandleFunc("/containers/{id}/start", s.requireAuth(s.handleStartContainer)).Methods("POST")
	api.HandleFunc("/containers/{id}/stop", s.requireAuth(s.handleStopContainer)).Methods("POST")
	api.HandleFunc("/containers/{id}/restart", s.requireAuth(s.handleRestartContainer)).Methods("POST")
	api.HandleFunc("/containers/{id}/logs", s.requireAuth(s.handleGetContainerLogs)).Methods("GET")

	// Alert endpoints
	api.HandleFunc("/alerts", s.requireAuth(s.handleGetAlerts)).Methods("GET")
	api.HandleFunc("/alerts/{id}/read", s.requireAuth(s.handleMarkAlertRead)).Methods("PUT")
	api.HandleFunc("/alerts/channels", s.requireAuth(s.handleGetAlertChannels)).Methods("GET")
	api.HandleFunc("/alerts/channels", s.requireAuth(s.handleAddAlertChannel)).Methods("POST")
	api.HandleFunc("/alerts/channels/{id}", s.requireAuth(s.handleUpdateAlertChannel)).Methods("PUT")
	api.HandleFunc("/alerts/channels/{id}", s.requireAuth(s.handleDeleteAlertChannel)).Methods("DELETE")

	// Watch task endpoints
	api.HandleFunc("/watch", s.requireAuth(s.handleGetWatchTasks)).Methods("GET")
	api.HandleFunc("/watch", s.requireAuth(s.handleAddWatchTask)).Methods("POST")
	api.HandleFunc("/watch/{id}", s.requireAuth(s.handleUpdateWatchTask)).Methods("PUT")
	api.HandleFunc("/watch/{id}", s.requireAuth(s.handleDeleteWatchTask)).Methods("DELETE")
	api.HandleFunc("/watch/{id}/containers", s.requireAuth(s.handleSetWatchContainers)).Methods("PUT")
	api.HandleFunc("/watch/{id}/logs", s.requireAuth(s.handleGetWatchLogs)).Methods("GET")

	// Serve static files (web frontend)
	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir("./web")))
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// requireAuth rejects requests without a valid session and stashes the
// user id in the request context
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.SessionUserID(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

// requestUserID returns the authenticated user id stored by requireAuth
func requestUserID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

// clientIP returns the remote address without the port, for rate limiting
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
