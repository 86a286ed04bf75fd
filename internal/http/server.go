// Package http exposes the savings ledger to the UI as a JSON API. One
// controller is kept per authenticated user; the server only translates
// between HTTP and ledger operations.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/jefersonfloz/ahorraplus/internal/auth"
	"github.com/jefersonfloz/ahorraplus/internal/core"
	"github.com/jefersonfloz/ahorraplus/internal/goalstore"
	"github.com/jefersonfloz/ahorraplus/internal/ledger"
)

type contextKey string

const (
	contextKeySession   contextKey = "session"
	contextKeyRequestID contextKey = "request_id"
)

// Exporter appends a snapshot report to an external spreadsheet.
type Exporter interface {
	AppendReport(ctx context.Context, snap core.Snapshot, now time.Time) error
}

// Options carries the optional collaborators of the server.
type Options struct {
	Policy    ledger.Policy
	Publisher ledger.EventPublisher
	Exporter  Exporter
}

// Server is the HTTP front of the ledger. It creates one controller per
// authenticated user on first contact and reuses it for the session's
// lifetime.
type Server struct {
	http.Server

	backend   goalstore.Backend
	verifier  *auth.Verifier
	policy    ledger.Policy
	publisher ledger.EventPublisher
	exporter  Exporter

	// sessions holds one controller per user id for the process lifetime.
	// Controllers are small (a snapshot plus a status map) and the user
	// population of a single-node deployment is bounded, so there is no
	// eviction; a TTL would be needed before pointing a large tenant base
	// at one instance.
	mu       sync.Mutex
	sessions map[int64]*ledger.Controller
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, backend goalstore.Backend, verifier *auth.Verifier, opts Options) *Server {
	s := &Server{
		backend:   backend,
		verifier:  verifier,
		policy:    opts.Policy,
		publisher: opts.Publisher,
		exporter:  opts.Exporter,
		sessions:  make(map[int64]*ledger.Controller),
	}

	r := mux.NewRouter()
	r.Use(s.withRequestLog)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.withAuth)
	api.HandleFunc("/savings-goals/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/savings-goals/export", s.handleExport).Methods(http.MethodPost)
	api.HandleFunc("/savings-goals", s.handleListGoals).Methods(http.MethodGet)
	api.HandleFunc("/savings-goals", s.handleCreateGoal).Methods(http.MethodPost)
	api.HandleFunc("/savings-goals/{id:[0-9]+}/add", s.handleAddFunds).Methods(http.MethodPost)
	api.HandleFunc("/savings-goals/{id:[0-9]+}/withdraw", s.handleWithdraw).Methods(http.MethodPost)
	api.HandleFunc("/savings-goals/{id:[0-9]+}/refund-preview", s.handleRefundPreview).Methods(http.MethodGet)
	api.HandleFunc("/savings-goals/{id:[0-9]+}", s.handleDeleteGoal).Methods(http.MethodDelete)

	s.Server = http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Controllers returns the controllers of all live sessions, for scheduled
// reconciliation.
func (s *Server) Controllers() []*ledger.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ledger.Controller, 0, len(s.sessions))
	for _, c := range s.sessions {
		out = append(out, c)
	}
	return out
}

// controllerFor returns (creating if needed) the session controller for a
// user. A controller whose first reconciliation failed is retried here
// instead of serving requests with no snapshot.
func (s *Server) controllerFor(ctx context.Context, session auth.Session) (*ledger.Controller, error) {
	s.mu.Lock()
	c, ok := s.sessions[session.UserID]
	if !ok {
		c = ledger.NewController(s.backend, s.backend, session.UserID, s.policy)
		c.SetUserEmail(session.Email)
		if s.publisher != nil {
			c.SetPublisher(s.publisher)
		}
		s.sessions[session.UserID] = c
	}
	s.mu.Unlock()

	if _, loaded := c.Snapshot(); !loaded {
		if err := c.LoadAll(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// withRequestLog tags each request with an id and logs start and completion.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// withAuth verifies the bearer token and stores the session in the context.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		session, err := s.verifier.Parse(tokenString)
		if err != nil {
			slog.WarnContext(r.Context(), "Rejected token", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeySession, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) (auth.Session, bool) {
	session, ok := ctx.Value(contextKeySession).(auth.Session)
	return session, ok
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
