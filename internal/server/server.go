// Package server exposes the engine to its collaborators: a websocket
// ingress the automation executor reports into, and a read-only HTTP API the
// reporting dashboard consumes. Nothing here mutates state except through
// the tracker and learner.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ciciliostudio/loginpilot/internal/archive"
	"github.com/ciciliostudio/loginpilot/internal/engine"
	"github.com/ciciliostudio/loginpilot/internal/rules"
	"github.com/ciciliostudio/loginpilot/internal/session"
	"github.com/ciciliostudio/loginpilot/internal/stats"
	"github.com/ciciliostudio/loginpilot/internal/twofa"
)

// Server wires the tracker and learner behind HTTP.
type Server struct {
	tracker *session.Tracker
	learner *engine.Learner
	store   *rules.Store
	history *session.History
	archive *archive.Archive
	codes   twofa.CodeReader
	logger  *zap.Logger

	allowedOrigins []string

	// The engine has a synchronous single-writer mutation model; the
	// mutex serializes every rule mutation path: executor reports
	// arriving on separate connections and community imports alike.
	mu sync.Mutex

	httpServer *http.Server
}

// Options carries the collaborators the server fronts. Archive and Codes may
// be nil.
type Options struct {
	Tracker *session.Tracker
	Learner *engine.Learner
	Store   *rules.Store
	History *session.History
	Archive *archive.Archive
	Codes   twofa.CodeReader
	Logger  *zap.Logger
}

// New builds a server from its collaborators.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		tracker: opts.Tracker,
		learner: opts.Learner,
		store:   opts.Store,
		history: opts.History,
		archive: opts.Archive,
		codes:   opts.Codes,
		logger:  logger,
	}
}

// Router assembles the chi router with CORS for the extension's pages. The
// same origin list gates websocket upgrades.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	s.allowedOrigins = allowedOrigins

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/api/rules", s.handleRules)
	r.Get("/api/rules/{domain}", s.handleRuleForDomain)
	r.Get("/api/history", s.handleHistory)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/contributable", s.handleContributable)
	r.HandleFunc("/ws/executor", s.handleExecutorWS)

	return r
}

// ListenAndServe runs the server until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, listen string, allowedOrigins []string) error {
	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.Router(allowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", listen))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ruleset := s.store.RuleSet()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, ruleset)
}

func (s *Server) handleRuleForDomain(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	s.mu.Lock()
	rule, ok := s.store.RuleForDomain(domain)
	if ok {
		rule = rule.Clone()
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	attempts := s.history.Attempts()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attempts": attempts,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	attempts := s.history.Attempts()
	s.mu.Unlock()
	archived := 0
	if s.archive != nil {
		archived = s.archive.Count()
	}
	writeJSON(w, http.StatusOK, stats.Aggregate(attempts, archived))
}

func (s *Server) handleContributable(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	entries := stats.ContributionReport(s.learner.ContributableRules())
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
