package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/liamcoop/querybuilder/conditions"
	"github.com/liamcoop/querybuilder/evaluate"
	"github.com/liamcoop/querybuilder/internal/logger"
	"github.com/liamcoop/querybuilder/serialize"
	"github.com/liamcoop/querybuilder/session"
	"github.com/liamcoop/querybuilder/store"
)

type Server struct {
	db       *sql.DB
	sessions *session.Manager
	loader   *store.Loader
	router   *chi.Mux
	slow     time.Duration
}

// NewServer builds the HTTP API over sessions and loader. db is only used
// for health checks and may be nil when saved queries live in memory.
func NewServer(sessions *session.Manager, loader *store.Loader, db *sql.DB, slow time.Duration) *Server {
	s := &Server{
		db:       db,
		sessions: sessions,
		loader:   loader,
		slow:     slow,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.slowRequests)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Get("/api/v1/catalogs", s.handleListCatalogs)
	r.Get("/api/v1/catalogs/{name}", s.handleGetCatalog)

	r.Post("/api/v1/evaluate", s.handleEvaluate)

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)

		r.Route("/{sessionId}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCloseSession)

			r.Post("/rules", s.handleAddRule)
			r.Post("/groups", s.handleAddGroup)
			r.Post("/remove", s.handleRemoveChild)
			r.Post("/move", s.handleMoveChild)
			r.Post("/clear", s.handleClear)
			r.Put("/connective", s.handleSetConnective)

			r.Post("/evaluate", s.handleEvaluateSession)
			r.Post("/save", s.handleSaveSession)
		})
	})

	r.Route("/api/v1/queries", func(r chi.Router) {
		r.Get("/", s.handleListQueries)
		r.Post("/", s.handleCreateQuery)
		r.Get("/{queryId}", s.handleGetQuery)
		r.Put("/{queryId}", s.handleUpdateQuery)
		r.Delete("/{queryId}", s.handleDeleteQuery)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) slowRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if d := time.Since(start); s.slow > 0 && d > s.slow {
			logger.WarnSlowRequest()
			logger.Warn("slow request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", d.String(),
				"request_id", middleware.GetReqID(r.Context()))
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	database := "memory"
	if s.db != nil {
		database = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Sessions: s.sessions.Len(),
		Catalogs: len(s.sessions.CatalogNames()),
		Database: database,
		Counters: logger.Snapshot(),
	})
}

func (s *Server) handleListCatalogs(w http.ResponseWriter, r *http.Request) {
	names := s.sessions.CatalogNames()
	out := make([]CatalogSummary, 0, len(names))
	for _, name := range names {
		cat, err := s.sessions.Catalog(name)
		if err != nil {
			continue
		}
		out = append(out, CatalogSummary{Name: name, Fields: cat.Len()})
	}
	respondJSON(w, http.StatusOK, map[string]any{"catalogs": out})
}

func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cat, err := s.sessions.Catalog(name)
	if err != nil {
		respondFailure(w, "catalog not found", err, http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, CatalogResponse{Name: name, Fields: cat.Fields()})
}

// Stateless evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Catalog == "" || len(req.Document) == 0 {
		respondError(w, http.StatusBadRequest, "catalog and document are required", nil)
		return
	}

	start := time.Now()
	matches, err := s.sessions.Evaluate(r.Context(), req.Catalog, req.Document, req.Records)
	if err != nil {
		respondFailure(w, "evaluation failed", err, http.StatusBadRequest)
		return
	}
	respondEvaluation(w, matches, len(req.Records), time.Since(start))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		sess *session.Session
		err  error
	)
	switch {
	case req.SavedQueryID != "" && len(req.Document) > 0:
		respondError(w, http.StatusBadRequest, "document and savedQueryId are mutually exclusive", nil)
		return
	case req.SavedQueryID != "":
		sess, err = s.sessions.CreateFromSaved(req.SavedQueryID)
	case req.Catalog == "":
		respondError(w, http.StatusBadRequest, "catalog is required", nil)
		return
	case len(req.Document) > 0:
		sess, err = s.sessions.CreateFromDocument(req.Catalog, req.Document)
	default:
		sess, err = s.sessions.Create(req.Catalog)
	}
	if err != nil {
		respondFailure(w, "failed to create session", err, http.StatusBadRequest)
		return
	}

	snap, err := sess.Snapshot()
	respondSnapshot(w, http.StatusCreated, snap, err)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		respondFailure(w, "session not found", err, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Snapshot()
	respondSnapshot(w, http.StatusOK, snap, err)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "sessionId")); err != nil {
		respondFailure(w, "session not found", err, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req AddRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	values, err := operands(req.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid value", err)
		return
	}

	snap, err := sess.AddRule(req.Path, req.Field, req.Operator, values...)
	respondSnapshot(w, http.StatusOK, snap, err)
}

func (s *Server) handleAddGroup(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req AddGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := conditions.ParseConnective(req.Connective)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid connective", err)
		return
	}

	snap, err := sess.AddGroup(req.Path, c)
	respondSnapshot(w, http.StatusOK, snap, err)
}

func (s *Server) handleRemoveChild(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req RemoveChildRequest
	if !decodeBody(w, r, &req) {
		return
	}

	snap, err := sess.RemoveChild(req.Path, req.Index)
	respondSnapshot(w, http.StatusOK, snap, err)
}

func (s *Server) handleMoveChild(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req MoveChildRequest
	if !decodeBody(w, r, &req) {
		return
	}

	snap, err := sess.MoveChild(req.Path, req.From, req.To)
	respondSnapshot(w, http.StatusOK, snap, err)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Clear()
	respondSnapshot(w, http.StatusOK, snap, err)
}

func (s *Server) handleSetConnective(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req SetConnectiveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := conditions.ParseConnective(req.Connective)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid connective", err)
		return
	}

	snap, err := sess.SetConnective(req.Path, c)
	respondSnapshot(w, http.StatusOK, snap, err)
}

func (s *Server) handleEvaluateSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req EvaluateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	matches, err := sess.Evaluate(r.Context(), req.Records)
	if err != nil {
		respondFailure(w, "evaluation failed", err, http.StatusInternalServerError)
		return
	}
	respondEvaluation(w, matches, len(req.Records), time.Since(start))
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req SaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	q, err := sess.Save(req.Name)
	if err != nil {
		respondFailure(w, "failed to save query", err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, q)
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := s.loader.Store().List()
	if err != nil {
		respondFailure(w, "failed to list saved queries", err, http.StatusInternalServerError)
		return
	}
	if queries == nil {
		queries = []*store.SavedQuery{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"queries": queries})
}

// handleCreateQuery stores a document directly, without a session.
func (s *Server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var req UpdateQueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Catalog == "" || len(req.Document) == 0 {
		respondError(w, http.StatusBadRequest, "name, catalog and document are required", nil)
		return
	}
	if _, err := s.sessions.Catalog(req.Catalog); err != nil {
		respondFailure(w, "catalog not found", err, http.StatusNotFound)
		return
	}
	root, err := serialize.Decode(req.Document)
	if err != nil {
		respondFailure(w, "invalid document", err, http.StatusBadRequest)
		return
	}

	q, err := s.loader.Save(req.Name, req.Catalog, root)
	if err != nil {
		respondFailure(w, "failed to save query", err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, q)
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	q, err := s.loader.Store().Get(chi.URLParam(r, "queryId"))
	if err != nil {
		respondFailure(w, "saved query not found", err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (s *Server) handleUpdateQuery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "queryId")

	var req UpdateQueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || len(req.Document) == 0 {
		respondError(w, http.StatusBadRequest, "name and document are required", nil)
		return
	}

	existing, err := s.loader.Store().Get(id)
	if err != nil {
		respondFailure(w, "saved query not found", err, http.StatusInternalServerError)
		return
	}
	catalog := existing.Catalog
	if req.Catalog != "" {
		if _, err := s.sessions.Catalog(req.Catalog); err != nil {
			respondFailure(w, "catalog not found", err, http.StatusNotFound)
			return
		}
		catalog = req.Catalog
	}

	// store the canonical form
	root, err := serialize.Decode(req.Document)
	if err != nil {
		respondFailure(w, "invalid document", err, http.StatusBadRequest)
		return
	}
	doc, err := serialize.Encode(root)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode document", err)
		return
	}

	q := &store.SavedQuery{ID: id, Name: req.Name, Catalog: catalog, Document: doc}
	if err := s.loader.Update(q); err != nil {
		respondFailure(w, "failed to update saved query", err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	if err := s.loader.Delete(chi.URLParam(r, "queryId")); err != nil {
		respondFailure(w, "failed to delete saved query", err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// operands converts a request value to rule operands the way documents do:
// absent means none, an array means one operand per element.
func operands(raw json.RawMessage) ([]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if list, ok := v.([]any); ok {
		return list, nil
	}
	return []any{v}, nil
}

// Helper functions
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func respondSnapshot(w http.ResponseWriter, status int, snap session.Snapshot, err error) {
	if err != nil {
		respondFailure(w, "mutation rejected", err, http.StatusBadRequest)
		return
	}
	respondJSON(w, status, snap)
}

func respondEvaluation(w http.ResponseWriter, matches []evaluate.MapRecord, total int, took time.Duration) {
	if matches == nil {
		matches = []evaluate.MapRecord{}
	}
	respondJSON(w, http.StatusOK, EvaluateResponse{
		Matches:        matches,
		Matched:        len(matches),
		Total:          total,
		EvaluationTime: took.String(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
		if v := violationsOf(err); v != nil {
			response.Violations = v
		}
	}

	switch {
	case status >= 500:
		logger.ErrorHttp5xx()
		logger.Error(message, "status", status, "error", err)
	case status >= 400:
		logger.WarnHttp4xx(status)
	}
	respondJSON(w, status, response)
}

// respondFailure picks the status for err, using fallback for errors the
// API has no specific mapping for.
func respondFailure(w http.ResponseWriter, message string, err error, fallback int) {
	respondError(w, statusFor(err, fallback), message, err)
}

func statusFor(err error, fallback int) int {
	var verr *conditions.ViolationError
	var v *conditions.Violation
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrCatalogNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.As(err, &v):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return fallback
}

func violationsOf(err error) []conditions.Violation {
	var verr *conditions.ViolationError
	if errors.As(err, &verr) {
		return verr.Violations
	}
	var v *conditions.Violation
	if errors.As(err, &v) {
		return []conditions.Violation{*v}
	}
	return nil
}
