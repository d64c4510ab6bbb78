package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/rulegraph/internal/ir"
	"github.com/roach88/rulegraph/internal/store"
)

const (
	DefaultMaxBodyBytes    = 1 << 20
	DefaultSubmissionLimit = 20
	shutdownTimeout        = 5 * time.Second
)

// Server serves the rule backend API over a store.
type Server struct {
	store        *store.Store
	metrics      *Metrics
	logger       *slog.Logger
	validate     *validator.Validate
	origins      []string
	maxBodyBytes int64
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics replaces the server metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithMaxBodyBytes limits the size of a rule document.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

// WithTimeouts sets the read and write timeouts used by ListenAndServe.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

// NewServer returns a server storing rules in st.
func NewServer(st *store.Store, opts ...Option) *Server {
	s := &Server{
		store:        st,
		logger:       slog.Default(),
		validate:     newValidator(),
		origins:      []string{"*"},
		maxBodyBytes: DefaultMaxBodyBytes,
		readTimeout:  15 * time.Second,
		writeTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics("rulegraph_backend")
	}
	return s
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(s.observe)
	router.Use(chimiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"ETag", "X-Request-ID", "X-Revision"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", s.health)
	router.Get("/rules", s.listRules)
	router.Put("/rule{index:[0-9]+}", s.putRule)
	router.Get("/rule{index:[0-9]+}", s.getRule)
	router.Get("/rule{index:[0-9]+}/submissions", s.listSubmissions)
	router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	return router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("rule backend listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("rule backend stopped")
	return nil
}

// observe logs each request and records its metrics under the matched
// route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		s.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		s.logger.Debug("request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

type putResponse struct {
	Issues   []store.Issue `json:"issues"`
	Revision int           `json:"revision,omitempty"`
	Hash     string        `json:"hash,omitempty"`
}

type ruleSummary struct {
	Index    int          `json:"index"`
	Format   store.Format `json:"format"`
	Revision int          `json:"revision"`
	Hash     string       `json:"hash"`
}

type submissionView struct {
	RequestID string        `json:"request_id"`
	Format    store.Format  `json:"format"`
	Hash      string        `json:"hash"`
	Accepted  bool          `json:"accepted"`
	Issues    []store.Issue `json:"issues"`
	Seq       int64         `json:"seq"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) putRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	index, _ := strconv.Atoi(chi.URLParam(r, "index"))

	format, err := requestFormat(r.Header.Get("Content-Type"))
	if err != nil {
		s.reject(w, http.StatusUnsupportedMediaType, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, http.StatusRequestEntityTooLarge, fmt.Errorf("rule document exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.reject(w, http.StatusBadRequest, err)
		return
	}

	var root *ir.Element
	if format == store.FormatJSON {
		root, err = ir.ParseJSON(body)
	} else {
		root, err = ir.ParseXML(bytes.NewReader(body))
	}
	if err != nil {
		s.reject(w, http.StatusBadRequest, err)
		return
	}

	hash, err := ir.ElementHash(root)
	if err != nil {
		s.reject(w, http.StatusBadRequest, err)
		return
	}

	issues := newChecker(s.validate).check(root)
	sub := store.Submission{
		RequestID:   chimiddleware.GetReqID(ctx),
		RuleIndex:   index,
		Format:      format,
		ContentHash: hash,
		Accepted:    len(issues) == 0,
		Issues:      issues,
	}
	if _, err := s.store.WriteSubmission(ctx, sub); err != nil {
		s.fail(w, r, err)
		return
	}

	if len(issues) > 0 {
		s.metrics.IssuesReported.Add(float64(len(issues)))
		s.logger.Info("rule rejected", "index", index, "issues", len(issues), "request_id", sub.RequestID)
		writeJSON(w, http.StatusBadRequest, putResponse{Issues: issues})
		return
	}

	previous, err := s.store.ReadRule(ctx, index)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.fail(w, r, err)
		return
	}
	stored, err := s.store.PutRule(ctx, store.Rule{
		Index:       index,
		Format:      format,
		Body:        body,
		ContentHash: hash,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if stored.Revision != previous.Revision {
		s.metrics.RulesStored.Inc()
	}
	s.logger.Info("rule stored", "index", index, "revision", stored.Revision, "request_id", sub.RequestID)
	writeJSON(w, http.StatusOK, putResponse{Issues: []store.Issue{}, Revision: stored.Revision, Hash: hash})
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	index, _ := strconv.Atoi(chi.URLParam(r, "index"))
	rule, err := s.store.ReadRule(r.Context(), index)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("rule %d not found", index)})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType(rule.Format))
	w.Header().Set("ETag", strconv.Quote(rule.ContentHash))
	w.Header().Set("X-Revision", strconv.Itoa(rule.Revision))
	w.WriteHeader(http.StatusOK)
	w.Write(rule.Body)
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ListRules(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]ruleSummary, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleSummary{
			Index:    rule.Index,
			Format:   rule.Format,
			Revision: rule.Revision,
			Hash:     rule.ContentHash,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	index, _ := strconv.Atoi(chi.URLParam(r, "index"))
	limit := DefaultSubmissionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	subs, err := s.store.ReadSubmissions(r.Context(), index, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]submissionView, 0, len(subs))
	for _, sub := range subs {
		out = append(out, submissionView{
			RequestID: sub.RequestID,
			Format:    sub.Format,
			Hash:      sub.ContentHash,
			Accepted:  sub.Accepted,
			Issues:    sub.Issues,
			Seq:       sub.Seq,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// reject answers a document the backend could not read at all. The issue
// carries no operator id.
func (s *Server) reject(w http.ResponseWriter, status int, err error) {
	s.metrics.IssuesReported.Inc()
	writeJSON(w, status, putResponse{Issues: []store.Issue{{Message: err.Error()}}})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", chimiddleware.GetReqID(r.Context()),
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func requestFormat(header string) (store.Format, error) {
	if header == "" {
		return store.FormatXML, nil
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", fmt.Errorf("content type %q: %w", header, err)
	}
	switch mediaType {
	case "text/xml", "application/xml":
		return store.FormatXML, nil
	case "application/json":
		return store.FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func contentType(f store.Format) string {
	if f == store.FormatJSON {
		return "application/json"
	}
	return "text/xml"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
