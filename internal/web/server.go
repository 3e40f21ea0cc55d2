// Package web serves the history store and the analyzer over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"benchhist/internal/benchmark"
	"benchhist/internal/codec"
	apperrors "benchhist/internal/errors"
	"benchhist/internal/metrics"
	"benchhist/internal/pipeline"

	"github.com/google/uuid"
)

// maxBodyBytes bounds the size of a submitted run record.
const maxBodyBytes = 8 << 20

const defaultHistoryLimit = 10

// Server exposes ingestion, evaluation and history queries.
type Server struct {
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	addr     string
	logger   *slog.Logger
}

// NewServer creates a new web server. m may be nil.
func NewServer(p *pipeline.Pipeline, m *metrics.Metrics, addr string) *Server {
	if addr == "" {
		addr = ":8080"
	}
	return &Server{
		pipeline: p,
		metrics:  m,
		addr:     addr,
		logger:   slog.Default().With("component", "web"),
	}
}

// Handler returns the routed handler with request tracking applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("POST /api/suites/{suite}/runs", s.handleIngest)
	mux.HandleFunc("POST /api/suites/{suite}/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /api/suites", s.handleSuites)
	mux.HandleFunc("GET /api/suites/{suite}/benchmarks/{name}/latest", s.handleLatest)
	mux.HandleFunc("GET /api/suites/{suite}/benchmarks/{name}/history", s.handleHistory)
	mux.HandleFunc("GET /api/document", s.handleDocument(codec.FormatJSON))
	mux.HandleFunc("GET /data.js", s.handleDocument(codec.FormatJS))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	var h http.Handler = mux
	if s.metrics != nil {
		h = s.metrics.RequestTrackingMiddleware(h, func(r *http.Request) string { return r.Pattern })
	}
	return s.withRequestID(h)
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request served", "request_id", id, "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	suite := r.PathValue("suite")
	rec, err := decodeRecord(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := s.pipeline.Ingest(r.Context(), suite, rec)
	if err != nil {
		s.logger.Warn("ingest failed", "suite", suite, "commit", rec.Commit.ID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Evaluate(r.PathValue("suite"), rec))
}

type suiteJSON struct {
	Name       string `json:"name"`
	Records    int    `json:"records"`
	Benchmarks int    `json:"benchmarks"`
}

func (s *Server) handleSuites(w http.ResponseWriter, r *http.Request) {
	store := s.pipeline.Store
	suites := []suiteJSON{}
	for _, name := range store.Suites() {
		suites = append(suites, suiteJSON{
			Name:       name,
			Records:    store.Len(name),
			Benchmarks: len(store.Names(name)),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lastUpdate": store.LastUpdate(),
		"suites":     suites,
	})
}

type occurrenceJSON struct {
	Seq         int                   `json:"seq"`
	CommitID    string                `json:"commitId"`
	Tool        string                `json:"tool"`
	Date        int64                 `json:"date"`
	Measurement benchmark.Measurement `json:"measurement"`
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	suite, name := r.PathValue("suite"), r.PathValue("name")
	o, ok := s.pipeline.Store.Latest(suite, name)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorJSON{Error: "no occurrence of " + strconv.Quote(name) + " in suite " + strconv.Quote(suite)})
		return
	}
	writeJSON(w, http.StatusOK, occurrenceJSON(o))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	out := []occurrenceJSON{}
	for o := range s.pipeline.Store.History(r.PathValue("suite"), r.PathValue("name"), limit) {
		out = append(out, occurrenceJSON(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDocument(format codec.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := codec.Marshal(s.pipeline.Store.Snapshot(), format)
		if err != nil {
			writeError(w, err)
			return
		}
		if format == codec.FormatJS {
			w.Header().Set("Content-Type", "application/javascript")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		w.Write(data)
	}
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (benchmark.Record, error) {
	var rec benchmark.Record
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return rec, apperrors.New(apperrors.ErrMalformedDocument, "decode", "body", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, apperrors.New(apperrors.ErrMalformedDocument, "decode", "record", err)
	}
	return rec, nil
}

type errorJSON struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrDuplicateIdentity):
		return http.StatusConflict, apperrors.ErrDuplicateIdentity.Error()
	case errors.Is(err, apperrors.ErrMalformedDocument):
		return http.StatusBadRequest, apperrors.ErrMalformedDocument.Error()
	case errors.Is(err, apperrors.ErrInvalidRecord):
		return http.StatusBadRequest, apperrors.ErrInvalidRecord.Error()
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, apperrors.ErrStorageUnavailable.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ""
	default:
		return http.StatusInternalServerError, ""
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	writeJSON(w, status, errorJSON{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
