package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/talk-catalog-crawler/internal/metrics"
)

const enqueueTimeout = 5 * time.Second

// Enqueuer accepts queued runs.
type Enqueuer interface {
	Enqueue(ctx context.Context, item crawler.QueueItem) error
}

// SourceChecker reports whether a source name is registered.
type SourceChecker func(name string) bool

// Server wires HTTP handlers to the run store and queue.
type Server struct {
	router        chi.Router
	runs          crawler.RunStore
	queue         Enqueuer
	idGen         crawler.IDGenerator
	clock         crawler.Clock
	known         SourceChecker
	defaultSource string
	logger        *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runs crawler.RunStore,
	queue Enqueuer,
	idGen crawler.IDGenerator,
	clock crawler.Clock,
	known SourceChecker,
	defaultSource string,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		runs:          runs,
		queue:         queue,
		idGen:         idGen,
		clock:         clock,
		known:         known,
		defaultSource: defaultSource,
		logger:        logger,
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(s.logRequests)
	r.Use(s.recoverPanics)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1/runs", func(r chi.Router) {
		r.Post("/", s.submitRun)
		r.Get("/{run_id}", s.getRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runRequest struct {
	Source    string `json:"source"`
	Recrawl   bool   `json:"recrawl"`
	StartPage *int   `json:"start_page"`
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	request, err := s.toRunRequest(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runID, err := s.enqueueRun(r.Context(), request)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, crawler.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) toRunRequest(body runRequest) (crawler.RunRequest, error) {
	request := crawler.RunRequest{
		Source:    body.Source,
		Recrawl:   body.Recrawl,
		StartPage: 1,
	}
	if request.Source == "" {
		request.Source = s.defaultSource
	}
	if s.known != nil && !s.known(request.Source) {
		return crawler.RunRequest{}, fmt.Errorf("unknown source %q", request.Source)
	}
	if body.StartPage != nil {
		if *body.StartPage < 1 {
			return crawler.RunRequest{}, errors.New("start_page must be >= 1")
		}
		request.StartPage = *body.StartPage
	}
	return request, nil
}

func (s *Server) enqueueRun(ctx context.Context, request crawler.RunRequest) (string, error) {
	runID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	run := crawler.Run{
		ID:        runID,
		Status:    crawler.RunQueued,
		Request:   request,
		Submitted: s.clock.Now(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if err := s.queue.Enqueue(queueCtx, crawler.QueueItem{RunID: runID, Request: request}); err != nil {
		summary := crawler.Summary{
			Source:  request.Source,
			Recrawl: request.Recrawl,
			Reason:  crawler.ReasonFailed,
			Error:   "not queued: " + err.Error(),
		}
		if cerr := s.runs.CompleteRun(context.WithoutCancel(ctx), runID, summary); cerr != nil {
			s.logger.Warn("mark unqueued run failed", zap.String("run_id", runID), zap.Error(cerr))
		}
		return "", fmt.Errorf("enqueue run: %w", err)
	}
	s.logger.Info("run queued",
		zap.String("run_id", runID),
		zap.String("source", request.Source),
		zap.Bool("recrawl", request.Recrawl),
	)
	return runID, nil
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// echoRequestID returns the id assigned by middleware.RequestID to the
// caller.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("handler panicked",
					zap.Any("panic", rec),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
