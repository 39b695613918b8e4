package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"batchcursor/internal/api"
	"batchcursor/internal/config"
	"batchcursor/internal/iteration"
	"batchcursor/internal/logging"
	"batchcursor/internal/scheduler"
	"batchcursor/internal/tracing"
)

const (
	maxRequestBody      = 1 << 20
	correlationIDHeader = "X-Correlation-ID"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon
	mux    *http.ServeMux

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("paths.api_bind must be set")
	}

	srv := &apiServer{
		bind:   bind,
		token:  cfg.Paths.APIToken,
		logger: logger,
		daemon: d,
		mux:    http.NewServeMux(),
	}

	srv.handle("/api/status", srv.handleStatus)
	srv.handle("/api/invoke", srv.handleInvoke)
	srv.handle("/api/records", srv.handleRecords)
	srv.handle("/api/records/reset", srv.handleReset)
	srv.handle("/api/jobs", srv.handleJobs)
	srv.handle("/api/jobs/", srv.handleJob)
	srv.handle("/api/logs", srv.handleLogs)
	srv.handle("/api/notifications/test", srv.handleTestNotification)
	srv.handle("/continue", srv.handleInstruction)
	srv.handle("/halt", srv.handleInstruction)
	if d.events != nil {
		srv.mux.Handle("/api/events", authMiddleware(srv.token, d.events.ServeHTTP))
	}
	return srv, nil
}

func (s *apiServer) handle(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, authMiddleware(s.token, s.instrument(fn)))
}

// instrument attaches a correlation ID and a server span to each request.
func (s *apiServer) instrument(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := strings.TrimSpace(r.Header.Get(correlationIDHeader))
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		w.Header().Set(correlationIDHeader, correlationID)

		ctx := tracing.ExtractHTTPHeaders(r.Context(), r.Header)
		ctx = logging.WithCorrelationID(ctx, correlationID)
		ctx, span := tracing.StartSpan(ctx, s.daemon.engine.Tracing.Tracer(), r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String(logging.FieldCorrelationID, correlationID),
		)
		defer tracing.EndSpan(span, nil)
		next(w, r.WithContext(ctx))
	}
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	if listener != nil {
		_ = listener.Close()
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:             status.Running,
		PID:                 status.PID,
		LockFilePath:        status.LockFilePath,
		StateBackend:        status.StateBackend,
		Step:                status.Step,
		SchedulerConfigured: status.SchedulerConfigured,
		TracingEnabled:      status.TracingEnabled,
		EventClients:        status.EventClients,
		ActiveLocks:         status.ActiveLocks,
		Jobs:                api.FromJobCounts(status.Jobs),
		Latency:             api.FromLatency(status.Latency),
	})
}

func (s *apiServer) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.InvokeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.daemon.Invoke(r.Context(), req.ToRequest())
	s.writeJSON(w, iteration.HTTPStatus(err), api.NewInvokeResponse(res, err))
}

func (s *apiServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	records, err := s.daemon.Records(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RecordsResponse{Records: api.FromRecords(records)})
}

func (s *apiServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.ResetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.All {
		if err := s.daemon.ResetAll(r.Context()); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.ResetResponse{All: true})
		return
	}
	rec, err := s.daemon.Reset(r.Context(), req.Collection)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	dto := api.FromRecord(rec)
	s.writeJSON(w, http.StatusOK, api.ResetResponse{Record: &dto})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, api.JobsResponse{Jobs: api.FromJobs(s.daemon.Jobs())})
	case http.MethodPost:
		var req api.InvokeRequest
		if !s.decode(w, r, &req) {
			return
		}
		job, err := s.daemon.SubmitJob(req.ToRequest())
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromJob(job)})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if token == "" || strings.Contains(token, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		job, ok := s.daemon.Job(token)
		if !ok {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
	case http.MethodDelete:
		job, err := s.daemon.CancelJob(token)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleInstruction accepts the same continue/halt calls the HTTP signal
// makes, so one daemon can act as another's scheduler.
func (s *apiServer) handleInstruction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.SignalRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		s.writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	var err error
	if r.URL.Path == "/halt" {
		err = s.daemon.Halt(r.Context(), req.Token)
	} else {
		err = s.daemon.Continue(r.Context(), req.Token)
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sent": sent, "message": message})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: nil, Next: 0})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	tail := query.Get("tail") == "1" || strings.EqualFold(query.Get("tail"), "true")
	component := strings.TrimSpace(query.Get("component"))
	collection := strings.TrimSpace(query.Get("collection"))

	var (
		raw  []logging.LogEvent
		next uint64
	)
	if tail && since == 0 && !follow {
		raw, next = hub.Tail(limit)
	} else {
		var err error
		raw, next, err = hub.Fetch(r.Context(), since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	converted := api.FromLogEvents(raw)
	filtered := make([]api.LogEvent, 0, len(converted))
	for _, evt := range converted {
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		if collection != "" && evt.Collection != collection {
			continue
		}
		filtered = append(filtered, evt)
	}

	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{
		Events: filtered,
		Next:   next,
	})
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status, kind := iteration.HTTPStatus(err), iteration.Kind(err)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		status, kind = http.StatusNotFound, ""
	case errors.Is(err, scheduler.ErrJobFinished):
		status, kind = http.StatusConflict, ""
	case errors.Is(err, scheduler.ErrClosed):
		status, kind = http.StatusServiceUnavailable, ""
	}
	if status >= http.StatusInternalServerError {
		s.log().Error("api request failed", logging.Error(err))
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), ErrorKind: kind})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
