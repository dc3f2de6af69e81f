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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediaforge/internal/api"
	"mediaforge/internal/logging"
	"mediaforge/internal/metrics"
	"mediaforge/internal/services"
	"mediaforge/internal/store"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	return &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/jobs", s.handleSubmit)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	mux.HandleFunc("POST /api/uploads", s.handleUpload)
	mux.HandleFunc("GET /api/assets", s.handleListAssets)
	mux.HandleFunc("GET /api/assets/{id}", s.handleAsset)
	mux.HandleFunc("GET /api/overlays", s.handleOverlays)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.instrument(mux)
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled", logging.String(logging.FieldEventType, "api_disabled"))
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listen"),
	)
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
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

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *apiServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(services.WithRequestID(r.Context(), requestID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		} else if _, path, ok := strings.Cut(route, " "); ok {
			route = path
		}
		metrics.RecordRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(started).Seconds())
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, r, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Pool:         api.FromPoolStatus(status.Pool),
		Queue:        api.FromQueueStats(status.Backend, status.Queue),
		Jobs:         api.JobCounts(status.Jobs),
		Dependencies: api.FromDependencies(status.Dependencies),
		Checks:       api.FromChecks(status.Checks),
	})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	kind := store.Kind(strings.TrimSpace(req.Kind))
	if !kind.IsValid() || kind == store.KindIngest {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "submit",
			fmt.Sprintf("unsupported job kind %q", req.Kind), nil))
		return
	}
	params, err := store.DecodeParams(kind, req.Params)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "decode params", "", err))
		return
	}
	submission, err := s.daemon.submit.Submit(r.Context(), kind, req.AssetID, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusAccepted, api.SubmitResponse{Job: submission})
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req api.UploadRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	submission, err := s.daemon.submit.Upload(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusAccepted, api.SubmitResponse{Job: submission})
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter store.JobFilter
	for _, value := range query["status"] {
		status := store.Status(strings.TrimSpace(value))
		if status == "" {
			continue
		}
		if !status.IsValid() {
			s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "list jobs",
				fmt.Sprintf("unknown status %q", value), nil))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	var err error
	if filter.AssetID, err = queryInt64(query.Get("asset_id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt64(query.Get("limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter.Limit = int(limit)

	jobs, err := s.daemon.submit.ListJobs(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.submit.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, api.JobResponse{Job: view})
}

func (s *apiServer) handleListAssets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	offset, err := queryInt64(query.Get("offset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt64(query.Get("limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	assets, err := s.daemon.submit.ListAssets(r.Context(), int(offset), int(limit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, api.AssetListResponse{Assets: assets})
}

func (s *apiServer) handleAsset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "get asset", "invalid asset id", nil))
		return
	}
	asset, err := s.daemon.submit.GetAsset(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	children, err := s.daemon.submit.Children(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, api.AssetResponse{Asset: asset, Children: children})
}

func (s *apiServer) handleOverlays(w http.ResponseWriter, r *http.Request) {
	overlays, err := s.daemon.submit.ListOverlays()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, api.OverlayListResponse{Overlays: overlays})
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return services.Wrap(services.ErrValidation, "api", "decode request", "", err)
	}
	return nil
}

func queryInt64(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "parse query",
			fmt.Sprintf("invalid number %q", value), nil)
	}
	return parsed, nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.WithContext(r.Context(), s.logger).Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := api.HTTPStatus(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if code >= http.StatusInternalServerError {
		logging.ErrorWithContext(logger, "api request failed", "api_error",
			logging.Error(err),
			logging.String("path", r.URL.Path),
		)
	} else {
		logger.Debug("api request rejected", logging.Error(err), logging.Int("status", code))
	}
	s.writeJSON(w, r, code, api.ErrorResponse{Error: err.Error(), Kind: string(services.Kind(err))})
}
