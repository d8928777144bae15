package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/dStream/stream/pipeline"
	"github.com/ValentinKolb/dStream/stream/sink"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("monitor")

// IPipeline is the view of a pipeline the monitor needs, implemented by *pipeline.Pipeline
type IPipeline interface {
	Stats() pipeline.Stats
	WritePrometheus(w io.Writer)
}

// Config of the monitor endpoint
type Config struct {
	// Endpoint is the host:port to listen on
	Endpoint string
	// Debug enables request logging
	Debug bool
	// ProcessMetrics adds go runtime and process metrics to /metrics
	ProcessMetrics bool
}

// Server exposes metrics, pipeline stats and parameters over http
type Server struct {
	config    Config
	params    *sink.ParameterStore
	pipelines []IPipeline

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a monitor for the given pipelines. params may be nil.
func NewServer(config Config, params *sink.ParameterStore, pipelines ...IPipeline) *Server {
	return &Server{
		config:    config,
		params:    params,
		pipelines: pipelines,
	}
}

// Handler returns the http handler with all routes registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, h http.HandlerFunc) {
		if s.config.Debug {
			h = loggerMiddleware(h)
		}
		mux.HandleFunc(pattern, h)
	}

	handle("GET /health", s.handleHealth)
	handle("GET /metrics", s.handleMetrics)
	handle("GET /status", s.handleStatus)
	handle("GET /params", s.handleParamNames)
	handle("GET /params/{name}", s.handleParam)

	return mux
}

// Start binds the endpoint and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("monitor already started")
	}

	listener, err := net.Listen("tcp", s.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Endpoint, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	Logger.Infof("Starting monitor on http://%s", listener.Addr())

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("monitor stopped: %v", err)
		}
	}()
	return nil
}

// Addr returns the listen address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

// handleMetrics writes the metrics of all pipelines in prometheus text format
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	for _, p := range s.pipelines {
		p.WritePrometheus(w)
	}
	if s.config.ProcessMetrics {
		metrics.WriteProcessMetrics(w)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	stats := make([]pipeline.Stats, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		stats = append(stats, p.Stats())
	}
	writeJSON(w, stats)
}

func (s *Server) handleParamNames(w http.ResponseWriter, _ *http.Request) {
	if s.params == nil {
		writeJSON(w, []string{})
		return
	}
	writeJSON(w, s.params.Names())
}

// handleParam returns the raw latest payload of a parameter
func (s *Server) handleParam(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if s.params == nil {
		http.Error(w, "No parameters", http.StatusNotFound)
		return
	}

	param, ok := s.params.Get(name)
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown parameter %q", name), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(param.Payload)))
	w.Header().Set("Last-Modified", param.Updated.UTC().Format(http.TimeFormat))
	w.Header().Set("X-Param-Version", strconv.FormatUint(param.Version, 10))

	if _, err := w.Write(param.Payload); err != nil {
		Logger.Debugf("failed to write parameter %s: %v", name, err)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter captures the status code of a response
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware logs every request at debug level
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
