// Package api serves the demonstrations over HTTP and websockets
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/TheEntropyCollective/asyncdemo/pkg/demo"
	"github.com/TheEntropyCollective/asyncdemo/pkg/history"
	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/logging"
	"github.com/TheEntropyCollective/asyncdemo/pkg/metrics"
)

// Config holds the HTTP-facing settings
type Config struct {
	CORSOrigin        string
	RateLimitEnabled  bool
	RequestsPerSecond float64
	Burst             int
	TelemetryInterval time.Duration
	MetricsPath       string

	// TrustProxy keys clients on X-Forwarded-For/X-Real-IP. Enable it only
	// behind a proxy that overwrites those headers.
	TrustProxy bool
}

// Server wires the demonstration service to HTTP routes
type Server struct {
	config  Config
	service *demo.Service
	history *history.Store
	metrics *metrics.Metrics
	logger  *logging.Logger
	limiter *clientLimiter

	wsUpgrader websocket.Upgrader
	started    time.Time
}

// NewServer creates an API server. history and m may be nil.
func NewServer(config Config, service *demo.Service, store *history.Store, m *metrics.Metrics, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if config.TelemetryInterval <= 0 {
		config.TelemetryInterval = time.Second
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if store == nil {
		store = history.NewStore(0)
	}

	s := &Server{
		config:  config,
		service: service,
		history: store,
		metrics: m,
		logger:  logger.WithComponent("api"),
		started: time.Now(),
	}
	if config.RateLimitEnabled && config.RequestsPerSecond > 0 {
		s.limiter = newClientLimiter(config.RequestsPerSecond, config.Burst)
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowedOrigin(origin) || origin == "http://"+r.Host
		},
	}
	return s
}

// Handler returns the complete HTTP handler
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		router.Handle(s.config.MetricsPath, s.metrics.Handler()).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.observe, s.rateLimit)

	demos := api.PathPrefix("/AsyncDemo").Subrouter()
	demos.HandleFunc("/thread-info", handle(s, s.service.ThreadInfo)).Methods("GET")
	demos.HandleFunc("/sync-vs-async", handle(s, s.service.CompareSimple)).Methods("GET")
	demos.HandleFunc("/sync-vs-async-detailed", s.handleComparison).Methods("GET")
	demos.HandleFunc("/parallel-tasks", handle(s, s.service.ParallelTasks)).Methods("GET")
	demos.HandleFunc("/task-lifecycle", handle(s, s.service.TaskLifecycle)).Methods("GET")
	demos.HandleFunc("/thread-pool", handle(s, s.service.ThreadPool)).Methods("GET")
	demos.HandleFunc("/configure-await", handle(s, s.service.ContinuationAffinity)).Methods("GET")
	demos.HandleFunc("/async-stream", s.handleStream).Methods("GET")
	demos.HandleFunc("/async-stream/ws", s.handleStreamSocket)
	demos.HandleFunc("/cancellation-demo", s.handleCancellation).Methods("GET")
	demos.HandleFunc("/deadlock-prevention", handle(s, s.service.DeadlockPrevention)).Methods("GET")
	demos.HandleFunc("/comprehensive-demo", handle(s, s.service.ComprehensiveDemo)).Methods("GET")
	demos.HandleFunc("/pool-snapshot", s.handlePoolSnapshot).Methods("GET")
	demos.HandleFunc("/pool/ws", s.handlePoolSocket)
	demos.HandleFunc("/history", s.handleHistory).Methods("GET")
	demos.HandleFunc("/history/{id}", s.handleHistoryEntry).Methods("GET")

	faults := api.PathPrefix("/ErrorHandling").Subrouter()
	faults.HandleFunc("/task-exception", s.handleTaskException).Methods("GET")
	faults.HandleFunc("/multiple-tasks-with-exceptions", handle(s, s.service.MultipleTasksWithExceptions)).Methods("GET")

	tasks := api.PathPrefix("/TaskExamples").Subrouter()
	tasks.HandleFunc("/task-cancellation", handle(s, s.service.TaskCancellation)).Methods("GET")
	tasks.HandleFunc("/producer-consumer", handle(s, s.service.ProducerConsumer)).Methods("GET")
	tasks.HandleFunc("/async-enumerable", s.handleStream).Methods("GET")

	client := api.PathPrefix("/HttpClient").Subrouter()
	client.HandleFunc("/sequential-calls", handle(s, s.service.SequentialCalls)).Methods("GET")
	client.HandleFunc("/parallel-calls", handle(s, s.service.ParallelCalls)).Methods("GET")

	return securityHeaders(s.cors(router))
}

// handle adapts a demonstration to an HTTP handler
func handle[T any](s *Server, run func(ctx context.Context) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := run(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		sendJSON(w, result)
	}
}

// fail reports err unless the client has already gone away
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		s.logger.WithField("route", routeName(r)).Debug("client went away before the demonstration finished")
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithField("route", routeName(r)).WithError(err).Error("demonstration failed")
	}
	sendError(w, err, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status": "ok",
			"uptime": time.Since(s.started).Round(time.Second).String(),
		},
	})
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	var opts demo.Options
	var err error
	if opts.OperationCount, err = queryInt(r, "operationCount"); err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	delayMs, err := queryInt(r, "delayMs")
	if err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	opts.Delay = time.Duration(delayMs) * time.Millisecond

	report, err := s.service.Comparison(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.history.Add(report); err != nil {
		s.logger.WithError(err).Warn("failed to record comparison report")
	}
	sendJSON(w, report)
}

func (s *Server) handleCancellation(w http.ResponseWriter, r *http.Request) {
	cancelAfterMs, err := queryInt(r, "cancelAfterMs")
	if err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	result, err := s.service.Cancellation(r.Context(), demo.CancellationOptions{
		CancelAfter: time.Duration(cancelAfterMs) * time.Millisecond,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sendJSON(w, result)
}

func (s *Server) handleTaskException(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.TaskException(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sendJSONStatus(w, http.StatusBadRequest, report)
}

// handleStream writes the stream as a JSON array, flushing after every item
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	first := true
	err := s.service.Stream(r.Context(), func(item demo.StreamItem) error {
		prefix := ","
		if first {
			prefix = "["
			first = false
		}
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		if _, err := w.Write(append([]byte(prefix), data...)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil && first {
		s.fail(w, r, err)
		return
	}
	if err != nil {
		s.logger.WithError(err).Debug("stream ended early")
		return
	}
	if first {
		_, _ = w.Write([]byte("["))
	}
	_, _ = w.Write([]byte("]\n"))
}

func (s *Server) handlePoolSnapshot(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, s.service.PoolSnapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"entries": s.history.List(),
			"stats":   s.history.GetStats(),
		},
	})
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateRunID(id); err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	report, err := s.history.Get(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sendJSON(w, report)
}
