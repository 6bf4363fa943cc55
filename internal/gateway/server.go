package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/pkg/log"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

const (
	readHeaderTimeout = 5 * time.Second
	maxRequestBody    = 1 << 16
)

// Controller is the station surface the gateway drives.
type Controller interface {
	Enqueue(text string) error
	ChangeBaud(rate int) error
	StartSimulation(path string) error
	StopSimulation()
	ResetLog() error
	ExportLog(dir string) (string, error)
	ReloadSchema() error
	Latest(name string) (domain.Value, bool)
	Status() domain.StationStatus
	SimulationStatus() domain.SimulationStatus
}

// Config holds the HTTP listener settings.
type Config struct {
	Addr string

	// AllowedOrigins restricts WebSocket upgrades. Empty allows any origin.
	AllowedOrigins []string
}

// Server serves the REST routes and the WebSocket feed.
type Server struct {
	config   Config
	ctrl     Controller
	hub      *Hub
	metrics  http.Handler
	logger   log.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// New creates a server. metrics may be nil.
func New(config Config, ctrl Controller, hub *Hub, metrics http.Handler, logger log.Logger) *Server {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	s := &Server{
		config:  config,
		ctrl:    ctrl,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.config.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/fields/{name}", s.handleField)
	mux.HandleFunc("GET /api/simulation", s.handleSimulationStatus)
	mux.HandleFunc("POST /api/commands", s.handleCommand)
	mux.HandleFunc("POST /api/baud", s.handleBaud)
	mux.HandleFunc("POST /api/simulation/start", s.handleSimulationStart)
	mux.HandleFunc("POST /api/simulation/stop", s.handleSimulationStop)
	mux.HandleFunc("POST /api/log/reset", s.handleLogReset)
	mux.HandleFunc("POST /api/log/export", s.handleLogExport)
	mux.HandleFunc("POST /api/schema/reload", s.handleSchemaReload)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", log.String("addr", ln.Addr().String()))
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.CloseAll()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("gateway stopped")
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", log.Err(err))
		return
	}
	c := s.hub.register(conn)
	go s.hub.writePump(c)
	go s.hub.readPump(c, s.ctrl.Enqueue)
}

type commandRequest struct {
	Text string `json:"text"`
}

type baudRequest struct {
	Baud int `json:"baud"`
}

type simulationRequest struct {
	Path string `json:"path"`
}

type exportRequest struct {
	Dir string `json:"dir"`
}

type fieldResponse struct {
	Name  string       `json:"name"`
	Value domain.Value `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleField(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	v, ok := s.ctrl.Latest(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no value for field " + name})
		return
	}
	writeJSON(w, http.StatusOK, fieldResponse{Name: name, Value: v})
}

func (s *Server) handleSimulationStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.SimulationStatus())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ctrl.Enqueue(req.Text); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queue_depth": s.ctrl.Status().QueueDepth})
}

func (s *Server) handleBaud(w http.ResponseWriter, r *http.Request) {
	var req baudRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ctrl.ChangeBaud(req.Baud); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status().Link)
}

func (s *Server) handleSimulationStart(w http.ResponseWriter, r *http.Request) {
	var req simulationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ctrl.StartSimulation(req.Path); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.ctrl.SimulationStatus())
}

func (s *Server) handleSimulationStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.StopSimulation()
	writeJSON(w, http.StatusOK, s.ctrl.SimulationStatus())
}

func (s *Server) handleLogReset(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.ResetLog(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Dir == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "dir is required"})
		return
	}
	path, err := s.ctrl.ExportLog(req.Dir)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) handleSchemaReload(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.ReloadSchema(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps station errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyCommand),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrInvalidSchema):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSimulationFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSimulationRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrLinkUnavailable), errors.Is(err, domain.ErrLinkError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", log.Err(err))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
