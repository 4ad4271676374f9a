package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/t-webber/ntpnews/internal/metrics"
	"github.com/t-webber/ntpnews/news"
	"github.com/t-webber/ntpnews/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// maxActionBody caps the size of action arguments.
	maxActionBody = 64 << 10

	// defaultTitle is reported when no custom title is configured.
	defaultTitle = "News"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// WidgetSource provides the compact widget content.
type WidgetSource interface {
	View() news.WidgetView
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics enables collectors and the /metrics endpoint.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTitle sets the title reported by /healthz.
func WithTitle(title string) Option {
	return func(s *Server) {
		if title != "" {
			s.title = title
		}
	}
}

// WithAssets serves assets/index.html from fsys at "/".
func WithAssets(fsys fs.FS) Option {
	return func(s *Server) { s.assets = fsys }
}

// WithWidget enables /api/widget.
func WithWidget(w WidgetSource) Option {
	return func(s *Server) { s.widget = w }
}

// Server exposes the news state and actions over HTTP.
//
// Server provides these endpoints:
//   - GET /: the preview page, when assets are configured
//   - GET /api/state: the full state as JSON
//   - GET /api/sse: Server-Sent Events stream of changed fields
//   - GET /api/widget: the widget's peek item
//   - POST /api/actions/{name}: invokes an action
//   - GET /ws: WebSocket carrying subscriptions and actions
//   - GET /metrics: Prometheus exposition, when metrics are enabled
//   - GET /healthz: liveness
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	st         *store.Store[news.State]
	actions    news.Actions
	widget     WidgetSource
	assets     fs.FS
	port       int
	title      string
	policy     *bluemonday.Policy
	logger     *zap.Logger
	metrics    *metrics.Metrics
	hub        *hub
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding the news state
//   - actions: Action dispatcher invoked by clients
//   - port: TCP port to listen on (0 picks a free port)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st *store.Store[news.State], actions news.Actions, port int, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if actions == nil {
		actions = news.NopActions{}
	}
	s := &Server{
		st:      st,
		actions: actions,
		port:    port,
		title:   defaultTitle,
		policy:  bluemonday.StrictPolicy(),
		logger:  logger,
		hub:     newHub(st),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routing handler. It is what Start serves.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.assets != nil {
		mux.HandleFunc("GET /{$}", s.handleDashboard)
	}
	mux.Handle("GET /api/state", gzhttp.GzipHandler(http.HandlerFunc(s.handleState)))
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	mux.HandleFunc("GET /api/widget", s.handleWidget)
	mux.HandleFunc("POST /api/actions/{name}", s.handleAction)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Port returns the bound TCP port, or the configured port before Start.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return s.port
}

// writeJSON encodes v with sonic. Encoding errors are logged; the status
// line has already been sent by then.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// handleState returns the full state as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.st.GetState())
}

// handleWidget returns the widget view, or 204 when there is nothing to show.
func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	if s.widget == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	view := s.widget.View()
	if view.Item == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// handleAction runs the action named in the path with the JSON body as
// arguments.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	args, err := io.ReadAll(io.LimitReader(r.Body, maxActionBody+1))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read body"})
		return
	}
	if len(args) > maxActionBody {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "body too large"})
		return
	}

	result, err := s.runAction(r.Context(), name, args)
	if err != nil {
		s.writeJSON(w, s.actionStatus(name, err), errorBody{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// actionStatus maps an action error to a status code and logs backend
// failures.
func (s *Server) actionStatus(name string, err error) int {
	switch {
	case errors.Is(err, errUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, errBadArgs):
		return http.StatusBadRequest
	default:
		s.logger.Error("action failed", zap.String("action", name), zap.Error(err))
		return http.StatusBadGateway
	}
}

// handleDashboard serves the preview page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// strip markup from the title; the sanitised text comes back escaped
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, s.policy.Sanitize(s.title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = io.WriteString(w, rendered); err != nil {
		s.logger.Error("failed to write dashboard response", zap.Error(err))
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"title":   s.title,
		"version": s.st.Version(),
	})
}
