// Package server constructs and runs the relay's HTTP service: the
// composition root that wires the session registry, connection set,
// broadcast router, lifecycle manager and hub together.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relay/internal/broadcast"
	"github.com/Tyrowin/relay/internal/lifecycle"
	"github.com/Tyrowin/relay/internal/logx"
	"github.com/Tyrowin/relay/internal/session"
)

// Server holds one isolated relay instance.
type Server struct {
	cfg      Config
	log      logx.Logger
	conns    *broadcast.Set
	registry *session.Registry
	hub      *Hub
	upgrader websocket.Upgrader
}

// New builds a Server from cfg. It creates the upload directory if needed.
func New(cfg Config, log logx.Logger) (*Server, error) {
	cfg = sanitizeConfig(cfg)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	conns := broadcast.NewSet()
	registry := session.NewRegistry()
	router := broadcast.NewRouter(conns, log.With(logx.String("component", "router")))
	router.OnDrop(evictSlowClient)
	manager := lifecycle.New(conns, registry, router, log.With(logx.String("component", "lifecycle")))

	origins := newOriginPolicy(cfg.AllowedOrigins, log)
	s := &Server{
		cfg:      cfg,
		log:      log,
		conns:    conns,
		registry: registry,
		hub:      NewHub(manager, log.With(logx.String("component", "hub"))),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
	return s, nil
}

// evictSlowClient closes a client whose outbound queue is full. The closed
// socket then goes through the normal disconnect path.
func evictSlowClient(conn broadcast.Connection, err error) {
	if errors.Is(err, broadcast.ErrSendBufferFull) {
		_ = conn.Close()
	}
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// Hub returns the server's hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Stats reports the number of open connections and of named users.
func (s *Server) Stats() (clients, users int) {
	return s.conns.Len(), s.registry.Len()
}

// StartHub starts the hub loop in a separate goroutine.
// This should be called before serving requests.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info("hub started and ready to manage WebSocket connections")
}

// Run serves HTTP on the configured port until ctx is done, then shuts
// down the HTTP server and the hub.
func (s *Server) Run(ctx context.Context) error {
	s.StartHub()
	httpServer := CreateServer(s.cfg.Port, s.SetupRoutes())

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", logx.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}

	if err := s.ShutdownServer(httpServer, s.cfg.ShutdownTimeout); err != nil && serveErr == nil {
		serveErr = err
	}
	if err := s.hub.Shutdown(s.cfg.ShutdownTimeout); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active requests.
// It waits for active requests to finish or until the timeout is reached.
func (s *Server) ShutdownServer(server *http.Server, timeout time.Duration) error {
	s.log.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.log.Error("HTTP server shutdown error", logx.Err(err))
		return err
	}

	s.log.Info("HTTP server shutdown completed")
	return nil
}
