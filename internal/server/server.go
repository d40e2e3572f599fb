// Package server exposes the steering stream over websocket plus a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/handwheel/internal/app"
	"github.com/ayusman/handwheel/internal/hub"
	"github.com/ayusman/handwheel/internal/server/api"
	"github.com/ayusman/handwheel/internal/store"
	"go.uber.org/zap"
)

// Controller is the part of the application the API can see and toggle.
type Controller interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
	Status() app.Status
}

// Config holds the server configuration.
type Config struct {
	Hub        *hub.Hub
	Controller Controller
	// Store enables /api/settings when set.
	Store            *store.Store
	ValidateSettings api.Validator
	Log              *zap.Logger
}

// Server is the HTTP front end.
type Server struct {
	config Config
	log    *zap.Logger
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		config: config,
		log:    log,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Hub != nil {
		stream := NewStreamHandler(s.config.Hub, s.log.Named("ws"))
		s.mux.Handle("/{$}", stream)
		s.mux.Handle("/ws", stream)
	}

	if s.config.Controller != nil {
		s.mux.HandleFunc("/api/state", s.handleState)
		s.mux.HandleFunc("/api/enabled", s.handleEnabled)
	}

	if s.config.Store != nil {
		settings := api.NewSettingsHandler(s.config.Store, s.config.ValidateSettings)
		s.mux.Handle("/api/settings", settings)
		s.mux.Handle("/api/settings/", settings)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Hub != nil {
		response["subscribers"] = s.config.Hub.Count()
	}
	api.WriteJSON(w, http.StatusOK, response)
}

type stateResponse struct {
	Enabled     bool                 `json:"enabled"`
	Status      app.Status           `json:"status"`
	Latest      *hub.SteeringMessage `json:"latest"`
	Subscribers int                  `json:"subscribers"`
	Metrics     map[string]any       `json:"metrics,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := stateResponse{
		Enabled: s.config.Controller.IsEnabled(),
		Status:  s.config.Controller.Status(),
	}
	if h := s.config.Hub; h != nil {
		if latest, ok := h.Latest(); ok {
			response.Latest = &latest
		}
		response.Subscribers = h.Count()
		response.Metrics = h.Metrics().Snapshot()
	}
	api.WriteJSON(w, http.StatusOK, response)
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		api.WriteError(w, http.StatusBadRequest, `Expected {"enabled": true|false}`)
		return
	}

	s.config.Controller.SetEnabled(*req.Enabled)
	api.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": s.config.Controller.IsEnabled()})
}

// Listen binds addr. Failing to bind is fatal for the caller.
func Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// Serve serves on ln until ctx is done, then shuts down gracefully. Websocket
// connections are hijacked and closed by the hub, not here.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
