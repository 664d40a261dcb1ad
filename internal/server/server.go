// Package server provides the HTTP surface for handcam: the page, the camera
// toggle, the overlay stream and the landmarks feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/handcam/internal/app"
	"github.com/ayusman/handcam/internal/assets"
)

// ErrAssetsNotReady is returned when the camera is enabled before the hand
// runtime finished loading.
var ErrAssetsNotReady = errors.New("hand tracking assets not ready")

// Controller is the part of the capture/render controller the server uses.
type Controller interface {
	SetEnabled(ctx context.Context, enabled bool) error
	Status() app.Status
	Latest() (app.Snapshot, bool)
	Subscribe() (<-chan app.Snapshot, func())
}

// Assets reports the state of the hand runtime.
type Assets interface {
	Ready() bool
	Status() assets.Status
}

// Config holds the server configuration.
type Config struct {
	Controller Controller
	Assets     Assets
	StaticDir  string
	Width      int
	Height     int
}

// Server represents the HTTP server for handcam.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    *logrus.Entry
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = 640, 480
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    logrus.WithField("component", "server"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/", s.handlePage)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)

	if s.config.Controller != nil {
		s.mux.HandleFunc("/api/camera", s.handleCamera)
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Controller))
		s.mux.Handle("/api/landmarks", NewLandmarksHandler(s.config.Controller))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/static/", http.StripPrefix("/static/", fs))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Assets *assets.Status `json:"assets,omitempty"`
	Camera *app.Status    `json:"camera,omitempty"`
}

// handleStatus reports asset loading and camera activation state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var resp StatusResponse
	if s.config.Assets != nil {
		st := s.config.Assets.Status()
		resp.Assets = &st
	}
	if s.config.Controller != nil {
		st := s.config.Controller.Status()
		resp.Camera = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// CameraRequest is the body of POST /api/camera.
type CameraRequest struct {
	Enabled bool `json:"enabled"`
}

// CameraResponse is returned by POST /api/camera.
type CameraResponse struct {
	Enabled bool   `json:"enabled"`
	State   string `json:"state"`
	Session string `json:"session,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleCamera turns the camera on or off. A failed activation leaves the
// camera off and is reported with enabled=false.
func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CameraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Enabled && !s.assetsReady() {
		writeJSON(w, http.StatusServiceUnavailable, CameraResponse{
			State: app.Off.String(),
			Error: ErrAssetsNotReady.Error(),
		})
		return
	}

	err := s.config.Controller.SetEnabled(r.Context(), req.Enabled)
	st := s.config.Controller.Status()
	resp := CameraResponse{
		Enabled: st.Enabled,
		State:   st.State,
		Session: st.Session,
	}
	if err != nil {
		s.log.WithError(err).Warn("camera toggle failed")
		resp.Error = err.Error()
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) assetsReady() bool {
	return s.config.Assets == nil || s.config.Assets.Ready()
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
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
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithField("component", "server").WithError(err).Debug("failed to encode response")
	}
}
