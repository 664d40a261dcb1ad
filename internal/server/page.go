package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/ayusman/handcam/internal/detector"
	"github.com/ayusman/handcam/internal/render"
)

//go:embed templates/index.html
var templatesFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

type pageData struct {
	Ready       bool
	Enabled     bool
	Width       int
	Height      int
	Connections []detector.Connection
	Radius      int
}

// handlePage renders the landing page. Until the hand runtime is ready the
// page only shows the loading placeholder.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := pageData{
		Ready:       s.assetsReady() && s.config.Controller != nil,
		Width:       s.config.Width,
		Height:      s.config.Height,
		Connections: detector.HandConnections,
		Radius:      render.LandmarkRadius,
	}
	if s.config.Controller != nil {
		data.Enabled = s.config.Controller.Status().Enabled
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		s.log.WithError(err).Error("render page")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	buf.WriteTo(w)
}
