package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/ayusman/handcam/internal/app"
)

const mjpegBoundary = "frame"

// StreamHandler serves the rendered overlay as MJPEG.
type StreamHandler struct {
	controller Controller
}

// NewStreamHandler creates a new StreamHandler reading from controller.
func NewStreamHandler(controller Controller) *StreamHandler {
	return &StreamHandler{controller: controller}
}

// ServeHTTP streams MJPEG frames until the client goes away or the video
// source is detached.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snaps, cancel := h.controller.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flush(w)

	if snap, ok := h.controller.Latest(); ok {
		if err := writePart(w, snap); err != nil {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if snap.Detached() {
				return
			}
			if len(snap.JPEG) == 0 {
				continue
			}
			if err := writePart(w, snap); err != nil {
				return
			}
		}
	}
}

// writePart writes one JPEG part of the multipart stream.
func writePart(w io.Writer, snap app.Snapshot) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(snap.JPEG)); err != nil {
		return err
	}
	if _, err := w.Write(snap.JPEG); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}
	flush(w)
	return nil
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
