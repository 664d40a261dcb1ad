package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// LandmarksHandler pushes the landmarks of every rendered snapshot to
// WebSocket clients.
type LandmarksHandler struct {
	controller Controller
	log        *logrus.Entry
}

// NewLandmarksHandler creates a new LandmarksHandler reading from controller.
func NewLandmarksHandler(controller Controller) *LandmarksHandler {
	return &LandmarksHandler{
		controller: controller,
		log:        logrus.WithField("component", "landmarks"),
	}
}

// ServeHTTP upgrades the connection and forwards snapshots until the client
// disconnects.
func (h *LandmarksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	snaps, cancel := h.controller.Subscribe()
	defer cancel()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				h.log.WithError(err).Debug("websocket write failed")
				return
			}
		}
	}
}
