package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ayusman/handcam/internal/app"
	"github.com/ayusman/handcam/internal/assets"
	"github.com/ayusman/handcam/internal/capture"
)

// fakeController records toggles and lets tests publish snapshots.
type fakeController struct {
	mu      sync.Mutex
	enabled bool
	err     error
	calls   []bool
	latest  *app.Snapshot
	subs    map[chan app.Snapshot]struct{}
}

func newFakeController() *fakeController {
	return &fakeController{subs: make(map[chan app.Snapshot]struct{})}
}

func (f *fakeController) SetEnabled(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enabled)
	if enabled && f.err != nil {
		f.enabled = false
		return f.err
	}
	f.enabled = enabled
	return nil
}

func (f *fakeController) Status() app.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.enabled {
		return app.Status{State: app.Off.String()}
	}
	return app.Status{State: app.Running.String(), Enabled: true, Session: "session-1"}
}

func (f *fakeController) Latest() (app.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return app.Snapshot{}, false
	}
	return *f.latest, true
}

func (f *fakeController) Subscribe() (<-chan app.Snapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan app.Snapshot, 4)
	f.subs[ch] = struct{}{}
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, ch)
	}
}

func (f *fakeController) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeController) publish(snap app.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		ch <- snap
	}
}

type fakeAssets struct {
	status assets.Status
}

func (f fakeAssets) Ready() bool           { return f.status.State == assets.StateReady }
func (f fakeAssets) Status() assets.Status { return f.status }

var (
	assetsReady  = fakeAssets{status: assets.Status{State: assets.StateReady}}
	assetsFailed = fakeAssets{status: assets.Status{State: assets.StateFailed, Error: "hands: mediapipe not installed"}}
)

func postCamera(s http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/camera", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_Page(t *testing.T) {
	get := func(s *Server) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		return rec
	}

	t.Run("shows loading placeholder until assets are ready", func(t *testing.T) {
		s := New(Config{
			Controller: newFakeController(),
			Assets:     fakeAssets{status: assets.Status{State: assets.StateLoading}},
		})

		rec := get(s)
		body := rec.Body.String()

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if !strings.Contains(body, "<h1>Hand Tracking Example</h1>") {
			t.Error("expected page heading")
		}
		if !strings.Contains(body, "<p>Loading MediaPipe...</p>") {
			t.Error("expected loading placeholder")
		}
		if strings.Contains(body, "Toggle Camera") {
			t.Error("toggle must not be offered before assets are ready")
		}
	})

	t.Run("failed assets keep the placeholder", func(t *testing.T) {
		s := New(Config{Controller: newFakeController(), Assets: assetsFailed})

		body := get(s).Body.String()

		if !strings.Contains(body, "Loading MediaPipe...") || strings.Contains(body, "Toggle Camera") {
			t.Error("expected placeholder without toggle after asset failure")
		}
	})

	t.Run("offers the toggle when ready", func(t *testing.T) {
		s := New(Config{Controller: newFakeController(), Assets: assetsReady})

		rec := get(s)
		body := rec.Body.String()

		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("expected text/html, got %s", ct)
		}
		for _, want := range []string{
			"Toggle Camera",
			`type="checkbox"`,
			`<img id="input-video" width="640"`,
			`<canvas id="output-canvas" width="640" height="480"`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("page missing %q", want)
			}
		}
		if strings.Contains(body, "Loading MediaPipe...") {
			t.Error("placeholder should be gone once assets are ready")
		}
		if strings.Contains(body, " checked>") {
			t.Error("checkbox should start unchecked while the camera is off")
		}
	})

	t.Run("checkbox reflects an active camera", func(t *testing.T) {
		ctrl := newFakeController()
		ctrl.enabled = true
		s := New(Config{Controller: ctrl, Assets: assetsReady})

		body := get(s).Body.String()
		if !strings.Contains(body, `id="camera-toggle" checked>`) {
			t.Error("expected checked checkbox")
		}
		if !strings.Contains(body, `<img id="input-video" src="/api/stream"`) {
			t.Error("expected the stream attached while the camera is on")
		}
	})

	t.Run("detaches the video when the camera goes off", func(t *testing.T) {
		s := New(Config{Controller: newFakeController(), Assets: assetsReady})

		body := get(s).Body.String()

		if got := strings.Count(body, "detach();"); got < 2 {
			t.Errorf("expected detach on toggle-off and on a detached message, found %d calls", got)
		}
		if !strings.Contains(body, `video.removeAttribute("src")`) {
			t.Error("detach must drop the video source")
		}
		if !strings.Contains(body, "if (!msg.session)") {
			t.Error("expected detached messages to be handled")
		}
	})

	t.Run("draws landmarks from the feed", func(t *testing.T) {
		s := New(Config{Controller: newFakeController(), Assets: assetsReady})

		body := get(s).Body.String()

		for _, want := range []string{
			"const connections = [[0,1],[1,2],",
			"drawHands(msg.hands)",
			"ctx.arc(",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("page missing %q", want)
			}
		}
		if strings.Contains(body, "drawImage(video") {
			t.Error("canvas must not copy the composited stream")
		}
	})
}

func TestServer_Status(t *testing.T) {
	s := New(Config{Controller: newFakeController(), Assets: assetsFailed})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Assets == nil || resp.Assets.State != assets.StateFailed {
		t.Errorf("expected failed assets, got %+v", resp.Assets)
	}
	if resp.Assets.Error == "" {
		t.Error("expected asset error to be reported")
	}
	if resp.Camera == nil || resp.Camera.State != "off" {
		t.Errorf("expected camera off, got %+v", resp.Camera)
	}
}

func TestServer_Camera(t *testing.T) {
	t.Run("enables and disables", func(t *testing.T) {
		ctrl := newFakeController()
		s := New(Config{Controller: ctrl, Assets: assetsReady})

		rec := postCamera(s, `{"enabled":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
		}
		var resp CameraResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if !resp.Enabled || resp.State != "running" || resp.Session == "" {
			t.Errorf("unexpected response %+v", resp)
		}

		rec = postCamera(s, `{"enabled":false}`)
		resp = CameraResponse{}
		json.NewDecoder(rec.Body).Decode(&resp)
		if rec.Code != http.StatusOK || resp.Enabled {
			t.Errorf("expected disabled camera, got %d %+v", rec.Code, resp)
		}
	})

	t.Run("activation failure reports enabled false", func(t *testing.T) {
		ctrl := newFakeController()
		ctrl.err = errors.Join(capture.ErrDeviceUnavailable, errors.New("permission denied"))
		s := New(Config{Controller: ctrl, Assets: assetsReady})

		rec := postCamera(s, `{"enabled":true}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status %d, got %d", http.StatusConflict, rec.Code)
		}
		var resp CameraResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Enabled || resp.State != "off" {
			t.Errorf("expected camera off, got %+v", resp)
		}
		if !strings.Contains(resp.Error, "permission denied") {
			t.Errorf("expected error in response, got %q", resp.Error)
		}
	})

	t.Run("refused until assets are ready", func(t *testing.T) {
		ctrl := newFakeController()
		s := New(Config{Controller: ctrl, Assets: assetsFailed})

		rec := postCamera(s, `{"enabled":true}`)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
		}
		if len(ctrl.calls) != 0 {
			t.Errorf("controller must not be touched, got %v", ctrl.calls)
		}
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		s := New(Config{Controller: newFakeController(), Assets: assetsReady})

		if rec := postCamera(s, `{"enabled":`); rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}

		req := httptest.NewRequest(http.MethodGet, "/api/camera", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/static/style.css", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != cssContent {
			t.Errorf("expected body %q, got %q", cssContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/static/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("applies default frame size", func(t *testing.T) {
		s := New(Config{})

		if s.config.Width != 640 || s.config.Height != 480 {
			t.Errorf("expected 640x480, got %dx%d", s.config.Width, s.config.Height)
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		s := New(Config{})
		var _ http.Handler = s
	})
}
