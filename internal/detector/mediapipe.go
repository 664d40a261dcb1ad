package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ServiceScript is the file name of the MediaPipe Hands service.
const ServiceScript = "mediapipe_service.py"

// ErrScriptNotFound is returned when the MediaPipe service script cannot be located.
var ErrScriptNotFound = errors.New(ServiceScript + " not found")

// MediaPipeConfig locates the MediaPipe runtime. Empty fields are searched
// for in the usual places.
type MediaPipeConfig struct {
	Script string
	Python string
}

// MediaPipe implements Capability using a Python MediaPipe Hands subprocess.
// Frames are written as a 4-byte big-endian length followed by JPEG bytes;
// each response is a single JSON line.
type MediaPipe struct {
	config MediaPipeConfig
	log    *logrus.Entry

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	started bool
	failed  error // set once the service was killed for not answering
}

// NewMediaPipe creates a new MediaPipe capability. The service process is
// started by Configure.
func NewMediaPipe(config MediaPipeConfig) *MediaPipe {
	return &MediaPipe{
		config: config,
		log:    logrus.WithField("component", "mediapipe"),
	}
}

// Configure starts the service process with the given options.
func (m *MediaPipe) Configure(opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	script, python, err := m.config.Resolve()
	if err != nil {
		return err
	}

	m.cmd = exec.Command(python, script,
		"--max-num-hands", strconv.Itoa(opts.MaxNumHands),
		"--model-complexity", strconv.Itoa(opts.ModelComplexity),
		"--min-detection-confidence", strconv.FormatFloat(opts.MinDetectionConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(opts.MinTrackingConfidence, 'f', -1, 64),
	)

	stdin, err := m.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := m.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	m.cmd.Stderr = os.Stderr

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	m.stdin = stdin
	m.stdout = bufio.NewReader(stdout)
	m.started = true

	m.log.WithFields(logrus.Fields{
		"script": script,
		"python": python,
		"pid":    m.cmd.Process.Pid,
	}).Info("mediapipe service started")

	return nil
}

// Process sends a frame to the service and returns the detected hands. If
// ctx expires before the service answers, the service is killed and every
// later call fails until the capability is closed.
func (m *MediaPipe) Process(ctx context.Context, frame *gocv.Mat) ([]Hand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil, errors.New("mediapipe service not started")
	}
	if m.failed != nil {
		return nil, fmt.Errorf("mediapipe service stopped: %w", m.failed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	type reply struct {
		line []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		line, err := m.roundTrip(buf.GetBytes())
		done <- reply{line, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return decodeResponse(r.line)
	case <-ctx.Done():
		m.failed = ctx.Err()
		m.log.WithError(m.failed).Warn("mediapipe service did not answer, killing it")
		if err := m.cmd.Process.Kill(); err != nil {
			m.log.WithError(err).Warn("kill mediapipe service")
		}
		<-done
		return nil, m.failed
	}
}

// roundTrip writes one length-prefixed frame and reads the JSON reply line.
func (m *MediaPipe) roundTrip(data []byte) ([]byte, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := m.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := m.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := m.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// Close shuts down the service process.
func (m *MediaPipe) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}

	if m.stdin != nil {
		m.stdin.Close()
	}

	err := m.cmd.Wait()
	if m.failed != nil {
		err = nil
	}
	m.started = false
	m.failed = nil
	m.cmd = nil
	m.stdin = nil
	m.stdout = nil

	m.log.Info("mediapipe service stopped")
	return err
}

// Resolve returns the service script and interpreter paths.
func (c MediaPipeConfig) Resolve() (script, python string, err error) {
	script = c.Script
	if script == "" {
		script = findMediaPipeScript()
	}
	if script == "" {
		return "", "", ErrScriptNotFound
	}
	if _, err := os.Stat(script); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrScriptNotFound, err)
	}

	python = c.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}
	if _, err := exec.LookPath(python); err != nil {
		return "", "", fmt.Errorf("python interpreter %q: %w", python, err)
	}

	return script, python, nil
}

func findMediaPipeScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", ServiceScript),
		filepath.Join("..", "scripts", ServiceScript),
		filepath.Join("..", "..", "scripts", ServiceScript),
		filepath.Join(execDir, "scripts", ServiceScript),
		filepath.Join(os.Getenv("HOME"), ".handcam", "scripts", ServiceScript),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".handcam/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []Landmark `json:"points"`
	Handedness string     `json:"handedness"`
	Score      float64    `json:"score"`
}

func decodeResponse(line []byte) ([]Hand, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("mediapipe service: %s", response.Error)
	}

	hands := make([]Hand, 0, len(response.Hands))
	for _, h := range response.Hands {
		hands = append(hands, Hand{
			Landmarks:  h.Points,
			Handedness: h.Handedness,
			Score:      h.Score,
		})
	}
	return hands, nil
}
