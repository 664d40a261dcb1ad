package main

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/handcam/internal/app"
	"github.com/ayusman/handcam/internal/assets"
	"github.com/ayusman/handcam/internal/capture"
	"github.com/ayusman/handcam/internal/config"
	"github.com/ayusman/handcam/internal/detector"
	"github.com/ayusman/handcam/internal/server"
	"github.com/ayusman/handcam/internal/tray"
)

var (
	configPath string
	overrides  = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "handcam",
	Short: "Webcam hand-landmark overlay",
	Long: `handcam serves a page with a camera toggle. While the camera is on,
every frame is run through MediaPipe Hands and the detected landmarks are
drawn over the video.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the hand tracking runtime once and print its status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		loader := newLoader(cfg)
		runErr := loader.Run(cmd.Context())

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(loader.Status()); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&overrides.Addr, "addr", overrides.Addr, "HTTP listen address")
	flags.StringVar(&overrides.StaticDir, "static", "", "directory served under /static/")
	flags.IntVar(&overrides.Camera.DeviceID, "device", overrides.Camera.DeviceID, "camera device id")
	flags.IntVar(&overrides.Camera.FPS, "fps", overrides.Camera.FPS, "camera frames per second")
	flags.StringVar(&overrides.Assets.Script, "script", "", "path to "+detector.ServiceScript)
	flags.StringVar(&overrides.Assets.Python, "python", "", "python interpreter with mediapipe installed")
	flags.IntVar(&overrides.Assets.Retries, "retries", overrides.Assets.Retries, "attempts per hand tracking resource")
	flags.DurationVar(&overrides.Assets.Backoff, "backoff", overrides.Assets.Backoff, "delay before the first retry")
	flags.StringVar(&overrides.Log.Level, "log-level", overrides.Log.Level, "log level")
	flags.StringVar(&overrides.Log.Format, "log-format", overrides.Log.Format, "log format (text or json)")
	flags.BoolVar(&overrides.Tray, "tray", false, "show a system tray toggle")

	rootCmd.AddCommand(checkCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("handcam failed")
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = overrides.Addr
	}
	if flags.Changed("static") {
		cfg.StaticDir = overrides.StaticDir
	}
	if flags.Changed("device") {
		cfg.Camera.DeviceID = overrides.Camera.DeviceID
	}
	if flags.Changed("fps") {
		cfg.Camera.FPS = overrides.Camera.FPS
	}
	if flags.Changed("script") {
		cfg.Assets.Script = overrides.Assets.Script
	}
	if flags.Changed("python") {
		cfg.Assets.Python = overrides.Assets.Python
	}
	if flags.Changed("retries") {
		cfg.Assets.Retries = overrides.Assets.Retries
	}
	if flags.Changed("backoff") {
		cfg.Assets.Backoff = overrides.Assets.Backoff
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = overrides.Log.Level
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = overrides.Log.Format
	}
	if flags.Changed("tray") {
		cfg.Tray = overrides.Tray
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLoader(cfg *config.Config) *assets.Loader {
	return assets.NewLoader(cfg.Loader(),
		assets.HandsRuntime(cfg.MediaPipe()),
		assets.CameraUtils(),
	)
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := logrus.WithField("component", "main")

	loader := newLoader(cfg)
	go func() {
		if err := loader.Run(ctx); err != nil {
			log.WithError(err).Error("hand tracking runtime unavailable")
			return
		}
		log.Info("hand tracking runtime ready")
	}()

	controller := app.New(app.DefaultConfig(), app.Deps{
		NewDevice: func() capture.Device {
			return capture.NewCamera(cfg.CameraDevice())
		},
		NewCapability: func() (detector.Capability, error) {
			return detector.NewMediaPipe(cfg.MediaPipe()), nil
		},
		Connections: detector.HandConnections,
	})
	defer controller.Close()

	srv := server.New(server.Config{
		Controller: controller,
		Assets:     loader,
		StaticDir:  cfg.StaticDir,
	})

	url := pageURL(cfg.Addr)
	log.WithField("url", url).Info("starting handcam")

	if !cfg.Tray {
		return srv.ListenAndServe(ctx, cfg.Addr)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, cfg.Addr)
	}()

	tr := tray.New()
	tr.Bind(ctx, controller, loader.Ready)
	tr.OnOpen(func() { openBrowser(url) })
	tr.OnQuit(cancel)

	go tr.Follow(ctx, controller)
	go func() {
		<-ctx.Done()
		tr.Quit()
	}()
	tr.Run()

	cancel()
	return <-errCh
}

// pageURL turns a listen address into a browsable URL.
func pageURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logrus.WithError(err).Warnf("open %s in a browser", url)
	}
}
