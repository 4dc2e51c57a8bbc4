package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ironsheep/shadow-detector/internal/calibration"
	"github.com/ironsheep/shadow-detector/internal/camera"
	"github.com/ironsheep/shadow-detector/internal/config"
	"github.com/ironsheep/shadow-detector/internal/imaging"
	"github.com/ironsheep/shadow-detector/internal/metrics"
	"github.com/ironsheep/shadow-detector/internal/params"
	"github.com/ironsheep/shadow-detector/internal/pipeline"
	"github.com/ironsheep/shadow-detector/internal/prefs"
	"github.com/ironsheep/shadow-detector/internal/server"
	"github.com/ironsheep/shadow-detector/internal/viewport"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("shadow-detector %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "--write-config":
			path := config.DefaultPath
			if len(os.Args) > 2 {
				path = os.Args[2]
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				fmt.Fprintf(os.Stderr, "write config: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("wrote default configuration to %s\n", path)
			return
		}
	}

	cfg, path, cfgErr := config.LoadFromEnv()

	// stdout carries the MCP protocol, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	if cfgErr != nil {
		logger.Warn("using default configuration", "path", path, "error", cfgErr)
	}
	logger.Debug("shadow-detector starting", "version", Version, "built", BuildTime, "commit", GitCommit, "config", path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("shadow-detector - projected shadow detection with an MCP control surface")
	fmt.Println()
	fmt.Println("Usage: shadow-detector [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v          Print version information")
	fmt.Println("  --help, -h             Print this help message")
	fmt.Println("  --write-config [path]  Write the default configuration and exit")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Printf("  %s=path.yaml   Configuration file (default %s)\n", config.EnvConfigPath, config.DefaultPath)
	fmt.Printf("  %s=debug    Override the configured log level\n", config.EnvLogLevel)
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
}

// run wires the detector and serves the control protocol until ctx is
// cancelled or stdin closes.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closePrefs, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closePrefs()

	calib := calibration.New(store, logger.With("component", "calibration"))
	m := metrics.New()
	driver := camera.NewDirDriver(cfg.Device.Root, imaging.NewImageCache(), logger.With("component", "camera"))

	detector := pipeline.NewDetector(driver, store, calib, m, detectorOptions(cfg, logger), logger.With("component", "pipeline"))
	if err := detector.Start(); err != nil {
		// camera_select can recover once a device is available.
		logger.Error("camera unavailable, waiting for camera_select", "error", err)
	}
	defer detector.Stop()

	runner := pipeline.NewRunner(detector, cfg.TickHz, logger.With("component", "runner"))
	runner.InitTimeout = time.Duration(cfg.InitTimeoutSeconds) * time.Second

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- runner.Run(ctx) }()

	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	srv := server.New(server.Deps{
		Runner:       runner,
		Store:        store,
		Calibration:  calib,
		PreviewScale: cfg.Display.PreviewScale,
		Logger:       logger.With("component", "server"),
	})
	serveErr := srv.Run(ctx)

	cancel()
	<-runDone
	return serveErr
}

// openStore opens the configured prefs backend and loads the parameters.
// A load failure keeps the defaults.
func openStore(cfg *config.Config, logger *slog.Logger) (*params.Store, func(), error) {
	p, err := prefs.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open parameter storage: %w", err)
	}
	store := params.NewStore(p, logger.With("component", "params"))
	if err := store.Load(); err != nil {
		logger.Warn("failed to load parameters, using defaults", "error", err)
	}
	closeFn := func() {
		if err := p.Close(); err != nil {
			logger.Error("failed to close parameter storage", "error", err)
		}
	}
	return store, closeFn, nil
}

func detectorOptions(cfg *config.Config, logger *slog.Logger) pipeline.Options {
	style := imaging.DefaultMarkerStyle()
	style.Radius = cfg.Display.PointRadius
	if c, err := imaging.ParseColor(cfg.Display.PointColor); err == nil {
		style.Color = c
	} else {
		logger.Warn("invalid point color", "color", cfg.Display.PointColor, "error", err)
	}
	if c, err := imaging.ParseColor(cfg.Display.SelectedColor); err == nil {
		style.SelectedColor = c
	} else {
		logger.Warn("invalid selected color", "color", cfg.Display.SelectedColor, "error", err)
	}

	return pipeline.Options{
		Selector: cfg.Device.Name,
		Request: camera.Request{
			Width:  cfg.Device.Width,
			Height: cfg.Device.Height,
			FPS:    cfg.Device.FPS,
		},
		Mapper: viewport.Mapper{
			ScreenW:   cfg.Screen.Width,
			ScreenH:   cfg.Screen.Height,
			CenterX:   cfg.Viewport.CenterX,
			CenterY:   cfg.Viewport.CenterY,
			OrthoSize: cfg.Viewport.OrthoSize,
		},
		Views:       cfg.Display.Views,
		DrawPoints:  cfg.Display.DrawPoints,
		MarkerStyle: style,
	}
}
