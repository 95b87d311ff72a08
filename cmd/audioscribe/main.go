package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/audioscribe/internal/broadcast"
	"github.com/audioscribe/internal/config"
	"github.com/audioscribe/internal/engine"
	"github.com/audioscribe/internal/fileops"
	"github.com/audioscribe/internal/handler"
	"github.com/audioscribe/internal/jobs"
	"github.com/audioscribe/internal/notify"
	"github.com/audioscribe/internal/version"
	"github.com/audioscribe/internal/watcher"
	"github.com/audioscribe/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file path (default config/config.yaml)")
		cliMode    = flag.Bool("cli", false, "transcribe the given files and exit")
		watchDir   = flag.String("watch", "", "watch a directory instead of serving HTTP")
		model      = flag.String("model", "", "whisper model override")
		language   = flag.String("language", "", "source language hint")
		formats    = flag.String("formats", "", "comma separated output formats")
		outputDir  = flag.String("output", "", "output directory override")
		port       = flag.Int("port", 0, "HTTP port override")
		cliJobs    = flag.Int("jobs", 2, "parallel transcriptions in -cli mode")
	)
	flag.Parse()

	isDev := os.Getenv("ENV") != "production"
	logger.Init(isDev)
	defer logger.Sync()

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalf("❌ Config error: %v", err)
	}

	if *model != "" {
		cfg.Whisper.Model = *model
	}
	if *language != "" {
		cfg.Whisper.Language = *language
	}
	if *formats != "" {
		cfg.Whisper.Formats = strings.Split(*formats, ",")
	}
	if *outputDir != "" {
		cfg.Paths.Output = *outputDir
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	if err := ensureDirectories(cfg); err != nil {
		logger.Fatalf("❌ Directory setup error: %v", err)
	}

	store := jobs.NewStore()
	registry := engine.NewRegistry(engineFactory(cfg))
	dispatcher := jobs.NewDispatcher(store, registry, cfg.Paths.Output)
	defer dispatcher.Stop()

	if cfg.Notify.Enabled {
		notifier := notify.NewClient(cfg.Notify)
		dispatcher.OnTerminal = notifier.JobTerminal
		logger.Infof("🔔 Notifications: enabled (key=%s)", cfg.Notify.Key)
	} else {
		logger.Info("🔔 Notifications: disabled")
	}

	switch {
	case *cliMode:
		code := runCLI(cfg, dispatcher, flag.Args(), *cliJobs)
		dispatcher.Stop()
		logger.Sync()
		os.Exit(code)
	case *watchDir != "":
		runWatch(cfg, dispatcher, *watchDir)
	default:
		runServer(cfg, store, dispatcher, isDev)
	}
}

// runCLI transcribes the given files and blocks until all finish.
func runCLI(cfg *config.Config, dispatcher *jobs.Dispatcher, paths []string, parallel int) int {
	if len(paths) == 0 {
		logger.Error("no input files given")
		return 2
	}
	if parallel < 1 {
		parallel = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(parallel)

	for _, p := range paths {
		p := p
		g.Go(func() error {
			done := make(chan jobs.Job, 1)
			_, err := dispatcher.Dispatch(jobs.Request{
				Path:     p,
				Model:    cfg.Whisper.Model,
				Language: cfg.Whisper.Language,
				Formats:  cfg.Whisper.Formats,
				OnDone:   func(job jobs.Job) { done <- job },
			})
			if err != nil {
				logger.Errorf("❌ %s: %v", p, err)
				return err
			}

			job := <-done
			if job.Status != jobs.StatusCompleted {
				logger.Errorf("❌ %s: %s", job.SourceName, job.Error)
				return fmt.Errorf("%s: %s", job.SourceName, job.Error)
			}

			logger.Infof("✅  %s (%.1fs of audio)", job.SourceName, audioSeconds(job))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 1
	}
	return 0
}

func audioSeconds(job jobs.Job) float64 {
	if job.Result == nil {
		return 0
	}
	return job.Result.Duration
}

// runWatch runs a foreground watch session until interrupted.
func runWatch(cfg *config.Config, dispatcher *jobs.Dispatcher, dir string) {
	svc := watcher.NewService(dispatcher)
	err := svc.Start(watcher.Options{
		Dir:           dir,
		Model:         cfg.Whisper.Model,
		Language:      cfg.Whisper.Language,
		Formats:       cfg.Whisper.Formats,
		MoveCompleted: cfg.Watcher.MoveCompleted,
		Settle:        cfg.Watcher.SettleInterval(),
	})
	if err != nil {
		logger.Fatalf("❌ Watcher error: %v", err)
	}

	logger.Infof("👀 Watching %s (model: %s), Ctrl-C to stop", dir, cfg.Whisper.Model)
	waitForSignal()

	if err := svc.Stop(); err != nil {
		logger.Errorf("❌ Watcher stop error: %v", err)
	}
}

// runServer runs the HTTP API until interrupted.
func runServer(cfg *config.Config, store *jobs.Store, dispatcher *jobs.Dispatcher, isDev bool) {
	version.PrintBanner(nil)

	hub := broadcast.NewHub(store)
	store.SetListener(hub.Publish)
	hub.Start()
	defer hub.Stop()

	watchSvc := watcher.NewService(dispatcher)
	defer watchSvc.Stop()

	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	h := handler.New(store, dispatcher, watchSvc, hub, cfg)
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("❌ Server error: %v", err)
		}
	}()

	logger.Info("")
	logger.Infof("🎤 Whisper: %s (model: %s)", cfg.Whisper.Provider, cfg.Whisper.Model)
	logger.Infof("📂 Uploads: %s", cfg.Paths.Uploads)
	logger.Infof("📂 Output:  %s", cfg.Paths.Output)
	logger.Info("")
	logger.Infof("🌐 API server: http://localhost:%d", cfg.Server.Port)
	logger.Infof("   POST /api/transcribe        - Upload audio for transcription")
	logger.Infof("   GET  /api/jobs              - List jobs")
	logger.Infof("   POST /api/watch/start       - Watch a folder")
	logger.Infof("   GET  /ws                    - Live job updates")
	logger.Info("")
	logger.Info("────────────────────────────────────────────────────────────────")
	logger.Info("✅  Ready! Waiting for uploads...")
	logger.Info("────────────────────────────────────────────────────────────────")

	waitForSignal()

	logger.Info("")
	logger.Info("🛑 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("❌ Shutdown error: %v", err)
	}

	logger.Info("👋 Goodbye!")
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func engineFactory(cfg *config.Config) engine.Factory {
	return func(model string) (engine.Engine, error) {
		switch cfg.Whisper.Provider {
		case "openai":
			if cfg.Whisper.APIKey == "" {
				return nil, fmt.Errorf("openai provider requires api_key")
			}
			return engine.NewOpenAI(cfg.Whisper.APIKey), nil
		default:
			return engine.NewLocal(cfg.Whisper.Script, model), nil
		}
	}
}

func ensureDirectories(cfg *config.Config) error {
	dirs := []string{cfg.Paths.Uploads, cfg.Paths.Output, cfg.Paths.Watch}
	for _, dir := range dirs {
		if err := fileops.EnsureDir(dir); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// requestLogger returns a gin middleware for logging HTTP requests
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		if path != "/api/health" || status >= 400 {
			latency := time.Since(start)
			logger.Debugf("HTTP %s %s → %d (%v)", c.Request.Method, path, status, latency)
		}
	}
}
