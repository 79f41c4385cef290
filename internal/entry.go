// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/crosslink/internal/api"
	"github.com/starford/crosslink/internal/inspect"
	"github.com/starford/crosslink/internal/linker"
	"github.com/starford/crosslink/internal/linkservice"
	"github.com/starford/crosslink/internal/mcpserver"
	"github.com/starford/crosslink/internal/sse"
	"github.com/starford/crosslink/internal/storage"
	"github.com/starford/crosslink/internal/watch"
)

// runtime holds the collaborators shared by every mode.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *inspect.DB
	svc    *linkservice.Service
}

func (rt *runtime) close() {
	if rt.db != nil {
		rt.db.Close()
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// bootstrap initializes logging, storage, the optional inspection store and
// the link service.
func (a *application) bootstrap(events linkservice.Publisher) (*runtime, error) {
	cfg := a.config

	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("root", cfg.Corpus.Root),
		slog.Any("folders", cfg.Corpus.Folders),
		slog.Int("max_distance", cfg.Linking.MaxDistance),
		slog.Bool("dry_run", cfg.Linking.DryRun),
		slog.Bool("inspect", cfg.Inspect.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Corpus.Root, storage.WithExtension(cfg.Corpus.Extension))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, store: store}

	svcOpts := []linkservice.Option{linkservice.WithLogger(logger)}
	if cfg.Inspect.Enabled {
		db, err := inspect.Open(cfg.Inspect.Path)
		if err != nil {
			return nil, fmt.Errorf("init inspect: %w", err)
		}
		rt.db = db
		svcOpts = append(svcOpts, linkservice.WithInspect(db))
	}
	if events != nil {
		svcOpts = append(svcOpts, linkservice.WithPublisher(events))
	}

	pipeline := &linker.Pipeline{
		MaxDistance: cfg.Linking.MaxDistance,
		Workers:     cfg.Linking.Workers,
		LabelKeys:   cfg.Linking.LabelKeys,
		Logger:      logger,
	}
	rt.svc = linkservice.NewService(store, pipeline, linkservice.Settings{
		Folders:             cfg.Corpus.Folders,
		IsolateHeaderErrors: cfg.Linking.IsolateHeaderErrors,
		DryRun:              cfg.Linking.DryRun,
		KeepRuns:            cfg.Inspect.KeepRuns,
	}, svcOpts...)

	return rt, nil
}

// Run links the vault once and returns.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.bootstrap(nil)
	if err != nil {
		return err
	}
	defer rt.close()

	out, err := rt.svc.LinkVault(ctx)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	logPlan(rt.logger, out)
	return nil
}

// logPlan logs the accepted links of a dry run, which are otherwise only
// visible in the inspection store.
func logPlan(logger *slog.Logger, out *linkservice.Outcome) {
	if !out.Run.DryRun {
		return
	}
	for _, res := range out.Report.Results {
		for _, c := range res.Accepted {
			logger.Info("linker: link planned",
				slog.String("source", c.Source),
				slog.String("target", c.Target),
				slog.String("text", c.Phrase),
				slog.Int("distance", c.Distance))
		}
	}
}

// Watch links the vault, then keeps re-linking it whenever documents change,
// until ctx is cancelled or SIGINT/SIGTERM arrives.
func Watch(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.bootstrap(nil)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.watch(ctx)
}

// watch runs an initial link pass and then the change loop. A failed initial
// pass is logged; the loop retries on the next change.
func (rt *runtime) watch(ctx context.Context) error {
	if out, err := rt.svc.LinkVault(ctx); err != nil {
		rt.logger.Warn("initial run failed", slog.String("error", err.Error()))
	} else {
		logPlan(rt.logger, out)
	}
	return watch.Watch(ctx, rt.store.Root(), watch.Options{
		Extension: rt.cfg.Corpus.Extension,
		Debounce:  rt.cfg.Watch.Debounce,
		Folders:   rt.cfg.Corpus.Folders,
	}, rt.logger, func(ctx context.Context, paths []string) {
		rt.logger.Info("watcher: documents changed", slog.Int("count", len(paths)))
		rt.svc.Relink(ctx, paths)
	})
}

// Serve runs watch mode together with the HTTP API, metrics and SSE events.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := app.bootstrap(broker)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	logger := rt.logger

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := os.Stat(rt.store.Root()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"vault unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.watch(gCtx)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP exposes the linker as an MCP server on stdin/stdout. Logs go to
// stderr unless another writer was configured.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	if app.logOutput == io.Writer(os.Stdout) {
		return fmt.Errorf("mcp: stdout is reserved for the protocol")
	}
	rt, err := app.bootstrap(nil)
	if err != nil {
		return err
	}
	defer rt.close()

	srv := mcpserver.New(rt.svc, app.version)
	rt.logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
