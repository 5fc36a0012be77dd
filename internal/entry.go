// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
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

	"github.com/starford/notegraph/internal/api"
	"github.com/starford/notegraph/internal/importer"
	"github.com/starford/notegraph/internal/nodeid"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/refindex"
	"github.com/starford/notegraph/internal/sse"
	"github.com/starford/notegraph/internal/storage"
	"github.com/starford/notegraph/internal/store"
)

// newApplication applies opts and sets up the JSON logger.
func newApplication(opts []Option) (*application, *slog.Logger, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

// core is the note engine shared by every command.
type core struct {
	store *store.SQLite
	index *refindex.Index
	svc   *noteservice.Service
}

// openCore opens the note store and loads the corpus into the id registry
// and the reference index.
func openCore(ctx context.Context, cfg *Config, logger *slog.Logger, idxOpts []refindex.Option, svcOpts []noteservice.Option) (*core, error) {
	st, err := store.OpenSQLite(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	idx := refindex.New(st, logger, append([]refindex.Option{refindex.WithDebounce(cfg.Index.Debounce)}, idxOpts...)...)
	svc := noteservice.NewService(st, nodeid.NewRegistry(logger), idx, append([]noteservice.Option{
		noteservice.WithLogger(logger),
		noteservice.WithMaxNotes(cfg.Editor.MaxNotes),
	}, svcOpts...)...)

	if err := svc.Load(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("load notes: %w", err)
	}
	return &core{store: st, index: idx, svc: svc}, nil
}

func (c *core) Close() error {
	return c.store.Close()
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("attachments_dir", cfg.Attachments.Dir),
		slog.Bool("import_watch", cfg.Import.Watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(cfg.Index.EventThrottle)
	defer broker.Close()

	c, err := openCore(ctx, cfg, logger,
		[]refindex.Option{refindex.WithOnRebuild(broker.IndexRebuilt)},
		[]noteservice.Option{noteservice.WithNotifier(broker)})
	if err != nil {
		return err
	}
	defer c.Close()

	attachments, err := storage.NewFS(cfg.Attachments.Dir)
	if err != nil {
		return fmt.Errorf("init attachments: %w", err)
	}

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, attachments)

	// Build chi router.
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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Attachments are public so image blocks render without a token.
	r.Get("/attachments/{filename}", api.NewAttachmentHandler(attachments).ServeFile)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Debounced backlink recomputation.
	g.Go(func() error {
		return c.index.Run(gCtx)
	})

	// Markdown inbox.
	if cfg.Import.Watch {
		inbox, err := storage.NewFS(cfg.Import.Inbox)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		imp := importer.New(c.svc, inbox, importer.WithLogger(logger), importer.WithDebounce(cfg.Import.Debounce))
		g.Go(func() error {
			return imp.Watch(gCtx)
		})
	}

	// Start HTTP server.
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

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stop the index loop and the inbox watcher.
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	if pending := c.svc.Pending(); len(pending) > 0 {
		logger.Warn("Stopping with unsaved link rewrites", slog.Any("notes", pending))
	}
	logger.Info("Server stopped successfully")
	return nil
}
