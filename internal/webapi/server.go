// Package webapi serves a project's linked state over HTTP: script rows,
// the condensed call graph, the registry snapshot, and run history, all as
// JSON. An optional file watcher rebuilds the batch on save so the API
// tracks the working tree.
package webapi

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/parser"
)

// Server exposes one project over HTTP.
type Server struct {
	engine     *engine.Engine
	port       int
	watch      bool
	scriptsDir string
	logger     *slog.Logger

	// mu serializes engine access: handlers read while the watcher rebuilds.
	mu sync.Mutex
}

// Config holds configuration for the API server.
type Config struct {
	Engine     *engine.Engine
	Port       int
	Watch      bool
	ScriptsDir string
	Logger     *slog.Logger
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		engine:     cfg.Engine,
		port:       cfg.Port,
		watch:      cfg.Watch,
		scriptsDir: cfg.ScriptsDir,
		logger:     logger,
	}
}

// Serve starts the API server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting API server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	s.routes(r)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Rebuild the batch on script changes if enabled
	if s.watch {
		eg.Go(func() error {
			return s.watchFiles(egctx)
		})
	}

	// Start HTTP server
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// rebuild runs one full pipeline pass under the engine lock. A failed pass
// is logged; the registry keeps the last published batch.
func (s *Server) rebuild(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.engine.Build(ctx, engine.DiscoveryOptions{})
	if err != nil {
		s.logger.Error("build failed", "error", err)
		return
	}

	s.logger.Info("batch rebuilt",
		"scripts", res.Stats.Scripts,
		"static_calls", res.Stats.StaticCalls,
		"dynamic_calls", res.Stats.DynamicCalls)
}

// watchFiles watches the scripts directory and rebuilds on changes.
func (s *Server) watchFiles(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirRecursive(watcher, s.scriptsDir); err != nil {
		// Keep serving the current state even without a watch.
		s.logger.Error("failed to watch scripts directory", "error", err)
	}

	// Debounce timer
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != parser.Ext {
				continue
			}

			// Debounce
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				s.logger.Debug("file changed, rebuilding", "file", event.Name)
				s.rebuild(ctx)
			})

		case err := <-watcher.Errors:
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
