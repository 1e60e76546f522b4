// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/subtrack/internal/api"
	"github.com/starford/subtrack/internal/inbox"
	"github.com/starford/subtrack/internal/mcpserver"
)

// Run starts the HTTP server, the inbox watcher and the SSE broker.
func Run(ctx context.Context, opts ...Option) error {
	c, err := newCore(opts)
	if err != nil {
		return err
	}
	defer c.close()
	cfg, logger := c.cfg, c.logger

	r := newRootRouter(c)
	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Inbox.Enabled {
		in, err := inbox.New(cfg.Inbox, c.svc, logger)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		g.Go(func() error {
			if err := in.Watch(gCtx); err != nil {
				logger.Error("inbox watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the inbox watcher stops with the server.
var errShutdown = errors.New("shutdown")

func newRootRouter(c *core) chi.Router {
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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", c.metrics.Handler())

	maxUpload := c.cfg.Invoice.MaxUploadMB << 20
	r.Mount("/api", api.NewRouter(c.svc, c.cfg.Auth.AuthEnabled(), c.cfg.Auth.Token, c.broker, maxUpload))
	return r
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	c, err := newCore(opts)
	if err != nil {
		return err
	}
	defer c.close()

	c.logger.Info("MCP server starting on stdio", slog.String("version", c.version))
	return mcpserver.New(c.svc, c.version).ServeStdio()
}

// RunDetect runs one detection pass and writes the report as JSON to out.
func RunDetect(ctx context.Context, out io.Writer, opts ...Option) error {
	c, err := newCore(opts)
	if err != nil {
		return err
	}
	defer c.close()

	rep, err := c.svc.Detect(ctx)
	if err != nil {
		return err
	}
	return writeReport(out, rep)
}

// RunSeed inserts the demo transactions, optionally followed by detection.
func RunSeed(ctx context.Context, out io.Writer, detect bool, opts ...Option) error {
	c, err := newCore(opts)
	if err != nil {
		return err
	}
	defer c.close()

	n, err := c.svc.Seed(ctx)
	if err != nil {
		return err
	}
	result := map[string]any{"inserted": n}
	if detect {
		rep, err := c.svc.Detect(ctx)
		if err != nil {
			return err
		}
		result["detection"] = rep
	}
	return writeReport(out, result)
}

// RunImport imports statement CSV files given on the command line.
func RunImport(ctx context.Context, out io.Writer, files []string, opts ...Option) error {
	if len(files) == 0 {
		return errors.New("no files given")
	}
	c, err := newCore(opts)
	if err != nil {
		return err
	}
	defer c.close()

	reports := make([]any, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		rep, err := c.svc.ImportStatement(ctx, filepath.Base(f), data)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		reports = append(reports, rep)
	}
	return writeReport(out, reports)
}

func writeReport(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
