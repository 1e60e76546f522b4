// Package inbox imports bank statement CSV files dropped into a directory.
//
// Pending files are imported at startup and an fsnotify watcher picks up
// files created later. Imported files move to processed/; files that cannot
// be parsed move to failed/.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/subtrack/internal/apperr"
	"github.com/starford/subtrack/internal/checksum"
	"github.com/starford/subtrack/internal/subservice"
)

// Subdirectories of the inbox root.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Config controls the inbox watcher.
type Config struct {
	Enabled    bool          `yaml:"enabled"`
	Path       string        `yaml:"path"`
	AutoDetect bool          `yaml:"auto_detect"`
	Debounce   time.Duration `yaml:"debounce"`
}

// Validate checks the inbox settings.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// Service is what the inbox needs from the subscription service.
type Service interface {
	ImportStatement(ctx context.Context, filename string, data []byte) (*subservice.ImportReport, error)
	Detect(ctx context.Context) (*subservice.RunReport, error)
}

// Inbox imports statement files from one directory.
type Inbox struct {
	root     string
	svc      Service
	logger   *slog.Logger
	detect   bool
	debounce time.Duration
}

// New creates the inbox directory tree if needed.
func New(cfg Config, svc Service, logger *slog.Logger) (*Inbox, error) {
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("inbox: resolve root: %w", err)
	}
	for _, dir := range []string{abs, filepath.Join(abs, ProcessedDir), filepath.Join(abs, FailedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("inbox: mkdir: %w", err)
		}
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Inbox{root: abs, svc: svc, logger: logger, detect: cfg.AutoDetect, debounce: debounce}, nil
}

// Root returns the absolute inbox directory.
func (in *Inbox) Root() string {
	return in.root
}

// Sync imports every pending statement file and returns how many were
// processed.
func (in *Inbox) Sync(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(in.root)
	if err != nil {
		return 0, fmt.Errorf("inbox: list: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && isStatement(e.Name()) {
			paths = append(paths, filepath.Join(in.root, e.Name()))
		}
	}
	n := in.processAll(ctx, paths)
	in.logger.Info("inbox: sync complete", slog.Int("files", n))
	return n, nil
}

// processAll imports each path and runs detection once afterwards if any
// rows were inserted and auto-detect is on.
func (in *Inbox) processAll(ctx context.Context, paths []string) int {
	processed, inserted := 0, 0
	for _, p := range paths {
		rep, err := in.process(ctx, p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			in.logger.Warn("inbox: import failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		processed++
		inserted += rep.Inserted
	}
	if in.detect && inserted > 0 {
		if _, err := in.svc.Detect(ctx); err != nil {
			in.logger.Warn("inbox: auto-detect failed", slog.String("error", err.Error()))
		}
	}
	return processed
}

// process imports a single file and moves it out of the inbox.
func (in *Inbox) process(ctx context.Context, path string) (*subservice.ImportReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rep, err := in.svc.ImportStatement(ctx, filepath.Base(path), data)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			if mvErr := in.move(path, FailedDir, checksum.Sum(data)); mvErr != nil {
				return nil, errors.Join(err, mvErr)
			}
		}
		return nil, err
	}
	if err := in.move(path, ProcessedDir, rep.Checksum); err != nil {
		return nil, err
	}
	in.logger.Debug("inbox: processed",
		slog.String("file", rep.Filename),
		slog.Bool("duplicate", rep.Duplicate),
		slog.Int("inserted", rep.Inserted))
	return rep, nil
}

// move renames path into dir under the inbox root. A name collision gets the
// checksum prefix appended so earlier files are never overwritten.
func (in *Inbox) move(path, dir, sum string) error {
	name := filepath.Base(path)
	dest := filepath.Join(in.root, dir, name)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(name)
		dest = filepath.Join(in.root, dir, strings.TrimSuffix(name, ext)+"-"+sum[:8]+ext)
	}
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("inbox: move %s: %w", name, err)
	}
	return nil
}

func isStatement(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv") && !strings.HasPrefix(name, ".")
}
