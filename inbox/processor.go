package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/c360studio/matchroom/export"
)

// Inbox subdirectories for handled files. Hidden, so the watcher ignores them.
const (
	ImportedDir = ".imported"
	FailedDir   = ".failed"
)

// Importer imports a bundle file.
type Importer interface {
	ImportFile(ctx context.Context, path string) (*export.ImportReport, error)
}

// Processor imports every file the watcher reports and moves it out of
// the way: into .imported on success, into .failed otherwise.
type Processor struct {
	watcher  *Watcher
	importer Importer
	logger   *slog.Logger

	imported atomic.Int64
	failed   atomic.Int64
}

// NewProcessor creates a processor.
func NewProcessor(watcher *Watcher, importer Importer, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{watcher: watcher, importer: importer, logger: logger}
}

// Run imports files already in the inbox, starts the watcher and handles
// its events until ctx is cancelled or the watcher stops.
func (p *Processor) Run(ctx context.Context) error {
	existing, err := p.watcher.Scan()
	if err != nil {
		return fmt.Errorf("scan inbox: %w", err)
	}
	for _, path := range existing {
		p.Handle(ctx, path)
	}

	if err := p.watcher.Start(ctx); err != nil {
		return fmt.Errorf("start inbox watcher: %w", err)
	}
	defer p.watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-p.watcher.Events():
			if !ok {
				return nil
			}
			p.Handle(ctx, ev.AbsPath)
		}
	}
}

// Handle imports one file and files it under .imported or .failed.
func (p *Processor) Handle(ctx context.Context, path string) {
	report, err := p.importer.ImportFile(ctx, path)
	if err != nil {
		p.failed.Add(1)
		p.logger.Error("Inbox import failed", "path", path, "error", err)
		p.move(path, FailedDir)
		return
	}

	p.imported.Add(1)
	p.logger.Info("Inbox file imported",
		"path", path,
		"records", report.Total())
	p.move(path, ImportedDir)
}

// Imported returns the number of files imported successfully.
func (p *Processor) Imported() int64 { return p.imported.Load() }

// Failed returns the number of files that could not be imported.
func (p *Processor) Failed() int64 { return p.failed.Load() }

func (p *Processor) move(path, sub string) {
	dir := filepath.Join(p.watcher.Dir(), sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		p.logger.Warn("Failed to create inbox archive dir", "dir", dir, "error", err)
		return
	}
	if err := os.Rename(path, archivePath(dir, filepath.Base(path))); err != nil {
		p.logger.Warn("Failed to move inbox file", "path", path, "error", err)
	}
}

// archivePath returns a path for name in dir that does not exist yet. On a
// clash a counter goes before the first extension, so office.json.zst
// becomes office-1.json.zst.
func archivePath(dir, name string) string {
	target := filepath.Join(dir, name)
	if _, err := os.Lstat(target); os.IsNotExist(err) {
		return target
	}

	stem, ext := name, ""
	if i := strings.Index(name, "."); i > 0 {
		stem, ext = name[:i], name[i:]
	}
	for n := 1; ; n++ {
		target = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
		if _, err := os.Lstat(target); os.IsNotExist(err) {
			return target
		}
	}
}
