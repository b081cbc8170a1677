// Package backup exports the whole store on demand or on a schedule and
// ships the bundle to one or more destinations.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/matchroom/export"
	"github.com/c360studio/matchroom/storage"
)

// Runner performs a single backup.
type Runner struct {
	store    *storage.Store
	exporter *export.Exporter
	format   export.Format
	dests    []Destination
	logger   *slog.Logger
}

// NewRunner creates a runner writing format-encoded full exports to dests.
func NewRunner(store *storage.Store, exporter *export.Exporter, format export.Format, logger *slog.Logger, dests ...Destination) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    store,
		exporter: exporter,
		format:   format,
		dests:    dests,
		logger:   logger,
	}
}

// Result describes a finished backup.
type Result struct {
	FileName  string
	Size      int
	At        time.Time
	Locations []string
}

// Run exports the store and writes it to every destination. Every
// destination is attempted; the lastBackup setting is only recorded when
// all of them succeeded.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if len(r.dests) == 0 {
		return nil, fmt.Errorf("no backup destinations configured")
	}

	b, err := r.exporter.ExportAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup export: %w", err)
	}
	data, err := export.Encode(b, r.format)
	if err != nil {
		return nil, fmt.Errorf("backup encode: %w", err)
	}

	res := &Result{
		FileName: export.FileName(b, r.format),
		Size:     len(data),
		At:       b.ExportDate,
	}

	var errs []error
	for _, dest := range r.dests {
		loc, err := dest.Put(ctx, res.FileName, data)
		if err != nil {
			r.logger.Warn("Backup destination failed", "destination", dest.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
			continue
		}
		res.Locations = append(res.Locations, loc)
	}
	if err := errors.Join(errs...); err != nil {
		return res, err
	}

	if err := r.store.MarkBackup(ctx, res.At); err != nil {
		return res, fmt.Errorf("record backup time: %w", err)
	}

	r.logger.Info("Backup written",
		"file", res.FileName,
		"bytes", res.Size,
		"destinations", len(res.Locations))
	return res, nil
}
