package backup

import (
	"context"
	"log/slog"

	"github.com/c360studio/matchroom/config"
	"github.com/c360studio/matchroom/export"
	"github.com/c360studio/matchroom/storage"
)

// Destinations builds the configured destinations: always the local backup
// directory, plus the S3 bucket when one is set.
func Destinations(ctx context.Context, cfg *config.Config) ([]Destination, error) {
	dests := []Destination{NewDirDestination(cfg.BackupDir())}

	s3cfg := cfg.Backup.S3
	if s3cfg.Bucket != "" {
		dest, err := NewS3Destination(ctx, S3Options{
			Bucket:          s3cfg.Bucket,
			Prefix:          s3cfg.Prefix,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		dests = append(dests, dest)
	}
	return dests, nil
}

// NewRunnerFromConfig creates a runner for the configured format and
// destinations.
func NewRunnerFromConfig(ctx context.Context, cfg *config.Config, store *storage.Store, logger *slog.Logger) (*Runner, error) {
	format, err := export.ParseFormat(cfg.Backup.Format)
	if err != nil {
		return nil, err
	}
	dests, err := Destinations(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewRunner(store, export.NewExporter(store, logger), format, logger, dests...), nil
}
