package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/c360studio/matchroom/backup"
	"github.com/c360studio/matchroom/export"
	"github.com/c360studio/matchroom/inbox"
	"github.com/spf13/cobra"
)

func newExportCmd(env Env) *cobra.Command {
	var (
		roomRef    string
		formatName string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all data, or a single room, to a bundle file",
		Long: `Export writes a JSON bundle that import can read back.

Without --room every room, player, match and setting is exported.
With --room only that room and its players and matches are exported.
The output defaults to a dated file name in the current directory;
use -o - to write to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := env.Store(ctx)
			if err != nil {
				return err
			}

			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("format") && output != "" && output != "-" {
				if f, err := export.FormatFromPath(output); err == nil {
					format = f
				}
			}

			exporter := export.NewExporter(store, env.Logger())
			var b *export.Bundle
			if roomRef != "" {
				room, err := resolveRoom(ctx, store, roomRef)
				if err != nil {
					return err
				}
				b, err = exporter.ExportRoom(ctx, room.ID)
				if err != nil {
					return err
				}
			} else {
				b, err = exporter.ExportAll(ctx)
				if err != nil {
					return err
				}
			}

			data, err := export.Encode(b, format)
			if err != nil {
				return err
			}
			if output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}

			path := output
			if path == "" {
				path = export.FileName(b, format)
			} else if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, export.FileName(b, format))
			}
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d rooms, %d players, %d matches to %s\n",
				len(b.AllRooms()), len(b.Players), len(b.Matches), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&roomRef, "room", "r", "", "Export only this room")
	cmd.Flags().StringVarP(&formatName, "format", "f", string(export.FormatJSON),
		"Bundle format ("+strings.Join(export.Formats(), ", ")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory, - for stdout")
	return cmd
}

// expandPatterns resolves glob arguments. A pattern that matches nothing
// is an error.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %s", p)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	return paths, nil
}

func newImportCmd(env Env) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file|pattern>...",
		Short: "Import bundle files",
		Long: `Import reads bundle files and upserts their records by id.
Records not in a bundle are left alone. Patterns support ** globs,
e.g. 'backups/**/*.json.zst'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			paths, err := expandPatterns(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if dryRun {
				for _, path := range paths {
					b, err := readBundle(path)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: valid, %d rooms, %d players, %d matches, %d settings\n",
						path, len(b.AllRooms()), len(b.Players), len(b.Matches), len(b.Settings))
				}
				return nil
			}

			store, err := env.Store(ctx)
			if err != nil {
				return err
			}
			exporter := export.NewExporter(store, env.Logger())
			for _, path := range paths {
				report, err := exporter.ImportFile(ctx, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: imported %d rooms, %d players, %d matches, %d settings\n",
					path, report.Rooms, report.Players, report.Matches, report.Settings)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate without writing")
	return cmd
}

func readBundle(path string) (*export.Bundle, error) {
	format, err := export.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	raw, err := export.Decode(data, format)
	if err != nil {
		return nil, err
	}
	b, err := export.Validate(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

func newBackupCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up all data to the configured destinations now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := env.Store(ctx)
			if err != nil {
				return err
			}
			runner, err := backup.NewRunnerFromConfig(ctx, env.Config(), store, env.Logger())
			if err != nil {
				return err
			}
			res, err := runner.Run(ctx)
			if res != nil {
				for _, loc := range res.Locations {
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", loc, res.Size)
				}
			}
			return err
		},
	}
}

func newWatchCmd(env Env) *cobra.Command {
	var (
		dir      string
		noBackup bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Import bundles dropped into the inbox and run scheduled backups",
		Long: `Watch imports every bundle file that appears in the inbox directory.
Imported files move to .imported, rejected ones to .failed.
When backups are enabled in the config they run on their interval
while watching. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := env.Config()
			logger := env.Logger()
			store, err := env.Store(ctx)
			if err != nil {
				return err
			}

			if cfg.Backup.Enabled && !noBackup {
				runner, err := backup.NewRunnerFromConfig(ctx, cfg, store, logger)
				if err != nil {
					return err
				}
				sched, err := backup.NewScheduler(runner, cfg.Backup.Interval, logger)
				if err != nil {
					return err
				}
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer sched.Stop()
			}

			if dir == "" {
				dir = cfg.InboxDir()
			}
			watcher, err := inbox.NewWatcher(inbox.Config{
				Dir:           dir,
				Patterns:      cfg.Inbox.Patterns,
				DebounceDelay: cfg.Inbox.DebounceDelay,
			}, logger)
			if err != nil {
				return err
			}
			proc := inbox.NewProcessor(watcher, export.NewExporter(store, logger), logger)

			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s\n", watcher.Dir())
			if err := proc.Run(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Imported %d files, %d failed\n", proc.Imported(), proc.Failed())
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Inbox directory (default: <data_dir>/inbox)")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "Do not run scheduled backups")
	return cmd
}
