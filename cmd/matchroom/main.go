// Package main provides the matchroom binary entry point.
// Matchroom keeps score of 1v1 matches between players grouped in rooms
// and derives leaderboards, streaks and head-to-head records from them.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/matchroom/commands"
	"github.com/c360studio/matchroom/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "matchroom"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	root, app := rootCmd()
	err := root.ExecuteContext(ctx)
	app.Shutdown()
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are the flags every subcommand accepts.
type globalFlags struct {
	configPath  string
	logLevel    string
	backend     string
	dataDir     string
	metricsFile string
}

func rootCmd() (*cobra.Command, *App) {
	flags := &globalFlags{}
	app := NewApp(config.DefaultConfig(), nil)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Score keeper for 1v1 matches",
		Long: `Matchroom keeps score of 1v1 matches between players grouped in rooms.

Records live in an embedded NATS JetStream store by default; SQLite,
PostgreSQL and an in-memory store are also available. Statistics
(leaderboards, streaks, head-to-head records, daily activity) are
derived from the stored matches on demand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return setup(cmd, flags, app)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.metricsFile == "" {
				return nil
			}
			return app.WriteMetrics(flags.metricsFile)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.backend, "backend", "", "Storage backend (nats, sql, memory)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "Data directory")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "Write store metrics to this file on exit")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	cmd.AddCommand(configCmd(flags))

	commands.AddTo(cmd, app)
	return cmd, app
}

// setup loads the layered config, applies flag overrides and configures
// logging.
func setup(cmd *cobra.Command, flags *globalFlags, app *App) error {
	bootLogger := newLogger(cmd.ErrOrStderr(), flags.logLevel)
	cfg, err := config.NewLoader(bootLogger).Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg, flags)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Log.Level)
	slog.SetDefault(logger)

	app.cfg = cfg
	app.logger = logger
	return nil
}

func applyFlags(cfg *config.Config, flags *globalFlags) {
	if flags.backend != "" {
		cfg.Storage.Backend = flags.backend
	}
	if flags.dataDir != "" {
		cfg.Storage.DataDir = flags.dataDir
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
}

func newLogger(w io.Writer, logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(newLogger(cmd.ErrOrStderr(), flags.logLevel)).Load(flags.configPath)
			if err != nil {
				return err
			}
			applyFlags(cfg, flags)
			if cfg.Backup.S3.SecretAccessKey != "" {
				cfg.Backup.S3.SecretAccessKey = "********"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(newLogger(cmd.ErrOrStderr(), flags.logLevel))
			if err := loader.EnsureUserConfig(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), loader.UserConfigPath())
			return nil
		},
	})
	return cmd
}
