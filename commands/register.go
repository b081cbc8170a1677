// Package commands provides the matchroom subcommands.
// Command groups are registered via init() and attached to a root command
// with AddTo.
package commands

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360studio/matchroom/config"
	"github.com/c360studio/matchroom/storage"
	"github.com/spf13/cobra"
)

// Env is what commands need from the running application. The store is
// opened on first use, so commands that never touch it stay cheap.
type Env interface {
	Store(ctx context.Context) (*storage.Store, error)
	Config() *config.Config
	Logger() *slog.Logger
}

// Builder creates a command group bound to env.
type Builder func(env Env) *cobra.Command

var (
	registryMu sync.Mutex
	registry   = make(map[string]Builder)
)

// RegisterCommand adds a command group under name. Registering the same
// name twice replaces the earlier builder.
func RegisterCommand(name string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = b
}

// AddTo attaches every registered command group to root, in name order.
func AddTo(root *cobra.Command, env Env) {
	registryMu.Lock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	builders := make([]Builder, 0, len(names))
	for _, name := range names {
		builders = append(builders, registry[name])
	}
	registryMu.Unlock()

	for _, b := range builders {
		root.AddCommand(b(env))
	}
}

func init() {
	// Records
	RegisterCommand("room", newRoomCmd)
	RegisterCommand("player", newPlayerCmd)
	RegisterCommand("match", newMatchCmd)

	// Statistics
	RegisterCommand("stats", newStatsCmd)

	// Data movement
	RegisterCommand("export", newExportCmd)
	RegisterCommand("import", newImportCmd)
	RegisterCommand("backup", newBackupCmd)
	RegisterCommand("watch", newWatchCmd)
}
