package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "matchroom.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/matchroom"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvFile is loaded into the environment before any config file is read
	EnvFile = ".env"
)

// Environment overrides, applied after every file layer.
const (
	EnvBackend  = "MATCHROOM_BACKEND"
	EnvDataDir  = "MATCHROOM_DATA_DIR"
	EnvLogLevel = "MATCHROOM_LOG_LEVEL"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
	// userDir and workDir are resolved lazily; tests override them.
	userDir string
	workDir string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/matchroom/config.yaml)
// 3. Project config (matchroom.yaml in current or parent directories),
// or explicitPath when given
// 4. MATCHROOM_* environment variables
//
// A .env file in the working directory is loaded first so that both the
// ${VAR} references in config files and the overrides can use it.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	l.loadEnvFile()

	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfig, err := parseFile(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	projectConfigPath := explicitPath
	if projectConfigPath == "" {
		projectConfigPath = l.findProjectConfig()
	}
	if projectConfigPath != "" {
		projectConfig, err := parseFile(projectConfigPath)
		if err != nil {
			if explicitPath != "" {
				return nil, err
			}
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		} else {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		}
	} else {
		l.logger.Debug("No project config found")
	}

	config.Merge(fromEnv())

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()

	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// UserConfigPath returns the location of the user config file.
func (l *Loader) UserConfigPath() string {
	return l.userConfigPath()
}

func (l *Loader) loadEnvFile() {
	path := filepath.Join(l.cwd(), EnvFile)
	if err := godotenv.Load(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load env file", slog.String("path", path), slog.String("error", err.Error()))
		}
		return
	}
	l.logger.Debug("Loaded env file", slog.String("path", path))
}

func fromEnv() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: os.Getenv(EnvBackend),
			DataDir: os.Getenv(EnvDataDir),
		},
		Log: LogConfig{Level: os.Getenv(EnvLogLevel)},
	}
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	if l.userDir != "" {
		return filepath.Join(l.userDir, UserConfigFile)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

func (l *Loader) cwd() string {
	if l.workDir != "" {
		return l.workDir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// findProjectConfig searches for matchroom.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	dir := l.cwd()
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
