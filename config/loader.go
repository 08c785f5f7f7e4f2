package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "semfetch.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/semfetch"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment variables that override file configuration.
const (
	EnvDefaultTimeout    = "SEMFETCH_DEFAULT_TIMEOUT"
	EnvMaxTimeout        = "SEMFETCH_MAX_TIMEOUT"
	EnvUserAgent         = "SEMFETCH_USER_AGENT"
	EnvMaxContentLength  = "SEMFETCH_MAX_CONTENT_LENGTH"
	EnvRateLimitRequests = "SEMFETCH_RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "SEMFETCH_RATE_LIMIT_WINDOW"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
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
// 2. User config (~/.config/semfetch/config.yaml)
// 3. Project config (semfetch.yaml in current or parent directories)
// 4. Explicit config file (explicitPath, if not empty)
// 5. Environment variables (SEMFETCH_*)
//
// Each file layer only overrides the fields it sets.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Load user config
	if userConfigPath := l.userConfigPath(); userConfigPath != "" {
		if userConfig, err := loadLayer(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !os.IsNotExist(err) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	// Load project config
	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := loadLayer(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	// An explicitly requested file must load
	if explicitPath != "" {
		explicitConfig, err := loadLayer(explicitPath)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config file", slog.String("path", explicitPath))
		config.Merge(explicitConfig)
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	config.Normalize(l.logger)

	// Validate final config
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't
// exist and returns its path
func (l *Loader) EnsureUserConfig() (string, error) {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return "", fmt.Errorf("cannot determine home directory")
	}

	// Check if it already exists
	if _, err := os.Stat(userConfigPath); err == nil {
		return userConfigPath, nil
	}

	// Create default config
	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return "", err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return userConfigPath, nil
}

// loadLayer reads a config file without applying defaults, so merging it
// only overrides the fields it sets.
func loadLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return config, nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for semfetch.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}

// applyEnv overrides config with SEMFETCH_* environment variables. Durations
// accept Go duration syntax ("15s") or a plain number of seconds.
func applyEnv(c *Config) error {
	if v, ok := lookupEnv(EnvDefaultTimeout); ok {
		d, err := parseSeconds(EnvDefaultTimeout, v)
		if err != nil {
			return err
		}
		c.Fetch.DefaultTimeout = d
	}
	if v, ok := lookupEnv(EnvMaxTimeout); ok {
		d, err := parseSeconds(EnvMaxTimeout, v)
		if err != nil {
			return err
		}
		c.Fetch.MaxTimeout = d
	}
	if v, ok := lookupEnv(EnvUserAgent); ok {
		c.Fetch.UserAgent = v
	}
	if v, ok := lookupEnv(EnvMaxContentLength); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid byte count %q", EnvMaxContentLength, v)
		}
		c.Fetch.MaxContentLength = n
	}
	if v, ok := lookupEnv(EnvRateLimitRequests); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid count %q", EnvRateLimitRequests, v)
		}
		c.RateLimit.Requests = n
	}
	if v, ok := lookupEnv(EnvRateLimitWindow); ok {
		d, err := parseSeconds(EnvRateLimitWindow, v)
		if err != nil {
			return err
		}
		c.RateLimit.Window = d
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func parseSeconds(key, v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
