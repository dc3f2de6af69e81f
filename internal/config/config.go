package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Dispatch backends.
const (
	DispatchSQLite = "sqlite"
	DispatchRedis  = "redis"
)

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	MediaDir   string `toml:"media_dir"`
	OverlayDir string `toml:"overlay_dir"`
	LogDir     string `toml:"log_dir"`
	// UploadDir, when set, is the only tree uploads may be copied from.
	UploadDir string `toml:"upload_dir"`
}

// Engine contains settings for the external transform engine and probe.
type Engine struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ProbeTimeout   int    `toml:"probe_timeout_seconds"`
}

// Workflow contains worker pool sizing and timing.
type Workflow struct {
	Workers            int `toml:"workers"`
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Dispatch selects the work unit delivery backend.
type Dispatch struct {
	Backend    string `toml:"backend"`
	RedisURL   string `toml:"redis_url"`
	RedisQueue string `toml:"redis_queue"`
}

// API contains the daemon HTTP listener configuration.
type API struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediaforge.
//
// Configuration sections by subsystem:
//   - Paths: database, media, overlay catalog, upload root, and log directories
//   - Engine: ffmpeg/ffprobe binaries and timeouts
//   - Workflow: worker count, polling and heartbeat intervals
//   - Dispatch: sqlite (default) or redis work unit delivery
//   - API: daemon HTTP bind address (empty disables it)
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Engine   Engine   `toml:"engine"`
	Workflow Workflow `toml:"workflow"`
	Dispatch Dispatch `toml:"dispatch"`
	API      API      `toml:"api"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mediaforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, "", false, err
	}
	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediaforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// loadDotEnv reads ./.env when present. Existing environment variables win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat .env: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if value, ok := os.LookupEnv("MEDIAFORGE_DATA_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DataDir = value
	}
	if value, ok := os.LookupEnv("MEDIAFORGE_REDIS_URL"); ok && strings.TrimSpace(value) != "" {
		c.Dispatch.RedisURL = value
	}
	if value, ok := os.LookupEnv("MEDIAFORGE_DISPATCH_BACKEND"); ok && strings.TrimSpace(value) != "" {
		c.Dispatch.Backend = value
	}
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.MediaDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OverlayDir) != "" {
		// The overlay catalog is optional; a missing directory only empties it.
		_ = os.MkdirAll(c.Paths.OverlayDir, 0o755)
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "mediaforge.db")
}

// EngineTimeout returns the bound applied to a single transform engine call.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

// ProbeTimeout returns the bound applied to a single metadata probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Engine.ProbeTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
