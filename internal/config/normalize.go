package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeDispatch()
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	// Media and logs follow the data directory unless set explicitly.
	if strings.TrimSpace(c.Paths.MediaDir) == "" || c.Paths.MediaDir == defaultMediaDir {
		c.Paths.MediaDir = filepath.Join(c.Paths.DataDir, "media")
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" || c.Paths.LogDir == defaultLogDir {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.OverlayDir == defaultOverlayDir {
		c.Paths.OverlayDir = filepath.Join(c.Paths.DataDir, "overlays")
	}
	if c.Paths.OverlayDir, err = expandPath(strings.TrimSpace(c.Paths.OverlayDir)); err != nil {
		return fmt.Errorf("paths.overlay_dir: %w", err)
	}
	if c.Paths.UploadDir, err = expandPath(strings.TrimSpace(c.Paths.UploadDir)); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.FFmpegBinary = strings.TrimSpace(c.Engine.FFmpegBinary)
	if c.Engine.FFmpegBinary == "" {
		c.Engine.FFmpegBinary = defaultFFmpegBinary
	}
	c.Engine.FFprobeBinary = strings.TrimSpace(c.Engine.FFprobeBinary)
	if c.Engine.FFprobeBinary == "" {
		c.Engine.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeDispatch() {
	c.Dispatch.Backend = strings.ToLower(strings.TrimSpace(c.Dispatch.Backend))
	if c.Dispatch.Backend == "" {
		c.Dispatch.Backend = defaultDispatchBackend
	}
	c.Dispatch.RedisURL = strings.TrimSpace(c.Dispatch.RedisURL)
	c.Dispatch.RedisQueue = strings.TrimSpace(c.Dispatch.RedisQueue)
	if c.Dispatch.RedisQueue == "" {
		c.Dispatch.RedisQueue = defaultRedisQueue
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
