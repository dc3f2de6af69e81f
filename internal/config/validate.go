package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		return errors.New("paths.media_dir must be set")
	}
	return nil
}

func (c *Config) validateEngine() error {
	return ensurePositiveMap(map[string]int{
		"engine.timeout_seconds":       c.Engine.TimeoutSeconds,
		"engine.probe_timeout_seconds": c.Engine.ProbeTimeout,
	})
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateDispatch() error {
	switch c.Dispatch.Backend {
	case DispatchSQLite:
		return nil
	case DispatchRedis:
		if c.Dispatch.RedisURL == "" {
			return errors.New("dispatch.redis_url must be set when dispatch.backend is redis")
		}
		return nil
	default:
		return fmt.Errorf("dispatch.backend must be %q or %q, got %q", DispatchSQLite, DispatchRedis, c.Dispatch.Backend)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
