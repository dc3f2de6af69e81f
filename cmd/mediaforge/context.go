package main

import (
	"errors"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mediaforge/internal/api"
	"mediaforge/internal/config"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) client() (*api.Client, error) {
	if c.apiFlag != nil {
		if addr := strings.TrimSpace(*c.apiFlag); addr != "" {
			return api.NewClient(addr), nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.API.Bind == "" {
		return nil, errors.New("api.bind is empty; the daemon API is disabled")
	}
	return api.NewClient(cfg.API.Bind), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
