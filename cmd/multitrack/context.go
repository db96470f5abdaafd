package main

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"multitrack/internal/config"
	"multitrack/internal/logging"
)

// commandContext はサブコマンド間で共有する設定とロガーを遅延構築する
type commandContext struct {
	configFlag *string

	once   sync.Once
	config *config.Config
	logger *zap.Logger
	err    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureLogger() (*zap.Logger, error) {
	c.once.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}

		cfg, err := config.Load(path)
		if err != nil {
			c.err = err
			return
		}
		logger, err := logging.New(cfg.Log)
		if err != nil {
			c.err = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.logger, c.err
}

func (c *commandContext) configValue() *config.Config {
	c.ensureLogger()
	return c.config
}

func (c *commandContext) loggerValue() *zap.Logger {
	logger, _ := c.ensureLogger()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (c *commandContext) sync() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}
