package main

import (
	"fmt"

	"github.com/ErlanBelekov/pipeline-scheduler/config"
)

// loadConfig reads the environment and applies flag overrides on top.
func loadConfig(flags *flagOverrides) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if flags.pipelinesFile != "" {
		cfg.PipelinesFile = flags.pipelinesFile
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.LogFormat = flags.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
