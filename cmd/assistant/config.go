// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the assistant service configuration, loaded from YAML with
// environment-variable overrides on top.
type Config struct {
	Server struct {
		Port int `yaml:"port" validate:"gte=0,lte=65535"`
	} `yaml:"server"`

	Logging struct {
		Level   string `yaml:"level"`
		JSON    bool   `yaml:"json"`
		Dir     string `yaml:"dir"`
		Service string `yaml:"service"`
	} `yaml:"logging"`

	Analytics struct {
		// Path is the SQLite database file. Empty disables analytics.
		Path string `yaml:"path"`
	} `yaml:"analytics"`

	RateLimit struct {
		Enabled   bool `yaml:"enabled"`
		PerMinute int  `yaml:"per_minute" validate:"gte=0"`
		PerHour   int  `yaml:"per_hour" validate:"gte=0"`
		// RedisAddr selects the distributed store. Empty uses the
		// in-process store.
		RedisAddr string `yaml:"redis_addr"`
	} `yaml:"ratelimit"`

	LLM struct {
		// Backend is "openai" or "none". Unknown values degrade to
		// "none" with a warning; every LLM path has a pattern fallback.
		Backend string `yaml:"backend"`
	} `yaml:"llm"`

	Routing struct {
		Strict bool `yaml:"strict"`
	} `yaml:"routing"`

	// Tools maps tool names to external adapter base URLs. Unset tools run
	// as local echo stubs so the service works out of the box.
	Tools map[string]string `yaml:"tools" validate:"dive,url"`
}

var validate = validator.New()

// LoadConfig reads path (optional), applies env overrides, and validates.
// A missing file is not an error; everything has a default.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	cfg.Server.Port = 12310
	cfg.Logging.Service = "assistant"
	cfg.RateLimit.Enabled = true
	cfg.LLM.Backend = "none"

	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ASSISTANT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("ASSISTANT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ASSISTANT_ANALYTICS_PATH"); v != "" {
		cfg.Analytics.Path = v
	}
	if v := os.Getenv("ASSISTANT_REDIS_ADDR"); v != "" {
		cfg.RateLimit.RedisAddr = v
	}
	if v := os.Getenv("LLM_BACKEND_TYPE"); v != "" {
		cfg.LLM.Backend = v
	}
}
