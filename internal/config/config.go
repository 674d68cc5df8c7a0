// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/pvtools/pvsnap/req"
)

// Config holds the application settings shared by the CLI and GUI layers.
type Config struct {
	ReqFilePath    string        `mapstructure:"req_file_path"`
	ReqFileMacros  string        `mapstructure:"req_file_macros"` // "A=B,C=D" form
	SaveDir        string        `mapstructure:"save_dir"`
	SaveFilePrefix string        `mapstructure:"save_file_prefix"`
	Force          bool          `mapstructure:"force"` // save even with disconnected channels
	UpdatePeriod   time.Duration `mapstructure:"update_period"`

	Labels  LabelsConfig        `mapstructure:"labels"`
	Filters map[string][]string `mapstructure:"filters"`

	Log LogConfig `mapstructure:"log"`

	Sim SimConfig `mapstructure:"sim"`

	// Derived, not read from the file.
	Macros   map[string]string `mapstructure:"-"`
	MacrosOK bool              `mapstructure:"-"`
	MacroErr string            `mapstructure:"-"`
}

// LabelsConfig defines the snapshot label policy.
type LabelsConfig struct {
	Labels      []string `mapstructure:"labels"`       // predefined labels
	ForceLabels bool     `mapstructure:"force-labels"` // only predefined labels allowed
}

// LogConfig defines logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // log file path, empty for stdout
}

// SimConfig configures the simulated device backing the channels.
type SimConfig struct {
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Latency     time.Duration     `mapstructure:"latency"`
}

// PersistenceConfig defines where the simulated device stores its PV table.
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap", "sql"
	Path string `mapstructure:"path"` // backing file path, all types but "memory"
}

// Load reads the configuration from configFile (or the default search path
// when empty) and applies the fixups: request-file macros are parsed from
// their "A=B" form, and the save dir defaults to the request file's
// directory. A macro parse failure does not fail the load, it is reported in
// MacrosOK/MacroErr so the caller can ask the user to fix it.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("pvsnap")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.pvsnap")
		v.AddConfigPath(".")
	}

	v.SetDefault("log.level", "info")
	v.SetDefault("update_period", time.Second)
	v.SetDefault("sim.persistence.type", "memory")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults and flags apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.MacrosOK = true
	cfg.Macros = map[string]string{}
	if cfg.ReqFileMacros != "" {
		macros, err := req.ParseMacros(cfg.ReqFileMacros)
		if err != nil {
			cfg.MacrosOK = false
			cfg.MacroErr = err.Error()
		} else {
			cfg.Macros = macros
		}
	}

	if cfg.ReqFilePath != "" {
		abs, err := filepath.Abs(cfg.ReqFilePath)
		if err == nil {
			cfg.ReqFilePath = abs
		}
	}
	if cfg.SaveDir == "" && cfg.ReqFilePath != "" {
		// Default save dir sits next to the request file.
		cfg.SaveDir = filepath.Dir(cfg.ReqFilePath)
	}
	if cfg.SaveDir != "" {
		abs, err := filepath.Abs(cfg.SaveDir)
		if err == nil {
			cfg.SaveDir = abs
		}
	}

	return &cfg, nil
}
