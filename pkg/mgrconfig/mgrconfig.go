// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package mgrconfig holds the campaign configuration. Everything has a
// sensible default, a config file is only needed to override tuning knobs
// that have no command line flag.
package mgrconfig

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emberfuzz/ember/pkg/osutil"
	"github.com/emberfuzz/ember/pkg/report"
)

type Config struct {
	// Target is a registered harness name or a path to a harness plugin.
	Target string `yaml:"target"`
	// Procs is the number of parallel fuzzing workers.
	Procs int `yaml:"procs"`
	// Timeout bounds a single target invocation.
	Timeout time.Duration `yaml:"timeout"`
	// Input is the seed directory read at startup.
	Input string `yaml:"input"`
	// Output holds the queue, crashes and hangs directories and the
	// campaign state file.
	Output string `yaml:"output"`
	// HTTP is an optional address to serve stats on (empty = disabled).
	HTTP string `yaml:"http"`

	// Bucketing selects how raw hit counts map onto feedback buckets,
	// "log" (default) or "linear".
	Bucketing string `yaml:"bucketing"`
	// Dedup selects the crash deduplication key, see the report package.
	Dedup report.DedupMode `yaml:"dedup"`
	// MaxInputLen caps the size of generated inputs.
	MaxInputLen int `yaml:"max_input_len"`
	// CalibrationRuns is how many consistent re-executions an input needs
	// before its signal is trusted for corpus admission.
	CalibrationRuns int `yaml:"calibration_runs"`
}

func Default() *Config {
	return &Config{
		Procs:           runtime.NumCPU(),
		Timeout:         time.Second,
		Input:           "./input",
		Output:          "./output",
		Bucketing:       "log",
		Dedup:           report.DedupFaultTrace,
		MaxInputLen:     1 << 20,
		CalibrationRuns: 3,
	}
}

// LoadFile reads overrides from a yaml file on top of the defaults.
func LoadFile(file string) (*Config, error) {
	cfg := Default()
	if file == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %v: %w", file, err)
	}
	return cfg, cfg.Validate()
}

func (cfg *Config) Validate() error {
	if cfg.Target == "" {
		return fmt.Errorf("no target specified")
	}
	if cfg.Procs < 1 {
		return fmt.Errorf("procs must be at least 1, got %v", cfg.Procs)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", cfg.Timeout)
	}
	switch cfg.Bucketing {
	case "log", "linear":
	default:
		return fmt.Errorf("unknown bucketing mode %q", cfg.Bucketing)
	}
	switch cfg.Dedup {
	case report.DedupFault, report.DedupFaultPC, report.DedupFaultTrace:
	default:
		return fmt.Errorf("unknown dedup mode %q", cfg.Dedup)
	}
	if cfg.MaxInputLen < 1 {
		return fmt.Errorf("max_input_len must be positive, got %v", cfg.MaxInputLen)
	}
	if cfg.CalibrationRuns < 1 {
		return fmt.Errorf("calibration_runs must be at least 1, got %v", cfg.CalibrationRuns)
	}
	cfg.Input = osutil.Abs(cfg.Input)
	cfg.Output = osutil.Abs(cfg.Output)
	return nil
}
