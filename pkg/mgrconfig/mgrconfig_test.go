// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mgrconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfuzz/ember/pkg/report"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	cfg.Target = "branches"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, "log", cfg.Bucketing)
	assert.Equal(t, report.DedupFaultTrace, cfg.Dedup)
	assert.GreaterOrEqual(t, cfg.Procs, 1)
}

func TestLoadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
target: magic
procs: 4
timeout: 250ms
bucketing: linear
dedup: fault+pc
calibration_runs: 5
`), 0644))
	cfg, err := LoadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "magic", cfg.Target)
	assert.Equal(t, 4, cfg.Procs)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "linear", cfg.Bucketing)
	assert.Equal(t, report.DedupFaultPC, cfg.Dedup)
	assert.Equal(t, 5, cfg.CalibrationRuns)
	// Unset fields keep their defaults.
	assert.Equal(t, 1<<20, cfg.MaxInputLen)
}

func TestUnknownField(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(file, []byte("target: x\nbogus_knob: 1\n"), 0644))
	_, err := LoadFile(file)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		patch func(*Config)
	}{
		{"no target", func(cfg *Config) { cfg.Target = "" }},
		{"bad procs", func(cfg *Config) { cfg.Procs = 0 }},
		{"bad timeout", func(cfg *Config) { cfg.Timeout = 0 }},
		{"bad bucketing", func(cfg *Config) { cfg.Bucketing = "exponential" }},
		{"bad dedup", func(cfg *Config) { cfg.Dedup = "stacks" }},
		{"bad max len", func(cfg *Config) { cfg.MaxInputLen = 0 }},
		{"bad calibration", func(cfg *Config) { cfg.CalibrationRuns = 0 }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			cfg.Target = "branches"
			test.patch(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
