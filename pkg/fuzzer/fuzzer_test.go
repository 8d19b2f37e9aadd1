// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfuzz/ember/pkg/corpus"
	"github.com/emberfuzz/ember/pkg/ffi"
	"github.com/emberfuzz/ember/pkg/ffi/ffitest"
	"github.com/emberfuzz/ember/pkg/mgrconfig"
	"github.com/emberfuzz/ember/pkg/osutil"
)

func testConfig(t *testing.T, target string) *mgrconfig.Config {
	cfg := mgrconfig.Default()
	cfg.Target = target
	cfg.Procs = 2
	cfg.Timeout = time.Second
	cfg.Input = filepath.Join(t.TempDir(), "input")
	cfg.Output = filepath.Join(t.TempDir(), "output")
	require.NoError(t, cfg.Validate())
	return cfg
}

func testFuzzer(t *testing.T, cfg *mgrconfig.Config) (*Fuzzer, ffi.Factory) {
	factory, err := ffi.Load(cfg.Target)
	require.NoError(t, err)
	fuzz, err := New(cfg, factory)
	require.NoError(t, err)
	return fuzz, factory
}

func testEnv(t *testing.T, fuzz *Fuzzer, factory ffi.Factory) *ffi.Env {
	env, err := ffi.MakeEnv(factory, &ffi.Config{
		Timeout:  fuzz.Config.Timeout,
		Classify: fuzz.classifier(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func TestBootstrapCandidates(t *testing.T) {
	// No seeds anywhere: the campaign starts from a zero-length input
	// plus a handful of random short seeds.
	fuzz, _ := testFuzzer(t, testConfig(t, "branches"))
	assert.Equal(t, bootstrapSeeds+1, len(fuzz.candidates))
}

func TestSeedCandidates(t *testing.T) {
	cfg := testConfig(t, "branches")
	require.NoError(t, osutil.MkdirAll(cfg.Input))
	_, err := corpus.WriteEntry(cfg.Input, []byte("seed one"))
	require.NoError(t, err)
	_, err = corpus.WriteEntry(cfg.Input, []byte("seed two"))
	require.NoError(t, err)
	fuzz, _ := testFuzzer(t, cfg)
	assert.Equal(t, 2, len(fuzz.candidates))
}

func TestCampaignDiscoversBranches(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a real campaign")
	}
	cfg := testConfig(t, "branches")
	fuzz, _ := testFuzzer(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() {
		// The ladder has three distinct signal sources: entry, 'A', "AB".
		for fuzz.Corpus.Stats().Entries < 3 && ctx.Err() == nil {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()
	require.NoError(t, fuzz.Loop(ctx))
	assert.GreaterOrEqual(t, fuzz.Corpus.Stats().Entries, 3)

	// Every admitted entry is mirrored in the queue directory.
	seeds, err := corpus.LoadDir(filepath.Join(cfg.Output, "queue"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(seeds), 3)

	// The accumulated signal survives a restart.
	resumed, _ := testFuzzer(t, cfg)
	assert.Equal(t, fuzz.Cover.Len(), resumed.Cover.Len())
	assert.Equal(t, fuzz.state.campaign, resumed.state.campaign)
}

func TestCandidateCrash(t *testing.T) {
	cfg := testConfig(t, "crasher")
	fuzz, factory := testFuzzer(t, cfg)
	env := testEnv(t, fuzz, factory)

	require.NoError(t, fuzz.triageCandidate(env, candidate{data: []byte("xxFUZZxx")}))
	assert.Equal(t, 1, fuzz.Reporter.Count())
	recs := fuzz.Reporter.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, []byte("xxFUZZxx"), recs[0].Input)
	// Crashing inputs never enter the corpus.
	assert.Equal(t, 0, fuzz.Corpus.Stats().Entries)
}

func TestResumedHangQuarantined(t *testing.T) {
	cfg := testConfig(t, "hanger")
	cfg.Timeout = 50 * time.Millisecond
	fuzz, factory := testFuzzer(t, cfg)
	env := testEnv(t, fuzz, factory)

	queueDir := filepath.Join(cfg.Output, "queue")
	path, err := corpus.WriteEntry(queueDir, []byte("Hang me"))
	require.NoError(t, err)

	require.NoError(t, fuzz.triageCandidate(env, candidate{data: []byte("Hang me"), path: path}))
	assert.False(t, osutil.IsExist(path))
	assert.True(t, osutil.IsExist(filepath.Join(queueDir, "suspect", filepath.Base(path))))
	assert.Equal(t, 1, fuzz.Reporter.Count())
}

func TestTriageAdmission(t *testing.T) {
	cfg := testConfig(t, "branches")
	fuzz, factory := testFuzzer(t, cfg)
	env := testEnv(t, fuzz, factory)

	require.NoError(t, fuzz.triageCandidate(env, candidate{data: []byte("AB")}))
	assert.Equal(t, 1, fuzz.Corpus.Stats().Entries)
	assert.Equal(t, 3, fuzz.Cover.Len())

	// A second input covering a strict subset contributes nothing.
	require.NoError(t, fuzz.triageCandidate(env, candidate{data: []byte("Ax")}))
	assert.Equal(t, 1, fuzz.Corpus.Stats().Entries)
}

func TestHintsPassBreaksMagic(t *testing.T) {
	cfg := testConfig(t, "magic")
	fuzz, factory := testFuzzer(t, cfg)
	env := testEnv(t, fuzz, factory)

	// Admit a parent that fails the 32-bit magic comparison; admission
	// triggers the guided sweep, which plants the observed operand.
	parent := []byte{1, 2, 3, 4, 5, 6}
	require.NoError(t, fuzz.triageCandidate(env, candidate{data: parent}))
	require.GreaterOrEqual(t, fuzz.Corpus.Stats().Entries, 2)

	found := false
	for _, entry := range fuzz.Corpus.Entries() {
		if len(entry.Data) >= 4 &&
			uint64(binary.LittleEndian.Uint32(entry.Data)) == ffitest.Magic32 {
			found = true
		}
	}
	assert.True(t, found, "no corpus entry passes the magic check")
}

func TestReplay(t *testing.T) {
	cfg := testConfig(t, "crasher")
	factory, err := ffi.Load(cfg.Target)
	require.NoError(t, err)

	res, err := Replay(cfg, factory, []byte("xxFUZZxx"))
	require.NoError(t, err)
	assert.Equal(t, ffi.Crashed, res.Outcome)

	res, err = Replay(cfg, factory, []byte("benign"))
	require.NoError(t, err)
	assert.Equal(t, ffi.Completed, res.Outcome)
}
