// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfuzz/ember/pkg/hash"
	"github.com/emberfuzz/ember/pkg/osutil"
	"github.com/emberfuzz/ember/pkg/signal"
	"github.com/emberfuzz/ember/pkg/testutil"
)

func TestSaveDedup(t *testing.T) {
	corpus := New()
	data := []byte("input bytes")
	corpus.Save(NewInput{
		Data:   data,
		Signal: signal.FromRaw([]uint32{1}, []uint8{1}),
	})
	corpus.Save(NewInput{
		Data:   data,
		Signal: signal.FromRaw([]uint32{2}, []uint8{1}),
	})
	assert.Equal(t, 1, corpus.Stats().Entries)
	entry := corpus.Entry(hash.String(data))
	require.NotNil(t, entry)
	// The duplicate's signal was absorbed, the content stayed.
	assert.Equal(t, 2, entry.Signal.Len())
	assert.Equal(t, data, entry.Data)
	assert.Equal(t, 2, corpus.Signal().Len())
}

func TestChooseEntry(t *testing.T) {
	corpus := New()
	r := rand.New(testutil.RandSource(t))
	assert.Nil(t, corpus.ChooseEntry(r))

	inputs := map[string]bool{}
	for i := 0; i < 5; i++ {
		data := []byte{byte(i)}
		inputs[string(data)] = true
		corpus.Save(NewInput{
			Data:   data,
			Signal: signal.FromRaw([]uint32{uint32(i)}, []uint8{1}),
		})
	}
	seen := map[string]bool{}
	for i := 0; i < testutil.IterCount(); i++ {
		entry := corpus.ChooseEntry(r)
		require.NotNil(t, entry)
		require.True(t, inputs[string(entry.Data)])
		seen[string(entry.Data)] = true
	}
	// Every entry has nonzero energy, so selection reaches all of them.
	assert.Len(t, seen, 5)
	var selected int64
	for _, entry := range corpus.Entries() {
		selected += entry.Selected
	}
	assert.Equal(t, int64(testutil.IterCount()), selected)
}

func TestEnergy(t *testing.T) {
	small := &Entry{
		Data:     []byte("tiny"),
		Signal:   signal.FromRaw([]uint32{1, 2, 3}, []uint8{1, 1, 1}),
		ExecTime: time.Millisecond,
	}
	big := &Entry{
		Data:     make([]byte, 1<<16),
		Signal:   signal.FromRaw([]uint32{1, 2, 3}, []uint8{1, 1, 1}),
		ExecTime: time.Second,
	}
	assert.Greater(t, small.Energy(), big.Energy())
	// Zero-signal entries still get selected eventually.
	assert.Greater(t, (&Entry{}).Energy(), int64(0))
}

func TestPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := []byte("persisted input")
	path, err := WriteEntry(dir, data)
	require.NoError(t, err)
	assert.Equal(t, hash.String(data), filepath.Base(path))

	// Idempotent: same content, same file.
	path2, err := WriteEntry(dir, data)
	require.NoError(t, err)
	assert.Equal(t, path, path2)

	seeds, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	if diff := cmp.Diff(data, seeds[0].Data); diff != "" {
		t.Fatalf("loaded entry mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDirMissing(t *testing.T) {
	seeds, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, seeds)
}

func TestQuarantine(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteEntry(dir, []byte("misbehaving input"))
	require.NoError(t, err)
	require.NoError(t, Quarantine(dir, path))

	// Gone from the active dir, preserved under suspect/.
	seeds, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, seeds)
	assert.True(t, osutil.IsExist(filepath.Join(dir, "suspect", filepath.Base(path))))
}

func TestMonitoredReentrancy(t *testing.T) {
	updates := make(chan NewEntryEvent)
	corpus := NewMonitored(updates)
	done := make(chan bool)
	go func() {
		ev := <-updates
		// The sender is still inside Save, blocked on the unbuffered
		// channel; the corpus lock must already be free so the receiver
		// can call back in.
		if assert.True(t, corpus.mu.TryRLock()) {
			corpus.mu.RUnlock()
		}
		assert.NotNil(t, corpus.Entry(ev.Sig))
		done <- true
	}()
	corpus.Save(NewInput{Data: []byte("reentrant")})
	<-done
}

func TestMonitored(t *testing.T) {
	updates := make(chan NewEntryEvent, 2)
	corpus := NewMonitored(updates)
	data := []byte("watched")
	corpus.Save(NewInput{Data: data})
	corpus.Save(NewInput{Data: data})
	ev := <-updates
	assert.False(t, ev.Exists)
	assert.Equal(t, hash.String(data), ev.Sig)
	ev = <-updates
	assert.True(t, ev.Exists)
}
