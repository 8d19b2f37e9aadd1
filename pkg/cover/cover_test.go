// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package cover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfuzz/ember/pkg/signal"
	"github.com/emberfuzz/ember/pkg/stat"
)

func TestLogBucket(t *testing.T) {
	tests := []struct {
		count  byte
		bucket uint8
	}{
		{1, 1}, {2, 2}, {3, 3}, {4, 4}, {7, 4}, {8, 5}, {15, 5},
		{16, 6}, {31, 6}, {32, 7}, {127, 7}, {128, 8}, {255, 8},
	}
	for _, test := range tests {
		assert.Equal(t, test.bucket, LogBucket(test.count), "count=%v", test.count)
	}
}

func TestArenaSnapshot(t *testing.T) {
	arena, err := NewArena(256)
	require.NoError(t, err)
	defer arena.Close()

	mem := arena.Region()
	mem[3] = 1
	mem[7] = 9
	mem[200] = 255
	elems, buckets := arena.Snapshot(LogBucket)
	assert.Equal(t, []uint32{3, 7, 200}, elems)
	assert.Equal(t, []uint8{1, 5, 8}, buckets)

	arena.Reset()
	elems, buckets = arena.Snapshot(LogBucket)
	assert.Empty(t, elems)
	assert.Empty(t, buckets)
}

func TestStateFold(t *testing.T) {
	st := NewState()
	interesting, contributed := st.Fold([]uint32{1, 2}, []uint8{1, 1})
	assert.True(t, interesting)
	assert.Equal(t, 2, contributed.Len())

	// Same signal again: the second worker must not win.
	interesting, contributed = st.Fold([]uint32{1, 2}, []uint8{1, 1})
	assert.False(t, interesting)
	assert.Nil(t, contributed)

	// A grown bucket on a known edge is a win again.
	interesting, contributed = st.Fold([]uint32{1}, []uint8{4})
	assert.True(t, interesting)
	assert.Equal(t, signal.FromRaw([]uint32{1}, []uint8{4}), contributed)
	assert.Equal(t, 2, st.Len())
}

func TestStateDiffDoesNotCommit(t *testing.T) {
	st := NewState()
	run := signal.FromRaw([]uint32{5}, []uint8{1})
	assert.False(t, st.Diff(run).Empty())
	// Diff must leave the state untouched.
	assert.False(t, st.Diff(run).Empty())
	assert.Equal(t, 0, st.Len())
}

func TestStateGrabNew(t *testing.T) {
	st := NewState()
	st.Fold([]uint32{1}, []uint8{1})
	st.Fold([]uint32{2}, []uint8{1})
	assert.Equal(t, 2, st.GrabNew().Len())
	assert.Equal(t, 0, st.GrabNew().Len())
	// The max signal keeps everything.
	assert.Equal(t, 2, st.Len())
}

func TestStateStat(t *testing.T) {
	st := NewState()
	st.Fold([]uint32{1, 2, 3}, []uint8{1, 1, 1})
	for _, ui := range stat.Collect(stat.Console) {
		if ui.Name == "cover" {
			assert.Equal(t, 3, ui.V)
			return
		}
	}
	t.Fatalf("cover metric was not collected")
}
