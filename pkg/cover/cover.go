// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package cover owns the coverage counter arena the instrumented target
// writes into, and the global coverage state accumulated across a campaign.
package cover

import (
	"os"

	"github.com/emberfuzz/ember/pkg/osutil"
)

// DefaultArenaSize is the number of 8-bit edge counters in the arena.
// Must match the counter section size the build pipeline links into the target.
const DefaultArenaSize = 1 << 16

// Arena is a fixed-size array of 8-bit hit counters mapped into memory.
// The engine owns the layout of this region but not the writer: the
// instrumented target bumps counters in it directly during execution.
type Arena struct {
	file *os.File
	mem  []byte
}

func NewArena(size int) (*Arena, error) {
	if size == 0 {
		size = DefaultArenaSize
	}
	f, mem, err := osutil.CreateMemMappedFile(size)
	if err != nil {
		return nil, err
	}
	return &Arena{file: f, mem: mem}, nil
}

// Region exposes the raw counter memory for the foreign-function boundary.
func (a *Arena) Region() []byte {
	return a.mem
}

func (a *Arena) Size() int {
	return len(a.mem)
}

// Reset zeroes all counters. Called before every invocation.
func (a *Arena) Reset() {
	for i := range a.mem {
		a.mem[i] = 0
	}
}

func (a *Arena) Close() error {
	return osutil.CloseMemMappedFile(a.file, a.mem)
}

// Snapshot scans the arena and returns the per-run coverage as parallel
// edge/bucket slices. The result aliases nothing in the arena and stays
// valid after Reset.
func (a *Arena) Snapshot(classify func(byte) uint8) (elems []uint32, buckets []uint8) {
	if classify == nil {
		classify = LogBucket
	}
	for i, cnt := range a.mem {
		if cnt == 0 {
			continue
		}
		elems = append(elems, uint32(i))
		buckets = append(buckets, classify(cnt))
	}
	return elems, buckets
}

// LogBucket maps a raw hit count onto a logarithmic bucket:
// 1, 2, 3, 4-7, 8-15, 16-31, 32-127, 128+.
func LogBucket(count byte) uint8 {
	switch {
	case count < 4:
		return count
	case count < 8:
		return 4
	case count < 16:
		return 5
	case count < 32:
		return 6
	case count < 128:
		return 7
	default:
		return 8
	}
}

// LinearBucket treats every distinct counter value as its own bucket.
// Finer feedback, larger corpus. Selectable via the calibration config.
func LinearBucket(count byte) uint8 {
	return count
}
