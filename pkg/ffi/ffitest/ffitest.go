// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package ffitest registers small instrumented in-process targets.
// They serve double duty: the engine's own tests drive them directly, and
// they ship as built-in demo harnesses (ember-fuzz fuzz -target branches)
// so the engine can be exercised without building a plugin.
package ffitest

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/emberfuzz/ember/pkg/cmptrace"
	"github.com/emberfuzz/ember/pkg/ffi"
)

// Edge ids used by the targets below. Real instrumentation derives these
// from code locations; toy targets just pick fixed slots.
const (
	EdgeEntry  = 1
	EdgeA      = 10
	EdgeAB     = 20
	EdgeMagic  = 30
	EdgeMagic2 = 31
	EdgeCrash  = 40
	EdgeLoop   = 50
)

func init() {
	ffi.Register("branches", func() ffi.Target { return &branchTarget{} })
	ffi.Register("magic", func() ffi.Target { return &magicTarget{} })
	ffi.Register("crasher", func() ffi.Target { return &crashTarget{} })
	ffi.Register("hanger", func() ffi.Target { return &hangTarget{} })
	ffi.Register("counter", func() ffi.Target { return &counterTarget{} })
}

// base implements the Setup half of the boundary contract.
type base struct {
	cover []byte
	comps []byte
}

func (b *base) Setup(cover, comps []byte) error {
	if len(cover) == 0 {
		return fmt.Errorf("empty coverage region")
	}
	if len(comps) < 8 {
		return fmt.Errorf("comparison region too small: %v bytes", len(comps))
	}
	b.cover = cover
	b.comps = comps
	return nil
}

// hit bumps a saturating 8-bit edge counter.
func (b *base) hit(edge int) {
	if b.cover[edge] != 0xff {
		b.cover[edge]++
	}
}

func (b *base) compare(op1, op2 uint64, offset uint32, width uint8) {
	cmptrace.AppendRaw(b.comps, cmptrace.Record{Op1: op1, Op2: op2, Offset: offset, Width: width})
}

// branchTarget has two nested character checks, the classic two-step
// discovery ladder.
type branchTarget struct{ base }

func (t *branchTarget) Exec(data []byte) int {
	t.hit(EdgeEntry)
	if len(data) > 0 && data[0] == 'A' {
		t.hit(EdgeA)
		if len(data) > 1 && data[1] == 'B' {
			t.hit(EdgeAB)
		}
	}
	return 0
}

// magicTarget guards its deep edges behind multi-byte magic comparisons
// that random mutation essentially never satisfies. It reports every
// comparison it performs, so the guided stage can break through.
type magicTarget struct{ base }

const (
	Magic32 = uint64(0x1badcafe)
	Magic16 = uint64(0x4d42)
)

func (t *magicTarget) Exec(data []byte) int {
	t.hit(EdgeEntry)
	if len(data) < 4 {
		return 0
	}
	v := uint64(binary.LittleEndian.Uint32(data))
	t.compare(v, Magic32, 0, 4)
	if v != Magic32 {
		return 0
	}
	t.hit(EdgeMagic)
	if len(data) < 6 {
		return 0
	}
	w := uint64(binary.LittleEndian.Uint16(data[4:]))
	t.compare(w, Magic16, 4, 2)
	if w == Magic16 {
		t.hit(EdgeMagic2)
	}
	return 0
}

// crashTarget panics on a marker substring, modeling an in-process fault.
type crashTarget struct{ base }

func (t *crashTarget) Exec(data []byte) int {
	t.hit(EdgeEntry)
	if bytes.Contains(data, []byte("FUZZ")) {
		t.hit(EdgeCrash)
		panic("boom: reached the crash marker")
	}
	return 0
}

// hangTarget never returns when the first byte is 'H', modeling a stuck
// target call that only the watchdog can get rid of.
type hangTarget struct{ base }

func (t *hangTarget) Exec(data []byte) int {
	t.hit(EdgeEntry)
	if len(data) > 0 && data[0] == 'H' {
		select {}
	}
	return 0
}

// counterTarget hits one edge len(data) times, exercising hit-count
// bucket growth as the only source of new signal.
type counterTarget struct{ base }

func (t *counterTarget) Exec(data []byte) int {
	t.hit(EdgeEntry)
	for range data {
		t.hit(EdgeLoop)
	}
	return 0
}
