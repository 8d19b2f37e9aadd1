// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Comparison-guided mutation. The target records the operand pairs of the
// comparisons it performs; when one operand can be located in the input
// (either via the recorded offset hint or by scanning for its byte pattern),
// replacing it with the other operand steers execution past the check.
// Values are matched under several encodings since the target may compare
// an input integer after widening, truncating or byte-swapping it.

package mutate

import (
	"bytes"
	"math/rand"

	"github.com/emberfuzz/ember/pkg/cmptrace"
)

// guided plants one comparison operand into data. Returns false if no record
// of the trace could be applied.
func (m *Mutator) guided(r *rand.Rand, data []byte, trace cmptrace.Trace) ([]byte, bool) {
	// Try a few random records rather than scanning the whole trace,
	// Mutate is on the hot path.
	const attempts = 8
	for i := 0; i < attempts; i++ {
		rec := trace[r.Intn(len(trace))]
		if mutated, ok := applyRecord(r, data, rec); ok {
			return mutated, true
		}
	}
	return data, false
}

func applyRecord(r *rand.Rand, data []byte, rec cmptrace.Record) ([]byte, bool) {
	width := int(rec.Width)
	if width == 0 || width > 8 || len(data) < width {
		return data, false
	}
	// Plant either operand, the trace does not say which side came from
	// the input.
	val := rec.Op2
	if r.Intn(2) == 0 {
		val = rec.Op1
	}
	if r.Intn(4) == 0 {
		val = swapInt(val, width)
	}
	if rec.Offset != cmptrace.NoOffset && int(rec.Offset)+width <= len(data) {
		storeInt(data[rec.Offset:], val, width)
		return data, true
	}
	// No usable offset hint: locate the other operand's pattern in the input.
	other := rec.Op1 ^ rec.Op2 ^ val
	if pos := findOperand(data, other, width); pos >= 0 {
		storeInt(data[pos:], val, width)
		return data, true
	}
	return data, false
}

// findOperand scans data for the encoding of v, trying little endian first
// and then the byte-reversed form.
func findOperand(data []byte, v uint64, width int) int {
	var enc [8]byte
	storeInt(enc[:], v, width)
	if pos := bytes.Index(data, enc[:width]); pos >= 0 {
		return pos
	}
	storeInt(enc[:], swapInt(v, width), width)
	return bytes.Index(data, enc[:width])
}

// GuidedCandidates systematically enumerates children for every applicable
// trace record, bounded by max. Used by the dedicated hints pass on freshly
// admitted entries, where a full sweep is worth its cost.
func GuidedCandidates(parent []byte, trace cmptrace.Trace, max int) [][]byte {
	var out [][]byte
	seen := make(map[string]bool)
	emit := func(child []byte) bool {
		if bytes.Equal(child, parent) || seen[string(child)] {
			return len(out) < max
		}
		seen[string(child)] = true
		out = append(out, child)
		return len(out) < max
	}
	for _, rec := range trace {
		width := int(rec.Width)
		if width == 0 || width > 8 || len(parent) < width {
			continue
		}
		for _, pair := range [][2]uint64{{rec.Op1, rec.Op2}, {rec.Op2, rec.Op1}} {
			needle, replacer := pair[0], pair[1]
			for _, variant := range operandVariants(needle, replacer, width) {
				positions := findAll(parent, variant.needle, width)
				if rec.Offset != cmptrace.NoOffset && int(rec.Offset)+width <= len(parent) {
					positions = append(positions, int(rec.Offset))
				}
				for _, pos := range positions {
					child := append([]byte{}, parent...)
					storeInt(child[pos:], variant.replacer, width)
					if !emit(child) {
						return out
					}
				}
			}
		}
	}
	return out
}

type variant struct {
	needle   uint64
	replacer uint64
}

// operandVariants returns the encodings under which needle should be matched,
// with the replacer transformed the same way. Shrunk values catch the target
// truncating a wide input field before comparing, byte-reversed values catch
// endianness conversions.
func operandVariants(needle, replacer uint64, width int) []variant {
	out := []variant{
		{needle, replacer},
		{swapInt(needle, width), swapInt(replacer, width)},
	}
	if width > 1 {
		half := width / 2
		mask := uint64(1)<<(uint(half)*8) - 1
		if needle&^mask == 0 {
			out = append(out, variant{needle & mask, replacer & mask})
		}
	}
	return out
}

func findAll(data []byte, v uint64, width int) []int {
	var enc [8]byte
	storeInt(enc[:], v, width)
	var out []int
	for pos := 0; ; {
		idx := bytes.Index(data[pos:], enc[:width])
		if idx < 0 {
			return out
		}
		out = append(out, pos+idx)
		pos += idx + 1
	}
}
