// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package mutate derives child inputs from corpus entries.
// Mutation is staged: cheap localized bit/arithmetic changes, substitution of
// boundary and magic values, comparison-guided operand replacement, havoc
// composition and splicing with a second corpus entry. Stages are applied
// probabilistically per call, so a single Mutate produces one child.
package mutate

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/emberfuzz/ember/pkg/cmptrace"
)

// Maximum length of mutated inputs.
const DefaultMaxLen = 1 << 20

type Mutator struct {
	// MaxLen caps the size of produced children (0 = DefaultMaxLen).
	MaxLen int
	// Donor returns the bytes of another corpus entry for splicing,
	// or nil when the corpus has nothing to offer.
	Donor func(r *rand.Rand) []byte
}

func (m *Mutator) maxLen() int {
	if m.MaxLen == 0 {
		return DefaultMaxLen
	}
	return m.MaxLen
}

// Mutate produces one child of parent. The parent bytes are never modified.
// When trace is non-empty the comparison-guided stage participates with high
// weight since operand replacement is how multi-byte magic checks fall.
func (m *Mutator) Mutate(r *rand.Rand, parent []byte, trace cmptrace.Trace) []byte {
	data := append([]byte{}, parent...)
	if len(trace) != 0 && r.Intn(2) == 0 {
		if mutated, ok := m.guided(r, data, trace); ok {
			if r.Intn(3) != 0 {
				return mutated
			}
			data = mutated // keep stacking stages on top of the planted operand
		}
	}
	for stop := false; !stop; stop = stop && oneOf(r, 3) {
		f := mutateFuncs[r.Intn(len(mutateFuncs))]
		data, stop = f(m, r, data)
	}
	if len(data) > m.maxLen() {
		data = data[:m.maxLen()]
	}
	return data
}

// The maximum delta for integer add/subtract mutations.
const maxDelta = 35

var mutateFuncs = [...]func(m *Mutator, r *rand.Rand, data []byte) ([]byte, bool){
	// Flip 1/2/4/8 adjacent bits within a byte.
	func(m *Mutator, r *rand.Rand, data []byte) ([]byte, bool) {
		if len(data) == 0 {
			return data, false
		}
		byt := r.Intn(len(data))
		nbits := 1 << uint(r.Intn(4))
		bit := r.Intn(9 - nbits)
		data[byt] ^= byte((1<<uint(nbits) - 1) << uint(bit))
		return data, true
	},
	// Flip a walking byte/16-bit/32-bit span.
	func(m *Mutator, r *rand.Rand, data []byte) ([]byte, bool) {
		width := 1 << uint(r.Intn(3))
		if len(data) < width {
			return data, false
		}
		pos := r.Intn(len(data) - width + 1)
		for i := 0; i < width; i++ {
			data[pos+i] ^= 0xff
		}
		return data, true
	},
	// Insert random bytes.
	func(m *Mutator, r *rand.Rand, data []byte) ([]byte, bool) {
		if len(data) == 0 || len(data) >= m.maxLen() {
			return data, false
		}
		n := min(r.Intn(16)+1, m.maxLen()-len(data))
		pos := r.Intn(len(data))
		for i := 0; i < n; i++ {
			data = append(data, 0)
		}
		copy(data[pos+n:], data[pos:])
		for i := 0; i < n; i++ {
			data[pos+i] = byte(r.Int31())
		}
		return data, true
	},
	// Remove bytes.
	func(m *Mutator, r *rand.Rand, data []byte) ([]byte, bool) {
		if len(data) == 0 {
			return data, false
		}
		n := min(r.Intn(16)+1, len(data))
		pos := 0
		if n < len(data) {
			pos = r.Intn(len(data) - n)
		}
		copy(data[pos:], data[pos+n:])
		return data[:len(data)-n], true
	},
	// Append a bunch of bytes.
	func(m *Mutator, r *rand.Rand, data []byte) ([]byte, bool) {
		if len(data) >= m.maxLen() {
			return data, false
		}
		const max = 256
		n := min(max-biasedRand(r, max, 10), m.maxLen()-len(data))
		for i := 0; i < n; i++ {
			data = append(data, byte(r.Intn(256)))
		}
		return data, true
	},
	// Duplicate a range of bytes.
	func(m *Mutator, r *rand.Rand, data []byte) ([]byte, bool) {
		if len(data) == 0 || len(data) >= m.maxLen() {
			return data, false
		}
		n := min(r.Intn(16)+1, len(data), m.maxLen()-len(data))
		src := r.Intn(len(data) - n + 1)
		dst := r.Intn(len(data) + 1)
		chunk := append([]byte{}, data[src:src+n]...)
		data = append(data[:dst], append(chunk, data[dst:]...)...)
		return data, true
	},
	// Replace int8/int16/int32/int64 with a random value.
	func(m *Mutator, r *rand.Rand, data []byte) ([]byte, bool) {
		width := 1 << uint(r.Intn(4))
		if len(data) < width {
			return data, false
		}
		i := r.Intn(len(data) - width + 1)
		storeInt(data[i:], r.Uint64(), width)
		return data, true
	},
	// Add/subtract from an int8/int16/int32/int64.
	func(m *Mutator, r *rand.Rand, data []byte) ([]byte, bool) {
		width := 1 << uint(r.Intn(4))
		if len(data) < width {
			return data, false
		}
		i := r.Intn(len(data) - width + 1)
		v := loadInt(data[i:], width)
		delta := uint64(r.Intn(2*maxDelta+1) - maxDelta)
		if delta == 0 {
			delta = 1
		}
		if oneOf(r, 10) {
			v = swapInt(v, width)
			v += delta
			v = swapInt(v, width)
		} else {
			v += delta
		}
		storeInt(data[i:], v, width)
		return data, true
	},
	// Set int8/int16/int32/int64 to an interesting value.
	func(m *Mutator, r *rand.Rand, data []byte) ([]byte, bool) {
		width := 1 << uint(r.Intn(4))
		if len(data) < width {
			return data, false
		}
		i := r.Intn(len(data) - width + 1)
		value := interestingInts[r.Intn(len(interestingInts))]
		if oneOf(r, 10) {
			value = swap64(value)
		}
		storeInt(data[i:], value, width)
		return data, true
	},
	// Splice: random prefix of data with a random suffix of a donor entry.
	func(m *Mutator, r *rand.Rand, data []byte) ([]byte, bool) {
		if m.Donor == nil || len(data) == 0 {
			return data, false
		}
		donor := m.Donor(r)
		if len(donor) == 0 {
			return data, false
		}
		prefix := r.Intn(len(data))
		suffix := r.Intn(len(donor))
		data = append(data[:prefix], donor[suffix:]...)
		if len(data) > m.maxLen() {
			data = data[:m.maxLen()]
		}
		return data, true
	},
}

// Boundary integers and common magic constants that disproportionately
// often guard interesting paths.
var interestingInts = []uint64{
	0, 1, 2, 3, 4, 7, 8, 15, 16, 31, 32, 63, 64, 100, 127, 128, 129, 255, 256,
	512, 1000, 1024, 4096, 32767, 32768, 65535, 65536,
	1 << 31, 1<<31 - 1, 1<<32 - 1, 1<<63 - 1, 1 << 63, ^uint64(0),
	0xdeadbeef, 0xcafebabe, 0x41414141,
}

func oneOf(r *rand.Rand, n int) bool {
	return r.Intn(n) == 0
}

// biasedRand returns a random int in [0..n), probability of n-1 is k times
// higher than probability of 0.
func biasedRand(r *rand.Rand, n, k int) int {
	nf, kf := float64(n), float64(k)
	rf := nf * (kf/2 + 1) * r.Float64()
	bf := (-1 + math.Sqrt(1+2*kf*rf/nf)) * nf / kf
	return int(bf)
}

func swap16(v uint16) uint16 {
	return v<<8 | v>>8
}

func swap32(v uint32) uint32 {
	v = v<<16 | v>>16
	v = (v&0x00ff00ff)<<8 | (v&0xff00ff00)>>8
	return v
}

func swap64(v uint64) uint64 {
	v = v<<32 | v>>32
	v = (v&0x0000ffff0000ffff)<<16 | (v&0xffff0000ffff0000)>>16
	v = (v&0x00ff00ff00ff00ff)<<8 | (v&0xff00ff00ff00ff00)>>8
	return v
}

func swapInt(v uint64, size int) uint64 {
	switch size {
	case 1:
		return v
	case 2:
		return uint64(swap16(uint16(v)))
	case 4:
		return uint64(swap32(uint32(v)))
	case 8:
		return swap64(v)
	default:
		panic(fmt.Sprintf("swapInt: bad size %v", size))
	}
}

func loadInt(data []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(data[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(data))
	case 4:
		return uint64(binary.LittleEndian.Uint32(data))
	case 8:
		return binary.LittleEndian.Uint64(data)
	default:
		panic(fmt.Sprintf("loadInt: bad size %v", size))
	}
}

func storeInt(data []byte, v uint64, size int) {
	switch size {
	case 1:
		data[0] = uint8(v)
	case 2:
		binary.LittleEndian.PutUint16(data, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(data, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(data, v)
	default:
		panic(fmt.Sprintf("storeInt: bad size %v", size))
	}
}
