// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package cmptrace records the operand pairs the target compares during one
// execution. The trace feeds the comparison-guided mutation stage; when that
// stage is not active the region is disarmed and recording costs nothing.
//
// Region layout (engine-owned, target-written):
//
//	[0:4)  capacity  number of record slots, written by the engine;
//	                 zero disarms recording
//	[4:8)  count     number of records written, reset by the engine,
//	                 bumped by the target's comparison hooks
//	[8:)   records   rec[i] = {op1 u64, op2 u64, offset u32, width u8, pad[3]}
package cmptrace

import (
	"encoding/binary"
	"os"

	"github.com/emberfuzz/ember/pkg/osutil"
)

const (
	headerSize = 8
	recordSize = 24

	// DefaultRegionSize fits 2730 records, enough for one run of any
	// reasonable target; overflow records are dropped by the writer.
	DefaultRegionSize = 1 << 16
)

// Record is one observed comparison: the target compared Op1 against Op2
// at operand width Width bytes. Offset is a hint where in the input the
// left operand was likely read from (~uint32(0) if unknown).
type Record struct {
	Op1    uint64
	Op2    uint64
	Offset uint32
	Width  uint8
}

const NoOffset = ^uint32(0)

type Trace []Record

// Region is the shared memory the comparison hooks write into.
type Region struct {
	file *os.File
	mem  []byte
}

func NewRegion(size int) (*Region, error) {
	if size == 0 {
		size = DefaultRegionSize
	}
	f, mem, err := osutil.CreateMemMappedFile(size)
	if err != nil {
		return nil, err
	}
	return &Region{file: f, mem: mem}, nil
}

func (r *Region) Mem() []byte {
	return r.mem
}

func (r *Region) Close() error {
	return osutil.CloseMemMappedFile(r.file, r.mem)
}

// Arm resets the record count and opens the region for recording.
func (r *Region) Arm() {
	binary.LittleEndian.PutUint32(r.mem[0:], uint32((len(r.mem)-headerSize)/recordSize))
	binary.LittleEndian.PutUint32(r.mem[4:], 0)
}

// Disarm closes the region: the target's hooks see capacity 0 and return
// immediately.
func (r *Region) Disarm() {
	binary.LittleEndian.PutUint32(r.mem[0:], 0)
	binary.LittleEndian.PutUint32(r.mem[4:], 0)
}

// Collect parses the records written since the last Arm.
// The whole header is target-writable and cannot be trusted: the loop is
// bounded by the region size, so a scribbled count or capacity only drops
// or garbles records, it cannot read past the mapping.
func (r *Region) Collect() Trace {
	count := binary.LittleEndian.Uint32(r.mem[4:])
	if max := uint32((len(r.mem) - headerSize) / recordSize); count > max {
		count = max
	}
	if count == 0 {
		return nil
	}
	trace := make(Trace, 0, count)
	for i := uint32(0); i < count; i++ {
		rec := r.mem[headerSize+i*recordSize:]
		trace = append(trace, Record{
			Op1:    binary.LittleEndian.Uint64(rec[0:]),
			Op2:    binary.LittleEndian.Uint64(rec[8:]),
			Offset: binary.LittleEndian.Uint32(rec[16:]),
			Width:  rec[20],
		})
	}
	return trace
}

// Append writes a record into the region the way an instrumented target
// would. Exercised by the boundary contract tests and by in-process test
// targets; a real instrumented module writes the same layout natively.
func (r *Region) Append(rec Record) {
	AppendRaw(r.mem, rec)
}

// AppendRaw is the target-side writer: it appends one record to a raw
// comparison region handed over through Setup. A disarmed region (capacity
// zero) and overflow both drop the record.
func AppendRaw(mem []byte, rec Record) {
	capacity := binary.LittleEndian.Uint32(mem[0:])
	count := binary.LittleEndian.Uint32(mem[4:])
	if count >= capacity {
		return
	}
	buf := mem[headerSize+count*recordSize:]
	binary.LittleEndian.PutUint64(buf[0:], rec.Op1)
	binary.LittleEndian.PutUint64(buf[8:], rec.Op2)
	binary.LittleEndian.PutUint32(buf[16:], rec.Offset)
	buf[20] = rec.Width
	binary.LittleEndian.PutUint32(mem[4:], count+1)
}
