// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package report classifies abnormal execution outcomes and deduplicates
// them, so that a crasher hit a million times produces one record with a
// counter instead of a million files.
package report

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/emberfuzz/ember/pkg/ffi"
	"github.com/emberfuzz/ember/pkg/hash"
	"github.com/emberfuzz/ember/pkg/osutil"
)

type Type int

const (
	Crash Type = iota
	Hang
)

func (t Type) String() string {
	if t == Hang {
		return "hang"
	}
	return "crash"
}

// DedupMode selects how much of the run context participates in the
// deduplication key.
type DedupMode string

const (
	// DedupFault keys on the fault kind alone (signal number or panic text).
	DedupFault DedupMode = "fault"
	// DedupFaultPC additionally keys on the last coverage edge of the run,
	// a cheap stand-in for the faulting location.
	DedupFaultPC DedupMode = "fault+pc"
	// DedupFaultTrace additionally keys on the top edges touched in the
	// run, distinguishing different paths into the same fault kind.
	// This is the default.
	DedupFaultTrace DedupMode = "fault+trace"
)

// Number of run edges folded into a fault+trace key.
const traceKeyEdges = 8

// Record describes one deduplicated abnormal outcome. The identifying fields
// are immutable once stored; only the hit counter advances on repeats.
type Record struct {
	Type  Type
	Key   uint64
	Title string
	Sig   string // content hash of Input
	Input []byte
	Fault ffi.FaultInfo
	First time.Time

	mu   sync.Mutex
	hits int
}

func (rec *Record) Hits() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.hits
}

type Reporter struct {
	mode     DedupMode
	crashDir string
	hangDir  string
	mu       sync.Mutex
	records  map[uint64]*Record
}

// NewReporter creates a reporter persisting inputs under dir/crashes and
// dir/hangs. Empty mode means DedupFaultTrace.
func NewReporter(dir string, mode DedupMode) (*Reporter, error) {
	if mode == "" {
		mode = DedupFaultTrace
	}
	switch mode {
	case DedupFault, DedupFaultPC, DedupFaultTrace:
	default:
		return nil, fmt.Errorf("unknown dedup mode %q", mode)
	}
	rep := &Reporter{
		mode:     mode,
		crashDir: filepath.Join(dir, "crashes"),
		hangDir:  filepath.Join(dir, "hangs"),
		records:  make(map[uint64]*Record),
	}
	for _, dir := range []string{rep.crashDir, rep.hangDir} {
		if err := osutil.MkdirAll(dir); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

// Classify maps an execution outcome onto a report type.
// Completed outcomes are not reportable.
func Classify(outcome ffi.Outcome) (Type, bool) {
	switch outcome {
	case ffi.Crashed:
		return Crash, true
	case ffi.TimedOut:
		return Hang, true
	}
	return 0, false
}

// Save deduplicates and persists one abnormal outcome. On a new key the
// input is written out and a fresh record returned with new=true; on a
// repeat only the existing record's hit counter advances.
func (rep *Reporter) Save(res *ffi.Result, input []byte) (*Record, bool, error) {
	typ, ok := Classify(res.Outcome)
	if !ok {
		panic(fmt.Sprintf("reporting a %v outcome", res.Outcome))
	}
	key := rep.dedupKey(typ, res)

	rep.mu.Lock()
	if rec := rep.records[key]; rec != nil {
		rep.mu.Unlock()
		rec.mu.Lock()
		rec.hits++
		rec.mu.Unlock()
		return rec, false, nil
	}
	rec := &Record{
		Type:  typ,
		Key:   key,
		Title: title(typ, res),
		Sig:   hash.String(input),
		Input: append([]byte{}, input...),
		Fault: res.Fault,
		First: time.Now(),
		hits:  1,
	}
	rep.records[key] = rec
	rep.mu.Unlock()

	dir := rep.crashDir
	if typ == Hang {
		dir = rep.hangDir
	}
	if err := osutil.SaveFileAtomic(filepath.Join(dir, rec.Sig), rec.Input); err != nil {
		return rec, true, err
	}
	return rec, true, nil
}

// Records returns all current records, most recent first.
func (rep *Reporter) Records() []*Record {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	recs := make([]*Record, 0, len(rep.records))
	for _, rec := range rep.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].First.After(recs[j].First)
	})
	return recs
}

func (rep *Reporter) Count() int {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	return len(rep.records)
}

// dedupKey derives a cheap deterministic signature of the fault. It never
// looks at full stacks, the signal kind and the coverage edges touched in
// the run carry enough to tell distinct bugs apart.
func (rep *Reporter) dedupKey(typ Type, res *ffi.Result) uint64 {
	var buf [10]byte
	buf[0] = byte(typ)
	buf[1] = byte(res.Fault.Signo)
	pieces := [][]byte{buf[:2], []byte(res.Fault.Msg)}
	switch rep.mode {
	case DedupFault:
	case DedupFaultPC:
		if len(res.Elems) != 0 {
			binary.LittleEndian.PutUint32(buf[2:], lastEdge(res.Elems))
			pieces[0] = buf[:6]
		}
	case DedupFaultTrace:
		pieces = append(pieces, topEdges(res.Elems, traceKeyEdges))
	}
	return hash.Hash(pieces...).Truncate64()
}

func title(typ Type, res *ffi.Result) string {
	if typ == Hang {
		return "hang: execution timed out"
	}
	if res.Fault.Signo != 0 {
		return fmt.Sprintf("crash: %v", unix.SignalName(unix.Signal(res.Fault.Signo)))
	}
	return fmt.Sprintf("crash: panic: %v", res.Fault.Msg)
}

func lastEdge(elems []uint32) uint32 {
	max := uint32(0)
	for _, e := range elems {
		if e > max {
			max = e
		}
	}
	return max
}

// topEdges returns the serialized k highest edge ids of the run, a stable
// path digest regardless of the order edges were reported in.
func topEdges(elems []uint32, k int) []byte {
	sorted := append([]uint32{}, elems...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	out := make([]byte, len(sorted)*4)
	for i, e := range sorted {
		binary.LittleEndian.PutUint32(out[i*4:], e)
	}
	return out
}
