// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package report

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfuzz/ember/pkg/ffi"
	"github.com/emberfuzz/ember/pkg/hash"
	"github.com/emberfuzz/ember/pkg/osutil"
)

func crashResult(signo int, elems []uint32) *ffi.Result {
	return &ffi.Result{
		Outcome: ffi.Crashed,
		Fault:   ffi.FaultInfo{Signo: signo},
		Elems:   elems,
	}
}

func TestDedup(t *testing.T) {
	rep, err := NewReporter(t.TempDir(), DedupFaultTrace)
	require.NoError(t, err)

	res := crashResult(11, []uint32{1, 2, 3})
	rec, fresh, err := rep.Save(res, []byte("input one"))
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, Crash, rec.Type)

	// Same fault, same path, different input bytes: one record, two hits.
	rec2, fresh, err := rep.Save(crashResult(11, []uint32{3, 1, 2}), []byte("input two"))
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Same(t, rec, rec2)
	assert.Equal(t, 2, rec.Hits())
	assert.Equal(t, 1, rep.Count())

	// The stored record keeps its original input.
	assert.Equal(t, []byte("input one"), rec.Input)
}

func TestDedupDistinguishes(t *testing.T) {
	rep, err := NewReporter(t.TempDir(), DedupFaultTrace)
	require.NoError(t, err)

	_, fresh, err := rep.Save(crashResult(11, []uint32{1, 2}), []byte("a"))
	require.NoError(t, err)
	assert.True(t, fresh)

	// Different signal number.
	_, fresh, err = rep.Save(crashResult(6, []uint32{1, 2}), []byte("b"))
	require.NoError(t, err)
	assert.True(t, fresh)

	// Same signal, different path.
	_, fresh, err = rep.Save(crashResult(11, []uint32{7, 8}), []byte("c"))
	require.NoError(t, err)
	assert.True(t, fresh)

	assert.Equal(t, 3, rep.Count())
}

func TestDedupFaultMode(t *testing.T) {
	rep, err := NewReporter(t.TempDir(), DedupFault)
	require.NoError(t, err)

	_, fresh, err := rep.Save(crashResult(11, []uint32{1, 2}), []byte("a"))
	require.NoError(t, err)
	assert.True(t, fresh)
	// Fault-only mode ignores the path.
	_, fresh, err = rep.Save(crashResult(11, []uint32{7, 8}), []byte("b"))
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestPanicCrash(t *testing.T) {
	rep, err := NewReporter(t.TempDir(), "")
	require.NoError(t, err)
	res := &ffi.Result{
		Outcome: ffi.Crashed,
		Fault:   ffi.FaultInfo{Msg: "index out of range"},
	}
	rec, fresh, err := rep.Save(res, []byte("x"))
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Contains(t, rec.Title, "index out of range")

	// A different panic message is a different bug.
	res2 := &ffi.Result{
		Outcome: ffi.Crashed,
		Fault:   ffi.FaultInfo{Msg: "nil pointer dereference"},
	}
	_, fresh, err = rep.Save(res2, []byte("y"))
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	rep, err := NewReporter(dir, "")
	require.NoError(t, err)

	crashInput := []byte("crashing input")
	_, _, err = rep.Save(crashResult(11, nil), crashInput)
	require.NoError(t, err)
	assert.True(t, osutil.IsExist(filepath.Join(dir, "crashes", hash.String(crashInput))))

	hangInput := []byte("hanging input")
	_, _, err = rep.Save(&ffi.Result{Outcome: ffi.TimedOut}, hangInput)
	require.NoError(t, err)
	assert.True(t, osutil.IsExist(filepath.Join(dir, "hangs", hash.String(hangInput))))
}

func TestClassify(t *testing.T) {
	typ, ok := Classify(ffi.Crashed)
	assert.True(t, ok)
	assert.Equal(t, Crash, typ)
	typ, ok = Classify(ffi.TimedOut)
	assert.True(t, ok)
	assert.Equal(t, Hang, typ)
	_, ok = Classify(ffi.Completed)
	assert.False(t, ok)
}

func TestBadMode(t *testing.T) {
	_, err := NewReporter(t.TempDir(), "stacktrace")
	assert.Error(t, err)
}
