// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package cover

import (
	"sync"

	"github.com/emberfuzz/ember/pkg/signal"
	"github.com/emberfuzz/ember/pkg/stat"
)

// State keeps the signal known to the whole campaign.
// It only ever grows; bits are never cleared while the process lives.
type State struct {
	mu        sync.RWMutex
	maxSignal signal.Signal // max signal ever observed
	newSignal signal.Signal // newly identified max signal, not yet flushed
}

func NewState() *State {
	st := &State{}
	stat.New("cover", "Accumulated signal elements", stat.Console,
		stat.Prometheus("ember_cover_signal"), stat.LenOf(&st.maxSignal, &st.mu))
	return st
}

// Fold compares a run snapshot against the global state and, if the run
// contributed anything, merges the contribution in. The diff+merge runs under
// one lock so that two workers discovering the same edge cannot both win.
func (st *State) Fold(elems []uint32, buckets []uint8) (interesting bool, contributed signal.Signal) {
	return st.FoldSignal(signal.FromRaw(elems, buckets))
}

// FoldSignal is Fold for an already-built signal (e.g. the stable
// intersection produced by calibration).
func (st *State) FoldSignal(run signal.Signal) (interesting bool, contributed signal.Signal) {
	st.mu.Lock()
	defer st.mu.Unlock()
	diff := st.maxSignal.Diff(run)
	if diff.Empty() {
		return false, nil
	}
	st.maxSignal.Merge(diff)
	st.newSignal.Merge(diff)
	return true, diff
}

// Diff reports what run signal would contribute without committing it.
// Used during corpus-admission calibration runs.
func (st *State) Diff(run signal.Signal) signal.Signal {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.maxSignal.Diff(run)
}

// Merge folds externally obtained signal (e.g. a resumed campaign state).
func (st *State) Merge(sign signal.Signal) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.maxSignal.Merge(sign)
}

// GrabNew returns the signal accumulated since the previous call and resets
// the accumulator. The state flusher uses it to skip flushes that would
// rewrite an unchanged signal record.
func (st *State) GrabNew() signal.Signal {
	st.mu.Lock()
	defer st.mu.Unlock()
	sign := st.newSignal
	st.newSignal = nil
	return sign
}

func (st *State) Copy() signal.Signal {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.maxSignal.Copy()
}

func (st *State) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.maxSignal.Len()
}
