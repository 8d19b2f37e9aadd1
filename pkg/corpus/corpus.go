// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package corpus maintains the set of inputs that cover the target up to the
// currently reached frontiers, and schedules which of them to mutate next.
package corpus

import (
	"sync"
	"time"

	"golang.org/x/exp/maps"

	"github.com/emberfuzz/ember/pkg/hash"
	"github.com/emberfuzz/ember/pkg/signal"
)

type Corpus struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	signal  signal.Signal // total signal of all entries
	updates chan<- NewEntryEvent
	entryList
}

func New() *Corpus {
	return NewMonitored(nil)
}

// NewMonitored creates a corpus that reports every admission on the updates
// channel. The receiver must keep draining it (persistence hooks do).
func NewMonitored(updates chan<- NewEntryEvent) *Corpus {
	return &Corpus{
		entries: make(map[string]*Entry),
		updates: updates,
	}
}

// Entry objects are to be treated as immutable, otherwise it's just too hard
// to synchronize accesses to them across the whole engine. When Corpus
// updates one of its entries, it saves a copy of it.
type Entry struct {
	Sig    string
	Data   []byte
	Signal signal.Signal // signal this entry contributed when admitted

	// Scheduling metadata, fixed at admission or at the last update.
	ExecTime time.Duration // stable execution time measured during calibration
	Found    time.Time
	Verified int // number of consistent calibration runs behind Signal

	// Selected counts how many times the entry was picked for mutation.
	// The one exception to entry immutability, guarded by the corpus lock.
	Selected int64
}

// Energy is the scheduling weight of the entry. Entries that contributed
// more signal are favored, small and fast entries get a boost since their
// mutants are cheaper to evaluate.
func (e *Entry) Energy() int64 {
	prio := int64(e.Signal.Len())
	if prio == 0 {
		prio = 1
	}
	if len(e.Data) > 0 && len(e.Data) <= 64 {
		prio *= 2
	}
	if e.ExecTime > 0 && e.ExecTime < 10*time.Millisecond {
		prio *= 2
	}
	return prio
}

type NewInput struct {
	Data     []byte
	Signal   signal.Signal
	ExecTime time.Duration
	Verified int
}

type NewEntryEvent struct {
	Sig    string
	Exists bool
	Data   []byte
}

// Save admits an input into the corpus. If an entry with the same content
// already exists, its signal absorbs the new run's signal instead; content
// identity is the entry key, so the corpus never holds duplicates.
func (corpus *Corpus) Save(inp NewInput) {
	sig := hash.String(inp.Data)

	corpus.mu.Lock()
	exists := false
	if old, ok := corpus.entries[sig]; ok {
		exists = true
		newSignal := old.Signal.Copy()
		newSignal.Merge(inp.Signal)
		corpus.entries[sig] = &Entry{
			Sig:      sig,
			Data:     old.Data,
			Signal:   newSignal,
			ExecTime: old.ExecTime,
			Found:    old.Found,
			Verified: old.Verified,
			Selected: old.Selected,
		}
	} else {
		entry := &Entry{
			Sig:      sig,
			Data:     inp.Data,
			Signal:   inp.Signal,
			ExecTime: inp.ExecTime,
			Found:    time.Now(),
			Verified: inp.Verified,
		}
		corpus.entries[sig] = entry
		corpus.saveEntry(entry)
	}
	corpus.signal.Merge(inp.Signal)
	corpus.mu.Unlock()

	// Sent outside the lock, so the receiver is free to call back into
	// the corpus and a slow receiver stalls only its sender.
	if corpus.updates != nil {
		corpus.updates <- NewEntryEvent{
			Sig:    sig,
			Exists: exists,
			Data:   inp.Data,
		}
	}
}

func (corpus *Corpus) Signal() signal.Signal {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return corpus.signal.Copy()
}

func (corpus *Corpus) Entries() []*Entry {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return maps.Values(corpus.entries)
}

func (corpus *Corpus) Entry(sig string) *Entry {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return corpus.entries[sig]
}

// Stats is a snapshot of the relevant current state figures.
type Stats struct {
	Entries int
	Signal  int
}

func (corpus *Corpus) Stats() Stats {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return Stats{
		Entries: len(corpus.entries),
		Signal:  len(corpus.signal),
	}
}
