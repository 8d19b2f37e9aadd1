// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
	"sort"
)

// entryList keeps the energy-weighted selection table. Selection draws a
// random point on the accumulated energy line and binary-searches the entry
// that owns it, so higher-energy entries are proportionally more likely.
type entryList struct {
	list      []*Entry
	sumPrios  int64
	accPrios  []int64
	sinceLast int // saves since the table was last rebuilt
}

func (el *entryList) chooseEntry(r *rand.Rand) *Entry {
	if len(el.list) == 0 {
		return nil
	}
	randVal := r.Int63n(el.sumPrios + 1)
	idx := sort.Search(len(el.accPrios), func(i int) bool {
		return el.accPrios[i] >= randVal
	})
	return el.list[idx]
}

func (el *entryList) saveEntry(entry *Entry) {
	el.sumPrios += entry.Energy()
	el.accPrios = append(el.accPrios, el.sumPrios)
	el.list = append(el.list, entry)
	el.sinceLast++
}

// rebuildPrios recomputes the accumulated energies. Entry energies drift as
// calibration refines exec times, so the table is rebuilt periodically
// rather than on every save.
const rebuildEvery = 128

func (el *entryList) rebuildPrios(entries map[string]*Entry) {
	el.sumPrios = 0
	el.list = el.list[:0]
	el.accPrios = el.accPrios[:0]
	for _, entry := range entries {
		el.sumPrios += entry.Energy()
		el.accPrios = append(el.accPrios, el.sumPrios)
		el.list = append(el.list, entry)
	}
	el.sinceLast = 0
}

// ChooseEntry picks the next entry to mutate, or nil if the corpus is empty.
func (corpus *Corpus) ChooseEntry(r *rand.Rand) *Entry {
	corpus.mu.Lock()
	defer corpus.mu.Unlock()
	if corpus.sinceLast >= rebuildEvery {
		corpus.rebuildPrios(corpus.entries)
	}
	entry := corpus.chooseEntry(r)
	if entry != nil {
		entry.Selected++
	}
	return entry
}
