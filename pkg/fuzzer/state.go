// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/emberfuzz/ember/pkg/cover"
	"github.com/emberfuzz/ember/pkg/db"
	"github.com/emberfuzz/ember/pkg/log"
	"github.com/emberfuzz/ember/pkg/signal"
)

// campaignState mirrors the accumulated coverage signal and the campaign
// identity on disk, so that a restarted engine continues where it stopped
// instead of re-discovering the whole frontier.
type campaignState struct {
	mu       sync.Mutex
	db       *db.DB
	campaign string
	seq      uint64
}

const (
	keyCampaign = "campaign"
	keySignal   = "signal"
)

func loadState(file string, cov *cover.State) (*campaignState, error) {
	database, err := db.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}
	st := &campaignState{db: database}
	if rec, ok := database.Records[keyCampaign]; ok {
		id, err := uuid.ParseBytes(rec.Val)
		if err != nil {
			return nil, fmt.Errorf("corrupted campaign id: %w", err)
		}
		st.campaign = id.String()
	} else {
		st.campaign = uuid.New().String()
		database.Save(keyCampaign, []byte(st.campaign), 0)
	}
	if rec, ok := database.Records[keySignal]; ok {
		resumed, err := decodeSignal(rec.Val)
		if err != nil {
			// A damaged signal record costs re-discovery, not the campaign.
			log.Logf(0, "dropping corrupted state signal: %v", err)
		} else {
			cov.Merge(resumed)
		}
		st.seq = rec.Seq
	}
	return st, database.Flush()
}

// flush writes the full current signal. Writes are keyed, so consecutive
// flushes supersede each other and compaction keeps the file bounded.
// A flush that finds no signal folded in since the previous one skips the
// write, the record on disk is already current.
func (st *campaignState) flush(cov *cover.State) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if cov.GrabNew().Empty() && st.seq != 0 {
		return st.db.Flush()
	}
	st.seq++
	st.db.Save(keySignal, encodeSignal(cov.Copy()), st.seq)
	return st.db.Flush()
}

func encodeSignal(sign signal.Signal) []byte {
	ser := sign.Serialize()
	out := make([]byte, 4+len(ser.Elems)*4+len(ser.Buckets))
	binary.LittleEndian.PutUint32(out, uint32(len(ser.Elems)))
	for i, e := range ser.Elems {
		binary.LittleEndian.PutUint32(out[4+i*4:], e)
	}
	copy(out[4+len(ser.Elems)*4:], ser.Buckets)
	return out
}

func decodeSignal(data []byte) (signal.Signal, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("truncated header")
	}
	n := int(binary.LittleEndian.Uint32(data))
	if len(data) != 4+n*4+n {
		return nil, fmt.Errorf("bad length %v for %v elems", len(data), n)
	}
	ser := signal.Serial{
		Elems:   make([]uint32, n),
		Buckets: make([]uint8, n),
	}
	for i := 0; i < n; i++ {
		ser.Elems[i] = binary.LittleEndian.Uint32(data[4+i*4:])
	}
	copy(ser.Buckets, data[4+n*4:])
	return ser.Deserialize(), nil
}
