// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package cmptrace

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	region, err := NewRegion(0)
	require.NoError(t, err)
	defer region.Close()

	region.Arm()
	recs := Trace{
		{Op1: 0x1badcafe, Op2: 0xdeadbeef, Offset: 0, Width: 4},
		{Op1: 0x4d42, Op2: 0xffff, Offset: NoOffset, Width: 2},
	}
	for _, rec := range recs {
		region.Append(rec)
	}
	assert.Equal(t, recs, region.Collect())
}

func TestDisarmDropsRecords(t *testing.T) {
	region, err := NewRegion(0)
	require.NoError(t, err)
	defer region.Close()

	region.Disarm()
	region.Append(Record{Op1: 1, Op2: 2, Width: 1})
	assert.Nil(t, region.Collect())

	// Re-arming starts a fresh run.
	region.Arm()
	region.Append(Record{Op1: 1, Op2: 2, Offset: NoOffset, Width: 1})
	assert.Len(t, region.Collect(), 1)
}

func TestOverflow(t *testing.T) {
	// Room for exactly two records.
	region, err := NewRegion(headerSize + 2*recordSize)
	require.NoError(t, err)
	defer region.Close()

	region.Arm()
	for i := 0; i < 5; i++ {
		region.Append(Record{Op1: uint64(i), Offset: NoOffset, Width: 8})
	}
	trace := region.Collect()
	require.Len(t, trace, 2)
	assert.Equal(t, uint64(0), trace[0].Op1)
	assert.Equal(t, uint64(1), trace[1].Op1)
}

func TestScribbledHeader(t *testing.T) {
	region, err := NewRegion(headerSize + 2*recordSize)
	require.NoError(t, err)
	defer region.Close()

	region.Arm()
	region.Append(Record{Op1: 1, Offset: NoOffset, Width: 8})
	// The target writes the region, so it can also trash the header words.
	// The reader must stay within the mapping no matter what they claim.
	binary.LittleEndian.PutUint32(region.Mem()[0:], ^uint32(0))
	binary.LittleEndian.PutUint32(region.Mem()[4:], ^uint32(0))
	var trace Trace
	require.NotPanics(t, func() { trace = region.Collect() })
	assert.Len(t, trace, 2)
}
