// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package signal provides types for working with coverage feedback signal.
//
// A signal element identifies an instrumentation edge; the value attached to
// it is the logarithmic hit-count bucket observed for that edge. An execution
// contributes new signal if it touches an unseen edge or raises the bucket of
// a known one.
package signal

import "golang.org/x/exp/slices"

type (
	elemType   uint32
	bucketType uint8
)

type Signal map[elemType]bucketType

func (s Signal) Len() int {
	return len(s)
}

func (s Signal) Empty() bool {
	return len(s) == 0
}

func (s Signal) Copy() Signal {
	c := make(Signal, len(s))
	for e, b := range s {
		c[e] = b
	}
	return c
}

// FromRaw builds a signal from parallel edge/bucket slices.
func FromRaw(elems []uint32, buckets []uint8) Signal {
	if len(elems) == 0 {
		return nil
	}
	if len(elems) != len(buckets) {
		panic("mismatched elems/buckets")
	}
	s := make(Signal, len(elems))
	for i, e := range elems {
		if b, ok := s[elemType(e)]; !ok || b < bucketType(buckets[i]) {
			s[elemType(e)] = bucketType(buckets[i])
		}
	}
	return s
}

// Diff returns the subset of s1 that is new relative to s:
// unseen edges and edges whose bucket grew.
func (s Signal) Diff(s1 Signal) Signal {
	if s1.Empty() {
		return nil
	}
	var res Signal
	for e, b1 := range s1 {
		if b, ok := s[e]; ok && b >= b1 {
			continue
		}
		if res == nil {
			res = make(Signal)
		}
		res[e] = b1
	}
	return res
}

func (s Signal) Intersection(s1 Signal) Signal {
	if s1.Empty() {
		return nil
	}
	res := make(Signal, len(s))
	for e, b := range s {
		if b1, ok := s1[e]; ok && b1 >= b {
			res[e] = b
		}
	}
	return res
}

func (s Signal) IntersectsWith(s1 Signal) bool {
	for e, b := range s {
		if b1, ok := s1[e]; ok && b1 >= b {
			return true
		}
	}
	return false
}

// Merge folds s1 into s, keeping the maximum bucket per edge.
// Merging never removes elements, which is what makes the global
// coverage state monotone.
func (s *Signal) Merge(s1 Signal) {
	if s1.Empty() {
		return
	}
	s0 := *s
	if s0 == nil {
		s0 = make(Signal, len(s1))
		*s = s0
	}
	for e, b1 := range s1 {
		if b, ok := s0[e]; !ok || b < b1 {
			s0[e] = b1
		}
	}
}

// Elems returns the edge ids in ascending order.
// Used for deterministic crash-signature derivation.
func (s Signal) Elems() []uint32 {
	res := make([]uint32, 0, len(s))
	for e := range s {
		res = append(res, uint32(e))
	}
	slices.Sort(res)
	return res
}

// Serial is a flat form of Signal suitable for the state database.
type Serial struct {
	Elems   []uint32
	Buckets []uint8
}

func (s Signal) Serialize() Serial {
	if s.Empty() {
		return Serial{}
	}
	res := Serial{
		Elems:   make([]uint32, len(s)),
		Buckets: make([]uint8, len(s)),
	}
	i := 0
	for e, b := range s {
		res.Elems[i] = uint32(e)
		res.Buckets[i] = uint8(b)
		i++
	}
	return res
}

func (ser Serial) Deserialize() Signal {
	if len(ser.Elems) != len(ser.Buckets) {
		panic("corrupted Serial")
	}
	if len(ser.Elems) == 0 {
		return nil
	}
	return FromRaw(ser.Elems, ser.Buckets)
}
