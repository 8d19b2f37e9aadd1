// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package ffi drives the externally supplied target function across the
// foreign-function boundary and classifies the outcome of every invocation.
package ffi

import (
	"fmt"
	"sort"
	"sync"
)

// Target is the entry point contract the engine consumes but does not own.
// The entry point takes the input buffer (pointer+length semantics across
// the boundary) and returns a status code: 0 for normal completion, a
// negative value -signo when the target glue caught a fault signal.
// Go-level panics escaping Exec are recovered and classified by Env.
//
// Before the first Exec the engine hands over the coverage counter arena and
// the comparison-trace region; the instrumented target writes into both
// directly. The engine owns the layout of these regions, the target owns
// the writes.
type Target interface {
	// Setup passes the shared memory regions to the target glue.
	// Returning an error means the boundary contract cannot be satisfied
	// (wrong counter section size etc.) and is fatal to the campaign.
	Setup(cover, comps []byte) error
	// Exec invokes the entry point. Never called concurrently on one Target.
	Exec(data []byte) int
}

// Factory creates a fresh Target instance. Each worker env gets its own so
// that a fault in one execution context cannot corrupt another.
type Factory func() Target

var (
	targetsMu sync.Mutex
	targets   = make(map[string]Factory)
)

// Register makes a built-in harness available under the given name.
// Typically called from an init function of the harness package.
func Register(name string, f Factory) {
	targetsMu.Lock()
	defer targetsMu.Unlock()
	if targets[name] != nil {
		panic(fmt.Sprintf("target %v is registered twice", name))
	}
	targets[name] = f
}

// Load resolves a harness location: a registered harness name, or a path to
// a Go plugin exporting an EmberTarget factory.
func Load(location string) (Factory, error) {
	targetsMu.Lock()
	f := targets[location]
	targetsMu.Unlock()
	if f != nil {
		return f, nil
	}
	return loadPlugin(location)
}

func registered() []string {
	targetsMu.Lock()
	defer targetsMu.Unlock()
	var names []string
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
