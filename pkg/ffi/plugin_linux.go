// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package ffi

import (
	"fmt"
	"plugin"
)

// loadPlugin opens an instrumented harness built with -buildmode=plugin.
// The plugin must export:
//
//	var EmberTarget ffi.Factory
//
// and be built against the same engine module version.
func loadPlugin(location string) (Factory, error) {
	p, err := plugin.Open(location)
	if err != nil {
		return nil, fmt.Errorf("target %q is not registered (have: %v) and failed to load as plugin: %w",
			location, registered(), err)
	}
	sym, err := p.Lookup("EmberTarget")
	if err != nil {
		return nil, fmt.Errorf("plugin %v does not export EmberTarget: %w", location, err)
	}
	f, ok := sym.(*Factory)
	if !ok || *f == nil {
		return nil, fmt.Errorf("plugin %v: EmberTarget has type %T, want ffi.Factory", location, sym)
	}
	return *f, nil
}
