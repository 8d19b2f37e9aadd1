// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !linux

package ffi

import "fmt"

func loadPlugin(location string) (Factory, error) {
	return nil, fmt.Errorf("target %q is not registered (have: %v); plugin loading requires linux",
		location, registered())
}
