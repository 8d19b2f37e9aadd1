// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !linux

package osutil

import (
	"os"
)

// Fallback for systems without memfd_create: the region is a plain anonymous
// allocation. The in-process boundary only needs a stable backing slice.
func CreateMemMappedFile(size int) (f *os.File, mem []byte, err error) {
	return nil, make([]byte, size), nil
}

func CloseMemMappedFile(f *os.File, mem []byte) error {
	if f != nil {
		return f.Close()
	}
	return nil
}
