// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package osutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CreateMemMappedFile creates a temp file with the requested size and maps it into memory.
// The instrumented target writes coverage counters directly into the mapping.
func CreateMemMappedFile(size int) (f *os.File, mem []byte, err error) {
	// The name is irrelevant and can even be the same for all such files.
	fd, err := unix.MemfdCreate("ember-shared-mem", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to do memfd_create: %w", err)
	}
	f = os.NewFile(uintptr(fd), fmt.Sprintf("/proc/self/fd/%d", fd))
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to truncate shared mem file: %w", err)
	}
	mem, err = unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to mmap shared mem file: %w", err)
	}
	return f, mem, nil
}

func CloseMemMappedFile(f *os.File, mem []byte) error {
	err1 := unix.Munmap(mem)
	err2 := f.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
