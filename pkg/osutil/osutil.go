// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package osutil contains file system helpers shared by the fuzzer packages.
package osutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	DefaultDirPerm  = 0755
	DefaultFilePerm = 0644
)

// IsExist returns true if the file name exists.
func IsExist(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func MkdirAll(dir string) error {
	return os.MkdirAll(dir, DefaultDirPerm)
}

func WriteFile(filename string, data []byte) error {
	return os.WriteFile(filename, data, DefaultFilePerm)
}

func ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Rename is an atomic file rename (renames via the target directory to keep
// the rename on a single file system).
func Rename(oldFile, newFile string) error {
	return os.Rename(oldFile, newFile)
}

// ListDir returns a sorted list of all file names in dir.
// A missing dir is not an error, it's an empty dir.
func ListDir(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read dir %v: %w", dir, err)
	}
	sort.Strings(names)
	return names, nil
}

// SaveFileAtomic writes data to filename via a temp file in the same dir,
// so that a concurrent reader never observes a partially written file.
func SaveFileAtomic(filename string, data []byte) error {
	tmp := filename + ".tmp"
	if err := WriteFile(tmp, data); err != nil {
		return err
	}
	if err := Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Abs is like filepath.Abs, but does not return an error.
func Abs(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
