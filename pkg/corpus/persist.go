// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/emberfuzz/ember/pkg/hash"
	"github.com/emberfuzz/ember/pkg/log"
	"github.com/emberfuzz/ember/pkg/osutil"
)

// On disk every corpus entry is a bare file named by the hash of its
// contents. The name is derived, never stored, so a directory survives
// partial writes and manual edits: whatever loads is usable, whatever
// does not is set aside.

// WriteEntry persists data under its content hash and returns the path.
// Writing the same content twice is a no-op with the same name, so
// concurrent writers cannot clobber each other.
func WriteEntry(dir string, data []byte) (string, error) {
	path := filepath.Join(dir, hash.String(data))
	if osutil.IsExist(path) {
		return path, nil
	}
	if err := osutil.SaveFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Seed is one input loaded from a directory.
type Seed struct {
	Path string
	Data []byte
}

// LoadDir reads all regular files from dir. A missing directory is an empty
// corpus. Unreadable files are logged and skipped, one bad file must not
// abort a campaign resume.
func LoadDir(dir string) ([]Seed, error) {
	files, err := osutil.ListDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus dir %v: %w", dir, err)
	}
	var seeds []Seed
	for _, file := range files {
		path := filepath.Join(dir, file)
		if st, err := os.Stat(path); err != nil || !st.Mode().IsRegular() {
			continue
		}
		data, err := osutil.ReadFile(path)
		if err != nil {
			log.Logf(0, "skipping unreadable corpus file %v: %v", path, err)
			continue
		}
		seeds = append(seeds, Seed{Path: path, Data: data})
	}
	return seeds, nil
}

// Quarantine moves a suspect input out of the active corpus directory into
// a "suspect" sibling so it is preserved for inspection but never loaded
// again. Used for resumed entries that misbehave during calibration.
func Quarantine(dir, path string) error {
	suspectDir := filepath.Join(dir, "suspect")
	if err := osutil.MkdirAll(suspectDir); err != nil {
		return err
	}
	return osutil.Rename(path, filepath.Join(suspectDir, filepath.Base(path)))
}
