// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package savefile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileInfo describes one snapshot file found in the save directory.
type FileInfo struct {
	Name    string
	Path    string
	Meta    Meta
	ModTime time.Time
}

// Scan finds new or modified snapshot files in saveDir that belong to the
// request file at reqFilePath and parses their metadata. known maps file
// names to the modification time seen on a previous scan; unchanged files are
// skipped. A file belongs to the request file when its metadata names it, or,
// for older files without metadata, when the file name carries the request
// file's prefix.
func Scan(saveDir, reqFilePath string, known map[string]time.Time) (map[string]FileInfo, []error) {
	found := map[string]FileInfo{}
	var errs []error

	reqName := filepath.Base(reqFilePath)
	prefix := strings.SplitN(reqName, ".", 2)[0]

	matches, err := filepath.Glob(filepath.Join(saveDir, prefix+"*"+Suffix))
	if err != nil {
		return found, []error{fmt.Errorf("scanning save dir: %w", err)}
	}

	for _, path := range matches {
		fi, err := os.Stat(path)
		if err != nil || fi.IsDir() {
			continue
		}
		name := filepath.Base(path)
		if seen, ok := known[name]; ok && seen.Equal(fi.ModTime()) {
			continue
		}

		_, meta, fileErrs := Parse(path, true)

		matchesMeta := meta.ReqFileName == reqName && reqName != ""
		matchesPrefix := strings.HasPrefix(name, prefix+"_")
		if !matchesMeta && !matchesPrefix {
			continue
		}

		found[name] = FileInfo{
			Name:    name,
			Path:    path,
			Meta:    meta,
			ModTime: fi.ModTime(),
		}
		// Report errors only for files that actually belong here.
		for _, e := range fileErrs {
			errs = append(errs, fmt.Errorf("%s: %w", name, e))
		}
	}
	return found, errs
}
