// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package savefile

import (
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to snapshot files in a save directory, so a caller
// can rescan without polling.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// NewWatcher watches dir and invokes onChange with the path of every created,
// written, renamed or removed snapshot file. onChange runs on the watcher's
// goroutine.
func NewWatcher(dir string, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw}
	go w.run(onChange)
	return w, nil
}

func (w *Watcher) run(onChange func(string)) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, Suffix) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				onChange(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("save dir watcher error", "err", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
