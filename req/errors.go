// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package req

import "fmt"

// MacroError reports an unresolved macro or a macro string that cannot be
// parsed.
type MacroError struct {
	Msg string
}

func (e *MacroError) Error() string { return e.Msg }

// FormatError reports a syntax error in a request file.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string { return e.Msg }

// LoopError reports a cyclic include. Path is the file about to be included
// again; Origin is the file that already included it, empty when Path is the
// root request file itself.
type LoopError struct {
	Path   string
	Origin string
}

func (e *LoopError) Error() string {
	if e.Origin != "" {
		return fmt.Sprintf("infinite include loop: file %s was already included from %s", e.Path, e.Origin)
	}
	return fmt.Sprintf("infinite include loop: file %s was already loaded as the root request file", e.Path)
}
