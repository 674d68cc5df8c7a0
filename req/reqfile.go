// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package req resolves request files into ordered lists of process variable
// names. Request files are line based: comments and structural markers are
// skipped, "!file,\"A=B\"" includes another file with its own macro set, and
// every other non-blank line names one PV, possibly containing $(KEY) macro
// placeholders.
package req

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

var macroRgx = regexp.MustCompile(`\$\(.*?\)`)

// reqFile is one request file in a resolution pass. The parent pointer is a
// non-owning back reference used only for trace building and loop detection;
// the chain lives no longer than one Read call.
type reqFile struct {
	path       string
	parent     *reqFile
	macros     map[string]string
	changeable []string
	trace      string
	lineNum    int
	line       string
}

func newReqFile(path string, parent *reqFile, macros map[string]string, changeable []string) *reqFile {
	f := &reqFile{
		path:       normPath(path),
		parent:     parent,
		macros:     macros,
		changeable: changeable,
	}
	if parent != nil {
		f.trace = fmt.Sprintf("%s [line %d: %s] >> %s",
			parent.trace, parent.lineNum, parent.line, f.path)
	} else {
		f.trace = f.path
	}
	return f
}

// Read resolves the request file at path and returns the ordered list of PV
// names. Macros in the changeable list may stay unresolved in the returned
// names; they are substituted later by the caller. Errors carry the full
// ancestor trace with the file, line number and line text of the fault.
func Read(path string, macros map[string]string, changeable []string) ([]string, error) {
	if macros == nil {
		macros = map[string]string{}
	}
	return newReqFile(path, nil, macros, changeable).read()
}

func (f *reqFile) read() ([]string, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.trace, err)
	}
	defer file.Close()

	var pvs []string
	sc := bufio.NewScanner(file)
	f.lineNum = 0
	for sc.Scan() {
		f.lineNum++
		f.line = strings.TrimSpace(sc.Text())

		switch {
		case f.line == "",
			strings.HasPrefix(f.line, "#"),
			strings.HasPrefix(f.line, "data{"),
			strings.HasPrefix(f.line, "}"):
			continue

		case strings.HasPrefix(f.line, "!"):
			sub, err := f.include()
			if err != nil {
				return nil, err
			}
			pvs = append(pvs, sub...)

		default:
			// Substitute first, then check for leftovers that are not
			// changeable.
			name := Substitute(strings.SplitN(f.line, ",", 2)[0], f.macros)
			if err := f.validateMacros(name); err != nil {
				return nil, f.wrap(err)
			}
			pvs = append(pvs, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", f.trace, err)
	}
	return pvs, nil
}

// include handles a "!target[,\"A=B,C=D\"]" line.
func (f *reqFile) include() ([]string, error) {
	parts := strings.SplitN(f.line[1:], ",", 2)

	macros := map[string]string{}
	if len(parts) > 1 {
		macroTxt := strings.TrimSpace(parts[1])
		if len(macroTxt) < 2 || (macroTxt[0] != '"' && macroTxt[0] != '\'') {
			return nil, f.wrap(&FormatError{Msg: "syntax error, macros argument must be quoted"})
		}
		if macroTxt[len(macroTxt)-1] != macroTxt[0] {
			return nil, f.wrap(&FormatError{Msg: "syntax error, macros argument must be quoted"})
		}

		macroTxt = Substitute(macroTxt[1:len(macroTxt)-1], f.macros)
		if err := f.validateMacros(macroTxt); err != nil {
			return nil, f.wrap(err)
		}
		var err error
		macros, err = ParseMacros(macroTxt)
		if err != nil {
			return nil, f.wrap(err)
		}
	}

	target := filepath.Join(filepath.Dir(f.path), strings.TrimSpace(parts[0]))
	if err := f.checkLoop(target); err != nil {
		return nil, f.wrap(err)
	}

	sub, err := newReqFile(target, f, macros, nil).read()
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (f *reqFile) wrap(err error) error {
	return fmt.Errorf("%s [line %d: %s]: %w", f.trace, f.lineNum, f.line, err)
}

// validateMacros fails when txt still contains $(KEY) tokens that are neither
// produced by a macro value nor on the changeable allow-list.
func (f *reqFile) validateMacros(txt string) error {
	var invalid []string
	for _, raw := range macroRgx.FindAllString(txt, -1) {
		if f.isMacroValue(raw) {
			continue
		}
		name := raw[2 : len(raw)-1]
		if slices.Contains(f.changeable, name) {
			continue
		}
		invalid = append(invalid, raw)
	}
	if len(invalid) > 0 {
		return &MacroError{Msg: "the following macros were not defined: " + strings.Join(invalid, ", ")}
	}
	return nil
}

// isMacroValue reports whether token is itself the value of a known macro, in
// which case it is a deliberate passthrough, not an unresolved macro.
func (f *reqFile) isMacroValue(token string) bool {
	for _, v := range f.macros {
		if v == token {
			return true
		}
	}
	return false
}

// checkLoop walks the ancestor chain comparing normalized absolute paths.
func (f *reqFile) checkLoop(path string) error {
	norm := normPath(path)
	for anc := f; anc != nil; anc = anc.parent {
		if normPath(anc.path) != norm {
			continue
		}
		if anc.parent != nil {
			return &LoopError{Path: norm, Origin: anc.parent.path}
		}
		return &LoopError{Path: norm}
	}
	return nil
}

// Substitute replaces every $(KEY) placeholder defined in macros within txt.
func Substitute(txt string, macros map[string]string) string {
	for k, v := range macros {
		txt = strings.ReplaceAll(txt, "$("+k+")", v)
	}
	return txt
}

// ParseMacros converts a comma separated macro string such as "SYS=TST,D=A"
// into a map. Every entry must contain exactly one "=".
func ParseMacros(s string) (map[string]string, error) {
	macros := map[string]string{}
	if s == "" {
		return macros, nil
	}
	for _, part := range strings.Split(s, ",") {
		kv := strings.Split(strings.TrimSpace(part), "=")
		if len(kv) != 2 {
			return nil, &MacroError{Msg: fmt.Sprintf("string %q cannot be parsed as macros", s)}
		}
		macros[kv[0]] = kv[1]
	}
	return macros, nil
}

func normPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return filepath.Clean(abs)
}
