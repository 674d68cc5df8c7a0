// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package savefile reads and writes snapshot files. The format is plain text
// and hand editable: the first line is "#" followed by JSON metadata, every
// following non-blank, non-comment line is "pvname,json-literal".
package savefile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/pvtools/pvsnap/ca"
)

// Suffix is the file name suffix of snapshot files.
const Suffix = ".snap"

// Meta is the snapshot metadata held in the leading comment line. Keys absent
// from the file read back as empty string / empty slice.
type Meta struct {
	Comment     string            `json:"comment"`
	Labels      []string          `json:"labels"`
	ReqFileName string            `json:"req_file_name,omitempty"`
	Macros      map[string]string `json:"macros,omitempty"`
}

// SavedPv is the stored state of one process variable. RawName is the name as
// written in the file, which may still contain changeable macros.
type SavedPv struct {
	Value   ca.Value
	RawName string
}

// SavedEntry is one name/value pair to be written, order preserved.
type SavedEntry struct {
	Name  string
	Value ca.Value
}

// Parse reads the snapshot file at path. With metadataOnly it stops after the
// metadata line. Malformed individual lines are reported in the returned
// error list without aborting the parse; these files are hand editable, so a
// broken line must never hide the rest of a large snapshot.
func Parse(path string, metadataOnly bool) (map[string]SavedPv, Meta, []error) {
	var meta Meta
	pvs := map[string]SavedPv{}
	var errs []error

	defer func() {
		if meta.Labels == nil {
			meta.Labels = []string{}
		}
	}()

	file, err := os.Open(path)
	if err != nil {
		return pvs, meta, []error{fmt.Errorf("cannot open save file: %w", err)}
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024) // array literals can be long

	metaLoaded := false
	for sc.Scan() {
		line := sc.Text()

		// The first line starting with "#" is metadata, every later one is a
		// comment.
		if strings.HasPrefix(line, "#") && !metaLoaded {
			metaLoaded = true
			if err := json.Unmarshal([]byte(line[1:]), &meta); err != nil {
				errs = append(errs, errors.New("meta data could not be decoded, must be in JSON format"))
			}
			if metadataOnly {
				break
			}
			continue
		}
		if metadataOnly || strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(strings.TrimSpace(line), ",", 2)
		name := parts[0]
		var value ca.Value
		if len(parts) > 1 {
			var raw any
			if err := json.Unmarshal([]byte(parts[1]), &raw); err != nil {
				errs = append(errs, fmt.Errorf("value of %q cannot be decoded and will be ignored", name))
			} else {
				value = normalizeLiteral(raw)
			}
		}
		pvs[name] = SavedPv{Value: value, RawName: name}
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, fmt.Errorf("reading save file: %w", err))
	}
	if !metaLoaded {
		errs = append([]error{errors.New("no meta data in the file")}, errs...)
	}
	return pvs, meta, errs
}

// Write serializes pvs and meta to path in the snapshot format. The result
// round-trips through Parse.
func Write(path string, pvs []SavedEntry, meta Meta) error {
	if meta.Labels == nil {
		meta.Labels = []string{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create save file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "#%s\n", metaBytes)
	for _, p := range pvs {
		if p.Value == nil {
			fmt.Fprintf(w, "%s\n", p.Name)
			continue
		}
		lit, err := json.Marshal(p.Value)
		if err != nil {
			return fmt.Errorf("encoding value of %q: %w", p.Name, err)
		}
		fmt.Fprintf(w, "%s,%s\n", p.Name, lit)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing save file: %w", err)
	}
	return nil
}

// normalizeLiteral maps decoded JSON onto the ca.Value types. Sequences stay
// sequences; homogeneous ones get a concrete element type.
func normalizeLiteral(raw any) ca.Value {
	seq, ok := raw.([]any)
	if !ok {
		return raw
	}

	floats := make([]float64, 0, len(seq))
	for _, e := range seq {
		f, isFloat := e.(float64)
		if !isFloat {
			floats = nil
			break
		}
		floats = append(floats, f)
	}
	if floats != nil {
		return floats
	}

	strs := make([]string, 0, len(seq))
	for _, e := range seq {
		s, isString := e.(string)
		if !isString {
			return seq
		}
		strs = append(strs, s)
	}
	return strs
}
