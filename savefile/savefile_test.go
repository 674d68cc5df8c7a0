// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package savefile

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func writeSnap(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParse(t *testing.T) {
	path := writeSnap(t, t.TempDir(), "a.snap",
		`#{"comment":"t","labels":["golden"]}
foo,1.5
bar,[1,2,3]
baz
names,["a","b"]
`)

	pvs, meta, errs := Parse(path, false)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if meta.Comment != "t" || !reflect.DeepEqual(meta.Labels, []string{"golden"}) {
		t.Fatalf("meta = %+v", meta)
	}
	if pvs["foo"].Value != 1.5 {
		t.Errorf("foo = %v", pvs["foo"].Value)
	}
	if !reflect.DeepEqual(pvs["bar"].Value, []float64{1, 2, 3}) {
		t.Errorf("bar = %v", pvs["bar"].Value)
	}
	if pvs["baz"].Value != nil {
		t.Errorf("baz should have no value, got %v", pvs["baz"].Value)
	}
	if !reflect.DeepEqual(pvs["names"].Value, []string{"a", "b"}) {
		t.Errorf("names = %v", pvs["names"].Value)
	}
}

func TestParseNestedLiteral(t *testing.T) {
	path := writeSnap(t, t.TempDir(), "a.snap",
		"#{\"comment\":\"\",\"labels\":[]}\nfoo,[[1,2],[3]]\n")

	pvs, _, errs := Parse(path, false)
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	// Heterogeneous sequences stay []any; downstream comparison must cope.
	if _, ok := pvs["foo"].Value.([]any); !ok {
		t.Fatalf("foo = %T", pvs["foo"].Value)
	}
}

func TestParseMalformedLineKeepsRest(t *testing.T) {
	path := writeSnap(t, t.TempDir(), "a.snap",
		`#{"comment":"","labels":[]}
good,1
bad,{{{
also:good,2
`)

	pvs, _, errs := Parse(path, false)
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), `"bad"`) {
		t.Errorf("error should name the pv, got %q", errs[0])
	}
	if pvs["good"].Value != 1.0 || pvs["also:good"].Value != 2.0 {
		t.Errorf("good lines must survive a broken one: %v", pvs)
	}
	// The broken line keeps its name, just without a value.
	if got, ok := pvs["bad"]; !ok || got.Value != nil {
		t.Errorf("bad = %v, %v", got, ok)
	}
}

func TestParseNoMetadata(t *testing.T) {
	path := writeSnap(t, t.TempDir(), "a.snap", "foo,1\n")

	pvs, meta, errs := Parse(path, false)
	if len(errs) == 0 || !strings.Contains(errs[0].Error(), "no meta data") {
		t.Fatalf("missing metadata must be reported first, got %v", errs)
	}
	if meta.Labels == nil {
		t.Error("labels must default to an empty slice")
	}
	if pvs["foo"].Value != 1.0 {
		t.Errorf("foo = %v", pvs["foo"].Value)
	}
}

func TestParseBadMetadata(t *testing.T) {
	path := writeSnap(t, t.TempDir(), "a.snap", "#not json\nfoo,1\n")

	pvs, _, errs := Parse(path, false)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "JSON") {
		t.Fatalf("errs = %v", errs)
	}
	if pvs["foo"].Value != 1.0 {
		t.Errorf("data lines must still parse, got %v", pvs)
	}
}

func TestParseMetadataOnly(t *testing.T) {
	path := writeSnap(t, t.TempDir(), "a.snap",
		"#{\"comment\":\"c\",\"labels\":[],\"req_file_name\":\"r.req\"}\nfoo,1\n")

	pvs, meta, errs := Parse(path, true)
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if meta.ReqFileName != "r.req" {
		t.Errorf("meta = %+v", meta)
	}
	if len(pvs) != 0 {
		t.Errorf("metadata-only parse must not read values, got %v", pvs)
	}
}

func TestParseMissingFile(t *testing.T) {
	_, _, errs := Parse(filepath.Join(t.TempDir(), "nope.snap"), false)
	if len(errs) == 0 {
		t.Fatal("expected an error")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.snap")

	entries := []SavedEntry{
		{Name: "scalar", Value: 2.5},
		{Name: "wave", Value: []float64{1, 2, 3}},
		{Name: "text", Value: "on"},
		{Name: "missing", Value: nil},
	}
	meta := Meta{
		Comment:     "nightly",
		Labels:      []string{"golden"},
		ReqFileName: "sys.req",
		Macros:      map[string]string{"SYS": "TST"},
	}
	if err := Write(path, entries, meta); err != nil {
		t.Fatal(err)
	}

	pvs, gotMeta, errs := Parse(path, false)
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if !reflect.DeepEqual(gotMeta, meta) {
		t.Errorf("meta = %+v, want %+v", gotMeta, meta)
	}
	if pvs["scalar"].Value != 2.5 || pvs["text"].Value != "on" {
		t.Errorf("pvs = %v", pvs)
	}
	if !reflect.DeepEqual(pvs["wave"].Value, []float64{1, 2, 3}) {
		t.Errorf("wave = %v", pvs["wave"].Value)
	}
	if pvs["missing"].Value != nil {
		t.Errorf("missing = %v", pvs["missing"].Value)
	}
}

func TestWriteParseRoundTripProperty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prop.snap")

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("scalar values survive a write/parse cycle", prop.ForAll(
		func(name string, value float64) bool {
			err := Write(path, []SavedEntry{{Name: name, Value: value}}, Meta{})
			if err != nil {
				return false
			}
			pvs, _, errs := Parse(path, false)
			return len(errs) == 0 && pvs[name].Value == value
		},
		gen.Identifier(),
		gen.Float64Range(-1e9, 1e9),
	))

	props.Property("array values survive a write/parse cycle", prop.ForAll(
		func(name string, values []float64) bool {
			err := Write(path, []SavedEntry{{Name: name, Value: values}}, Meta{})
			if err != nil {
				return false
			}
			pvs, _, errs := Parse(path, false)
			if len(errs) != 0 {
				return false
			}
			if len(values) == 0 {
				// A nil slice writes as null, an empty one as [].
				got, ok := pvs[name].Value.([]float64)
				return pvs[name].Value == nil || (ok && len(got) == 0)
			}
			got, ok := pvs[name].Value.([]float64)
			return ok && reflect.DeepEqual(got, values)
		},
		gen.Identifier(),
		gen.SliceOf(gen.Float64Range(-1e9, 1e9)),
	))

	props.TestingRun(t)
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	reqFile := filepath.Join(dir, "sys.req")

	// Belongs via metadata.
	writeSnap(t, dir, "sys.snap",
		"#{\"comment\":\"\",\"labels\":[],\"req_file_name\":\"sys.req\"}\nfoo,1\n")
	// Belongs via the legacy name prefix, has no metadata.
	writeSnap(t, dir, "sys_20260101.snap", "foo,1\n")
	// Matches the glob but belongs to nothing.
	writeSnap(t, dir, "sysother.snap",
		"#{\"comment\":\"\",\"labels\":[],\"req_file_name\":\"other.req\"}\n")

	found, errs := Scan(dir, reqFile, nil)
	if len(found) != 2 {
		t.Fatalf("found = %v", found)
	}
	if _, ok := found["sys.snap"]; !ok {
		t.Error("metadata match missing")
	}
	if _, ok := found["sys_20260101.snap"]; !ok {
		t.Error("prefix match missing")
	}
	// Only the prefix-matched file is missing metadata, so exactly its error
	// is reported.
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "sys_20260101.snap") {
		t.Errorf("errs = %v", errs)
	}
}

func TestScanSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	reqFile := filepath.Join(dir, "sys.req")
	path := writeSnap(t, dir, "sys_a.snap",
		"#{\"comment\":\"\",\"labels\":[],\"req_file_name\":\"sys.req\"}\n")

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	known := map[string]time.Time{"sys_a.snap": fi.ModTime()}

	found, errs := Scan(dir, reqFile, known)
	if len(found) != 0 || len(errs) != 0 {
		t.Fatalf("unchanged file must be skipped, got %v, %v", found, errs)
	}
}

func TestWatcherReportsSnapshotChanges(t *testing.T) {
	dir := t.TempDir()

	changed := make(chan string, 8)
	w, err := NewWatcher(dir, func(path string) { changed <- path })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	writeSnap(t, dir, "sys_a.snap", "#{}\n")
	writeSnap(t, dir, "ignored.txt", "not a snapshot\n")

	select {
	case path := <-changed:
		if filepath.Base(path) != "sys_a.snap" {
			t.Fatalf("unexpected change: %s", path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	// The non-snapshot file never shows up.
	select {
	case path := <-changed:
		if strings.HasSuffix(path, ".txt") {
			t.Fatalf("non-snapshot file reported: %s", path)
		}
	case <-time.After(200 * time.Millisecond):
	}
}
