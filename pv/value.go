// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package pv

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/pvtools/pvsnap/ca"
)

// NormalizeArray applies the array shape rules of the underlying client: a
// scalar reported for an array channel becomes a one-element sequence, and a
// zero-length sequence becomes the no-value sentinel (nil).
func NormalizeArray(v ca.Value) ca.Value {
	switch s := v.(type) {
	case nil:
		return nil
	case []float64:
		if len(s) == 0 {
			return nil
		}
		return s
	case []string:
		if len(s) == 0 {
			return nil
		}
		return s
	case []any:
		if len(s) == 0 {
			return nil
		}
		return s
	default:
		// Array channel delivered a bare scalar (element count 1).
		if f, ok := asFloat(v); ok {
			return []float64{f}
		}
		if str, ok := v.(string); ok {
			return []string{str}
		}
		return []any{v}
	}
}

// Compare tests two channel values for equality under the array/scalar model.
// Numeric operands are equal when |v1 - v2| <= tolerance; everything else
// falls back to exact equality. A type mismatch is reported as unequal, never
// as an error.
func Compare(v1, v2 ca.Value, isArray bool, tolerance float64) bool {
	if isArray {
		v1 = NormalizeArray(v1)
		v2 = NormalizeArray(v2)
	}
	if v1 == nil || v2 == nil {
		return v1 == nil && v2 == nil
	}

	e1, ok1 := elements(v1)
	e2, ok2 := elements(v2)
	if ok1 != ok2 {
		// Sequence compared against scalar.
		return false
	}
	if !ok1 {
		return equalElement(v1, v2, tolerance)
	}
	if len(e1) != len(e2) {
		return false
	}
	for i := range e1 {
		if !equalElement(e1[i], e2[i], tolerance) {
			return false
		}
	}
	return true
}

// FormatValue renders a value for display. Floats honor the channel's display
// precision, arrays longer than 3 elements are abbreviated. The result is for
// presentation only and must never be fed back into Compare.
func FormatValue(v ca.Value, isArray bool, precision int) string {
	if !isArray {
		if f, isFloat := v.(float64); isFloat {
			return formatFloat(f, precision)
		}
		if s, isString := v.(string); isString {
			return s
		}
		return fmt.Sprint(v)
	}

	elems, ok := elements(v)
	if !ok {
		// Scalar delivered for an array channel.
		return "[" + formatElement(v, precision) + "]"
	}
	switch {
	case len(elems) == 0:
		// Empty array is equal to the "no value" scalar.
		return fmt.Sprint(nil)
	case len(elems) > 3:
		return "[" + formatElement(elems[0], precision) +
			" ... " + formatElement(elems[len(elems)-1], precision) + "]"
	default:
		out := "["
		for i, e := range elems {
			if i > 0 {
				out += " "
			}
			out += formatElement(e, precision)
		}
		return out + "]"
	}
}

func formatFloat(f float64, precision int) string {
	if precision > 0 {
		return strconv.FormatFloat(f, 'f', precision, 64)
	}
	return fmt.Sprintf("%f", f)
}

func formatElement(v ca.Value, precision int) string {
	if f, ok := v.(float64); ok {
		return formatFloat(f, precision)
	}
	return fmt.Sprint(v)
}

func equalElement(v1, v2 ca.Value, tolerance float64) bool {
	f1, ok1 := asFloat(v1)
	f2, ok2 := asFloat(v2)
	if ok1 && ok2 {
		return math.Abs(f1-f2) <= tolerance
	}
	if ok1 != ok2 {
		return false
	}
	// Hand-edited save files can hold anything, including nested sequences.
	// == on an uncomparable dynamic type panics, so check first and report
	// such elements as unequal.
	t1 := reflect.TypeOf(v1)
	if t1 != reflect.TypeOf(v2) {
		return false
	}
	if t1 == nil {
		// Both elements are null literals.
		return true
	}
	if !t1.Comparable() {
		return false
	}
	return v1 == v2
}

// elements flattens any supported sequence type into []any. ok reports
// whether v is a sequence at all.
func elements(v ca.Value) ([]any, bool) {
	switch s := v.(type) {
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []any:
		return s, true
	default:
		return nil, false
	}
}

func asFloat(v ca.Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
