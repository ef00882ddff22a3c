package store

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Op is a filter comparison operator.
type Op int

const (
	// OpEq matches documents whose field equals the value.
	OpEq Op = iota
	// OpNeq matches documents that have the field with a different value.
	// Documents missing the field do not match, mirroring how realtime
	// document stores treat inequality.
	OpNeq
	// OpContains matches documents whose array field contains the value.
	OpContains
)

// Cond is a single field condition.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Filter is a compound AND of conditions. A nil Filter matches everything.
type Filter []Cond

// Where starts a filter with one condition.
func Where(field string, op Op, value any) Filter {
	return Filter{{Field: field, Op: op, Value: value}}
}

// Where appends another AND condition.
func (f Filter) Where(field string, op Op, value any) Filter {
	return append(f, Cond{Field: field, Op: op, Value: value})
}

// Matches evaluates the filter against a snapshot. The document id is
// addressable as field "id".
func (f Filter) Matches(doc Snapshot) bool {
	if len(f) == 0 {
		return true
	}
	var body map[string]any
	if err := json.Unmarshal(doc.Data, &body); err != nil {
		return false
	}
	for _, c := range f {
		var got any
		var ok bool
		if c.Field == "id" {
			got, ok = doc.ID, true
		} else {
			got, ok = fieldValue(body, c.Field)
		}
		switch c.Op {
		case OpEq:
			if !ok || !jsonEqual(got, c.Value) {
				return false
			}
		case OpNeq:
			if !ok || jsonEqual(got, c.Value) {
				return false
			}
		case OpContains:
			if !ok || !arrayContains(got, c.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// fieldValue resolves a dotted path inside a decoded document.
func fieldValue(body map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = body
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func arrayContains(field, value any) bool {
	arr, ok := field.([]any)
	if !ok {
		return false
	}
	for _, el := range arr {
		if jsonEqual(el, value) {
			return true
		}
	}
	return false
}

// jsonEqual compares a decoded document value with a caller-supplied Go
// value by normalizing both through JSON, so "2" == 2.0 style mismatches
// between typed Go values and decoded numbers do not bite.
func jsonEqual(got, want any) bool {
	return reflect.DeepEqual(normalize(got), normalize(want))
}

func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
