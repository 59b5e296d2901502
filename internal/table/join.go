package table

import (
	"fmt"
	"strings"
)

// Suffixes appended to non-key columns present in both join inputs.
const (
	LeftSuffix  = "_x"
	RightSuffix = "_y"
)

// InnerJoin returns every combination of a row from a and a row from b whose
// key cells are equal, key by key. Key columns appear once (taken from a),
// followed by a's remaining columns and then b's. A null key never matches.
//
// Output order follows a's rows; for each of them, matching rows of b appear
// in b's order. Duplicate keys are not collapsed.
func InnerJoin(a, b *Table, keys ...string) (*Table, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("join %s with %s: no key columns", a.name, b.name)
	}
	aKeys, err := a.lookup(keys...)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	bKeys, err := b.lookup(keys...)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	for i := range keys {
		if aKeys[i].Kind != bKeys[i].Kind {
			return nil, fmt.Errorf("join: key %q is %s in %s but %s in %s",
				keys[i], aKeys[i].Kind, a.name, bKeys[i].Kind, b.name)
		}
	}

	// Hash b's rows by key
	buckets := make(map[string][]int, b.rows)
	for i := 0; i < b.rows; i++ {
		if k, ok := rowKey(bKeys, i); ok {
			buckets[k] = append(buckets[k], i)
		}
	}

	var left, right []int
	for i := 0; i < a.rows; i++ {
		k, ok := rowKey(aKeys, i)
		if !ok {
			continue
		}
		for _, j := range buckets[k] {
			left = append(left, i)
			right = append(right, j)
		}
	}

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	cols := make([]*Column, 0, len(a.columns)+len(b.columns)-len(keys))
	for _, c := range aKeys {
		cols = append(cols, c.take(left))
	}
	for _, c := range a.columns {
		if isKey[c.Name] {
			continue
		}
		out := c.take(left)
		if _, clash := b.index[c.Name]; clash {
			out.Name += LeftSuffix
		}
		cols = append(cols, out)
	}
	for _, c := range b.columns {
		if isKey[c.Name] {
			continue
		}
		out := c.take(right)
		if _, clash := a.index[c.Name]; clash {
			out.Name += RightSuffix
		}
		cols = append(cols, out)
	}

	joined, err := New(joinName(a.name, b.name), cols...)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	return joined, nil
}

func joinName(a, b string) string {
	return strings.Join([]string{a, b}, " ⋈ ")
}
