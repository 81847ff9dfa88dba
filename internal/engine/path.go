package engine

import (
	"fmt"
	"strings"
)

// pathSet writes value at a dot-separated path inside a tree of maps and
// lists, creating missing containers on the way down. All-digit segments
// address list positions; lists are padded with nulls up to the target
// index. An intermediate node of the wrong kind is replaced, so the last
// write wins. The document root must stay a map.
func pathSet(doc map[string]any, path string, value any) (map[string]any, error) {
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("invalid path %q", path)
		}
	}
	if _, ok := listIndex(segs[0]); ok {
		return nil, fmt.Errorf("invalid path %q: document root is not a list", path)
	}
	return setNode(doc, segs, value).(map[string]any), nil
}

func setNode(node any, segs []string, value any) any {
	seg := segs[0]
	if idx, ok := listIndex(seg); ok {
		list, _ := node.([]any)
		for len(list) <= idx {
			list = append(list, nil)
		}
		if len(segs) == 1 {
			list[idx] = value
		} else {
			list[idx] = setNode(list[idx], segs[1:], value)
		}
		return list
	}
	m, ok := node.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	if len(segs) == 1 {
		m[seg] = value
	} else {
		m[seg] = setNode(m[seg], segs[1:], value)
	}
	return m
}

// pathGet resolves a dot-separated path. Absence is reported via the bool,
// never as an error.
func pathGet(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		if idx, ok := listIndex(seg); ok {
			list, isList := cur.([]any)
			if !isList || idx >= len(list) {
				return nil, false
			}
			cur = list[idx]
			continue
		}
		m, isMap := cur.(map[string]any)
		if !isMap {
			return nil, false
		}
		v, present := m[seg]
		if !present {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// listIndex reports whether a path segment addresses a list position.
func listIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n := 0
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
