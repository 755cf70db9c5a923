package request

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// MaxFormDepth bounds how many bracket segments of a key are expanded into nesting.
// Deeper segments stay joined in the last key.
const MaxFormDepth = 5

// ParseNestedForm expands bracketed form keys into nested values:
//
//	user[name]=ann&user[tags][]=a&user[tags][]=b  ->  {"user": {"name": "ann", "tags": ["a", "b"]}}
//
// Repeated plain keys become arrays. Maps whose keys are exactly 0..n-1 become arrays.
func ParseNestedForm(values url.Values) map[string]any {
	root := make(map[string]any)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := splitFormKey(key)
		for _, v := range values[key] {
			insertFormValue(root, path, v)
		}
	}

	for k, child := range root {
		root[k] = compactForm(child)
	}
	return root
}

// splitFormKey turns "a[b][]" into ["a", "b", ""]. Keys that are not well formed are
// returned unsplit.
func splitFormKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 {
		return []string{key}
	}

	path := []string{key[:open]}
	rest := key[open:]
	for rest != "" {
		if len(path) > MaxFormDepth {
			path[len(path)-1] += rest
			break
		}
		if rest[0] != '[' {
			return []string{key}
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return []string{key}
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path
}

func insertFormValue(node map[string]any, path []string, value string) {
	head := path[0]
	if head == "" {
		head = nextFormIndex(node)
	}

	if len(path) == 1 {
		switch existing := node[head].(type) {
		case nil:
			node[head] = value
		case string:
			node[head] = []any{existing, value}
		case []any:
			node[head] = append(existing, value)
		case map[string]any:
			existing[nextFormIndex(existing)] = value
		}
		return
	}

	var child map[string]any
	switch existing := node[head].(type) {
	case map[string]any:
		child = existing
	case string:
		child = map[string]any{"0": existing}
	case []any:
		child = make(map[string]any, len(existing))
		for i, v := range existing {
			child[strconv.Itoa(i)] = v
		}
	default:
		child = make(map[string]any)
	}
	node[head] = child
	insertFormValue(child, path[1:], value)
}

// nextFormIndex returns the smallest unused numeric key at or above len(node).
func nextFormIndex(node map[string]any) string {
	for i := len(node); ; i++ {
		k := strconv.Itoa(i)
		if _, taken := node[k]; !taken {
			return k
		}
	}
}

func compactForm(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = compactForm(child)
	}
	if len(m) == 0 {
		return m
	}
	list := make([]any, len(m))
	for k, child := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(m) || strconv.Itoa(i) != k {
			return m
		}
		list[i] = child
	}
	return list
}
