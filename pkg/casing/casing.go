// Package casing translates object keys between the client's internal naming
// convention (lowerCamel) and the backend's wire convention (lower_snake).
//
// The transform works on generic JSON trees as produced by encoding/json:
// map[string]interface{} mappings, []interface{} sequences and scalars. Keys are
// rewritten, values are walked structurally and scalars are returned untouched.
// Anything else (time.Time, structs, typed maps) is returned as-is and is never
// treated as a mapping.
//
// The only place where the two conventions meet is the API gateway, which calls
// MarshalWire on outbound bodies and UnmarshalInternal on inbound ones.
package casing

import (
	"sort"
	"strings"
)

// InternalKey rewrites a wire key into the internal convention: every '_' or '-'
// directly followed by a lowercase ASCII letter is replaced by that letter in
// upper case. Other characters are kept, so "page_2" stays "page_2".
func InternalKey(key string) string {
	if !strings.ContainsAny(key, "_-") {
		return key
	}

	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c == '_' || c == '-') && i+1 < len(key) && isLower(key[i+1]) {
			b.WriteByte(key[i+1] - 'a' + 'A')
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// WireKey rewrites an internal key into the wire convention: a '_' is inserted in
// front of every uppercase ASCII letter, the whole key is lower-cased and a
// single leading '_' is stripped, whether inserted or already present.
func WireKey(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i := 0; i < len(key); i++ {
		c := key[i]
		if isUpper(c) {
			b.WriteByte('_')
		}
		b.WriteByte(c)
	}
	return strings.TrimPrefix(strings.ToLower(b.String()), "_")
}

// ToInternal returns a copy of v with every mapping key rewritten by InternalKey.
func ToInternal(v interface{}) interface{} {
	return transform(v, InternalKey)
}

// ToWire returns a copy of v with every mapping key rewritten by WireKey.
func ToWire(v interface{}) interface{} {
	return transform(v, WireKey)
}

func transform(v interface{}, rename func(string) string) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		// sorted so that colliding keys resolve the same way on every run
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]interface{}, len(t))
		for _, k := range keys {
			out[rename(k)] = transform(t[k], rename)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = transform(item, rename)
		}
		return out
	default:
		return v
	}
}

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
