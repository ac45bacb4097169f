// Package casing converts field names between the snake_case used on the
// wire and the camelCase used inside the client.
package casing

import (
	"strings"
	"unicode"
)

// ToSnake puts an underscore before every uppercase letter and lowercases it.
func ToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)

	for _, r := range s {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// ToCamel drops every underscore that is followed by a letter and uppercases
// that letter. Underscores before digits or at the end are kept.
func ToCamel(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '_' && i+1 < len(runes) && unicode.IsLetter(runes[i+1]) {
			b.WriteRune(unicode.ToUpper(runes[i+1]))
			i++
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// KeysToCamel rewrites every map key in v with ToCamel, recursing into
// nested maps and slices. Anything else comes back untouched.
func KeysToCamel(v any) any {
	return transform(v, ToCamel)
}

// KeysToSnake is the inverse of KeysToCamel.
func KeysToSnake(v any) any {
	return transform(v, ToSnake)
}

func transform(v any, conv func(string) string) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[conv(k)] = transform(val, conv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = transform(val, conv)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, val := range t {
			out[i] = transform(val, conv).(map[string]any)
		}
		return out
	default:
		return v
	}
}
