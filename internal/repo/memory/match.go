package memory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/kidshub/internal/store"
)

func matchesAll(row store.Row, filters []store.Filter) bool {
	for _, f := range filters {
		if !matches(row[f.Column], f) {
			return false
		}
	}
	return true
}

func matches(v any, f store.Filter) bool {
	switch f.Op {
	case store.OpEq:
		return v != nil && compare(v, f.Value) == 0
	case store.OpNeq:
		return v == nil || compare(v, f.Value) != 0
	case store.OpGt:
		return v != nil && compare(v, f.Value) > 0
	case store.OpGte:
		return v != nil && compare(v, f.Value) >= 0
	case store.OpLt:
		return v != nil && compare(v, f.Value) < 0
	case store.OpLte:
		return v != nil && compare(v, f.Value) <= 0
	case store.OpILike:
		s, ok := v.(string)
		return ok && likeMatch(s, fmt.Sprint(f.Value))
	case store.OpIn:
		items, _ := f.Value.([]any)
		for _, item := range items {
			if v != nil && compare(v, item) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func likeMatch(s, pattern string) bool {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// compare orders two loosely typed values. Numbers and times compare by
// value even when one side arrived as a string from a query parameter.
func compare(a, b any) int {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	if at, ok := toTime(a); ok {
		if bt, ok := toTime(b); ok {
			return at.Compare(bt)
		}
	}

	if ab, ok := a.(bool); ok {
		if bb, err := strconv.ParseBool(fmt.Sprint(b)); err == nil {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			default:
				return 1
			}
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
