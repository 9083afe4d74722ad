package docstore

import (
	"fmt"
	"sort"
	"strings"
)

// apply filters and orders docs in place. docs must be in insertion order.
func apply(docs []Document, q Query) []Document {
	if len(q.Where) > 0 {
		kept := docs[:0]
		for _, d := range docs {
			if matches(d, q.Where) {
				kept = append(kept, d)
			}
		}
		docs = kept
	}
	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			return compareValues(field(docs[i], q.OrderBy), field(docs[j], q.OrderBy)) < 0
		})
	}
	return docs
}

func field(d Document, name string) any {
	if name == "id" {
		return d.ID
	}
	return d.Data[name]
}

func matches(d Document, filters []Filter) bool {
	for _, f := range filters {
		if compareValues(field(d, f.Field), f.Value) != 0 {
			return false
		}
	}
	return true
}

// rank orders values of different kinds: missing, bools, numbers, timestamps,
// strings, everything else.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, float32, int, int32, int64:
		return 2
	case Timestamp:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case nil:
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case Timestamp:
		y := b.(Timestamp)
		switch {
		case x == y:
			return 0
		case x.Before(y):
			return -1
		default:
			return 1
		}
	case string:
		return strings.Compare(x, b.(string))
	}
	if ra == 2 {
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
