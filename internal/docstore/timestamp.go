package docstore

import (
	"math"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Wire keys of a stored timestamp.
const (
	wireSeconds     = "_seconds"
	wireNanoseconds = "_nanoseconds"
)

// Timestamp is the store's native time representation. Stored documents
// carry it as {"_seconds": n, "_nanoseconds": n}.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// FromTime converts t to a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time returns the timestamp as a UTC time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// Before reports whether ts is earlier than other.
func (ts Timestamp) Before(other Timestamp) bool {
	if ts.Seconds != other.Seconds {
		return ts.Seconds < other.Seconds
	}
	return ts.Nanos < other.Nanos
}

func (ts Timestamp) wire() map[string]any {
	return map[string]any{
		wireSeconds:     ts.Seconds,
		wireNanoseconds: int64(ts.Nanos),
	}
}

// toWire converts times in v to their stored form.
func toWire(v any) any {
	switch x := v.(type) {
	case time.Time:
		return FromTime(x).wire()
	case *time.Time:
		if x == nil {
			return nil
		}
		return FromTime(*x).wire()
	case Timestamp:
		return x.wire()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = toWire(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = toWire(e)
		}
		return out
	default:
		return v
	}
}

// fromWire converts stored timestamps in v to Timestamp values.
func fromWire(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if ts, ok := parseWireTimestamp(x); ok {
			return ts
		}
		for k, e := range x {
			x[k] = fromWire(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = fromWire(e)
		}
		return x
	default:
		return v
	}
}

func parseWireTimestamp(m map[string]any) (Timestamp, bool) {
	if len(m) != 2 {
		return Timestamp{}, false
	}
	sec, ok := wireInt(m[wireSeconds])
	if !ok {
		return Timestamp{}, false
	}
	nsec, ok := wireInt(m[wireNanoseconds])
	if !ok || nsec < 0 || nsec > math.MaxInt32 {
		return Timestamp{}, false
	}
	return Timestamp{Seconds: sec, Nanos: int32(nsec)}, true
}

func wireInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), n == math.Trunc(n)
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// encodeDocument serializes data in stored form.
func encodeDocument(data map[string]any) ([]byte, error) {
	wire, _ := toWire(data).(map[string]any)
	if wire == nil {
		wire = map[string]any{}
	}
	return json.Marshal(wire)
}

// decodeRaw parses a stored document without converting timestamps.
func decodeRaw(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// decodeDocument parses a stored document into client form.
func decodeDocument(raw []byte) (map[string]any, error) {
	m, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	fromWire(m)
	return m, nil
}

// mergeDocument applies patch over the stored document raw.
func mergeDocument(raw []byte, patch map[string]any) ([]byte, error) {
	m, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		m[k] = toWire(v)
	}
	return json.Marshal(m)
}
