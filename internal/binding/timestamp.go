package binding

import (
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"

	"github.com/erazemk/stojala/internal/docstore"
)

var timeType = reflect.TypeOf(time.Time{})

// ToTime converts a stored timestamp to time.Time. It accepts native store
// timestamps, time values, and anything cast understands (RFC 3339 strings,
// unix seconds). Values that cannot be converted are reported as not ok.
func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case docstore.Timestamp:
		return t.Time(), true
	case *docstore.Timestamp:
		if t == nil {
			return time.Time{}, false
		}
		return t.Time(), true
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NormalizeTimestamps replaces the named fields of data with time.Time
// values. Fields that are missing or cannot be converted are left alone.
func NormalizeTimestamps(data map[string]any, fields []string) {
	for _, f := range fields {
		v, ok := data[f]
		if !ok {
			continue
		}
		if t, ok := ToTime(v); ok {
			data[f] = t
		}
	}
}

// timeHook lets mapstructure fill time.Time fields from any value ToTime
// accepts. Unreadable values decode as the zero time.
func timeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	t, _ := ToTime(data)
	return t, nil
}

func decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(timeHook),
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}
