package decode

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
)

// Options customizes Decode behavior.
type Options struct {
	// WeaklyTypedInput accepts "123" -> int64, 1.0 -> int64 and similar.
	// Servers are inconsistent about sending ids as numbers or strings.
	WeaklyTypedInput bool
}

func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
	}
}

func WithWeaklyTypedInput(v bool) Options {
	return Options{WeaklyTypedInput: v}
}

// DecodeMap decodes a generic JSON object into T using `json` tags.
func DecodeMap[T any](m map[string]any, opts ...Options) (*T, error) {
	if m == nil {
		return nil, fmt.Errorf("map is nil")
	}

	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var out T
	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			floatToIntHook(),
			millisToTimeHook(),
			stringToTimeHook(),
			jsonRawStringToMapHook(),
		),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}

	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}
	return &out, nil
}

// DecodeRaw parses raw JSON into an object and decodes it into T.
func DecodeRaw[T any](raw []byte, opts ...Options) (*T, error) {
	m, err := ObjectOf(raw)
	if err != nil {
		return nil, err
	}
	return DecodeMap[T](m, opts...)
}

// ObjectOf parses raw JSON that must be an object. Numbers are kept as
// json.Number so 64-bit ids survive.
func ObjectOf(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty json")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("json is not an object")
	}
	return m, nil
}

// -----------------------------
// basic readers (dynamic fields)
// -----------------------------

func ReadString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing field %q", key)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("field %q not string (got %T)", key, v)
	}
}

// ReadInt64 accepts float64 / int / json.Number / numeric strings.
func ReadInt64(m map[string]any, key string) (int64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing field %q", key)
	}
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case json.Number:
		n, err := numberToInt64(t)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q string parse int64: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("field %q type %T not number", key, v)
	}
}

// -----------------------------
// decode hooks
// -----------------------------

// numberToInt64 accepts integral json numbers, including "1.0" style
// values small enough to be exact as float64.
func numberToInt64(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("number %s is not an int64", n)
	}
	return int64(f), nil
}

// floatToIntHook narrows float64 and json.Number into integer fields,
// rejecting values the target cannot hold.
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data any) (any, error) {
		var i int64
		switch v := data.(type) {
		case float64:
			i = int64(v)
		case json.Number:
			switch to.Kind() {
			case reflect.Float32, reflect.Float64:
				return v.Float64()
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			default:
				return data, nil
			}
			n, err := numberToInt64(v)
			if err != nil {
				return nil, err
			}
			i = n
		default:
			return data, nil
		}
		switch to.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if reflect.New(to).Elem().OverflowInt(i) {
				return nil, fmt.Errorf("number %d overflows %s", i, to)
			}
			return reflect.ValueOf(i).Convert(to).Interface(), nil
		}
		return data, nil
	}
}

var timeType = reflect.TypeOf(time.Time{})

// stringToTimeHook accepts RFC3339 timestamps with or without fractions.
func stringToTimeHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data any) (any, error) {
		str, ok := data.(string)
		if !ok || to != timeType {
			return data, nil
		}
		s := strings.TrimSpace(str)
		if s == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, s)
	}
}

// millisToTimeHook accepts unix milliseconds.
func millisToTimeHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != timeType {
			return data, nil
		}
		switch v := data.(type) {
		case float64:
			return time.UnixMilli(int64(v)).UTC(), nil
		case int64:
			return time.UnixMilli(v).UTC(), nil
		case json.Number:
			ms, err := numberToInt64(v)
			if err != nil {
				return nil, fmt.Errorf("unix millis: %w", err)
			}
			return time.UnixMilli(ms).UTC(), nil
		}
		return data, nil
	}
}

// jsonRawStringToMapHook turns a string holding a JSON object into a map.
func jsonRawStringToMapHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		str, ok := data.(string)
		if !ok || to != reflect.Map {
			return data, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(str), &m); err == nil {
			return m, nil
		}
		return data, nil
	}
}
