package codec

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// maxExactInt is the largest integer a protobuf number (float64) holds exactly.
const maxExactInt = 1 << 53

// fields is a read-only view over one level of a field map. path is the
// dotted location of the map, used to name fields in errors.
type fields struct {
	path string
	m    map[string]*structpb.Value
}

func newFields(path string, s *structpb.Struct) fields {
	return fields{path: path, m: s.GetFields()}
}

func (f fields) name(key string) string {
	if f.path == "" {
		return key
	}
	return f.path + "." + key
}

// lookup returns the value under key, or nil when it is absent or null.
func (f fields) lookup(key string) *structpb.Value {
	v, ok := f.m[key]
	if !ok || v == nil {
		return nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil
	}
	return v
}

func (f fields) has(key string) bool {
	return f.lookup(key) != nil
}

func (f fields) str(key string) (string, error) {
	v := f.lookup(key)
	if v == nil {
		return "", malformed(f.name(key), "missing")
	}
	return f.asString(key, v)
}

func (f fields) optStr(key string) (string, bool, error) {
	v := f.lookup(key)
	if v == nil {
		return "", false, nil
	}
	s, err := f.asString(key, v)
	return s, err == nil, err
}

func (f fields) asString(key string, v *structpb.Value) (string, error) {
	k, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", malformed(f.name(key), "want string")
	}
	return k.StringValue, nil
}

func (f fields) boolean(key string) (bool, error) {
	v := f.lookup(key)
	if v == nil {
		return false, nil
	}
	k, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, malformed(f.name(key), "want bool")
	}
	return k.BoolValue, nil
}

func (f fields) integer(key string) (int64, error) {
	v := f.lookup(key)
	if v == nil {
		return 0, malformed(f.name(key), "missing")
	}
	return f.asInteger(key, v)
}

func (f fields) optInteger(key string) (int64, bool, error) {
	v := f.lookup(key)
	if v == nil {
		return 0, false, nil
	}
	n, err := f.asInteger(key, v)
	return n, err == nil, err
}

func (f fields) asInteger(key string, v *structpb.Value) (int64, error) {
	k, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, malformed(f.name(key), "want number")
	}
	n := k.NumberValue
	if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) || math.Abs(n) > maxExactInt {
		return 0, malformed(f.name(key), fmt.Sprintf("want integer, got %v", n))
	}
	return int64(n), nil
}

func (f fields) unsigned(key string) (uint64, error) {
	n, err := f.integer(key)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, malformed(f.name(key), "want non-negative integer")
	}
	return uint64(n), nil
}

func (f fields) timestamp(key string) (time.Time, error) {
	s, err := f.str(key)
	if err != nil {
		return time.Time{}, err
	}
	return f.parseTime(key, s)
}

func (f fields) optTimestamp(key string) (*time.Time, error) {
	s, ok, err := f.optStr(key)
	if err != nil || !ok {
		return nil, err
	}
	t, err := f.parseTime(key, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (f fields) parseTime(key, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, malformed(f.name(key), "want RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

func (f fields) sub(key string) (fields, error) {
	v := f.lookup(key)
	if v == nil {
		return fields{}, malformed(f.name(key), "missing")
	}
	return f.asSub(f.name(key), v)
}

func (f fields) optSub(key string) (fields, bool, error) {
	v := f.lookup(key)
	if v == nil {
		return fields{}, false, nil
	}
	s, err := f.asSub(f.name(key), v)
	return s, err == nil, err
}

func (f fields) asSub(path string, v *structpb.Value) (fields, error) {
	k, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		return fields{}, malformed(path, "want map")
	}
	return newFields(path, k.StructValue), nil
}

func (f fields) list(key string) ([]*structpb.Value, error) {
	v := f.lookup(key)
	if v == nil {
		return nil, malformed(f.name(key), "missing")
	}
	return f.asList(key, v)
}

func (f fields) optList(key string) ([]*structpb.Value, bool, error) {
	v := f.lookup(key)
	if v == nil {
		return nil, false, nil
	}
	l, err := f.asList(key, v)
	return l, err == nil, err
}

func (f fields) asList(key string, v *structpb.Value) ([]*structpb.Value, error) {
	k, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, malformed(f.name(key), "want list")
	}
	return k.ListValue.GetValues(), nil
}

// element returns the i-th entry of list key as a map.
func (f fields) element(key string, i int, v *structpb.Value) (fields, error) {
	return f.asSub(fmt.Sprintf("%s[%d]", f.name(key), i), v)
}

// --- encoding helpers ---

func str(s string) *structpb.Value { return structpb.NewStringValue(s) }

func num[T int | int64 | uint32 | uint64](n T) *structpb.Value {
	return structpb.NewNumberValue(float64(n))
}

func boolean(b bool) *structpb.Value { return structpb.NewBoolValue(b) }

func timestamp(t time.Time) *structpb.Value {
	return structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano))
}

func object(m map[string]*structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: m})
}

func list(vs []*structpb.Value) *structpb.Value {
	return structpb.NewListValue(&structpb.ListValue{Values: vs})
}
