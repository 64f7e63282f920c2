package types

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// LongStringArray is the native value of DevVarLongStringArray.
type LongStringArray struct {
	Longs   []int32  `json:"longs"`
	Strings []string `json:"strings"`
}

// DoubleStringArray is the native value of DevVarDoubleStringArray.
type DoubleStringArray struct {
	Doubles []float64 `json:"doubles"`
	Strings []string  `json:"strings"`
}

type coercion struct {
	convert func(v any) (any, error)
	zero    any
}

var coercions map[DataType]coercion

func init() {
	coercions = map[DataType]coercion{
		TypeVoid:    {convert: func(any) (any, error) { return nil, nil }, zero: nil},
		TypeBoolean: {convert: toBool, zero: false},
		TypeUChar:   {convert: intConverter[uint8](0, math.MaxUint8), zero: uint8(0)},
		TypeShort:   {convert: intConverter[int16](math.MinInt16, math.MaxInt16), zero: int16(0)},
		TypeUShort:  {convert: intConverter[uint16](0, math.MaxUint16), zero: uint16(0)},
		TypeLong:    {convert: intConverter[int32](math.MinInt32, math.MaxInt32), zero: int32(0)},
		TypeULong:   {convert: intConverter[uint32](0, math.MaxUint32), zero: uint32(0)},
		TypeLong64:  {convert: intConverter[int64](math.MinInt64, math.MaxInt64), zero: int64(0)},
		TypeULong64: {convert: toUint64, zero: uint64(0)},
		TypeFloat: {convert: func(v any) (any, error) {
			f, err := toFloat(v)
			return float32(f), err
		}, zero: float32(0)},
		TypeDouble:  {convert: func(v any) (any, error) { return toFloat(v) }, zero: float64(0)},
		TypeString:  {convert: toString, zero: ""},
		TypeEnum:    {convert: intConverter[int16](math.MinInt16, math.MaxInt16), zero: int16(0)},
		TypeState:   {convert: toState, zero: StateUnknown},
		TypeEncoded: {convert: toBytes, zero: []byte{}},

		TypeLongStringArray:   {convert: toLongStringArray, zero: LongStringArray{}},
		TypeDoubleStringArray: {convert: toDoubleStringArray, zero: DoubleStringArray{}},
	}
	for arr, elem := range arrayElements {
		elemConv := coercions[elem]
		coercions[arr] = coercion{
			convert: sliceConverter(elemConv),
			zero:    reflect.MakeSlice(reflect.SliceOf(reflect.TypeOf(elemConv.zero)), 0, 0).Interface(),
		}
	}
}

// Zero returns the native zero value of t.
func Zero(t DataType) any {
	c, ok := coercions[t]
	if !ok {
		return nil
	}
	return c.zero
}

// Convert turns an arbitrary decoded value (JSON number, string, slice,
// another native) into the native representation of t.
func Convert(t DataType, v any) (any, error) {
	c, ok := coercions[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	out, err := c.convert(v)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %v to %s: %w", v, t, err)
	}
	return out, nil
}

// Coerce parses a raw metadata string as a value of t. Array types accept a
// comma separated list, optionally bracketed.
func Coerce(t DataType, raw string) (any, error) {
	if t.IsArray() {
		trimmed := strings.Trim(strings.TrimSpace(raw), "[]()")
		if trimmed == "" {
			return Convert(t, []any{})
		}
		parts := strings.Split(trimmed, ",")
		items := make([]any, len(parts))
		for i, p := range parts {
			items[i] = strings.Trim(strings.TrimSpace(p), `"'`)
		}
		return Convert(t, items)
	}
	return Convert(t, strings.TrimSpace(raw))
}

// Fill builds a SPECTRUM (dimY == 0) or IMAGE value with every element set
// to v, typed after v.
func Fill(v any, dimX, dimY int) any {
	if dimX < 0 {
		dimX = 0
	}
	if v == nil {
		row := make([]any, dimX)
		if dimY <= 0 {
			return row
		}
		image := make([][]any, dimY)
		for i := range image {
			image[i] = make([]any, dimX)
		}
		return image
	}

	elem := reflect.ValueOf(v)
	row := reflect.MakeSlice(reflect.SliceOf(elem.Type()), dimX, dimX)
	for i := 0; i < dimX; i++ {
		row.Index(i).Set(elem)
	}
	if dimY <= 0 {
		return row.Interface()
	}
	image := reflect.MakeSlice(reflect.SliceOf(row.Type()), dimY, dimY)
	for i := 0; i < dimY; i++ {
		fresh := reflect.MakeSlice(row.Type(), dimX, dimX)
		reflect.Copy(fresh, row)
		image.Index(i).Set(fresh)
	}
	return image.Interface()
}

// DefaultReturn is the value a synthesized command returns when none of
// its steps produced one.
func DefaultReturn(t DataType) any {
	switch {
	case t == TypeVoid || t == TypeUnknown:
		return nil
	case t == TypeString:
		return ""
	case t == TypeBoolean:
		return true
	case t == TypeState:
		return StateOn
	case t == TypeEnum:
		return int16(0)
	case t.IsArray(), t == TypeEncoded, t == TypeLongStringArray, t == TypeDoubleStringArray:
		return Zero(t)
	case t.IsFloat():
		out, _ := Convert(t, 4.05)
		return out
	case t.IsInteger():
		out, _ := Convert(t, 3)
		return out
	}
	return nil
}

// ToFloat converts any numeric native (or numeric string) to float64.
func ToFloat(v any) (float64, bool) {
	f, err := toFloat(v)
	return f, err == nil
}

// ToInt converts any numeric native to int.
func ToInt(v any) (int, bool) {
	f, err := toFloat(v)
	if err != nil {
		return 0, false
	}
	return int(math.Round(f)), true
}

// Plain converts a native value into JSON-friendly primitives
// (bool, float64, string, []any, map[string]any).
func Plain(v any) any {
	switch value := v.(type) {
	case nil, bool, string, float64:
		return value
	case DevState:
		return value.String()
	case []byte:
		return string(value)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}

func toFloat(v any) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case float32:
		return float64(value), nil
	case int:
		return float64(value), nil
	case int8:
		return float64(value), nil
	case int16:
		return float64(value), nil
	case int32:
		return float64(value), nil
	case int64:
		return float64(value), nil
	case uint:
		return float64(value), nil
	case uint8:
		return float64(value), nil
	case uint16:
		return float64(value), nil
	case uint32:
		return float64(value), nil
	case uint64:
		return float64(value), nil
	case bool:
		if value {
			return 1, nil
		}
		return 0, nil
	case DevState:
		return float64(value), nil
	case json.Number:
		return value.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(value), 64)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func intConverter[T int16 | int32 | int64 | uint8 | uint16 | uint32](lo, hi float64) func(any) (any, error) {
	return func(v any) (any, error) {
		if s, ok := v.(string); ok {
			if i, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64); err == nil {
				v = i
			}
		}
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		f = math.Round(f)
		if f < lo || f > hi {
			return nil, fmt.Errorf("value %v out of range", f)
		}
		return T(f), nil
	}
}

func toUint64(v any) (any, error) {
	switch value := v.(type) {
	case uint64:
		return value, nil
	case string:
		u, err := strconv.ParseUint(strings.TrimSpace(value), 0, 64)
		if err == nil {
			return u, nil
		}
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	if f < 0 {
		return nil, fmt.Errorf("value %v out of range", f)
	}
	return uint64(math.Round(f)), nil
}

func toBool(v any) (any, error) {
	switch value := v.(type) {
	case bool:
		return value, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off", "":
			return false, nil
		}
		return nil, fmt.Errorf("not a boolean: %q", value)
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	return f != 0, nil
}

func toString(v any) (any, error) {
	switch value := v.(type) {
	case string:
		return value, nil
	case nil:
		return "", nil
	case []byte:
		return string(value), nil
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), nil
	}
	return fmt.Sprint(v), nil
}

func toState(v any) (any, error) {
	switch value := v.(type) {
	case DevState:
		return value, nil
	case string:
		return ParseDevState(value)
	}
	i, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	if i < 0 || int(i) >= len(devStateNames) {
		return nil, fmt.Errorf("state index %v out of range", i)
	}
	return DevState(int(i)), nil
}

func toBytes(v any) (any, error) {
	switch value := v.(type) {
	case []byte:
		return value, nil
	case string:
		return []byte(value), nil
	}
	return nil, fmt.Errorf("not encodable: %T", v)
}

func sliceConverter(elem coercion) func(any) (any, error) {
	return func(v any) (any, error) {
		items, err := toAnySlice(v)
		if err != nil {
			return nil, err
		}
		elemType := reflect.TypeOf(elem.zero)
		out := reflect.MakeSlice(reflect.SliceOf(elemType), len(items), len(items))
		for i, item := range items {
			converted, err := elem.convert(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(converted))
		}
		return out.Interface(), nil
	}
}

func toAnySlice(v any) ([]any, error) {
	if items, ok := v.([]any); ok {
		return items, nil
	}
	if s, ok := v.(string); ok {
		trimmed := strings.Trim(strings.TrimSpace(s), "[]")
		if trimmed == "" {
			return []any{}, nil
		}
		parts := strings.Split(trimmed, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}, nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func toLongStringArray(v any) (any, error) {
	switch value := v.(type) {
	case LongStringArray:
		return value, nil
	case map[string]any:
		var out LongStringArray
		longs, err := sliceConverter(coercions[TypeLong])(value["longs"])
		if err != nil {
			return nil, err
		}
		out.Longs = longs.([]int32)
		strs, err := sliceConverter(coercions[TypeString])(value["strings"])
		if err != nil {
			return nil, err
		}
		out.Strings = strs.([]string)
		return out, nil
	}
	return nil, fmt.Errorf("not a long/string pair: %T", v)
}

func toDoubleStringArray(v any) (any, error) {
	switch value := v.(type) {
	case DoubleStringArray:
		return value, nil
	case map[string]any:
		var out DoubleStringArray
		doubles, err := sliceConverter(coercions[TypeDouble])(value["doubles"])
		if err != nil {
			return nil, err
		}
		out.Doubles = doubles.([]float64)
		strs, err := sliceConverter(coercions[TypeString])(value["strings"])
		if err != nil {
			return nil, err
		}
		out.Strings = strs.([]string)
		return out, nil
	}
	return nil, fmt.Errorf("not a double/string pair: %T", v)
}
