package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DataType is the closed set of control-system value types a description
// file can name. The zero value is TypeUnknown.
type DataType int

const (
	TypeUnknown DataType = iota
	TypeVoid
	TypeBoolean
	TypeUChar
	TypeShort
	TypeUShort
	TypeLong
	TypeULong
	TypeLong64
	TypeULong64
	TypeFloat
	TypeDouble
	TypeString
	TypeEnum
	TypeState
	TypeEncoded
	TypeBooleanArray
	TypeUCharArray
	TypeShortArray
	TypeUShortArray
	TypeLongArray
	TypeULongArray
	TypeLong64Array
	TypeULong64Array
	TypeFloatArray
	TypeDoubleArray
	TypeStringArray
	TypeLongStringArray
	TypeDoubleStringArray
)

var dataTypeNames = map[DataType]string{
	TypeUnknown:           "Unknown",
	TypeVoid:              "DevVoid",
	TypeBoolean:           "DevBoolean",
	TypeUChar:             "DevUChar",
	TypeShort:             "DevShort",
	TypeUShort:            "DevUShort",
	TypeLong:              "DevLong",
	TypeULong:             "DevULong",
	TypeLong64:            "DevLong64",
	TypeULong64:           "DevULong64",
	TypeFloat:             "DevFloat",
	TypeDouble:            "DevDouble",
	TypeString:            "DevString",
	TypeEnum:              "DevEnum",
	TypeState:             "DevState",
	TypeEncoded:           "DevEncoded",
	TypeBooleanArray:      "DevVarBooleanArray",
	TypeUCharArray:        "DevVarCharArray",
	TypeShortArray:        "DevVarShortArray",
	TypeUShortArray:       "DevVarUShortArray",
	TypeLongArray:         "DevVarLongArray",
	TypeULongArray:        "DevVarULongArray",
	TypeLong64Array:       "DevVarLong64Array",
	TypeULong64Array:      "DevVarULong64Array",
	TypeFloatArray:        "DevVarFloatArray",
	TypeDoubleArray:       "DevVarDoubleArray",
	TypeStringArray:       "DevVarStringArray",
	TypeLongStringArray:   "DevVarLongStringArray",
	TypeDoubleStringArray: "DevVarDoubleStringArray",
}

// Short vocabulary keys, lower-cased. Every spelling is reduced to one of
// these by normalizeTypeName before lookup.
var dataTypeLookup = map[string]DataType{
	"void":              TypeVoid,
	"boolean":           TypeBoolean,
	"bool":              TypeBoolean,
	"uchar":             TypeUChar,
	"char":              TypeUChar,
	"short":             TypeShort,
	"ushort":            TypeUShort,
	"long":              TypeLong,
	"int":               TypeLong,
	"ulong":             TypeULong,
	"uint":              TypeULong,
	"long64":            TypeLong64,
	"ulong64":           TypeULong64,
	"float":             TypeFloat,
	"double":            TypeDouble,
	"string":            TypeString,
	"enum":              TypeEnum,
	"state":             TypeState,
	"encoded":           TypeEncoded,
	"booleanarray":      TypeBooleanArray,
	"uchararray":        TypeUCharArray,
	"chararray":         TypeUCharArray,
	"shortarray":        TypeShortArray,
	"ushortarray":       TypeUShortArray,
	"longarray":         TypeLongArray,
	"intarray":          TypeLongArray,
	"ulongarray":        TypeULongArray,
	"uintarray":         TypeULongArray,
	"long64array":       TypeLong64Array,
	"ulong64array":      TypeULong64Array,
	"floatarray":        TypeFloatArray,
	"doublearray":       TypeDoubleArray,
	"stringarray":       TypeStringArray,
	"longstringarray":   TypeLongStringArray,
	"doublestringarray": TypeDoubleStringArray,
}

// Numeric type codes used by fandango dumps.
var dataTypeCodes = map[int]DataType{
	0:  TypeVoid,
	1:  TypeBoolean,
	2:  TypeShort,
	3:  TypeLong,
	4:  TypeFloat,
	5:  TypeDouble,
	6:  TypeUShort,
	7:  TypeULong,
	8:  TypeString,
	9:  TypeUCharArray,
	10: TypeShortArray,
	11: TypeLongArray,
	12: TypeFloatArray,
	13: TypeDoubleArray,
	14: TypeUShortArray,
	15: TypeULongArray,
	16: TypeStringArray,
	17: TypeLongStringArray,
	18: TypeDoubleStringArray,
	19: TypeState,
	21: TypeBooleanArray,
	22: TypeUChar,
	23: TypeLong64,
	24: TypeULong64,
	25: TypeLong64Array,
	26: TypeULong64Array,
	28: TypeEncoded,
	29: TypeEnum,
}

var arrayElements = map[DataType]DataType{
	TypeBooleanArray: TypeBoolean,
	TypeUCharArray:   TypeUChar,
	TypeShortArray:   TypeShort,
	TypeUShortArray:  TypeUShort,
	TypeLongArray:    TypeLong,
	TypeULongArray:   TypeULong,
	TypeLong64Array:  TypeLong64,
	TypeULong64Array: TypeULong64,
	TypeFloatArray:   TypeFloat,
	TypeDoubleArray:  TypeDouble,
	TypeStringArray:  TypeString,
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// IsArray reports whether t is one of the DevVar*Array variants.
func (t DataType) IsArray() bool {
	return t >= TypeBooleanArray
}

// Element returns the scalar element type of an array type, or t itself.
func (t DataType) Element() DataType {
	if e, ok := arrayElements[t]; ok {
		return e
	}
	return t
}

// ArrayOf returns the array variant whose element is t, if one exists.
func (t DataType) ArrayOf() (DataType, bool) {
	for arr, elem := range arrayElements {
		if elem == t {
			return arr, true
		}
	}
	return TypeUnknown, false
}

func (t DataType) IsInteger() bool {
	switch t.Element() {
	case TypeUChar, TypeShort, TypeUShort, TypeLong, TypeULong, TypeLong64, TypeULong64, TypeEnum:
		return true
	}
	return false
}

func (t DataType) IsFloat() bool {
	e := t.Element()
	return e == TypeFloat || e == TypeDouble
}

func (t DataType) IsNumeric() bool {
	return t.IsInteger() || t.IsFloat()
}

func (t DataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseDataType maps any of the accepted spellings (Pogo names, canonical
// Dev* names, Var*/Vector aliases, Int/UInt aliases, numeric codes) to a
// DataType.
func ParseDataType(name string) (DataType, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return TypeUnknown, fmt.Errorf("%w: empty type name", ErrUnknownType)
	}

	if code, err := strconv.Atoi(trimmed); err == nil {
		if t, ok := dataTypeCodes[code]; ok {
			return t, nil
		}
		return TypeUnknown, fmt.Errorf("%w: numeric type code %d", ErrUnknownType, code)
	}

	key := normalizeTypeName(trimmed)
	if t, ok := dataTypeLookup[key]; ok {
		return t, nil
	}

	return TypeUnknown, fmt.Errorf("%w: %q has no canonical mapping (%s)",
		ErrUnknownType, name, typeHint(key))
}

// MustParseDataType is ParseDataType for literals known at compile time.
func MustParseDataType(name string) DataType {
	t, err := ParseDataType(name)
	if err != nil {
		panic(err)
	}
	return t
}

func normalizeTypeName(name string) string {
	key := strings.ToLower(name)
	key = strings.TrimPrefix(key, "tango.")
	key = strings.TrimPrefix(key, "const")
	key = strings.TrimPrefix(key, "dev")
	key = strings.TrimPrefix(key, "var")
	if strings.HasSuffix(key, "type") && key != "type" {
		key = strings.TrimSuffix(key, "type")
	}
	if strings.HasSuffix(key, "vector") {
		key = strings.TrimSuffix(key, "vector") + "array"
	}
	return key
}

func typeHint(key string) string {
	if strings.HasSuffix(key, "array") {
		return "try Var<T>Array with T one of " + strings.Join(scalarNames(), ", ")
	}
	return "try Var<T>Array for sequences or one of " + strings.Join(scalarNames(), ", ")
}

func scalarNames() []string {
	names := make([]string, 0, len(arrayElements))
	for _, elem := range arrayElements {
		names = append(names, strings.TrimPrefix(elem.String(), "Dev"))
	}
	sort.Strings(names)
	return names
}

// DataFormat is the shape of an attribute value.
type DataFormat int

const (
	FormatUnknown DataFormat = iota
	FormatScalar
	FormatSpectrum
	FormatImage
)

func (f DataFormat) String() string {
	switch f {
	case FormatScalar:
		return "SCALAR"
	case FormatSpectrum:
		return "SPECTRUM"
	case FormatImage:
		return "IMAGE"
	}
	return "UNKNOWN"
}

func ParseDataFormat(s string) (DataFormat, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SCALAR", "0":
		return FormatScalar, nil
	case "SPECTRUM", "1":
		return FormatSpectrum, nil
	case "IMAGE", "2":
		return FormatImage, nil
	}
	return FormatUnknown, fmt.Errorf("unknown data format %q", s)
}

func (f DataFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *DataFormat) UnmarshalText(text []byte) error {
	parsed, err := ParseDataFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Writable is the access mode of an attribute.
type Writable int

const (
	WritableUnknown Writable = iota
	Read
	Write
	ReadWrite
)

func (w Writable) String() string {
	switch w {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case ReadWrite:
		return "READ_WRITE"
	}
	return "UNKNOWN"
}

// CanWrite reports whether clients may write the attribute.
func (w Writable) CanWrite() bool {
	return w == Write || w == ReadWrite
}

func ParseWritable(s string) (Writable, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "", "/", "", "-", "", " ", "").Replace(key)
	switch key {
	case "READ", "0":
		return Read, nil
	case "WRITE", "2":
		return Write, nil
	case "READWRITE", "READWITHWRITE", "3", "1":
		return ReadWrite, nil
	}
	return WritableUnknown, fmt.Errorf("unknown writable mode %q", s)
}

func (w Writable) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *Writable) UnmarshalText(text []byte) error {
	parsed, err := ParseWritable(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
