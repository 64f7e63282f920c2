// Package host is the in-process device runtime simulated devices run on.
package host

import (
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenSimCore/internal/types"
)

// Quality tags an attribute reading.
type Quality int

const (
	QualityValid Quality = iota
	QualityInvalid
	QualityAlarm
	QualityChanging
	QualityWarning
)

var qualityNames = [...]string{"VALID", "INVALID", "ALARM", "CHANGING", "WARNING"}

func (q Quality) String() string {
	if q < 0 || int(q) >= len(qualityNames) {
		return fmt.Sprintf("Quality(%d)", int(q))
	}
	return qualityNames[q]
}

func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *Quality) UnmarshalText(text []byte) error {
	key := strings.ToUpper(strings.TrimPrefix(string(text), "ATTR_"))
	for i, name := range qualityNames {
		if name == key {
			*q = Quality(i)
			return nil
		}
	}
	return fmt.Errorf("unknown attribute quality %q", text)
}

// Reading is one attribute read result.
type Reading struct {
	Value     any     `json:"value"`
	Timestamp float64 `json:"timestamp"`
	Quality   Quality `json:"quality"`
}

// Attribute declares a readable (and optionally writable) device value.
// Meta carries label, type, format, bounds, writability and description.
type Attribute struct {
	Meta  types.AttributeMeta
	Read  func() (Reading, error)
	Write func(v any) error

	dynamic bool
}

func (a *Attribute) Name() string { return a.Meta.Name }

// Command declares a typed device command.
type Command struct {
	Name     string
	DtypeIn  types.DataType
	DtypeOut types.DataType
	DocIn    string
	DocOut   string
	Handler  func(args any) (any, error)

	dynamic bool
}

// Reserved command and attribute names the host serves itself.
const (
	StateName  = "State"
	StatusName = "Status"
	InitName   = "Init"
)

func isReserved(name string) bool {
	return name == StateName || name == StatusName || name == InitName
}

// convertValue turns a client-supplied value into the attribute's native
// representation.
func convertValue(meta types.AttributeMeta, v any) (any, error) {
	if meta.DataType.Element() == types.TypeEnum && meta.DataFormat == types.FormatScalar {
		if label, ok := v.(string); ok {
			for i, l := range meta.EnumLabels {
				if l == label {
					return int16(i), nil
				}
			}
		}
	}

	t := meta.DataType
	if meta.DataFormat == types.FormatSpectrum && !t.IsArray() {
		arr, ok := t.ArrayOf()
		if !ok {
			return nil, fmt.Errorf("%w: %s has no array form", types.ErrUnknownType, t)
		}
		t = arr
	}
	return types.Convert(t, v)
}
