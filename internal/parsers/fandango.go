package parsers

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/KevinKickass/OpenSimCore/internal/types"
)

// FandangoDocument is the introspection dump of a live device. The host
// exports the same shape.
type FandangoDocument struct {
	Name       string                       `json:"name,omitempty"`
	Class      string                       `json:"class,omitempty"`
	DevClass   string                       `json:"dev_class,omitempty"`
	Attributes map[string]FandangoAttribute `json:"attributes"`
	Commands   map[string]FandangoCommand   `json:"commands"`
	Properties map[string][]string          `json:"properties,omitempty"`
}

type FandangoAttribute struct {
	Name        string                    `json:"name"`
	DataType    any                       `json:"data_type"`
	DataFormat  any                       `json:"data_format"`
	Writable    any                       `json:"writable"`
	MaxDimX     any                       `json:"max_dim_x,omitempty"`
	MaxDimY     any                       `json:"max_dim_y,omitempty"`
	Label       string                    `json:"label,omitempty"`
	Unit        string                    `json:"unit,omitempty"`
	Description string                    `json:"description,omitempty"`
	Format      string                    `json:"format,omitempty"`
	MinValue    any                       `json:"min_value,omitempty"`
	MaxValue    any                       `json:"max_value,omitempty"`
	MinAlarm    any                       `json:"min_alarm,omitempty"`
	MaxAlarm    any                       `json:"max_alarm,omitempty"`
	EnumLabels  []string                  `json:"enum_labels,omitempty"`
	Value       any                       `json:"value,omitempty"`
	Events      map[string]map[string]any `json:"events,omitempty"`
}

type FandangoCommand struct {
	Name        string `json:"name"`
	InType      any    `json:"in_type"`
	OutType     any    `json:"out_type"`
	InTypeDesc  string `json:"in_type_desc,omitempty"`
	OutTypeDesc string `json:"out_type_desc,omitempty"`
}

// FandangoParser reads .fgo introspection dumps.
type FandangoParser struct {
	catalog
}

func NewFandangoParser() *FandangoParser {
	return &FandangoParser{catalog: newCatalog()}
}

func (p *FandangoParser) Parse(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc FandangoDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal fandango dump %s: %w", path, err)
	}

	p.source = path
	p.className = doc.Class
	if p.className == "" {
		p.className = doc.DevClass
	}

	for key, a := range doc.Attributes {
		if a.Name == "" {
			a.Name = key
		}
		meta, err := a.toMeta()
		if err != nil {
			return fmt.Errorf("attribute %q in %s: %w", a.Name, path, err)
		}
		p.attributes[meta.Name] = meta
	}

	for key, c := range doc.Commands {
		if c.Name == "" {
			c.Name = key
		}
		in, err := parseAnyType(c.InType, types.TypeVoid)
		if err != nil {
			return fmt.Errorf("command %q in %s: in_type: %w", c.Name, path, err)
		}
		out, err := parseAnyType(c.OutType, types.TypeVoid)
		if err != nil {
			return fmt.Errorf("command %q in %s: out_type: %w", c.Name, path, err)
		}
		p.commands[c.Name] = types.CommandMeta{
			Name:       c.Name,
			DtypeIn:    in,
			DtypeOut:   out,
			DocIn:      c.InTypeDesc,
			DocOut:     c.OutTypeDesc,
			DformatIn:  formatFor(in),
			DformatOut: formatFor(out),
		}
	}

	for name, values := range doc.Properties {
		p.properties[name] = types.PropertyMeta{
			Name:             name,
			Type:             types.TypeStringArray,
			DefaultPropValue: append([]string(nil), values...),
		}
	}

	return nil
}

func (a FandangoAttribute) toMeta() (types.AttributeMeta, error) {
	dt, err := parseAnyType(a.DataType, types.TypeUnknown)
	if err != nil {
		return types.AttributeMeta{}, err
	}

	meta := types.AttributeMeta{
		Name:       a.Name,
		DataType:   dt,
		DataFormat: types.FormatScalar,
		Writable:   types.Read,
		Props:      types.Props{},
	}
	if raw := stringify(a.DataFormat); raw != "" {
		if meta.DataFormat, err = types.ParseDataFormat(raw); err != nil {
			return types.AttributeMeta{}, err
		}
	}
	if raw := stringify(a.Writable); raw != "" {
		if meta.Writable, err = types.ParseWritable(raw); err != nil {
			return types.AttributeMeta{}, err
		}
	}

	meta.MaxDimX, err = atoiDefault(stringify(a.MaxDimX), 0)
	if err != nil {
		return types.AttributeMeta{}, err
	}
	meta.MaxDimY, err = atoiDefault(stringify(a.MaxDimY), 0)
	if err != nil {
		return types.AttributeMeta{}, err
	}
	if meta.MaxDimX == 0 {
		meta.MaxDimX = 1
		if items, ok := a.Value.([]any); ok && meta.DataFormat == types.FormatSpectrum {
			meta.MaxDimX = len(items)
		}
	}

	meta.Set(types.PropLabel, a.Label)
	meta.Set(types.PropUnit, a.Unit)
	meta.Set(types.PropDescription, a.Description)
	meta.Set(types.PropFormat, a.Format)
	meta.Set(types.PropMinValue, stringify(a.MinValue))
	meta.Set(types.PropMaxValue, stringify(a.MaxValue))
	meta.Set(types.PropMinAlarm, stringify(a.MinAlarm))
	meta.Set(types.PropMaxAlarm, stringify(a.MaxAlarm))
	meta.Set(types.PropValue, stringify(a.Value))
	if len(a.EnumLabels) > 0 {
		meta.EnumLabels = append([]string(nil), a.EnumLabels...)
	}

	for group, settings := range a.Events {
		for key, value := range settings {
			meta.Set(fandangoEventKey(group, key), stringify(value))
		}
	}
	return meta, nil
}

func fandangoEventKey(group, key string) string {
	switch group {
	case "arch_event":
		if !strings.HasPrefix(key, "archive_") {
			return "archive_" + key
		}
	case "per_event":
		if key == "period" {
			return types.PropEventPeriod
		}
	}
	return key
}
