package parsers

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenSimCore/internal/types"
)

// sddTypes is the whole SDD type vocabulary.
var sddTypes = map[string]types.DataType{
	"int":     types.TypeLong,
	"float":   types.TypeDouble,
	"boolean": types.TypeBoolean,
	"string":  types.TypeString,
}

type sddDocument struct {
	ClassName        string               `xml:"className,attr"`
	Commands         []sddCommand         `xml:"CommandList>Command"`
	MonitoringPoints []sddMonitoringPoint `xml:"MonitoringPoints>MonitoringPoint"`
}

type sddParameter struct {
	Name     string `xml:"ParameterName"`
	DataType string `xml:"ParameterDataType"`
}

type sddCommand struct {
	ID          string         `xml:"CommandID"`
	Name        string         `xml:"CommandName"`
	Description string         `xml:"CommandDescription"`
	Parameters  []sddParameter `xml:"CommandParameters>Parameter"`
	Responses   []sddParameter `xml:"ResponseList>Response>ResponseParameters>Parameter"`
}

type sddMonitoringPoint struct {
	ID             string   `xml:"id,attr"`
	Name           string   `xml:"name,attr"`
	Description    string   `xml:"Description"`
	DataType       string   `xml:"DataType"`
	Size           string   `xml:"Size"`
	RWType         string   `xml:"RWType"`
	PossibleValues []string `xml:"PossibleValues>PossibleValue"`
	ValueRange     struct {
		Min string `xml:"Min"`
		Max string `xml:"Max"`
	} `xml:"ValueRange"`
	SamplingFrequency struct {
		DefaultValue string `xml:"DefaultValue"`
		MaxValue     string `xml:"MaxValue"`
	} `xml:"SamplingFrequency"`
}

// SDDParser reads self-description data XML.
type SDDParser struct {
	catalog
}

func NewSDDParser() *SDDParser {
	return &SDDParser{catalog: newCatalog()}
}

func (p *SDDParser) Parse(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var doc sddDocument
	dec := xml.NewDecoder(f)
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode SDD %s: %w", path, err)
	}

	p.source = path
	p.className = doc.ClassName

	for _, mp := range doc.MonitoringPoints {
		meta, err := mp.toMeta()
		if err != nil {
			return fmt.Errorf("monitoring point %q in %s: %w", mp.Name, path, err)
		}
		p.attributes[meta.Name] = meta
	}

	for _, c := range doc.Commands {
		meta, err := c.toMeta()
		if err != nil {
			return fmt.Errorf("command %q in %s: %w", c.Name, path, err)
		}
		p.commands[meta.Name] = meta
	}

	return nil
}

func sddType(name string) (types.DataType, error) {
	dt, ok := sddTypes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return types.TypeUnknown, fmt.Errorf("%w: SDD type %q (expected int, float, boolean or string)",
			types.ErrUnknownType, name)
	}
	return dt, nil
}

func (mp sddMonitoringPoint) toMeta() (types.AttributeMeta, error) {
	dt, err := sddType(mp.DataType)
	if err != nil {
		return types.AttributeMeta{}, err
	}

	meta := types.AttributeMeta{
		Name:       mp.Name,
		DataType:   dt,
		DataFormat: types.FormatScalar,
		Writable:   types.Read,
		MaxDimX:    1,
		Props:      types.Props{},
	}

	if size := strings.TrimSpace(mp.Size); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return types.AttributeMeta{}, fmt.Errorf("invalid size %q: %w", size, err)
		}
		if n > 1 {
			meta.DataFormat = types.FormatSpectrum
			meta.MaxDimX = n
		}
	}
	if rw := strings.TrimSpace(mp.RWType); rw != "" {
		if meta.Writable, err = types.ParseWritable(rw); err != nil {
			return types.AttributeMeta{}, err
		}
	}

	meta.Set(types.PropDescription, toASCII(strings.TrimSpace(mp.Description)))
	meta.Set(types.PropMinValue, strings.TrimSpace(mp.ValueRange.Min))
	meta.Set(types.PropMaxValue, strings.TrimSpace(mp.ValueRange.Max))
	meta.Set(types.PropPeriod, strings.TrimSpace(mp.SamplingFrequency.DefaultValue))

	if len(mp.PossibleValues) > 0 {
		values := make([]string, 0, len(mp.PossibleValues))
		for _, v := range mp.PossibleValues {
			values = append(values, strings.TrimSpace(v))
		}
		meta.Set(types.PropPossibleValues, strings.Join(values, ","))
		if dt == types.TypeString {
			meta.EnumLabels = values
		}
	}
	return meta, nil
}

func (c sddCommand) toMeta() (types.CommandMeta, error) {
	in := types.TypeVoid
	if len(c.Parameters) > 0 {
		dt, err := sddType(c.Parameters[0].DataType)
		if err != nil {
			return types.CommandMeta{}, fmt.Errorf("parameter %q: %w", c.Parameters[0].Name, err)
		}
		in = dt
	}
	out := types.TypeVoid
	if len(c.Responses) > 0 {
		dt, err := sddType(c.Responses[0].DataType)
		if err != nil {
			return types.CommandMeta{}, fmt.Errorf("response %q: %w", c.Responses[0].Name, err)
		}
		out = dt
	}

	names := make([]string, 0, len(c.Parameters))
	for _, param := range c.Parameters {
		names = append(names, param.Name)
	}

	return types.CommandMeta{
		Name:        strings.TrimSpace(c.Name),
		Description: toASCII(strings.TrimSpace(c.Description)),
		DtypeIn:     in,
		DtypeOut:    out,
		DocIn:       strings.Join(names, ","),
		DformatIn:   types.FormatScalar,
		DformatOut:  types.FormatScalar,
	}, nil
}
