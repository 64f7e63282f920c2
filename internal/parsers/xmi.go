package parsers

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/KevinKickass/OpenSimCore/internal/types"
	"golang.org/x/text/encoding/htmlindex"
)

type xmiDocument struct {
	Classes []xmiClass `xml:"classes"`
}

type xmiClass struct {
	Name              string         `xml:"name,attr"`
	DeviceProperties  []xmiProperty  `xml:"deviceProperties"`
	Commands          []xmiCommand   `xml:"commands"`
	Attributes        []xmiAttribute `xml:"attributes"`
	DynamicAttributes []xmiAttribute `xml:"dynamicAttributes"`
}

type xmiTypeRef struct {
	Type string `xml:"type,attr"`
}

type xmiProperty struct {
	Name             string     `xml:"name,attr"`
	Description      string     `xml:"description,attr"`
	Mandatory        string     `xml:"mandatory,attr"`
	Type             xmiTypeRef `xml:"type"`
	DefaultPropValue []string   `xml:"DefaultPropValue"`
}

type xmiArg struct {
	Description string     `xml:"description,attr"`
	Type        xmiTypeRef `xml:"type"`
}

type xmiCommand struct {
	Name        string `xml:"name,attr"`
	Description string `xml:"description,attr"`
	Argin       xmiArg `xml:"argin"`
	Argout      xmiArg `xml:"argout"`
}

type xmiCriteria struct {
	RelChange string `xml:"relChange,attr"`
	AbsChange string `xml:"absChange,attr"`
	Period    string `xml:"period,attr"`
}

type xmiAttrProperties struct {
	Description  string `xml:"description,attr"`
	Label        string `xml:"label,attr"`
	Unit         string `xml:"unit,attr"`
	StandardUnit string `xml:"standardUnit,attr"`
	DisplayUnit  string `xml:"displayUnit,attr"`
	Format       string `xml:"format,attr"`
	MaxValue     string `xml:"maxValue,attr"`
	MinValue     string `xml:"minValue,attr"`
	MaxAlarm     string `xml:"maxAlarm,attr"`
	MinAlarm     string `xml:"minAlarm,attr"`
	MaxWarning   string `xml:"maxWarning,attr"`
	MinWarning   string `xml:"minWarning,attr"`
	DeltaTime    string `xml:"deltaTime,attr"`
	DeltaValue   string `xml:"deltaValue,attr"`
}

type xmiAttribute struct {
	Name              string             `xml:"name,attr"`
	AttType           string             `xml:"attType,attr"`
	RWType            string             `xml:"rwType,attr"`
	DisplayLevel      string             `xml:"displayLevel,attr"`
	PolledPeriod      string             `xml:"polledPeriod,attr"`
	MaxX              string             `xml:"maxX,attr"`
	MaxY              string             `xml:"maxY,attr"`
	DataType          xmiTypeRef         `xml:"dataType"`
	Properties        *xmiAttrProperties `xml:"properties"`
	EventCriteria     *xmiCriteria       `xml:"eventCriteria"`
	EvArchiveCriteria *xmiCriteria       `xml:"evArchiveCriteria"`
	EnumLabels        []string           `xml:"enumLabels"`
}

// XMIParser reads Pogo class descriptions.
type XMIParser struct {
	catalog
}

func NewXMIParser() *XMIParser {
	return &XMIParser{catalog: newCatalog()}
}

func (p *XMIParser) Parse(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var doc xmiDocument
	dec := xml.NewDecoder(f)
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode XMI %s: %w", path, err)
	}
	if len(doc.Classes) == 0 {
		return fmt.Errorf("XMI %s has no classes element", path)
	}

	p.source = path
	cls := doc.Classes[0]
	p.className = toASCII(cls.Name)

	for _, a := range append(cls.Attributes, cls.DynamicAttributes...) {
		meta, err := a.toMeta()
		if err != nil {
			return fmt.Errorf("attribute %q in %s: %w", a.Name, path, err)
		}
		p.attributes[meta.Name] = meta
	}

	for _, c := range cls.Commands {
		meta, err := c.toMeta()
		if err != nil {
			return fmt.Errorf("command %q in %s: %w", c.Name, path, err)
		}
		p.commands[meta.Name] = meta
	}

	for _, prop := range cls.DeviceProperties {
		meta, err := prop.toMeta()
		if err != nil {
			return fmt.Errorf("property %q in %s: %w", prop.Name, path, err)
		}
		p.properties[meta.Name] = meta
	}

	return nil
}

// xmiType turns "pogoDsl:DoubleType" into a DataType.
func xmiType(ref xmiTypeRef) (types.DataType, error) {
	name := ref.Type
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	return types.ParseDataType(name)
}

func (a xmiAttribute) toMeta() (types.AttributeMeta, error) {
	dt, err := xmiType(a.DataType)
	if err != nil {
		return types.AttributeMeta{}, err
	}
	format, err := types.ParseDataFormat(a.AttType)
	if err != nil {
		return types.AttributeMeta{}, err
	}
	writable, err := types.ParseWritable(a.RWType)
	if err != nil {
		return types.AttributeMeta{}, err
	}
	maxX, err := atoiDefault(a.MaxX, 1)
	if err != nil {
		return types.AttributeMeta{}, err
	}
	maxY, err := atoiDefault(a.MaxY, 0)
	if err != nil {
		return types.AttributeMeta{}, err
	}

	meta := types.AttributeMeta{
		Name:       toASCII(a.Name),
		DataType:   dt,
		DataFormat: format,
		Writable:   writable,
		MaxDimX:    maxX,
		MaxDimY:    maxY,
		Props:      types.Props{},
	}
	meta.Set(types.PropDisplayLevel, a.DisplayLevel)
	meta.Set(types.PropPeriod, a.PolledPeriod)

	if pr := a.Properties; pr != nil {
		for key, value := range map[string]string{
			types.PropDescription:  pr.Description,
			types.PropLabel:        pr.Label,
			types.PropUnit:         pr.Unit,
			types.PropStandardUnit: pr.StandardUnit,
			types.PropDisplayUnit:  pr.DisplayUnit,
			types.PropFormat:       pr.Format,
			types.PropMaxValue:     pr.MaxValue,
			types.PropMinValue:     pr.MinValue,
			types.PropMaxAlarm:     pr.MaxAlarm,
			types.PropMinAlarm:     pr.MinAlarm,
			types.PropMaxWarning:   pr.MaxWarning,
			types.PropMinWarning:   pr.MinWarning,
			types.PropDeltaT:       pr.DeltaTime,
			types.PropDeltaVal:     pr.DeltaValue,
		} {
			meta.Set(key, toASCII(value))
		}
	}
	if ev := a.EventCriteria; ev != nil {
		meta.Set(types.PropRelChange, ev.RelChange)
		meta.Set(types.PropAbsChange, ev.AbsChange)
		meta.Set(types.PropEventPeriod, ev.Period)
	}
	if ev := a.EvArchiveCriteria; ev != nil {
		meta.Set(types.PropArchiveRelChange, ev.RelChange)
		meta.Set(types.PropArchiveAbsChange, ev.AbsChange)
		meta.Set(types.PropArchivePeriod, ev.Period)
	}

	if len(a.EnumLabels) > 0 {
		labels := make([]string, 0, len(a.EnumLabels))
		for _, l := range a.EnumLabels {
			labels = append(labels, toASCII(strings.TrimSpace(l)))
		}
		sort.Strings(labels)
		meta.EnumLabels = labels
	}
	return meta, nil
}

func (c xmiCommand) toMeta() (types.CommandMeta, error) {
	in, err := xmiType(c.Argin.Type)
	if err != nil {
		return types.CommandMeta{}, fmt.Errorf("argin: %w", err)
	}
	out, err := xmiType(c.Argout.Type)
	if err != nil {
		return types.CommandMeta{}, fmt.Errorf("argout: %w", err)
	}
	return types.CommandMeta{
		Name:        toASCII(c.Name),
		Description: toASCII(c.Description),
		DtypeIn:     in,
		DtypeOut:    out,
		DocIn:       toASCII(c.Argin.Description),
		DocOut:      toASCII(c.Argout.Description),
		DformatIn:   formatFor(in),
		DformatOut:  formatFor(out),
	}, nil
}

func (p xmiProperty) toMeta() (types.PropertyMeta, error) {
	dt, err := xmiType(p.Type)
	if err != nil {
		return types.PropertyMeta{}, err
	}
	values := make([]string, 0, len(p.DefaultPropValue))
	for _, v := range p.DefaultPropValue {
		values = append(values, toASCII(v))
	}
	return types.PropertyMeta{
		Name:             toASCII(p.Name),
		Type:             dt,
		Description:      toASCII(p.Description),
		Mandatory:        strings.EqualFold(p.Mandatory, "true"),
		DefaultPropValue: values,
	}, nil
}

// charsetReader accepts the ASCII declaration Pogo writes and any label
// the WHATWG index knows.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "ascii", "us-ascii", "utf-8", "utf8":
		return input, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
