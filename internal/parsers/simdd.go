package parsers

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenSimCore/internal/quantity"
	"github.com/KevinKickass/OpenSimCore/internal/types"
)

// Simulation parameter sets accepted per quantity class. Every listed key
// is required and nothing else is allowed.
var simulationParams = map[string][]string{
	quantity.KindGaussianSlewLimited: {
		types.PropSimulationType, types.PropMinBound, types.PropMaxBound,
		types.PropMaxSlewRate, types.PropMean, types.PropStdDev, types.PropUpdatePeriod,
	},
	quantity.KindConstant: {
		types.PropSimulationType, types.PropInitialValue,
	},
}

type simddDocument struct {
	ClassName         string `json:"class_name"`
	DynamicAttributes []struct {
		Data simddAttribute `json:"basicAttributeData"`
	} `json:"dynamicAttributes"`
	Commands []struct {
		Data simddCommand `json:"basicCommandData"`
	} `json:"commands"`
	DeviceProperties []struct {
		Data simddProperty `json:"basicPropertyData"`
	} `json:"deviceProperties"`
	ClassOverrides []struct {
		Class types.OverrideMeta `json:"override_class"`
	} `json:"class_overrides"`
}

type simddAttribute struct {
	Name         string `json:"name"`
	Label        string `json:"label"`
	Description  string `json:"description"`
	Unit         string `json:"unit"`
	DisplayUnit  string `json:"display_unit"`
	StandardUnit string `json:"standard_unit"`
	Format       string `json:"format"`
	DataType     any    `json:"data_type"`
	DataFormat   string `json:"data_format"`
	DeltaT       any    `json:"delta_t"`
	DeltaVal     any    `json:"delta_val"`
	DataShape    *struct {
		MaxDimX any `json:"max_dim_x"`
		MaxDimY any `json:"max_dim_y"`
	} `json:"data_shape"`
	ErrorChecking map[string]any `json:"attributeErrorChecking"`
	Interlocks    *struct {
		Writable string `json:"writable"`
	} `json:"attributeInterlocks"`
	SimulationParameters map[string]any `json:"dataSimulationParameters"`
	ControlSystem        *struct {
		DisplayLevel  string                    `json:"display_level"`
		Period        any                       `json:"period"`
		EnumLabels    []string                  `json:"enum_labels"`
		EventSettings map[string]map[string]any `json:"EventSettings"`
	} `json:"attributeControlSystem"`
}

type simddCommand struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputType   any                `json:"input_type"`
	OutputType  any                `json:"output_type"`
	DocIn       string             `json:"doc_in"`
	DocOut      string             `json:"doc_out"`
	Actions     []types.ActionStep `json:"actions"`
}

type simddProperty struct {
	Name             string `json:"name"`
	Type             any    `json:"type"`
	Description      string `json:"description"`
	Mandatory        bool   `json:"mandatory"`
	DefaultPropValue []any  `json:"DefaultPropValue"`
}

var (
	sharedValidatorOnce sync.Once
	sharedValidator     *SchemaValidator
	sharedValidatorErr  error
)

func defaultValidator() (*SchemaValidator, error) {
	sharedValidatorOnce.Do(func() {
		sharedValidator, sharedValidatorErr = NewSchemaValidator()
	})
	return sharedValidator, sharedValidatorErr
}

// SimDDParser reads simulator description JSON.
type SimDDParser struct {
	catalog
	validator *SchemaValidator
}

// NewSimDDParser uses v for schema checks, or the bundled schema when v is nil.
func NewSimDDParser(v *SchemaValidator) *SimDDParser {
	return &SimDDParser{catalog: newCatalog(), validator: v}
}

func (p *SimDDParser) Parse(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return p.parseBytes(path, data)
}

func (p *SimDDParser) parseBytes(path string, data []byte) error {
	v := p.validator
	if v == nil {
		shared, err := defaultValidator()
		if err != nil {
			return fmt.Errorf("failed to create validator: %w", err)
		}
		v = shared
	}
	if err := v.Validate(data); err != nil {
		return fmt.Errorf("validation failed for %s: %w", path, err)
	}

	var doc simddDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal SimDD %s: %w", path, err)
	}

	p.source = path
	p.className = doc.ClassName

	for _, entry := range doc.DynamicAttributes {
		meta, err := entry.Data.toMeta()
		if err != nil {
			return fmt.Errorf("attribute %q in %s: %w", entry.Data.Name, path, err)
		}
		p.attributes[meta.Name] = meta
	}

	for _, entry := range doc.Commands {
		meta, err := entry.Data.toMeta()
		if err != nil {
			return fmt.Errorf("command %q in %s: %w", entry.Data.Name, path, err)
		}
		p.commands[meta.Name] = meta
	}

	for _, entry := range doc.DeviceProperties {
		meta, err := entry.Data.toMeta()
		if err != nil {
			return fmt.Errorf("property %q in %s: %w", entry.Data.Name, path, err)
		}
		p.properties[meta.Name] = meta
	}

	for _, entry := range doc.ClassOverrides {
		p.overrides[entry.Class.Name] = entry.Class
	}

	return nil
}

func parseAnyType(v any, def types.DataType) (types.DataType, error) {
	raw := stringify(v)
	if raw == "" {
		return def, nil
	}
	return types.ParseDataType(raw)
}

func (a simddAttribute) toMeta() (types.AttributeMeta, error) {
	dt, err := parseAnyType(a.DataType, types.TypeUnknown)
	if err != nil {
		return types.AttributeMeta{}, err
	}

	meta := types.AttributeMeta{
		Name:     a.Name,
		DataType: dt,
		Props:    types.Props{},
	}

	// Undeclared format, writability and shape stay unset so a refining
	// SimDD does not overwrite what an earlier description declared.
	if a.DataFormat != "" {
		if meta.DataFormat, err = types.ParseDataFormat(a.DataFormat); err != nil {
			return types.AttributeMeta{}, err
		}
	}
	if a.Interlocks != nil && a.Interlocks.Writable != "" {
		if meta.Writable, err = types.ParseWritable(a.Interlocks.Writable); err != nil {
			return types.AttributeMeta{}, err
		}
	}
	if a.DataShape != nil {
		if meta.MaxDimX, err = atoiDefault(stringify(a.DataShape.MaxDimX), 0); err != nil {
			return types.AttributeMeta{}, err
		}
		if meta.MaxDimY, err = atoiDefault(stringify(a.DataShape.MaxDimY), 0); err != nil {
			return types.AttributeMeta{}, err
		}
	}

	meta.Set(types.PropLabel, a.Label)
	meta.Set(types.PropDescription, a.Description)
	meta.Set(types.PropUnit, a.Unit)
	meta.Set(types.PropDisplayUnit, a.DisplayUnit)
	meta.Set(types.PropStandardUnit, a.StandardUnit)
	meta.Set(types.PropFormat, a.Format)
	meta.Set(types.PropDeltaT, stringify(a.DeltaT))
	meta.Set(types.PropDeltaVal, stringify(a.DeltaVal))

	for key, value := range a.ErrorChecking {
		meta.Set(key, stringify(value))
	}

	if cs := a.ControlSystem; cs != nil {
		meta.Set(types.PropDisplayLevel, cs.DisplayLevel)
		meta.Set(types.PropPeriod, stringify(cs.Period))
		if len(cs.EnumLabels) > 0 {
			meta.EnumLabels = append([]string(nil), cs.EnumLabels...)
		}
		// Sorted so the correct eventCriteria spelling wins over eventCrateria.
		groups := make([]string, 0, len(cs.EventSettings))
		for group := range cs.EventSettings {
			groups = append(groups, group)
		}
		sort.Strings(groups)
		for _, group := range groups {
			criteria := cs.EventSettings[group]
			if group == "eventCrateria" {
				group = "eventCriteria"
			}
			for key, value := range criteria {
				meta.Set(eventKey(group, key), stringify(value))
			}
		}
	}

	if err := checkSimulationParameters(a.SimulationParameters); err != nil {
		return types.AttributeMeta{}, err
	}
	for key, value := range a.SimulationParameters {
		meta.Set(key, stringify(value))
	}

	return meta, nil
}

// eventKey maps SimDD event settings onto canonical keys. Period criteria
// carry a bare "period" that becomes event_period.
func eventKey(group, key string) string {
	switch {
	case group == "eventPeriodCriteria" && key == "period":
		return types.PropEventPeriod
	case group == "eventCriteria" && key == "period":
		return types.PropEventPeriod
	case group == "eventArchiveCriteria" && !strings.HasPrefix(key, "archive_"):
		return "archive_" + key
	}
	return key
}

func checkSimulationParameters(params map[string]any) error {
	kind := stringify(params[types.PropSimulationType])
	if kind == "" {
		return fmt.Errorf("%w: quantity_simulation_type is required", types.ErrSchemaViolation)
	}
	allowed, ok := simulationParams[kind]
	if !ok {
		return fmt.Errorf("%w: unknown quantity_simulation_type %q", types.ErrSchemaViolation, kind)
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, key := range allowed {
		allowedSet[key] = true
	}

	var unknown, missing []string
	for key := range params {
		if !allowedSet[key] {
			unknown = append(unknown, key)
		}
	}
	for _, key := range allowed {
		if _, ok := params[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(unknown)
	sort.Strings(missing)

	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown %s parameters %v", types.ErrSchemaViolation, kind, unknown)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s requires %v", types.ErrSchemaViolation, kind, missing)
	}
	return nil
}

func (c simddCommand) toMeta() (types.CommandMeta, error) {
	in, err := parseAnyType(c.InputType, types.TypeVoid)
	if err != nil {
		return types.CommandMeta{}, fmt.Errorf("input_type: %w", err)
	}
	out, err := parseAnyType(c.OutputType, types.TypeVoid)
	if err != nil {
		return types.CommandMeta{}, fmt.Errorf("output_type: %w", err)
	}
	return types.CommandMeta{
		Name:        c.Name,
		Description: c.Description,
		DtypeIn:     in,
		DtypeOut:    out,
		DocIn:       c.DocIn,
		DocOut:      c.DocOut,
		DformatIn:   formatFor(in),
		DformatOut:  formatFor(out),
		Actions:     c.Actions,
	}, nil
}

func (p simddProperty) toMeta() (types.PropertyMeta, error) {
	dt, err := parseAnyType(p.Type, types.TypeString)
	if err != nil {
		return types.PropertyMeta{}, err
	}
	values := make([]string, 0, len(p.DefaultPropValue))
	for _, v := range p.DefaultPropValue {
		values = append(values, stringify(v))
	}
	return types.PropertyMeta{
		Name:             p.Name,
		Type:             dt,
		Description:      p.Description,
		Mandatory:        p.Mandatory,
		DefaultPropValue: values,
	}, nil
}
