package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Canonical keys of the open attribute property bag.
const (
	PropLabel        = "label"
	PropUnit         = "unit"
	PropDescription  = "description"
	PropFormat       = "format"
	PropDisplayUnit  = "display_unit"
	PropStandardUnit = "standard_unit"
	PropDisplayLevel = "display_level"
	PropPeriod       = "period"
	PropMinValue     = "min_value"
	PropMaxValue     = "max_value"
	PropMinAlarm     = "min_alarm"
	PropMaxAlarm     = "max_alarm"
	PropMinWarning   = "min_warning"
	PropMaxWarning   = "max_warning"
	PropDeltaT       = "delta_t"
	PropDeltaVal     = "delta_val"

	PropAbsChange        = "abs_change"
	PropRelChange        = "rel_change"
	PropEventPeriod      = "event_period"
	PropArchiveAbsChange = "archive_abs_change"
	PropArchiveRelChange = "archive_rel_change"
	PropArchivePeriod    = "archive_period"

	PropSimulationType = "quantity_simulation_type"
	PropMinBound       = "min_bound"
	PropMaxBound       = "max_bound"
	PropMean           = "mean"
	PropStdDev         = "std_dev"
	PropMaxSlewRate    = "max_slew_rate"
	PropInitialValue   = "initial_value"
	PropUpdatePeriod   = "update_period"
	PropValue          = "value"
	PropPossibleValues = "possiblevalues"
)

// Props is the open part of an attribute's property bag. Values are kept as
// strings and interpreted by the consumer.
type Props map[string]string

// AttributeMeta is the normalized description of one attribute.
type AttributeMeta struct {
	Name       string     `json:"name"`
	DataType   DataType   `json:"data_type"`
	DataFormat DataFormat `json:"data_format"`
	Writable   Writable   `json:"writable"`
	MaxDimX    int        `json:"max_dim_x"`
	MaxDimY    int        `json:"max_dim_y"`
	EnumLabels []string   `json:"enum_labels,omitempty"`
	Props      Props      `json:"props,omitempty"`
}

// Get returns the string value of a bag key. The typed core fields are
// reachable under their canonical names as well.
func (a AttributeMeta) Get(key string) string {
	switch key {
	case "name":
		return a.Name
	case "data_type":
		if a.DataType == TypeUnknown {
			return ""
		}
		return a.DataType.String()
	case "data_format":
		if a.DataFormat == FormatUnknown {
			return ""
		}
		return a.DataFormat.String()
	case "writable":
		if a.Writable == WritableUnknown {
			return ""
		}
		return a.Writable.String()
	case "max_dim_x":
		return strconv.Itoa(a.MaxDimX)
	case "max_dim_y":
		return strconv.Itoa(a.MaxDimY)
	case "enum_labels":
		return strings.Join(a.EnumLabels, ",")
	}
	return a.Props[key]
}

// Has reports whether key is present with a non-empty value.
func (a AttributeMeta) Has(key string) bool {
	return a.Get(key) != ""
}

// Set stores a bag value, ignoring empty strings.
func (a *AttributeMeta) Set(key, value string) {
	if value == "" {
		return
	}
	if a.Props == nil {
		a.Props = make(Props)
	}
	a.Props[key] = value
}

// Float parses a bag value as a float.
func (a AttributeMeta) Float(key string) (float64, bool) {
	raw := a.Get(key)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Merge overlays other onto a. Empty values in other never overwrite.
func (a *AttributeMeta) Merge(other AttributeMeta) {
	if other.Name != "" {
		a.Name = other.Name
	}
	if other.DataType != TypeUnknown {
		a.DataType = other.DataType
	}
	if other.DataFormat != FormatUnknown {
		a.DataFormat = other.DataFormat
	}
	if other.Writable != WritableUnknown {
		a.Writable = other.Writable
	}
	if other.MaxDimX != 0 {
		a.MaxDimX = other.MaxDimX
	}
	if other.MaxDimY != 0 {
		a.MaxDimY = other.MaxDimY
	}
	if len(other.EnumLabels) > 0 {
		a.EnumLabels = append([]string(nil), other.EnumLabels...)
	}
	for k, v := range other.Props {
		a.Set(k, v)
	}
}

// ApplyDefaults fills the fields no description declared: SCALAR, READ
// and a single element.
func (a *AttributeMeta) ApplyDefaults() {
	if a.DataFormat == FormatUnknown {
		a.DataFormat = FormatScalar
	}
	if a.Writable == WritableUnknown {
		a.Writable = Read
	}
	if a.MaxDimX == 0 {
		a.MaxDimX = 1
	}
}

// Clone returns a deep copy.
func (a AttributeMeta) Clone() AttributeMeta {
	out := a
	out.EnumLabels = append([]string(nil), a.EnumLabels...)
	out.Props = make(Props, len(a.Props))
	for k, v := range a.Props {
		out.Props[k] = v
	}
	return out
}

// SimulationType returns the quantity class requested for the attribute.
func (a AttributeMeta) SimulationType() string {
	return a.Props[PropSimulationType]
}

// Behaviour names a step of a synthesized command handler.
type Behaviour string

const (
	BehaviourInputTransform Behaviour = "input_transform"
	BehaviourSideEffect     Behaviour = "side_effect"
	BehaviourLongRunning    Behaviour = "long_running"
	BehaviourOutputReturn   Behaviour = "output_return"
)

// Seconds is a duration read from a plain number (or numeric string) of
// seconds.
type Seconds struct {
	time.Duration
}

func (s *Seconds) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		s.Duration = time.Duration(value * float64(time.Second))
		return nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("invalid seconds %q: %w", value, err)
		}
		s.Duration = time.Duration(f * float64(time.Second))
		return nil
	case nil:
		s.Duration = 0
		return nil
	default:
		return fmt.Errorf("invalid seconds value %v", value)
	}
}

func (s Seconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Duration.Seconds())
}

// ActionStep is one step of a declarative command behaviour.
type ActionStep struct {
	Behaviour           Behaviour `json:"behaviour"`
	SourceVariable      string    `json:"source_variable,omitempty"`
	SourceQuantity      string    `json:"source_quantity,omitempty"`
	DestinationVariable string    `json:"destination_variable,omitempty"`
	DestinationQuantity string    `json:"destination_quantity,omitempty"`
	ExecutionTime       Seconds   `json:"execution_time_secs,omitempty"`
}

// CommandMeta is the normalized description of one command.
type CommandMeta struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	DtypeIn     DataType     `json:"dtype_in"`
	DtypeOut    DataType     `json:"dtype_out"`
	DocIn       string       `json:"doc_in,omitempty"`
	DocOut      string       `json:"doc_out,omitempty"`
	DformatIn   DataFormat   `json:"dformat_in,omitempty"`
	DformatOut  DataFormat   `json:"dformat_out,omitempty"`
	Actions     []ActionStep `json:"actions,omitempty"`
}

// Merge overlays other onto c, skipping empty values.
func (c *CommandMeta) Merge(other CommandMeta) {
	if other.Name != "" {
		c.Name = other.Name
	}
	if other.Description != "" {
		c.Description = other.Description
	}
	if other.DtypeIn != TypeUnknown {
		c.DtypeIn = other.DtypeIn
	}
	if other.DtypeOut != TypeUnknown {
		c.DtypeOut = other.DtypeOut
	}
	if other.DocIn != "" {
		c.DocIn = other.DocIn
	}
	if other.DocOut != "" {
		c.DocOut = other.DocOut
	}
	if other.DformatIn != FormatUnknown {
		c.DformatIn = other.DformatIn
	}
	if other.DformatOut != FormatUnknown {
		c.DformatOut = other.DformatOut
	}
	if len(other.Actions) > 0 {
		c.Actions = append([]ActionStep(nil), other.Actions...)
	}
}

// PropertyMeta describes one device property.
type PropertyMeta struct {
	Name             string   `json:"name"`
	Type             DataType `json:"type"`
	Description      string   `json:"description,omitempty"`
	Mandatory        bool     `json:"mandatory,omitempty"`
	DefaultPropValue []string `json:"default_value,omitempty"`
}

// OverrideMeta points at the code that supplies custom command behaviour.
type OverrideMeta struct {
	Name            string `json:"name"`
	ClassName       string `json:"class_name"`
	ModuleName      string `json:"module_name"`
	ModuleDirectory string `json:"module_directory"`
}

// IsControl reports whether the override fills the control-device slot.
func (o OverrideMeta) IsControl() bool {
	return strings.HasPrefix(o.Name, "SimControl")
}

// IsSim reports whether the override fills the main-device slot.
func (o OverrideMeta) IsSim() bool {
	return strings.HasPrefix(o.Name, "Sim") && !o.IsControl()
}
