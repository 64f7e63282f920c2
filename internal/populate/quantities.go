// Package populate fills a model from parsed description metadata.
package populate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenSimCore/internal/model"
	"github.com/KevinKickass/OpenSimCore/internal/quantity"
	"github.com/KevinKickass/OpenSimCore/internal/types"
	"go.uber.org/zap"
)

// Quantities installs one quantity per attribute. An attribute already on
// the model has its metadata refined by the new bag and is rebuilt.
func Quantities(m *model.Model, attrs map[string]types.AttributeMeta) error {
	for _, name := range sortedKeys(attrs) {
		meta := attrs[name].Clone()
		if existing, ok := m.Quantity(name); ok {
			merged := existing.Meta().Clone()
			merged.Merge(meta)
			meta = merged
		}

		q, err := NewQuantity(meta, m.Now())
		if err != nil {
			return fmt.Errorf("failed to build quantity %q: %w", name, err)
		}
		m.SetQuantity(name, q)

		m.Logger().Debug("Quantity installed",
			zap.String("model", m.Name),
			zap.String("quantity", name),
			zap.String("kind", kindOf(meta)))
	}
	return nil
}

func kindOf(meta types.AttributeMeta) string {
	if kind := meta.SimulationType(); kind != "" {
		return kind
	}
	return quantity.KindConstant
}

// NewQuantity builds the quantity an attribute's metadata asks for.
// Fields left undeclared by every description get their defaults here.
func NewQuantity(meta types.AttributeMeta, now float64) (quantity.Quantity, error) {
	meta.ApplyDefaults()
	kind := meta.SimulationType()

	switch kind {
	case "":
		raw := meta.Get(types.PropValue)
		if raw == "" {
			if pv := meta.Get(types.PropPossibleValues); pv != "" {
				raw = strings.TrimSpace(strings.Split(pv, ",")[0])
			}
		}
		start, err := InitialValue(meta, raw)
		if err != nil {
			return nil, err
		}
		return quantity.NewConstant(&meta, start, now), nil

	case quantity.KindConstant:
		start, err := InitialValue(meta, meta.Get(types.PropInitialValue))
		if err != nil {
			return nil, err
		}
		return quantity.New(kind, &meta, start, now)
	}

	var start any
	if raw := meta.Get(types.PropInitialValue); raw != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid initial_value %q: %w", raw, err)
		}
		start = f
	}
	return quantity.New(kind, &meta, start, now)
}

// InitialValue coerces raw to the attribute's native value and shape. An
// empty raw yields the type's zero.
func InitialValue(meta types.AttributeMeta, raw string) (any, error) {
	elem := meta.DataType.Element()
	raw = strings.TrimSpace(raw)

	if looksLikeList(raw) && (meta.DataType.IsArray() || meta.DataFormat == types.FormatSpectrum) {
		arr, ok := elem.ArrayOf()
		if !ok {
			return nil, fmt.Errorf("%w: %s has no array form", types.ErrUnknownType, elem)
		}
		return types.Coerce(arr, raw)
	}

	v, err := scalarValue(meta, elem, raw)
	if err != nil {
		return nil, err
	}

	switch {
	case meta.DataFormat == types.FormatSpectrum:
		return types.Fill(v, meta.MaxDimX, 0), nil
	case meta.DataFormat == types.FormatImage:
		return types.Fill(v, meta.MaxDimX, meta.MaxDimY), nil
	case meta.DataType.IsArray() && raw == "":
		return types.Zero(meta.DataType), nil
	case meta.DataType.IsArray():
		return types.Fill(v, 1, 0), nil
	}
	return v, nil
}

func scalarValue(meta types.AttributeMeta, elem types.DataType, raw string) (any, error) {
	if raw == "" {
		return types.Zero(elem), nil
	}
	if elem == types.TypeEnum {
		if _, err := strconv.Atoi(raw); err != nil {
			idx, err := model.EnumIndex(meta.EnumLabels, raw)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", meta.Name, err)
			}
			return int16(idx), nil
		}
	}
	v, err := types.Coerce(elem, raw)
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", meta.Name, err)
	}
	return v, nil
}

func looksLikeList(raw string) bool {
	return strings.ContainsAny(raw, ",[")
}

// Properties copies property metadata onto the model.
func Properties(m *model.Model, props map[string]types.PropertyMeta) {
	for _, name := range sortedKeys(props) {
		m.SetProperty(props[name])
	}
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
