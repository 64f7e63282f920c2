package simdevice

import (
	"context"
	"fmt"
	"sort"

	"github.com/KevinKickass/OpenSimCore/internal/host"
	"github.com/KevinKickass/OpenSimCore/internal/model"
	"github.com/KevinKickass/OpenSimCore/internal/quantity"
	"github.com/KevinKickass/OpenSimCore/internal/types"
	"go.uber.org/zap"
)

// Control attribute names.
const (
	AttrPauseActive   = "pause_active"
	AttrAttributeName = "attribute_name"
)

// ControlDevice steers the model of a simulated device: it pauses time,
// selects a quantity and adjusts that quantity's parameters.
type ControlDevice struct {
	asm      *Assembly
	model    *model.Model
	names    []string
	fields   []string
	selected int
	logger   *zap.Logger
}

// newControlDevice snapshots the quantity names and the union of their
// adjustable fields. Callers hold the model monitor.
func newControlDevice(asm *Assembly) *ControlDevice {
	m := asm.Model
	names := m.QuantityNames()
	sort.Strings(names)

	union := make(map[string]bool)
	for _, name := range names {
		q, _ := m.Quantity(name)
		for _, field := range q.AdjustableAttributes() {
			union[field] = true
		}
	}

	return &ControlDevice{
		asm:    asm,
		model:  m,
		names:  names,
		fields: sortedKeys(union),
		logger: asm.logger,
	}
}

// Fields lists the adjustable fields exposed as attributes.
func (c *ControlDevice) Fields() []string {
	return append([]string(nil), c.fields...)
}

// Selected returns the name of the quantity writes are dispatched to.
func (c *ControlDevice) Selected() string {
	c.model.Monitor().Lock()
	defer c.model.Monitor().Unlock()
	return c.selectedName()
}

func (c *ControlDevice) selectedName() string {
	if c.selected < 0 || c.selected >= len(c.names) {
		return ""
	}
	return c.names[c.selected]
}

func (c *ControlDevice) attributes() []host.Attribute {
	m := c.model
	attrs := []host.Attribute{
		{
			Meta: types.AttributeMeta{
				Name: AttrPauseActive, DataType: types.TypeBoolean, DataFormat: types.FormatScalar,
				Writable: types.ReadWrite, MaxDimX: 1,
				Props: types.Props{types.PropDescription: "Stops the simulated quantities from evolving"},
			},
			Read: func() (host.Reading, error) {
				m.Monitor().Lock()
				defer m.Monitor().Unlock()
				return host.Reading{Value: m.Paused, Timestamp: m.Now(), Quality: host.QualityValid}, nil
			},
			Write: func(v any) error {
				paused, ok := v.(bool)
				if !ok {
					return fmt.Errorf("%s expects a boolean, got %T", AttrPauseActive, v)
				}
				m.Monitor().Lock()
				defer m.Monitor().Unlock()
				m.Paused = paused
				c.logger.Info("Simulation pause changed", zap.Bool("paused", paused))
				return nil
			},
		},
		{
			Meta: types.AttributeMeta{
				Name: AttrAttributeName, DataType: types.TypeEnum, DataFormat: types.FormatScalar,
				Writable: types.ReadWrite, MaxDimX: 1, EnumLabels: append([]string(nil), c.names...),
				Props: types.Props{types.PropDescription: "Quantity the parameter attributes act on"},
			},
			Read: func() (host.Reading, error) {
				m.Monitor().Lock()
				defer m.Monitor().Unlock()
				return host.Reading{Value: int16(c.selected), Timestamp: m.Now(), Quality: host.QualityValid}, nil
			},
			Write: func(v any) error {
				idx, ok := types.ToInt(v)
				if !ok || idx < 0 || idx >= len(c.names) {
					return fmt.Errorf("%s index %v out of range [0, %d)", AttrAttributeName, v, len(c.names))
				}
				m.Monitor().Lock()
				defer m.Monitor().Unlock()
				c.selected = idx
				return nil
			},
		},
	}

	for _, field := range c.fields {
		attrs = append(attrs, c.fieldAttribute(field))
	}
	return attrs
}

func (c *ControlDevice) fieldAttribute(field string) host.Attribute {
	m := c.model
	return host.Attribute{
		Meta: types.AttributeMeta{
			Name: field, DataType: types.TypeDouble, DataFormat: types.FormatScalar,
			Writable: types.ReadWrite, MaxDimX: 1,
		},
		Read: func() (host.Reading, error) {
			m.Monitor().Lock()
			defer m.Monitor().Unlock()
			q, err := c.selectedQuantity()
			if err != nil {
				return host.Reading{}, err
			}
			v, err := q.Attribute(field)
			if err != nil {
				return host.Reading{Value: 0.0, Timestamp: m.Now(), Quality: host.QualityInvalid}, nil
			}
			f, ok := types.ToFloat(v)
			if !ok {
				return host.Reading{Value: 0.0, Timestamp: m.Now(), Quality: host.QualityInvalid}, nil
			}
			return host.Reading{Value: f, Timestamp: m.Now(), Quality: host.QualityValid}, nil
		},
		Write: func(v any) error {
			m.Monitor().Lock()
			defer m.Monitor().Unlock()
			q, err := c.selectedQuantity()
			if err != nil {
				return err
			}
			if field == quantity.FieldLastVal {
				value, err := nativeValue(q.Meta(), v)
				if err != nil {
					return err
				}
				q.SetVal(value, m.Now())
				return nil
			}
			return q.SetAttribute(field, v, m.Now())
		},
	}
}

func (c *ControlDevice) selectedQuantity() (quantity.Quantity, error) {
	name := c.selectedName()
	if name == "" {
		return nil, fmt.Errorf("%w: no quantity selected", types.ErrQuantityMissing)
	}
	return c.model.Lookup(name)
}

// nativeValue converts a control write into the quantity's scalar type.
func nativeValue(meta *types.AttributeMeta, v any) (any, error) {
	if meta.DataFormat != types.FormatScalar || meta.DataType == types.TypeUnknown {
		return v, nil
	}
	return types.Convert(meta.DataType, v)
}

// Init installs one command per test action.
func (c *ControlDevice) Init(ctx context.Context, rt host.Runtime) error {
	m := c.model
	m.Monitor().Lock()
	names := m.TestActionNames()
	m.Monitor().Unlock()

	for _, name := range names {
		if err := rt.AddCommand(c.command(name)); err != nil {
			return fmt.Errorf("failed to add test command %q: %w", name, err)
		}
	}

	rt.SetState(types.StateOn)
	c.logger.Info("Control device initialized",
		zap.String("device", rt.Name()),
		zap.Int("test_commands", len(names)),
		zap.Strings("fields", c.fields))
	return nil
}

func (c *ControlDevice) command(name string) host.Command {
	meta, ok := c.asm.commands[model.TestActionPrefix+name]
	if !ok {
		meta = types.CommandMeta{DtypeIn: types.TypeString, DtypeOut: types.TypeString}
	}
	m := c.model
	return host.Command{
		Name:     name,
		DtypeIn:  meta.DtypeIn,
		DtypeOut: meta.DtypeOut,
		DocIn:    meta.DocIn,
		DocOut:   meta.DocOut,
		Handler: func(args any) (any, error) {
			m.Monitor().Lock()
			defer m.Monitor().Unlock()
			action, ok := m.TestAction(name)
			if !ok {
				return nil, fmt.Errorf("%w: test action %q", types.ErrNotFound, name)
			}
			return action(args)
		},
	}
}
