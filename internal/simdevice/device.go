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

// Device is the simulated device behaviour.
type Device struct {
	asm      *Assembly
	model    *model.Model
	notAdded []NotAdded
	logger   *zap.Logger
}

func newDevice(asm *Assembly) *Device {
	return &Device{asm: asm, model: asm.Model, logger: asm.logger}
}

func (d *Device) Model() *model.Model { return d.model }

// AttributesNotAdded lists attributes that are not exposed, with the reason.
func (d *Device) AttributesNotAdded() []NotAdded {
	return append([]NotAdded(nil), d.notAdded...)
}

// Init publishes properties, resets quantity parameters to their declared
// defaults, then installs the dynamic attributes and the commands.
func (d *Device) Init(ctx context.Context, rt host.Runtime) error {
	m := d.model
	d.notAdded = append([]NotAdded(nil), d.asm.skipped...)
	for _, name := range sortedKeys(rt.Rejected()) {
		d.notAdded = append(d.notAdded, NotAdded{Name: name, Err: rt.Rejected()[name]})
	}

	if err := d.publishProperties(ctx, rt); err != nil {
		return err
	}

	m.Monitor().Lock()
	d.resetParameters()
	var dynamic []string
	for _, name := range m.QuantityNames() {
		q, _ := m.Quantity(name)
		if meta := q.Meta(); meta.DataFormat != types.FormatImage && !isStatic(*meta) {
			dynamic = append(dynamic, name)
		}
	}
	actions := m.ActionNames()
	m.Monitor().Unlock()

	for _, name := range dynamic {
		if err := rt.AddAttribute(quantityAttribute(m, name)); err != nil {
			d.notAdded = append(d.notAdded, NotAdded{Name: name, Err: err})
			d.logger.Warn("Attribute not added", zap.String("attribute", name), zap.Error(err))
		}
	}

	for _, name := range actions {
		if err := rt.AddCommand(d.command(name)); err != nil {
			return fmt.Errorf("failed to add command %q: %w", name, err)
		}
	}

	rt.SetState(types.StateOn)
	rt.SetStatus("")
	d.logger.Info("Simulated device initialized",
		zap.String("device", rt.Name()),
		zap.Int("attributes_not_added", len(d.notAdded)),
		zap.Int("commands", len(actions)))
	return nil
}

func (d *Device) publishProperties(ctx context.Context, rt host.Runtime) error {
	props := make(map[string][]string)
	for _, p := range d.model.Properties() {
		props[p.Name] = append([]string(nil), p.DefaultPropValue...)
	}
	if len(props) == 0 {
		return nil
	}
	if err := rt.PropertyDB().PutDeviceProperty(ctx, rt.Name(), props); err != nil {
		return fmt.Errorf("failed to publish properties of %s: %w", rt.Name(), err)
	}
	return nil
}

// resetParameters sets every adjustable parameter to its metadata value,
// 0 when absent or non-numeric. Quantity state (last value and time) is
// left alone.
func (d *Device) resetParameters() {
	m := d.model
	for _, name := range m.QuantityNames() {
		q, _ := m.Quantity(name)
		meta := q.Meta()
		for _, field := range q.AdjustableAttributes() {
			if field == quantity.FieldLastVal || field == quantity.FieldLastUpdateTime {
				continue
			}
			value, _ := meta.Float(field)
			if err := q.SetAttribute(field, value, m.Now()); err != nil {
				d.logger.Warn("Parameter reset failed",
					zap.String("quantity", name),
					zap.String("field", field),
					zap.Error(err))
			}
		}
	}
}

func (d *Device) command(name string) host.Command {
	meta, ok := d.asm.commands[name]
	if !ok {
		meta = types.CommandMeta{Name: name, DtypeIn: types.TypeVoid, DtypeOut: types.TypeVoid}
	}
	m := d.model
	return host.Command{
		Name:     name,
		DtypeIn:  meta.DtypeIn,
		DtypeOut: meta.DtypeOut,
		DocIn:    meta.DocIn,
		DocOut:   meta.DocOut,
		Handler: func(args any) (any, error) {
			m.Monitor().Lock()
			defer m.Monitor().Unlock()
			action, ok := m.Action(name)
			if !ok {
				return nil, fmt.Errorf("%w: action %q", types.ErrNotFound, name)
			}
			return action(args)
		},
	}
}

// AlwaysExecuted advances the model before reads.
func (d *Device) AlwaysExecuted() {
	d.model.Monitor().Lock()
	defer d.model.Monitor().Unlock()
	d.model.Update()
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
