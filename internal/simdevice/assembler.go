// Package simdevice turns a populated model into host device classes: the
// simulated device itself and its control device.
package simdevice

import (
	"fmt"

	"github.com/KevinKickass/OpenSimCore/internal/host"
	"github.com/KevinKickass/OpenSimCore/internal/model"
	"github.com/KevinKickass/OpenSimCore/internal/parsers"
	"github.com/KevinKickass/OpenSimCore/internal/types"
	"go.uber.org/zap"
)

// ControlClassSuffix is appended to the main class name for the control
// device class.
const ControlClassSuffix = "SimControl"

// NotAdded records an attribute that is not exposed on the main device.
type NotAdded struct {
	Name string
	Err  error
}

// Assembly is the pair of classes built for one model.
type Assembly struct {
	Model   *model.Model
	Main    host.Class
	Control host.Class

	commands map[string]types.CommandMeta
	skipped  []NotAdded
	logger   *zap.Logger

	device  *Device
	control *ControlDevice
}

// Device returns the main device behaviour.
func (a *Assembly) Device() *Device { return a.device }

func (a *Assembly) ControlDevice() *ControlDevice { return a.control }

type Assembler struct {
	logger *zap.Logger
}

func NewAssembler(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger}
}

// Assemble builds the main and control classes for m. Enum and SPECTRUM
// attributes are declared on the class; IMAGE attributes are skipped.
func (a *Assembler) Assemble(m *model.Model, merged parsers.Merged) (*Assembly, error) {
	className := merged.ClassName
	if className == "" {
		className = m.Name
	}
	if className == "" {
		return nil, fmt.Errorf("cannot assemble a device without a class name")
	}

	asm := &Assembly{
		Model:    m,
		commands: merged.Commands,
		logger:   a.logger.With(zap.String("class", className)),
	}

	m.Monitor().Lock()
	defer m.Monitor().Unlock()

	var static []host.Attribute
	for _, name := range m.QuantityNames() {
		q, _ := m.Quantity(name)
		meta := q.Meta()
		switch {
		case meta.DataFormat == types.FormatImage:
			asm.skipped = append(asm.skipped, NotAdded{
				Name: name,
				Err:  fmt.Errorf("%w: IMAGE attribute %q is not supported", types.ErrAttributeRegistration, name),
			})
			asm.logger.Warn("Attribute not added", zap.String("attribute", name), zap.String("reason", "IMAGE format"))
		case isStatic(*meta):
			static = append(static, quantityAttribute(m, name))
		}
	}

	asm.device = newDevice(asm)
	asm.Main = host.Class{
		Name:       className,
		Attributes: static,
		New:        func() host.Behaviour { return asm.device },
	}

	asm.control = newControlDevice(asm)
	controlAttrs := asm.control.attributes()
	asm.Control = host.Class{
		Name:       className + ControlClassSuffix,
		Attributes: controlAttrs,
		New:        func() host.Behaviour { return asm.control },
	}

	asm.logger.Info("Device assembled",
		zap.Int("static_attributes", len(static)),
		zap.Int("skipped", len(asm.skipped)),
		zap.Int("control_attributes", len(controlAttrs)))
	return asm, nil
}

// isStatic reports whether an attribute must be declared at class
// definition time.
func isStatic(meta types.AttributeMeta) bool {
	return meta.DataType.Element() == types.TypeEnum || meta.DataFormat == types.FormatSpectrum
}

// quantityAttribute exposes a quantity's committed state. Writable
// attributes write through SetVal.
func quantityAttribute(m *model.Model, name string) host.Attribute {
	q, _ := m.Quantity(name)
	attr := host.Attribute{
		Meta: q.Meta().Clone(),
		Read: func() (host.Reading, error) {
			m.Monitor().Lock()
			defer m.Monitor().Unlock()
			state, ok := m.QuantityState(name)
			if !ok {
				return host.Reading{}, fmt.Errorf("%w: %q", types.ErrQuantityMissing, name)
			}
			return host.Reading{Value: state.Value, Timestamp: state.Timestamp, Quality: host.QualityValid}, nil
		},
	}
	if attr.Meta.Writable.CanWrite() {
		attr.Write = func(v any) error {
			m.Monitor().Lock()
			defer m.Monitor().Unlock()
			q, err := m.Lookup(name)
			if err != nil {
				return err
			}
			q.SetVal(v, m.Now())
			return nil
		}
	}
	return attr
}
