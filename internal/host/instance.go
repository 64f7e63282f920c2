package host

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/KevinKickass/OpenSimCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Instance is one live device. Reads, writes and commands are serialized
// on the instance.
type Instance struct {
	ID    uuid.UUID
	Name  string
	Class string

	behaviour Behaviour
	db        PropertyDB
	logger    *zap.Logger

	// exec serializes request handling; reg guards the declaration tables
	// so behaviours may declare from inside a handler.
	exec sync.Mutex
	reg  sync.RWMutex

	attributes map[string]*Attribute
	attrOrder  []string
	commands   map[string]*Command
	rejected   map[string]error
	state      types.DevState
	status     string
}

func newInstance(class Class, name string, db PropertyDB, logger *zap.Logger) *Instance {
	return &Instance{
		ID:         uuid.New(),
		Name:       name,
		Class:      class.Name,
		behaviour:  class.New(),
		db:         db,
		logger:     logger.With(zap.String("device", name)),
		attributes: make(map[string]*Attribute),
		commands:   make(map[string]*Command),
		rejected:   make(map[string]error),
		state:      types.StateUnknown,
	}
}

// declare installs the class-level attributes and commands. Rejected
// attributes are recorded and logged; the device still comes up.
func (d *Instance) declare(class Class) error {
	for _, a := range class.Attributes {
		if err := d.addAttribute(a, false); err != nil {
			d.rejected[a.Meta.Name] = err
			d.logger.Warn("Attribute rejected",
				zap.String("attribute", a.Meta.Name),
				zap.Error(err))
		}
	}
	for _, c := range class.Commands {
		if err := d.addCommand(c, false); err != nil {
			return err
		}
	}
	return nil
}

func (d *Instance) initialize(ctx context.Context) error {
	d.exec.Lock()
	defer d.exec.Unlock()
	d.state = types.StateInit
	if err := d.behaviour.Init(ctx, instanceRuntime{d}); err != nil {
		d.state = types.StateFault
		return err
	}
	return nil
}

func (d *Instance) AddAttribute(a Attribute) error {
	if err := checkDynamic(a.Meta); err != nil {
		return err
	}
	return d.addAttribute(a, true)
}

func checkDynamic(meta types.AttributeMeta) error {
	if meta.DataType.Element() == types.TypeEnum {
		return fmt.Errorf("%w: enum attribute %q must be declared on the class",
			types.ErrAttributeRegistration, meta.Name)
	}
	if meta.DataFormat != types.FormatScalar {
		return fmt.Errorf("%w: %s attribute %q must be declared on the class",
			types.ErrAttributeRegistration, meta.DataFormat, meta.Name)
	}
	return nil
}

func (d *Instance) addAttribute(a Attribute, dynamic bool) error {
	name := a.Meta.Name
	switch {
	case name == "":
		return fmt.Errorf("%w: attribute has no name", types.ErrAttributeRegistration)
	case isReserved(name):
		return fmt.Errorf("%w: %q is reserved", types.ErrAttributeRegistration, name)
	case a.Meta.DataType == types.TypeUnknown:
		return fmt.Errorf("%w: attribute %q has no data type", types.ErrAttributeRegistration, name)
	case a.Meta.DataFormat == types.FormatImage:
		return fmt.Errorf("%w: IMAGE attribute %q is not supported", types.ErrAttributeRegistration, name)
	case a.Read == nil:
		return fmt.Errorf("%w: attribute %q has no read callback", types.ErrAttributeRegistration, name)
	case a.Meta.Writable.CanWrite() && a.Write == nil:
		return fmt.Errorf("%w: writable attribute %q has no write callback", types.ErrAttributeRegistration, name)
	}

	d.reg.Lock()
	defer d.reg.Unlock()
	if _, exists := d.attributes[name]; exists {
		return fmt.Errorf("%w: attribute %q already exists", types.ErrAttributeRegistration, name)
	}
	a.Meta = a.Meta.Clone()
	a.dynamic = dynamic
	d.attributes[name] = &a
	d.attrOrder = append(d.attrOrder, name)
	return nil
}

func (d *Instance) AddCommand(c Command) error {
	return d.addCommand(c, true)
}

func (d *Instance) addCommand(c Command, dynamic bool) error {
	switch {
	case c.Name == "":
		return fmt.Errorf("command has no name")
	case isReserved(c.Name):
		return fmt.Errorf("command %q is reserved", c.Name)
	case c.Handler == nil:
		return fmt.Errorf("command %q has no handler", c.Name)
	}

	d.reg.Lock()
	defer d.reg.Unlock()
	if _, exists := d.commands[c.Name]; exists {
		return fmt.Errorf("command %q already exists", c.Name)
	}
	c.dynamic = dynamic
	d.commands[c.Name] = &c
	return nil
}

func (d *Instance) Rejected() map[string]error {
	d.reg.RLock()
	defer d.reg.RUnlock()
	out := make(map[string]error, len(d.rejected))
	for k, v := range d.rejected {
		out[k] = v
	}
	return out
}

func (d *Instance) SetState(s types.DevState) {
	d.state = s
}

func (d *Instance) SetStatus(s string) {
	d.status = s
}

func (d *Instance) PropertyDB() PropertyDB {
	return d.db
}

// State returns the device state under the execution lock.
func (d *Instance) State() types.DevState {
	d.exec.Lock()
	defer d.exec.Unlock()
	return d.state
}

func (d *Instance) Status() string {
	d.exec.Lock()
	defer d.exec.Unlock()
	return d.statusText()
}

func (d *Instance) statusText() string {
	if d.status != "" {
		return d.status
	}
	return fmt.Sprintf("The device is in %s state.", d.state)
}

// AttributeNames lists attributes in declaration order.
func (d *Instance) AttributeNames() []string {
	d.reg.RLock()
	defer d.reg.RUnlock()
	return append([]string(nil), d.attrOrder...)
}

// Attribute returns a copy of the attribute's declared metadata.
func (d *Instance) Attribute(name string) (types.AttributeMeta, bool) {
	d.reg.RLock()
	defer d.reg.RUnlock()
	a, ok := d.attributes[name]
	if !ok {
		return types.AttributeMeta{}, false
	}
	return a.Meta.Clone(), true
}

// CommandNames lists commands sorted by name, reserved commands included.
func (d *Instance) CommandNames() []string {
	d.reg.RLock()
	defer d.reg.RUnlock()
	names := []string{InitName, StateName, StatusName}
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Command returns the declaration of a command. Reserved commands are
// synthesized.
func (d *Instance) Command(name string) (Command, bool) {
	switch name {
	case StateName:
		return Command{Name: name, DtypeIn: types.TypeVoid, DtypeOut: types.TypeState, DocOut: "Device state"}, true
	case StatusName:
		return Command{Name: name, DtypeIn: types.TypeVoid, DtypeOut: types.TypeString, DocOut: "Device status"}, true
	case InitName:
		return Command{Name: name, DtypeIn: types.TypeVoid, DtypeOut: types.TypeVoid}, true
	}
	d.reg.RLock()
	defer d.reg.RUnlock()
	c, ok := d.commands[name]
	if !ok {
		return Command{}, false
	}
	return *c, true
}

func (d *Instance) alwaysExecuted() {
	if hook, ok := d.behaviour.(AlwaysExecutor); ok {
		hook.AlwaysExecuted()
	}
}

// ReadAttribute runs the always-executed hook and reads one attribute.
func (d *Instance) ReadAttribute(name string) (Reading, error) {
	d.exec.Lock()
	defer d.exec.Unlock()
	d.alwaysExecuted()
	return d.read(name)
}

// ReadAll runs the always-executed hook once and reads every attribute in
// declaration order. Failing reads are logged and skipped.
func (d *Instance) ReadAll() map[string]Reading {
	d.exec.Lock()
	defer d.exec.Unlock()
	d.alwaysExecuted()

	out := make(map[string]Reading)
	for _, name := range d.AttributeNames() {
		r, err := d.read(name)
		if err != nil {
			d.logger.Debug("Attribute read failed", zap.String("attribute", name), zap.Error(err))
			continue
		}
		out[name] = r
	}
	return out
}

func (d *Instance) read(name string) (Reading, error) {
	switch name {
	case StateName:
		return Reading{Value: d.state, Quality: QualityValid}, nil
	case StatusName:
		return Reading{Value: d.statusText(), Quality: QualityValid}, nil
	}

	d.reg.RLock()
	a, ok := d.attributes[name]
	d.reg.RUnlock()
	if !ok {
		return Reading{}, fmt.Errorf("%w: attribute %q on %s", types.ErrNotFound, name, d.Name)
	}
	r, err := a.Read()
	if err != nil {
		return Reading{}, fmt.Errorf("failed to read %s/%s: %w", d.Name, name, err)
	}
	return r, nil
}

// WriteAttribute converts v to the attribute's native type and writes it.
func (d *Instance) WriteAttribute(name string, v any) error {
	d.exec.Lock()
	defer d.exec.Unlock()

	d.reg.RLock()
	a, ok := d.attributes[name]
	d.reg.RUnlock()
	if !ok {
		return fmt.Errorf("%w: attribute %q on %s", types.ErrNotFound, name, d.Name)
	}
	if !a.Meta.Writable.CanWrite() {
		return fmt.Errorf("attribute %s/%s is not writable", d.Name, name)
	}

	value, err := convertValue(a.Meta, v)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", d.Name, name, err)
	}
	if err := a.Write(value); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", d.Name, name, err)
	}
	return nil
}

// RunCommand executes a command. Handler failures are reported as
// ErrCommandFailed wrapping the cause.
func (d *Instance) RunCommand(ctx context.Context, name string, args any) (any, error) {
	d.exec.Lock()
	defer d.exec.Unlock()

	switch name {
	case StateName:
		return d.state, nil
	case StatusName:
		return d.statusText(), nil
	case InitName:
		return nil, d.reinit(ctx)
	}

	d.reg.RLock()
	c, ok := d.commands[name]
	d.reg.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: command %q on %s", types.ErrNotFound, name, d.Name)
	}

	var in any
	if c.DtypeIn != types.TypeVoid && c.DtypeIn != types.TypeUnknown {
		converted, err := types.Convert(c.DtypeIn, args)
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %w", types.ErrCommandFailed, d.Name, name, err)
		}
		in = converted
	}

	out, err := c.Handler(in)
	if err != nil {
		d.logger.Info("Command failed", zap.String("command", name), zap.Error(err))
		return nil, fmt.Errorf("%w: %s/%s: %w", types.ErrCommandFailed, d.Name, name, err)
	}

	if c.DtypeOut == types.TypeVoid || c.DtypeOut == types.TypeUnknown || out == nil {
		return nil, nil
	}
	converted, err := types.Convert(c.DtypeOut, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s returned %T: %w", types.ErrCommandFailed, d.Name, name, out, err)
	}
	return converted, nil
}

// reinit drops dynamic declarations and runs the behaviour's Init again.
func (d *Instance) reinit(ctx context.Context) error {
	d.reg.Lock()
	order := d.attrOrder[:0]
	for _, name := range d.attrOrder {
		if d.attributes[name].dynamic {
			delete(d.attributes, name)
			continue
		}
		order = append(order, name)
	}
	d.attrOrder = order
	for name, c := range d.commands {
		if c.dynamic {
			delete(d.commands, name)
		}
	}
	d.reg.Unlock()

	d.state = types.StateInit
	if err := d.behaviour.Init(ctx, instanceRuntime{d}); err != nil {
		d.state = types.StateFault
		return fmt.Errorf("%w: %s/Init: %w", types.ErrCommandFailed, d.Name, err)
	}
	d.logger.Info("Device reinitialized")
	return nil
}
