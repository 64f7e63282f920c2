package host

import (
	"context"

	"github.com/KevinKickass/OpenSimCore/internal/types"
)

// Runtime is the host surface a device implementation sees.
type Runtime interface {
	Name() string

	// AddAttribute installs a dynamic attribute. Enum, SPECTRUM and IMAGE
	// attributes must be declared on the Class instead.
	AddAttribute(a Attribute) error
	AddCommand(c Command) error

	// Rejected lists class attributes the host refused, keyed by name.
	Rejected() map[string]error

	SetState(s types.DevState)
	SetStatus(s string)
	PropertyDB() PropertyDB
}

// Behaviour is a device implementation.
type Behaviour interface {
	Init(ctx context.Context, rt Runtime) error
}

// AlwaysExecutor is implemented by behaviours that need a hook before every
// attribute read.
type AlwaysExecutor interface {
	AlwaysExecuted()
}

// Class is a device class definition. Attributes and Commands are fixed at
// definition time; New builds the implementation for each instance.
type Class struct {
	Name       string
	Attributes []Attribute
	Commands   []Command
	New        func() Behaviour
}

// instanceRuntime is the Runtime handed to an instance's behaviour.
type instanceRuntime struct {
	*Instance
}

func (r instanceRuntime) Name() string { return r.Instance.Name }
