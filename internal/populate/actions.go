package populate

import (
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenSimCore/internal/model"
	"github.com/KevinKickass/OpenSimCore/internal/override"
	"github.com/KevinKickass/OpenSimCore/internal/types"
	"go.uber.org/zap"
)

// Reserved commands are provided by the device host itself.
var reservedCommands = map[string]bool{
	"State":  true,
	"Status": true,
	"Init":   true,
}

// IsReserved reports whether name is a command the host always provides.
func IsReserved(name string) bool {
	return reservedCommands[name]
}

// Actions binds a handler for every described command. A matching override
// handler wins over the declarative steps. Commands prefixed test_ resolve
// against the control providers. Test actions a control provider defines
// without metadata are bound as well.
func Actions(m *model.Model, commands map[string]types.CommandMeta, sim, control []override.Provider) error {
	for _, name := range sortedKeys(commands) {
		if IsReserved(name) {
			continue
		}
		cmd := commands[name]

		providers, prefix, lookup := sim, override.ActionPrefix, name
		if strings.HasPrefix(name, model.TestActionPrefix) {
			providers = control
			prefix = override.TestActionPrefix
			lookup = strings.TrimPrefix(name, model.TestActionPrefix)
		}

		handler, found, err := findHandler(providers, prefix, lookup)
		if err != nil {
			return err
		}
		source := "override"
		if !found {
			if handler, err = Synthesize(cmd); err != nil {
				return err
			}
			source = "declarative"
		}
		m.SetSimAction(name, handler)

		m.Logger().Debug("Action bound",
			zap.String("model", m.Name),
			zap.String("command", name),
			zap.String("source", source))
	}

	for _, p := range control {
		for _, name := range override.TestActionNames(p) {
			if hasTestAction(m, name) {
				continue
			}
			handler, found, err := override.FindHandler(p, override.TestActionPrefix, name)
			if err != nil {
				return err
			}
			if found {
				m.SetTestSimAction(name, handler)
			}
		}
	}
	return nil
}

func findHandler(providers []override.Provider, prefix, command string) (model.Handler, bool, error) {
	for _, p := range providers {
		handler, found, err := override.FindHandler(p, prefix, command)
		if err != nil {
			return nil, false, err
		}
		if found {
			return handler, true, nil
		}
	}
	return nil, false, nil
}

func hasTestAction(m *model.Model, name string) bool {
	for _, existing := range m.TestActionNames() {
		if strings.EqualFold(existing, name) {
			return true
		}
	}
	return false
}

// Hooks appends the update hooks the providers implement.
func Hooks(m *model.Model, providers []override.Provider) {
	for _, p := range providers {
		if pre, ok := p.(override.PreUpdater); ok {
			m.AppendPreUpdate(pre.PreUpdate)
		}
		if post, ok := p.(override.PostUpdater); ok {
			m.AppendPostUpdate(post.PostUpdate)
		}
	}
}

// Synthesize turns a command's declarative steps into a handler. Every step
// runs in order; the last output_return fired supplies the result.
func Synthesize(cmd types.CommandMeta) (model.Handler, error) {
	if err := checkSteps(cmd); err != nil {
		return nil, err
	}
	steps := append([]types.ActionStep(nil), cmd.Actions...)

	return func(m *model.Model, args any) (any, error) {
		temps := make(map[string]any)
		var ret any
		returned := false

		for _, step := range steps {
			switch step.Behaviour {
			case types.BehaviourInputTransform:
				temps[step.DestinationVariable] = args

			case types.BehaviourSideEffect:
				q, err := m.Lookup(step.DestinationQuantity)
				if err != nil {
					return nil, fmt.Errorf("command %q: %w", cmd.Name, err)
				}
				value := args
				if step.SourceVariable != "" {
					v, ok := temps[step.SourceVariable]
					if !ok {
						return nil, fmt.Errorf("command %q: variable %q is not set", cmd.Name, step.SourceVariable)
					}
					value = v
				}
				q.SetVal(value, m.Now())

			case types.BehaviourLongRunning:
				m.Sleep(step.ExecutionTime.Duration)

			case types.BehaviourOutputReturn:
				if step.SourceVariable != "" {
					v, ok := temps[step.SourceVariable]
					if !ok {
						return nil, fmt.Errorf("command %q: variable %q is not set", cmd.Name, step.SourceVariable)
					}
					ret, returned = v, true
					continue
				}
				q, err := m.Lookup(step.SourceQuantity)
				if err != nil {
					return nil, fmt.Errorf("command %q: %w", cmd.Name, err)
				}
				ret, returned = q.LastVal(), true
			}
		}
		if !returned {
			return types.DefaultReturn(cmd.DtypeOut), nil
		}
		return ret, nil
	}, nil
}

func checkSteps(cmd types.CommandMeta) error {
	for i, step := range cmd.Actions {
		switch step.Behaviour {
		case types.BehaviourInputTransform:
			if step.DestinationVariable == "" {
				return invalidStep(cmd, i, "input_transform needs destination_variable")
			}
		case types.BehaviourSideEffect:
			if step.DestinationQuantity == "" {
				return invalidStep(cmd, i, "side_effect needs destination_quantity")
			}
		case types.BehaviourLongRunning:
			if step.ExecutionTime.Duration < 0 {
				return invalidStep(cmd, i, "long_running needs a non-negative execution_time_secs")
			}
		case types.BehaviourOutputReturn:
			hasVar, hasQty := step.SourceVariable != "", step.SourceQuantity != ""
			if hasVar == hasQty {
				return invalidStep(cmd, i, "output_return needs exactly one of source_variable or source_quantity")
			}
		default:
			return invalidStep(cmd, i, fmt.Sprintf("unknown behaviour %q", step.Behaviour))
		}
	}
	return nil
}

func invalidStep(cmd types.CommandMeta, i int, msg string) error {
	return fmt.Errorf("%w: command %q step %d: %s", types.ErrInvalidAction, cmd.Name, i, msg)
}
