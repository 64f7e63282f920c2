package override

import (
	"fmt"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenSimCore/internal/model"
	"github.com/KevinKickass/OpenSimCore/internal/types"
	"go.uber.org/zap"
)

// Handler name prefixes. Keys in Provider.Actions are the prefix followed
// by the lower-cased command name.
const (
	ActionPrefix     = "action_"
	TestActionPrefix = "test_action_"
)

// Provider supplies custom command behaviour for a device class.
type Provider interface {
	Actions() map[string]model.Handler
}

// PreUpdater is implemented by providers that run before quantities step.
type PreUpdater interface {
	PreUpdate(m *model.Model, simTime, dt float64)
}

// PostUpdater is implemented by providers that run after quantities step.
type PostUpdater interface {
	PostUpdate(m *model.Model, simTime, dt float64)
}

type Factory func() Provider

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes an override class available under module and class name.
// Override packages call it from init.
func Register(module, class string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[key(module, class)] = f
}

func lookupFactory(module, class string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[key(module, class)]
	return f, ok
}

func key(module, class string) string {
	return module + "." + class
}

type symbolLookup interface {
	Lookup(name string) (plugin.Symbol, error)
}

// Loader instantiates override providers for the slots named in metadata.
type Loader struct {
	logger *zap.Logger
	open   func(path string) (symbolLookup, error)
}

func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{
		logger: logger,
		open: func(path string) (symbolLookup, error) {
			return plugin.Open(path)
		},
	}
}

// Load returns one provider per slot name. Registered classes win; a slot
// whose module directory is set falls back to <dir>/<module>.so exporting
// New<Class>.
func (l *Loader) Load(slots map[string]types.OverrideMeta) (map[string]Provider, error) {
	out := make(map[string]Provider, len(slots))
	for name, meta := range slots {
		provider, err := l.instantiate(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to load override %q: %w", name, err)
		}
		out[name] = provider
		l.logger.Info("Override loaded",
			zap.String("slot", name),
			zap.String("module", meta.ModuleName),
			zap.String("class", meta.ClassName))
	}
	return out, nil
}

func (l *Loader) instantiate(meta types.OverrideMeta) (Provider, error) {
	if f, ok := lookupFactory(meta.ModuleName, meta.ClassName); ok {
		return f(), nil
	}

	if meta.ModuleDirectory == "" || meta.ModuleDirectory == "None" {
		return nil, fmt.Errorf("class %s.%s is not registered", meta.ModuleName, meta.ClassName)
	}

	path := filepath.Join(meta.ModuleDirectory, meta.ModuleName+".so")
	lib, err := l.open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin %s: %w", path, err)
	}
	sym, err := lib.Lookup("New" + meta.ClassName)
	if err != nil {
		return nil, fmt.Errorf("plugin %s has no constructor: %w", path, err)
	}

	switch ctor := sym.(type) {
	case func() Provider:
		return ctor(), nil
	case *Factory:
		return (*ctor)(), nil
	}
	return nil, fmt.Errorf("plugin %s: New%s has type %T, want func() override.Provider",
		path, meta.ClassName, sym)
}

// FindHandler looks up prefix+lower(command) on p. More than one key that
// matches case-insensitively, or a single match that is not lower-case, is
// an ErrOverrideCollision.
func FindHandler(p Provider, prefix, command string) (model.Handler, bool, error) {
	want := prefix + strings.ToLower(command)
	actions := p.Actions()

	var matches []string
	for name := range actions {
		if strings.EqualFold(name, want) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return nil, false, nil
	case 1:
		if matches[0] != want {
			return nil, false, fmt.Errorf("%w: handler %q for command %q must be lower-case %q",
				types.ErrOverrideCollision, matches[0], command, want)
		}
		return actions[want], true, nil
	default:
		return nil, false, fmt.Errorf("%w: handlers %v for command %q differ only in case",
			types.ErrOverrideCollision, matches, command)
	}
}

// TestActionNames lists the test-action commands a provider defines, with
// the prefix stripped.
func TestActionNames(p Provider) []string {
	var names []string
	for name := range p.Actions() {
		if strings.HasPrefix(name, TestActionPrefix) {
			names = append(names, strings.TrimPrefix(name, TestActionPrefix))
		}
	}
	sort.Strings(names)
	return names
}

// Select returns the providers of the main (control=false) or control slot
// family, ordered by slot name.
func Select(providers map[string]Provider, slots map[string]types.OverrideMeta, control bool) []Provider {
	names := make([]string, 0, len(providers))
	for name := range providers {
		meta, ok := slots[name]
		if !ok || meta.Name == "" {
			meta.Name = name
		}
		if control && meta.IsControl() || !control && meta.IsSim() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]Provider, 0, len(names))
	for _, name := range names {
		out = append(out, providers[name])
	}
	return out
}
