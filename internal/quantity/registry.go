package quantity

import (
	"fmt"
	"sort"
	"sync"

	"github.com/KevinKickass/OpenSimCore/internal/types"
)

const (
	KindGaussianSlewLimited = "GaussianSlewLimited"
	KindConstant            = "ConstantQuantity"
)

// Factory builds a quantity from its attribute metadata. start is the
// initial value chosen by the caller; nil selects the class default.
type Factory func(meta *types.AttributeMeta, start any, startTime float64) (Quantity, error)

type kind struct {
	factory  Factory
	required []string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]kind{
		KindGaussianSlewLimited: {
			factory:  gaussianFromMeta,
			required: []string{types.PropMinBound, types.PropMaxBound, types.PropMaxSlewRate, types.PropMean, types.PropStdDev},
		},
		KindConstant: {
			factory: func(meta *types.AttributeMeta, start any, startTime float64) (Quantity, error) {
				return NewConstant(meta, start, startTime), nil
			},
		},
	}
)

// Register adds or replaces a quantity class. required lists the metadata
// keys that must be present before the factory is called.
func Register(name string, f Factory, required ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = kind{factory: f, required: required}
}

// Kinds returns the registered class names, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiredParams returns the metadata keys a class needs.
func RequiredParams(name string) ([]string, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	k, ok := registry[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), k.required...), true
}

// New instantiates the named class after checking its required parameters.
func New(name string, meta *types.AttributeMeta, start any, startTime float64) (Quantity, error) {
	registryMu.RLock()
	k, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown quantity simulation type %q (known: %v)", name, Kinds())
	}

	var missing []string
	for _, key := range k.required {
		if !meta.Has(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: attribute %q (%s) needs %v",
			types.ErrMissingBound, meta.Name, name, missing)
	}

	return k.factory(meta, start, startTime)
}

func gaussianFromMeta(meta *types.AttributeMeta, start any, startTime float64) (Quantity, error) {
	var params GaussianParams
	fields := map[string]*float64{
		types.PropMean:        &params.Mean,
		types.PropStdDev:      &params.StdDev,
		types.PropMaxSlewRate: &params.MaxSlewRate,
		types.PropMinBound:    &params.MinBound,
		types.PropMaxBound:    &params.MaxBound,
	}
	for key, dst := range fields {
		f, ok := meta.Float(key)
		if !ok {
			return nil, fmt.Errorf("%w: attribute %q has non-numeric %s %q",
				types.ErrMissingBound, meta.Name, key, meta.Get(key))
		}
		*dst = f
	}

	initial := params.Mean
	if f, ok := types.ToFloat(start); ok && start != nil {
		initial = f
	}

	q, err := NewGaussianSlewLimited(meta, params, initial, startTime)
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", meta.Name, err)
	}
	return q, nil
}
