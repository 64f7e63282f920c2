package populate

import (
	"fmt"

	"github.com/KevinKickass/OpenSimCore/internal/model"
	"github.com/KevinKickass/OpenSimCore/internal/override"
	"github.com/KevinKickass/OpenSimCore/internal/parsers"
	"go.uber.org/zap"
)

// Result records what Build installed.
type Result struct {
	Merged    parsers.Merged
	Providers map[string]override.Provider
	Sim       []override.Provider
	Control   []override.Provider
}

// Build populates m from parsed description files in order. Quantities and
// properties are installed per file so later files refine earlier ones;
// commands and overrides are resolved once over the merged view.
func Build(m *model.Model, files []parsers.Parser, loader *override.Loader) (*Result, error) {
	for _, p := range files {
		if err := Quantities(m, p.AttributeMetadata()); err != nil {
			return nil, fmt.Errorf("failed to populate quantities from %s: %w", p.Source(), err)
		}
		Properties(m, p.PropertyMetadata())
	}

	merged := parsers.Merge(files)

	providers := map[string]override.Provider{}
	if len(merged.Overrides) > 0 {
		if loader == nil {
			return nil, fmt.Errorf("model %q names overrides but no loader was given", m.Name)
		}
		var err error
		if providers, err = loader.Load(merged.Overrides); err != nil {
			return nil, err
		}
	}
	sim := override.Select(providers, merged.Overrides, false)
	control := override.Select(providers, merged.Overrides, true)

	if err := Actions(m, merged.Commands, sim, control); err != nil {
		return nil, fmt.Errorf("failed to bind actions for %q: %w", m.Name, err)
	}
	Hooks(m, sim)

	m.Logger().Info("Model populated",
		zap.String("model", m.Name),
		zap.String("class", merged.ClassName),
		zap.Int("quantities", len(m.QuantityNames())),
		zap.Int("actions", len(m.ActionNames())),
		zap.Int("test_actions", len(m.TestActionNames())))

	return &Result{Merged: merged, Providers: providers, Sim: sim, Control: control}, nil
}
