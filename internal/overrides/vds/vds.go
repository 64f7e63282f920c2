// Package vds simulates a video display system camera with stored
// pan/tilt/zoom/focus presets.
package vds

import (
	"fmt"
	"sort"

	"github.com/KevinKickass/OpenSimCore/internal/model"
	"github.com/KevinKickass/OpenSimCore/internal/override"
	"github.com/KevinKickass/OpenSimCore/internal/types"
)

const (
	ModuleName = "vds_override"
	ClassName  = "OverrideVds"
)

// CameraPower is the quantity gating camera movement.
const CameraPower = "camera_power_on"

// PresetsKey is the Model.Memory slot holding the preset table.
const PresetsKey = "presets"

// PresetQuantities are captured by PresetSet and restored by PresetGoto.
var PresetQuantities = []string{"pan_position", "tilt_position", "zoom_position", "focus_position"}

// Preset is a snapshot of the camera position quantities.
type Preset map[string]any

func init() {
	override.Register(ModuleName, ClassName, func() override.Provider { return &Override{} })
}

type Override struct{}

func (o *Override) Actions() map[string]model.Handler {
	return map[string]model.Handler{
		"action_camerapoweron":  power(true),
		"action_camerapoweroff": power(false),
		"action_presetset":      o.presetSet,
		"action_presetgoto":     o.presetGoto,
		"action_presetclear":    o.presetClear,
		"action_presetlist":     o.presetList,
	}
}

func power(on bool) model.Handler {
	return func(m *model.Model, _ any) (any, error) {
		q, err := m.Lookup(CameraPower)
		if err != nil {
			return nil, err
		}
		q.SetVal(on, m.Now())
		return nil, nil
	}
}

// Presets returns the preset table of m, creating it on first use.
func Presets(m *model.Model) map[int]Preset {
	if table, ok := m.Memory[PresetsKey].(map[int]Preset); ok {
		return table
	}
	table := make(map[int]Preset)
	m.Memory[PresetsKey] = table
	return table
}

func (o *Override) presetSet(m *model.Model, args any) (any, error) {
	id, err := presetID(args)
	if err != nil {
		return nil, err
	}
	snapshot := make(Preset, len(PresetQuantities))
	for _, name := range PresetQuantities {
		q, err := m.Lookup(name)
		if err != nil {
			return nil, err
		}
		snapshot[name] = q.LastVal()
	}
	Presets(m)[id] = snapshot
	return nil, nil
}

func (o *Override) presetGoto(m *model.Model, args any) (any, error) {
	id, err := presetID(args)
	if err != nil {
		return nil, err
	}
	if err := requirePower(m); err != nil {
		return nil, err
	}
	snapshot, ok := Presets(m)[id]
	if !ok {
		return nil, fmt.Errorf("preset %d is not set", id)
	}

	now := m.Now()
	for _, name := range PresetQuantities {
		q, err := m.Lookup(name)
		if err != nil {
			return nil, err
		}
		q.SetVal(snapshot[name], now)
	}
	return nil, nil
}

func (o *Override) presetClear(m *model.Model, args any) (any, error) {
	id, err := presetID(args)
	if err != nil {
		return nil, err
	}
	delete(Presets(m), id)
	return nil, nil
}

func (o *Override) presetList(m *model.Model, _ any) (any, error) {
	ids := make([]int, 0, len(Presets(m)))
	for id := range Presets(m) {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]int16, len(ids))
	for i, id := range ids {
		out[i] = int16(id)
	}
	return out, nil
}

func presetID(args any) (int, error) {
	id, ok := types.ToInt(args)
	if !ok || id < 0 {
		return 0, fmt.Errorf("invalid preset id %v", args)
	}
	return id, nil
}

func requirePower(m *model.Model) error {
	q, err := m.Lookup(CameraPower)
	if err != nil {
		return err
	}
	if on, _ := q.LastVal().(bool); !on {
		return fmt.Errorf("%w: camera is powered off", types.ErrModeViolation)
	}
	return nil
}
