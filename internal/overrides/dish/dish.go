// Package dish simulates a dish element master: operating-mode transitions
// and slew-rate-limited pointing.
package dish

import (
	"fmt"
	"math"

	"github.com/KevinKickass/OpenSimCore/internal/model"
	"github.com/KevinKickass/OpenSimCore/internal/override"
	"github.com/KevinKickass/OpenSimCore/internal/types"
	"go.uber.org/zap"
)

const (
	ModuleName       = "dish_override"
	ClassName        = "OverrideDish"
	ControlClassName = "OverrideDishControl"
)

// Quantity names.
const (
	DishMode          = "dishMode"
	PointingState     = "pointingState"
	DesiredAzimuth    = "desiredAzimuth"
	DesiredElevation  = "desiredElevation"
	AchievedAzimuth   = "achievedAzimuth"
	AchievedElevation = "achievedElevation"
)

// Dish modes.
const (
	ModeOff         = "OFF"
	ModeStartup     = "STARTUP"
	ModeShutdown    = "SHUTDOWN"
	ModeStandbyLP   = "STANDBY-LP"
	ModeStandbyFP   = "STANDBY-FP"
	ModeMaintenance = "MAINTENANCE"
	ModeStow        = "STOW"
	ModeConfig      = "CONFIG"
	ModeOperate     = "OPERATE"
)

// Pointing states.
const (
	PointingReady = "READY"
	PointingSlew  = "SLEW"
	PointingTrack = "TRACK"
	PointingStow  = "STOW"
)

// Drive limits in degrees and degrees per second.
const (
	StowElevation   = 90.0
	MinElevation    = 15.0
	MaxElevation    = 90.0
	AzimuthSlewRate = 3.0
	ElevationRate   = 1.0
)

// allowedFrom lists, per target mode, the modes it may be entered from.
// A missing entry means any mode.
var allowedFrom = map[string][]string{
	ModeOperate:     {ModeStandbyFP},
	ModeStandbyFP:   {ModeStandbyLP, ModeStow, ModeOperate, ModeMaintenance},
	ModeStandbyLP:   {ModeOff, ModeStartup, ModeStandbyFP, ModeMaintenance, ModeStow, ModeConfig, ModeOperate},
	ModeMaintenance: {ModeStandbyLP, ModeStandbyFP},
}

func init() {
	override.Register(ModuleName, ClassName, func() override.Provider { return &Override{} })
	override.Register(ModuleName, ControlClassName, func() override.Provider { return &ControlOverride{} })
}

// Override fills the Sim slot of a DishElementMaster.
type Override struct{}

func (o *Override) Actions() map[string]model.Handler {
	return map[string]model.Handler{
		"action_setoperatemode":     o.enter(ModeOperate, PointingReady),
		"action_setstandbylpmode":   o.enter(ModeStandbyLP, PointingReady),
		"action_setstandbyfpmode":   o.enter(ModeStandbyFP, PointingReady),
		"action_setmaintenancemode": o.enter(ModeMaintenance, PointingReady),
		"action_setstowmode":        o.stow,
		"action_track":              o.track,
		"action_slew":               o.slew,
	}
}

func (o *Override) enter(target, pointing string) model.Handler {
	return func(m *model.Model, _ any) (any, error) {
		if err := checkTransition(m, target); err != nil {
			return nil, err
		}
		if err := m.SetEnum(DishMode, target); err != nil {
			return nil, err
		}
		return nil, m.SetEnum(PointingState, pointing)
	}
}

func (o *Override) stow(m *model.Model, _ any) (any, error) {
	if err := m.SetEnum(DishMode, ModeStow); err != nil {
		return nil, err
	}
	if err := m.SetEnum(PointingState, PointingStow); err != nil {
		return nil, err
	}
	q, err := m.Lookup(DesiredElevation)
	if err != nil {
		return nil, err
	}
	q.SetVal(StowElevation, m.Now())
	return nil, nil
}

func (o *Override) track(m *model.Model, _ any) (any, error) {
	if err := requireMode(m, ModeOperate, "track"); err != nil {
		return nil, err
	}
	return nil, m.SetEnum(PointingState, PointingTrack)
}

func (o *Override) slew(m *model.Model, args any) (any, error) {
	if err := requireMode(m, ModeOperate, "slew"); err != nil {
		return nil, err
	}
	az, el, err := position(args)
	if err != nil {
		return nil, err
	}
	if el < MinElevation || el > MaxElevation {
		return nil, fmt.Errorf("elevation %g outside [%g, %g]", el, MinElevation, MaxElevation)
	}

	now := m.Now()
	for name, v := range map[string]float64{DesiredAzimuth: az, DesiredElevation: el} {
		q, err := m.Lookup(name)
		if err != nil {
			return nil, err
		}
		q.SetVal(v, now)
	}
	return nil, m.SetEnum(PointingState, PointingSlew)
}

// PreUpdate drives the achieved position toward the desired one while the
// dish is moving.
func (o *Override) PreUpdate(m *model.Model, simTime, dt float64) {
	mode, err := m.EnumLabel(DishMode)
	if err != nil {
		return
	}
	pointing, err := m.EnumLabel(PointingState)
	if err != nil {
		return
	}
	moving := mode == ModeStow || mode == ModeOperate && (pointing == PointingSlew || pointing == PointingTrack)
	if !moving || dt <= 0 {
		return
	}

	azDone := drive(m, AchievedAzimuth, DesiredAzimuth, AzimuthSlewRate*dt, simTime)
	elDone := drive(m, AchievedElevation, DesiredElevation, ElevationRate*dt, simTime)
	if azDone && elDone && pointing == PointingSlew {
		if err := m.SetEnum(PointingState, PointingReady); err != nil {
			m.Logger().Warn("Pointing state update failed",
				zap.String("model", m.Name),
				zap.Error(err))
		}
	}
}

// drive moves achieved at most step toward desired and reports arrival.
func drive(m *model.Model, achieved, desired string, step, t float64) bool {
	qa, err := m.Lookup(achieved)
	if err != nil {
		return true
	}
	qd, err := m.Lookup(desired)
	if err != nil {
		return true
	}
	cur, ok := types.ToFloat(qa.LastVal())
	if !ok {
		return true
	}
	want, ok := types.ToFloat(qd.LastVal())
	if !ok {
		return true
	}

	delta := want - cur
	if math.Abs(delta) <= step {
		qa.SetVal(want, t)
		return true
	}
	qa.SetVal(cur+math.Copysign(step, delta), t)
	return false
}

func checkTransition(m *model.Model, target string) error {
	current, err := m.EnumLabel(DishMode)
	if err != nil {
		return err
	}
	allowed, restricted := allowedFrom[target]
	if !restricted {
		return nil
	}
	for _, mode := range allowed {
		if mode == current {
			return nil
		}
	}
	return fmt.Errorf("%w: dish cannot enter %s from %s (allowed from %v)",
		types.ErrModeViolation, target, current, allowed)
}

func requireMode(m *model.Model, mode, what string) error {
	current, err := m.EnumLabel(DishMode)
	if err != nil {
		return err
	}
	if current != mode {
		return fmt.Errorf("%w: cannot %s in %s, dish must be in %s",
			types.ErrModeViolation, what, current, mode)
	}
	return nil
}

func position(args any) (az, el float64, err error) {
	v, err := types.Convert(types.TypeDoubleArray, args)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid position: %w", err)
	}
	pos, _ := v.([]float64)
	if len(pos) != 2 {
		return 0, 0, fmt.Errorf("position needs [azimuth, elevation], got %d values", len(pos))
	}
	return pos[0], pos[1], nil
}

// ControlOverride fills the SimControl slot with test actions.
type ControlOverride struct{}

func (c *ControlOverride) Actions() map[string]model.Handler {
	return map[string]model.Handler{
		"test_action_setdishmode": func(m *model.Model, args any) (any, error) {
			label, ok := args.(string)
			if !ok {
				return nil, fmt.Errorf("dish mode must be a label, got %T", args)
			}
			if err := m.SetEnum(DishMode, label); err != nil {
				return nil, err
			}
			return label, nil
		},
	}
}
