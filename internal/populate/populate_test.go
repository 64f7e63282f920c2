package populate

import (
	"errors"
	"testing"
	"time"

	"github.com/KevinKickass/OpenSimCore/internal/model"
	"github.com/KevinKickass/OpenSimCore/internal/override"
	"github.com/KevinKickass/OpenSimCore/internal/parsers"
	"github.com/KevinKickass/OpenSimCore/internal/quantity"
	"github.com/KevinKickass/OpenSimCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clock struct{ now float64 }

func (c *clock) time() float64 { return c.now }

type weatherOverride struct {
	preUpdates int
}

func (w *weatherOverride) Actions() map[string]model.Handler {
	return map[string]model.Handler{
		"action_setmode": func(m *model.Model, args any) (any, error) {
			label, _ := args.(string)
			return nil, m.SetEnum("mode", label)
		},
	}
}

func (w *weatherOverride) PreUpdate(m *model.Model, simTime, dt float64) {
	w.preUpdates++
}

type controlOverride map[string]model.Handler

func (c controlOverride) Actions() map[string]model.Handler { return c }

func newModel(c *clock, opts ...model.Option) *model.Model {
	return model.New("weather/1", append([]model.Option{model.WithTimeFunc(c.time)}, opts...)...)
}

func TestConstantSpectrumDefaultsToZeros(t *testing.T) {
	m := newModel(&clock{})
	attrs := map[string]types.AttributeMeta{
		"counts": {
			Name:       "counts",
			DataType:   types.TypeLong,
			DataFormat: types.FormatSpectrum,
			Writable:   types.Read,
			MaxDimX:    4,
			Props:      types.Props{types.PropSimulationType: quantity.KindConstant},
		},
	}

	require.NoError(t, Quantities(m, attrs))

	q, ok := m.Quantity("counts")
	require.True(t, ok)
	assert.Equal(t, []int32{0, 0, 0, 0}, q.LastVal())
}

func TestQuantitiesDefaultUndeclaredShape(t *testing.T) {
	m := newModel(&clock{})
	constant := types.Props{types.PropSimulationType: quantity.KindConstant, types.PropInitialValue: "2"}

	require.NoError(t, Quantities(m, map[string]types.AttributeMeta{
		"level": {Name: "level", DataType: types.TypeDouble, Props: constant},
	}))
	q, ok := m.Quantity("level")
	require.True(t, ok)
	assert.Equal(t, types.FormatScalar, q.Meta().DataFormat)
	assert.Equal(t, types.Read, q.Meta().Writable)
	assert.Equal(t, 1, q.Meta().MaxDimX)
	assert.Equal(t, 2.0, q.LastVal())

	require.NoError(t, Quantities(m, map[string]types.AttributeMeta{
		"temps": {Name: "temps", DataType: types.TypeDouble, DataFormat: types.FormatSpectrum, Writable: types.ReadWrite, MaxDimX: 3},
	}))
	require.NoError(t, Quantities(m, map[string]types.AttributeMeta{
		"temps": {Name: "temps", DataType: types.TypeDouble, Props: constant},
	}))
	q, ok = m.Quantity("temps")
	require.True(t, ok)
	assert.Equal(t, types.FormatSpectrum, q.Meta().DataFormat)
	assert.Equal(t, types.ReadWrite, q.Meta().Writable)
	assert.Equal(t, []float64{2, 2, 2}, q.LastVal())
}

func TestInitialValueShapes(t *testing.T) {
	tests := []struct {
		name string
		meta types.AttributeMeta
		raw  string
		want any
	}{
		{
			name: "scalar double",
			meta: types.AttributeMeta{DataType: types.TypeDouble, DataFormat: types.FormatScalar},
			raw:  "1.5",
			want: 1.5,
		},
		{
			name: "enum label",
			meta: types.AttributeMeta{DataType: types.TypeEnum, DataFormat: types.FormatScalar, EnumLabels: []string{"OFF", "ON"}},
			raw:  "ON",
			want: int16(1),
		},
		{
			name: "enum index",
			meta: types.AttributeMeta{DataType: types.TypeEnum, DataFormat: types.FormatScalar, EnumLabels: []string{"OFF", "ON"}},
			raw:  "0",
			want: int16(0),
		},
		{
			name: "spectrum fill",
			meta: types.AttributeMeta{DataType: types.TypeFloat, DataFormat: types.FormatSpectrum, MaxDimX: 3},
			raw:  "2",
			want: []float32{2, 2, 2},
		},
		{
			name: "spectrum list",
			meta: types.AttributeMeta{DataType: types.TypeShort, DataFormat: types.FormatSpectrum, MaxDimX: 3},
			raw:  "[1, 2, 3]",
			want: []int16{1, 2, 3},
		},
		{
			name: "image grid",
			meta: types.AttributeMeta{DataType: types.TypeUChar, DataFormat: types.FormatImage, MaxDimX: 2, MaxDimY: 2},
			raw:  "",
			want: [][]uint8{{0, 0}, {0, 0}},
		},
		{
			name: "empty string",
			meta: types.AttributeMeta{DataType: types.TypeString, DataFormat: types.FormatScalar},
			raw:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InitialValue(tt.meta, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitialValueUnknownEnumLabel(t *testing.T) {
	meta := types.AttributeMeta{Name: "mode", DataType: types.TypeEnum, EnumLabels: []string{"A"}}
	_, err := InitialValue(meta, "B")
	assert.Error(t, err)
}

func TestNoSimulationTypeUsesValueOrPossibleValues(t *testing.T) {
	m := newModel(&clock{})
	attrs := map[string]types.AttributeMeta{
		"direction": {
			Name: "direction", DataType: types.TypeString, DataFormat: types.FormatScalar,
			Props: types.Props{types.PropPossibleValues: "N,E,S,W"},
		},
		"level": {
			Name: "level", DataType: types.TypeDouble, DataFormat: types.FormatScalar,
			Props: types.Props{types.PropValue: "21.5"},
		},
		"flag": {Name: "flag", DataType: types.TypeBoolean, DataFormat: types.FormatScalar},
	}
	require.NoError(t, Quantities(m, attrs))

	for name, want := range map[string]any{"direction": "N", "level": 21.5, "flag": false} {
		q, err := m.Lookup(name)
		require.NoError(t, err)
		assert.IsType(t, &quantity.Constant{}, q)
		assert.Equal(t, want, q.LastVal(), name)
	}
}

func TestGaussianMissingBound(t *testing.T) {
	m := newModel(&clock{})
	attrs := map[string]types.AttributeMeta{
		"noise": {
			Name: "noise", DataType: types.TypeDouble, DataFormat: types.FormatScalar,
			Props: types.Props{
				types.PropSimulationType: quantity.KindGaussianSlewLimited,
				types.PropMean:           "0",
				types.PropStdDev:         "1",
				types.PropMaxSlewRate:    "1",
				types.PropMinBound:       "-1",
			},
		},
	}

	err := Quantities(m, attrs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrMissingBound))
	assert.Contains(t, err.Error(), types.PropMaxBound)
}

func TestQuantitiesRefineExisting(t *testing.T) {
	m := newModel(&clock{})
	first := map[string]types.AttributeMeta{
		"level": {
			Name: "level", DataType: types.TypeDouble, DataFormat: types.FormatScalar,
			Props: types.Props{types.PropUnit: "m", types.PropLabel: "Level"},
		},
	}
	second := map[string]types.AttributeMeta{
		"level": {
			Name: "level",
			Props: types.Props{
				types.PropLabel:          "Water level",
				types.PropSimulationType: quantity.KindConstant,
				types.PropInitialValue:   "3",
			},
		},
	}
	require.NoError(t, Quantities(m, first))
	require.NoError(t, Quantities(m, second))

	q, err := m.Lookup("level")
	require.NoError(t, err)
	assert.Equal(t, "m", q.Meta().Get(types.PropUnit))
	assert.Equal(t, "Water level", q.Meta().Get(types.PropLabel))
	assert.Equal(t, types.TypeDouble, q.Meta().DataType)
	assert.Equal(t, 3.0, q.LastVal())
	assert.Equal(t, []string{"level"}, m.QuantityNames())
}

func TestSynthesizedActionWritesQuantity(t *testing.T) {
	c := &clock{now: 5}
	m := newModel(c)
	require.NoError(t, Quantities(m, map[string]types.AttributeMeta{
		"setpoint": {Name: "setpoint", DataType: types.TypeDouble, DataFormat: types.FormatScalar},
	}))

	cmd := types.CommandMeta{
		Name:     "SetSetpoint",
		DtypeIn:  types.TypeDouble,
		DtypeOut: types.TypeDouble,
		Actions: []types.ActionStep{
			{Behaviour: types.BehaviourInputTransform, DestinationVariable: "x"},
			{Behaviour: types.BehaviourSideEffect, SourceVariable: "x", DestinationQuantity: "setpoint"},
			{Behaviour: types.BehaviourOutputReturn, SourceVariable: "x"},
		},
	}
	require.NoError(t, Actions(m, map[string]types.CommandMeta{cmd.Name: cmd}, nil, nil))

	action, ok := m.Action("SetSetpoint")
	require.True(t, ok)
	out, err := action(12.5)
	require.NoError(t, err)
	assert.Equal(t, 12.5, out)

	q, _ := m.Quantity("setpoint")
	assert.Equal(t, 12.5, q.LastVal())
	assert.Equal(t, 5.0, q.LastUpdateTime())
}

func TestSynthesizedStepsRunPastOutputReturn(t *testing.T) {
	var slept []time.Duration
	m := newModel(&clock{now: 3}, model.WithSleep(func(d time.Duration) { slept = append(slept, d) }))
	require.NoError(t, Quantities(m, map[string]types.AttributeMeta{
		"setpoint": {Name: "setpoint", DataType: types.TypeDouble, DataFormat: types.FormatScalar},
	}))

	handler, err := Synthesize(types.CommandMeta{
		Name:     "Latch",
		DtypeIn:  types.TypeDouble,
		DtypeOut: types.TypeDouble,
		Actions: []types.ActionStep{
			{Behaviour: types.BehaviourInputTransform, DestinationVariable: "x"},
			{Behaviour: types.BehaviourOutputReturn, SourceVariable: "x"},
			{Behaviour: types.BehaviourSideEffect, SourceVariable: "x", DestinationQuantity: "setpoint"},
			{Behaviour: types.BehaviourLongRunning, ExecutionTime: types.Seconds{Duration: time.Second}},
		},
	})
	require.NoError(t, err)

	out, err := handler(m, 7.0)
	require.NoError(t, err)
	assert.Equal(t, 7.0, out)

	q, _ := m.Quantity("setpoint")
	assert.Equal(t, 7.0, q.LastVal())
	assert.Equal(t, []time.Duration{time.Second}, slept)
}

func TestSynthesizedDefaultsAndSleep(t *testing.T) {
	var slept []time.Duration
	m := newModel(&clock{}, model.WithSleep(func(d time.Duration) { slept = append(slept, d) }))

	cmds := map[string]types.CommandMeta{
		"Calibrate": {
			Name: "Calibrate", DtypeIn: types.TypeVoid, DtypeOut: types.TypeString,
			Actions: []types.ActionStep{{Behaviour: types.BehaviourLongRunning, ExecutionTime: types.Seconds{Duration: 2 * time.Second}}},
		},
		"Count":  {Name: "Count", DtypeIn: types.TypeVoid, DtypeOut: types.TypeLong},
		"Check":  {Name: "Check", DtypeIn: types.TypeVoid, DtypeOut: types.TypeBoolean},
		"State":  {Name: "State", DtypeOut: types.TypeState},
		"Status": {Name: "Status", DtypeOut: types.TypeString},
	}
	require.NoError(t, Actions(m, cmds, nil, nil))

	assert.Equal(t, []string{"Calibrate", "Check", "Count"}, m.ActionNames())

	calibrate, _ := m.Action("Calibrate")
	out, err := calibrate(nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)

	count, _ := m.Action("Count")
	out, _ = count(nil)
	assert.Equal(t, int32(3), out)

	check, _ := m.Action("Check")
	out, _ = check(nil)
	assert.Equal(t, true, out)
}

func TestSynthesizedMissingQuantityFailsCommand(t *testing.T) {
	m := newModel(&clock{})
	cmd := types.CommandMeta{
		Name:    "Read",
		Actions: []types.ActionStep{{Behaviour: types.BehaviourOutputReturn, SourceQuantity: "ghost"}},
	}
	handler, err := Synthesize(cmd)
	require.NoError(t, err)

	_, err = handler(m, nil)
	assert.ErrorIs(t, err, types.ErrQuantityMissing)
}

func TestSynthesizeRejectsInvalidSteps(t *testing.T) {
	tests := []struct {
		name string
		step types.ActionStep
	}{
		{"both sources", types.ActionStep{Behaviour: types.BehaviourOutputReturn, SourceVariable: "x", SourceQuantity: "q"}},
		{"no source", types.ActionStep{Behaviour: types.BehaviourOutputReturn}},
		{"side effect without target", types.ActionStep{Behaviour: types.BehaviourSideEffect}},
		{"transform without target", types.ActionStep{Behaviour: types.BehaviourInputTransform}},
		{"unknown", types.ActionStep{Behaviour: "teleport"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Synthesize(types.CommandMeta{Name: "Bad", Actions: []types.ActionStep{tt.step}})
			assert.ErrorIs(t, err, types.ErrInvalidAction)
		})
	}
}

func TestOverrideWinsOverSynthesized(t *testing.T) {
	m := newModel(&clock{})
	sim := controlOverride{
		"action_foo": func(*model.Model, any) (any, error) { return "override", nil },
	}
	cmds := map[string]types.CommandMeta{
		"Foo": {
			Name:    "Foo",
			Actions: []types.ActionStep{{Behaviour: types.BehaviourOutputReturn, SourceVariable: "x"}},
		},
	}
	require.NoError(t, Actions(m, cmds, []override.Provider{sim}, nil))

	foo, ok := m.Action("Foo")
	require.True(t, ok)
	out, err := foo(nil)
	require.NoError(t, err)
	assert.Equal(t, "override", out)
}

func TestOverrideCollisionIsFatal(t *testing.T) {
	m := newModel(&clock{})
	sim := controlOverride{
		"action_foo": func(*model.Model, any) (any, error) { return nil, nil },
		"action_Foo": func(*model.Model, any) (any, error) { return nil, nil },
	}
	err := Actions(m, map[string]types.CommandMeta{"Foo": {Name: "Foo"}}, []override.Provider{sim}, nil)
	assert.ErrorIs(t, err, types.ErrOverrideCollision)
}

func TestControlProviderTestActions(t *testing.T) {
	m := newModel(&clock{})
	control := controlOverride{
		"test_action_freeze": func(*model.Model, any) (any, error) { return "frozen", nil },
		"test_action_thaw":   func(*model.Model, any) (any, error) { return "thawed", nil },
	}
	cmds := map[string]types.CommandMeta{
		"test_Freeze": {Name: "test_Freeze", DtypeOut: types.TypeBoolean},
	}
	require.NoError(t, Actions(m, cmds, nil, []override.Provider{control}))

	assert.Equal(t, []string{"Freeze", "thaw"}, m.TestActionNames())
	freeze, ok := m.TestAction("Freeze")
	require.True(t, ok)
	out, err := freeze(nil)
	require.NoError(t, err)
	assert.Equal(t, "frozen", out)
}

func TestBuildFromWeatherDescriptions(t *testing.T) {
	provider := &weatherOverride{}
	override.Register("weather_override", "OverrideWeather", func() override.Provider { return provider })

	loader, err := parsers.NewLoader([]string{"../parsers/testdata"})
	require.NoError(t, err)
	files, err := loader.LoadAll([]string{"Weather.xmi", "Weather_SIMDD.json"})
	require.NoError(t, err)

	c := &clock{now: 100}
	m := newModel(c)
	res, err := Build(m, files, override.NewLoader(zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, "Weather", res.Merged.ClassName)
	require.Len(t, res.Sim, 1)
	assert.Empty(t, res.Control)

	temperature, err := m.Lookup("temperature")
	require.NoError(t, err)
	assert.IsType(t, &quantity.GaussianSlewLimited{}, temperature)
	assert.Equal(t, 25.0, temperature.LastVal())
	assert.Equal(t, "Temperature", temperature.Meta().Get(types.PropLabel))

	mode, err := m.Lookup("mode")
	require.NoError(t, err)
	label, err := m.EnumLabel("mode")
	require.NoError(t, err)
	assert.Equal(t, "STANDBY", label)
	assert.IsType(t, int16(0), mode.LastVal())

	history, _ := m.Quantity("history")
	assert.Len(t, history.LastVal(), 16)

	sky, _ := m.Quantity("skyImage")
	assert.Equal(t, [][]uint8{
		make([]uint8, 8), make([]uint8, 8), make([]uint8, 8), make([]uint8, 8),
	}, sky.LastVal())

	assert.Equal(t, []string{"Calibrate", "GetHistory", "GetWindSpeed", "Reset", "SetMode", "SetTemperature"}, m.ActionNames())
	assert.Equal(t, []string{"Freeze"}, m.TestActionNames())

	setMode, _ := m.Action("SetMode")
	_, err = setMode("OPERATE")
	require.NoError(t, err)
	label, _ = m.EnumLabel("mode")
	assert.Equal(t, "OPERATE", label)

	setTemp, _ := m.Action("SetTemperature")
	out, err := setTemp(30.0)
	require.NoError(t, err)
	assert.Equal(t, 30.0, out)
	assert.Equal(t, 30.0, temperature.LastVal())

	names := make([]string, 0)
	for _, p := range m.Properties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Altitude", "Location", "Sensors"}, names)

	c.now = 101
	m.Update()
	assert.Equal(t, 1, provider.preUpdates)
}

func TestBuildWithoutLoaderFailsOnOverrides(t *testing.T) {
	loader, err := parsers.NewLoader([]string{"../parsers/testdata"})
	require.NoError(t, err)
	files, err := loader.LoadAll([]string{"Weather_SIMDD.json"})
	require.NoError(t, err)

	_, err = Build(newModel(&clock{}), files, nil)
	assert.Error(t, err)
}
