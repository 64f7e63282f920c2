package parsers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KevinKickass/OpenSimCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFixture(t *testing.T, p Parser, name string) Parser {
	t.Helper()
	require.NoError(t, p.Parse(filepath.Join("testdata", name)))
	return p
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestXMIParser(t *testing.T) {
	p := parseFixture(t, NewXMIParser(), "Weather.xmi")
	assert.Equal(t, "Weather", p.ClassName())

	attrs := p.AttributeMetadata()
	require.Contains(t, attrs, "temperature")
	temp := attrs["temperature"]
	assert.Equal(t, types.TypeDouble, temp.DataType)
	assert.Equal(t, types.FormatScalar, temp.DataFormat)
	assert.Equal(t, types.Read, temp.Writable)
	assert.Equal(t, 1, temp.MaxDimX)
	assert.Equal(t, 0, temp.MaxDimY)
	assert.Equal(t, "Ambient temperature", temp.Get(types.PropDescription))
	assert.Equal(t, "?C", temp.Get(types.PropUnit))
	assert.Equal(t, "0.5", temp.Get(types.PropAbsChange))
	assert.Equal(t, "1000", temp.Get(types.PropEventPeriod))
	assert.Equal(t, "10000", temp.Get(types.PropArchivePeriod))
	assert.Equal(t, "1000", temp.Get(types.PropPeriod))
	assert.False(t, temp.Has(types.PropRelChange))

	assert.Equal(t, []string{"MAINTENANCE", "OPERATE", "STANDBY"}, attrs["mode"].EnumLabels)
	assert.Equal(t, types.TypeEnum, attrs["mode"].DataType)

	assert.Equal(t, types.FormatSpectrum, attrs["history"].DataFormat)
	assert.Equal(t, 16, attrs["history"].MaxDimX)
	assert.Equal(t, types.FormatImage, attrs["skyImage"].DataFormat)
	assert.Equal(t, 4, attrs["skyImage"].MaxDimY)

	require.Contains(t, attrs, "pressure")
	assert.Equal(t, types.TypeFloat, attrs["pressure"].DataType)
	assert.False(t, attrs["windSpeed"].Has(types.PropAbsChange))

	cmds := p.CommandMetadata()
	assert.Equal(t, types.TypeState, cmds["State"].DtypeOut)
	assert.Equal(t, types.TypeString, cmds["Status"].DtypeOut)
	assert.Equal(t, types.TypeString, cmds["SetMode"].DtypeIn)
	assert.Equal(t, "mode label", cmds["SetMode"].DocIn)
	assert.Equal(t, types.TypeDoubleArray, cmds["GetHistory"].DtypeOut)
	assert.Equal(t, types.FormatSpectrum, cmds["GetHistory"].DformatOut)

	props := p.PropertyMetadata()
	assert.Equal(t, []string{"Cape Town"}, props["Location"].DefaultPropValue)
	assert.Equal(t, types.TypeStringArray, props["Sensors"].Type)
	assert.True(t, props["Sensors"].Mandatory)
	assert.Equal(t, []string{"thermo", "anemo"}, props["Sensors"].DefaultPropValue)

	assert.Empty(t, p.OverrideMetadata())
}

func TestXMIParserUnknownType(t *testing.T) {
	path := writeTemp(t, "Bad.xmi", `<?xml version="1.0" encoding="ASCII"?>
<pogoDsl:PogoSystem xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:pogoDsl="http://www.esrf.fr/tango/pogo/PogoDsl">
  <classes name="Bad">
    <attributes name="q" attType="Scalar" rwType="READ">
      <dataType xsi:type="pogoDsl:QuaternionType"/>
    </attributes>
  </classes>
</pogoDsl:PogoSystem>`)
	err := NewXMIParser().Parse(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnknownType)
}

func TestSimDDParser(t *testing.T) {
	p := parseFixture(t, NewSimDDParser(nil), "Weather_SIMDD.json")
	assert.Equal(t, "", p.ClassName())

	attrs := p.AttributeMetadata()
	temp := attrs["temperature"]
	assert.Equal(t, types.TypeDouble, temp.DataType)
	assert.Equal(t, "GaussianSlewLimited", temp.SimulationType())
	assert.Equal(t, "-10", temp.Get(types.PropMinBound))
	assert.Equal(t, "1", temp.Get(types.PropUpdatePeriod))
	assert.Equal(t, "50", temp.Get(types.PropMaxAlarm))
	assert.Equal(t, "0.5", temp.Get(types.PropAbsChange))
	assert.Equal(t, "1000", temp.Get(types.PropEventPeriod))
	assert.Equal(t, "1", temp.Get(types.PropArchiveAbsChange))
	assert.False(t, temp.Has(types.PropRelChange))

	assert.Equal(t, types.ReadWrite, attrs["humidity"].Writable)
	assert.Equal(t, 16, attrs["history"].MaxDimX)
	assert.Equal(t, types.FormatSpectrum, attrs["history"].DataFormat)
	assert.Equal(t, "STANDBY", attrs["mode"].Get(types.PropInitialValue))

	cmds := p.CommandMetadata()
	set := cmds["SetTemperature"]
	assert.Equal(t, types.TypeDouble, set.DtypeIn)
	require.Len(t, set.Actions, 3)
	assert.Equal(t, types.BehaviourSideEffect, set.Actions[1].Behaviour)
	assert.Equal(t, "temperature", set.Actions[1].DestinationQuantity)
	assert.Equal(t, 2.0, cmds["Calibrate"].Actions[0].ExecutionTime.Seconds())
	assert.Equal(t, types.TypeVoid, cmds["test_Freeze"].DtypeIn)

	assert.Equal(t, []string{"1200"}, p.PropertyMetadata()["Altitude"].DefaultPropValue)

	overrides := p.OverrideMetadata()
	require.Contains(t, overrides, "Sim_WeatherOverride")
	assert.Equal(t, "OverrideWeather", overrides["Sim_WeatherOverride"].ClassName)
	assert.Equal(t, "None", overrides["Sim_WeatherOverride"].ModuleDirectory)
}

const simddHeader = `{"dynamicAttributes": [{"basicAttributeData": {"name": "x", "data_type": "Double", "dataSimulationParameters": `

func TestSimDDRejectsBadSimulationParameters(t *testing.T) {
	cases := map[string]string{
		"schema":  `{"dynamicAttributes": [{"basicAttributeData": {"name": "x"}}]}`,
		"unknown": simddHeader + `{"quantity_simulation_type": "ConstantQuantity", "initial_value": 1, "jitter": 2}}}]}`,
		"missing": simddHeader + `{"quantity_simulation_type": "GaussianSlewLimited", "min_bound": 0, "max_bound": 1, "mean": 0, "std_dev": 1, "max_slew_rate": 1}}}]}`,
		"type":    simddHeader + `{"quantity_simulation_type": "Brownian"}}}]}`,
		"nosim":   simddHeader + `{}}}]}`,
		"extra":   `{"dynamicAttributes": [], "colour": "blue"}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			err := NewSimDDParser(nil).Parse(writeTemp(t, "Bad_SIMDD.json", doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrSchemaViolation)
		})
	}
}

func TestFandangoParser(t *testing.T) {
	p := parseFixture(t, NewFandangoParser(), "Weather.fgo")
	assert.Equal(t, "Weather", p.ClassName())

	attrs := p.AttributeMetadata()
	assert.Equal(t, "21.5", attrs["temperature"].Get(types.PropValue))
	assert.Equal(t, "0.5", attrs["temperature"].Get(types.PropAbsChange))
	assert.Equal(t, "1", attrs["temperature"].Get(types.PropArchiveAbsChange))
	assert.Equal(t, "10000", attrs["temperature"].Get(types.PropArchivePeriod))
	assert.Equal(t, "1000", attrs["temperature"].Get(types.PropEventPeriod))

	history := attrs["history"]
	assert.Equal(t, types.TypeFloat, history.DataType)
	assert.Equal(t, types.FormatSpectrum, history.DataFormat)
	assert.Equal(t, 3, history.MaxDimX)
	assert.Equal(t, types.Read, history.Writable)

	require.Contains(t, attrs, "mode")
	assert.Equal(t, types.ReadWrite, attrs["mode"].Writable)

	cmds := p.CommandMetadata()
	assert.Equal(t, types.TypeString, cmds["SetMode"].DtypeIn)
	assert.Equal(t, types.TypeVoid, cmds["SetMode"].DtypeOut)
	assert.Equal(t, "mode label", cmds["SetMode"].DocIn)

	assert.Equal(t, []string{"Cape Town"}, p.PropertyMetadata()["Location"].DefaultPropValue)
}

func TestSDDParser(t *testing.T) {
	p := parseFixture(t, NewSDDParser(), "weather_sdd.xml")
	assert.Equal(t, "WeatherSDD", p.ClassName())

	attrs := p.AttributeMetadata()
	assert.Equal(t, types.TypeDouble, attrs["temperature"].DataType)
	assert.Equal(t, "-20", attrs["temperature"].Get(types.PropMinValue))
	assert.Equal(t, "1000", attrs["temperature"].Get(types.PropPeriod))

	dir := attrs["windDirection"]
	assert.Equal(t, types.TypeString, dir.DataType)
	assert.Equal(t, "N,E,S,W", dir.Get(types.PropPossibleValues))
	assert.Equal(t, []string{"N", "E", "S", "W"}, dir.EnumLabels)

	readings := attrs["readings"]
	assert.Equal(t, types.TypeLong, readings.DataType)
	assert.Equal(t, types.FormatSpectrum, readings.DataFormat)
	assert.Equal(t, 4, readings.MaxDimX)
	assert.Equal(t, types.ReadWrite, readings.Writable)

	cmds := p.CommandMetadata()
	assert.Equal(t, types.TypeVoid, cmds["ON"].DtypeIn)
	assert.Equal(t, types.TypeLong, cmds["SET_SAMPLING"].DtypeIn)
	assert.Equal(t, types.TypeBoolean, cmds["SET_SAMPLING"].DtypeOut)
}

func TestSDDParserUnknownType(t *testing.T) {
	path := writeTemp(t, "bad_sdd.xml", `<SelfDescriptionData>
  <MonitoringPoints>
    <MonitoringPoint id="MP1" name="x"><DataType>double</DataType></MonitoringPoint>
  </MonitoringPoints>
</SelfDescriptionData>`)
	err := NewSDDParser().Parse(path)
	assert.ErrorIs(t, err, types.ErrUnknownType)
}

func TestXMIAndSimDDAgreeOnCommonAttributes(t *testing.T) {
	xmi := parseFixture(t, NewXMIParser(), "Weather.xmi")
	simdd := parseFixture(t, NewSimDDParser(nil), "Weather_SIMDD.json")

	common := 0
	for name, s := range simdd.AttributeMetadata() {
		x, ok := xmi.AttributeMetadata()[name]
		if !ok {
			continue
		}
		common++
		assert.Equal(t, x.DataType, s.DataType, name)
		if s.DataFormat != types.FormatUnknown {
			assert.Equal(t, x.DataFormat, s.DataFormat, name)
		}
		if s.Writable != types.WritableUnknown {
			assert.Equal(t, x.Writable, s.Writable, name)
		}
		if s.MaxDimX != 0 {
			assert.Equal(t, x.MaxDimX, s.MaxDimX, name)
		}

		merged := Merge([]Parser{xmi, simdd}).Attributes[name]
		assert.Equal(t, x.DataFormat, merged.DataFormat, name)
		assert.Equal(t, x.Writable, merged.Writable, name)
		assert.Equal(t, x.MaxDimX, merged.MaxDimX, name)
		assert.Equal(t, x.MaxDimY, merged.MaxDimY, name)
	}
	assert.Equal(t, 5, common)
}

func TestSimDDLeavesUndeclaredShapeUnset(t *testing.T) {
	xmiPath := writeTemp(t, "Sensor.xmi", `<?xml version="1.0" encoding="ASCII"?>
<pogoDsl:PogoSystem xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:pogoDsl="http://www.esrf.fr/tango/pogo/PogoDsl">
  <classes name="Sensor">
    <attributes name="temps" attType="Spectrum" rwType="READ_WRITE" maxX="4" maxY="">
      <dataType xsi:type="pogoDsl:DoubleType"/>
    </attributes>
  </classes>
</pogoDsl:PogoSystem>`)
	simddPath := writeTemp(t, "Sensor_SIMDD.json", `{"dynamicAttributes": [{"basicAttributeData": {
  "name": "temps", "data_type": "Double",
  "dataSimulationParameters": {"quantity_simulation_type": "ConstantQuantity", "initial_value": "1.5"}}}]}`)

	xmi := NewXMIParser()
	require.NoError(t, xmi.Parse(xmiPath))
	simdd := NewSimDDParser(nil)
	require.NoError(t, simdd.Parse(simddPath))

	s := simdd.AttributeMetadata()["temps"]
	assert.Equal(t, types.FormatUnknown, s.DataFormat)
	assert.Equal(t, types.WritableUnknown, s.Writable)
	assert.Equal(t, 0, s.MaxDimX)

	merged := Merge([]Parser{xmi, simdd}).Attributes["temps"]
	assert.Equal(t, types.FormatSpectrum, merged.DataFormat)
	assert.Equal(t, types.ReadWrite, merged.Writable)
	assert.Equal(t, 4, merged.MaxDimX)
	assert.Equal(t, "1.5", merged.Get(types.PropInitialValue))
}
