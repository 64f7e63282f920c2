package host

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/KevinKickass/OpenSimCore/internal/parsers"
	"github.com/KevinKickass/OpenSimCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type counterDevice struct {
	ticks   int
	level   float64
	mode    int16
	initErr error
	inits   int
}

func (c *counterDevice) Init(ctx context.Context, rt Runtime) error {
	c.inits++
	if c.initErr != nil {
		return c.initErr
	}
	rt.SetState(types.StateOn)
	if err := rt.PropertyDB().PutDeviceProperty(ctx, rt.Name(), map[string][]string{"Site": {"lab"}}); err != nil {
		return err
	}
	if err := rt.AddAttribute(Attribute{
		Meta: types.AttributeMeta{
			Name: "level", DataType: types.TypeDouble, DataFormat: types.FormatScalar,
			Writable: types.ReadWrite, MaxDimX: 1,
			Props: types.Props{types.PropLabel: "Level", types.PropUnit: "m"},
		},
		Read: func() (Reading, error) {
			return Reading{Value: c.level, Timestamp: float64(c.ticks), Quality: QualityValid}, nil
		},
		Write: func(v any) error {
			c.level = v.(float64)
			return nil
		},
	}); err != nil {
		return err
	}
	return rt.AddCommand(Command{
		Name: "Double", DtypeIn: types.TypeDouble, DtypeOut: types.TypeDouble,
		Handler: func(args any) (any, error) {
			return args.(float64) * 2, nil
		},
	})
}

func (c *counterDevice) AlwaysExecuted() {
	c.ticks++
}

func counterClass(dev *counterDevice) Class {
	return Class{
		Name: "Counter",
		Attributes: []Attribute{
			{
				Meta: types.AttributeMeta{
					Name: "mode", DataType: types.TypeEnum, DataFormat: types.FormatScalar,
					Writable: types.ReadWrite, EnumLabels: []string{"IDLE", "BUSY"},
				},
				Read: func() (Reading, error) { return Reading{Value: dev.mode}, nil },
				Write: func(v any) error {
					dev.mode = v.(int16)
					return nil
				},
			},
			{
				Meta: types.AttributeMeta{
					Name: "frame", DataType: types.TypeUChar, DataFormat: types.FormatImage,
					MaxDimX: 2, MaxDimY: 2,
				},
				Read: func() (Reading, error) { return Reading{}, nil },
			},
		},
		Commands: []Command{
			{
				Name: "Fail", DtypeIn: types.TypeVoid, DtypeOut: types.TypeVoid,
				Handler: func(any) (any, error) { return nil, types.ErrModeViolation },
			},
		},
		New: func() Behaviour { return dev },
	}
}

func newCounter(t *testing.T) (*Server, *Instance, *counterDevice) {
	t.Helper()
	dev := &counterDevice{}
	srv := NewServer(nil, zap.NewNop())
	require.NoError(t, srv.RegisterClass(counterClass(dev)))
	inst, err := srv.CreateDevice(context.Background(), "Counter", "lab/counter/1")
	require.NoError(t, err)
	return srv, inst, dev
}

func TestCreateDeviceDeclaresAttributes(t *testing.T) {
	srv, inst, dev := newCounter(t)

	assert.Equal(t, []string{"mode", "level"}, inst.AttributeNames())
	assert.Contains(t, inst.Rejected(), "frame")
	assert.True(t, errors.Is(inst.Rejected()["frame"], types.ErrAttributeRegistration))
	assert.Equal(t, types.StateOn, inst.State())
	assert.Equal(t, 1, dev.inits)

	props, err := srv.PropertyDB().GetDeviceProperty(context.Background(), "lab/counter/1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"Site": {"lab"}}, props)

	_, err = srv.CreateDevice(context.Background(), "Counter", "lab/counter/1")
	assert.Error(t, err)
	_, err = srv.CreateDevice(context.Background(), "Missing", "lab/x/1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDynamicAttributeRestrictions(t *testing.T) {
	_, inst, _ := newCounter(t)

	read := func() (Reading, error) { return Reading{}, nil }
	err := inst.AddAttribute(Attribute{
		Meta: types.AttributeMeta{Name: "state2", DataType: types.TypeEnum, DataFormat: types.FormatScalar},
		Read: read,
	})
	assert.ErrorIs(t, err, types.ErrAttributeRegistration)

	err = inst.AddAttribute(Attribute{
		Meta: types.AttributeMeta{Name: "trace", DataType: types.TypeDouble, DataFormat: types.FormatSpectrum, MaxDimX: 8},
		Read: read,
	})
	assert.ErrorIs(t, err, types.ErrAttributeRegistration)

	err = inst.AddAttribute(Attribute{
		Meta: types.AttributeMeta{Name: "level", DataType: types.TypeDouble, DataFormat: types.FormatScalar},
		Read: read,
	})
	assert.ErrorIs(t, err, types.ErrAttributeRegistration)

	err = inst.AddAttribute(Attribute{
		Meta: types.AttributeMeta{Name: "setpoint", DataType: types.TypeDouble, DataFormat: types.FormatScalar, Writable: types.ReadWrite},
		Read: read,
	})
	assert.ErrorIs(t, err, types.ErrAttributeRegistration)
}

func TestReadRunsAlwaysExecuted(t *testing.T) {
	_, inst, dev := newCounter(t)

	r, err := inst.ReadAttribute("level")
	require.NoError(t, err)
	assert.Equal(t, 1, dev.ticks)
	assert.Equal(t, 1.0, r.Timestamp)
	assert.Equal(t, QualityValid, r.Quality)

	state, err := inst.ReadAttribute(StateName)
	require.NoError(t, err)
	assert.Equal(t, types.StateOn, state.Value)

	_, err = inst.ReadAttribute("missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestWriteAttributeConverts(t *testing.T) {
	_, inst, dev := newCounter(t)

	require.NoError(t, inst.WriteAttribute("level", "2.5"))
	assert.Equal(t, 2.5, dev.level)

	require.NoError(t, inst.WriteAttribute("mode", "BUSY"))
	assert.Equal(t, int16(1), dev.mode)

	require.NoError(t, inst.WriteAttribute("mode", 0.0))
	assert.Equal(t, int16(0), dev.mode)

	assert.Error(t, inst.WriteAttribute("level", "high"))
}

func TestRunCommand(t *testing.T) {
	_, inst, _ := newCounter(t)
	ctx := context.Background()

	out, err := inst.RunCommand(ctx, "Double", "4")
	require.NoError(t, err)
	assert.Equal(t, 8.0, out)

	_, err = inst.RunCommand(ctx, "Fail", nil)
	assert.ErrorIs(t, err, types.ErrCommandFailed)
	assert.ErrorIs(t, err, types.ErrModeViolation)

	state, err := inst.RunCommand(ctx, StateName, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StateOn, state)

	status, err := inst.RunCommand(ctx, StatusName, nil)
	require.NoError(t, err)
	assert.Equal(t, "The device is in ON state.", status)

	_, err = inst.RunCommand(ctx, "Nope", nil)
	assert.ErrorIs(t, err, types.ErrNotFound)

	assert.Equal(t, []string{"Double", "Fail", "Init", "State", "Status"}, inst.CommandNames())
}

func TestInitRedeclaresDynamicParts(t *testing.T) {
	_, inst, dev := newCounter(t)

	_, err := inst.RunCommand(context.Background(), InitName, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, dev.inits)
	assert.Equal(t, []string{"mode", "level"}, inst.AttributeNames())

	dev.initErr = errors.New("boom")
	_, err = inst.RunCommand(context.Background(), InitName, nil)
	assert.ErrorIs(t, err, types.ErrCommandFailed)
	assert.Equal(t, types.StateFault, inst.State())
}

func TestPollerPublishesChanges(t *testing.T) {
	srv, _, dev := newCounter(t)

	var events []Event
	poller := NewPoller(srv, 0, PublisherFunc(func(e Event) { events = append(events, e) }), zap.NewNop())

	poller.Tick()
	require.Len(t, events, 2)
	assert.Equal(t, "mode", events[0].Attribute)
	assert.Equal(t, "level", events[1].Attribute)

	events = nil
	poller.Tick()
	assert.Empty(t, events)

	dev.level = 7
	poller.Tick()
	require.Len(t, events, 1)
	assert.Equal(t, "level", events[0].Attribute)
	assert.Equal(t, 7.0, events[0].Value)
	assert.Equal(t, "lab/counter/1", events[0].Device)
}

func TestExportRoundTripsThroughFandangoParser(t *testing.T) {
	_, inst, dev := newCounter(t)
	dev.level = 3.5

	doc, err := inst.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Counter", doc.Class)
	assert.Equal(t, 3.5, doc.Attributes["level"].Value)
	assert.Contains(t, doc.Commands, StateName)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "counter.fgo")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	p := parsers.NewFandangoParser()
	require.NoError(t, p.Parse(path))
	assert.Equal(t, "Counter", p.ClassName())

	level := p.AttributeMetadata()["level"]
	assert.Equal(t, types.TypeDouble, level.DataType)
	assert.Equal(t, types.ReadWrite, level.Writable)
	assert.Equal(t, "m", level.Get(types.PropUnit))

	mode := p.AttributeMetadata()["mode"]
	assert.Equal(t, types.TypeEnum, mode.DataType)
	assert.Equal(t, []string{"IDLE", "BUSY"}, mode.EnumLabels)

	assert.Equal(t, types.TypeDouble, p.CommandMetadata()["Double"].DtypeIn)
	assert.Equal(t, []string{"lab"}, p.PropertyMetadata()["Site"].DefaultPropValue)
}

func TestRemoveDevice(t *testing.T) {
	srv, _, _ := newCounter(t)
	ctx := context.Background()

	require.NoError(t, srv.RemoveDevice(ctx, "lab/counter/1"))
	_, ok := srv.Device("lab/counter/1")
	assert.False(t, ok)

	props, err := srv.PropertyDB().GetDeviceProperty(ctx, "lab/counter/1")
	require.NoError(t, err)
	assert.Empty(t, props)

	assert.ErrorIs(t, srv.RemoveDevice(ctx, "lab/counter/1"), types.ErrNotFound)
}

func TestQualityText(t *testing.T) {
	var q Quality
	require.NoError(t, q.UnmarshalText([]byte("ATTR_ALARM")))
	assert.Equal(t, QualityAlarm, q)
	text, _ := QualityWarning.MarshalText()
	assert.Equal(t, "WARNING", string(text))
}
