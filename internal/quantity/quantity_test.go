package quantity

import (
	"math"
	"testing"

	"github.com/KevinKickass/OpenSimCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wideGaussian(t *testing.T) *GaussianSlewLimited {
	t.Helper()
	q, err := NewGaussianSlewLimited(
		&types.AttributeMeta{Name: "noise"},
		GaussianParams{Mean: 0, StdDev: 100, MaxSlewRate: 1, MinBound: -5, MaxBound: 5},
		0, 0,
		WithSeed(42),
	)
	require.NoError(t, err)
	return q
}

func TestGaussianRespectsSlewAndBounds(t *testing.T) {
	q := wideGaussian(t)

	v, err := q.NextVal(0.1)
	require.NoError(t, err)
	assert.LessOrEqual(t, math.Abs(v.(float64)), 0.1+1e-12)
	assert.Equal(t, 0.1, q.LastUpdateTime())

	v, err = q.NextVal(1e6)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.(float64), -5.0)
	assert.LessOrEqual(t, v.(float64), 5.0)
	assert.Equal(t, 1e6, q.LastUpdateTime())
}

func TestGaussianInvariantsOverManySteps(t *testing.T) {
	q := wideGaussian(t)
	prev := 0.0
	prevT := 0.0
	for i := 1; i <= 500; i++ {
		now := float64(i) * 0.37
		v, err := q.NextVal(now)
		require.NoError(t, err)
		f := v.(float64)
		assert.GreaterOrEqual(t, f, -5.0)
		assert.LessOrEqual(t, f, 5.0)
		assert.LessOrEqual(t, math.Abs(f-prev), 1*(now-prevT)+1e-9)
		assert.Equal(t, now, q.LastUpdateTime())
		prev, prevT = f, now
	}
}

func TestGaussianZeroDtOnlyClips(t *testing.T) {
	q := wideGaussian(t)
	q.SetVal(42.0, 1)

	v, err := q.NextVal(1)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
}

func TestGaussianRejectsNonPositiveSlew(t *testing.T) {
	_, err := NewGaussianSlewLimited(nil, GaussianParams{MaxSlewRate: 0, MaxBound: 1}, 0, 0)
	assert.Error(t, err)

	q := wideGaussian(t)
	assert.Error(t, q.SetAttribute(FieldMaxSlewRate, -1.0, 0))
	assert.Equal(t, 1.0, q.MaxSlewRate)
}

func TestGaussianNonNumericLastValue(t *testing.T) {
	q := wideGaussian(t)
	q.SetVal("broken", 1)

	_, err := q.NextVal(2)
	assert.ErrorIs(t, err, types.ErrUpdate)
}

func TestAdjustableAttributes(t *testing.T) {
	c := NewConstant(nil, nil, 0)
	assert.Equal(t, []string{"last_update_time", "last_val"}, c.AdjustableAttributes())
	assert.Equal(t, true, c.LastVal())

	g := wideGaussian(t)
	assert.Equal(t, []string{
		"last_update_time", "last_val", "max_bound", "max_slew_rate", "mean", "min_bound", "std_dev",
	}, g.AdjustableAttributes())

	require.NoError(t, g.SetAttribute(FieldMean, "2.5", 0))
	mean, err := g.Attribute(FieldMean)
	require.NoError(t, err)
	assert.Equal(t, 2.5, mean)

	require.NoError(t, g.SetAttribute(FieldLastVal, 3.0, 7))
	assert.Equal(t, 3.0, g.LastVal())
	assert.Equal(t, 7.0, g.LastUpdateTime())

	_, err = g.Attribute("colour")
	assert.Error(t, err)
}

func TestDefaultValues(t *testing.T) {
	c := NewConstant(nil, int32(5), 0)
	c.DefaultVal(1)
	assert.Equal(t, true, c.LastVal())

	g := wideGaussian(t)
	g.SetVal(3.0, 1)
	g.DefaultVal(2)
	assert.Equal(t, 0.0, g.LastVal())
	assert.Equal(t, 2.0, g.LastUpdateTime())
}

func TestConstantNextValAdvancesTime(t *testing.T) {
	c := NewConstant(nil, "idle", 0)
	v, err := c.NextVal(3)
	require.NoError(t, err)
	assert.Equal(t, "idle", v)
	assert.Equal(t, 3.0, c.LastUpdateTime())
}

func TestRegistryEnforcesRequiredParams(t *testing.T) {
	meta := &types.AttributeMeta{Name: "windSpeed", Props: types.Props{
		types.PropMinBound: "0", types.PropMaxBound: "10", types.PropMean: "5",
	}}
	_, err := New(KindGaussianSlewLimited, meta, nil, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMissingBound)
	assert.Contains(t, err.Error(), "max_slew_rate")
	assert.Contains(t, err.Error(), "std_dev")

	meta.Set(types.PropMaxSlewRate, "1")
	meta.Set(types.PropStdDev, "0.5")
	q, err := New(KindGaussianSlewLimited, meta, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, q.LastVal())

	_, err = New("Brownian", meta, nil, 0)
	assert.Error(t, err)
	assert.Contains(t, Kinds(), KindConstant)
}
