package quantity

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/KevinKickass/OpenSimCore/internal/types"
)

const (
	FieldMean        = "mean"
	FieldStdDev      = "std_dev"
	FieldMaxSlewRate = "max_slew_rate"
	FieldMinBound    = "min_bound"
	FieldMaxBound    = "max_bound"
)

// GaussianParams configures a GaussianSlewLimited quantity.
type GaussianParams struct {
	Mean        float64
	StdDev      float64
	MaxSlewRate float64
	MinBound    float64
	MaxBound    float64
}

func (p GaussianParams) validate() error {
	if !(p.MaxSlewRate > 0) {
		return fmt.Errorf("max_slew_rate must be positive, got %v", p.MaxSlewRate)
	}
	if p.StdDev < 0 {
		return fmt.Errorf("std_dev must not be negative, got %v", p.StdDev)
	}
	if p.MinBound > p.MaxBound {
		return fmt.Errorf("min_bound %v exceeds max_bound %v", p.MinBound, p.MaxBound)
	}
	return nil
}

// GaussianSlewLimited draws from N(mean, std_dev), caps the step at
// max_slew_rate per second and clips to [min_bound, max_bound].
type GaussianSlewLimited struct {
	base
	GaussianParams
	rng *rand.Rand
}

type GaussianOption func(*GaussianSlewLimited)

// WithRand injects the random source, for reproducible sequences.
func WithRand(r *rand.Rand) GaussianOption {
	return func(g *GaussianSlewLimited) {
		g.rng = r
	}
}

// WithSeed seeds a private PCG source.
func WithSeed(seed uint64) GaussianOption {
	return WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

func NewGaussianSlewLimited(
	meta *types.AttributeMeta,
	params GaussianParams,
	start float64,
	startTime float64,
	opts ...GaussianOption,
) (*GaussianSlewLimited, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	seed := uint64(time.Now().UnixNano())
	g := &GaussianSlewLimited{
		base:           newBase(meta, start, startTime),
		GaussianParams: params,
		rng:            rand.New(rand.NewPCG(seed, seed>>1)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *GaussianSlewLimited) NextVal(t float64) (any, error) {
	last, ok := types.ToFloat(g.lastVal)
	if !ok {
		return g.lastVal, fmt.Errorf("%w: last value %v is not numeric", types.ErrUpdate, g.lastVal)
	}

	dt := t - g.lastUpdateTime
	maxStep := 0.0
	if dt > 0 {
		maxStep = g.MaxSlewRate * dt
	}

	candidate := g.rng.NormFloat64()*g.StdDev + g.Mean
	delta := candidate - last
	if math.Abs(delta) > maxStep {
		delta = math.Copysign(maxStep, delta)
	}

	next := math.Min(math.Max(last+delta, g.MinBound), g.MaxBound)
	g.lastVal = next
	g.advance(t)
	return next, nil
}

func (g *GaussianSlewLimited) DefaultVal(t float64) {
	g.SetVal(0.0, t)
}

func (g *GaussianSlewLimited) AdjustableAttributes() []string {
	return sortedFields(FieldMean, FieldStdDev, FieldMaxSlewRate, FieldMinBound, FieldMaxBound)
}

func (g *GaussianSlewLimited) Attribute(field string) (any, error) {
	switch field {
	case FieldMean:
		return g.Mean, nil
	case FieldStdDev:
		return g.StdDev, nil
	case FieldMaxSlewRate:
		return g.MaxSlewRate, nil
	case FieldMinBound:
		return g.MinBound, nil
	case FieldMaxBound:
		return g.MaxBound, nil
	}
	return g.baseAttribute(field)
}

func (g *GaussianSlewLimited) SetAttribute(field string, v any, t float64) error {
	target := g.GaussianParams.fieldPtr(field)
	if target == nil {
		return g.setBaseAttribute(field, v, t)
	}

	f, ok := types.ToFloat(v)
	if !ok {
		return fmt.Errorf("%s must be numeric, got %T", field, v)
	}
	if field == FieldMaxSlewRate && !(f > 0) {
		return fmt.Errorf("max_slew_rate must be positive, got %v", f)
	}
	*target = f
	return nil
}

func (p *GaussianParams) fieldPtr(field string) *float64 {
	switch field {
	case FieldMean:
		return &p.Mean
	case FieldStdDev:
		return &p.StdDev
	case FieldMaxSlewRate:
		return &p.MaxSlewRate
	case FieldMinBound:
		return &p.MinBound
	case FieldMaxBound:
		return &p.MaxBound
	}
	return nil
}
