package quantity

import (
	"fmt"
	"sort"

	"github.com/KevinKickass/OpenSimCore/internal/types"
)

// Field names every quantity exposes for adjustment.
const (
	FieldLastVal        = "last_val"
	FieldLastUpdateTime = "last_update_time"
)

// Quantity is a simulated scalar or array value that evolves over time.
// Implementations are not safe for concurrent use; the owning model's
// monitor serializes access.
type Quantity interface {
	// NextVal advances the quantity to simulated time t and returns the new value.
	NextVal(t float64) (any, error)
	// SetVal forces the value at time t.
	SetVal(v any, t float64)
	// DefaultVal resets the quantity to its class default at time t.
	DefaultVal(t float64)

	LastVal() any
	LastUpdateTime() float64
	Meta() *types.AttributeMeta

	// AdjustableAttributes lists the fields a control surface may tune, sorted.
	AdjustableAttributes() []string
	Attribute(field string) (any, error)
	SetAttribute(field string, v any, t float64) error
}

type base struct {
	lastVal        any
	lastUpdateTime float64
	meta           *types.AttributeMeta
}

func newBase(meta *types.AttributeMeta, start any, startTime float64) base {
	if meta == nil {
		meta = &types.AttributeMeta{}
	}
	return base{lastVal: start, lastUpdateTime: startTime, meta: meta}
}

func (b *base) LastVal() any               { return b.lastVal }
func (b *base) LastUpdateTime() float64    { return b.lastUpdateTime }
func (b *base) Meta() *types.AttributeMeta { return b.meta }

func (b *base) SetVal(v any, t float64) {
	b.lastVal = v
	b.advance(t)
}

// advance keeps last_update_time monotonically non-decreasing.
func (b *base) advance(t float64) {
	if t > b.lastUpdateTime {
		b.lastUpdateTime = t
	}
}

func (b *base) baseAttribute(field string) (any, error) {
	switch field {
	case FieldLastVal:
		return b.lastVal, nil
	case FieldLastUpdateTime:
		return b.lastUpdateTime, nil
	}
	return nil, fmt.Errorf("unknown adjustable attribute %q", field)
}

func (b *base) setBaseAttribute(field string, v any, t float64) error {
	switch field {
	case FieldLastVal:
		b.SetVal(v, t)
		return nil
	case FieldLastUpdateTime:
		f, ok := types.ToFloat(v)
		if !ok {
			return fmt.Errorf("%s must be numeric, got %T", field, v)
		}
		b.lastUpdateTime = f
		return nil
	}
	return fmt.Errorf("unknown adjustable attribute %q", field)
}

func sortedFields(fields ...string) []string {
	out := append([]string{FieldLastVal, FieldLastUpdateTime}, fields...)
	sort.Strings(out)
	return out
}
