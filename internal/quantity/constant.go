package quantity

import "github.com/KevinKickass/OpenSimCore/internal/types"

// Constant holds its value until explicitly set.
type Constant struct {
	base
}

// NewConstant creates a constant quantity. A nil start selects the class
// default of true.
func NewConstant(meta *types.AttributeMeta, start any, startTime float64) *Constant {
	if start == nil {
		start = true
	}
	return &Constant{base: newBase(meta, start, startTime)}
}

func (c *Constant) NextVal(t float64) (any, error) {
	c.advance(t)
	return c.lastVal, nil
}

func (c *Constant) DefaultVal(t float64) {
	c.SetVal(true, t)
}

func (c *Constant) AdjustableAttributes() []string {
	return sortedFields()
}

func (c *Constant) Attribute(field string) (any, error) {
	return c.baseAttribute(field)
}

func (c *Constant) SetAttribute(field string, v any, t float64) error {
	return c.setBaseAttribute(field, v, t)
}
