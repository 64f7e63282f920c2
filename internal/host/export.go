package host

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenSimCore/internal/parsers"
	"github.com/KevinKickass/OpenSimCore/internal/types"
)

// Export introspects a live device into the fandango dump shape.
func (d *Instance) Export(ctx context.Context) (parsers.FandangoDocument, error) {
	props, err := d.db.GetDeviceProperty(ctx, d.Name)
	if err != nil {
		return parsers.FandangoDocument{}, fmt.Errorf("failed to read properties of %s: %w", d.Name, err)
	}

	doc := parsers.FandangoDocument{
		Name:       d.Name,
		Class:      d.Class,
		DevClass:   d.Class,
		Attributes: make(map[string]parsers.FandangoAttribute),
		Commands:   make(map[string]parsers.FandangoCommand),
		Properties: props,
	}

	readings := d.ReadAll()
	for _, name := range d.AttributeNames() {
		meta, ok := d.Attribute(name)
		if !ok {
			continue
		}
		attr := parsers.FandangoAttribute{
			Name:        name,
			DataType:    meta.DataType.String(),
			DataFormat:  meta.DataFormat.String(),
			Writable:    meta.Writable.String(),
			MaxDimX:     meta.MaxDimX,
			MaxDimY:     meta.MaxDimY,
			Label:       meta.Get(types.PropLabel),
			Unit:        meta.Get(types.PropUnit),
			Description: meta.Get(types.PropDescription),
			Format:      meta.Get(types.PropFormat),
			MinValue:    emptyNil(meta.Get(types.PropMinValue)),
			MaxValue:    emptyNil(meta.Get(types.PropMaxValue)),
			MinAlarm:    emptyNil(meta.Get(types.PropMinAlarm)),
			MaxAlarm:    emptyNil(meta.Get(types.PropMaxAlarm)),
			EnumLabels:  meta.EnumLabels,
		}
		if r, ok := readings[name]; ok {
			attr.Value = types.Plain(r.Value)
		}
		doc.Attributes[name] = attr
	}

	for _, name := range d.CommandNames() {
		c, _ := d.Command(name)
		doc.Commands[name] = parsers.FandangoCommand{
			Name:        name,
			InType:      c.DtypeIn.String(),
			OutType:     c.DtypeOut.String(),
			InTypeDesc:  c.DocIn,
			OutTypeDesc: c.DocOut,
		}
	}
	return doc, nil
}

func emptyNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
