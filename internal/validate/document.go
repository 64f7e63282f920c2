// Package validate renders devices to the YAML interface description and
// compares an expected description against a device.
package validate

import (
	"context"
	"fmt"
	"sort"

	"github.com/KevinKickass/OpenSimCore/internal/host"
	"github.com/KevinKickass/OpenSimCore/internal/parsers"
	"gopkg.in/yaml.v3"
)

// Document is a sequence of device class descriptions.
type Document []Entry

type Entry struct {
	Class string `yaml:"class"`
	Meta  Meta   `yaml:"meta"`
}

type Meta struct {
	Commands   []CommandSpec   `yaml:"commands"`
	Attributes []AttributeSpec `yaml:"attributes"`
	Properties []PropertySpec  `yaml:"properties"`
}

type CommandSpec struct {
	Name     string `yaml:"name"`
	DtypeIn  string `yaml:"dtype_in"`
	DtypeOut string `yaml:"dtype_out"`
}

type AttributeSpec struct {
	Name     string `yaml:"name"`
	DataType string `yaml:"data_type"`
}

type PropertySpec struct {
	Name string `yaml:"name"`
}

// FromMerged describes the class named by parsed description files.
func FromMerged(m parsers.Merged) Document {
	entry := Entry{Class: m.ClassName}

	for _, name := range sortedKeys(m.Commands) {
		c := m.Commands[name]
		entry.Meta.Commands = append(entry.Meta.Commands, CommandSpec{
			Name: name, DtypeIn: c.DtypeIn.String(), DtypeOut: c.DtypeOut.String(),
		})
	}
	for _, name := range sortedKeys(m.Attributes) {
		entry.Meta.Attributes = append(entry.Meta.Attributes, AttributeSpec{
			Name: name, DataType: m.Attributes[name].DataType.String(),
		})
	}
	for _, name := range sortedKeys(m.Properties) {
		entry.Meta.Properties = append(entry.Meta.Properties, PropertySpec{Name: name})
	}
	return Document{entry}
}

// FromInstance describes a live device.
func FromInstance(ctx context.Context, inst *host.Instance) (Document, error) {
	entry := Entry{Class: inst.Class}

	for _, name := range inst.CommandNames() {
		c, _ := inst.Command(name)
		entry.Meta.Commands = append(entry.Meta.Commands, CommandSpec{
			Name: name, DtypeIn: c.DtypeIn.String(), DtypeOut: c.DtypeOut.String(),
		})
	}

	names := inst.AttributeNames()
	sort.Strings(names)
	for _, name := range names {
		meta, _ := inst.Attribute(name)
		entry.Meta.Attributes = append(entry.Meta.Attributes, AttributeSpec{
			Name: name, DataType: meta.DataType.String(),
		})
	}

	props, err := inst.PropertyDB().GetDeviceProperty(ctx, inst.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to read properties of %s: %w", inst.Name, err)
	}
	for _, name := range sortedKeys(props) {
		entry.Meta.Properties = append(entry.Meta.Properties, PropertySpec{Name: name})
	}
	return Document{entry}, nil
}

func Render(doc Document) ([]byte, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render YAML: %w", err)
	}
	return out, nil
}

func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return doc, nil
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
