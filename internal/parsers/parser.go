// Package parsers decodes device description files into canonical metadata.
package parsers

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/KevinKickass/OpenSimCore/internal/types"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Parser decodes one description file. A parser is single-use: call Parse
// once, then read the accessors.
type Parser interface {
	Parse(path string) error

	// Source is the path that was parsed.
	Source() string
	ClassName() string

	AttributeMetadata() map[string]types.AttributeMeta
	CommandMetadata() map[string]types.CommandMeta
	PropertyMetadata() map[string]types.PropertyMeta
	OverrideMetadata() map[string]types.OverrideMeta
}

// catalog holds the canonical views every parser fills.
type catalog struct {
	source     string
	className  string
	attributes map[string]types.AttributeMeta
	commands   map[string]types.CommandMeta
	properties map[string]types.PropertyMeta
	overrides  map[string]types.OverrideMeta
}

func newCatalog() catalog {
	return catalog{
		attributes: make(map[string]types.AttributeMeta),
		commands:   make(map[string]types.CommandMeta),
		properties: make(map[string]types.PropertyMeta),
		overrides:  make(map[string]types.OverrideMeta),
	}
}

func (c *catalog) Source() string    { return c.source }
func (c *catalog) ClassName() string { return c.className }

func (c *catalog) AttributeMetadata() map[string]types.AttributeMeta { return c.attributes }
func (c *catalog) CommandMetadata() map[string]types.CommandMeta     { return c.commands }
func (c *catalog) PropertyMetadata() map[string]types.PropertyMeta   { return c.properties }
func (c *catalog) OverrideMetadata() map[string]types.OverrideMeta   { return c.overrides }

func asciiFold() transform.Transformer {
	return transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			if r > unicode.MaxASCII {
				return '?'
			}
			return r
		}),
	)
}

// toASCII folds accents away and replaces anything else outside ASCII
// with '?'.
func toASCII(s string) string {
	for _, r := range s {
		if r > unicode.MaxASCII {
			out, _, err := transform.String(asciiFold(), s)
			if err != nil {
				return s
			}
			return out
		}
	}
	return s
}

// stringify renders a decoded JSON scalar as a bag value.
func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	case []any:
		parts := make([]string, len(value))
		for i, item := range value {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}

func formatFor(t types.DataType) types.DataFormat {
	if t.IsArray() {
		return types.FormatSpectrum
	}
	return types.FormatScalar
}

func atoiDefault(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid dimension %q: %w", s, err)
	}
	return int(f), nil
}
