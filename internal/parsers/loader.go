package parsers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenSimCore/internal/types"
)

// Extension precedence for picking the emitted class name.
var classNamePrecedence = []string{".xmi", ".fgo", ".json"}

// Loader resolves description files against search paths and parses them
// with the parser matching their suffix.
type Loader struct {
	cache       sync.Map
	validator   *SchemaValidator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// NewParser returns a fresh parser for path's suffix.
func (l *Loader) NewParser(path string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xmi":
		return NewXMIParser(), nil
	case ".json":
		return NewSimDDParser(l.validator), nil
	case ".fgo":
		return NewFandangoParser(), nil
	case ".xml":
		return NewSDDParser(), nil
	}
	return nil, fmt.Errorf("unsupported description file %q (want .xmi, .json, .fgo or .xml)", path)
}

func (l *Loader) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("description file not found: %s", path)
		}
		return path, nil
	}

	if _, err := os.Stat(path); err == nil {
		return filepath.Abs(path)
	}
	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, path)
		if _, err := os.Stat(fullPath); err == nil {
			return filepath.Abs(fullPath)
		}
	}
	return "", fmt.Errorf("description file not found: %s (searched in: %v)", path, l.searchPaths)
}

// Load parses one file, caching by resolved path.
func (l *Loader) Load(path string) (Parser, error) {
	resolved, err := l.resolve(path)
	if err != nil {
		return nil, err
	}

	if cached, ok := l.cache.Load(resolved); ok {
		return cached.(Parser), nil
	}

	p, err := l.NewParser(resolved)
	if err != nil {
		return nil, err
	}
	if err := p.Parse(resolved); err != nil {
		return nil, err
	}

	l.cache.Store(resolved, p)
	return p, nil
}

// LoadAll parses every file in order.
func (l *Loader) LoadAll(paths []string) ([]Parser, error) {
	out := make([]Parser, 0, len(paths))
	for _, path := range paths {
		p, err := l.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}

// ClassName picks the class name by file precedence (.xmi, .fgo, .json),
// then the first parser that names one.
func ClassName(parsers []Parser) string {
	for _, ext := range classNamePrecedence {
		for _, p := range parsers {
			if strings.EqualFold(filepath.Ext(p.Source()), ext) && p.ClassName() != "" {
				return p.ClassName()
			}
		}
	}
	for _, p := range parsers {
		if p.ClassName() != "" {
			return p.ClassName()
		}
	}
	return ""
}

// Merged is the union of several parsers' views, later files winning on
// non-empty values.
type Merged struct {
	ClassName  string
	Attributes map[string]types.AttributeMeta
	Commands   map[string]types.CommandMeta
	Properties map[string]types.PropertyMeta
	Overrides  map[string]types.OverrideMeta
}

func Merge(parsers []Parser) Merged {
	m := Merged{
		ClassName:  ClassName(parsers),
		Attributes: make(map[string]types.AttributeMeta),
		Commands:   make(map[string]types.CommandMeta),
		Properties: make(map[string]types.PropertyMeta),
		Overrides:  make(map[string]types.OverrideMeta),
	}
	for _, p := range parsers {
		for name, a := range p.AttributeMetadata() {
			existing, ok := m.Attributes[name]
			if !ok {
				m.Attributes[name] = a.Clone()
				continue
			}
			existing.Merge(a)
			m.Attributes[name] = existing
		}
		for name, c := range p.CommandMetadata() {
			existing := m.Commands[name]
			existing.Merge(c)
			m.Commands[name] = existing
		}
		for name, prop := range p.PropertyMetadata() {
			m.Properties[name] = prop
		}
		for name, o := range p.OverrideMetadata() {
			m.Overrides[name] = o
		}
	}
	return m
}
