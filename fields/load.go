package fields

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// DefaultCatalogName names the catalog of a file that defines top-level
// fields instead of named catalogs.
const DefaultCatalogName = "default"

const catalogFileVersion = 1

type catalogFile struct {
	Version  int                    `json:"version" yaml:"version"`
	Fields   []fieldSpec            `json:"fields" yaml:"fields"`
	Catalogs map[string]catalogSpec `json:"catalogs" yaml:"catalogs"`
}

type catalogSpec struct {
	Fields []fieldSpec `json:"fields" yaml:"fields"`
}

type fieldSpec struct {
	Name       string      `json:"name" yaml:"name"`
	Label      string      `json:"label" yaml:"label"`
	Type       string      `json:"type" yaml:"type"`
	Operators  []string    `json:"operators" yaml:"operators"`
	Required   bool        `json:"required" yaml:"required"`
	Validators []Validator `json:"validators" yaml:"validators"`
}

// LoadCatalogFile reads a YAML or JSON catalog file (chosen by extension,
// YAML unless the file ends in .json) and builds every catalog it defines.
func LoadCatalogFile(path string, reg *Registry) (map[string]*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return ParseCatalogs(b, format, reg)
}

// ParseCatalogs decodes catalog definitions in the given format ("yaml" or
// "json") and builds them against reg (the default registry when nil).
func ParseCatalogs(data []byte, format string, reg *Registry) (map[string]*Catalog, error) {
	var cf catalogFile
	switch format {
	case "json":
		if err := json.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}

	if cf.Version != 0 && cf.Version != catalogFileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidCatalog, cf.Version)
	}
	if len(cf.Fields) > 0 && len(cf.Catalogs) > 0 {
		return nil, fmt.Errorf("%w: file defines both top-level fields and named catalogs", ErrInvalidCatalog)
	}

	specs := cf.Catalogs
	if len(cf.Fields) > 0 {
		specs = map[string]catalogSpec{DefaultCatalogName: {Fields: cf.Fields}}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no catalogs defined", ErrInvalidCatalog)
	}
	if reg == nil {
		reg = DefaultRegistry()
	}

	out := make(map[string]*Catalog, len(specs))
	for name, spec := range specs {
		defs, err := spec.definitions()
		if err != nil {
			return nil, fmt.Errorf("catalog %q: %w", name, err)
		}
		c, err := NewCatalog(defs, WithRegistry(reg))
		if err != nil {
			return nil, fmt.Errorf("catalog %q: %w", name, err)
		}
		out[name] = c
	}
	return out, nil
}

func (s catalogSpec) definitions() ([]Field, error) {
	defs := make([]Field, 0, len(s.Fields))
	for _, fs := range s.Fields {
		ft, err := ParseFieldType(fs.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", ErrInvalidCatalog, fs.Name, err)
		}
		ops := make([]Operator, 0, len(fs.Operators))
		for _, sym := range fs.Operators {
			ops = append(ops, Operator{Symbol: sym})
		}
		defs = append(defs, Field{
			Name:       fs.Name,
			Label:      fs.Label,
			Type:       ft,
			Operators:  ops,
			Required:   fs.Required,
			Validators: fs.Validators,
		})
	}
	return defs, nil
}
