package fields

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrUnknownField is returned when a field name is not in the catalog.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidCatalog is returned when a catalog definition is rejected.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

const maxIdentifierLength = 100

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Catalog is an immutable set of field definitions.
type Catalog struct {
	fields []*Field
	byName map[string]*Field
}

// CatalogOption configures NewCatalog.
type CatalogOption func(*catalogOptions)

type catalogOptions struct {
	registry *Registry
}

// WithRegistry resolves validator predicates against reg instead of the
// default registry.
func WithRegistry(reg *Registry) CatalogOption {
	return func(o *catalogOptions) {
		o.registry = reg
	}
}

// NewCatalog validates defs and builds a catalog from copies of them.
// A field that lists no operators receives every standard operator that
// applies to its type.
func NewCatalog(defs []Field, opts ...CatalogOption) (*Catalog, error) {
	o := catalogOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}

	c := &Catalog{
		fields: make([]*Field, 0, len(defs)),
		byName: make(map[string]*Field, len(defs)),
	}

	for i := range defs {
		f, err := buildField(defs[i], o.registry)
		if err != nil {
			return nil, err
		}
		if _, dup := c.byName[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field name %q", ErrInvalidCatalog, f.Name)
		}
		c.fields = append(c.fields, f)
		c.byName[f.Name] = f
	}

	return c, nil
}

func buildField(def Field, reg *Registry) (*Field, error) {
	if err := validateIdentifier(def.Name); err != nil {
		return nil, fmt.Errorf("%w: invalid field name %q: %w", ErrInvalidCatalog, def.Name, err)
	}
	if _, ok := kindNames[def.Type.Kind]; !ok {
		return nil, fmt.Errorf("%w: field %q has no type", ErrInvalidCatalog, def.Name)
	}
	if def.Type.Kind == KindCustom && def.Type.Tag == "" {
		return nil, fmt.Errorf("%w: field %q has a custom type without a tag", ErrInvalidCatalog, def.Name)
	}

	f := &Field{
		Name:     def.Name,
		Label:    def.Label,
		Type:     def.Type,
		Required: def.Required,
	}
	if f.Label == "" {
		f.Label = f.Name
	}

	if len(def.Operators) == 0 {
		f.Operators = StandardOperatorsFor(def.Type)
	} else {
		f.Operators = make([]Operator, 0, len(def.Operators))
		for _, op := range def.Operators {
			std, ok := StandardOperator(op.Symbol)
			if !ok {
				return nil, fmt.Errorf("%w: field %q: unsupported operator %q", ErrInvalidCatalog, def.Name, op.Symbol)
			}
			if !std.AppliesTo(def.Type) {
				return nil, fmt.Errorf("%w: field %q: operator %q does not apply to type %s", ErrInvalidCatalog, def.Name, op.Symbol, def.Type)
			}
			if _, dup := f.Operator(op.Symbol); dup {
				return nil, fmt.Errorf("%w: field %q: duplicate operator %q", ErrInvalidCatalog, def.Name, op.Symbol)
			}
			f.Operators = append(f.Operators, std)
		}
	}

	f.Validators = make([]Validator, 0, len(def.Validators))
	for _, v := range def.Validators {
		if v.Operator != AnyOperator {
			if _, ok := f.Operator(v.Operator); !ok {
				return nil, fmt.Errorf("%w: field %q: validator for operator %q which the field does not support", ErrInvalidCatalog, def.Name, v.Operator)
			}
		}
		pred, err := reg.Resolve(v.Predicate)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", ErrInvalidCatalog, def.Name, err)
		}
		msg := v.Message
		if msg == "" {
			msg = fmt.Sprintf("%s failed validation %q", def.Name, v.Predicate)
		}
		f.Validators = append(f.Validators, Validator{Operator: v.Operator, Predicate: v.Predicate, Message: msg})
		f.checks = append(f.checks, check{operator: v.Operator, pred: pred, message: msg})
	}

	return f, nil
}

// Lookup returns the field named name.
func (c *Catalog) Lookup(name string) (*Field, error) {
	f, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return f, nil
}

// OperatorsFor returns the ordered operator set of the named field.
func (c *Catalog) OperatorsFor(name string) ([]Operator, error) {
	f, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	ops := make([]Operator, len(f.Operators))
	copy(ops, f.Operators)
	return ops, nil
}

// Fields returns the catalog's fields in definition order.
func (c *Catalog) Fields() []*Field {
	out := make([]*Field, len(c.fields))
	copy(out, c.fields)
	return out
}

// Len returns the number of fields.
func (c *Catalog) Len() int {
	return len(c.fields)
}

// validateIdentifier checks a field name: 1-100 characters, letters, digits
// and underscores, not starting with a digit, not a keyword of the rendered
// query text.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern %s", identifierPattern)
	}
	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

// isReservedKeyword reports whether name collides with a word of the
// readable or SQL-like query text.
func isReservedKeyword(name string) bool {
	switch strings.ToUpper(name) {
	case "AND", "OR", "NOT", "TRUE", "FALSE", "NULL", "BETWEEN", "LIKE", "IS":
		return true
	}
	return false
}
