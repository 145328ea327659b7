package fields

// AnyOperator in Validator.Operator applies a validator to every operator of
// the field.
const AnyOperator = "*"

// Validator is a custom business rule attached to a field. It is plain data:
// Predicate names an entry in a Registry and is resolved when the catalog is
// built.
type Validator struct {
	Operator  string `json:"operator" yaml:"operator"`
	Predicate string `json:"predicate" yaml:"predicate"`
	Message   string `json:"message" yaml:"message"`
}

type check struct {
	operator string
	pred     PredicateFunc
	message  string
}

// Field is a queryable field. Fields are owned by a Catalog and must not be
// modified once the catalog is built.
type Field struct {
	Name       string      `json:"name"`
	Label      string      `json:"label,omitempty"`
	Type       FieldType   `json:"type"`
	Operators  []Operator  `json:"operators"`
	Required   bool        `json:"required,omitempty"`
	Validators []Validator `json:"validators,omitempty"`

	checks []check
}

// Operator returns the field's descriptor for symbol.
func (f *Field) Operator(symbol string) (Operator, bool) {
	for _, op := range f.Operators {
		if op.Symbol == symbol {
			return op, true
		}
	}
	return Operator{}, false
}

// RunValidators runs the custom validators registered for operator, in
// declaration order, against values. It stops at the first failing predicate
// and returns its message.
func (f *Field) RunValidators(operator string, values []any) (string, bool) {
	for _, c := range f.checks {
		if c.operator != operator && c.operator != AnyOperator {
			continue
		}
		if !c.pred(values) {
			return c.message, false
		}
	}
	return "", true
}
