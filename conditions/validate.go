package conditions

import (
	"github.com/liamcoop/querybuilder/fields"
)

// Validator checks trees against a catalog. It never mutates the tree and
// is safe for concurrent use.
type Validator struct {
	catalog  *fields.Catalog
	maxDepth int
}

// NewValidator returns a validator for catalog. A negative maxDepth selects
// DefaultMaxDepth.
func NewValidator(catalog *fields.Catalog, maxDepth int) *Validator {
	if maxDepth < 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Validator{catalog: catalog, maxDepth: maxDepth}
}

// Validate walks root depth-first in pre-order and returns every violation
// found. A nil result means the tree is valid.
//
// A group deeper than the max depth is reported once and not descended into.
// A group with an unknown connective is reported as malformed.
// A rule whose field is unknown gets no further checks. Otherwise the rule is
// checked for operator membership, operand count, operand type, required
// operands, and finally the field's custom validators, stopping at the first
// failing validator.
func (v *Validator) Validate(root *Group) []Violation {
	if root == nil {
		return nil
	}
	var out []Violation
	v.visitGroup(root, Path{}, &out)
	return out
}

func (v *Validator) visitGroup(g *Group, path Path, out *[]Violation) {
	if len(path) > v.maxDepth {
		*out = append(*out, *newViolation(path, KindMaxDepthExceeded,
			"group at depth %d exceeds max depth %d", len(path), v.maxDepth))
		return
	}
	if !g.Connective.Valid() {
		*out = append(*out, *newViolation(path, KindMalformedDocument,
			"group has unknown connective %q", g.Connective))
	}
	for i, child := range g.Children {
		switch n := child.(type) {
		case *Rule:
			if n != nil {
				v.visitRule(n, path.Child(i), out)
			}
		case *Group:
			if n != nil {
				v.visitGroup(n, path.Child(i), out)
			}
		}
	}
}

func (v *Validator) visitRule(r *Rule, path Path, out *[]Violation) {
	f, err := v.catalog.Lookup(r.Field)
	if err != nil {
		*out = append(*out, *newViolation(path, KindUnknownField, "field %q is not in the catalog", r.Field))
		return
	}

	op, known := f.Operator(r.Operator)
	if !known {
		*out = append(*out, *newViolation(path, KindInvalidOperator,
			"operator %q is not allowed for field %q", r.Operator, r.Field))
	}

	wellFormed := known
	if known && len(r.Values) != op.Arity {
		*out = append(*out, *newViolation(path, KindArityMismatch,
			"operator %q takes %d value(s), got %d", r.Operator, op.Arity, len(r.Values)))
		wellFormed = false
	}

	var coerced []any
	if wellFormed {
		coerced = make([]any, len(r.Values))
		for i, raw := range r.Values {
			if fields.IsEmpty(raw) {
				continue
			}
			c, err := fields.Coerce(f.Type, raw)
			if err != nil {
				*out = append(*out, *newViolation(path, KindTypeMismatch,
					"value %v is not a valid %s for field %q", raw, f.Type, r.Field))
				wellFormed = false
				break
			}
			coerced[i] = c
		}
	}

	empty := hasEmptyOperand(r.Values)
	needsValue := !known || op.Arity > 0
	if f.Required && needsValue && empty {
		*out = append(*out, *newViolation(path, KindRequiredFieldEmpty, "field %q requires a value", r.Field))
	}

	// Custom validators only see complete, typed operands.
	if !wellFormed || empty {
		return
	}
	if msg, ok := f.RunValidators(r.Operator, coerced); !ok {
		*out = append(*out, *newViolation(path, KindCustomRuleFailed, "%s", msg))
	}
}

func hasEmptyOperand(values []any) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		if fields.IsEmpty(v) {
			return true
		}
	}
	return false
}
