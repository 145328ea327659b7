// Package evaluate compiles a validated condition tree into a predicate over
// records and filters record collections with it.
package evaluate

import (
	"strings"

	"github.com/liamcoop/querybuilder/conditions"
	"github.com/liamcoop/querybuilder/fields"
)

type options struct {
	caseSensitive bool
}

// Option configures Compile.
type Option func(*options)

// WithCaseSensitive controls whether contains, notcontains, startswith and
// endswith compare case-sensitively. They ignore case by default.
func WithCaseSensitive(sensitive bool) Option {
	return func(o *options) {
		o.caseSensitive = sensitive
	}
}

// Query is a compiled tree. It holds no reference to the tree it came from
// and is safe for concurrent use.
type Query struct {
	root Matcher
}

// Compile validates tree and compiles it. An invalid tree is rejected with a
// *conditions.ViolationError carrying exactly the violations Validate reports.
func Compile(tree *conditions.Tree, opts ...Option) (*Query, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if violations := tree.Validate(); len(violations) > 0 {
		return nil, &conditions.ViolationError{Violations: violations}
	}

	return &Query{root: compileGroup(tree.Root(), tree.Catalog(), o)}, nil
}

func compileGroup(g *conditions.Group, catalog *fields.Catalog, o options) Matcher {
	matchers := make([]Matcher, 0, len(g.Children))
	for _, child := range g.Children {
		switch n := child.(type) {
		case *conditions.Rule:
			if n != nil {
				matchers = append(matchers, compileRule(n, catalog, o))
			}
		case *conditions.Group:
			if n != nil {
				matchers = append(matchers, compileGroup(n, catalog, o))
			}
		}
	}

	if g.Connective == conditions.Or {
		return &Or{Matchers: matchers}
	}
	return &And{Matchers: matchers}
}

func compileRule(r *conditions.Rule, catalog *fields.Catalog, o options) Matcher {
	// the tree validated, so the field exists
	f, _ := catalog.Lookup(r.Field)

	rm := &RuleMatcher{
		Field:         r.Field,
		Type:          f.Type,
		Op:            r.Operator,
		Operands:      make([]any, len(r.Values)),
		caseSensitive: o.caseSensitive,
	}
	for i, raw := range r.Values {
		v, err := fields.Coerce(f.Type, raw)
		if err != nil {
			// an empty operand on an optional field; the rule can never match
			continue
		}
		if s, ok := v.(string); ok && !o.caseSensitive && isTextOperator(r.Operator) {
			v = strings.ToLower(s)
		}
		rm.Operands[i] = v
	}
	return rm
}

func isTextOperator(op string) bool {
	switch op {
	case fields.OpContains, fields.OpNotContains, fields.OpStartsWith, fields.OpEndsWith:
		return true
	}
	return false
}

// Matches reports whether r satisfies the query.
func (q *Query) Matches(r Record) bool {
	return q.root.Matches(r)
}

// Predicate returns the query as a plain function.
func (q *Query) Predicate() Predicate {
	return q.root.Matches
}

// Matcher returns the root of the compiled matcher tree.
func (q *Query) Matcher() Matcher {
	return q.root
}

func (q *Query) String() string {
	return q.root.String()
}
