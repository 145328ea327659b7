package evaluate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/liamcoop/querybuilder/fields"
)

// Record is a single row being filtered, addressed by field name.
type Record interface {
	Lookup(name string) (any, bool)
}

// MapRecord adapts a map to Record.
type MapRecord map[string]any

// Lookup returns the value stored under name.
func (m MapRecord) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Predicate is a compiled, read-only test over a record.
type Predicate func(Record) bool

// Matcher is a node of a compiled query.
type Matcher interface {
	Matches(Record) bool
	String() string
}

// And matches when every child matches. With no children it matches
// everything.
type And struct {
	Matchers []Matcher
}

func (a *And) String() string {
	s := "(and"
	for _, m := range a.Matchers {
		s += fmt.Sprintf(" %s", m)
	}
	return s + ")"
}

// Matches evaluates children left to right and stops at the first miss.
func (a *And) Matches(r Record) bool {
	for _, m := range a.Matchers {
		if !m.Matches(r) {
			return false
		}
	}
	return true
}

// Or matches when any child matches. With no children it matches nothing.
type Or struct {
	Matchers []Matcher
}

func (o *Or) String() string {
	s := "(or"
	for _, m := range o.Matchers {
		s += fmt.Sprintf(" %s", m)
	}
	return s + ")"
}

// Matches evaluates children left to right and stops at the first hit.
func (o *Or) Matches(r Record) bool {
	for _, m := range o.Matchers {
		if m.Matches(r) {
			return true
		}
	}
	return false
}

// RuleMatcher applies one operator to one record field. Operands are
// coerced to the field type when the query is compiled.
type RuleMatcher struct {
	Field    string
	Type     fields.FieldType
	Op       string
	Operands []any

	caseSensitive bool
}

func (rm *RuleMatcher) String() string {
	parts := make([]string, 0, len(rm.Operands)+2)
	parts = append(parts, rm.Op, rm.Field)
	for _, v := range rm.Operands {
		if s, ok := v.(string); ok {
			parts = append(parts, strconv.Quote(s))
			continue
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Matches looks the field up in r and applies the operator. A field missing
// from the record never matches, except for isnull and isempty.
func (rm *RuleMatcher) Matches(r Record) bool {
	raw, present := r.Lookup(rm.Field)

	switch rm.Op {
	case fields.OpIsNull:
		return !present || raw == nil
	case fields.OpIsEmpty:
		return !present || fields.IsEmpty(raw)
	case fields.OpIsNotNull:
		return present && raw != nil
	case fields.OpIsNotEmpty:
		return present && !fields.IsEmpty(raw)
	}
	if !present || raw == nil {
		return false
	}

	v, err := fields.Coerce(rm.Type, raw)
	if err != nil {
		return false
	}

	switch rm.Op {
	case fields.OpEqual:
		return rm.compare(v, func(c int) bool { return c == 0 })
	case fields.OpNotEqual:
		return rm.compare(v, func(c int) bool { return c != 0 })
	case fields.OpLess:
		return rm.compare(v, func(c int) bool { return c < 0 })
	case fields.OpLessOrEqual:
		return rm.compare(v, func(c int) bool { return c <= 0 })
	case fields.OpGreater:
		return rm.compare(v, func(c int) bool { return c > 0 })
	case fields.OpGreaterOrEq:
		return rm.compare(v, func(c int) bool { return c >= 0 })
	case fields.OpBetween:
		in, ok := rm.between(v)
		return ok && in
	case fields.OpNotBetween:
		in, ok := rm.between(v)
		return ok && !in
	case fields.OpContains:
		return rm.text(v, strings.Contains)
	case fields.OpNotContains:
		s, ok := v.(string)
		return ok && !rm.text(s, strings.Contains)
	case fields.OpStartsWith:
		return rm.text(v, strings.HasPrefix)
	case fields.OpEndsWith:
		return rm.text(v, strings.HasSuffix)
	}
	return false
}

func (rm *RuleMatcher) compare(v any, test func(int) bool) bool {
	if len(rm.Operands) == 0 {
		return false
	}
	c, ok := fields.Compare(v, rm.Operands[0])
	return ok && test(c)
}

func (rm *RuleMatcher) between(v any) (bool, bool) {
	if len(rm.Operands) != 2 {
		return false, false
	}
	lo, ok := fields.Compare(v, rm.Operands[0])
	if !ok {
		return false, false
	}
	hi, ok := fields.Compare(v, rm.Operands[1])
	if !ok {
		return false, false
	}
	return lo >= 0 && hi <= 0, true
}

func (rm *RuleMatcher) text(v any, test func(s, substr string) bool) bool {
	s, ok := v.(string)
	if !ok || len(rm.Operands) == 0 {
		return false
	}
	needle, ok := rm.Operands[0].(string)
	if !ok {
		return false
	}
	if !rm.caseSensitive {
		s = strings.ToLower(s)
	}
	return test(s, needle)
}
