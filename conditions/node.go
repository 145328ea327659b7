// Package conditions holds the query expression tree: Rules (field, operator,
// operand values) nested inside Groups joined by And or Or. It provides the
// mutation API an editor drives, deep copy and structural equality, and the
// Validator that checks a tree against a fields.Catalog.
package conditions

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/liamcoop/querybuilder/fields"
)

// Connective joins the children of a Group.
type Connective string

const (
	And Connective = "And"
	Or  Connective = "Or"
)

// ParseConnective accepts "and" or "or" in any letter case.
func ParseConnective(s string) (Connective, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "and":
		return And, nil
	case "or":
		return Or, nil
	}
	return "", fmt.Errorf("unknown connective %q (must be And or Or)", s)
}

// Valid reports whether c is And or Or.
func (c Connective) Valid() bool {
	return c == And || c == Or
}

// Node is either a *Rule or a *Group.
type Node interface {
	node()
}

// Rule is a leaf condition: Field Operator Values. The number of values is
// the rule's arity.
type Rule struct {
	Field    string
	Operator string
	Values   []any
}

// Group joins its ordered children with a connective. An empty And group is
// true and an empty Or group is false.
type Group struct {
	Connective Connective
	Children   []Node
}

func (*Rule) node()  {}
func (*Group) node() {}

// NewRule builds a rule. It does not consult any catalog.
func NewRule(field, operator string, values ...any) *Rule {
	return &Rule{Field: field, Operator: operator, Values: values}
}

// NewGroup builds a group holding children.
func NewGroup(c Connective, children ...Node) *Group {
	return &Group{Connective: c, Children: children}
}

// Arity returns the number of operand values.
func (r *Rule) Arity() int {
	return len(r.Values)
}

// Path addresses a node by the child indices leading to it from the root.
// The root's path is empty.
type Path []int

func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, i := range p {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}

// Child returns a new path extending p with index i.
func (p Path) Child(i int) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = i
	return out
}

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	switch v := n.(type) {
	case *Rule:
		return cloneRule(v)
	case *Group:
		return CloneGroup(v)
	}
	return nil
}

func cloneRule(r *Rule) *Rule {
	if r == nil {
		return nil
	}
	out := &Rule{Field: r.Field, Operator: r.Operator}
	if r.Values != nil {
		out.Values = make([]any, len(r.Values))
		copy(out.Values, r.Values)
	}
	return out
}

// CloneGroup returns a deep copy of g.
func CloneGroup(g *Group) *Group {
	if g == nil {
		return nil
	}
	out := &Group{Connective: g.Connective}
	if g.Children != nil {
		out.Children = make([]Node, len(g.Children))
		for i, child := range g.Children {
			out.Children[i] = Clone(child)
		}
	}
	return out
}

// Equal reports whether a and b are structurally equal: same shape, fields,
// operators, connectives and child order. Numeric values compare by value
// (float32 at its own precision), times compare as instants, and lists and
// maps compare element-wise, so a tree equals its JSON round trip.
func Equal(a, b Node) bool {
	switch x := a.(type) {
	case *Rule:
		y, ok := b.(*Rule)
		if !ok || x == nil || y == nil {
			return ok && x == y
		}
		if x.Field != y.Field || x.Operator != y.Operator || len(x.Values) != len(y.Values) {
			return false
		}
		for i := range x.Values {
			if !valuesEqual(x.Values[i], y.Values[i]) {
				return false
			}
		}
		return true
	case *Group:
		y, ok := b.(*Group)
		if !ok || x == nil || y == nil {
			return ok && x == y
		}
		if x.Connective != y.Connective || len(x.Children) != len(y.Children) {
			return false
		}
		for i := range x.Children {
			if !Equal(x.Children[i], y.Children[i]) {
				return false
			}
		}
		return true
	}
	return a == nil && b == nil
}

func valuesEqual(a, b any) bool {
	if isNumeric(a) && isNumeric(b) {
		fa, _ := fields.Coerce(fields.Number, a)
		fb, _ := fields.Coerce(fields.Number, b)
		_, aIs32 := a.(float32)
		_, bIs32 := b.(float32)
		if aIs32 || bIs32 {
			return float32(fa.(float64)) == float32(fb.(float64))
		}
		return fa == fb
	}
	ta, aIsTime := a.(time.Time)
	tb, bIsTime := b.(time.Time)
	if aIsTime || bIsTime {
		if !aIsTime {
			ta, aIsTime = parseTime(a)
		}
		if !bIsTime {
			tb, bIsTime = parseTime(b)
		}
		return aIsTime && bIsTime && ta.Equal(tb)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if isSequence(va) && isSequence(vb) {
		if va.Len() != vb.Len() {
			return false
		}
		for i := 0; i < va.Len(); i++ {
			if !valuesEqual(va.Index(i).Interface(), vb.Index(i).Interface()) {
				return false
			}
		}
		return true
	}
	if va.Kind() == reflect.Map && vb.Kind() == reflect.Map && va.Type().Key() == vb.Type().Key() {
		if va.Len() != vb.Len() {
			return false
		}
		iter := va.MapRange()
		for iter.Next() {
			other := vb.MapIndex(iter.Key())
			if !other.IsValid() || !valuesEqual(iter.Value().Interface(), other.Interface()) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// isSequence reports slices and arrays other than []byte, which encodes as a
// string.
func isSequence(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return v.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

func isNumeric(v any) bool {
	switch v.(type) {
	case string, nil, bool:
		return false
	}
	_, err := fields.Coerce(fields.Number, v)
	return err == nil
}

func parseTime(v any) (time.Time, bool) {
	t, err := fields.Coerce(fields.DateTime, v)
	if err != nil || t == nil {
		return time.Time{}, false
	}
	return t.(time.Time), true
}
