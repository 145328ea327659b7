package fields

import "slices"

// Operator symbols understood by the engine.
const (
	OpEqual       = "="
	OpNotEqual    = "!="
	OpLess        = "<"
	OpLessOrEqual = "<="
	OpGreater     = ">"
	OpGreaterOrEq = ">="
	OpBetween     = "between"
	OpNotBetween  = "notbetween"
	OpContains    = "contains"
	OpNotContains = "notcontains"
	OpStartsWith  = "startswith"
	OpEndsWith    = "endswith"
	OpIsEmpty     = "isempty"
	OpIsNotEmpty  = "isnotempty"
	OpIsNull      = "isnull"
	OpIsNotNull   = "isnotnull"
)

// Operator describes a comparison operator: its symbol, how many operand
// values it takes, and which field types it applies to.
type Operator struct {
	Symbol string     `json:"symbol" yaml:"symbol"`
	Arity  int        `json:"arity" yaml:"arity"`
	Kinds  []TypeKind `json:"-" yaml:"-"`
}

// AppliesTo reports whether the operator is legal for fields of type t.
func (o Operator) AppliesTo(t FieldType) bool {
	return slices.Contains(o.Kinds, t.Kind)
}

var (
	allKinds     = []TypeKind{KindString, KindNumber, KindBoolean, KindDate, KindDateTime, KindCustom}
	ordinalKinds = []TypeKind{KindString, KindNumber, KindDate, KindDateTime}
	rangeKinds   = []TypeKind{KindNumber, KindDate, KindDateTime}
	textKinds    = []TypeKind{KindString}
)

// standardOperators is the descriptor table every catalog draws from. Order
// matters: it is the default operator order for a field that lists none.
var standardOperators = []Operator{
	{Symbol: OpEqual, Arity: 1, Kinds: allKinds},
	{Symbol: OpNotEqual, Arity: 1, Kinds: allKinds},
	{Symbol: OpLess, Arity: 1, Kinds: ordinalKinds},
	{Symbol: OpLessOrEqual, Arity: 1, Kinds: ordinalKinds},
	{Symbol: OpGreater, Arity: 1, Kinds: ordinalKinds},
	{Symbol: OpGreaterOrEq, Arity: 1, Kinds: ordinalKinds},
	{Symbol: OpBetween, Arity: 2, Kinds: rangeKinds},
	{Symbol: OpNotBetween, Arity: 2, Kinds: rangeKinds},
	{Symbol: OpContains, Arity: 1, Kinds: textKinds},
	{Symbol: OpNotContains, Arity: 1, Kinds: textKinds},
	{Symbol: OpStartsWith, Arity: 1, Kinds: textKinds},
	{Symbol: OpEndsWith, Arity: 1, Kinds: textKinds},
	{Symbol: OpIsEmpty, Arity: 0, Kinds: textKinds},
	{Symbol: OpIsNotEmpty, Arity: 0, Kinds: textKinds},
	{Symbol: OpIsNull, Arity: 0, Kinds: allKinds},
	{Symbol: OpIsNotNull, Arity: 0, Kinds: allKinds},
}

// StandardOperator returns the descriptor for symbol.
func StandardOperator(symbol string) (Operator, bool) {
	for _, op := range standardOperators {
		if op.Symbol == symbol {
			return op, true
		}
	}
	return Operator{}, false
}

// StandardOperatorsFor returns, in table order, every standard operator that
// applies to t.
func StandardOperatorsFor(t FieldType) []Operator {
	var ops []Operator
	for _, op := range standardOperators {
		if op.AppliesTo(t) {
			ops = append(ops, op)
		}
	}
	return ops
}
