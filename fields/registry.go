package fields

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
)

// ErrUnknownPredicate is returned when a predicate id cannot be resolved.
var ErrUnknownPredicate = errors.New("unknown predicate")

// CELPrefix marks a predicate id whose remainder is a CEL expression.
// The expression sees `value` (the first operand) and `values` (all operands)
// and must produce a bool.
const CELPrefix = "cel:"

// celCostLimit bounds the work a single predicate evaluation may do.
const celCostLimit = 100000

// PredicateFunc reports whether a rule's coerced operand values pass a
// business rule.
type PredicateFunc func(values []any) bool

// Registry maps predicate ids to predicate functions. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	preds map[string]PredicateFunc
	env   *cel.Env
	now   func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		preds: make(map[string]PredicateFunc),
		now:   time.Now,
	}
}

// DefaultRegistry returns a registry holding the built-in predicates:
// notblank, nonnegative, positive, future, past and ordered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.preds["notblank"] = func(values []any) bool {
		for _, v := range values {
			if IsEmpty(v) {
				return false
			}
		}
		return true
	}
	r.preds["nonnegative"] = numericAll(func(f float64) bool { return f >= 0 })
	r.preds["positive"] = numericAll(func(f float64) bool { return f > 0 })
	r.preds["future"] = func(values []any) bool {
		return timeAll(values, func(t time.Time) bool { return t.After(r.clock()) })
	}
	r.preds["past"] = func(values []any) bool {
		return timeAll(values, func(t time.Time) bool { return t.Before(r.clock()) })
	}
	r.preds["ordered"] = func(values []any) bool {
		if len(values) != 2 {
			return true
		}
		cmp, ok := Compare(values[0], values[1])
		return ok && cmp <= 0
	}
	return r
}

// SetClock replaces the clock used by time-relative predicates.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *Registry) clock() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.now()
}

// Register adds a predicate under id. Ids starting with CELPrefix are
// reserved.
func (r *Registry) Register(id string, fn PredicateFunc) error {
	if id == "" || strings.HasPrefix(id, CELPrefix) {
		return fmt.Errorf("invalid predicate id %q", id)
	}
	if fn == nil {
		return fmt.Errorf("predicate %q is nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.preds[id]; exists {
		return fmt.Errorf("predicate %q already registered", id)
	}
	r.preds[id] = fn
	return nil
}

// Resolve returns the predicate for id, compiling CEL expressions on demand.
func (r *Registry) Resolve(id string) (PredicateFunc, error) {
	if expr, ok := strings.CutPrefix(id, CELPrefix); ok {
		return r.compileCEL(expr)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.preds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPredicate, id)
	}
	return fn, nil
}

func (r *Registry) celEnv() (*cel.Env, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.env != nil {
		return r.env, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("values", cel.ListType(cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	r.env = env
	return env, nil
}

func (r *Registry) compileCEL(expr string) (PredicateFunc, error) {
	env, err := r.celEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: compile error in %q: %w", ErrUnknownPredicate, expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression %q yields %s, want bool", ErrUnknownPredicate, expr, out)
	}

	prog, err := env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: program creation error for %q: %w", ErrUnknownPredicate, expr, err)
	}

	return func(values []any) bool {
		var first any
		if len(values) > 0 {
			first = values[0]
		}
		if values == nil {
			values = []any{}
		}
		out, _, err := prog.Eval(map[string]any{
			"value":  first,
			"values": values,
		})
		if err != nil {
			return false
		}
		// non-boolean results fail the rule
		matched, ok := out.Value().(bool)
		return ok && matched
	}, nil
}

func numericAll(ok func(float64) bool) PredicateFunc {
	return func(values []any) bool {
		for _, v := range values {
			f, isNum := toFloat(v)
			if !isNum || !ok(f) {
				return false
			}
		}
		return true
	}
}

func timeAll(values []any, ok func(time.Time) bool) bool {
	for _, v := range values {
		t, isTime := v.(time.Time)
		if !isTime || !ok(t) {
			return false
		}
	}
	return true
}
