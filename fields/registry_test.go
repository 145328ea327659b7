package fields

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultRegistry_Builtins(t *testing.T) {
	reg := DefaultRegistry()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	reg.SetClock(func() time.Time { return now })

	tests := []struct {
		id     string
		values []any
		want   bool
	}{
		{"notblank", []any{"x"}, true},
		{"notblank", []any{"  "}, false},
		{"notblank", []any{"a", nil}, false},
		{"nonnegative", []any{0.0}, true},
		{"nonnegative", []any{-0.5}, false},
		{"positive", []any{0.0}, false},
		{"positive", []any{3.0, 4.0}, true},
		{"future", []any{now.Add(time.Hour)}, true},
		{"future", []any{now.Add(-time.Hour)}, false},
		{"past", []any{now.Add(-time.Hour)}, true},
		{"past", []any{"2024-01-01"}, false},
		{"ordered", []any{1.0, 2.0}, true},
		{"ordered", []any{2.0, 1.0}, false},
		{"ordered", []any{"a", "b"}, true},
		{"ordered", []any{1.0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			pred, err := reg.Resolve(tt.id)
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tt.id, err)
			}
			if got := pred(tt.values); got != tt.want {
				t.Errorf("%s(%v) = %v, want %v", tt.id, tt.values, got, tt.want)
			}
		})
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register("even", func(v []any) bool { return int(v[0].(float64))%2 == 0 }); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := reg.Register("even", func([]any) bool { return true }); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
	if err := reg.Register("cel:true", func([]any) bool { return true }); err == nil {
		t.Error("Expected the cel: prefix to be reserved")
	}
	if err := reg.Register("nil", nil); err == nil {
		t.Error("Expected nil predicate to be rejected")
	}

	pred, err := reg.Resolve("even")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if !pred([]any{4.0}) || pred([]any{3.0}) {
		t.Error("registered predicate returned wrong results")
	}

	if _, err := reg.Resolve("notblank"); !errors.Is(err, ErrUnknownPredicate) {
		t.Errorf("Expected an empty registry to lack builtins, got %v", err)
	}
}

// TestRegistry_CELPredicates verifies cel: predicates compile once and evaluate per call
func TestRegistry_CELPredicates(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		expr   string
		values []any
		want   bool
	}{
		{"value < 150.0", []any{42.0}, true},
		{"value < 150.0", []any{200.0}, false},
		{`value.startsWith("SKU-")`, []any{"SKU-1"}, true},
		{`value.startsWith("SKU-")`, []any{"X-1"}, false},
		{"size(values) == 2 && values[0] <= values[1]", []any{1.0, 2.0}, true},
		{"value", []any{"not a bool"}, false},
		{"value < 10.0", []any{"type error"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			pred, err := reg.Resolve(CELPrefix + tt.expr)
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tt.expr, err)
			}
			if got := pred(tt.values); got != tt.want {
				t.Errorf("cel %q on %v = %v, want %v", tt.expr, tt.values, got, tt.want)
			}
		})
	}
}

func TestRegistry_CELCompileErrors(t *testing.T) {
	reg := DefaultRegistry()

	for _, expr := range []string{"value <", "unknownVar == 1", `"text"`} {
		t.Run(expr, func(t *testing.T) {
			_, err := reg.Resolve(CELPrefix + expr)
			if !errors.Is(err, ErrUnknownPredicate) {
				t.Errorf("Expected ErrUnknownPredicate for %q, got %v", expr, err)
			}
		})
	}
}
