package serialize

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/liamcoop/querybuilder/conditions"
)

func sampleTree() *conditions.Group {
	return conditions.NewGroup(conditions.And,
		conditions.NewRule("Age", ">", 18),
		conditions.NewGroup(conditions.Or,
			conditions.NewRule("Category", "=", "Electronics"),
			conditions.NewRule("Category", "=", "Computers"),
		),
		conditions.NewRule("Age", "between", 18, 30.5),
		conditions.NewGroup(conditions.And),
		conditions.NewRule("Name", "isnull"),
		conditions.NewRule("Nickname", "=", nil),
		conditions.NewRule("Joined", ">", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)),
		conditions.NewRule("Tags", "=", []any{"a", "b"}),
	)
}

// TestRoundTrip verifies decode(encode(t)) is structurally equal to t, mixed child order included
func TestRoundTrip(t *testing.T) {
	trees := map[string]*conditions.Group{
		"sample":    sampleTree(),
		"empty and": conditions.NewGroup(conditions.And),
		"empty or":  conditions.NewGroup(conditions.Or),
		"group first": conditions.NewGroup(conditions.Or,
			conditions.NewGroup(conditions.And, conditions.NewRule("A", "=", true)),
			conditions.NewRule("B", "!=", "x"),
		),
		"number list": conditions.NewGroup(conditions.And,
			conditions.NewRule("Codes", "=", []any{1, 2}),
			conditions.NewRule("Scores", "=", []int{3, 4}),
		),
		"float32":       conditions.NewGroup(conditions.And, conditions.NewRule("Ratio", ">", float32(0.1))),
		"nested object": conditions.NewGroup(conditions.And, conditions.NewRule("Meta", "=", map[string]any{"n": 1, "tags": []any{"x"}})),
	}

	for name, tree := range trees {
		t.Run(name, func(t *testing.T) {
			data, err := Encode(tree)
			if err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() failed: %v\n%s", err, data)
			}
			if !conditions.Equal(tree, got) {
				t.Errorf("round trip changed the tree\nbefore: %s\nafter:  %s\njson: %s", Readable(tree), Readable(got), data)
			}
		})
	}
}

func TestEncode_Shape(t *testing.T) {
	tree := conditions.NewGroup(conditions.And,
		conditions.NewGroup(conditions.Or),
		conditions.NewRule("Age", "between", 18, 30),
		conditions.NewRule("Name", "isnull"),
	)

	data, err := Encode(tree)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	want := `{"connective":"And","rules":[` +
		`{"field":"Age","operator":"between","value":[18,30],"order":1},` +
		`{"field":"Name","operator":"isnull","order":2}],` +
		`"groups":[{"connective":"Or","order":0,"rules":[],"groups":[]}]}`
	if string(data) != want {
		t.Errorf("Unexpected encoding:\nwant %s\ngot  %s", want, data)
	}
}

func TestDecode_ValueForms(t *testing.T) {
	data := `{"connective":"and","rules":[
		{"field":"A","operator":"isnull"},
		{"field":"B","operator":"=","value":null},
		{"field":"C","operator":"=","value":7},
		{"field":"D","operator":"between","value":[1, 2.5]},
		{"field":"E","operator":"=","value":[["x","y"]]}
	]}`

	got, err := Decode([]byte(data))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if got.Connective != conditions.And {
		t.Errorf("Expected connective to normalize to And, got %q", got.Connective)
	}

	want := [][]any{
		nil,
		{nil},
		{int64(7)},
		{int64(1), 2.5},
		{[]any{"x", "y"}},
	}
	if len(got.Children) != len(want) {
		t.Fatalf("Expected %d rules, got %d", len(want), len(got.Children))
	}
	for i, w := range want {
		r := got.Children[i].(*conditions.Rule)
		if diff := cmp.Diff(w, r.Values); diff != "" {
			t.Errorf("rule %s values mismatch (-want +got):\n%s", r.Field, diff)
		}
	}
}

// TestDecode_Legacy verifies documents without order keys put rules before groups
func TestDecode_Legacy(t *testing.T) {
	data := `{"connective":"Or",
		"groups":[{"connective":"And","rules":[{"field":"X","operator":"=","value":1}]}],
		"rules":[{"field":"Y","operator":"=","value":2}]}`

	got, err := Decode([]byte(data))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if want := "(Y = 2 OR (X = 1))"; Readable(got) != want {
		t.Errorf("Expected %q, got %q", want, Readable(got))
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
		msg  string
	}{
		{"not json", `{`, "invalid JSON"},
		{"not an object", `[1]`, "must be an object"},
		{"trailing data", `{"connective":"And"} {}`, "after the document"},
		{"missing connective", `{"rules":[]}`, "connective"},
		{"bad connective", `{"connective":"Xor"}`, "unknown connective"},
		{"unknown key", `{"connective":"And","kind":"group"}`, "unknown group key"},
		{"rules not array", `{"connective":"And","rules":{}}`, "rules must be an array"},
		{"rule not object", `{"connective":"And","rules":[1]}`, "expected an object"},
		{"rule missing field", `{"connective":"And","rules":[{"operator":"="}]}`, "field must be a string"},
		{"rule numeric operator", `{"connective":"And","rules":[{"field":"A","operator":5}]}`, "operator must be a string"},
		{"unknown rule key", `{"connective":"And","rules":[{"field":"A","operator":"=","values":[1]}]}`, "unknown rule key"},
		{"mixed order keys", `{"connective":"And","rules":[{"field":"A","operator":"=","value":1,"order":0},{"field":"B","operator":"=","value":1}]}`, "order given for 1 of 2"},
		{"duplicate order", `{"connective":"And","rules":[{"field":"A","operator":"=","value":1,"order":0}],"groups":[{"connective":"Or","order":0}]}`, "duplicate order"},
		{"negative order", `{"connective":"And","rules":[{"field":"A","operator":"=","value":1,"order":-1}]}`, "non-negative"},
		{"nested error", `{"connective":"And","groups":[{"connective":"Or","rules":[{"field":1}]}]}`, "$.groups[0].rules[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, conditions.ErrMalformedDocument) {
				t.Fatalf("Expected ErrMalformedDocument, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("Expected error to mention %q, got %q", tt.msg, err.Error())
			}
		})
	}
}

func TestDecode_DoesNotValidateCatalog(t *testing.T) {
	data := `{"connective":"And","rules":[{"field":"NoSuchField","operator":"like","value":[1,2,3]}]}`
	got, err := Decode([]byte(data))
	if err != nil {
		t.Fatalf("Expected unknown fields and operators to decode, got %v", err)
	}
	if r := got.Children[0].(*conditions.Rule); r.Arity() != 3 {
		t.Errorf("Expected 3 operands, got %d", r.Arity())
	}
}

func TestDecodeOrEmpty(t *testing.T) {
	g, err := DecodeOrEmpty([]byte(`{"connective":`))
	if err == nil {
		t.Fatal("Expected an error for a truncated document")
	}
	if g == nil || g.Connective != conditions.And || len(g.Children) != 0 {
		t.Errorf("Expected an empty And root as fallback, got %+v", g)
	}

	g, err = DecodeOrEmpty([]byte(`{"connective":"Or"}`))
	if err != nil || g.Connective != conditions.Or {
		t.Errorf("Expected a successful decode to pass through, got %+v, %v", g, err)
	}
}
