package serialize

import (
	"testing"
	"time"

	"github.com/liamcoop/querybuilder/conditions"
)

func TestReadable(t *testing.T) {
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		node conditions.Node
		want string
	}{
		{
			name: "name and age range",
			node: conditions.NewGroup(conditions.And,
				conditions.NewRule("Name", "=", "Bob"),
				conditions.NewRule("Age", "between", 18, 30),
			),
			want: "(Name = Bob AND Age BETWEEN 18 AND 30)",
		},
		{
			name: "empty and",
			node: conditions.NewGroup(conditions.And),
			want: "TRUE",
		},
		{
			name: "empty or",
			node: conditions.NewGroup(conditions.Or),
			want: "FALSE",
		},
		{
			name: "nested",
			node: conditions.NewGroup(conditions.And,
				conditions.NewRule("Age", ">", 18.0),
				conditions.NewGroup(conditions.Or,
					conditions.NewRule("Category", "=", "Electronics"),
					conditions.NewRule("Category", "=", "Computers"),
				),
				conditions.NewGroup(conditions.Or),
			),
			want: "(Age > 18 AND (Category = Electronics OR Category = Computers) AND FALSE)",
		},
		{
			name: "nullary and dates",
			node: conditions.NewGroup(conditions.Or,
				conditions.NewRule("Email", "isnull"),
				conditions.NewRule("Joined", "notbetween", day, day.AddDate(0, 1, 0)),
				conditions.NewRule("Price", "<=", 9.99),
			),
			want: "(Email IS NULL OR Joined NOT BETWEEN 2024-03-09 AND 2024-04-09 OR Price <= 9.99)",
		},
		{
			name: "malformed rules still render",
			node: conditions.NewGroup(conditions.And,
				conditions.NewRule("Age", "between", 18),
				conditions.NewRule("Ghost", "like", "x", nil),
			),
			want: "(Age between 18 AND Ghost like x, null)",
		},
		{
			name: "bare rule",
			node: conditions.NewRule("Active", "=", true),
			want: "Active = true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Readable(tt.node); got != tt.want {
				t.Errorf("Readable() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSQL(t *testing.T) {
	instant := time.Date(2024, 3, 9, 17, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		node conditions.Node
		want string
	}{
		{
			name: "quoting and operators",
			node: conditions.NewGroup(conditions.And,
				conditions.NewRule("Name", "=", "O'Brien"),
				conditions.NewRule("Age", "between", 18, 30),
				conditions.NewRule("Status", "!=", "closed"),
			),
			want: "(Name = 'O''Brien' AND Age BETWEEN 18 AND 30 AND Status <> 'closed')",
		},
		{
			name: "like family",
			node: conditions.NewGroup(conditions.Or,
				conditions.NewRule("Title", "contains", "go"),
				conditions.NewRule("Title", "notcontains", "java"),
				conditions.NewRule("Title", "startswith", "Intro"),
				conditions.NewRule("Title", "endswith", "Guide"),
			),
			want: "(Title LIKE '%go%' OR Title NOT LIKE '%java%' OR Title LIKE 'Intro%' OR Title LIKE '%Guide')",
		},
		{
			name: "nullary",
			node: conditions.NewGroup(conditions.And,
				conditions.NewRule("A", "isempty"),
				conditions.NewRule("B", "isnotempty"),
				conditions.NewRule("C", "isnull"),
				conditions.NewRule("D", "isnotnull"),
			),
			want: "(A = '' AND B <> '' AND C IS NULL AND D IS NOT NULL)",
		},
		{
			name: "literals",
			node: conditions.NewGroup(conditions.And,
				conditions.NewRule("Active", "=", false),
				conditions.NewRule("Seen", ">", instant),
				conditions.NewRule("Missing", "=", nil),
				conditions.NewRule("Range", "notbetween", 1.5, 2),
			),
			want: "(Active = FALSE AND Seen > '2024-03-09T17:30:00Z' AND Missing = NULL AND Range NOT BETWEEN 1.5 AND 2)",
		},
		{
			name: "empty groups",
			node: conditions.NewGroup(conditions.Or, conditions.NewGroup(conditions.And), conditions.NewGroup(conditions.Or)),
			want: "(TRUE OR FALSE)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SQL(tt.node); got != tt.want {
				t.Errorf("SQL() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestReadable_StableUnderInverseMove verifies preview text is unchanged after a move and its inverse
func TestReadable_StableUnderInverseMove(t *testing.T) {
	tree := conditions.FromRoot(nil, conditions.NewGroup(conditions.And,
		conditions.NewRule("Name", "=", "Bob"),
		conditions.NewGroup(conditions.Or, conditions.NewRule("Age", ">", 18)),
		conditions.NewRule("Age", "<", 65),
	))
	before := Readable(tree.Root())

	if err := tree.MoveChild(tree.Root(), 0, 2); err != nil {
		t.Fatalf("MoveChild() failed: %v", err)
	}
	if moved := Readable(tree.Root()); moved == before {
		t.Errorf("Expected preview to change after a move, got %q", moved)
	}
	if err := tree.MoveChild(tree.Root(), 2, 0); err != nil {
		t.Fatalf("MoveChild() failed: %v", err)
	}
	if after := Readable(tree.Root()); after != before {
		t.Errorf("Expected %q after inverse move, got %q", before, after)
	}
}
