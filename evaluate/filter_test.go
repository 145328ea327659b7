package evaluate

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/liamcoop/querybuilder/conditions"
)

func ageRecords(n int) []MapRecord {
	out := make([]MapRecord, n)
	for i := range out {
		out[i] = MapRecord{"Age": i % 50}
	}
	return out
}

func TestFilter(t *testing.T) {
	q := compile(t, conditions.NewGroup(conditions.And, conditions.NewRule("Age", ">", 18)))

	records := []MapRecord{{"Age": 20}, {"Age": 15}, {}, {"Age": 40}}
	got := Filter(records, q.Predicate())

	want := []MapRecord{{"Age": 20}, {"Age": 40}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Filter() mismatch (-want +got):\n%s", diff)
	}

	if got := Filter([]MapRecord{}, q.Predicate()); len(got) != 0 {
		t.Errorf("Expected no matches for no records, got %v", got)
	}
}

// TestFilterParallel_MatchesSequential verifies partitioned filtering returns the sequential result in input order
func TestFilterParallel_MatchesSequential(t *testing.T) {
	q := compile(t, conditions.NewGroup(conditions.Or,
		conditions.NewRule("Age", "<", 5),
		conditions.NewRule("Age", "between", 30, 32),
	))
	records := ageRecords(5003)
	want := Filter(records, q.Predicate())

	for _, workers := range []int{0, 1, 3, 8, 10000} {
		got, err := FilterParallel(context.Background(), records, q.Predicate(), workers)
		if err != nil {
			t.Fatalf("FilterParallel(workers=%d) failed: %v", workers, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("FilterParallel(workers=%d) mismatch (-want +got):\n%s", workers, diff)
		}
	}
}

func TestFilterParallel_Canceled(t *testing.T) {
	q := compile(t, conditions.NewGroup(conditions.And))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FilterParallel(ctx, ageRecords(100), q.Predicate(), 4)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func BenchmarkFilterParallel(b *testing.B) {
	tree := conditions.FromRoot(testCatalog(b), conditions.NewGroup(conditions.And, conditions.NewRule("Age", ">", 25)))
	q, err := Compile(tree)
	if err != nil {
		b.Fatalf("Compile() failed: %v", err)
	}
	records := ageRecords(100000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := FilterParallel(context.Background(), records, q.Predicate(), 0); err != nil {
			b.Fatal(err)
		}
	}
}
