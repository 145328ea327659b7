package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/liamcoop/querybuilder/conditions"
	"github.com/liamcoop/querybuilder/evaluate"
	"github.com/liamcoop/querybuilder/fields"
	"github.com/liamcoop/querybuilder/internal/logger"
	"github.com/liamcoop/querybuilder/store"
)

func testCatalog(t *testing.T) *fields.Catalog {
	t.Helper()
	cat, err := fields.NewCatalog([]fields.Field{
		{Name: "Age", Type: fields.Number, Operators: []fields.Operator{
			{Symbol: "="}, {Symbol: ">"}, {Symbol: "<"}, {Symbol: "between"},
		}},
		{Name: "Category", Type: fields.String, Operators: []fields.Operator{
			{Symbol: "="}, {Symbol: "contains"},
		}},
		{Name: "Name", Type: fields.String, Required: true},
	})
	if err != nil {
		t.Fatalf("NewCatalog() failed: %v", err)
	}
	return cat
}

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(opts...)
	m.RegisterCatalog("shop", testCatalog(t))
	return m
}

// TestSession_EditingFlow verifies each mutation returns a regenerated document, previews and violations
func TestSession_EditingFlow(t *testing.T) {
	m := newManager(t)
	s, err := m.Create("shop")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Readable != "TRUE" || !snap.Valid {
		t.Errorf("Expected an empty valid query, got %q valid=%v", snap.Readable, snap.Valid)
	}

	if _, err := s.AddRule(conditions.Path{}, "Age", ">", 18); err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}
	snap, err = s.AddGroup(conditions.Path{}, conditions.Or)
	if err != nil {
		t.Fatalf("AddGroup() failed: %v", err)
	}
	if snap.Readable != "(Age > 18 AND FALSE)" {
		t.Errorf("Unexpected preview %q", snap.Readable)
	}

	if _, err := s.AddRule(conditions.Path{1}, "Category", "=", "Electronics"); err != nil {
		t.Fatal(err)
	}
	snap, err = s.AddRule(conditions.Path{1}, "Category", "=", "Computers")
	if err != nil {
		t.Fatal(err)
	}

	want := "(Age > 18 AND (Category = Electronics OR Category = Computers))"
	if snap.Readable != want {
		t.Errorf("Expected %q, got %q", want, snap.Readable)
	}
	if snap.SQL != "(Age > 18 AND (Category = 'Electronics' OR Category = 'Computers'))" {
		t.Errorf("Unexpected SQL %q", snap.SQL)
	}

	snap, err = s.MoveChild(conditions.Path{}, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Readable != "((Category = Electronics OR Category = Computers) AND Age > 18)" {
		t.Errorf("Unexpected preview after move %q", snap.Readable)
	}

	snap, err = s.SetConnective(conditions.Path{}, conditions.Or)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Readable != "((Category = Electronics OR Category = Computers) OR Age > 18)" {
		t.Errorf("Unexpected preview after connective change %q", snap.Readable)
	}

	snap, err = s.RemoveChild(conditions.Path{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Readable != "(Age > 18)" {
		t.Errorf("Unexpected preview after remove %q", snap.Readable)
	}

	snap, err = s.Clear()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Readable != "FALSE" {
		t.Errorf("Expected an empty Or after clear, got %q", snap.Readable)
	}
}

func TestSession_RejectedMutations(t *testing.T) {
	m := newManager(t)
	s, _ := m.Create("shop")
	if _, err := s.AddRule(conditions.Path{}, "Age", ">", 18); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Snapshot()

	tests := []struct {
		name string
		call func() (Snapshot, error)
		want error
	}{
		{"invalid operator", func() (Snapshot, error) { return s.AddRule(conditions.Path{}, "Category", "like", "x") }, conditions.ErrInvalidOperator},
		{"unknown field", func() (Snapshot, error) { return s.AddRule(conditions.Path{}, "Ghost", "=", 1) }, conditions.ErrUnknownField},
		{"arity", func() (Snapshot, error) { return s.AddRule(conditions.Path{}, "Age", "between", 1) }, conditions.ErrArityMismatch},
		{"bad path", func() (Snapshot, error) { return s.AddGroup(conditions.Path{4}, conditions.And) }, conditions.ErrIndexOutOfRange},
		{"path to rule", func() (Snapshot, error) { return s.AddGroup(conditions.Path{0}, conditions.And) }, nil},
		{"remove out of range", func() (Snapshot, error) { return s.RemoveChild(conditions.Path{}, 3) }, conditions.ErrIndexOutOfRange},
		{"move out of range", func() (Snapshot, error) { return s.MoveChild(conditions.Path{}, 0, 2) }, conditions.ErrIndexOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.call()
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	after, _ := s.Snapshot()
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("Expected rejected mutations to leave the session unchanged (-before +after):\n%s", diff)
	}
}

func TestSession_MaxDepth(t *testing.T) {
	m := newManager(t, WithMaxDepth(1))
	s, _ := m.Create("shop")

	if _, err := s.AddGroup(conditions.Path{}, conditions.And); err != nil {
		t.Fatalf("AddGroup() at depth 1 failed: %v", err)
	}
	if _, err := s.AddGroup(conditions.Path{0}, conditions.And); !errors.Is(err, conditions.ErrMaxDepthExceeded) {
		t.Errorf("Expected ErrMaxDepthExceeded, got %v", err)
	}
}

func TestSession_ViolationsInSnapshot(t *testing.T) {
	m := newManager(t)
	s, _ := m.Create("shop")

	snap, err := s.AddRule(conditions.Path{}, "Name", "=", "")
	if err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}
	if snap.Valid || len(snap.Violations) != 1 || snap.Violations[0].Kind != conditions.KindRequiredFieldEmpty {
		t.Errorf("Expected one RequiredFieldEmpty violation, got %+v", snap.Violations)
	}

	_, err = s.Evaluate(context.Background(), []evaluate.MapRecord{{"Name": "x"}})
	var verr *conditions.ViolationError
	if !errors.As(err, &verr) {
		t.Errorf("Expected *ViolationError evaluating an invalid tree, got %v", err)
	}
}

func TestSession_Evaluate(t *testing.T) {
	m := newManager(t, WithWorkers(2))
	doc := []byte(`{"connective":"And","rules":[{"field":"Age","operator":">","value":18}],
		"groups":[{"connective":"Or","rules":[
			{"field":"Category","operator":"=","value":"Electronics"},
			{"field":"Category","operator":"=","value":"Computers"}]}]}`)
	s, err := m.CreateFromDocument("shop", doc)
	if err != nil {
		t.Fatalf("CreateFromDocument() failed: %v", err)
	}

	records := []evaluate.MapRecord{
		{"Age": 20, "Category": "Computers"},
		{"Age": 20, "Category": "Books"},
		{"Age": 15, "Category": "Computers"},
		{"Age": 40, "Category": "Electronics"},
	}
	got, err := s.Evaluate(context.Background(), records)
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	want := []evaluate.MapRecord{records[0], records[3]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
	}

	stateless, err := m.Evaluate(context.Background(), "shop", doc, records)
	if err != nil {
		t.Fatalf("Manager.Evaluate() failed: %v", err)
	}
	if diff := cmp.Diff(want, stateless); diff != "" {
		t.Errorf("Manager.Evaluate() mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_Errors(t *testing.T) {
	m := newManager(t)

	if _, err := m.Create("nope"); !errors.Is(err, ErrCatalogNotFound) {
		t.Errorf("Expected ErrCatalogNotFound, got %v", err)
	}
	if _, err := m.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if err := m.Close("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if _, err := m.CreateFromDocument("shop", []byte(`{"connective":1}`)); !errors.Is(err, conditions.ErrMalformedDocument) {
		t.Errorf("Expected ErrMalformedDocument, got %v", err)
	}
	if _, err := m.CreateFromSaved("q"); err == nil {
		t.Error("Expected an error without a loader")
	}

	s, _ := m.Create("shop")
	if err := m.Close(s.ID); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Expected no sessions, got %d", m.Len())
	}
	if diff := cmp.Diff([]string{"shop"}, m.CatalogNames()); diff != "" {
		t.Errorf("CatalogNames() mismatch (-want +got):\n%s", diff)
	}
}

// TestSaveAndLoad_DeepCopies verifies sessions loaded from one saved query never share nodes
func TestSaveAndLoad_DeepCopies(t *testing.T) {
	loader := store.NewLoader(store.NewInMemoryQueryStore(), store.NewInMemoryTreeCache(store.DefaultCacheConfig()))
	m := newManager(t, WithLoader(loader))

	author, _ := m.Create("shop")
	if _, err := author.AddRule(conditions.Path{}, "Age", ">", 18); err != nil {
		t.Fatal(err)
	}
	saved, err := author.Save("adults")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if saved.Catalog != "shop" {
		t.Errorf("Expected catalog shop, got %s", saved.Catalog)
	}

	a, err := m.CreateFromSaved(saved.ID)
	if err != nil {
		t.Fatalf("CreateFromSaved() failed: %v", err)
	}
	b, err := m.CreateFromSaved(saved.ID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.AddRule(conditions.Path{}, "Category", "contains", "book"); err != nil {
		t.Fatal(err)
	}
	if _, err := author.Clear(); err != nil {
		t.Fatal(err)
	}

	snapB, _ := b.Snapshot()
	if snapB.Readable != "(Age > 18)" {
		t.Errorf("Expected the second session to be untouched, got %q", snapB.Readable)
	}
	snapA, _ := a.Snapshot()
	if snapA.Readable != "(Age > 18 AND Category contains book)" {
		t.Errorf("Unexpected first session preview %q", snapA.Readable)
	}
}

func TestCreateFromSaved_MalformedFallsBack(t *testing.T) {
	qs := store.NewInMemoryQueryStore()
	if err := qs.Add(&store.SavedQuery{ID: "broken", Name: "broken", Catalog: "shop", Document: json.RawMessage(`{"connective":"Xor"}`)}); err != nil {
		t.Fatal(err)
	}
	m := newManager(t, WithLoader(store.NewLoader(qs, nil)))

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stdout)
	prev := logger.GetLevel()
	logger.SetLevel(logger.LevelInfo)
	defer logger.SetLevel(prev)

	s, err := m.CreateFromSaved("broken")
	if err != nil {
		t.Fatalf("CreateFromSaved() failed: %v", err)
	}
	snap, _ := s.Snapshot()
	if snap.Readable != "TRUE" {
		t.Errorf("Expected an empty And root, got %q", snap.Readable)
	}
	if !strings.Contains(buf.String(), "saved query document is malformed") || !strings.Contains(buf.String(), `"id":"broken"`) {
		t.Errorf("Expected the fallback to be logged, got %s", buf.String())
	}
}

func TestManager_CloseIdle(t *testing.T) {
	m := newManager(t)
	old, _ := m.Create("shop")
	fresh, _ := m.Create("shop")

	old.mu.Lock()
	old.lastUsed = time.Now().Add(-time.Hour)
	old.mu.Unlock()

	if n := m.CloseIdle(time.Minute); n != 1 {
		t.Errorf("Expected 1 idle session closed, got %d", n)
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Errorf("Expected fresh session to survive, got %v", err)
	}
}

func TestSession_ConcurrentMutations(t *testing.T) {
	m := newManager(t)
	s, _ := m.Create("shop")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.AddRule(conditions.Path{}, "Age", ">", i); err != nil {
				t.Errorf("AddRule() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(s.Root().Children); got != 20 {
		t.Errorf("Expected 20 rules, got %d", got)
	}
}
