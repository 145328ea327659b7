package conditions

import (
	"fmt"
	"slices"

	"github.com/liamcoop/querybuilder/fields"
)

// DefaultMaxDepth is the deepest group level allowed when no option is given.
// The root is at depth 0.
const DefaultMaxDepth = 3

// Tree is a condition tree bound to the catalog it is edited against. The
// root is always a Group. A Tree is not safe for concurrent mutation; each
// editing session owns its own.
type Tree struct {
	catalog  *fields.Catalog
	root     *Group
	maxDepth int
}

// Option configures a Tree.
type Option func(*Tree)

// WithMaxDepth sets the maximum group depth. Negative values are ignored.
func WithMaxDepth(depth int) Option {
	return func(t *Tree) {
		if depth >= 0 {
			t.maxDepth = depth
		}
	}
}

// NewTree creates a tree with an empty And root.
func NewTree(catalog *fields.Catalog, opts ...Option) *Tree {
	return FromRoot(catalog, nil, opts...)
}

// FromRoot wraps an existing root group, typically one produced by the JSON
// decoder. The tree takes ownership of root; callers holding another
// reference to it should pass a CloneGroup copy instead. A nil root becomes
// an empty And group.
func FromRoot(catalog *fields.Catalog, root *Group, opts ...Option) *Tree {
	if root == nil {
		root = NewGroup(And)
	}
	t := &Tree{catalog: catalog, root: root, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Root returns the root group.
func (t *Tree) Root() *Group { return t.root }

// Catalog returns the catalog the tree validates against.
func (t *Tree) Catalog() *fields.Catalog { return t.catalog }

// MaxDepth returns the configured maximum group depth.
func (t *Tree) MaxDepth() int { return t.maxDepth }

// Clone returns an independent deep copy sharing only the catalog.
func (t *Tree) Clone() *Tree {
	return &Tree{catalog: t.catalog, root: CloneGroup(t.root), maxDepth: t.maxDepth}
}

// Validate checks the tree against its catalog.
func (t *Tree) Validate() []Violation {
	return NewValidator(t.catalog, t.maxDepth).Validate(t.root)
}

// PathOf locates g within the tree.
func (t *Tree) PathOf(g *Group) (Path, error) {
	if g == nil {
		return nil, ErrForeignNode
	}
	if p, ok := findGroup(t.root, g, Path{}); ok {
		return p, nil
	}
	return nil, ErrForeignNode
}

func findGroup(cur, target *Group, path Path) (Path, bool) {
	if cur == target {
		return path, true
	}
	for i, child := range cur.Children {
		if sub, ok := child.(*Group); ok && sub != nil {
			if p, found := findGroup(sub, target, path.Child(i)); found {
				return p, true
			}
		}
	}
	return nil, false
}

// Depth returns the nesting depth of g, the root being 0.
func (t *Tree) Depth(g *Group) (int, error) {
	p, err := t.PathOf(g)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// NodeAt resolves a path to a node. The empty path is the root.
func (t *Tree) NodeAt(path Path) (Node, error) {
	var cur Node = t.root
	for depth, idx := range path {
		g, ok := cur.(*Group)
		if !ok {
			return nil, newViolation(append(Path(nil), path[:depth+1]...), KindIndexOutOfRange, "path descends into a rule")
		}
		if idx < 0 || idx >= len(g.Children) {
			return nil, newViolation(append(Path(nil), path[:depth+1]...), KindIndexOutOfRange, "index %d out of range [0,%d)", idx, len(g.Children))
		}
		cur = g.Children[idx]
	}
	return cur, nil
}

// GroupAt resolves a path that must end at a group.
func (t *Tree) GroupAt(path Path) (*Group, error) {
	n, err := t.NodeAt(path)
	if err != nil {
		return nil, err
	}
	g, ok := n.(*Group)
	if !ok {
		return nil, newViolation(path, KindIndexOutOfRange, "node at %s is a rule, not a group", path)
	}
	return g, nil
}

// AddRule appends a rule to parent. The field, operator and operand count
// are checked against the catalog first; on failure nothing is inserted.
func (t *Tree) AddRule(parent *Group, field, operator string, values ...any) (*Rule, error) {
	path, err := t.PathOf(parent)
	if err != nil {
		return nil, err
	}
	at := path.Child(len(parent.Children))

	f, err := t.catalog.Lookup(field)
	if err != nil {
		return nil, newViolation(at, KindUnknownField, "field %q is not in the catalog", field)
	}
	op, ok := f.Operator(operator)
	if !ok {
		return nil, newViolation(at, KindInvalidOperator, "operator %q is not allowed for field %q", operator, field)
	}
	if len(values) != op.Arity {
		return nil, newViolation(at, KindArityMismatch, "operator %q takes %d value(s), got %d", operator, op.Arity, len(values))
	}

	r := &Rule{Field: field, Operator: operator, Values: append([]any(nil), values...)}
	parent.Children = append(parent.Children, r)
	return r, nil
}

// AddGroup appends an empty group to parent.
func (t *Tree) AddGroup(parent *Group, c Connective) (*Group, error) {
	path, err := t.PathOf(parent)
	if err != nil {
		return nil, err
	}
	if !c.Valid() {
		return nil, fmt.Errorf("add group: unknown connective %q", c)
	}
	if len(path)+1 > t.maxDepth {
		return nil, newViolation(path.Child(len(parent.Children)), KindMaxDepthExceeded,
			"group at depth %d exceeds max depth %d", len(path)+1, t.maxDepth)
	}

	g := NewGroup(c)
	parent.Children = append(parent.Children, g)
	return g, nil
}

// RemoveChild detaches and returns the child of parent at index.
func (t *Tree) RemoveChild(parent *Group, index int) (Node, error) {
	path, err := t.PathOf(parent)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(parent.Children) {
		return nil, newViolation(path.Child(index), KindIndexOutOfRange,
			"index %d out of range [0,%d)", index, len(parent.Children))
	}

	removed := parent.Children[index]
	parent.Children = slices.Delete(parent.Children, index, index+1)
	return removed, nil
}

// SetConnective changes the connective of g.
func (t *Tree) SetConnective(g *Group, c Connective) error {
	if _, err := t.PathOf(g); err != nil {
		return err
	}
	if !c.Valid() {
		return fmt.Errorf("set connective: unknown connective %q", c)
	}
	g.Connective = c
	return nil
}

// MoveChild moves the child at from so that it ends up at index to,
// shifting the children in between. MoveChild(p, to, from) undoes it.
func (t *Tree) MoveChild(parent *Group, from, to int) error {
	path, err := t.PathOf(parent)
	if err != nil {
		return err
	}
	n := len(parent.Children)
	if from < 0 || from >= n {
		return newViolation(path.Child(from), KindIndexOutOfRange, "from index %d out of range [0,%d)", from, n)
	}
	if to < 0 || to >= n {
		return newViolation(path.Child(to), KindIndexOutOfRange, "to index %d out of range [0,%d)", to, n)
	}
	if from == to {
		return nil
	}

	child := parent.Children[from]
	if from < to {
		copy(parent.Children[from:to], parent.Children[from+1:to+1])
	} else {
		copy(parent.Children[to+1:from+1], parent.Children[to:from])
	}
	parent.Children[to] = child
	return nil
}

// Clear removes every child of the root. The root itself stays.
func (t *Tree) Clear() {
	t.root.Children = nil
}

// Remove detaches the node at path. The root cannot be removed.
func (t *Tree) Remove(path Path) (Node, error) {
	if len(path) == 0 {
		return nil, ErrRootRemoval
	}
	parent, err := t.GroupAt(path[:len(path)-1])
	if err != nil {
		return nil, err
	}
	return t.RemoveChild(parent, path[len(path)-1])
}
