// Package serialize converts condition trees to and from their canonical
// JSON document and renders them as readable or SQL-like preview text.
// Nothing here validates a tree against a catalog; malformed trees render
// as-is so an editor can display them next to their violations.
package serialize

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"

	"github.com/goccy/go-json"

	"github.com/liamcoop/querybuilder/conditions"
)

// maxDecodeNesting bounds recursion while decoding. It is far above any
// sensible max depth, which the Validator enforces separately.
const maxDecodeNesting = 128

type groupDoc struct {
	Connective conditions.Connective `json:"connective"`
	Order      *int                  `json:"order,omitempty"`
	Rules      []ruleDoc             `json:"rules"`
	Groups     []groupDoc            `json:"groups"`
}

type ruleDoc struct {
	Field    string          `json:"field"`
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value,omitempty"`
	Order    *int            `json:"order,omitempty"`
}

// Encode produces the canonical JSON document for root. Every child carries
// an order key recording its position among its siblings, so mixed rule and
// group children round-trip exactly.
func Encode(root *conditions.Group) ([]byte, error) {
	doc, err := encodeGroup(root, nil)
	if err != nil {
		return nil, err
	}
	return marshal(doc, false)
}

// EncodeIndent is Encode with indented output.
func EncodeIndent(root *conditions.Group) ([]byte, error) {
	doc, err := encodeGroup(root, nil)
	if err != nil {
		return nil, err
	}
	return marshal(doc, true)
}

// marshal encodes without HTML escaping so operators like "<" stay readable.
func marshal(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func encodeGroup(g *conditions.Group, order *int) (groupDoc, error) {
	doc := groupDoc{Connective: conditions.And, Order: order, Rules: []ruleDoc{}, Groups: []groupDoc{}}
	if g == nil {
		return doc, nil
	}
	if g.Connective != "" {
		doc.Connective = g.Connective
	}

	for i, child := range g.Children {
		pos := i
		switch n := child.(type) {
		case *conditions.Rule:
			if n == nil {
				continue
			}
			rd, err := encodeRule(n, &pos)
			if err != nil {
				return groupDoc{}, err
			}
			doc.Rules = append(doc.Rules, rd)
		case *conditions.Group:
			if n == nil {
				continue
			}
			gd, err := encodeGroup(n, &pos)
			if err != nil {
				return groupDoc{}, err
			}
			doc.Groups = append(doc.Groups, gd)
		}
	}
	return doc, nil
}

func encodeRule(r *conditions.Rule, order *int) (ruleDoc, error) {
	doc := ruleDoc{Field: r.Field, Operator: r.Operator, Order: order}

	var value any
	switch len(r.Values) {
	case 0:
		return doc, nil
	case 1:
		value = r.Values[0]
		// a lone list operand is wrapped so it does not decode as several
		if isList(value) {
			value = r.Values
		}
	default:
		value = r.Values
	}

	b, err := json.Marshal(value)
	if err != nil {
		return ruleDoc{}, fmt.Errorf("failed to encode value of rule on %q: %w", r.Field, err)
	}
	doc.Value = b
	return doc, nil
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// Decode parses a JSON document into a root group. Shape errors are
// reported as a *conditions.Violation of kind MalformedDocument; fields and
// operators are not checked.
//
// A document whose children carry no order keys is read in legacy form:
// rules first, then groups. Either every child of a group has an order key or
// none does.
func Decode(data []byte) (*conditions.Group, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed("", "invalid JSON: %v", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, malformed("", "unexpected data after the document")
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed("", "document must be an object, got %s", jsonKind(raw))
	}
	return decodeGroup(obj, "$", 0)
}

// DecodeOrEmpty is Decode, except that on failure it returns an empty And
// root alongside the error so the caller always has a usable tree.
func DecodeOrEmpty(data []byte) (*conditions.Group, error) {
	g, err := Decode(data)
	if err != nil {
		return conditions.NewGroup(conditions.And), err
	}
	return g, nil
}

type orderedChild struct {
	node  conditions.Node
	order int
	set   bool
}

func decodeGroup(obj map[string]any, loc string, nesting int) (*conditions.Group, error) {
	if nesting > maxDecodeNesting {
		return nil, malformed(loc, "groups nested deeper than %d levels", maxDecodeNesting)
	}
	for key := range obj {
		switch key {
		case "connective", "order", "rules", "groups":
		default:
			return nil, malformed(loc, "unknown group key %q", key)
		}
	}

	rawConn, ok := obj["connective"].(string)
	if !ok {
		return nil, malformed(loc, "connective must be a string")
	}
	conn, err := conditions.ParseConnective(rawConn)
	if err != nil {
		return nil, malformed(loc, "%v", err)
	}

	rules, err := objectList(obj, "rules", loc)
	if err != nil {
		return nil, err
	}
	groups, err := objectList(obj, "groups", loc)
	if err != nil {
		return nil, err
	}

	children := make([]orderedChild, 0, len(rules)+len(groups))
	for i, ro := range rules {
		rloc := fmt.Sprintf("%s.rules[%d]", loc, i)
		r, err := decodeRule(ro, rloc)
		if err != nil {
			return nil, err
		}
		c, err := withOrder(r, ro, rloc)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	for i, gobj := range groups {
		gloc := fmt.Sprintf("%s.groups[%d]", loc, i)
		g, err := decodeGroup(gobj, gloc, nesting+1)
		if err != nil {
			return nil, err
		}
		c, err := withOrder(g, gobj, gloc)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}

	if err := sortChildren(children, loc); err != nil {
		return nil, err
	}

	g := &conditions.Group{Connective: conn}
	if len(children) > 0 {
		g.Children = make([]conditions.Node, len(children))
		for i, c := range children {
			g.Children[i] = c.node
		}
	}
	return g, nil
}

func decodeRule(obj map[string]any, loc string) (*conditions.Rule, error) {
	for key := range obj {
		switch key {
		case "field", "operator", "value", "order":
		default:
			return nil, malformed(loc, "unknown rule key %q", key)
		}
	}

	field, ok := obj["field"].(string)
	if !ok {
		return nil, malformed(loc, "field must be a string")
	}
	operator, ok := obj["operator"].(string)
	if !ok {
		return nil, malformed(loc, "operator must be a string")
	}

	r := &conditions.Rule{Field: field, Operator: operator}
	raw, present := obj["value"]
	if !present {
		return r, nil
	}
	if list, ok := raw.([]any); ok {
		r.Values = make([]any, len(list))
		for i, v := range list {
			nv, err := normalize(v)
			if err != nil {
				return nil, malformed(loc, "%v", err)
			}
			r.Values[i] = nv
		}
		return r, nil
	}
	nv, err := normalize(raw)
	if err != nil {
		return nil, malformed(loc, "%v", err)
	}
	r.Values = []any{nv}
	return r, nil
}

func objectList(obj map[string]any, key, loc string) ([]map[string]any, error) {
	raw, present := obj[key]
	if !present || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, malformed(loc, "%s must be an array, got %s", key, jsonKind(raw))
	}
	out := make([]map[string]any, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, malformed(fmt.Sprintf("%s.%s[%d]", loc, key, i), "expected an object, got %s", jsonKind(item))
		}
		out[i] = m
	}
	return out, nil
}

func withOrder(n conditions.Node, obj map[string]any, loc string) (orderedChild, error) {
	raw, present := obj["order"]
	if !present {
		return orderedChild{node: n}, nil
	}
	num, ok := raw.(json.Number)
	if !ok {
		return orderedChild{}, malformed(loc, "order must be a number, got %s", jsonKind(raw))
	}
	order, err := num.Int64()
	if err != nil || order < 0 {
		return orderedChild{}, malformed(loc, "order must be a non-negative integer, got %s", num)
	}
	return orderedChild{node: n, order: int(order), set: true}, nil
}

func sortChildren(children []orderedChild, loc string) error {
	withKeys := 0
	for _, c := range children {
		if c.set {
			withKeys++
		}
	}
	if withKeys == 0 {
		return nil
	}
	if withKeys != len(children) {
		return malformed(loc, "order given for %d of %d children", withKeys, len(children))
	}

	sort.SliceStable(children, func(i, j int) bool { return children[i].order < children[j].order })
	for i := 1; i < len(children); i++ {
		if children[i].order == children[i-1].order {
			return malformed(loc, "duplicate order %d", children[i].order)
		}
	}
	return nil
}

// normalize turns decoded JSON numbers into int64 when integral and float64
// otherwise, recursing into arrays and objects.
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", val)
		}
		return f, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			nv, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			nv, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	}
	return v, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func malformed(loc, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if loc != "" {
		msg = loc + ": " + msg
	}
	return &conditions.Violation{Kind: conditions.KindMalformedDocument, Message: msg}
}
