package serialize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/liamcoop/querybuilder/conditions"
	"github.com/liamcoop/querybuilder/fields"
)

// Readable renders n as human-readable text, for example
// "(Name = Bob AND Age BETWEEN 18 AND 30)". An empty And group renders as
// TRUE and an empty Or group as FALSE.
func Readable(n conditions.Node) string {
	var b strings.Builder
	render(&b, n, readableRule)
	return b.String()
}

// SQL renders n as a SQL-like WHERE clause body for display. Literals are
// quoted but the output is not meant to be executed.
func SQL(n conditions.Node) string {
	var b strings.Builder
	render(&b, n, sqlRule)
	return b.String()
}

type ruleWriter func(b *strings.Builder, r *conditions.Rule)

func render(b *strings.Builder, n conditions.Node, writeRule ruleWriter) {
	switch v := n.(type) {
	case *conditions.Group:
		if v == nil {
			b.WriteString("TRUE")
			return
		}
		renderGroup(b, v, writeRule)
	case *conditions.Rule:
		if v != nil {
			writeRule(b, v)
		}
	}
}

func renderGroup(b *strings.Builder, g *conditions.Group, writeRule ruleWriter) {
	sep, identity := " AND ", "TRUE"
	if g.Connective == conditions.Or {
		sep, identity = " OR ", "FALSE"
	}

	if len(g.Children) == 0 {
		b.WriteString(identity)
		return
	}

	b.WriteByte('(')
	for i, child := range g.Children {
		if i > 0 {
			b.WriteString(sep)
		}
		render(b, child, writeRule)
	}
	b.WriteByte(')')
}

var readableKeywords = map[string]string{
	fields.OpIsEmpty:    "IS EMPTY",
	fields.OpIsNotEmpty: "IS NOT EMPTY",
	fields.OpIsNull:     "IS NULL",
	fields.OpIsNotNull:  "IS NOT NULL",
}

func readableRule(b *strings.Builder, r *conditions.Rule) {
	b.WriteString(r.Field)

	switch {
	case r.Operator == fields.OpBetween && len(r.Values) == 2:
		fmt.Fprintf(b, " BETWEEN %s AND %s", plainValue(r.Values[0]), plainValue(r.Values[1]))
		return
	case r.Operator == fields.OpNotBetween && len(r.Values) == 2:
		fmt.Fprintf(b, " NOT BETWEEN %s AND %s", plainValue(r.Values[0]), plainValue(r.Values[1]))
		return
	case len(r.Values) == 0:
		if kw, ok := readableKeywords[r.Operator]; ok {
			b.WriteString(" " + kw)
			return
		}
	}

	b.WriteString(" " + r.Operator)
	writeValues(b, r.Values, plainValue)
}

func sqlRule(b *strings.Builder, r *conditions.Rule) {
	b.WriteString(r.Field)

	if len(r.Values) == 1 {
		if pattern, negate, ok := likePattern(r.Operator, r.Values[0]); ok {
			if negate {
				b.WriteString(" NOT")
			}
			b.WriteString(" LIKE " + quote(pattern))
			return
		}
	}

	switch {
	case r.Operator == fields.OpBetween && len(r.Values) == 2:
		fmt.Fprintf(b, " BETWEEN %s AND %s", sqlLiteral(r.Values[0]), sqlLiteral(r.Values[1]))
		return
	case r.Operator == fields.OpNotBetween && len(r.Values) == 2:
		fmt.Fprintf(b, " NOT BETWEEN %s AND %s", sqlLiteral(r.Values[0]), sqlLiteral(r.Values[1]))
		return
	case len(r.Values) == 0:
		switch r.Operator {
		case fields.OpIsEmpty:
			b.WriteString(" = ''")
			return
		case fields.OpIsNotEmpty:
			b.WriteString(" <> ''")
			return
		case fields.OpIsNull:
			b.WriteString(" IS NULL")
			return
		case fields.OpIsNotNull:
			b.WriteString(" IS NOT NULL")
			return
		}
	case r.Operator == fields.OpNotEqual:
		b.WriteString(" <>")
		writeValues(b, r.Values, sqlLiteral)
		return
	}

	b.WriteString(" " + r.Operator)
	writeValues(b, r.Values, sqlLiteral)
}

func likePattern(operator string, v any) (string, bool, bool) {
	s := plainValue(v)
	switch operator {
	case fields.OpContains:
		return "%" + s + "%", false, true
	case fields.OpNotContains:
		return "%" + s + "%", true, true
	case fields.OpStartsWith:
		return s + "%", false, true
	case fields.OpEndsWith:
		return "%" + s, false, true
	}
	return "", false, false
}

func writeValues(b *strings.Builder, values []any, format func(any) string) {
	for i, v := range values {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(format(v))
	}
}

// plainValue formats an operand without quoting.
func plainValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return formatTime(val)
	}
	return fmt.Sprint(v)
}

func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return quote(val)
	case time.Time:
		return quote(formatTime(val))
	case interface{ Float64() (float64, error) }:
		return plainValue(v)
	case fmt.Stringer:
		return quote(val.String())
	}
	return plainValue(v)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// formatTime prints a calendar date for midnight UTC values and an RFC 3339
// instant otherwise.
func formatTime(t time.Time) string {
	if t.Location() == time.UTC && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339Nano)
}
