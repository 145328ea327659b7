// Package fields describes the queryable fields of a record: their semantic
// types, the operators legal for each type, and the custom business rules
// attached to them. A Catalog is built once by the host application and is
// read-only afterwards.
package fields

import (
	"fmt"
	"strings"
)

// TypeKind is the semantic type of a field.
type TypeKind int

const (
	KindString TypeKind = iota + 1
	KindNumber
	KindBoolean
	KindDate
	KindDateTime
	KindCustom
)

var kindNames = map[TypeKind]string{
	KindString:   "string",
	KindNumber:   "number",
	KindBoolean:  "boolean",
	KindDate:     "date",
	KindDateTime: "datetime",
	KindCustom:   "custom",
}

func (k TypeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// FieldType is a TypeKind plus, for custom types, the host-defined tag.
type FieldType struct {
	Kind TypeKind
	Tag  string
}

var (
	String   = FieldType{Kind: KindString}
	Number   = FieldType{Kind: KindNumber}
	Boolean  = FieldType{Kind: KindBoolean}
	Date     = FieldType{Kind: KindDate}
	DateTime = FieldType{Kind: KindDateTime}
)

// Custom returns a custom field type identified by tag.
func Custom(tag string) FieldType {
	return FieldType{Kind: KindCustom, Tag: tag}
}

// String renders the type in its textual form, e.g. "number" or "custom:sku".
func (t FieldType) String() string {
	if t.Kind == KindCustom {
		return "custom:" + t.Tag
	}
	return t.Kind.String()
}

// IsOrdinal reports whether values of the type have a natural ordering.
func (t FieldType) IsOrdinal() bool {
	switch t.Kind {
	case KindNumber, KindDate, KindDateTime, KindString:
		return true
	}
	return false
}

// ParseFieldType parses the textual form produced by FieldType.String.
// Kind names are case-insensitive.
func ParseFieldType(s string) (FieldType, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if tag, ok := strings.CutPrefix(lower, "custom:"); ok {
		if tag == "" {
			return FieldType{}, fmt.Errorf("custom type %q has an empty tag", s)
		}
		// keep the tag as written
		return Custom(strings.TrimSpace(s)[len("custom:"):]), nil
	}
	for kind, name := range kindNames {
		if kind != KindCustom && name == lower {
			return FieldType{Kind: kind}, nil
		}
	}
	return FieldType{}, fmt.Errorf("unknown field type %q (must be one of: string, number, boolean, date, datetime, custom:<tag>)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t FieldType) MarshalText() ([]byte, error) {
	if _, ok := kindNames[t.Kind]; !ok {
		return nil, fmt.Errorf("invalid field type kind %d", int(t.Kind))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *FieldType) UnmarshalText(b []byte) error {
	parsed, err := ParseFieldType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
