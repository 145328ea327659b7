package fields

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrTypeMismatch is returned by Coerce when a value cannot represent the
// field type.
var ErrTypeMismatch = errors.New("type mismatch")

// DateLayouts are the string layouts accepted for Date and DateTime values,
// tried in order.
var DateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// IsEmpty reports whether v counts as an empty value: nil, or a string that
// is blank after trimming spaces.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

// Coerce converts v to the canonical Go representation of t:
// string, float64, bool, or time.Time. Custom values pass through unchanged.
// A nil value coerces to nil.
func Coerce(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t.Kind {
	case KindString:
		return coerceString(v)
	case KindNumber:
		return coerceNumber(v)
	case KindBoolean:
		return coerceBool(v)
	case KindDate:
		ts, err := coerceTime(v)
		if err != nil {
			return nil, err
		}
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case KindDateTime:
		return coerceTime(v)
	case KindCustom:
		return v, nil
	}
	return nil, fmt.Errorf("%w: unsupported field type %s", ErrTypeMismatch, t)
}

func coerceString(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case fmt.Stringer:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("%w: %v (%T) is not a string", ErrTypeMismatch, v, v)
}

func coerceNumber(v any) (any, error) {
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %v (%T) is not a number", ErrTypeMismatch, v, v)
}

func coerceBool(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %v (%T) is not a boolean", ErrTypeMismatch, v, v)
}

func coerceTime(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case *time.Time:
		if val != nil {
			return *val, nil
		}
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range DateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %v (%T) is not a date", ErrTypeMismatch, v, v)
}

// toFloat converts Go numeric types and JSON numbers to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Compare orders two coerced values of the same representation. It returns
// false when the values are not mutually comparable.
func Compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	if a == nil || b == nil {
		return 0, false
	}
	// custom values compare by their formatted form
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}
