package conditions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/liamcoop/querybuilder/fields"
)

// Kind classifies a violation or mutation failure.
type Kind int

const (
	KindUnknownField Kind = iota + 1
	KindInvalidOperator
	KindArityMismatch
	KindTypeMismatch
	KindMaxDepthExceeded
	KindRequiredFieldEmpty
	KindCustomRuleFailed
	KindIndexOutOfRange
	KindMalformedDocument
)

var kindNames = map[Kind]string{
	KindUnknownField:       "UnknownField",
	KindInvalidOperator:    "InvalidOperator",
	KindArityMismatch:      "ArityMismatch",
	KindTypeMismatch:       "TypeMismatch",
	KindMaxDepthExceeded:   "MaxDepthExceeded",
	KindRequiredFieldEmpty: "RequiredFieldEmpty",
	KindCustomRuleFailed:   "CustomRuleFailed",
	KindIndexOutOfRange:    "IndexOutOfRange",
	KindMalformedDocument:  "MalformedDocument",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown violation kind %q", b)
}

// Sentinel errors, one per Kind. Violations unwrap to these.
var (
	ErrUnknownField       = fields.ErrUnknownField
	ErrInvalidOperator    = errors.New("invalid operator")
	ErrArityMismatch      = errors.New("arity mismatch")
	ErrTypeMismatch       = fields.ErrTypeMismatch
	ErrMaxDepthExceeded   = errors.New("max depth exceeded")
	ErrRequiredFieldEmpty = errors.New("required field empty")
	ErrCustomRuleFailed   = errors.New("custom rule failed")
	ErrIndexOutOfRange    = errors.New("index out of range")
	ErrMalformedDocument  = errors.New("malformed document")
)

var (
	// ErrForeignNode is returned when a group passed to a Tree method is not
	// part of that tree.
	ErrForeignNode = errors.New("group does not belong to this tree")

	// ErrRootRemoval is returned when a caller tries to detach the root.
	ErrRootRemoval = errors.New("the root group cannot be removed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnknownField:
		return ErrUnknownField
	case KindInvalidOperator:
		return ErrInvalidOperator
	case KindArityMismatch:
		return ErrArityMismatch
	case KindTypeMismatch:
		return ErrTypeMismatch
	case KindMaxDepthExceeded:
		return ErrMaxDepthExceeded
	case KindRequiredFieldEmpty:
		return ErrRequiredFieldEmpty
	case KindCustomRuleFailed:
		return ErrCustomRuleFailed
	case KindIndexOutOfRange:
		return ErrIndexOutOfRange
	case KindMalformedDocument:
		return ErrMalformedDocument
	}
	return nil
}

// Violation is a single failure located by its path from the root.
type Violation struct {
	Path    Path   `json:"path"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s at %s: %s", v.Kind, v.Path, v.Message)
}

// Unwrap returns the sentinel error of the violation's kind.
func (v Violation) Unwrap() error {
	return v.Kind.sentinel()
}

func newViolation(path Path, kind Kind, format string, args ...any) *Violation {
	return &Violation{Path: path, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ViolationError reports that a tree failed validation.
type ViolationError struct {
	Violations []Violation
}

func (e *ViolationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("query has %d violation(s): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// Unwrap exposes every violation so errors.Is matches any contained kind.
func (e *ViolationError) Unwrap() []error {
	errs := make([]error, len(e.Violations))
	for i, v := range e.Violations {
		errs[i] = v
	}
	return errs
}
