package codec

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/ddbq/dynamodb/table"
)

var (
	ErrNotRecord          = errors.New("ddbq: codec target must be a struct type")
	ErrUnsupportedField   = errors.New("ddbq: unsupported field type")
	ErrCyclicType         = errors.New("ddbq: record type references itself")
	ErrDuplicateAttribute = errors.New("ddbq: attribute name used by more than one field")
	ErrInvalidKeyField    = errors.New("ddbq: invalid key field")
	ErrAlreadyRegistered  = errors.New("ddbq: codec already built for type")
	ErrTagMismatch        = errors.New("ddbq: attribute value has unexpected type")
	ErrInvalidValue       = errors.New("ddbq: attribute value cannot be represented")
)

// CompileError is returned when a record type has a field the codec can't
// map to an attribute value.
type CompileError struct {
	Type      reflect.Type
	Field     string
	FieldType reflect.Type
	Err       error
}

func (e *CompileError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot compile codec for %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("cannot compile codec for %s: field %s of type %s: %v", e.Type, e.Field, e.FieldType, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// DecodeError is returned by Read when an attribute can't be converted to
// its field. Field is the attribute path, e.g. "address.city" or "tags[2]".
type DecodeError struct {
	Field    string
	Expected string
	Actual   string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode attribute %q: expected %s, got %s: %v", e.Field, e.Expected, e.Actual, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func mismatch(expected string, av types.AttributeValue) error {
	return &DecodeError{Expected: expected, Actual: tagOf(av), Err: ErrTagMismatch}
}

func invalid(expected string, actual string) error {
	return &DecodeError{Expected: expected, Actual: actual, Err: ErrInvalidValue}
}

func tagOf(av types.AttributeValue) string {
	if av == nil {
		return "nothing"
	}
	if t := table.TypeOf(av); t != "" {
		return string(t)
	}
	return fmt.Sprintf("%T", av)
}

// withField prefixes the attribute path of a DecodeError.
func withField(err error, name string) error {
	var de *DecodeError
	if !errors.As(err, &de) {
		return fmt.Errorf("%s: %w", name, err)
	}
	switch {
	case de.Field == "":
		de.Field = name
	case strings.HasPrefix(de.Field, "["):
		de.Field = name + de.Field
	default:
		de.Field = name + "." + de.Field
	}
	return err
}
