package expr

import "errors"

// Compilation errors. Compilation is deterministic, retrying with the same
// input fails the same way.
var (
	ErrMultiColumn     = errors.New("ddbq: multi column expression used where a single column leaf is required")
	ErrNilColumn       = errors.New("ddbq: expression references a nil column")
	ErrUnknownNode     = errors.New("ddbq: unknown expression node")
	ErrForeignColumn   = errors.New("ddbq: column belongs to another table")
	ErrAliasCollision  = errors.New("ddbq: attribute name alias collision")
	ErrBindingConflict = errors.New("ddbq: conflicting value bindings")
	ErrValueType       = errors.New("ddbq: value does not match column type")
	ErrEmptyIn         = errors.New("ddbq: IN requires at least one value")
	ErrEmptyCompound   = errors.New("ddbq: compound expression has no elements")
	ErrUnknownIndex    = errors.New("ddbq: unknown index")
)
