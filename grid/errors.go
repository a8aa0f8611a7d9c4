package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidColumnReference indicates a filter or sorter references an undeclared column.
	ErrInvalidColumnReference = errors.New("invalid column reference")

	// ErrUnknownOperator indicates an operator name that cannot be parsed.
	ErrUnknownOperator = errors.New("unknown filter operator")

	// ErrUnknownSortDirection indicates a sort direction other than ASC/DESC.
	ErrUnknownSortDirection = errors.New("unknown sort direction")

	// ErrInvalidPagination indicates negative page numbers or sizes.
	ErrInvalidPagination = errors.New("invalid pagination")
)

// InvalidColumnReferenceError reports the undeclared column and where it was referenced.
type InvalidColumnReferenceError struct {
	ColumnID string
	// Kind is "filter" or "sorter".
	Kind string
	// Index is the position of the filter or sorter in the state.
	Index int
}

func (e *InvalidColumnReferenceError) Error() string {
	return fmt.Sprintf("%s %d references undeclared column %q", e.Kind, e.Index, e.ColumnID)
}

func (e *InvalidColumnReferenceError) Unwrap() error {
	return ErrInvalidColumnReference
}

// UnknownOperatorError reports an operator that could not be parsed.
type UnknownOperatorError struct {
	Operator string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown filter operator %q", e.Operator)
}

func (e *UnknownOperatorError) Unwrap() error {
	return ErrUnknownOperator
}

// UnknownSortDirectionError reports a sort direction that could not be parsed.
type UnknownSortDirectionError struct {
	Direction string
}

func (e *UnknownSortDirectionError) Error() string {
	return fmt.Sprintf("unknown sort direction %q", e.Direction)
}

func (e *UnknownSortDirectionError) Unwrap() error {
	return ErrUnknownSortDirection
}
