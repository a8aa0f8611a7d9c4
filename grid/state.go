package grid

import (
	"encoding/json"
	"fmt"
)

// Validate checks the state against the declared columns.
//
// Error conditions:
//   - filter or sorter referencing an undeclared column (*InvalidColumnReferenceError)
//   - operator or sort direction outside the canonical set
//   - negative page number or page size
func (s State) Validate(cols Columns) error {
	for i, f := range s.Filters {
		if _, ok := cols.Lookup(f.ColumnID); !ok {
			return &InvalidColumnReferenceError{ColumnID: f.ColumnID, Kind: "filter", Index: i}
		}
		if !f.Operator.Valid() {
			return fmt.Errorf("filter %d: %w", i, &UnknownOperatorError{Operator: string(f.Operator)})
		}
	}
	for i, srt := range s.Sorters {
		if _, ok := cols.Lookup(srt.ColumnID); !ok {
			return &InvalidColumnReferenceError{ColumnID: srt.ColumnID, Kind: "sorter", Index: i}
		}
		if srt.Direction != SortAsc && srt.Direction != SortDesc {
			return fmt.Errorf("sorter %d: %w", i, &UnknownSortDirectionError{Direction: string(srt.Direction)})
		}
	}
	if p := s.Pagination; p != nil {
		if p.PageNumber < 0 || p.PageSize < 0 {
			return fmt.Errorf("%w: page %d, size %d", ErrInvalidPagination, p.PageNumber, p.PageSize)
		}
	}
	return nil
}

// Parse decodes a serialized state.
// Empty input yields an empty state.
func Parse(data []byte) (*State, error) {
	if len(data) == 0 {
		return &State{}, nil
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("grid: invalid state JSON: %w", err)
	}
	return &s, nil
}

// Marshal encodes the state as JSON.
func (s State) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("grid: failed to encode state: %w", err)
	}
	return data, nil
}
