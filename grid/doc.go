// Package grid defines the state a data grid exposes to a remote data source:
// column declarations, filters, sorters and pagination.
//
// A State is the combined filter/sort/pagination configuration of a grid at a
// point in time. It is created from presets (or from a persisted entry),
// mutated on every user action and serialized with encoding/json using the
// field names the grid itself persists:
//
//	{
//	  "filters": [{"columnId": "gender", "operator": "EQ", "searchTerms": ["male"]}],
//	  "sorters": [{"columnId": "name", "direction": "ASC"}],
//	  "pagination": {"pageNumber": 2, "pageSize": 20}
//	}
//
// # Operators
//
// Operators are parsed case-insensitively from their names or symbols:
//
//	EQ  = ==       NE  <> !=      Contains
//	GT  >          GE  >=         StartsWith
//	LT  <          LE  <=         EndsWith
//	IN             NIN
//
// A filter without an explicit operator may carry one inside its single search
// term (">=100", "<>abc", "abc*" for startsWith, "*xyz" for endsWith). See
// ParseSearchTerm and Filter.Resolve.
//
// # Validation
//
// Every filter and sorter must reference a declared column. State.Validate
// returns an *InvalidColumnReferenceError (matching ErrInvalidColumnReference
// with errors.Is) for the first undeclared reference.
package grid
