package grid

import (
	"encoding/json"
	"strings"
)

// Operator identifies a filter comparison.
// Values are the canonical tokens sent to GraphQL backends.
type Operator string

const (
	OpEqual          Operator = "EQ"
	OpNotEqual       Operator = "NE"
	OpContains       Operator = "Contains"
	OpGreaterThan    Operator = "GT"
	OpGreaterOrEqual Operator = "GE"
	OpLessThan       Operator = "LT"
	OpLessOrEqual    Operator = "LE"
	OpStartsWith     Operator = "StartsWith"
	OpEndsWith       Operator = "EndsWith"
	OpIn             Operator = "IN"
	OpNotIn          Operator = "NIN"
)

// operatorAliases maps lower-cased names and symbols to canonical operators.
var operatorAliases = map[string]Operator{
	"eq": OpEqual, "=": OpEqual, "==": OpEqual, "equal": OpEqual,
	"ne": OpNotEqual, "<>": OpNotEqual, "!=": OpNotEqual, "notequal": OpNotEqual, "neq": OpNotEqual,
	"contains": OpContains, "like": OpContains,
	"gt": OpGreaterThan, ">": OpGreaterThan, "greaterthan": OpGreaterThan,
	"ge": OpGreaterOrEqual, ">=": OpGreaterOrEqual, "greaterorequal": OpGreaterOrEqual, "gte": OpGreaterOrEqual,
	"lt": OpLessThan, "<": OpLessThan, "lessthan": OpLessThan,
	"le": OpLessOrEqual, "<=": OpLessOrEqual, "lessorequal": OpLessOrEqual, "lte": OpLessOrEqual,
	"startswith": OpStartsWith, "a*": OpStartsWith,
	"endswith": OpEndsWith, "*z": OpEndsWith,
	"in": OpIn,
	"nin": OpNotIn, "notin": OpNotIn, "not_in": OpNotIn,
}

// ParseOperator parses an operator name or symbol.
// The empty string parses to the empty Operator (operator taken from the search term).
func ParseOperator(s string) (Operator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if op, ok := operatorAliases[strings.ToLower(s)]; ok {
		return op, nil
	}
	return "", &UnknownOperatorError{Operator: s}
}

// Valid reports whether op is a canonical operator (or empty).
func (op Operator) Valid() bool {
	if op == "" {
		return true
	}
	switch op {
	case OpEqual, OpNotEqual, OpContains, OpGreaterThan, OpGreaterOrEqual,
		OpLessThan, OpLessOrEqual, OpStartsWith, OpEndsWith, OpIn, OpNotIn:
		return true
	}
	return false
}

// IsList reports whether the operator compares against a list of terms.
func (op Operator) IsList() bool {
	return op == OpIn || op == OpNotIn
}

// UnmarshalJSON accepts any alias understood by ParseOperator.
func (op *Operator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOperator(s)
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// SortDirection is the direction of a sorter.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// ParseSortDirection parses "asc"/"desc" in any case.
func ParseSortDirection(s string) (SortDirection, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASC":
		return SortAsc, nil
	case "DESC":
		return SortDesc, nil
	}
	return "", &UnknownSortDirectionError{Direction: s}
}

// UnmarshalJSON accepts directions in any case.
func (d *SortDirection) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSortDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// searchTermPrefixes lists operator prefixes in match order (longest first).
var searchTermPrefixes = []struct {
	prefix string
	op     Operator
}{
	{">=", OpGreaterOrEqual},
	{"<=", OpLessOrEqual},
	{"<>", OpNotEqual},
	{"!=", OpNotEqual},
	{"==", OpEqual},
	{">", OpGreaterThan},
	{"<", OpLessThan},
	{"=", OpEqual},
}

// ParseSearchTerm extracts an operator embedded in a search term.
//
//	">=100" -> GE "100"
//	"abc*"  -> StartsWith "abc"
//	"*xyz"  -> EndsWith "xyz"
//	"abc"   -> "" "abc"
func ParseSearchTerm(term string) (Operator, string) {
	t := strings.TrimSpace(term)
	for _, p := range searchTermPrefixes {
		if strings.HasPrefix(t, p.prefix) {
			return p.op, strings.TrimSpace(t[len(p.prefix):])
		}
	}
	if len(t) > 1 && strings.HasSuffix(t, "*") {
		return OpStartsWith, t[:len(t)-1]
	}
	if len(t) > 1 && strings.HasPrefix(t, "*") {
		return OpEndsWith, t[1:]
	}
	return "", t
}

// DefaultOperator returns the operator used when neither the filter nor its
// search term names one.
func DefaultOperator(t FieldType) Operator {
	if t == FieldTypeString || t == "" {
		return OpContains
	}
	return OpEqual
}

// Resolve returns the effective operator and terms of the filter for the given column.
// An explicit operator wins; otherwise a single search term may carry one; several
// terms without an operator mean IN.
func (f Filter) Resolve(col Column) (Operator, []string) {
	if f.Operator != "" {
		return f.Operator, f.SearchTerms
	}
	switch len(f.SearchTerms) {
	case 0:
		return DefaultOperator(col.DataType()), f.SearchTerms
	case 1:
		op, term := ParseSearchTerm(f.SearchTerms[0])
		if op == "" {
			op = DefaultOperator(col.DataType())
		}
		return op, []string{term}
	default:
		return OpIn, f.SearchTerms
	}
}
