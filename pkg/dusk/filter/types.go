// Package filter compiles exclude patterns into the predicate the scanner
// consumes, and selects and orders result rows for presentation.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// SortField specifies the order of result rows.
type SortField int

const (
	// SortSize orders by disk usage, largest first, ties broken by path.
	SortSize SortField = iota
	// SortName orders by path.
	SortName
)

// Sort field string constants.
const (
	sortFieldSize = "size"
	sortFieldName = "name"
)

// String returns the string representation of the sort field.
func (s SortField) String() string {
	if s == SortName {
		return sortFieldName
	}
	return sortFieldSize
}

// Errors returned by the parsers in this package.
var (
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidPattern   = errors.New("invalid exclude pattern")
)

// ParseSortField parses "size" or "name" (case-insensitive). "path" is
// accepted as an alias of "name".
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", sortFieldSize:
		return SortSize, nil
	case sortFieldName, "path":
		return SortName, nil
	default:
		return SortSize, fmt.Errorf("%w: %q (valid: size, name)", ErrInvalidSortField, s)
	}
}
